// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package identity derives a stable client identity for each request.
//
// EdgeGuard does not authenticate anyone. It consumes two already-resolved
// signals:
//
//   - the client IP, taken from X-Forwarded-For / X-Real-IP only when the
//     direct peer is a trusted proxy, otherwise from the socket address
//   - an optional user assertion (HS256 JWT) minted by the upstream
//     identity provider and passed in a header
//
// The resolver holds no per-request state and is safe for concurrent use.
package identity

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Identity is the resolved client of one request.
type Identity struct {
	// IP is the best-effort client address.
	IP string

	// UserID is set only when a valid upstream assertion was presented.
	UserID string

	// Roles come from the same assertion.
	Roles []string

	// AssertionRejected is true when an assertion header was present but failed verification.
	AssertionRejected bool
}

// Key returns the stable per-client key used by the rate limiter and CSRF store.
// Authenticated users are keyed by user ID so they keep one budget across IPs.
func (id Identity) Key() string {
	if id.UserID != "" {
		return "user:" + id.UserID
	}
	return "ip:" + id.IP
}

// HasRole reports whether the identity carries role.
func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Config configures a Resolver.
type Config struct {
	// TrustedProxies are IPs or CIDRs whose forwarding headers are honoured.
	TrustedProxies []string

	// AssertionHeader carries the upstream identity assertion.
	AssertionHeader string

	// AssertionSecret verifies the assertion. Empty disables user identity.
	AssertionSecret string
}

// Resolver resolves request identities.
type Resolver struct {
	trusted  []netip.Prefix
	header   string
	verifier *AssertionVerifier
}

// NewResolver parses the trusted proxy list and prepares the assertion verifier.
func NewResolver(cfg Config) (*Resolver, error) {
	r := &Resolver{header: cfg.AssertionHeader}
	for _, p := range cfg.TrustedProxies {
		prefix, err := parsePrefix(p)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		r.trusted = append(r.trusted, prefix)
	}
	if cfg.AssertionSecret != "" {
		if r.header == "" {
			return nil, fmt.Errorf("assertion header is required when an assertion secret is set")
		}
		r.verifier = NewAssertionVerifier([]byte(cfg.AssertionSecret))
	}
	return r, nil
}

func parsePrefix(s string) (netip.Prefix, error) {
	if strings.Contains(s, "/") {
		return netip.ParsePrefix(s)
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// Resolve returns the identity of r.
func (rs *Resolver) Resolve(r *http.Request) Identity {
	id := Identity{IP: rs.clientIP(r)}

	if rs.verifier == nil {
		return id
	}
	raw := strings.TrimSpace(r.Header.Get(rs.header))
	if raw == "" {
		return id
	}
	claims, err := rs.verifier.Verify(raw)
	if err != nil {
		id.AssertionRejected = true
		return id
	}
	id.UserID = claims.Subject
	id.Roles = claims.Roles
	return id
}

func (rs *Resolver) clientIP(r *http.Request) string {
	peer := peerAddr(r.RemoteAddr)
	if !peer.IsValid() {
		return r.RemoteAddr
	}
	if !rs.isTrusted(peer) {
		return peer.String()
	}

	// Walk X-Forwarded-For right to left; the first hop that is not one of
	// our proxies is the client. Left-most entries are client-controlled.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			addr = addr.Unmap()
			if !rs.isTrusted(addr) {
				return addr.String()
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap().String()
		}
	}
	return peer.String()
}

func (rs *Resolver) isTrusted(addr netip.Addr) bool {
	for _, p := range rs.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remote string) netip.Addr {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

type contextKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// Middleware resolves the identity once per request and stores it on the context.
func (rs *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := rs.Resolve(r)
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// FromRequest returns the identity on r's context, resolving it if Middleware did not run.
func (rs *Resolver) FromRequest(r *http.Request) Identity {
	if id, ok := FromContext(r.Context()); ok {
		return id
	}
	return rs.Resolve(r)
}
