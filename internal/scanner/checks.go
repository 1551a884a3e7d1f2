// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package scanner

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// finding is the fixed text attached to a vulnerability type.
type finding struct {
	severity       Severity
	title          string
	impact         string
	recommendation string
}

var catalog = map[string]finding{
	TypeMissingCSP: {SeverityMedium, "Missing Content-Security-Policy header",
		"Injected scripts run without restriction, making XSS easier to exploit.",
		"Send a Content-Security-Policy restricting script, style and frame sources."},
	TypeMissingHSTS: {SeverityMedium, "Missing Strict-Transport-Security header",
		"Browsers may be downgraded to plain HTTP by an active attacker.",
		"Send Strict-Transport-Security: max-age=31536000; includeSubDomains."},
	TypeMissingFrameProtection: {SeverityMedium, "Missing clickjacking protection",
		"Pages can be framed by other sites and used for clickjacking.",
		"Send X-Frame-Options: DENY or a CSP frame-ancestors directive."},
	TypeMissingContentTypeOpts: {SeverityLow, "Missing X-Content-Type-Options header",
		"Browsers may MIME-sniff responses into executable content.",
		"Send X-Content-Type-Options: nosniff."},
	TypeMissingReferrerPolicy: {SeverityLow, "Missing Referrer-Policy header",
		"Full URLs, including tokens in query strings, leak to third parties.",
		"Send Referrer-Policy: strict-origin-when-cross-origin or stricter."},
	TypeInsecureCookie: {SeverityMedium, "Cookie without security attributes",
		"Cookies may be sent over plain HTTP, read by scripts or sent cross-site.",
		"Set the Secure, HttpOnly and SameSite attributes on every cookie."},
	TypeInsecureTransport: {SeverityHigh, "Site served over plain HTTP",
		"Traffic can be read and modified in transit.",
		"Serve the site over HTTPS and redirect HTTP requests."},
	TypeWeakTLS: {SeverityHigh, "Outdated TLS version negotiated",
		"TLS versions before 1.2 have known cryptographic weaknesses.",
		"Disable TLS 1.0 and 1.1; require TLS 1.2 or later."},
	TypeCertificateExpiring: {SeverityHigh, "TLS certificate expiring",
		"Clients will reject the site once the certificate expires.",
		"Renew the certificate and automate renewal."},
	TypeVerboseErrors: {SeverityMedium, "Verbose error page",
		"Stack traces and framework details help attackers fingerprint and target the application.",
		"Return generic error pages in production and log details server-side."},
	TypeServerBanner: {SeverityLow, "Server software disclosed",
		"Version banners let attackers match the server against known exploits.",
		"Remove version information from Server and X-Powered-By headers."},
	TypePermissiveCORS: {SeverityHigh, "Permissive CORS policy",
		"Other origins can read authenticated responses from this site.",
		"Allow only trusted origins and never combine wildcard or reflected origins with credentials."},
	TypeSensitiveFile: {SeverityHigh, "Sensitive file exposed",
		"Source code, credentials or server internals are publicly readable.",
		"Block access to the file at the web server and rotate any exposed secrets."},
}

// report builds a vulnerability of typ with the catalog text.
func report(typ, location, description string) Vulnerability {
	f := catalog[typ]
	return Vulnerability{
		Type:           typ,
		Severity:       f.severity,
		Title:          f.title,
		Description:    description,
		Location:       location,
		Impact:         f.impact,
		Recommendation: f.recommendation,
	}
}

// checkHeaders inspects the security headers of one page.
func checkHeaders(p *page) []Vulnerability {
	var out []Vulnerability
	loc := p.location()
	csp := p.header.Get("Content-Security-Policy")

	if csp == "" {
		out = append(out, report(TypeMissingCSP, loc, "The response has no Content-Security-Policy header."))
	}
	if p.url.Scheme == "https" && p.header.Get("Strict-Transport-Security") == "" {
		out = append(out, report(TypeMissingHSTS, loc, "The HTTPS response has no Strict-Transport-Security header."))
	}
	if p.header.Get("X-Frame-Options") == "" && !strings.Contains(strings.ToLower(csp), "frame-ancestors") {
		out = append(out, report(TypeMissingFrameProtection, loc,
			"Neither X-Frame-Options nor a CSP frame-ancestors directive is present."))
	}
	if !strings.EqualFold(strings.TrimSpace(p.header.Get("X-Content-Type-Options")), "nosniff") {
		out = append(out, report(TypeMissingContentTypeOpts, loc, "X-Content-Type-Options is not set to nosniff."))
	}
	if p.header.Get("Referrer-Policy") == "" {
		out = append(out, report(TypeMissingReferrerPolicy, loc, "The response has no Referrer-Policy header."))
	}
	return out
}

// checkCookies reports every Set-Cookie missing Secure, HttpOnly or SameSite.
func checkCookies(p *page) []Vulnerability {
	var out []Vulnerability
	for _, c := range p.cookies {
		var missing []string
		if !c.Secure {
			missing = append(missing, "Secure")
		}
		if !c.HttpOnly {
			missing = append(missing, "HttpOnly")
		}
		if c.SameSite == 0 || c.SameSite == http.SameSiteDefaultMode {
			missing = append(missing, "SameSite")
		}
		if len(missing) == 0 {
			continue
		}
		v := report(TypeInsecureCookie, p.origin()+"#cookie="+c.Name,
			fmt.Sprintf("Cookie %q is missing: %s.", c.Name, strings.Join(missing, ", ")))
		if c.Secure && c.HttpOnly {
			v.Severity = SeverityLow
		}
		out = append(out, v)
	}
	return out
}

// certificateWarning is how close to expiry a certificate gets reported.
const certificateWarning = 14 * 24 * time.Hour

// checkTLS reports plain HTTP, old TLS versions and expiring certificates.
func checkTLS(p *page, now time.Time) []Vulnerability {
	loc := p.origin()
	if p.url.Scheme == "http" {
		return []Vulnerability{report(TypeInsecureTransport, loc, "The target does not use HTTPS.")}
	}
	if p.tls == nil {
		return nil
	}

	var out []Vulnerability
	if p.tls.Version < tls.VersionTLS12 {
		out = append(out, report(TypeWeakTLS, loc,
			fmt.Sprintf("The server negotiated %s.", tls.VersionName(p.tls.Version))))
	}
	if len(p.tls.PeerCertificates) > 0 {
		cert := p.tls.PeerCertificates[0]
		left := cert.NotAfter.Sub(now)
		switch {
		case left <= 0:
			v := report(TypeCertificateExpiring, loc,
				fmt.Sprintf("The certificate expired on %s.", cert.NotAfter.UTC().Format(time.DateOnly)))
			v.Severity = SeverityCritical
			v.Title = "TLS certificate expired"
			out = append(out, v)
		case left < certificateWarning:
			out = append(out, report(TypeCertificateExpiring, loc,
				fmt.Sprintf("The certificate expires on %s.", cert.NotAfter.UTC().Format(time.DateOnly))))
		}
	}
	return out
}

var versionPattern = regexp.MustCompile(`\d+(\.\d+)*`)

// disclosureHeaders name the framework behind the server.
var disclosureHeaders = []string{"X-Powered-By", "X-AspNet-Version", "X-AspNetMvc-Version", "X-Generator"}

// checkBanner reports a versioned Server header and framework headers.
func checkBanner(p *page) []Vulnerability {
	var out []Vulnerability
	if server := p.header.Get("Server"); server != "" && versionPattern.MatchString(server) {
		out = append(out, report(TypeServerBanner, p.origin()+"#Server",
			fmt.Sprintf("The Server header discloses %q.", server)))
	}
	for _, h := range disclosureHeaders {
		if v := p.header.Get(h); v != "" {
			out = append(out, report(TypeServerBanner, p.origin()+"#"+h,
				fmt.Sprintf("The %s header discloses %q.", h, v)))
		}
	}
	return out
}

var verboseErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`goroutine \d+ \[[a-z ]+\]:`),
	regexp.MustCompile(`Traceback \(most recent call last\)`),
	regexp.MustCompile(`Exception in thread "`),
	regexp.MustCompile(`(?m)^\s*at [\w$.<>]+\([\w$]+\.java:\d+\)`),
	regexp.MustCompile(`(?m)^\s*at .+ \(.+\.[cm]?js:\d+:\d+\)`),
	regexp.MustCompile(`(?i)<b>(fatal error|parse error|warning)</b>:.+ on line <b>\d+</b>`),
	regexp.MustCompile(`Whitelabel Error Page`),
	regexp.MustCompile(`Django Version:`),
	regexp.MustCompile(`Werkzeug Debugger`),
	regexp.MustCompile(`Microsoft \.NET Framework Version:`),
	regexp.MustCompile(`Symfony\\Component\\`),
	regexp.MustCompile(`<pre>Cannot GET /`),
}

// checkVerboseErrors requests a path that cannot exist and looks for stack
// traces or framework error pages in the response.
func checkVerboseErrors(ctx context.Context, f *fetcher, root *page) ([]Vulnerability, error) {
	missing, err := url.Parse(root.origin() + "/edgeguard-missing-" + uuid.NewString()[:8])
	if err != nil {
		return nil, err
	}
	p, err := f.get(ctx, missing, nil)
	if err != nil {
		return nil, err
	}
	for _, re := range verboseErrorPatterns {
		if m := re.Find(p.body); m != nil {
			return []Vulnerability{report(TypeVerboseErrors, root.origin(),
				fmt.Sprintf("A %d response to an unknown path contains %q.", p.status, truncate(string(m), 80)))}, nil
		}
	}
	return nil, nil
}

// corsTestOrigin is sent as Origin; no real site uses the .invalid TLD.
const corsTestOrigin = "https://edgeguard-cors-check.invalid"

// checkCORS reports wildcard origins with credentials and reflected origins.
func checkCORS(ctx context.Context, f *fetcher, root *page) ([]Vulnerability, error) {
	p, err := f.get(ctx, root.url, http.Header{"Origin": {corsTestOrigin}})
	if err != nil {
		return nil, err
	}
	allow := strings.TrimSpace(p.header.Get("Access-Control-Allow-Origin"))
	creds := strings.EqualFold(strings.TrimSpace(p.header.Get("Access-Control-Allow-Credentials")), "true")

	switch {
	case allow == "*" && creds:
		return []Vulnerability{report(TypePermissiveCORS, root.origin(),
			"Access-Control-Allow-Origin is * while credentials are allowed.")}, nil
	case allow == corsTestOrigin:
		v := report(TypePermissiveCORS, root.origin(), "The server reflects arbitrary Origin values.")
		if creds {
			v.Description = "The server reflects arbitrary Origin values and allows credentials."
		} else {
			v.Severity = SeverityMedium
		}
		return []Vulnerability{v}, nil
	}
	return nil, nil
}

// sensitivePath is one aggressive request and the body signature that
// confirms the file is really served.
type sensitivePath struct {
	path      string
	signature *regexp.Regexp
	severity  Severity
}

var sensitivePaths = []sensitivePath{
	{"/.git/config", regexp.MustCompile(`\[core\]`), SeverityHigh},
	{"/.env", regexp.MustCompile(`(?m)^[A-Z][A-Z0-9_]*=`), SeverityCritical},
	{"/server-status", regexp.MustCompile(`Apache Server Status|Server uptime`), SeverityMedium},
}

// checkSensitiveFiles requests well-known paths. Requests that fail are joined
// into the returned error; confirmed exposures are still returned.
func checkSensitiveFiles(ctx context.Context, f *fetcher, root *page) ([]Vulnerability, error) {
	var (
		out  []Vulnerability
		errs []error
	)
	for _, sp := range sensitivePaths {
		u, err := url.Parse(root.origin() + sp.path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p, err := f.get(ctx, u, nil)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if p.status != http.StatusOK || !sp.signature.Match(p.body) {
			continue
		}
		v := report(TypeSensitiveFile, u.String(), fmt.Sprintf("%s is publicly readable.", sp.path))
		v.Severity = sp.severity
		out = append(out, v)
	}
	return out, errors.Join(errs...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
