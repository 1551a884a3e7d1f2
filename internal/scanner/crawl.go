// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package scanner

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/tomtom215/edgeguard/internal/logging"
)

// page is one fetched response, trimmed to what the checks inspect.
type page struct {
	url     *url.URL
	status  int
	header  http.Header
	cookies []*http.Cookie
	tls     *tls.ConnectionState
	body    []byte
}

func (p *page) isHTML() bool {
	return strings.Contains(strings.ToLower(p.header.Get("Content-Type")), "html")
}

// origin returns scheme://host of the page.
func (p *page) origin() string {
	return p.url.Scheme + "://" + p.url.Host
}

// location returns the page URL without query or fragment.
func (p *page) location() string {
	u := *p.url
	u.RawQuery = ""
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// fetcher issues paced GET requests for one scan.
type fetcher struct {
	client    *http.Client
	hosts     *hostGuards
	userAgent string
	maxBody   int64
}

func (f *fetcher) get(ctx context.Context, u *url.URL, header http.Header) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", u, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.hosts.do(ctx, f.client, req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}

	final := u
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL
	}
	return &page{
		url:     final,
		status:  resp.StatusCode,
		header:  resp.Header,
		cookies: resp.Cookies(),
		tls:     resp.TLS,
		body:    body,
	}, nil
}

// crawl fetches start and then follows same-host links breadth first for
// depth levels, stopping at maxPages. Only the start page failing is an
// error; broken links are skipped.
func (f *fetcher) crawl(ctx context.Context, start *url.URL, depth, maxPages int) ([]*page, error) {
	root, err := f.get(ctx, start, nil)
	if err != nil {
		return nil, err
	}

	pages := []*page{root}
	seen := map[string]bool{canonical(start): true, canonical(root.url): true}
	frontier := []*page{root}

	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []*page
		for _, p := range frontier {
			if !p.isHTML() {
				continue
			}
			for _, link := range extractLinks(p.url, p.body) {
				key := canonical(link)
				if seen[key] || link.Host != root.url.Host {
					continue
				}
				if len(pages) >= maxPages {
					return pages, nil
				}
				seen[key] = true

				child, err := f.get(ctx, link, nil)
				if err != nil {
					if ctx.Err() != nil {
						return pages, nil
					}
					logging.Debug().Err(err).Str("url", link.String()).Msg("Skipping unreachable link")
					continue
				}
				pages = append(pages, child)
				next = append(next, child)
			}
		}
		frontier = next
	}
	return pages, nil
}

// extractLinks returns the absolute http(s) targets of every <a href> in body.
func extractLinks(base *url.URL, body []byte) []*url.URL {
	var links []*url.URL
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if u := resolveLink(base, string(val)); u != nil {
						links = append(links, u)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

func resolveLink(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u
}

func canonical(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}
