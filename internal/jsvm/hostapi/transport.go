package hostapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"

	"connkit/internal/jsvmerr"
)

// Transport performs a real network call for api.fetch.
type Transport interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// NetworkTransport is the default pass-through Transport.
type NetworkTransport struct {
	client    *resty.Client
	allowlist []string
}

// NewNetworkTransport creates a resty-backed transport.
func NewNetworkTransport(cfg Config) *NetworkTransport {
	version := cfg.SDKVersion
	if version == "" {
		version = SDKVersion
	}

	client := resty.New().
		SetHeader("User-Agent", "connkit/"+version)
	if cfg.FetchTimeout > 0 {
		client.SetTimeout(cfg.FetchTimeout)
	}

	return &NetworkTransport{
		client:    client,
		allowlist: cfg.HTTPAllowlist,
	}
}

// Do implements Transport.
func (t *NetworkTransport) Do(ctx context.Context, req Request) (*Response, error) {
	if !isURLAllowed(req.URL, t.allowlist) {
		return nil, &jsvmerr.URLNotAllowedError{URL: req.URL}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r := t.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers)
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", req.Method, req.URL, err)
	}

	headers := make(map[string]string, len(resp.Header()))
	for k, v := range resp.Header() {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = v[0]
		}
	}

	finalURL := req.URL
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		finalURL = resp.RawResponse.Request.URL.String()
	}

	return &Response{
		Status:     resp.StatusCode(),
		StatusText: http.StatusText(resp.StatusCode()),
		URL:        finalURL,
		Headers:    headers,
		Body:       resp.Body(),
	}, nil
}

// isURLAllowed reports whether rawURL's host is an allowlist entry or a
// subdomain of one. Entries may be bare hosts or full URLs. An empty allowlist
// allows everything.
func isURLAllowed(rawURL string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	for _, entry := range allowlist {
		allowed := allowedHost(entry)
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// allowedHost normalises an allowlist entry to a lowercase host name.
func allowedHost(entry string) string {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "://") {
		if u, err := url.Parse(entry); err == nil {
			return strings.ToLower(u.Hostname())
		}
		return ""
	}
	entry = strings.TrimPrefix(entry, ".")
	if h, _, ok := strings.Cut(entry, "/"); ok {
		entry = h
	}
	if u, err := url.Parse("//" + entry); err == nil {
		return strings.ToLower(u.Hostname())
	}
	return strings.ToLower(entry)
}
