// Package upstream implements the outbound relay: it rewrites an inbound
// request to carry a leased credential and replays it against the
// credential's base URL.
package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ericfisherdev/keyrelay/internal/domain/model"
	"github.com/ericfisherdev/keyrelay/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UpstreamForwarder = (*Forwarder)(nil)

// strippedHeaders are removed before forwarding: RFC 7230 hop-by-hop
// headers plus the proxy-identifying set that would leak the inbound hop to
// the upstream. Host is handled by the outbound URL, never copied through.
var strippedHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
	"X-Forwarded-Server",
	"X-Real-Ip",
	"X-Scheme",
}

// Forwarder relays requests over a shared http.Client. Timeouts are the
// client's concern; the forwarder itself imposes none beyond the inbound
// request context.
type Forwarder struct {
	client *http.Client
}

// NewForwarder creates a Forwarder. A nil client gets a default that does
// not follow redirects, so 3xx responses pass through verbatim.
func NewForwarder(client *http.Client) *Forwarder {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Forwarder{client: client}
}

// Forward issues the outbound call for cred and returns the upstream
// response untouched. The outbound URL is cred.BaseURL plus the inbound
// path and query; the inbound body streams through unread, and the
// authorization header is replaced with the credential's secret.
func (f *Forwarder) Forward(ctx context.Context, cred *model.Credential, inbound *http.Request) (*http.Response, error) {
	target, err := url.Parse(cred.BaseURL + inbound.URL.RequestURI())
	if err != nil {
		return nil, fmt.Errorf("build upstream url: %w", err)
	}

	// A server request always has a non-nil Body; drop it when it is known
	// empty so the outbound call is not sent chunked.
	body := inbound.Body
	if inbound.ContentLength == 0 {
		body = nil
	}

	out, err := http.NewRequestWithContext(ctx, inbound.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	out.ContentLength = inbound.ContentLength

	out.Header = inbound.Header.Clone()
	for _, h := range strippedHeaders {
		out.Header.Del(h)
	}
	out.Header.Set("Authorization", "Bearer "+cred.Secret)

	resp, err := f.client.Do(out)
	if err != nil {
		return nil, fmt.Errorf("call upstream: %w", err)
	}
	return resp, nil
}
