// http.go -- Outbound request helpers shared by all providers.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTimeout bounds every outbound provider call when the config leaves Timeout unset.
const DefaultTimeout = 5 * time.Second

// maxProfileBytes caps how much of a profile response is decoded.
const maxProfileBytes = 1 << 20

// newHTTPClient returns a client with a hard per-request timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// exchangeCode runs the authorization_code grant with PKCE against cfg's token endpoint.
// cfg.Endpoint.AuthStyle must be explicit; auto-detection would retry the request.
// client_id is sent in the body as well as in the Basic auth header.
func exchangeCode(ctx context.Context, cfg oauth2.Config, client *http.Client, code, verifier, redirectURL string) (*Token, error) {
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	tok, err := cfg.Exchange(ctx, code,
		oauth2.VerifierOption(verifier),
		oauth2.SetAuthURLParam("client_id", cfg.ClientID),
	)
	if err != nil {
		return nil, tokenExchangeError(err)
	}
	return &Token{AccessToken: tok.AccessToken, TokenType: tok.Type()}, nil
}

// tokenExchangeError converts an x/oauth2 error into a *TokenExchangeError.
func tokenExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		te := &TokenExchangeError{ProviderError: re.ErrorCode, Err: err}
		if re.Response != nil {
			te.StatusCode = re.Response.StatusCode
		}
		if te.ProviderError == "" {
			te.ProviderError = truncate(string(re.Body), 200)
		}
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TokenExchangeError{ProviderError: "timeout", Err: err}
	}
	return &TokenExchangeError{ProviderError: "request failed", Err: err}
}

// getJSON GETs rawURL and decodes a 2xx JSON body into out.
// authorization is sent as the Authorization header when non-empty.
// 429 becomes a *RateLimitError, everything else a *ProfileFetchError.
func getJSON(ctx context.Context, client *http.Client, rawURL, authorization string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &ProfileFetchError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &ProfileFetchError{Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: retryAfter(resp.Header, time.Now())}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &ProfileFetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", truncate(string(body), 200))}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(out); err != nil {
		return &ProfileFetchError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding profile: %w", err)}
	}
	return nil
}

// contextTransport binds every request it sends to ctx, so a cancelled or expired ctx
// aborts the connection. For client libraries that take no context.
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(r.WithContext(t.ctx))
}

// clientWithContext returns a copy of c whose requests are bound to ctx.
func clientWithContext(ctx context.Context, c *http.Client) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	cc := *c
	cc.Transport = contextTransport{ctx: ctx, base: base}
	return &cc
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
