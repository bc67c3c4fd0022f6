// twitter_legacy.go -- Twitter OAuth 1.0a (HMAC-SHA1) provider.
//
// Kept for apps whose API keys predate OAuth 2.0 access. The request token plays the role
// of the correlation key and its secret the role of the PKCE verifier.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

const defaultTwitterLegacyBaseURL = "https://api.twitter.com"

// TwitterLegacyConfig configures TwitterLegacyProvider.
// BaseURL defaults to the public API host and is overridable for tests.
type TwitterLegacyConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string

	BaseURL       string
	ProfileDomain string
	Timeout       time.Duration
}

// TwitterLegacyProvider implements TokenProvider.
type TwitterLegacyProvider struct {
	config     *oauth1.Config
	verifyURL  string
	domain     string
	httpClient *http.Client
	timeout    time.Duration
}

// NewTwitterLegacyProvider builds a TwitterLegacyProvider. No network calls are made.
func NewTwitterLegacyProvider(cfg TwitterLegacyConfig) *TwitterLegacyProvider {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultTwitterLegacyBaseURL
	}
	if cfg.ProfileDomain == "" {
		cfg.ProfileDomain = defaultTwitterProfileDomain
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := newHTTPClient(cfg.Timeout)
	return &TwitterLegacyProvider{
		config: &oauth1.Config{
			ConsumerKey:    cfg.ConsumerKey,
			ConsumerSecret: cfg.ConsumerSecret,
			CallbackURL:    cfg.CallbackURL,
			Endpoint: oauth1.Endpoint{
				RequestTokenURL: base + "/oauth/request_token",
				AuthorizeURL:    base + "/oauth/authenticate",
				AccessTokenURL:  base + "/oauth/access_token",
			},
			HTTPClient: client,
		},
		verifyURL:  base + "/1.1/account/verify_credentials.json",
		domain:     cfg.ProfileDomain,
		httpClient: client,
		timeout:    cfg.Timeout,
	}
}

// configFor returns a copy of the oauth1 config whose token requests are bound to ctx.
// oauth1's RequestToken and AccessToken take no context of their own.
func (p *TwitterLegacyProvider) configFor(ctx context.Context) *oauth1.Config {
	c := *p.config
	c.HTTPClient = clientWithContext(ctx, p.httpClient)
	return &c
}

// Name returns "twitter-legacy".
func (p *TwitterLegacyProvider) Name() string { return "twitter-legacy" }

// ProfileDomain returns the host profile URLs are derived on.
func (p *TwitterLegacyProvider) ProfileDomain() string { return p.domain }

// RequestToken obtains a request token + secret with oauth_callback signed in.
func (p *TwitterLegacyProvider) RequestToken(ctx context.Context) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	token, secret, err := p.configFor(ctx).RequestToken()
	if err != nil {
		return "", "", fmt.Errorf("obtaining request token: %w", err)
	}
	return token, secret, nil
}

// AuthorizeURL returns the authenticate page URL for requestToken.
func (p *TwitterLegacyProvider) AuthorizeURL(requestToken string) (string, error) {
	u, err := p.config.AuthorizationURL(requestToken)
	if err != nil {
		return "", fmt.Errorf("building authorize url: %w", err)
	}
	return u.String(), nil
}

// AccessToken trades the authorized request token for token credentials.
func (p *TwitterLegacyProvider) AccessToken(ctx context.Context, requestToken, requestSecret, verifier string) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	token, secret, err := p.configFor(ctx).AccessToken(requestToken, requestSecret, verifier)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TokenExchangeError{ProviderError: "timeout", Err: err}
		}
		return nil, &TokenExchangeError{ProviderError: "access token request rejected", Err: err}
	}
	return &Token{AccessToken: token, Secret: secret, TokenType: "OAuth"}, nil
}

// FetchProfile GETs account/verify_credentials signed with the access token credentials.
func (p *TwitterLegacyProvider) FetchProfile(ctx context.Context, tok *Token) (*RawProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client := p.config.Client(context.WithValue(ctx, oauth1.HTTPClient, p.httpClient), oauth1.NewToken(tok.AccessToken, tok.Secret))

	var raw RawProfile
	if err := getJSON(ctx, client, p.verifyURL+"?skip_status=true", "", &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// compile-time interface check
var _ TokenProvider = (*TwitterLegacyProvider)(nil)
