// oidc.go -- Generic OpenID Connect provider (discovery + code flow + userinfo).
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig configures OIDCProvider.
type OIDCConfig struct {
	Name         string // provider identifier, defaults to "oidc"
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// ProfileDomain defaults to the issuer host.
	ProfileDomain string
	Timeout       time.Duration
}

// OIDCProvider implements CodeProvider using OIDC discovery.
// The profile comes from the userinfo endpoint, read with the access token.
type OIDCProvider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	domain      string
	httpClient  *http.Client
	timeout     time.Duration
}

// NewOIDCProvider fetches the issuer's discovery document and builds the provider.
// Makes an outbound HTTP request at startup; returns an error if the issuer is unreachable
// or advertises no userinfo endpoint.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	if cfg.Name == "" {
		cfg.Name = "oidc"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile"}
	}
	client := newHTTPClient(cfg.Timeout)

	p, err := oidc.NewProvider(oidc.ClientContext(ctx, client), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%s oidc discovery: %w", cfg.Name, err)
	}
	if p.UserInfoEndpoint() == "" {
		return nil, fmt.Errorf("%s oidc discovery: issuer advertises no userinfo endpoint", cfg.Name)
	}

	if cfg.ProfileDomain == "" {
		if u, err := url.Parse(cfg.Issuer); err == nil {
			cfg.ProfileDomain = u.Host
		}
	}

	endpoint := p.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInHeader

	return &OIDCProvider{
		name: cfg.Name,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       cfg.Scopes,
		},
		userInfoURL: p.UserInfoEndpoint(),
		domain:      cfg.ProfileDomain,
		httpClient:  client,
		timeout:     cfg.Timeout,
	}, nil
}

// Name returns the configured provider name.
func (p *OIDCProvider) Name() string { return p.name }

// ProfileDomain returns the host profile URLs are derived on.
func (p *OIDCProvider) ProfileDomain() string { return p.domain }

// RedirectURL returns the registered callback URL.
func (p *OIDCProvider) RedirectURL() string { return p.config.RedirectURL }

// DefaultScopes returns a copy of the configured scopes.
func (p *OIDCProvider) DefaultScopes() []string { return slices.Clone(p.config.Scopes) }

// AuthCodeURL builds the consent page URL with state and PKCE S256 challenge embedded.
func (p *OIDCProvider) AuthCodeURL(state, codeChallenge string, scopes []string) string {
	c := *p.config
	if len(scopes) > 0 {
		c.Scopes = scopes
	}
	return c.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades an authorization code for an access token.
func (p *OIDCProvider) Exchange(ctx context.Context, code, codeVerifier, redirectURL string) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return exchangeCode(ctx, *p.config, p.httpClient, code, codeVerifier, redirectURL)
}

// FetchProfile reads the userinfo endpoint with the access token.
func (p *OIDCProvider) FetchProfile(ctx context.Context, tok *Token) (*RawProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var raw RawProfile
	if err := getJSON(ctx, p.httpClient, p.userInfoURL, "Bearer "+tok.AccessToken, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// compile-time interface check
var _ CodeProvider = (*OIDCProvider)(nil)
