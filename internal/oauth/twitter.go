// twitter.go -- Twitter/X OAuth 2.0 authorization code + PKCE provider.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultTwitterAuthURL       = "https://twitter.com/i/oauth2/authorize"
	defaultTwitterTokenURL      = "https://api.twitter.com/2/oauth2/token"
	defaultTwitterProfileURL    = "https://api.twitter.com/2/users/me"
	defaultTwitterProfileDomain = "twitter.com"
)

// twitterUserFields are the users/me fields the profile form needs.
const twitterUserFields = "description,profile_image_url,name,username"

// TwitterConfig configures TwitterProvider. Endpoint URLs default to the public API;
// they are overridable for tests.
type TwitterConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	AuthURL       string
	TokenURL      string
	ProfileURL    string
	ProfileDomain string

	// Timeout bounds each outbound call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// TwitterProvider implements CodeProvider against the Twitter API v2.
// The client secret only ever leaves the process in the Basic auth header of the token request.
type TwitterProvider struct {
	config     *oauth2.Config
	profileURL string
	domain     string
	httpClient *http.Client
	timeout    time.Duration
}

// NewTwitterProvider builds a TwitterProvider. No network calls are made.
func NewTwitterProvider(cfg TwitterConfig) *TwitterProvider {
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultTwitterAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTwitterTokenURL
	}
	if cfg.ProfileURL == "" {
		cfg.ProfileURL = defaultTwitterProfileURL
	}
	if cfg.ProfileDomain == "" {
		cfg.ProfileDomain = defaultTwitterProfileDomain
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &TwitterProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		profileURL: cfg.ProfileURL,
		domain:     cfg.ProfileDomain,
		httpClient: newHTTPClient(cfg.Timeout),
		timeout:    cfg.Timeout,
	}
}

// Name returns "twitter".
func (p *TwitterProvider) Name() string { return "twitter" }

// ProfileDomain returns the host profile URLs are derived on.
func (p *TwitterProvider) ProfileDomain() string { return p.domain }

// RedirectURL returns the registered callback URL.
func (p *TwitterProvider) RedirectURL() string { return p.config.RedirectURL }

// DefaultScopes returns a copy of the configured scopes.
func (p *TwitterProvider) DefaultScopes() []string { return slices.Clone(p.config.Scopes) }

// AuthCodeURL builds the consent URL: response_type, client_id, redirect_uri, scope, state,
// code_challenge and code_challenge_method=S256.
func (p *TwitterProvider) AuthCodeURL(state, codeChallenge string, scopes []string) string {
	c := *p.config
	if len(scopes) > 0 {
		c.Scopes = scopes
	}
	return c.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades the code + verifier for a bearer token. Not retried.
func (p *TwitterProvider) Exchange(ctx context.Context, code, codeVerifier, redirectURL string) (*Token, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return exchangeCode(ctx, *p.config, p.httpClient, code, codeVerifier, redirectURL)
}

// FetchProfile GETs users/me with the bearer token.
// The API sometimes answers 200 with only an errors array; that counts as a failed fetch.
func (p *TwitterProvider) FetchProfile(ctx context.Context, tok *Token) (*RawProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	u := p.profileURL + "?" + url.Values{"user.fields": {twitterUserFields}}.Encode()

	var body struct {
		Data   RawProfile `json:"data"`
		Errors []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := getJSON(ctx, p.httpClient, u, "Bearer "+tok.AccessToken, &body); err != nil {
		return nil, err
	}
	if body.Data.Username == "" && len(body.Errors) > 0 {
		return nil, &ProfileFetchError{StatusCode: http.StatusOK, Err: errors.New(body.Errors[0].Title + ": " + body.Errors[0].Detail)}
	}
	return &body.Data, nil
}

// compile-time interface check
var _ CodeProvider = (*TwitterProvider)(nil)
