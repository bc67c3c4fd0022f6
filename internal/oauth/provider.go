// provider.go -- OAuth provider interfaces and shared types.
//
// Two grant shapes are supported: OAuth 2.0 authorization code + PKCE (CodeProvider)
// and OAuth 1.0a request token + verifier (TokenProvider). Both end in FetchProfile.
package oauth

import "context"

// Token is the credential returned by a provider's token endpoint.
// Secret is only set by OAuth 1.0a providers, where it signs later requests.
type Token struct {
	AccessToken string
	Secret      string
	TokenType   string
}

// RawProfile is the union of the provider "current user" payload shapes we understand.
// Unknown fields are ignored; absent fields stay empty. Never trust it unnormalized.
type RawProfile struct {
	// Twitter API v2 users/me
	ID              string `json:"id"`
	Username        string `json:"username"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ProfileImageURL string `json:"profile_image_url"`

	// Twitter API v1.1 account/verify_credentials
	IDStr                string `json:"id_str"`
	ScreenName           string `json:"screen_name"`
	ProfileImageURLHTTPS string `json:"profile_image_url_https"`

	// OIDC userinfo
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Picture           string `json:"picture"`
	Profile           string `json:"profile"`
}

// Provider is the part every identity provider implements.
type Provider interface {
	// Name returns the provider identifier used in requests and stored on the session.
	Name() string

	// ProfileDomain is the host used to derive profile URLs, e.g. "twitter.com".
	ProfileDomain() string

	// FetchProfile reads the authenticated user's profile with the given token.
	// Returns ErrRateLimited on HTTP 429, ErrProfileFetchFailed on anything else.
	FetchProfile(ctx context.Context, tok *Token) (*RawProfile, error)
}

// CodeProvider is an OAuth 2.0 provider using the authorization code grant.
// PKCE (RFC 7636, S256) is required: callers pass the code_challenge to AuthCodeURL and the
// matching code_verifier to Exchange.
type CodeProvider interface {
	Provider

	// RedirectURL is the registered callback URL sent as redirect_uri.
	RedirectURL() string

	// DefaultScopes is used when the caller requests none.
	DefaultScopes() []string

	// AuthCodeURL returns the consent page URL with state and code_challenge embedded.
	AuthCodeURL(state, codeChallenge string, scopes []string) string

	// Exchange trades an authorization code for an access token. An empty redirectURL
	// means RedirectURL(). Returns a *TokenExchangeError on failure.
	Exchange(ctx context.Context, code, codeVerifier, redirectURL string) (*Token, error)
}

// TokenProvider is an OAuth 1.0a provider (request token, user authorization, access token).
type TokenProvider interface {
	Provider

	// RequestToken obtains temporary credentials; the secret must stay server-side.
	RequestToken(ctx context.Context) (token, secret string, err error)

	// AuthorizeURL returns the provider page the user is sent to for the given request token.
	AuthorizeURL(requestToken string) (string, error)

	// AccessToken trades the authorized request token and verifier for token credentials.
	AccessToken(ctx context.Context, requestToken, requestSecret, verifier string) (*Token, error)
}
