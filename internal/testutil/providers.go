// providers.go
//
// Provider and metrics doubles for flow tests. No network.
package testutil

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MGallo-Code/tether/internal/oauth"
)

// MockCodeProvider implements oauth.CodeProvider.
// Exchange succeeds only for Code with the verifier whose challenge went into the last AuthCodeURL.
type MockCodeProvider struct {
	ProviderName string // defaults to "twitter"
	Domain       string // defaults to "twitter.com"
	Redirect     string // defaults to "https://tether.test/auth/callback"
	Scopes       []string

	// Code is the only authorization code Exchange accepts.
	Code string
	// Raw is returned by FetchProfile.
	Raw *oauth.RawProfile

	ExchangeErr error
	ProfileErr  error

	mu            sync.Mutex
	challenges    map[string]string // state -> challenge
	ExchangeCalls int
	ProfileCalls  int
	LastVerifier  string
	LastRedirect  string
}

func (m *MockCodeProvider) Name() string {
	if m.ProviderName == "" {
		return "twitter"
	}
	return m.ProviderName
}

func (m *MockCodeProvider) ProfileDomain() string {
	if m.Domain == "" {
		return "twitter.com"
	}
	return m.Domain
}

func (m *MockCodeProvider) RedirectURL() string {
	if m.Redirect == "" {
		return "https://tether.test/auth/callback"
	}
	return m.Redirect
}

func (m *MockCodeProvider) DefaultScopes() []string {
	if m.Scopes == nil {
		return []string{"tweet.read", "users.read"}
	}
	return m.Scopes
}

func (m *MockCodeProvider) AuthCodeURL(state, codeChallenge string, scopes []string) string {
	m.mu.Lock()
	if m.challenges == nil {
		m.challenges = make(map[string]string)
	}
	m.challenges[state] = codeChallenge
	m.mu.Unlock()

	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("redirect_uri", m.RedirectURL())
	v.Set("scope", strings.Join(scopes, " "))
	v.Set("state", state)
	v.Set("code_challenge", codeChallenge)
	v.Set("code_challenge_method", "S256")
	return "https://provider.test/authorize?" + v.Encode()
}

// ChallengeFor returns the code_challenge issued with state.
func (m *MockCodeProvider) ChallengeFor(state string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.challenges[state]
}

func (m *MockCodeProvider) Exchange(_ context.Context, code, verifier, redirectURL string) (*oauth.Token, error) {
	m.mu.Lock()
	m.ExchangeCalls++
	m.LastVerifier = verifier
	m.LastRedirect = redirectURL
	m.mu.Unlock()

	if m.ExchangeErr != nil {
		return nil, m.ExchangeErr
	}
	if m.Code != "" && code != m.Code {
		return nil, &oauth.TokenExchangeError{StatusCode: 400, ProviderError: "invalid_grant"}
	}
	return &oauth.Token{AccessToken: "access-" + code, TokenType: "bearer"}, nil
}

func (m *MockCodeProvider) FetchProfile(_ context.Context, tok *oauth.Token) (*oauth.RawProfile, error) {
	m.mu.Lock()
	m.ProfileCalls++
	m.mu.Unlock()
	if m.ProfileErr != nil {
		return nil, m.ProfileErr
	}
	if m.Raw != nil {
		return m.Raw, nil
	}
	return &oauth.RawProfile{ID: "42", Username: "alice", Name: "Alice"}, nil
}

// MockTokenProvider implements oauth.TokenProvider.
// RequestToken hands out Token/Secret; AccessToken requires that pair plus Verifier.
type MockTokenProvider struct {
	ProviderName string // defaults to "twitter-legacy"

	Token    string
	Secret   string
	Verifier string
	Raw      *oauth.RawProfile

	RequestErr error
	AccessErr  error
	ProfileErr error

	mu          sync.Mutex
	AccessCalls int
	LastSecret  string
}

func (m *MockTokenProvider) Name() string {
	if m.ProviderName == "" {
		return "twitter-legacy"
	}
	return m.ProviderName
}

func (m *MockTokenProvider) ProfileDomain() string { return "twitter.com" }

func (m *MockTokenProvider) RequestToken(context.Context) (string, string, error) {
	if m.RequestErr != nil {
		return "", "", m.RequestErr
	}
	return m.Token, m.Secret, nil
}

func (m *MockTokenProvider) AuthorizeURL(requestToken string) (string, error) {
	return "https://provider.test/oauth/authenticate?oauth_token=" + url.QueryEscape(requestToken), nil
}

func (m *MockTokenProvider) AccessToken(_ context.Context, requestToken, requestSecret, verifier string) (*oauth.Token, error) {
	m.mu.Lock()
	m.AccessCalls++
	m.LastSecret = requestSecret
	m.mu.Unlock()

	if m.AccessErr != nil {
		return nil, m.AccessErr
	}
	if requestToken != m.Token || requestSecret != m.Secret || verifier != m.Verifier {
		return nil, &oauth.TokenExchangeError{StatusCode: 401, ProviderError: "invalid verifier"}
	}
	return &oauth.Token{AccessToken: "at-" + requestToken, Secret: "as-" + requestSecret}, nil
}

func (m *MockTokenProvider) FetchProfile(context.Context, *oauth.Token) (*oauth.RawProfile, error) {
	if m.ProfileErr != nil {
		return nil, m.ProfileErr
	}
	if m.Raw != nil {
		return m.Raw, nil
	}
	return &oauth.RawProfile{IDStr: "7", ScreenName: "bob", Name: "Bob"}, nil
}

// MockRecorder implements metrics.Recorder by counting calls.
type MockRecorder struct {
	mu        sync.Mutex
	Started   map[string]int // provider/transport
	Completed map[string]int // provider
	Failed    map[string]int // reason
	Requests  map[string]int // provider/stage
}

func NewMockRecorder() *MockRecorder {
	return &MockRecorder{
		Started:   make(map[string]int),
		Completed: make(map[string]int),
		Failed:    make(map[string]int),
		Requests:  make(map[string]int),
	}
}

func (m *MockRecorder) AuthStarted(provider, transport string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started[provider+"/"+transport]++
}

func (m *MockRecorder) AuthCompleted(provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed[provider]++
}

func (m *MockRecorder) AuthFailed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failed[reason]++
}

func (m *MockRecorder) ProviderRequest(provider, stage string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests[provider+"/"+stage]++
}

// FailedCount returns how many failures were recorded under reason.
func (m *MockRecorder) FailedCount(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Failed[reason]
}
