package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

// newFakeIssuer serves a discovery document, token endpoint and userinfo endpoint.
// userinfoStatus lets tests force an error response.
func newFakeIssuer(t *testing.T, withUserInfo bool, userinfoStatus *int) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{
			"issuer":                                srv.URL,
			"authorization_endpoint":                srv.URL + "/authorize",
			"token_endpoint":                        srv.URL + "/token",
			"jwks_uri":                              srv.URL + "/jwks",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		}
		if withUserInfo {
			doc["userinfo_endpoint"] = srv.URL + "/userinfo"
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("code_verifier") == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"oidc-at","token_type":"Bearer"}`))
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if userinfoStatus != nil && *userinfoStatus != http.StatusOK {
			w.WriteHeader(*userinfoStatus)
			return
		}
		if r.Header.Get("Authorization") != "Bearer oidc-at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sub":"u1","preferred_username":"alice","name":"Alice","picture":"https://cdn.example/alice.png"}`))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// --- NewOIDCProvider ---

func TestNewOIDCProvider(t *testing.T) {
	t.Run("discovers endpoints and defaults", func(t *testing.T) {
		srv := newFakeIssuer(t, true, nil)

		p, err := NewOIDCProvider(context.Background(), OIDCConfig{
			Issuer:      srv.URL,
			ClientID:    "cid",
			RedirectURL: "https://app.example/auth/callback",
			Timeout:     time.Second,
		})
		if err != nil {
			t.Fatalf("NewOIDCProvider failed: %v", err)
		}
		if p.Name() != "oidc" {
			t.Errorf("Name: expected oidc, got %q", p.Name())
		}
		u, _ := url.Parse(srv.URL)
		if p.ProfileDomain() != u.Host {
			t.Errorf("ProfileDomain: expected %q, got %q", u.Host, p.ProfileDomain())
		}

		authURL, _ := url.Parse(p.AuthCodeURL("st", "ch", nil))
		if authURL.Path != "/authorize" {
			t.Errorf("auth path: expected /authorize, got %q", authURL.Path)
		}
		if got := authURL.Query().Get("scope"); got != "openid profile" {
			t.Errorf("scope: expected %q, got %q", "openid profile", got)
		}
		if got := authURL.Query().Get("code_challenge_method"); got != "S256" {
			t.Errorf("code_challenge_method: expected S256, got %q", got)
		}
	})

	t.Run("missing userinfo endpoint is an error", func(t *testing.T) {
		srv := newFakeIssuer(t, false, nil)

		if _, err := NewOIDCProvider(context.Background(), OIDCConfig{Issuer: srv.URL, Timeout: time.Second}); err == nil {
			t.Error("expected error when issuer has no userinfo endpoint")
		}
	})

	t.Run("unreachable issuer is an error", func(t *testing.T) {
		srv := newFakeIssuer(t, true, nil)
		issuer := srv.URL
		srv.Close()

		if _, err := NewOIDCProvider(context.Background(), OIDCConfig{Issuer: issuer, Timeout: time.Second}); err == nil {
			t.Error("expected error for unreachable issuer")
		}
	})
}

// --- Exchange + FetchProfile ---

func TestOIDCProviderFlow(t *testing.T) {
	t.Run("exchange then userinfo", func(t *testing.T) {
		srv := newFakeIssuer(t, true, nil)
		p, err := NewOIDCProvider(context.Background(), OIDCConfig{Name: "acme", Issuer: srv.URL, ClientID: "cid", ClientSecret: "sec", Timeout: time.Second})
		if err != nil {
			t.Fatalf("NewOIDCProvider failed: %v", err)
		}

		tok, err := p.Exchange(context.Background(), "code", "verifier", "https://app.example/auth/callback")
		if err != nil {
			t.Fatalf("Exchange failed: %v", err)
		}
		raw, err := p.FetchProfile(context.Background(), tok)
		if err != nil {
			t.Fatalf("FetchProfile failed: %v", err)
		}
		got := Normalize(raw, p.ProfileDomain())
		if got.Handle != "alice" || got.DisplayName != "Alice" || got.AvatarURL != "https://cdn.example/alice.png" {
			t.Errorf("unexpected profile: %+v", got)
		}
	})

	t.Run("missing verifier is rejected by issuer", func(t *testing.T) {
		srv := newFakeIssuer(t, true, nil)
		p, err := NewOIDCProvider(context.Background(), OIDCConfig{Issuer: srv.URL, ClientID: "cid", Timeout: time.Second})
		if err != nil {
			t.Fatalf("NewOIDCProvider failed: %v", err)
		}

		_, err = p.Exchange(context.Background(), "code", "", "")
		if !errors.Is(err, ErrTokenExchangeFailed) {
			t.Errorf("expected ErrTokenExchangeFailed, got %v", err)
		}
	})

	t.Run("userinfo 429 is rate limited", func(t *testing.T) {
		status := http.StatusTooManyRequests
		srv := newFakeIssuer(t, true, &status)
		p, err := NewOIDCProvider(context.Background(), OIDCConfig{Issuer: srv.URL, Timeout: time.Second})
		if err != nil {
			t.Fatalf("NewOIDCProvider failed: %v", err)
		}

		_, err = p.FetchProfile(context.Background(), &Token{AccessToken: "oidc-at"})
		if !errors.Is(err, ErrRateLimited) {
			t.Errorf("expected ErrRateLimited, got %v", err)
		}
	})
}
