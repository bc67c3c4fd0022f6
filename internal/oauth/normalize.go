// normalize.go -- Maps provider profile payloads onto one canonical Profile.
package oauth

import (
	"html"
	"net/url"
	"path"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Profile is the provider-agnostic profile handed to the UI form.
// Handle is always present (empty when the provider gave none); the rest are optional.
type Profile struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Bio         string `json:"bio,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	ProfileURL  string `json:"profileUrl,omitempty"`
}

// textPolicy strips all markup; bios and names are rendered as plain text by the form.
// bluemonday policies are safe for concurrent use.
var textPolicy = bluemonday.StrictPolicy()

// Normalize maps raw onto a Profile. Pure: the same input always yields the same output.
// Field precedence: newer/more specific names first, then legacy names, then empty.
// domain is the provider's profile host, used to derive ProfileURL from the handle.
func Normalize(raw *RawProfile, domain string) Profile {
	if raw == nil {
		return Profile{}
	}

	handle := strings.TrimPrefix(firstNonEmpty(raw.Username, raw.ScreenName, raw.PreferredUsername), "@")

	return Profile{
		Handle:      handle,
		DisplayName: plainText(raw.Name),
		Bio:         plainText(raw.Description),
		AvatarURL:   webURL(firstNonEmpty(raw.ProfileImageURLHTTPS, raw.ProfileImageURL, raw.Picture)),
		ProfileURL:  profileURL(handle, raw.Profile, domain),
	}
}

// firstNonEmpty returns the first value that is not blank, trimmed.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// plainText drops any markup and decodes entities so the form shows what the user typed.
func plainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// webURL keeps s only if it is an absolute http(s) URL.
func webURL(s string) string {
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "https" && u.Scheme != "http") {
		return ""
	}
	return s
}

// profileURL prefers the provider's canonical URL when its last path segment is the handle,
// otherwise derives https://<domain>/<handle>. Empty handle means no URL.
func profileURL(handle, canonical, domain string) string {
	if handle == "" {
		return ""
	}
	if c := webURL(strings.TrimSpace(canonical)); c != "" {
		u, _ := url.Parse(c)
		if strings.EqualFold(path.Base(strings.TrimSuffix(u.Path, "/")), handle) {
			return c
		}
	}
	if domain == "" {
		return ""
	}
	return "https://" + domain + "/" + url.PathEscape(handle)
}
