// pkce.go -- PKCE verifier/challenge and state generation (RFC 7636).
package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// unreserved is the RFC 3986 unreserved character set, the only characters allowed in a verifier.
const unreserved = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const (
	// VerifierLength is the default code_verifier length.
	VerifierLength = 64
	// StateLength is the default state length.
	StateLength = 32

	minVerifierLength = 43
	maxVerifierLength = 128
)

// randReader is swapped in tests to simulate a broken entropy source.
var randReader io.Reader = rand.Reader

// GenerateVerifier returns a code_verifier of the given length drawn from the unreserved set.
// Length must be within 43..128.
func GenerateVerifier(length int) (string, error) {
	if length < minVerifierLength || length > maxVerifierLength {
		return "", fmt.Errorf("verifier length %d outside %d..%d", length, minVerifierLength, maxVerifierLength)
	}
	return randomString(length)
}

// GenerateState returns an opaque state value from the same alphabet and source as the verifier.
func GenerateState(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("state length %d must be positive", length)
	}
	return randomString(length)
}

// ValidVerifier reports whether v could have come from GenerateVerifier:
// right length, unreserved characters only.
func ValidVerifier(v string) bool {
	if len(v) < minVerifierLength || len(v) > maxVerifierLength {
		return false
	}
	for i := 0; i < len(v); i++ {
		if strings.IndexByte(unreserved, v[i]) < 0 {
			return false
		}
	}
	return true
}

// DeriveChallenge returns BASE64URL(SHA256(verifier)) with no padding.
func DeriveChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// randomString draws n characters from unreserved using rejection sampling,
// so every character is equally likely.
func randomString(n int) (string, error) {
	// Largest multiple of len(unreserved) that fits in a byte; bytes at or above it are discarded.
	limit := 256 - 256%len(unreserved)

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+1)
	for len(out) < n {
		if _, err := io.ReadFull(randReader, buf); err != nil {
			return "", fmt.Errorf("%w: %w", ErrEntropyUnavailable, err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, unreserved[int(b)%len(unreserved)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
