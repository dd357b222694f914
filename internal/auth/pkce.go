package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	// CodeVerifierLength is the length of generated code verifiers.
	// Spotify accepts 43-128 characters.
	CodeVerifierLength = 64

	// ChallengeMethodS256 is the only PKCE method we send.
	ChallengeMethodS256 = "S256"

	verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"
)

// PKCE holds the secrets for a single authorization attempt.
type PKCE struct {
	Verifier  string
	Challenge string
	State     string
}

// NewPKCE generates a fresh verifier, its S256 challenge and an anti-forgery state token.
func NewPKCE() (*PKCE, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}

	return &PKCE{
		Verifier:  verifier,
		Challenge: GenerateCodeChallenge(verifier),
		State:     uuid.NewString(),
	}, nil
}

// GenerateCodeVerifier returns a random verifier drawn uniformly from the
// RFC 7636 unreserved character set.
func GenerateCodeVerifier() (string, error) {
	limit := big.NewInt(int64(len(verifierAlphabet)))
	b := make([]byte, CodeVerifierLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("reading random source: %w", err)
		}
		b[i] = verifierAlphabet[n.Int64()]
	}
	return string(b), nil
}

// GenerateCodeChallenge computes base64url(SHA-256(verifier)) without padding.
func GenerateCodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
