package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ruteri/splitkey-pep/interfaces"
)

// ClockDrift is how far in the future an issue time may lie.
const ClockDrift = 60 * time.Second

// DefaultFileName is where enrollment clients keep their token.
const DefaultFileName = "OAuthToken.json"

const encodedMACLength = 43

// Token is an enrollment token issued by the auth server. It authorizes one
// subject in one user group to request a user certificate from the key server.
type Token struct {
	Subject   string
	Group     string
	IssuedAt  int64
	ExpiresAt int64

	serialized string
	data       []byte
	mac        []byte
}

type tokenClaims struct {
	Subject   string `json:"sub"`
	Group     string `json:"group"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// Generate creates a token for subject in group, authenticated with secret.
func Generate(secret []byte, subject, group string, issuedAt, expiresAt time.Time) (*Token, error) {
	data, err := json.Marshal(tokenClaims{
		Subject:   subject,
		Group:     group,
		IssuedAt:  issuedAt.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return nil, err
	}
	serialized := base64.RawURLEncoding.EncodeToString(data) + "." + base64.RawURLEncoding.EncodeToString(computeMAC(secret, data))
	return Parse(serialized)
}

// Parse decodes a serialized token without verifying it.
func Parse(serialized string) (*Token, error) {
	parts := strings.Split(serialized, ".")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: expected two parts", interfaces.ErrInvalidToken)
	}
	if len(parts[1]) != encodedMACLength {
		return nil, fmt.Errorf("%w: invalid MAC length", interfaces.ErrInvalidToken)
	}

	data, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidToken, err)
	}
	mac, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidToken, err)
	}

	var claims tokenClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Group == "" {
		return nil, fmt.Errorf("%w: missing subject or group", interfaces.ErrInvalidToken)
	}

	// Some issuers wrote the expiry in milliseconds.
	if claims.IssuedAt < 2_000_000_000 && claims.ExpiresAt > 10_000_000_000 {
		claims.ExpiresAt /= 1000
	}

	return &Token{
		Subject:    claims.Subject,
		Group:      claims.Group,
		IssuedAt:   claims.IssuedAt,
		ExpiresAt:  claims.ExpiresAt,
		serialized: serialized,
		data:       data,
		mac:        mac,
	}, nil
}

// String returns the serialized token.
func (t *Token) String() string {
	return t.serialized
}

// Identifier returns the identifier blocklist entries are matched against.
func (t *Token) Identifier() interfaces.TokenIdentifier {
	return interfaces.TokenIdentifier{
		Subject:       t.Subject,
		UserGroup:     t.Group,
		IssueDateTime: time.Unix(t.IssuedAt, 0).UTC(),
	}
}

// Verify checks the MAC, that the token was issued to subject in group, and
// that it is valid at now.
func (t *Token) Verify(secret []byte, subject, group string, now time.Time) error {
	if !hmac.Equal(computeMAC(secret, t.data), t.mac) {
		return fmt.Errorf("%w: MAC mismatch", interfaces.ErrInvalidToken)
	}
	if t.Subject != subject {
		return fmt.Errorf("%w: subject %q does not match %q", interfaces.ErrInvalidToken, t.Subject, subject)
	}
	if t.Group != group {
		return fmt.Errorf("%w: group %q does not match %q", interfaces.ErrInvalidToken, t.Group, group)
	}
	return t.verifyValidityPeriod(now)
}

func (t *Token) verifyValidityPeriod(now time.Time) error {
	if t.IssuedAt >= now.Add(ClockDrift).Unix() {
		return fmt.Errorf("%w: issued in the future", interfaces.ErrInvalidToken)
	}
	if t.ExpiresAt <= now.Unix() {
		return fmt.Errorf("%w: expired", interfaces.ErrInvalidToken)
	}
	return nil
}

func computeMAC(secret, data []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	return mac.Sum(nil)
}

type tokenFile struct {
	OAuthToken string `json:"OAuthToken"`
}

// ReadFile loads a token from a JSON file of the form {"OAuthToken": "..."}.
func ReadFile(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file tokenFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}
	return Parse(file.OAuthToken)
}

// WriteFile stores the token in the format ReadFile expects.
func (t *Token) WriteFile(path string) error {
	data, err := json.MarshalIndent(tokenFile{OAuthToken: t.serialized}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
