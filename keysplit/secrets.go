package keysplit

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/ruteri/splitkey-pep/interfaces"
)

// KeyFactorSecretSize is the length of an HMAC key factor secret.
const KeyFactorSecretSize = 64

// KeyFactorSecret is one authority's HMAC secret for one key split operation.
type KeyFactorSecret struct {
	key [KeyFactorSecretSize]byte
}

var zeroKeyFactorSecret [KeyFactorSecretSize]byte

// NewKeyFactorSecret copies a 64-byte secret. The all-zero value is rejected
// in constant time.
func NewKeyFactorSecret(raw []byte) (KeyFactorSecret, error) {
	if len(raw) != KeyFactorSecretSize {
		return KeyFactorSecret{}, fmt.Errorf("%w: key factor secret must be %d bytes, got %d", interfaces.ErrInvalidSecret, KeyFactorSecretSize, len(raw))
	}
	if subtle.ConstantTimeCompare(raw, zeroKeyFactorSecret[:]) == 1 {
		return KeyFactorSecret{}, fmt.Errorf("%w: key factor secret is zero", interfaces.ErrInvalidSecret)
	}
	var secret KeyFactorSecret
	copy(secret.key[:], raw)
	return secret, nil
}

// KeyFactorSecretFromHex decodes a hex encoded secret.
func KeyFactorSecretFromHex(s string) (KeyFactorSecret, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return KeyFactorSecret{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidSecret, err)
	}
	return NewKeyFactorSecret(raw)
}

// HMACKey exposes the secret to the key factor derivation.
func (s KeyFactorSecret) HMACKey() []byte {
	return s.key[:]
}

// IsSet reports whether the secret was constructed.
func (s KeyFactorSecret) IsSet() bool {
	return subtle.ConstantTimeCompare(s.key[:], zeroKeyFactorSecret[:]) == 0
}

func (s KeyFactorSecret) String() string {
	return "KeyFactorSecret(REDACTED)"
}

func (s KeyFactorSecret) GoString() string {
	return s.String()
}

func (s KeyFactorSecret) LogValue() slog.Value {
	return slog.StringValue("REDACTED")
}

// MasterPrivateKeyShare is one authority's share of a master private key.
type MasterPrivateKeyShare struct {
	scalar Scalar
}

// NewMasterPrivateKeyShare decodes a 32-byte big-endian scalar share. The
// zero scalar is rejected.
func NewMasterPrivateKeyShare(raw []byte) (MasterPrivateKeyShare, error) {
	scalar, err := ScalarFromBytes(raw)
	if err != nil {
		return MasterPrivateKeyShare{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidSecret, err)
	}
	return MasterPrivateKeyShareFromScalar(scalar)
}

// MasterPrivateKeyShareFromScalar wraps a nonzero scalar.
func MasterPrivateKeyShareFromScalar(scalar Scalar) (MasterPrivateKeyShare, error) {
	if scalar.IsZero() {
		return MasterPrivateKeyShare{}, fmt.Errorf("%w: master private key share is zero", interfaces.ErrInvalidSecret)
	}
	return MasterPrivateKeyShare{scalar: scalar}, nil
}

// MasterPrivateKeyShareFromHex decodes a hex encoded share.
func MasterPrivateKeyShareFromHex(s string) (MasterPrivateKeyShare, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return MasterPrivateKeyShare{}, fmt.Errorf("%w: %v", interfaces.ErrInvalidSecret, err)
	}
	return NewMasterPrivateKeyShare(raw)
}

// Scalar returns the share as a field element.
func (s MasterPrivateKeyShare) Scalar() Scalar {
	return s.scalar
}

// IsSet reports whether the share was constructed.
func (s MasterPrivateKeyShare) IsSet() bool {
	return !s.scalar.IsZero()
}

func (s MasterPrivateKeyShare) String() string {
	return "MasterPrivateKeyShare(REDACTED)"
}

func (s MasterPrivateKeyShare) GoString() string {
	return s.String()
}

func (s MasterPrivateKeyShare) LogValue() slog.Value {
	return slog.StringValue("REDACTED")
}
