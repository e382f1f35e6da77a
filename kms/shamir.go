package kms

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/vault/shamir"
	"go.uber.org/atomic"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
)

// ShamirEscrow keeps an authority's SystemKeys file split into Shamir shares
// held by administrators. The keys are never stored by the server: it starts
// locked and collects signed shares until the threshold is met, then
// reconstructs the keys in memory.
type ShamirEscrow struct {
	mu             sync.Mutex
	threshold      int
	receivedShares map[int][]byte

	// Allowed admin public keys by hex SHA-256 fingerprint of their PEM.
	adminPubKeys map[string][]byte

	unlocked    atomic.Bool
	translators *Translators

	log *slog.Logger
}

// ShamirConfig contains configuration parameters for the escrow.
type ShamirConfig struct {
	// Threshold is the minimum number of shares required to reconstruct the keys
	Threshold int
	// AdminPubKeys is the list of authorized administrator public keys in PEM format
	AdminPubKeys [][]byte
}

func (c ShamirConfig) validate() error {
	if c.Threshold < 2 {
		return errors.New("threshold must be at least 2")
	}
	if len(c.AdminPubKeys) < c.Threshold {
		return errors.New("total shares must be at least equal to threshold")
	}
	return nil
}

func adminFingerprints(adminPubKeys [][]byte) (map[string][]byte, error) {
	fingerprints := make(map[string][]byte, len(adminPubKeys))
	for _, publicKeyPEM := range adminPubKeys {
		if _, err := cryptoutils.NewPublicKeyPEM(publicKeyPEM); err != nil {
			return nil, fmt.Errorf("invalid admin pubkey %s: %w", publicKeyPEM, err)
		}
		fingerprints[AdminFingerprint(publicKeyPEM)] = publicKeyPEM
	}
	return fingerprints, nil
}

// AdminFingerprint identifies an admin by the SHA-256 of their public key PEM.
func AdminFingerprint(publicKeyPEM []byte) string {
	fingerprint := sha256.Sum256(publicKeyPEM)
	return hex.EncodeToString(fingerprint[:])
}

// EncryptedShare is one admin's share, encrypted to their public key.
type EncryptedShare struct {
	Index            int    `json:"index"`
	AdminFingerprint string `json:"adminFingerprint"`
	EncryptedShare   []byte `json:"encryptedShare"`
}

// SplitSystemKeys splits a serialized SystemKeys file into one share per
// admin, each encrypted to that admin's public key.
func SplitSystemKeys(systemKeys []byte, config ShamirConfig) ([]EncryptedShare, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if _, err := ParseSystemKeys(systemKeys); err != nil {
		return nil, err
	}
	if _, err := adminFingerprints(config.AdminPubKeys); err != nil {
		return nil, err
	}

	shares, err := shamir.Split(systemKeys, len(config.AdminPubKeys), config.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split system keys: %w", err)
	}

	encrypted := make([]EncryptedShare, 0, len(shares))
	for i, share := range shares {
		ciphertext, err := cryptoutils.EncryptWithPublicKey(config.AdminPubKeys[i], share)
		wipeBytes(share)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt share %d: %w", i, err)
		}
		encrypted = append(encrypted, EncryptedShare{
			Index:            i,
			AdminFingerprint: AdminFingerprint(config.AdminPubKeys[i]),
			EncryptedShare:   ciphertext,
		})
	}
	return encrypted, nil
}

// NewShamirEscrow creates a locked escrow.
func NewShamirEscrow(config ShamirConfig, log *slog.Logger) (*ShamirEscrow, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	fingerprints, err := adminFingerprints(config.AdminPubKeys)
	if err != nil {
		return nil, err
	}

	return &ShamirEscrow{
		threshold:      config.Threshold,
		receivedShares: make(map[int][]byte),
		adminPubKeys:   fingerprints,
		log:            log,
	}, nil
}

// SubmitShare submits a key share with cryptographic verification.
// Each share must be signed by the administrator's private key.
// When the threshold number of valid shares is received, the system keys
// are reconstructed and the escrow unlocks.
func (k *ShamirEscrow) SubmitShare(shareIndex int, share, signature, adminPubKeyPEM []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.unlocked.Load() {
		return errors.New("system keys are already unlocked")
	}

	pubkeyForFingerprint, found := k.adminPubKeys[AdminFingerprint(adminPubKeyPEM)]
	if !found {
		return errors.New("unregistered admin public key")
	}
	if !bytes.Equal(pubkeyForFingerprint, adminPubKeyPEM) {
		return errors.New("invalid pubkey passed for a matching fingerprint")
	}

	block, _ := pem.Decode(adminPubKeyPEM)
	if block == nil {
		return errors.New("failed to decode admin public key PEM")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse admin public key: %w", err)
	}

	digest := shareDigest(shareIndex, share)
	switch key := pubKey.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest, signature) {
			return errors.New("invalid signature")
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(key, digest, signature) {
			return errors.New("invalid signature")
		}
	default:
		return errors.New("admin public key is neither ECDSA nor ED25519 key")
	}

	k.receivedShares[shareIndex] = append([]byte(nil), share...)
	k.log.Info("accepted key share", slog.Int("index", shareIndex), slog.Int("received", len(k.receivedShares)), slog.Int("threshold", k.threshold))

	return k.tryReconstruct()
}

// tryReconstruct combines the received shares once the threshold is met.
// Shares are wiped from memory afterwards, whether or not reconstruction works.
func (k *ShamirEscrow) tryReconstruct() error {
	if len(k.receivedShares) < k.threshold {
		return nil
	}

	shares := make([][]byte, 0, len(k.receivedShares))
	for _, share := range k.receivedShares {
		shares = append(shares, share)
	}
	defer func() {
		for i := range k.receivedShares {
			wipeBytes(k.receivedShares[i])
		}
		k.receivedShares = make(map[int][]byte)
	}()

	combined, err := shamir.Combine(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct system keys: %w", err)
	}
	defer wipeBytes(combined)

	keys, err := ParseSystemKeys(combined)
	if err != nil {
		return fmt.Errorf("reconstructed system keys are invalid: %w", err)
	}
	translators, err := NewTranslators(keys)
	if err != nil {
		return err
	}

	k.translators = translators
	k.unlocked.Store(true)
	k.log.Info("system keys unlocked")
	return nil
}

// IsUnlocked reports whether the system keys were reconstructed.
func (k *ShamirEscrow) IsUnlocked() bool {
	return k.unlocked.Load()
}

// Translators returns interfaces.ErrLocked until the escrow is unlocked.
func (k *ShamirEscrow) Translators() (*Translators, error) {
	if !k.unlocked.Load() {
		return nil, fmt.Errorf("%w: need more shares to unlock", interfaces.ErrLocked)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.translators, nil
}

// Securely wipe data from memory
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}

// shareDigest binds the share to its index so a signed share cannot be replayed under another index.
func shareDigest(shareIndex int, share []byte) []byte {
	h := sha256.New()
	fmt.Fprintf(h, "pep-share-%d:", shareIndex)
	h.Write(share)
	return h.Sum(nil)
}

// SignShare generates the signature an administrator submits with a share.
func SignShare(shareIndex int, share []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	return ecdsa.SignASN1(rand.Reader, privateKey, shareDigest(shareIndex, share))
}
