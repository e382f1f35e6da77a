package keysplit

import (
	"fmt"

	"github.com/ruteri/splitkey-pep/interfaces"
)

// Domain separates the key factors of the two key split operations.
type Domain uint32

const (
	DomainPseudonym Domain = 1
	DomainData      Domain = 2
)

func (d Domain) String() string {
	switch d {
	case DomainPseudonym:
		return "pseudonym"
	case DomainData:
		return "data"
	default:
		return fmt.Sprintf("domain(%d)", uint32(d))
	}
}

// PseudonymTranslationKeys is the secret bundle one authority holds for
// pseudonym translation.
type PseudonymTranslationKeys struct {
	EncryptionKeyFactorSecret       KeyFactorSecret
	PseudonymizationKeyFactorSecret KeyFactorSecret
	MasterPrivateEncryptionKeyShare MasterPrivateKeyShare
}

// Validate checks that every secret of the bundle is set.
func (k PseudonymTranslationKeys) Validate() error {
	if !k.EncryptionKeyFactorSecret.IsSet() || !k.PseudonymizationKeyFactorSecret.IsSet() {
		return fmt.Errorf("%w: pseudonym key factor secret missing", interfaces.ErrInvalidSecret)
	}
	if !k.MasterPrivateEncryptionKeyShare.IsSet() {
		return fmt.Errorf("%w: pseudonym master private key share missing", interfaces.ErrInvalidSecret)
	}
	return nil
}

// DataTranslationKeys is the secret bundle one authority holds for data
// translation. The blinding secret is only held by authorities that blind.
type DataTranslationKeys struct {
	EncryptionKeyFactorSecret       KeyFactorSecret
	BlindingKeyFactorSecret         *KeyFactorSecret
	MasterPrivateEncryptionKeyShare MasterPrivateKeyShare
}

// Validate checks that every mandatory secret of the bundle is set.
func (k DataTranslationKeys) Validate() error {
	if !k.EncryptionKeyFactorSecret.IsSet() {
		return fmt.Errorf("%w: data key factor secret missing", interfaces.ErrInvalidSecret)
	}
	if k.BlindingKeyFactorSecret != nil && !k.BlindingKeyFactorSecret.IsSet() {
		return fmt.Errorf("%w: data blinding secret is zero", interfaces.ErrInvalidSecret)
	}
	if !k.MasterPrivateEncryptionKeyShare.IsSet() {
		return fmt.Errorf("%w: data master private key share missing", interfaces.ErrInvalidSecret)
	}
	return nil
}
