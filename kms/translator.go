package kms

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"github.com/ruteri/splitkey-pep/keysplit"
)

// CombineFunc combines a key factor with a master private key share into a
// key component.
type CombineFunc func(factor, share keysplit.Scalar) keysplit.Scalar

// MultiplyShare is the default CombineFunc. Components of all authorities
// multiply into the recipient's key.
func MultiplyShare(factor, share keysplit.Scalar) keysplit.Scalar {
	return factor.Mul(share)
}

var errNoReshuffleSecret = errors.New("reshuffle key factor secret is not set")

// Translator derives key factors and key components for one domain.
// It is immutable and safe for concurrent use.
type Translator struct {
	domain    keysplit.Domain
	reshuffle *keysplit.KeyFactorSecret
	rekey     keysplit.KeyFactorSecret
	share     keysplit.MasterPrivateKeyShare
	combine   CombineFunc
}

// NewPseudonymTranslator builds the translator of the pseudonym domain.
func NewPseudonymTranslator(keys keysplit.PseudonymTranslationKeys) (*Translator, error) {
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	reshuffle := keys.PseudonymizationKeyFactorSecret
	return &Translator{
		domain:    keysplit.DomainPseudonym,
		reshuffle: &reshuffle,
		rekey:     keys.EncryptionKeyFactorSecret,
		share:     keys.MasterPrivateEncryptionKeyShare,
		combine:   MultiplyShare,
	}, nil
}

// NewDataTranslator builds the translator of the data domain.
func NewDataTranslator(keys keysplit.DataTranslationKeys) (*Translator, error) {
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	return &Translator{
		domain:  keysplit.DomainData,
		rekey:   keys.EncryptionKeyFactorSecret,
		share:   keys.MasterPrivateEncryptionKeyShare,
		combine: MultiplyShare,
	}, nil
}

// WithCombine returns a copy of t using combine for key components.
func (t *Translator) WithCombine(combine CombineFunc) *Translator {
	clone := *t
	clone.combine = combine
	return &clone
}

// Domain of the translator.
func (t *Translator) Domain() keysplit.Domain {
	return t.domain
}

// ReshuffleKeyFactor derives the pseudonymization key factor of recipient.
func (t *Translator) ReshuffleKeyFactor(recipient keysplit.ReshuffleRecipient) (keysplit.Scalar, error) {
	if t.reshuffle == nil {
		return keysplit.Scalar{}, errNoReshuffleSecret
	}
	return t.keyFactor(*t.reshuffle, recipient.RecipientBase), nil
}

// RekeyKeyFactor derives the encryption key factor of recipient.
func (t *Translator) RekeyKeyFactor(recipient keysplit.RekeyRecipient) keysplit.Scalar {
	return t.keyFactor(t.rekey, recipient.RecipientBase)
}

// KeyFactors holds both key factors of an SkRecipient.
type KeyFactors struct {
	Reshuffle keysplit.Scalar
	Rekey     keysplit.Scalar
}

// KeyFactors derives both key factors of recipient.
func (t *Translator) KeyFactors(recipient keysplit.SkRecipient) (KeyFactors, error) {
	reshuffle, err := t.ReshuffleKeyFactor(recipient.Reshuffle)
	if err != nil {
		return KeyFactors{}, err
	}
	return KeyFactors{Reshuffle: reshuffle, Rekey: t.RekeyKeyFactor(recipient.Rekey)}, nil
}

// KeyComponent derives this authority's key component for recipient.
func (t *Translator) KeyComponent(recipient keysplit.RekeyRecipient) keysplit.Scalar {
	return t.combine(t.RekeyKeyFactor(recipient), t.share.Scalar())
}

// keyFactor = reduce(HMAC-SHA512(secret, SHA-256(u32be(domain) || u32be(type) || payload)))
func (t *Translator) keyFactor(secret keysplit.KeyFactorSecret, recipient keysplit.RecipientBase) keysplit.Scalar {
	var prefix [8]byte
	binary.BigEndian.PutUint32(prefix[0:4], uint32(t.domain))
	binary.BigEndian.PutUint32(prefix[4:8], uint32(recipient.Type))

	hasher := sha256.New()
	hasher.Write(prefix[:])
	hasher.Write(recipient.Payload)
	digest := hasher.Sum(nil)

	mac := hmac.New(sha512.New, secret.HMACKey())
	mac.Write(digest)

	var wide [64]byte
	copy(wide[:], mac.Sum(nil))
	return keysplit.ScalarFromUniformBytes(&wide)
}

// Translators are the translators of one authority.
type Translators struct {
	Pseudonym *Translator
	Data      *Translator
}

// TranslatorSource provides an authority's translators once its keys are available.
type TranslatorSource interface {
	Translators() (*Translators, error)
}

// NewTranslators builds both translators from system keys.
func NewTranslators(keys *SystemKeys) (*Translators, error) {
	pseudonym, err := NewPseudonymTranslator(keys.PseudonymKeys())
	if err != nil {
		return nil, err
	}
	data, err := NewDataTranslator(keys.DataKeys())
	if err != nil {
		return nil, err
	}
	return &Translators{Pseudonym: pseudonym, Data: data}, nil
}

// Translators makes static translators a TranslatorSource.
func (t *Translators) Translators() (*Translators, error) {
	return t, nil
}
