package kms

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/keysplit"
)

// SystemKeys are the secrets of one authority.
type SystemKeys struct {
	PseudonymsRekeyLocal            keysplit.KeyFactorSecret
	PseudonymsReshuffleLocal        keysplit.KeyFactorSecret
	DataRekeyLocal                  keysplit.KeyFactorSecret
	DataBlinding                    *keysplit.KeyFactorSecret
	MasterPrivateKeySharePseudonyms keysplit.MasterPrivateKeyShare
	MasterPrivateKeyShareData       keysplit.MasterPrivateKeyShare
}

// systemKeysFile is the hex encoded file format.
type systemKeysFile struct {
	PseudonymsRekeyLocal            string `json:"PseudonymsRekeyLocal"`
	PseudonymsReshuffleLocal        string `json:"PseudonymsReshuffleLocal"`
	DataRekeyLocal                  string `json:"DataRekeyLocal"`
	DataBlinding                    string `json:"DataBlinding,omitempty"`
	MasterPrivateKeySharePseudonyms string `json:"MasterPrivateKeySharePseudonyms"`
	MasterPrivateKeyShareData       string `json:"MasterPrivateKeyShareData"`
}

// ParseSystemKeys parses a SystemKeys file, optionally wrapped in {"Keys": {...}}.
func ParseSystemKeys(data []byte) (*SystemKeys, error) {
	var wrapped struct {
		Keys *systemKeysFile `json:"Keys"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: could not parse system keys: %v", interfaces.ErrInvalidSecret, err)
	}

	file := wrapped.Keys
	if file == nil {
		file = &systemKeysFile{}
		if err := json.Unmarshal(data, file); err != nil {
			return nil, fmt.Errorf("%w: could not parse system keys: %v", interfaces.ErrInvalidSecret, err)
		}
	}

	var (
		keys SystemKeys
		err  error
	)
	if keys.PseudonymsRekeyLocal, err = keysplit.KeyFactorSecretFromHex(file.PseudonymsRekeyLocal); err != nil {
		return nil, fmt.Errorf("PseudonymsRekeyLocal: %w", err)
	}
	if keys.PseudonymsReshuffleLocal, err = keysplit.KeyFactorSecretFromHex(file.PseudonymsReshuffleLocal); err != nil {
		return nil, fmt.Errorf("PseudonymsReshuffleLocal: %w", err)
	}
	if keys.DataRekeyLocal, err = keysplit.KeyFactorSecretFromHex(file.DataRekeyLocal); err != nil {
		return nil, fmt.Errorf("DataRekeyLocal: %w", err)
	}
	if file.DataBlinding != "" {
		blinding, err := keysplit.KeyFactorSecretFromHex(file.DataBlinding)
		if err != nil {
			return nil, fmt.Errorf("DataBlinding: %w", err)
		}
		keys.DataBlinding = &blinding
	}
	if keys.MasterPrivateKeySharePseudonyms, err = keysplit.MasterPrivateKeyShareFromHex(file.MasterPrivateKeySharePseudonyms); err != nil {
		return nil, fmt.Errorf("MasterPrivateKeySharePseudonyms: %w", err)
	}
	if keys.MasterPrivateKeyShareData, err = keysplit.MasterPrivateKeyShareFromHex(file.MasterPrivateKeyShareData); err != nil {
		return nil, fmt.Errorf("MasterPrivateKeyShareData: %w", err)
	}
	return &keys, nil
}

// LoadSystemKeysFile reads and parses a SystemKeys file.
func LoadSystemKeysFile(path string) (*SystemKeys, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read system keys: %w", err)
	}
	return ParseSystemKeys(data)
}

// MarshalJSON writes the unwrapped file format.
func (k *SystemKeys) MarshalJSON() ([]byte, error) {
	file := systemKeysFile{
		PseudonymsRekeyLocal:            hex.EncodeToString(k.PseudonymsRekeyLocal.HMACKey()),
		PseudonymsReshuffleLocal:        hex.EncodeToString(k.PseudonymsReshuffleLocal.HMACKey()),
		DataRekeyLocal:                  hex.EncodeToString(k.DataRekeyLocal.HMACKey()),
		MasterPrivateKeySharePseudonyms: hex.EncodeToString(k.MasterPrivateKeySharePseudonyms.Scalar().Bytes()),
		MasterPrivateKeyShareData:       hex.EncodeToString(k.MasterPrivateKeyShareData.Scalar().Bytes()),
	}
	if k.DataBlinding != nil {
		file.DataBlinding = hex.EncodeToString(k.DataBlinding.HMACKey())
	}
	return json.MarshalIndent(file, "", "  ")
}

// PseudonymKeys is the pseudonym domain bundle.
func (k *SystemKeys) PseudonymKeys() keysplit.PseudonymTranslationKeys {
	return keysplit.PseudonymTranslationKeys{
		EncryptionKeyFactorSecret:       k.PseudonymsRekeyLocal,
		PseudonymizationKeyFactorSecret: k.PseudonymsReshuffleLocal,
		MasterPrivateEncryptionKeyShare: k.MasterPrivateKeySharePseudonyms,
	}
}

// DataKeys is the data domain bundle.
func (k *SystemKeys) DataKeys() keysplit.DataTranslationKeys {
	return keysplit.DataTranslationKeys{
		EncryptionKeyFactorSecret:       k.DataRekeyLocal,
		BlindingKeyFactorSecret:         k.DataBlinding,
		MasterPrivateEncryptionKeyShare: k.MasterPrivateKeyShareData,
	}
}

// GenerateSystemKeys creates fresh random secrets for one authority.
func GenerateSystemKeys(withBlinding bool) (*SystemKeys, error) {
	randomSecret := func() (keysplit.KeyFactorSecret, error) {
		raw := make([]byte, keysplit.KeyFactorSecretSize)
		if _, err := rand.Read(raw); err != nil {
			return keysplit.KeyFactorSecret{}, err
		}
		return keysplit.NewKeyFactorSecret(raw)
	}
	randomShare := func() (keysplit.MasterPrivateKeyShare, error) {
		return keysplit.MasterPrivateKeyShareFromScalar(keysplit.RandomScalar())
	}

	var (
		keys SystemKeys
		err  error
	)
	if keys.PseudonymsRekeyLocal, err = randomSecret(); err != nil {
		return nil, err
	}
	if keys.PseudonymsReshuffleLocal, err = randomSecret(); err != nil {
		return nil, err
	}
	if keys.DataRekeyLocal, err = randomSecret(); err != nil {
		return nil, err
	}
	if withBlinding {
		blinding, err := randomSecret()
		if err != nil {
			return nil, err
		}
		keys.DataBlinding = &blinding
	}
	if keys.MasterPrivateKeySharePseudonyms, err = randomShare(); err != nil {
		return nil, err
	}
	if keys.MasterPrivateKeyShareData, err = randomShare(); err != nil {
		return nil, err
	}
	return &keys, nil
}
