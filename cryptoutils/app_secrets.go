package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const eciesNonceSize = 12

// EncryptWithPublicKey encrypts data using ECIES with the given public key PEM.
// ECDH with a fresh ephemeral key, SHA-256 of the shared secret as the key and
// AES-GCM for authenticated encryption.
//
// Format: [ephemeral key length (2 bytes)][ephemeral key][nonce][ciphertext]
func EncryptWithPublicKey(publicKeyPEM PublicKeyPEM, data []byte) ([]byte, error) {
	publicKey, err := publicKeyPEM.GetPublicKey()
	if err != nil {
		return nil, err
	}
	recipient, err := publicKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported public key: %w", err)
	}

	ephemeralKey, err := recipient.Curve().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	aesGCM, err := eciesCipher(ephemeralKey, recipient)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, eciesNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ephemeralPublic := ephemeralKey.PublicKey().Bytes()
	result := make([]byte, 2, 2+len(ephemeralPublic)+eciesNonceSize+len(data)+aesGCM.Overhead())
	binary.BigEndian.PutUint16(result, uint16(len(ephemeralPublic)))
	result = append(result, ephemeralPublic...)
	result = append(result, nonce...)
	return aesGCM.Seal(result, nonce, data, nil), nil
}

// DecryptWithPrivateKey decrypts data encrypted with EncryptWithPublicKey using the corresponding private key.
func DecryptWithPrivateKey(privateKeyPEM PrivateKeyPEM, encryptedData []byte) ([]byte, error) {
	privateKey, err := privateKeyPEM.GetPrivateKey()
	if err != nil {
		return nil, err
	}
	own, err := privateKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("unsupported private key: %w", err)
	}

	if len(encryptedData) < 2 {
		return nil, errors.New("encrypted data too short")
	}
	ephemeralKeyLen := int(binary.BigEndian.Uint16(encryptedData[0:2]))
	if len(encryptedData) < 2+ephemeralKeyLen+eciesNonceSize {
		return nil, errors.New("encrypted data has invalid format")
	}

	ephemeralPublic, err := own.Curve().NewPublicKey(encryptedData[2 : 2+ephemeralKeyLen])
	if err != nil {
		return nil, errors.New("failed to unmarshal ephemeral public key")
	}

	aesGCM, err := eciesCipher(own, ephemeralPublic)
	if err != nil {
		return nil, err
	}

	nonceStart := 2 + ephemeralKeyLen
	nonce := encryptedData[nonceStart : nonceStart+eciesNonceSize]
	plaintext, err := aesGCM.Open(nil, nonce, encryptedData[nonceStart+eciesNonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func eciesCipher(private *ecdh.PrivateKey, public *ecdh.PublicKey) (cipher.AEAD, error) {
	shared, err := private.ECDH(public)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}
	key := sha256.Sum256(shared)

	aesBlock, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return cipher.NewGCM(aesBlock)
}

// DerivePassphraseKey derives a 32-byte storage encryption key from an
// operator passphrase with Argon2id. The same inputs always give the same key.
func DerivePassphraseKey(passphrase []byte, purpose string) []byte {
	salt := append([]byte("PEP-STORAGE-KEY-"), purpose...)

	// Parameters: time=1, memory=64*1024, threads=4, keyLen=32
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}
