package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

// CSRPEM represents a Certificate Signing Request in PEM format.
type CSRPEM []byte

// NewCSRPEM creates a new CSR object from PEM-encoded data with validation.
// The CSR signature is checked as part of the validation.
func NewCSRPEM(data []byte) (CSRPEM, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE REQUEST" {
		return CSRPEM{}, errors.New("invalid CSR: not in PEM format or not a certificate request")
	}

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return CSRPEM{}, fmt.Errorf("invalid CSR structure: %w", err)
	}
	if err := csr.CheckSignature(); err != nil {
		return CSRPEM{}, fmt.Errorf("invalid CSR signature: %w", err)
	}

	return CSRPEM(data), nil
}

// GetX509CSR returns the parsed X.509 certificate request.
func (csr CSRPEM) GetX509CSR() (*x509.CertificateRequest, error) {
	block, _ := pem.Decode(csr)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	return x509.ParseCertificateRequest(block.Bytes)
}

// CertificatePEM represents a certificate in PEM format.
type CertificatePEM []byte

// NewCertificatePEM creates a new certificate object from PEM-encoded data with validation.
func NewCertificatePEM(data []byte) (CertificatePEM, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return CertificatePEM{}, errors.New("invalid certificate: not in PEM format or not a certificate")
	}

	if _, err := x509.ParseCertificate(block.Bytes); err != nil {
		return CertificatePEM{}, fmt.Errorf("invalid certificate structure: %w", err)
	}

	return CertificatePEM(data), nil
}

// GetX509Cert returns the parsed X.509 certificate.
func (cert CertificatePEM) GetX509Cert() (*x509.Certificate, error) {
	block, _ := pem.Decode(cert)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}
	return x509.ParseCertificate(block.Bytes)
}

// IsExpired checks if the certificate has expired.
func (cert CertificatePEM) IsExpired() (bool, error) {
	x509Cert, err := cert.GetX509Cert()
	if err != nil {
		return false, err
	}
	return x509Cert.NotAfter.Before(time.Now()), nil
}

// EncodeCertificatePEM encodes a parsed certificate.
func EncodeCertificatePEM(cert *x509.Certificate) CertificatePEM {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// PublicKeyPEM represents an ECDSA public key in PKIX PEM format.
type PublicKeyPEM []byte

// NewPublicKeyPEM creates a new public key object from PEM-encoded data with validation.
func NewPublicKeyPEM(data []byte) (PublicKeyPEM, error) {
	if _, err := PublicKeyPEM(data).GetPublicKey(); err != nil {
		return PublicKeyPEM{}, err
	}
	return PublicKeyPEM(data), nil
}

// GetPublicKey returns the parsed ECDSA public key.
func (pub PublicKeyPEM) GetPublicKey() (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pub)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, errors.New("invalid public key: not in PEM format or not a public key")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("invalid public key structure: %w", err)
	}

	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type: %T", key)
	}
	return ecKey, nil
}

// PrivateKeyPEM represents an ECDSA private key in PKCS8 or SEC1 PEM format.
type PrivateKeyPEM []byte

// NewPrivateKeyPEM creates a new private key object from PEM-encoded data with validation.
func NewPrivateKeyPEM(data []byte) (PrivateKeyPEM, error) {
	if _, err := PrivateKeyPEM(data).GetPrivateKey(); err != nil {
		return PrivateKeyPEM{}, err
	}
	return PrivateKeyPEM(data), nil
}

// GetPrivateKey returns the parsed ECDSA private key.
func (priv PrivateKeyPEM) GetPrivateKey() (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(priv)
	if block == nil || (block.Type != "PRIVATE KEY" && block.Type != "EC PRIVATE KEY") {
		return nil, errors.New("invalid private key: not in PEM format or not a private key")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type: %T", key)
		}
		return ecKey, nil
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.New("failed to parse private key")
	}
	return key, nil
}

// GetPublicKey returns the public half of the private key.
func (priv PrivateKeyPEM) GetPublicKey() (*ecdsa.PublicKey, error) {
	key, err := priv.GetPrivateKey()
	if err != nil {
		return nil, err
	}
	return &key.PublicKey, nil
}

// EncodePrivateKeyPEM encodes key as PKCS8 PEM.
func EncodePrivateKeyPEM(key *ecdsa.PrivateKey) (PrivateKeyPEM, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyPEM encodes key as PKIX PEM.
func EncodePublicKeyPEM(key *ecdsa.PublicKey) (PublicKeyPEM, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// RandomP256Keypair generates an admin or share encryption key pair.
func RandomP256Keypair() (PublicKeyPEM, PrivateKeyPEM, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	privateKeyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, nil, err
	}
	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "EC PRIVATE KEY",
		Bytes: privateKeyBytes,
	})

	pubkeyPEM, err := EncodePublicKeyPEM(&privateKey.PublicKey)
	if err != nil {
		return nil, nil, err
	}

	return pubkeyPEM, PrivateKeyPEM(privateKeyPEM), nil
}
