package cryptoutils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Names of the intermediate CAs of the PKI.
const (
	ServerCAName = "PEP Intermediate PEP Server CA"
	ClientCAName = "PEP Intermediate PEP Client CA"
	TLSCAName    = "PEP Intermediate TLS CA"
)

// CertificateAuthority issues certificates with its key. Issuers holds the
// CA's own certificate followed by its intermediates, excluding the root.
type CertificateAuthority struct {
	Cert    *x509.Certificate
	Key     *ecdsa.PrivateKey
	Issuers CertificateChain
}

// NewRootCA creates a self-signed root CA.
func NewRootCA(cn string, validity time.Duration) (*CertificateAuthority, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	template, err := caTemplate(cn, validity)
	if err != nil {
		return nil, err
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("could not create root certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &CertificateAuthority{Cert: cert, Key: key}, nil
}

// NewIntermediate creates a CA issued by ca.
func (ca *CertificateAuthority) NewIntermediate(cn string, validity time.Duration) (*CertificateAuthority, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	template, err := caTemplate(cn, validity)
	if err != nil {
		return nil, err
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, &key.PublicKey, ca.Key)
	if err != nil {
		return nil, fmt.Errorf("could not create intermediate certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	issuers := append(CertificateChain{cert}, ca.Issuers...)
	return &CertificateAuthority{Cert: cert, Key: key, Issuers: issuers}, nil
}

// LoadCertificateAuthority loads a CA from its chain (CA certificate first) and key.
func LoadCertificateAuthority(chainPEM []byte, keyPEM PrivateKeyPEM) (*CertificateAuthority, error) {
	chain, err := ParseCertificateChainPEM(chainPEM)
	if err != nil {
		return nil, err
	}
	if !chain.Leaf().IsCA {
		return nil, errors.New("certificate is not a CA certificate (IsCA flag not set)")
	}

	key, err := keyPEM.GetPrivateKey()
	if err != nil {
		return nil, err
	}
	if !key.PublicKey.Equal(chain.Leaf().PublicKey) {
		return nil, errors.New("private key doesn't match certificate")
	}

	issuers := chain
	if chain.Leaf().CheckSignatureFrom(chain.Leaf()) == nil {
		issuers = nil
	}
	return &CertificateAuthority{Cert: chain.Leaf(), Key: key, Issuers: issuers}, nil
}

// CertPEM returns the CA certificate.
func (ca *CertificateAuthority) CertPEM() CertificatePEM {
	return EncodeCertificatePEM(ca.Cert)
}

// CertificateUsage selects the extended key usage of an issued certificate.
type CertificateUsage int

const (
	// UsageSigning issues a message signing certificate (client auth EKU).
	UsageSigning CertificateUsage = iota
	// UsageTLSServer issues a TLS server certificate.
	UsageTLSServer
)

// SignCSR issues a certificate for csr, copying its subject. The CSR
// signature must verify.
func (ca *CertificateAuthority) SignCSR(csr *x509.CertificateRequest, validity time.Duration, usage CertificateUsage) (*x509.Certificate, error) {
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("invalid CSR signature: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               csr.Subject,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	switch usage {
	case UsageTLSServer:
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
		template.DNSNames = csr.DNSNames
	default:
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Cert, csr.PublicKey, ca.Key)
	if err != nil {
		return nil, fmt.Errorf("could not sign certificate: %w", err)
	}
	return x509.ParseCertificate(der)
}

// ChainFor returns leaf followed by the CA's issuers.
func (ca *CertificateAuthority) ChainFor(leaf *x509.Certificate) CertificateChain {
	return append(CertificateChain{leaf}, ca.Issuers...)
}

// CreateCSR generates a new P-256 key pair and a CSR with the given CN and OU.
//
// Returns:
//   - Private key in PEM format
//   - CSR in PEM format
//   - Error if key generation or CSR creation fails
func CreateCSR(cn, ou string) (PrivateKeyPEM, CSRPEM, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	subject := pkix.Name{CommonName: cn}
	if ou != "" {
		subject.OrganizationalUnit = []string{ou}
	}
	csrTemplate := x509.CertificateRequest{
		Subject:            subject,
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}

	csrDER, err := x509.CreateCertificateRequest(rand.Reader, &csrTemplate, privateKey)
	if err != nil {
		return nil, nil, err
	}
	csrPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: csrDER})

	keyPEM, err := EncodePrivateKeyPEM(privateKey)
	if err != nil {
		return nil, nil, err
	}
	return keyPEM, CSRPEM(csrPEM), nil
}

// VerifyCertificate validates that a certificate matches a given private key and has the expected common name.
// It performs the following checks:
//   - The certificate can be parsed correctly
//   - The common name matches the expected value
//   - The public key in the certificate corresponds to the provided private key
func VerifyCertificate(keyPEM PrivateKeyPEM, certPEM CertificatePEM, expectedCN string) error {
	privateKey, err := keyPEM.GetPrivateKey()
	if err != nil {
		return err
	}

	cert, err := certPEM.GetX509Cert()
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	if cert.Subject.CommonName != expectedCN {
		return fmt.Errorf("CommonName is %s, expected %s", cert.Subject.CommonName, expectedCN)
	}

	if !privateKey.PublicKey.Equal(cert.PublicKey) {
		return errors.New("private key doesn't match certificate")
	}
	return nil
}

// Identity is a signing certificate chain with its private key.
type Identity struct {
	Chain CertificateChain
	Key   *ecdsa.PrivateKey
}

// NewIdentity loads an identity from a PEM chain (leaf first) and a PEM key.
func NewIdentity(chainPEM []byte, keyPEM PrivateKeyPEM) (*Identity, error) {
	chain, err := ParseCertificateChainPEM(chainPEM)
	if err != nil {
		return nil, err
	}

	key, err := keyPEM.GetPrivateKey()
	if err != nil {
		return nil, err
	}
	if !key.PublicKey.Equal(chain.Leaf().PublicKey) {
		return nil, errors.New("private key doesn't match certificate")
	}

	return &Identity{Chain: chain, Key: key}, nil
}

// CommonName of the identity's leaf certificate.
func (id *Identity) CommonName() string {
	return id.Chain.CommonName()
}

// OrganizationalUnit of the identity's leaf certificate.
func (id *Identity) OrganizationalUnit() string {
	return id.Chain.OrganizationalUnit()
}

// TLSCertificate returns the identity as a client certificate.
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: id.Chain.DER(),
		PrivateKey:  id.Key,
		Leaf:        id.Chain.Leaf(),
	}
}

func caTemplate(cn string, validity time.Duration) (*x509.Certificate, error) {
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}, nil
}

func randomSerial() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}
