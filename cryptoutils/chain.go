package cryptoutils

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

// CertificateChain is a leaf certificate followed by the intermediates that
// issued it. The root is never part of the chain.
type CertificateChain []*x509.Certificate

// ParseCertificateChainPEM parses concatenated PEM certificates, leaf first.
func ParseCertificateChainPEM(data []byte) (CertificateChain, error) {
	var chain CertificateChain
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid certificate in chain: %w", err)
		}
		chain = append(chain, cert)
	}
	if len(chain) == 0 {
		return nil, errors.New("no certificates in chain")
	}
	return chain, nil
}

// ParseCertificateChainDER parses a wire encoded chain.
func ParseCertificateChainDER(ders [][]byte) (CertificateChain, error) {
	chain := make(CertificateChain, 0, len(ders))
	for _, der := range ders {
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("invalid certificate in chain: %w", err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

// DER returns the raw encoding of every certificate in the chain.
func (c CertificateChain) DER() [][]byte {
	ders := make([][]byte, 0, len(c))
	for _, cert := range c {
		ders = append(ders, cert.Raw)
	}
	return ders
}

// PEM encodes the chain as concatenated PEM blocks.
func (c CertificateChain) PEM() []byte {
	var buf bytes.Buffer
	for _, cert := range c {
		buf.Write(EncodeCertificatePEM(cert))
	}
	return buf.Bytes()
}

// Leaf returns the first certificate or nil for an empty chain.
func (c CertificateChain) Leaf() *x509.Certificate {
	if len(c) == 0 {
		return nil
	}
	return c[0]
}

// Verify checks that the chain terminates at one of roots at the given time.
// Extended key usages are not restricted since both signing and TLS
// certificates are verified through this path.
func (c CertificateChain) Verify(roots *x509.CertPool, at time.Time) error {
	leaf := c.Leaf()
	if leaf == nil {
		return errors.New("empty certificate chain")
	}
	if roots == nil {
		return errors.New("no trusted roots")
	}

	intermediates := x509.NewCertPool()
	for _, cert := range c[1:] {
		intermediates.AddCert(cert)
	}

	_, err := leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err
}

// CommonName returns the leaf's subject CN.
func (c CertificateChain) CommonName() string {
	if leaf := c.Leaf(); leaf != nil {
		return leaf.Subject.CommonName
	}
	return ""
}

// OrganizationalUnit returns the leaf's first subject OU.
func (c CertificateChain) OrganizationalUnit() string {
	return OrganizationalUnit(c.Leaf())
}

// OrganizationalUnit returns the first subject OU of cert, or "".
func OrganizationalUnit(cert *x509.Certificate) string {
	if cert == nil || len(cert.Subject.OrganizationalUnit) == 0 {
		return ""
	}
	return cert.Subject.OrganizationalUnit[0]
}

// HasTLSServerEKU reports whether cert may be used as a TLS server certificate.
func HasTLSServerEKU(cert *x509.Certificate) bool {
	for _, usage := range cert.ExtKeyUsage {
		if usage == x509.ExtKeyUsageServerAuth {
			return true
		}
	}
	return false
}

// IsSigningCertificate reports whether cert can sign messages: it is not a TLS
// server certificate and carries both a CN and an OU.
func IsSigningCertificate(cert *x509.Certificate) bool {
	if cert == nil || HasTLSServerEKU(cert) {
		return false
	}
	return cert.Subject.CommonName != "" && OrganizationalUnit(cert) != ""
}

// LoadRootCAs parses a PEM bundle of trusted root certificates.
func LoadRootCAs(pemData []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, errors.New("no root certificates found")
	}
	return pool, nil
}
