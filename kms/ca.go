package kms

import (
	"errors"
	"fmt"
	"time"

	"github.com/ruteri/splitkey-pep/cryptoutils"
)

// DefaultUserCertificateValidity is how long enrolled user certificates last.
const DefaultUserCertificateValidity = 24 * time.Hour

// ClientCA issues user signing certificates.
type ClientCA struct {
	ca       *cryptoutils.CertificateAuthority
	validity time.Duration
}

// NewClientCA wraps ca, which must be the client intermediate CA.
func NewClientCA(ca *cryptoutils.CertificateAuthority, validity time.Duration) (*ClientCA, error) {
	if ca == nil {
		return nil, errors.New("no certificate authority")
	}
	if ca.Cert.Subject.CommonName != cryptoutils.ClientCAName {
		return nil, fmt.Errorf("client CA must be named %q, got %q", cryptoutils.ClientCAName, ca.Cert.Subject.CommonName)
	}
	if validity <= 0 {
		validity = DefaultUserCertificateValidity
	}
	return &ClientCA{ca: ca, validity: validity}, nil
}

// SignCSR issues a user signing certificate and returns it with its issuers.
func (c *ClientCA) SignCSR(csr cryptoutils.CSRPEM) (cryptoutils.CertificateChain, error) {
	parsed, err := csr.GetX509CSR()
	if err != nil {
		return nil, fmt.Errorf("invalid CSR: %w", err)
	}
	if parsed.Subject.CommonName == "" || len(parsed.Subject.OrganizationalUnit) != 1 {
		return nil, errors.New("CSR must carry a common name and exactly one organizational unit")
	}

	cert, err := c.ca.SignCSR(parsed, c.validity, cryptoutils.UsageSigning)
	if err != nil {
		return nil, err
	}
	return c.ca.ChainFor(cert), nil
}
