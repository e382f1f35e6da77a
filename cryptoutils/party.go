package cryptoutils

import (
	"crypto/x509"

	"github.com/ruteri/splitkey-pep/interfaces"
)

// IsServerSigningCertificate reports whether cert is a signing certificate
// issued by the server CA to a known server, with CN and OU both equal to the
// server's subject.
func IsServerSigningCertificate(cert *x509.Certificate) bool {
	if !IsSigningCertificate(cert) || cert.Issuer.CommonName != ServerCAName {
		return false
	}
	ou := OrganizationalUnit(cert)
	if cert.Subject.CommonName != ou {
		return false
	}
	_, known := interfaces.ServerTraitsForSubject(ou)
	return known
}

// IsUserSigningCertificate reports whether cert is a signing certificate
// issued by the client CA. The OU is the user group.
func IsUserSigningCertificate(cert *x509.Certificate) bool {
	return IsSigningCertificate(cert) && cert.Issuer.CommonName == ClientCAName
}

// GetEnrolledParty infers the role of a chain's leaf certificate. Servers
// without an enrollable role and unrecognized certificates yield PartyNone.
func GetEnrolledParty(chain CertificateChain) interfaces.EnrolledParty {
	leaf := chain.Leaf()
	switch {
	case leaf == nil:
		return interfaces.PartyNone
	case IsServerSigningCertificate(leaf):
		traits, _ := interfaces.ServerTraitsForSubject(OrganizationalUnit(leaf))
		return traits.EnrollsAs
	case IsUserSigningCertificate(leaf):
		return interfaces.PartyUser
	default:
		return interfaces.PartyNone
	}
}
