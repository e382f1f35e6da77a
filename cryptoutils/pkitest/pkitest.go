// Package pkitest builds an in-process PKI for tests: a root, the server and
// client signing CAs, and identities issued by them.
package pkitest

import (
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/interfaces"
)

// Test certificates outlive the clock shifts used to exercise ticket and
// request expiry.
const (
	CAValidity   = 30 * 24 * time.Hour
	LeafValidity = 7 * 24 * time.Hour
)

// PKI is a test certificate hierarchy.
type PKI struct {
	Root     *cryptoutils.CertificateAuthority
	ServerCA *cryptoutils.CertificateAuthority
	ClientCA *cryptoutils.CertificateAuthority
	Roots    *x509.CertPool
}

// New creates a root with server and client intermediates.
func New(t testing.TB) *PKI {
	t.Helper()

	root, err := cryptoutils.NewRootCA("PEP Root CA", CAValidity)
	require.NoError(t, err)
	serverCA, err := root.NewIntermediate(cryptoutils.ServerCAName, CAValidity)
	require.NoError(t, err)
	clientCA, err := root.NewIntermediate(cryptoutils.ClientCAName, CAValidity)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(root.Cert)

	return &PKI{Root: root, ServerCA: serverCA, ClientCA: clientCA, Roots: roots}
}

// Issue signs a certificate with the given subject by ca.
func Issue(t testing.TB, ca *cryptoutils.CertificateAuthority, cn, ou string, usage cryptoutils.CertificateUsage) *cryptoutils.Identity {
	t.Helper()

	keyPEM, csrPEM, err := cryptoutils.CreateCSR(cn, ou)
	require.NoError(t, err)
	csr, err := csrPEM.GetX509CSR()
	require.NoError(t, err)
	key, err := keyPEM.GetPrivateKey()
	require.NoError(t, err)

	cert, err := ca.SignCSR(csr, LeafValidity, usage)
	require.NoError(t, err)

	return &cryptoutils.Identity{Chain: ca.ChainFor(cert), Key: key}
}

// Server issues the signing identity of a server.
func (p *PKI) Server(t testing.TB, traits interfaces.ServerTraits) *cryptoutils.Identity {
	t.Helper()
	subject := traits.CertificateSubject()
	return Issue(t, p.ServerCA, subject, subject, cryptoutils.UsageSigning)
}

// User issues a user signing identity for user in group.
func (p *PKI) User(t testing.TB, user, group string) *cryptoutils.Identity {
	t.Helper()
	return Issue(t, p.ClientCA, user, group, cryptoutils.UsageSigning)
}
