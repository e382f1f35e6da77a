package cryptoutils_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/cryptoutils/pkitest"
	"github.com/ruteri/splitkey-pep/interfaces"
)

func TestGetEnrolledParty(t *testing.T) {
	pki := pkitest.New(t)

	testCases := []struct {
		name     string
		identity *cryptoutils.Identity
		expected interfaces.EnrolledParty
	}{
		{"user", pki.User(t, "alice", "Research Assessor"), interfaces.PartyUser},
		{"access manager", pki.Server(t, interfaces.AccessManagerTraits), interfaces.PartyAccessManager},
		{"transcryptor", pki.Server(t, interfaces.TranscryptorTraits), interfaces.PartyTranscryptor},
		{"storage facility", pki.Server(t, interfaces.StorageFacilityTraits), interfaces.PartyStorageFacility},
		{"registration server", pki.Server(t, interfaces.RegistrationServerTraits), interfaces.PartyRegistrationServer},
		{"auth server does not enroll", pki.Server(t, interfaces.AuthServerTraits), interfaces.PartyNone},
		{"unknown server subject", pkitest.Issue(t, pki.ServerCA, "Mailer", "Mailer", cryptoutils.UsageSigning), interfaces.PartyNone},
		{"server CN differs from OU", pkitest.Issue(t, pki.ServerCA, "alice", "AccessManager", cryptoutils.UsageSigning), interfaces.PartyNone},
		{"user without group", pkitest.Issue(t, pki.ClientCA, "alice", "", cryptoutils.UsageSigning), interfaces.PartyNone},
		{"TLS certificate", pkitest.Issue(t, pki.ServerCA, "AccessManager", "AccessManager", cryptoutils.UsageTLSServer), interfaces.PartyNone},
		{"issued by the root", pkitest.Issue(t, pki.Root, "alice", "Research Assessor", cryptoutils.UsageSigning), interfaces.PartyNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, cryptoutils.GetEnrolledParty(tc.identity.Chain))
		})
	}

	assert.Equal(t, interfaces.PartyNone, cryptoutils.GetEnrolledParty(nil))
}

func TestHasDataAccess(t *testing.T) {
	assert.True(t, interfaces.HasDataAccess(interfaces.PartyUser))
	assert.True(t, interfaces.HasDataAccess(interfaces.PartyStorageFacility))
	assert.True(t, interfaces.HasDataAccess(interfaces.PartyTranscryptor))
	assert.False(t, interfaces.HasDataAccess(interfaces.PartyAccessManager))
	assert.False(t, interfaces.HasDataAccess(interfaces.PartyRegistrationServer))
	assert.False(t, interfaces.HasDataAccess(interfaces.PartyNone))
}

func TestCertificateChainVerify(t *testing.T) {
	pki := pkitest.New(t)
	user := pki.User(t, "alice", "Research Assessor")

	require.NoError(t, user.Chain.Verify(pki.Roots, time.Now()))
	require.Error(t, user.Chain.Verify(pki.Roots, time.Now().Add(pkitest.LeafValidity+time.Hour)))

	other := pkitest.New(t)
	require.Error(t, user.Chain.Verify(other.Roots, time.Now()))

	// Without the intermediate the leaf cannot be linked to the root.
	require.Error(t, user.Chain[:1].Verify(pki.Roots, time.Now()))

	var empty cryptoutils.CertificateChain
	require.Error(t, empty.Verify(pki.Roots, time.Now()))
}

func TestCertificateChainEncoding(t *testing.T) {
	pki := pkitest.New(t)
	user := pki.User(t, "alice", "Research Assessor")

	fromPEM, err := cryptoutils.ParseCertificateChainPEM(user.Chain.PEM())
	require.NoError(t, err)
	require.Len(t, fromPEM, 2)
	assert.Equal(t, "alice", fromPEM.CommonName())
	assert.Equal(t, "Research Assessor", fromPEM.OrganizationalUnit())

	fromDER, err := cryptoutils.ParseCertificateChainDER(user.Chain.DER())
	require.NoError(t, err)
	assert.True(t, fromDER.Leaf().Equal(user.Chain.Leaf()))

	_, err = cryptoutils.ParseCertificateChainPEM([]byte("garbage"))
	require.Error(t, err)
}

func TestIdentityLoading(t *testing.T) {
	pki := pkitest.New(t)
	user := pki.User(t, "alice", "Research Assessor")
	keyPEM, err := cryptoutils.EncodePrivateKeyPEM(user.Key)
	require.NoError(t, err)

	loaded, err := cryptoutils.NewIdentity(user.Chain.PEM(), keyPEM)
	require.NoError(t, err)
	assert.Equal(t, "alice", loaded.CommonName())
	assert.Equal(t, "Research Assessor", loaded.OrganizationalUnit())

	require.NoError(t, cryptoutils.VerifyCertificate(keyPEM, cryptoutils.EncodeCertificatePEM(user.Chain.Leaf()), "alice"))
	require.Error(t, cryptoutils.VerifyCertificate(keyPEM, cryptoutils.EncodeCertificatePEM(user.Chain.Leaf()), "bob"))

	other := pki.User(t, "bob", "Research Assessor")
	otherKeyPEM, err := cryptoutils.EncodePrivateKeyPEM(other.Key)
	require.NoError(t, err)
	_, err = cryptoutils.NewIdentity(user.Chain.PEM(), otherKeyPEM)
	require.Error(t, err)
}

func TestLoadCertificateAuthority(t *testing.T) {
	pki := pkitest.New(t)
	keyPEM, err := cryptoutils.EncodePrivateKeyPEM(pki.ClientCA.Key)
	require.NoError(t, err)

	loaded, err := cryptoutils.LoadCertificateAuthority(pki.ClientCA.Issuers.PEM(), keyPEM)
	require.NoError(t, err)

	user := pkitest.Issue(t, loaded, "alice", "Research Assessor", cryptoutils.UsageSigning)
	require.NoError(t, user.Chain.Verify(pki.Roots, time.Now()))
	assert.Equal(t, interfaces.PartyUser, cryptoutils.GetEnrolledParty(user.Chain))

	rootKeyPEM, err := cryptoutils.EncodePrivateKeyPEM(pki.Root.Key)
	require.NoError(t, err)
	root, err := cryptoutils.LoadCertificateAuthority(pki.Root.CertPEM(), rootKeyPEM)
	require.NoError(t, err)
	assert.Empty(t, root.Issuers)

	_, err = cryptoutils.LoadCertificateAuthority(pki.Root.CertPEM(), keyPEM)
	require.Error(t, err)
}
