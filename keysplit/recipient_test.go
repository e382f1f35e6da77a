package keysplit_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/cryptoutils/pkitest"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/keysplit"
)

func TestRecipientConstruction(t *testing.T) {
	_, err := keysplit.NewReshuffleRecipient(interfaces.PartyNone, []byte("group"))
	require.ErrorIs(t, err, interfaces.ErrInvalidRecipient)

	_, err = keysplit.NewRekeyRecipient(interfaces.PartyUser, nil)
	require.ErrorIs(t, err, interfaces.ErrInvalidRecipient)

	reshuffle, err := keysplit.NewReshuffleRecipient(interfaces.PartyUser, []byte("group"))
	require.NoError(t, err)
	rekey, err := keysplit.NewRekeyRecipient(interfaces.PartyTranscryptor, []byte("Transcryptor"))
	require.NoError(t, err)

	_, err = keysplit.NewSkRecipient(reshuffle, rekey)
	require.ErrorIs(t, err, interfaces.ErrInvalidRecipient)
}

func TestRecipientForCertificate(t *testing.T) {
	pki := pkitest.New(t)
	user := pki.User(t, "alice", "Research Assessor")

	recipient, err := keysplit.RecipientForCertificate(user.Chain)
	require.NoError(t, err)
	assert.Equal(t, interfaces.PartyUser, recipient.Type())
	assert.Equal(t, []byte("Research Assessor"), recipient.Reshuffle.Payload)
	assert.Equal(t, user.Chain.Leaf().Raw, recipient.Rekey.Payload)

	byGroup, err := keysplit.PseudonymRecipientForUserGroup("Research Assessor")
	require.NoError(t, err)
	assert.True(t, byGroup.Equal(recipient.Reshuffle.RecipientBase))

	server := pki.Server(t, interfaces.StorageFacilityTraits)
	fromCert, err := keysplit.RecipientForCertificate(server.Chain)
	require.NoError(t, err)
	fromRole, err := keysplit.RecipientForServer(interfaces.PartyStorageFacility)
	require.NoError(t, err)
	assert.Equal(t, fromRole, fromCert)
	assert.Equal(t, []byte("StorageFacility"), fromRole.Rekey.Payload)
}

func TestRecipientForUnknownParty(t *testing.T) {
	pki := pkitest.New(t)
	unknown := pkitest.Issue(t, pki.Root, "mallory", "Research Assessor", cryptoutils.UsageSigning)

	_, err := keysplit.RecipientForCertificate(unknown.Chain)
	require.ErrorIs(t, err, interfaces.ErrInvalidRecipient)

	_, err = keysplit.RecipientForServer(interfaces.PartyUser)
	require.ErrorIs(t, err, interfaces.ErrInvalidRecipient)

	_, err = keysplit.RekeyRecipientForServer(interfaces.PartyNone)
	require.ErrorIs(t, err, interfaces.ErrInvalidRecipient)
}
