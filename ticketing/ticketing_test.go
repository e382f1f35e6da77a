package ticketing_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/cryptoutils/pkitest"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/signing"
	"github.com/ruteri/splitkey-pep/ticketing"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const testPolicy = `
columnGroups:
  Visits: [Visit1.Date, Visit2.Date]
  Devices: [Device.Serial]
userGroups:
  Research Assessor:
    modes: [read]
    participantGroups: ["*"]
    columnGroups: [Visits]
  Data Administrator:
    modes: [write-meta, read]
    participantGroups: [Cohort A]
    columnGroups: [Visits, Devices]
`

func loadPolicy(t *testing.T) *ticketing.AccessPolicy {
	t.Helper()
	policy, err := ticketing.ParseAccessPolicy([]byte(testPolicy))
	require.NoError(t, err)
	return policy
}

func TestHasMode(t *testing.T) {
	read := ticketing.Ticket2{Modes: []string{ticketing.ModeRead}}
	assert.True(t, read.HasMode(ticketing.ModeRead))
	assert.True(t, read.HasMode(ticketing.ModeReadMeta))
	assert.False(t, read.HasMode(ticketing.ModeWrite))

	writeMeta := ticketing.Ticket2{Modes: []string{ticketing.ModeWriteMeta}}
	assert.True(t, writeMeta.HasMode(ticketing.ModeWrite))
	assert.False(t, writeMeta.HasMode(ticketing.ModeRead))

	write := ticketing.Ticket2{Modes: []string{ticketing.ModeWrite}}
	assert.False(t, write.HasMode(ticketing.ModeWriteMeta))
}

func TestAuthorize(t *testing.T) {
	policy := loadPolicy(t)

	columns, err := policy.Authorize("Research Assessor", ticketing.TicketRequest2{
		Modes:        []string{ticketing.ModeReadMeta},
		ColumnGroups: []string{"Visits"},
		Columns:      []string{"Visit1.Date"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Visit1.Date", "Visit2.Date"}, columns)

	denied := []struct {
		name      string
		userGroup string
		request   ticketing.TicketRequest2
	}{
		{"unknown group", "Nobody", ticketing.TicketRequest2{Modes: []string{ticketing.ModeRead}}},
		{"no mode", "Research Assessor", ticketing.TicketRequest2{}},
		{"mode not granted", "Research Assessor", ticketing.TicketRequest2{Modes: []string{ticketing.ModeWrite}}},
		{"column group not granted", "Research Assessor", ticketing.TicketRequest2{Modes: []string{ticketing.ModeRead}, ColumnGroups: []string{"Devices"}}},
		{"column not granted", "Research Assessor", ticketing.TicketRequest2{Modes: []string{ticketing.ModeRead}, Columns: []string{"Device.Serial"}}},
		{"participant group not granted", "Data Administrator", ticketing.TicketRequest2{Modes: []string{ticketing.ModeRead}, ParticipantGroups: []string{"Cohort B"}}},
		{"individual participants", "Data Administrator", ticketing.TicketRequest2{Modes: []string{ticketing.ModeRead}, PolymorphicPseudonyms: [][]byte{{1}}}},
	}
	for _, tt := range denied {
		t.Run(tt.name, func(t *testing.T) {
			_, err := policy.Authorize(tt.userGroup, tt.request)
			assert.ErrorIs(t, err, interfaces.ErrTicketDenied)
		})
	}
}

func TestParseAccessPolicyRejectsUnknownReferences(t *testing.T) {
	_, err := ticketing.ParseAccessPolicy([]byte("userGroups:\n  G:\n    modes: [read]\n    columnGroups: [Missing]\n"))
	assert.Error(t, err)

	_, err = ticketing.ParseAccessPolicy([]byte("userGroups:\n  G:\n    modes: [delete]\n"))
	assert.Error(t, err)
}

func TestCertifyForAccessManager(t *testing.T) {
	pki := pkitest.New(t)
	user := pki.User(t, "alice", "Research Assessor")

	request, err := ticketing.SignRequest(ticketing.TicketRequest2{Modes: []string{ticketing.ModeRead}}, user)
	require.NoError(t, err)

	certified, err := request.CertifyForAccessManager(pki.Roots, nil)
	require.NoError(t, err)
	assert.Equal(t, "Research Assessor", certified.Signatory.OrganizationalUnit())
	assert.Equal(t, []string{ticketing.ModeRead}, certified.Request.Modes)

	// The transcryptor only accepts the stripped request.
	_, err = request.CertifyForTranscryptor(pki.Roots, nil)
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)
	_, err = request.ForTranscryptor().CertifyForTranscryptor(pki.Roots, nil)
	assert.NoError(t, err)

	t.Run("swapped signatures", func(t *testing.T) {
		swapped := request
		swapped.Signature, swapped.LogSignature = request.LogSignature, request.Signature
		_, err := swapped.CertifyForAccessManager(pki.Roots, nil)
		assert.ErrorIs(t, err, interfaces.ErrAuthentication)
	})

	t.Run("signatures too far apart", func(t *testing.T) {
		late, err := signing.MakeAt(request.Data, user, true, time.Now().Add(2*time.Minute))
		require.NoError(t, err)
		skewed := request
		skewed.LogSignature = &late
		_, err = skewed.CertifyForAccessManager(pki.Roots, nil)
		assert.ErrorIs(t, err, interfaces.ErrAuthentication)
	})

	t.Run("log copy from another group", func(t *testing.T) {
		other := pki.User(t, "alice", "Data Administrator")
		logSig, err := signing.Make(request.Data, other, true)
		require.NoError(t, err)
		mixed := request
		mixed.LogSignature = &logSig
		_, err = mixed.CertifyForAccessManager(pki.Roots, nil)
		assert.ErrorIs(t, err, interfaces.ErrAuthentication)
	})
}

type mockCountersigner struct {
	mock.Mock
}

func (m *mockCountersigner) Countersign(ctx context.Context, request ticketing.SignedTicketRequest2, ticket ticketing.SignedTicket2) (ticketing.SignedTicket2, error) {
	args := m.Called(ctx, request, ticket)
	return args.Get(0).(ticketing.SignedTicket2), args.Error(1)
}

type testConstellation struct {
	pki           *pkitest.PKI
	issuer        *ticketing.Issuer
	countersigner *ticketing.TicketCountersigner
}

func newConstellation(t *testing.T) *testConstellation {
	t.Helper()
	pki := pkitest.New(t)
	countersigner := ticketing.NewTicketCountersigner(pki.Server(t, interfaces.TranscryptorTraits), pki.Roots, testLogger)
	issuer, err := ticketing.NewIssuer(ticketing.IssuerConfig{
		Identity: pki.Server(t, interfaces.AccessManagerTraits),
		Roots:    pki.Roots,
		Policy:   loadPolicy(t),
	}, countersigner, testLogger)
	require.NoError(t, err)
	return &testConstellation{pki: pki, issuer: issuer, countersigner: countersigner}
}

func TestIssueAndOpen(t *testing.T) {
	c := newConstellation(t)
	user := c.pki.User(t, "alice", "Research Assessor")

	request, err := ticketing.SignRequest(ticketing.TicketRequest2{
		Modes:                 []string{ticketing.ModeRead},
		PolymorphicPseudonyms: [][]byte{[]byte("pp-1"), []byte("pp-2")},
		ColumnGroups:          []string{"Visits"},
	}, user)
	require.NoError(t, err)

	signed, err := c.issuer.Issue(context.Background(), request)
	require.NoError(t, err)
	require.NotNil(t, signed.TranscryptorSignature)

	ticket, err := signed.Open(ticketing.OpenOptions{Roots: c.pki.Roots, UserGroup: "Research Assessor", Mode: ticketing.ModeReadMeta})
	require.NoError(t, err)
	assert.Equal(t, "Research Assessor", ticket.UserGroup)
	assert.Len(t, ticket.Pseudonyms, 2)
	assert.True(t, ticket.HasColumn("Visit2.Date"))
	assert.Greater(t, ticket.ExpiresAt, ticket.Timestamp)

	_, err = signed.Open(ticketing.OpenOptions{Roots: c.pki.Roots, UserGroup: "Data Administrator"})
	assert.ErrorIs(t, err, interfaces.ErrTicketDenied)

	_, err = signed.Open(ticketing.OpenOptions{Roots: c.pki.Roots, UserGroup: "Research Assessor", Mode: ticketing.ModeWrite})
	assert.ErrorIs(t, err, interfaces.ErrTicketDenied)

	_, err = signed.Open(ticketing.OpenOptions{
		Roots:     c.pki.Roots,
		UserGroup: "Research Assessor",
		Now:       func() time.Time { return time.Now().Add(ticketing.DefaultTicketValidity + time.Minute) },
	})
	assert.ErrorIs(t, err, interfaces.ErrTicketExpired)

	_, err = signed.Open(ticketing.OpenOptions{
		Roots:     c.pki.Roots,
		UserGroup: "Research Assessor",
		Now:       func() time.Time { return time.Now().Add(ticketing.OpenLeeway + time.Minute) },
	})
	assert.ErrorIs(t, err, interfaces.ErrTicketExpired)
}

func TestOpenRequiresBothSignatures(t *testing.T) {
	c := newConstellation(t)
	am := c.pki.Server(t, interfaces.AccessManagerTraits)

	signed, err := ticketing.Sign(ticketing.Ticket2{UserGroup: "G", Modes: []string{ticketing.ModeRead}}, am)
	require.NoError(t, err)

	_, err = signed.Open(ticketing.OpenOptions{Roots: c.pki.Roots, UserGroup: "G"})
	assert.ErrorIs(t, err, interfaces.ErrTicketDenied)

	ticket, err := signed.OpenForLogging(c.pki.Roots)
	require.NoError(t, err)
	assert.Equal(t, "G", ticket.UserGroup)

	// A ticket signed by someone other than the access manager is never countersigned.
	forged, err := ticketing.Sign(ticketing.Ticket2{UserGroup: "G"}, c.pki.User(t, "AccessManager", "AccessManager"))
	require.NoError(t, err)
	err = forged.Countersign(c.pki.Roots, c.pki.Server(t, interfaces.TranscryptorTraits))
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)

	// Countersigned by the wrong server.
	require.NoError(t, signed.Countersign(c.pki.Roots, c.pki.Server(t, interfaces.StorageFacilityTraits)))
	_, err = signed.Open(ticketing.OpenOptions{Roots: c.pki.Roots, UserGroup: "G"})
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)
}

func TestIssueDenied(t *testing.T) {
	c := newConstellation(t)
	countersigner := new(mockCountersigner)
	issuer, err := ticketing.NewIssuer(ticketing.IssuerConfig{
		Identity: c.pki.Server(t, interfaces.AccessManagerTraits),
		Roots:    c.pki.Roots,
		Policy:   loadPolicy(t),
	}, countersigner, testLogger)
	require.NoError(t, err)

	request, err := ticketing.SignRequest(ticketing.TicketRequest2{Modes: []string{ticketing.ModeWrite}}, c.pki.User(t, "alice", "Research Assessor"))
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), request)
	assert.ErrorIs(t, err, interfaces.ErrTicketDenied)
	countersigner.AssertNotCalled(t, "Countersign", mock.Anything, mock.Anything, mock.Anything)
}

func TestCountersignerRejectsMismatchedTicket(t *testing.T) {
	c := newConstellation(t)
	am := c.pki.Server(t, interfaces.AccessManagerTraits)
	user := c.pki.User(t, "alice", "Research Assessor")

	request, err := ticketing.SignRequest(ticketing.TicketRequest2{Modes: []string{ticketing.ModeRead}}, user)
	require.NoError(t, err)

	otherGroup, err := ticketing.Sign(ticketing.Ticket2{UserGroup: "Data Administrator", Modes: []string{ticketing.ModeRead}}, am)
	require.NoError(t, err)
	_, err = c.countersigner.Countersign(context.Background(), request.ForTranscryptor(), otherGroup)
	assert.ErrorIs(t, err, interfaces.ErrTicketDenied)

	moreModes, err := ticketing.Sign(ticketing.Ticket2{UserGroup: "Research Assessor", Modes: []string{ticketing.ModeRead, ticketing.ModeWrite}}, am)
	require.NoError(t, err)
	_, err = c.countersigner.Countersign(context.Background(), request.ForTranscryptor(), moreModes)
	assert.ErrorIs(t, err, interfaces.ErrTicketDenied)
}
