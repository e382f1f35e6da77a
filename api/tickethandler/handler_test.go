package tickethandler

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/cryptoutils/pkitest"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/metrics"
	"github.com/ruteri/splitkey-pep/ticketing"
)

const policy = `
columnGroups:
  Visits: [Visit1.Date, Visit2.Date]
userGroups:
  Research Assessor:
    modes: [read]
    participantGroups: ["*"]
    columnGroups: [Visits]
`

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type constellation struct {
	pki       *pkitest.PKI
	amURL     string
	amMetrics *metrics.Metrics
	tsMetrics *metrics.Metrics
}

// newConstellation runs an access manager whose countersigner talks to a
// transcryptor over HTTP.
func newConstellation(t *testing.T) *constellation {
	t.Helper()
	pki := pkitest.New(t)

	tsMetrics := metrics.NewMetrics("pep", "ts")
	tsRouter := chi.NewRouter()
	countersigner := ticketing.NewTicketCountersigner(pki.Server(t, interfaces.TranscryptorTraits), pki.Roots, testLogger)
	NewCountersignHandler(countersigner, tsMetrics, testLogger).RegisterRoutes(tsRouter)
	ts := httptest.NewServer(tsRouter)
	t.Cleanup(ts.Close)

	accessPolicy, err := ticketing.ParseAccessPolicy([]byte(policy))
	require.NoError(t, err)
	issuer, err := ticketing.NewIssuer(ticketing.IssuerConfig{
		Identity: pki.Server(t, interfaces.AccessManagerTraits),
		Roots:    pki.Roots,
		Policy:   accessPolicy,
	}, NewCountersignClient(ts.URL, ts.Client()), testLogger)
	require.NoError(t, err)

	amMetrics := metrics.NewMetrics("pep", "am")
	amRouter := chi.NewRouter()
	NewIssueHandler(issuer, amMetrics, testLogger).RegisterRoutes(amRouter)
	am := httptest.NewServer(amRouter)
	t.Cleanup(am.Close)

	return &constellation{pki: pki, amURL: am.URL, amMetrics: amMetrics, tsMetrics: tsMetrics}
}

func TestRequestTicket(t *testing.T) {
	c := newConstellation(t)
	client := NewClient(c.amURL, nil, c.pki.User(t, "alice", "Research Assessor"))

	signed, err := client.RequestTicket(context.Background(), ticketing.TicketRequest2{
		Modes:                 []string{ticketing.ModeRead},
		PolymorphicPseudonyms: [][]byte{[]byte("pp")},
		ColumnGroups:          []string{"Visits"},
	})
	require.NoError(t, err)

	ticket, err := signed.Open(ticketing.OpenOptions{Roots: c.pki.Roots, UserGroup: "Research Assessor", Mode: ticketing.ModeRead})
	require.NoError(t, err)
	assert.Equal(t, []string{"Visit1.Date", "Visit2.Date"}, ticket.Columns)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.amMetrics.TicketsIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tsMetrics.TicketsIssued))
}

func TestRequestTicketDenied(t *testing.T) {
	c := newConstellation(t)
	client := NewClient(c.amURL, nil, c.pki.User(t, "alice", "Research Assessor"))

	_, err := client.RequestTicket(context.Background(), ticketing.TicketRequest2{Modes: []string{ticketing.ModeWrite}})
	assert.ErrorIs(t, err, interfaces.ErrTicketDenied)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.amMetrics.TicketsDenied))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.tsMetrics.TicketsIssued))

	stranger := NewClient(c.amURL, nil, pkitest.New(t).User(t, "eve", "Research Assessor"))
	_, err = stranger.RequestTicket(context.Background(), ticketing.TicketRequest2{Modes: []string{ticketing.ModeRead}})
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)
}

func TestCountersignRejectsForgedTicket(t *testing.T) {
	c := newConstellation(t)
	user := c.pki.User(t, "alice", "Research Assessor")

	tsRouter := chi.NewRouter()
	NewCountersignHandler(ticketing.NewTicketCountersigner(c.pki.Server(t, interfaces.TranscryptorTraits), c.pki.Roots, testLogger), nil, testLogger).RegisterRoutes(tsRouter)
	ts := httptest.NewServer(tsRouter)
	defer ts.Close()

	request, err := ticketing.SignRequest(ticketing.TicketRequest2{Modes: []string{ticketing.ModeRead}}, user)
	require.NoError(t, err)
	// Signed by the user instead of the access manager.
	forged, err := ticketing.Sign(ticketing.Ticket2{Modes: []string{ticketing.ModeRead}, UserGroup: "Research Assessor"}, user)
	require.NoError(t, err)

	_, err = NewCountersignClient(ts.URL, ts.Client()).Countersign(context.Background(), request.ForTranscryptor(), forged)
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)
}
