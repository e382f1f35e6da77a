package blocklisthandler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/api"
	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/cryptoutils/pkitest"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/tokenblocking"
)

type fixture struct {
	pki       *pkitest.PKI
	blocklist *tokenblocking.MemoryBlocklist
	url       string
	client    *http.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pki := pkitest.New(t)
	blocklist := tokenblocking.NewMemoryBlocklist()

	router := chi.NewRouter()
	NewHandler(blocklist, pki.Roots, slog.New(slog.NewTextHandler(io.Discard, nil))).RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &fixture{pki: pki, blocklist: blocklist, url: server.URL, client: server.Client()}
}

func (f *fixture) clientFor(identity *cryptoutils.Identity) *Client {
	return NewClient(f.url, f.client, identity)
}

func statusCode(t *testing.T, err error) int {
	t.Helper()
	var statusErr *api.StatusError
	require.True(t, errors.As(err, &statusErr), "expected a status error, got %v", err)
	return statusErr.StatusCode
}

func target(subject string) interfaces.TokenIdentifier {
	return interfaces.TokenIdentifier{
		Subject:       subject,
		UserGroup:     "Research Assessor",
		IssueDateTime: time.Unix(1700000000, 0).UTC(),
	}
}

func TestCreateListRemove(t *testing.T) {
	f := newFixture(t)
	admin := f.clientFor(f.pki.User(t, "carol", interfaces.UserGroupAccessAdministrator))
	ctx := context.Background()

	id, err := admin.Create(ctx, target("alice"), "left the project")
	require.NoError(t, err)

	entries, err := admin.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.True(t, target("alice").Equal(entries[0].Target))
	assert.Equal(t, "left the project", entries[0].Metadata.Note)
	assert.Equal(t, "carol", entries[0].Metadata.Issuer)
	assert.WithinDuration(t, time.Now(), entries[0].Metadata.CreationDateTime, time.Minute)

	blocked, err := tokenblocking.IsBlocking(f.blocklist, target("alice"))
	require.NoError(t, err)
	assert.True(t, blocked)

	removed, err := admin.Remove(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, removed.ID)

	entries, err = admin.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = admin.Remove(ctx, id)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, statusCode(t, err))
}

func TestAccessManagerMayOnlyCreate(t *testing.T) {
	f := newFixture(t)
	am := f.clientFor(f.pki.Server(t, interfaces.AccessManagerTraits))
	ctx := context.Background()

	id, err := am.Create(ctx, target("bob"), "")
	require.NoError(t, err)

	entry, err := f.blocklist.EntryByID(id)
	require.NoError(t, err)
	assert.Equal(t, interfaces.AccessManagerTraits.CertificateSubject(), entry.Metadata.Issuer)

	_, err = am.List(ctx)
	assert.ErrorIs(t, err, api.ErrForbidden)

	_, err = am.Remove(ctx, id)
	assert.ErrorIs(t, err, api.ErrForbidden)
}

func TestRejectsUnprivilegedSigners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	researcher := f.clientFor(f.pki.User(t, "alice", "Research Assessor"))
	_, err := researcher.Create(ctx, target("alice"), "")
	assert.ErrorIs(t, err, api.ErrForbidden)
	_, err = researcher.List(ctx)
	assert.ErrorIs(t, err, api.ErrForbidden)

	// A user certificate cannot impersonate the access manager's group.
	impostor := f.clientFor(f.pki.User(t, "mallory", interfaces.AccessManagerTraits.CertificateSubject()))
	_, err = impostor.Create(ctx, target("alice"), "")
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)

	// Certificates from another PKI do not validate.
	other := pkitest.New(t)
	stranger := f.clientFor(other.User(t, "eve", interfaces.UserGroupAccessAdministrator))
	_, err = stranger.List(ctx)
	assert.ErrorIs(t, err, interfaces.ErrAuthentication)

	size, err := f.blocklist.Size()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestCreateRequiresTarget(t *testing.T) {
	f := newFixture(t)
	admin := f.clientFor(f.pki.User(t, "carol", interfaces.UserGroupAccessAdministrator))

	_, err := admin.Create(context.Background(), interfaces.TokenIdentifier{Subject: "alice"}, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, statusCode(t, err))
}
