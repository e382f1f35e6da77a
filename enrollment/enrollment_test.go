package enrollment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/cryptoutils"
	"github.com/ruteri/splitkey-pep/cryptoutils/pkitest"
	"github.com/ruteri/splitkey-pep/enrollment"
	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/keysplit"
	"github.com/ruteri/splitkey-pep/kms"
	"github.com/ruteri/splitkey-pep/signing"
)

func newTranslators(t *testing.T) *kms.Translators {
	t.Helper()
	keys, err := kms.GenerateSystemKeys(false)
	require.NoError(t, err)
	translators, err := kms.NewTranslators(keys)
	require.NoError(t, err)
	return translators
}

func validateOptions(pki *pkitest.PKI) signing.ValidateOptions {
	return signing.ValidateOptions{Roots: pki.Roots, Leeway: enrollment.DefaultLeeway}
}

func TestHandleRequest(t *testing.T) {
	pki := pkitest.New(t)
	translators := newTranslators(t)

	tests := []struct {
		name       string
		identity   *cryptoutils.Identity
		dataAccess bool
	}{
		{"user", pki.User(t, "alice", "Research Assessor"), true},
		{"transcryptor", pki.Server(t, interfaces.TranscryptorTraits), true},
		{"storage facility", pki.Server(t, interfaces.StorageFacilityTraits), true},
		{"access manager", pki.Server(t, interfaces.AccessManagerTraits), false},
		{"registration server", pki.Server(t, interfaces.RegistrationServerTraits), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request, err := enrollment.NewRequest(tt.identity)
			require.NoError(t, err)

			response, err := enrollment.HandleRequest(request, translators, validateOptions(pki))
			require.NoError(t, err)
			assert.Equal(t, tt.dataAccess, response.HasDataAccess())
			assert.False(t, response.PseudonymKeyComponent.IsZero())

			recipient, err := keysplit.RecipientForCertificate(tt.identity.Chain)
			require.NoError(t, err)
			assert.True(t, response.PseudonymKeyComponent.Equal(translators.Pseudonym.KeyComponent(recipient.Rekey)))
			if tt.dataAccess {
				assert.True(t, response.EncryptionKeyComponent.Equal(translators.Data.KeyComponent(recipient.Rekey)))
			}
		})
	}
}

func TestHandleRequestDenied(t *testing.T) {
	pki := pkitest.New(t)
	translators := newTranslators(t)

	t.Run("non enrollable server", func(t *testing.T) {
		identity := pki.Server(t, interfaces.KeyServerTraits)
		request, err := enrollment.NewRequest(identity)
		require.NoError(t, err)

		_, err = enrollment.HandleRequest(request, translators, validateOptions(pki))
		assert.ErrorIs(t, err, interfaces.ErrEnrollmentDenied)
	})

	t.Run("unknown server subject", func(t *testing.T) {
		identity := pkitest.Issue(t, pki.ServerCA, "Mystery Server", "Mystery Server", cryptoutils.UsageSigning)
		request, err := enrollment.NewRequest(identity)
		require.NoError(t, err)

		_, err = enrollment.HandleRequest(request, translators, validateOptions(pki))
		assert.ErrorIs(t, err, interfaces.ErrEnrollmentDenied)
	})

	t.Run("untrusted chain", func(t *testing.T) {
		other := pkitest.New(t)
		request, err := enrollment.NewRequest(other.User(t, "mallory", "Research Assessor"))
		require.NoError(t, err)

		_, err = enrollment.HandleRequest(request, translators, validateOptions(pki))
		assert.ErrorIs(t, err, interfaces.ErrAuthentication)
		assert.NotErrorIs(t, err, interfaces.ErrEnrollmentDenied)
	})

	t.Run("stale request", func(t *testing.T) {
		request, err := enrollment.NewRequest(pki.User(t, "alice", "Research Assessor"))
		require.NoError(t, err)

		opts := validateOptions(pki)
		opts.Now = func() time.Time { return time.Now().Add(enrollment.DefaultLeeway + time.Minute) }
		_, err = enrollment.HandleRequest(request, translators, opts)
		assert.ErrorIs(t, err, signing.ErrValidityPeriod)
	})
}

func TestCombineResponses(t *testing.T) {
	a, b := keysplit.RandomScalar(), keysplit.RandomScalar()
	c, d := keysplit.RandomScalar(), keysplit.RandomScalar()

	keys, err := enrollment.CombineResponses(
		enrollment.KeyComponentResponse{PseudonymKeyComponent: a, EncryptionKeyComponent: &c},
		enrollment.KeyComponentResponse{PseudonymKeyComponent: b, EncryptionKeyComponent: &d},
	)
	require.NoError(t, err)
	assert.True(t, keys.PseudonymKey.Equal(a.Mul(b)))
	require.NotNil(t, keys.DataKey)
	assert.True(t, keys.DataKey.Equal(c.Mul(d)))

	keys, err = enrollment.CombineResponses(
		enrollment.KeyComponentResponse{PseudonymKeyComponent: a},
		enrollment.KeyComponentResponse{PseudonymKeyComponent: b},
	)
	require.NoError(t, err)
	assert.Nil(t, keys.DataKey)

	_, err = enrollment.CombineResponses(
		enrollment.KeyComponentResponse{PseudonymKeyComponent: a, EncryptionKeyComponent: &c},
		enrollment.KeyComponentResponse{PseudonymKeyComponent: b},
	)
	assert.Error(t, err)

	_, err = enrollment.CombineResponses()
	assert.Error(t, err)
}

type localAuthority struct {
	name        string
	translators *kms.Translators
	opts        signing.ValidateOptions
	err         error
}

func (a *localAuthority) Name() string { return a.name }

func (a *localAuthority) RequestKeyComponent(_ context.Context, request enrollment.SignedKeyComponentRequest) (enrollment.KeyComponentResponse, error) {
	if a.err != nil {
		return enrollment.KeyComponentResponse{}, a.err
	}
	return enrollment.HandleRequest(request, a.translators, a.opts)
}

func TestEnroll(t *testing.T) {
	pki := pkitest.New(t)
	am := &localAuthority{name: "AM", translators: newTranslators(t), opts: validateOptions(pki)}
	ts := &localAuthority{name: "TS", translators: newTranslators(t), opts: validateOptions(pki)}
	user := pki.User(t, "alice", "Research Assessor")

	keys, err := enrollment.Enroll(context.Background(), user, am, ts)
	require.NoError(t, err)
	require.NotNil(t, keys.DataKey)

	recipient, err := keysplit.RecipientForCertificate(user.Chain)
	require.NoError(t, err)
	expected := am.translators.Pseudonym.KeyComponent(recipient.Rekey).Mul(ts.translators.Pseudonym.KeyComponent(recipient.Rekey))
	assert.True(t, keys.PseudonymKey.Equal(expected))

	// Enrolling again yields the same keys.
	again, err := enrollment.Enroll(context.Background(), user, am, ts)
	require.NoError(t, err)
	assert.True(t, keys.PseudonymKey.Equal(again.PseudonymKey))
	assert.True(t, keys.DataKey.Equal(*again.DataKey))

	amKeys, err := enrollment.Enroll(context.Background(), pki.Server(t, interfaces.AccessManagerTraits), am, ts)
	require.NoError(t, err)
	assert.Nil(t, amKeys.DataKey)
}

func TestEnrollReportsEveryFailure(t *testing.T) {
	pki := pkitest.New(t)
	am := &localAuthority{name: "AM", err: errors.New("connection refused")}
	ts := &localAuthority{name: "TS", err: interfaces.ErrLocked}

	_, err := enrollment.Enroll(context.Background(), pki.User(t, "alice", "Research Assessor"), am, ts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AM: connection refused")
	assert.ErrorIs(t, err, interfaces.ErrLocked)
}
