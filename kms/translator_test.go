package kms

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/keysplit"
)

func newTestTranslators(t *testing.T) *Translators {
	t.Helper()
	keys, err := GenerateSystemKeys(false)
	require.NoError(t, err)
	translators, err := NewTranslators(keys)
	require.NoError(t, err)
	return translators
}

func userRecipient(t *testing.T, payload string) keysplit.RekeyRecipient {
	t.Helper()
	recipient, err := keysplit.NewRekeyRecipient(interfaces.PartyUser, []byte(payload))
	require.NoError(t, err)
	return recipient
}

func TestKeyComponentDeterminism(t *testing.T) {
	translators := newTestTranslators(t)
	recipient := userRecipient(t, "alice certificate")

	first := translators.Pseudonym.KeyComponent(recipient)
	second := translators.Pseudonym.KeyComponent(recipient)
	assert.True(t, first.Equal(second))
	assert.False(t, first.IsZero())

	// The same recipient has unrelated components in the two domains.
	assert.False(t, first.Equal(translators.Data.KeyComponent(recipient)))
}

func TestKeyComponentUnlinkability(t *testing.T) {
	translators := newTestTranslators(t)

	seen := make(map[string]string)
	for i := 0; i < 100; i++ {
		payload := fmt.Sprintf("user-%d", i)
		component := fmt.Sprintf("%x", translators.Data.KeyComponent(userRecipient(t, payload)).Bytes())
		previous, duplicate := seen[component]
		require.False(t, duplicate, "%s and %s derive the same component", payload, previous)
		seen[component] = payload
	}

	// Same payload, different recipient type.
	server, err := keysplit.NewRekeyRecipient(interfaces.PartyTranscryptor, []byte("user-0"))
	require.NoError(t, err)
	assert.False(t, translators.Data.KeyComponent(server).Equal(translators.Data.KeyComponent(userRecipient(t, "user-0"))))
}

func TestKeyComponentsCombineAcrossAuthorities(t *testing.T) {
	am := newTestTranslators(t)
	ts := newTestTranslators(t)
	recipient := userRecipient(t, "alice certificate")

	combined, err := keysplit.CombineKeyComponents(am.Data.KeyComponent(recipient), ts.Data.KeyComponent(recipient))
	require.NoError(t, err)

	factors := am.Data.RekeyKeyFactor(recipient).Mul(ts.Data.RekeyKeyFactor(recipient))
	shares := am.Data.share.Scalar().Mul(ts.Data.share.Scalar())
	assert.True(t, combined.Equal(factors.Mul(shares)))

	// No authority's component alone equals the combined key.
	assert.False(t, combined.Equal(am.Data.KeyComponent(recipient)))
	assert.False(t, combined.Equal(ts.Data.KeyComponent(recipient)))
}

func TestKeyFactors(t *testing.T) {
	translators := newTestTranslators(t)
	recipient, err := keysplit.RecipientForServer(interfaces.PartyStorageFacility)
	require.NoError(t, err)

	factors, err := translators.Pseudonym.KeyFactors(recipient)
	require.NoError(t, err)
	assert.False(t, factors.Reshuffle.Equal(factors.Rekey))

	_, err = translators.Data.KeyFactors(recipient)
	require.ErrorIs(t, err, errNoReshuffleSecret)
}

func TestTranslatorCombine(t *testing.T) {
	translators := newTestTranslators(t)
	recipient := userRecipient(t, "alice")

	additive := translators.Data.WithCombine(func(factor, share keysplit.Scalar) keysplit.Scalar {
		return factor.Add(share)
	})
	expected := translators.Data.RekeyKeyFactor(recipient).Add(translators.Data.share.Scalar())
	assert.True(t, additive.KeyComponent(recipient).Equal(expected))
	assert.Equal(t, keysplit.DomainData, additive.Domain())
}

func TestTranslatorRejectsMissingSecrets(t *testing.T) {
	_, err := NewPseudonymTranslator(keysplit.PseudonymTranslationKeys{})
	require.ErrorIs(t, err, interfaces.ErrInvalidSecret)

	_, err = NewDataTranslator(keysplit.DataTranslationKeys{})
	require.ErrorIs(t, err, interfaces.ErrInvalidSecret)
}
