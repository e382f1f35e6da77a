package keysplit

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/interfaces"
)

func TestNewKeyFactorSecret(t *testing.T) {
	_, err := NewKeyFactorSecret(make([]byte, KeyFactorSecretSize))
	require.ErrorIs(t, err, interfaces.ErrInvalidSecret)

	_, err = NewKeyFactorSecret(make([]byte, 32))
	require.ErrorIs(t, err, interfaces.ErrInvalidSecret)

	for i := 0; i < 64; i++ {
		raw := make([]byte, KeyFactorSecretSize)
		raw[i] = 1
		secret, err := NewKeyFactorSecret(raw)
		require.NoError(t, err, "byte %d set", i)
		assert.True(t, secret.IsSet())
	}

	for i := 0; i < 32; i++ {
		raw := make([]byte, KeyFactorSecretSize)
		_, err := rand.Read(raw)
		require.NoError(t, err)
		_, err = NewKeyFactorSecret(raw)
		require.NoError(t, err)
	}
}

func TestNewMasterPrivateKeyShare(t *testing.T) {
	_, err := NewMasterPrivateKeyShare(make([]byte, ScalarSize))
	require.ErrorIs(t, err, interfaces.ErrInvalidSecret)

	_, err = NewMasterPrivateKeyShare(make([]byte, 31))
	require.ErrorIs(t, err, interfaces.ErrInvalidSecret)

	one := make([]byte, ScalarSize)
	one[ScalarSize-1] = 1
	share, err := NewMasterPrivateKeyShare(one)
	require.NoError(t, err)
	assert.True(t, share.Scalar().Equal(OneScalar()))

	for i := 0; i < 32; i++ {
		share, err := NewMasterPrivateKeyShare(RandomScalar().Bytes())
		require.NoError(t, err)
		assert.True(t, share.IsSet())
	}
}

func TestSecretsAreRedacted(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, KeyFactorSecretSize)
	secret, err := NewKeyFactorSecret(raw)
	require.NoError(t, err)
	share, err := NewMasterPrivateKeyShare(RandomScalar().Bytes())
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("loaded", "secret", secret, "share", share, "component", share.Scalar())

	formatted := buf.String() + fmt.Sprintf("%v %+v %#v %s", secret, share, secret, share)
	assert.NotContains(t, formatted, "abab")
	assert.NotContains(t, formatted, fmt.Sprintf("%x", share.Scalar().Bytes()))
	assert.True(t, strings.Contains(buf.String(), "REDACTED"))
}

func TestScalarEncoding(t *testing.T) {
	x := RandomScalar()
	decoded, err := ScalarFromBytes(x.Bytes())
	require.NoError(t, err)
	assert.True(t, x.Equal(decoded))

	text, err := x.MarshalText()
	require.NoError(t, err)
	var fromText Scalar
	require.NoError(t, fromText.UnmarshalText(text))
	assert.True(t, x.Equal(fromText))

	// Big-endian: the least significant byte is last.
	assert.Equal(t, byte(1), OneScalar().Bytes()[ScalarSize-1])
	assert.True(t, Scalar{}.IsZero())
	assert.False(t, OneScalar().IsZero())
}

func TestScalarRejectsNonCanonicalEncodings(t *testing.T) {
	// Group order l = 2^252 + 27742317777372353535851937790883648493, big-endian.
	order := []byte{
		0x10, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x14, 0xde, 0xf9, 0xde, 0xa2, 0xf7, 0x9c, 0xd6,
		0x58, 0x12, 0x63, 0x1a, 0x5c, 0xf5, 0xd3, 0xed,
	}
	orderPlusOne := bytes.Clone(order)
	orderPlusOne[ScalarSize-1]++
	largest := bytes.Clone(order)
	largest[ScalarSize-1]--

	for name, raw := range map[string][]byte{
		"group order":     order,
		"group order + 1": orderPlusOne,
		"all bits set":    bytes.Repeat([]byte{0xff}, ScalarSize),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ScalarFromBytes(raw)
			assert.ErrorIs(t, err, ErrNonCanonicalScalar)

			_, err = NewMasterPrivateKeyShare(raw)
			assert.ErrorIs(t, err, interfaces.ErrInvalidSecret)

			var fromText Scalar
			assert.Error(t, fromText.UnmarshalText([]byte(fmt.Sprintf("%x", raw))))
		})
	}

	x, err := ScalarFromBytes(largest)
	require.NoError(t, err)
	assert.Equal(t, largest, x.Bytes())
	assert.True(t, x.Add(OneScalar()).IsZero())
}

func TestCombineKeyComponents(t *testing.T) {
	a, b, c := RandomScalar(), RandomScalar(), RandomScalar()

	combined, err := CombineKeyComponents(a, b, c)
	require.NoError(t, err)
	assert.True(t, combined.Equal(a.Mul(b).Mul(c)))

	reordered, err := CombineKeyComponents(c, a, b)
	require.NoError(t, err)
	assert.True(t, combined.Equal(reordered))

	_, err = CombineKeyComponents()
	require.Error(t, err)
}
