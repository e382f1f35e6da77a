package paging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/interfaces"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := NewPageKey()
	require.NoError(t, err)
	return key
}

func TestPageRoundTrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("participant visit data")

	for _, scheme := range []EncryptionScheme{EncryptionSchemeV1, EncryptionSchemeV2, EncryptionSchemeV3} {
		metadata := Metadata{Tag: "Visit1.Date", Timestamp: 1_700_000_000_000, EncryptionScheme: scheme}
		page := &DataPayloadPage{Index: 1, PageNumber: 3}
		require.NoError(t, page.SetEncrypted(plaintext, key, metadata))
		assert.Len(t, page.Nonce, NonceSize)
		assert.Len(t, page.MAC, MACSize)
		assert.NotEqual(t, plaintext, page.PayloadData)

		decrypted, err := page.Decrypt(key, metadata)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestPageIntegrity(t *testing.T) {
	key := testKey(t)
	metadata := Metadata{Tag: "Visit1.Date", EncryptionScheme: EncryptionSchemeV1}

	encrypt := func(t *testing.T) *DataPayloadPage {
		page := &DataPayloadPage{}
		require.NoError(t, page.SetEncrypted([]byte("secret"), key, metadata))
		return page
	}

	tests := []struct {
		name     string
		tamper   func(p *DataPayloadPage)
		key      []byte
		metadata Metadata
	}{
		{"flipped ciphertext byte", func(p *DataPayloadPage) { p.PayloadData[0] ^= 1 }, key, metadata},
		{"flipped MAC byte", func(p *DataPayloadPage) { p.MAC[0] ^= 1 }, key, metadata},
		{"flipped nonce byte", func(p *DataPayloadPage) { p.Nonce[0] ^= 1 }, key, metadata},
		{"wrong key", func(*DataPayloadPage) {}, testKey(t), metadata},
		{"other metadata", func(*DataPayloadPage) {}, key, Metadata{Tag: "Visit2.Date", EncryptionScheme: EncryptionSchemeV1}},
		{"truncated MAC", func(p *DataPayloadPage) { p.MAC = p.MAC[:8] }, key, metadata},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := encrypt(t)
			tt.tamper(page)
			plaintext, err := page.Decrypt(tt.key, tt.metadata)
			assert.ErrorIs(t, err, interfaces.ErrPageIntegrity)
			assert.Nil(t, plaintext)
		})
	}
}

func TestPageNumberIsBound(t *testing.T) {
	key := testKey(t)
	metadata := Metadata{EncryptionScheme: EncryptionSchemeV3}

	page := &DataPayloadPage{PageNumber: 0}
	require.NoError(t, page.SetEncrypted([]byte("first page"), key, metadata))
	page.PageNumber = 1
	_, err := page.Decrypt(key, metadata)
	assert.ErrorIs(t, err, interfaces.ErrPageIntegrity)
}

func TestInvalidKeyAndScheme(t *testing.T) {
	page := &DataPayloadPage{}
	assert.Error(t, page.SetEncrypted([]byte("x"), make([]byte, 16), Metadata{EncryptionScheme: EncryptionSchemeV3}))
	assert.Error(t, page.SetEncrypted([]byte("x"), testKey(t), Metadata{EncryptionScheme: 9}))
}

func TestPageBinaryEncoding(t *testing.T) {
	page := &DataPayloadPage{Index: 7, PageNumber: 2}
	require.NoError(t, page.SetEncrypted([]byte("payload"), testKey(t), Metadata{EncryptionScheme: EncryptionSchemeV3}))

	data, err := page.MarshalBinary()
	require.NoError(t, err)

	var decoded DataPayloadPage
	require.NoError(t, decoded.UnmarshalBinary(data))
	assert.Equal(t, *page, decoded)

	assert.Error(t, decoded.UnmarshalBinary(data[:20]))
	assert.Error(t, decoded.UnmarshalBinary(append(bytes.Clone(data), 0)))

	_, err = (&DataPayloadPage{}).MarshalBinary()
	assert.Error(t, err)
}

func TestMetadataCanonicalEncoding(t *testing.T) {
	a := Metadata{Tag: "t", Extra: map[string]string{"a": "1", "b": "2"}}
	b := Metadata{Tag: "t", Extra: map[string]string{"b": "2", "a": "1"}}
	assert.Equal(t, a.canonical(), b.canonical())

	// Length prefixes keep field boundaries unambiguous.
	c := Metadata{Tag: "t", Extra: map[string]string{"ab": ""}}
	d := Metadata{Tag: "t", Extra: map[string]string{"a": "b"}}
	assert.NotEqual(t, c.canonical(), d.canonical())
}
