package cryptoutils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptionDecryption(t *testing.T) {
	publicKeyPEM, privateKeyPEM, err := RandomP256Keypair()
	require.NoError(t, err)

	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "Simple string",
			data: []byte("This is a secret message"),
		},
		{
			name: "Shamir share",
			data: append([]byte{0x01}, make([]byte, 200)...),
		},
		{
			name: "Empty data",
			data: []byte{},
		},
		{
			name: "Long data",
			data: make([]byte, 1024),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encryptedData, err := EncryptWithPublicKey(publicKeyPEM, tc.data)
			require.NoError(t, err)
			require.Greater(t, len(encryptedData), len(tc.data))

			decryptedData, err := DecryptWithPrivateKey(privateKeyPEM, encryptedData)
			require.NoError(t, err)
			require.Len(t, decryptedData, len(tc.data))
			if len(tc.data) > 0 {
				require.Equal(t, tc.data, decryptedData)
			}
		})
	}
}

func TestDecryptionWithWrongKey(t *testing.T) {
	publicKeyPEM, _, err := RandomP256Keypair()
	require.NoError(t, err)
	_, otherPrivateKeyPEM, err := RandomP256Keypair()
	require.NoError(t, err)

	encryptedData, err := EncryptWithPublicKey(publicKeyPEM, []byte("Top secret data"))
	require.NoError(t, err)

	_, err = DecryptWithPrivateKey(otherPrivateKeyPEM, encryptedData)
	require.Error(t, err)
}

func TestInvalidKeyFormats(t *testing.T) {
	_, err := EncryptWithPublicKey([]byte("not a valid PEM"), []byte("test"))
	require.Error(t, err)

	_, err = DecryptWithPrivateKey([]byte("not a valid PEM"), []byte("test"))
	require.Error(t, err)

	_, privateKeyPEM, err := RandomP256Keypair()
	require.NoError(t, err)

	_, err = DecryptWithPrivateKey(privateKeyPEM, []byte{0x01})
	require.Error(t, err)

	_, err = DecryptWithPrivateKey(privateKeyPEM, make([]byte, 100))
	require.Error(t, err)
}

func TestDerivePassphraseKey(t *testing.T) {
	key := DerivePassphraseKey([]byte("correct horse"), "blocklist")
	require.Len(t, key, 32)
	require.Equal(t, key, DerivePassphraseKey([]byte("correct horse"), "blocklist"))
	require.NotEqual(t, key, DerivePassphraseKey([]byte("correct horse"), "pages"))
	require.NotEqual(t, key, DerivePassphraseKey([]byte("battery staple"), "blocklist"))
}
