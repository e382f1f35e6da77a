// Package cryptoutils provides the certificate and key handling shared by the
// PEP services.
//
// # Certificates
//
// The PKI consists of a root with three intermediates: the server CA
// (ServerCAName) issuing server signing certificates, the client CA
// (ClientCAName) issuing user signing certificates, and a TLS CA. A signing
// certificate carries both a CN and an OU and no TLS server usage. Server
// signing certificates carry the server's subject as CN and OU; user
// certificates carry the user name as CN and the user group as OU.
//
// GetEnrolledParty infers the role of a CertificateChain from these fields.
// CertificateAuthority issues certificates from CSRs, and Identity bundles a
// chain with its private key for signing.
//
// # Share encryption
//
// EncryptWithPublicKey and DecryptWithPrivateKey implement ECIES over P-256
// (ECDH, SHA-256, AES-GCM) and are used to protect escrowed key shares:
//
//	[ephemeral key length (2 bytes)][ephemeral key][nonce (12 bytes)][ciphertext]
//
// DerivePassphraseKey turns an operator passphrase into a storage encryption
// key with Argon2id.
package cryptoutils
