// Package kms holds the key material services of an authority.
//
// # Translators
//
// A Translator derives, for one domain (pseudonym or data), the key factors
// and key components of recipients:
//
//	factor    = reduce(HMAC-SHA512(secret, SHA-256(u32be(domain) || u32be(type) || payload)))
//	component = factor · masterPrivateKeyShare
//
// Components of all authorities multiply into the recipient's key; no single
// authority learns it. The combination is a CombineFunc so the scalar algebra
// can be swapped.
//
// # System keys
//
// SystemKeys is the JSON file holding an authority's secrets (hex encoded),
// optionally wrapped as {"Keys": {...}}. It is loaded once at start.
//
// # ShamirEscrow
//
// Instead of keeping the SystemKeys file on disk, an authority can run with
// the file split into Shamir shares held by administrators, each encrypted to
// one admin public key. The escrow starts locked and answers
// interfaces.ErrLocked until a threshold of admins submitted signed shares:
//
//	escrow, _ := kms.NewShamirEscrow(kms.ShamirConfig{Threshold: 2, AdminPubKeys: pubKeys}, log)
//	signature, _ := kms.SignShare(index, share, adminKey)
//	err := escrow.SubmitShare(index, share, signature, adminPubKeyPEM)
//
// # ClientCA
//
// ClientCA issues user signing certificates from CSRs carrying the user as CN
// and the user group as OU. It is used by the key server after a user's
// enrollment token has been verified.
package kms
