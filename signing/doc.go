// Package signing implements the signed message envelope exchanged between
// users and servers.
//
// A Signature covers a byte string together with the signing time and scheme:
//
//	digest = SHA-512(u32be(scheme) || u64be(timestamp ms) || u8(isLogCopy) || data)[:32]
//
// signed with ECDSA P-256 (ASN.1). Scheme 3 omits the log copy byte and is
// accepted for validation only. A log copy is a second signature over the
// same data, sent to the party that keeps the request log.
//
// Validation checks, in order: a non-empty chain, trust up to one of the
// configured roots, a signing (non TLS server) leaf certificate, the expected
// common name, the timestamp leeway, the log copy expectation and finally the
// signature itself. Every failure wraps interfaces.ErrAuthentication;
// timestamp failures are ErrValidityPeriod.
//
// Signed[T] stores the serialized payload next to its signature so that the
// exact signed bytes are validated before anything is parsed.
package signing
