// Package storage keeps encrypted data pages in content-addressed backends.
//
// Pages and entry manifests are identified by the SHA-256 hash of their
// serialized form. Backends only ever see ciphertext; every backend checks
// the hash of fetched content against the requested id.
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/pep/pages/
//   - s3://[KEY:SECRET@]bucket-name/prefix/?region=us-west-2&endpoint=minio:9000&pathStyle=true
//   - vault://vault.example.com:8200/secret/pep/pages
//
// Vault backends authenticate with a TLS client certificate supplied through
// StorageBackendFactory.WithTLSAuth.
//
// # Redundancy
//
// A comma separated list of URIs creates a MultiStorageBackend which stores
// to every available backend and fetches from the first backend that has
// the content.
//
// # Entries
//
// PageStore stores an upload stream page by page and records the page ids in
// a manifest together with the participant pseudonym, the column and an
// xxhash64 digest of the serialized pages. The manifest id is the handle
// clients use to download the entry again.
package storage
