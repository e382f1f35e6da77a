// Package pagehandler moves encrypted data pages between clients and the
// storage facility.
//
// Both directions use length prefixed frames: a u32 big endian length
// followed by that many bytes. An upload body is a signed UploadHeader frame
// followed by the serialized pages; a download response is a DownloadHeader
// frame followed by the pages of the entry. The storage facility never sees
// plaintext. It checks that the signer's ticket grants write or read access
// to the participant and column, enforces page order and answers uploads
// with an xxhash64 digest of the pages it stored.
package pagehandler
