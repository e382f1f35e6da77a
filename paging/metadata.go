package paging

import (
	"encoding/binary"
	"sort"
)

// EncryptionScheme selects what page encryption binds as associated data.
type EncryptionScheme uint32

const (
	// EncryptionSchemeV1 binds the file metadata.
	EncryptionSchemeV1 EncryptionScheme = 1
	// EncryptionSchemeV2 binds the page number.
	EncryptionSchemeV2 EncryptionScheme = 2
	// EncryptionSchemeV3 binds the page number; metadata is protected separately.
	EncryptionSchemeV3 EncryptionScheme = 3

	LatestEncryptionScheme = EncryptionSchemeV3
)

// Metadata describes a stored file.
type Metadata struct {
	// Tag is the column the file belongs to.
	Tag string `json:"tag"`
	// Timestamp is in milliseconds since the Unix epoch.
	Timestamp        int64             `json:"timestamp"`
	EncryptionScheme EncryptionScheme  `json:"encryptionScheme"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// IncludedInEncryption reports whether pages authenticate the metadata.
func (m Metadata) IncludedInEncryption() bool {
	return m.EncryptionScheme == EncryptionSchemeV1
}

// canonical is a deterministic encoding of the metadata.
func (m Metadata) canonical() []byte {
	buf := binary.BigEndian.AppendUint32(nil, uint32(m.EncryptionScheme))
	buf = binary.BigEndian.AppendUint64(buf, uint64(m.Timestamp))
	buf = appendString(buf, m.Tag)

	keys := make([]string, 0, len(m.Extra))
	for key := range m.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(keys)))
	for _, key := range keys {
		buf = appendString(buf, key)
		buf = appendString(buf, m.Extra[key])
	}
	return buf
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
