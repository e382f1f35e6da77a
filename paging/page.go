package paging

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ruteri/splitkey-pep/interfaces"
)

const (
	// KeySize is the AES-256 page key size.
	KeySize   = 32
	NonceSize = 16
	MACSize   = 16
)

var errKeySize = fmt.Errorf("page keys must be %d bytes", KeySize)

// DataPayloadPage is one encrypted chunk of a file. Index is the file's
// position in a batch; PageNumber counts pages within the file from 0.
type DataPayloadPage struct {
	Nonce       []byte `json:"nonce"`
	MAC         []byte `json:"mac"`
	PayloadData []byte `json:"payloadData"`
	Index       uint64 `json:"fileIndex"`
	PageNumber  uint32 `json:"pageNumber"`
}

func (p *DataPayloadPage) additionalData(metadata Metadata) ([]byte, error) {
	switch metadata.EncryptionScheme {
	case EncryptionSchemeV1:
		return metadata.canonical(), nil
	case EncryptionSchemeV2, EncryptionSchemeV3:
		return binary.BigEndian.AppendUint64(nil, uint64(p.PageNumber)), nil
	default:
		return nil, fmt.Errorf("unknown page encryption scheme %d", metadata.EncryptionScheme)
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, errKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}

// SetEncrypted encrypts plaintext into the page with a fresh nonce. Index and
// PageNumber must be set first when the scheme binds the page number.
func (p *DataPayloadPage) SetEncrypted(plaintext, key []byte, metadata Metadata) error {
	aead, err := newGCM(key)
	if err != nil {
		return err
	}
	ad, err := p.additionalData(metadata)
	if err != nil {
		return err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, ad)
	p.Nonce = nonce
	p.PayloadData = sealed[:len(plaintext)]
	p.MAC = sealed[len(plaintext):]
	return nil
}

// Decrypt authenticates and decrypts the page. Any authentication failure is
// interfaces.ErrPageIntegrity and no plaintext is returned.
func (p *DataPayloadPage) Decrypt(key []byte, metadata Metadata) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ad, err := p.additionalData(metadata)
	if err != nil {
		return nil, err
	}
	if len(p.Nonce) != NonceSize || len(p.MAC) != MACSize {
		return nil, interfaces.ErrPageIntegrity
	}

	sealed := make([]byte, 0, len(p.PayloadData)+len(p.MAC))
	sealed = append(sealed, p.PayloadData...)
	sealed = append(sealed, p.MAC...)
	plaintext, err := aead.Open(nil, p.Nonce, sealed, ad)
	if err != nil {
		return nil, interfaces.ErrPageIntegrity
	}
	return plaintext, nil
}

// MarshalBinary encodes the page as
// u64be(index) u32be(pageNumber) nonce mac u32be(len(payload)) payload.
func (p *DataPayloadPage) MarshalBinary() ([]byte, error) {
	if len(p.Nonce) != NonceSize || len(p.MAC) != MACSize {
		return nil, errors.New("page is not encrypted")
	}
	buf := make([]byte, 0, 12+NonceSize+MACSize+4+len(p.PayloadData))
	buf = binary.BigEndian.AppendUint64(buf, p.Index)
	buf = binary.BigEndian.AppendUint32(buf, p.PageNumber)
	buf = append(buf, p.Nonce...)
	buf = append(buf, p.MAC...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.PayloadData)))
	return append(buf, p.PayloadData...), nil
}

// UnmarshalBinary decodes a page encoded by MarshalBinary.
func (p *DataPayloadPage) UnmarshalBinary(data []byte) error {
	const header = 12 + NonceSize + MACSize + 4
	if len(data) < header {
		return errors.New("page encoding too short")
	}
	length := binary.BigEndian.Uint32(data[header-4 : header])
	if uint64(len(data)-header) != uint64(length) {
		return fmt.Errorf("page payload length %d does not match encoding", length)
	}

	p.Index = binary.BigEndian.Uint64(data[0:8])
	p.PageNumber = binary.BigEndian.Uint32(data[8:12])
	p.Nonce = append([]byte(nil), data[12:12+NonceSize]...)
	p.MAC = append([]byte(nil), data[12+NonceSize:12+NonceSize+MACSize]...)
	p.PayloadData = append([]byte(nil), data[header:]...)
	return nil
}

// NewPageKey returns a random page key.
func NewPageKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
