package paging

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/cespare/xxhash/v2"
)

// DefaultPageSize is the plaintext size of all but the last page of a file.
const DefaultPageSize = 1 << 20

// PageSource produces the next page of a transfer, or io.EOF at its end.
type PageSource func() (*DataPayloadPage, error)

// PageStream is a lazy, single pass sequence of pages. Every page is checked
// against the stream order as it is pulled; the first error ends the stream.
type PageStream struct {
	source PageSource
	order  StreamOrder
	err    error
}

// NewPageStream wraps source.
func NewPageStream(source PageSource) *PageStream {
	return &PageStream{source: source}
}

// PagesOf streams a fixed slice of pages.
func PagesOf(pages []DataPayloadPage) *PageStream {
	i := 0
	return NewPageStream(func() (*DataPayloadPage, error) {
		if i == len(pages) {
			return nil, io.EOF
		}
		page := &pages[i]
		i++
		return page, nil
	})
}

// Next returns the next page, io.EOF once the stream is exhausted, or the
// error that ended the stream.
func (s *PageStream) Next() (*DataPayloadPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	page, err := s.source()
	if err != nil {
		s.err = err
		return nil, err
	}
	if err := s.order.Check(page); err != nil {
		s.err = err
		return nil, err
	}
	return page, nil
}

// All iterates the remaining pages. Iteration stops after the first error,
// which is yielded; io.EOF is not.
func (s *PageStream) All() iter.Seq2[*DataPayloadPage, error] {
	return func(yield func(*DataPayloadPage, error) bool) {
		for {
			page, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(page, err) || err != nil {
				return
			}
		}
	}
}

// Paginate reads plaintext from r and lazily encrypts it into pages of
// pageSize bytes for file index. Empty input yields a single empty page.
func Paginate(r io.Reader, pageSize int, key []byte, metadata Metadata, index uint64) *PageStream {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var (
		pageNumber uint32
		done       bool
	)
	buf := make([]byte, pageSize)
	return NewPageStream(func() (*DataPayloadPage, error) {
		if done {
			return nil, io.EOF
		}
		n, err := io.ReadFull(r, buf)
		switch {
		case errors.Is(err, io.EOF) && pageNumber > 0:
			done = true
			return nil, io.EOF
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			done = true
		case err != nil:
			return nil, fmt.Errorf("could not read plaintext: %w", err)
		}

		page := &DataPayloadPage{Index: index, PageNumber: pageNumber}
		if err := page.SetEncrypted(buf[:n], key, metadata); err != nil {
			return nil, err
		}
		pageNumber++
		return page, nil
	})
}

// Assemble decrypts every page of stream and concatenates the plaintext.
func Assemble(stream *PageStream, key []byte, metadata Metadata) ([]byte, error) {
	plaintext := []byte{}
	for page, err := range stream.All() {
		if err != nil {
			return nil, err
		}
		chunk, err := page.Decrypt(key, metadata)
		if err != nil {
			return nil, fmt.Errorf("page %d of file %d: %w", page.PageNumber, page.Index, err)
		}
		plaintext = append(plaintext, chunk...)
	}
	return plaintext, nil
}

// Digest is an xxhash64 over the serialized pages of a transfer. Uploaders
// and the storage facility compute it independently and compare.
type Digest struct {
	h *xxhash.Digest
}

// NewDigest creates an empty digest.
func NewDigest() *Digest {
	return &Digest{h: xxhash.New()}
}

// Add hashes the serialized page.
func (d *Digest) Add(page *DataPayloadPage) error {
	data, err := page.MarshalBinary()
	if err != nil {
		return err
	}
	d.AddSerialized(data)
	return nil
}

// AddSerialized hashes an already serialized page.
func (d *Digest) AddSerialized(data []byte) {
	d.h.Write(data)
}

// Sum64 returns the digest value.
func (d *Digest) Sum64() uint64 {
	return d.h.Sum64()
}
