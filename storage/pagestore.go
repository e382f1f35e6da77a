package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ruteri/splitkey-pep/interfaces"
	"github.com/ruteri/splitkey-pep/paging"
)

// ErrNoPages is returned when an upload stream ends before its first page.
var ErrNoPages = errors.New("no pages received")

// Manifest lists the pages of one stored entry in upload order.
type Manifest struct {
	// Pseudonym is the polymorphic pseudonym of the participant the entry
	// belongs to.
	Pseudonym []byte                 `json:"pseudonym"`
	Column    string                 `json:"column"`
	Metadata  paging.Metadata        `json:"metadata"`
	Pages     []interfaces.ContentID `json:"pages"`
	// Digest is the xxhash64 of the serialized pages.
	Digest uint64 `json:"digest"`
}

// StoredEntry is the result of an upload.
type StoredEntry struct {
	ManifestID interfaces.ContentID
	Digest     uint64
	PageCount  int
}

// PageStore keeps encrypted pages and their manifests in a backend.
type PageStore struct {
	backend interfaces.StorageBackend
	log     *slog.Logger
}

func NewPageStore(backend interfaces.StorageBackend, log *slog.Logger) *PageStore {
	return &PageStore{backend: backend, log: log}
}

// StorePages stores every page of stream and then the manifest describing
// them. The stream enforces page order, so a stream that fails mid-way
// leaves only unreferenced pages behind.
func (s *PageStore) StorePages(ctx context.Context, pseudonym []byte, column string, metadata paging.Metadata, stream *paging.PageStream) (*StoredEntry, error) {
	digest := paging.NewDigest()
	manifest := Manifest{
		Pseudonym: pseudonym,
		Column:    column,
		Metadata:  metadata,
	}

	for page, err := range stream.All() {
		if err != nil {
			return nil, err
		}
		data, err := page.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("could not encode page: %w", err)
		}
		id, err := s.backend.Store(ctx, data, interfaces.PageType)
		if err != nil {
			return nil, fmt.Errorf("could not store page %d of file %d: %w", page.PageNumber, page.Index, err)
		}
		digest.AddSerialized(data)
		manifest.Pages = append(manifest.Pages, id)
	}
	if len(manifest.Pages) == 0 {
		return nil, ErrNoPages
	}

	manifest.Digest = digest.Sum64()
	encoded, err := json.Marshal(manifest)
	if err != nil {
		return nil, err
	}
	manifestID, err := s.backend.Store(ctx, encoded, interfaces.ManifestType)
	if err != nil {
		return nil, fmt.Errorf("could not store manifest: %w", err)
	}

	s.log.Info("Stored entry",
		slog.String("manifestID", manifestID.String()),
		slog.String("column", column),
		slog.Int("pages", len(manifest.Pages)))

	return &StoredEntry{
		ManifestID: manifestID,
		Digest:     manifest.Digest,
		PageCount:  len(manifest.Pages),
	}, nil
}

// LoadManifest fetches and decodes a manifest.
func (s *PageStore) LoadManifest(ctx context.Context, id interfaces.ContentID) (*Manifest, error) {
	data, err := s.backend.Fetch(ctx, id, interfaces.ManifestType)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", id, err)
	}
	return &manifest, nil
}

// Pages lazily fetches the pages listed in manifest. Each page is fetched
// when pulled from the stream.
func (s *PageStore) Pages(ctx context.Context, manifest *Manifest) *paging.PageStream {
	ids := manifest.Pages
	next := 0
	return paging.NewPageStream(func() (*paging.DataPayloadPage, error) {
		if next == len(ids) {
			return nil, io.EOF
		}
		id := ids[next]
		next++

		data, err := s.backend.Fetch(ctx, id, interfaces.PageType)
		if err != nil {
			return nil, fmt.Errorf("could not fetch page %s: %w", id, err)
		}
		page := &paging.DataPayloadPage{}
		if err := page.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("invalid page %s: %w", id, err)
		}
		return page, nil
	})
}
