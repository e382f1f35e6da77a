package interfaces

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// ContentID is the SHA-256 of stored content. It encodes as lowercase hex in
// manifests and on the wire.
type ContentID [32]byte

// ComputeID calculates content ID from data.
func ComputeID(data []byte) ContentID {
	return ContentID(sha256.Sum256(data))
}

// NewContentIDFromHex parses a hex encoded id. A 0x prefix is accepted.
func NewContentIDFromHex(source string) (ContentID, error) {
	var id ContentID
	err := id.UnmarshalText([]byte(source))
	return id, err
}

func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ContentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ContentID) UnmarshalText(text []byte) error {
	clean := strings.TrimPrefix(string(text), "0x")
	if len(clean) != hex.EncodedLen(len(id)) {
		return fmt.Errorf("invalid content ID %q: expected %d hex characters", text, hex.EncodedLen(len(id)))
	}
	if _, err := hex.Decode(id[:], []byte(clean)); err != nil {
		return fmt.Errorf("invalid content ID: %w", err)
	}
	return nil
}

// ContentType selects the namespace content is stored under.
type ContentType int

const (
	PageType ContentType = iota
	ManifestType
)

func (ct ContentType) String() string {
	switch ct {
	case PageType:
		return "page"
	case ManifestType:
		return "manifest"
	default:
		return "unknown"
	}
}

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation string

// NewStorageBackendLocation validates uri and returns it as a location.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "file", "s3", "vault":
	default:
		return "", fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StorageBackendLocation(uri), nil
}

// ParseStorageBackendLocations splits a comma separated list of URIs.
func ParseStorageBackendLocations(uris string) ([]StorageBackendLocation, error) {
	var locations []StorageBackendLocation
	for _, uri := range strings.Split(uris, ",") {
		uri = strings.TrimSpace(uri)
		if uri == "" {
			continue
		}
		location, err := NewStorageBackendLocation(uri)
		if err != nil {
			return nil, err
		}
		locations = append(locations, location)
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("%w: no storage locations", ErrInvalidLocationURI)
	}
	return locations, nil
}

// StorageBackend provides content-addressed storage for encrypted pages and
// entry manifests. Backends never see plaintext.
type StorageBackend interface {
	// Fetch returns ErrContentNotFound for ids the backend does not hold.
	Fetch(ctx context.Context, id ContentID, contentType ContentType) ([]byte, error)
	// Store is idempotent: storing the same data twice yields the same id.
	Store(ctx context.Context, data []byte, contentType ContentType) (ContentID, error)
	Available(ctx context.Context) bool
	Name() string
	LocationURI() string
}

// StorageBackendFactory creates storage backends.
type StorageBackendFactory interface {
	StorageBackendFor(locationURI StorageBackendLocation) (StorageBackend, error)
	// CreateMultiBackend replicates over every location, in fallback order.
	CreateMultiBackend(locationURIs []StorageBackendLocation) (StorageBackend, error)
	// WithTLSAuth sets the client certificate presented to vault:// backends.
	WithTLSAuth(func() (tls.Certificate, error)) StorageBackendFactory
}
