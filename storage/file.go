package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/splitkey-pep/interfaces"
)

// contentDirs maps content types to the namespace they are stored under.
var contentDirs = map[interfaces.ContentType]string{
	interfaces.PageType:     "pages",
	interfaces.ManifestType: "manifests",
}

// ErrCorruptContent is returned when fetched content does not hash to its id.
var ErrCorruptContent = errors.New("stored content does not match its id")

func verifyContent(data []byte, id interfaces.ContentID, contentType interfaces.ContentType) error {
	if interfaces.ComputeID(data) != id {
		return fmt.Errorf("%w: %s %s", ErrCorruptContent, contentType, id)
	}
	return nil
}

func contentDir(contentType interfaces.ContentType) (string, error) {
	dir, ok := contentDirs[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported content type: %v", contentType)
	}
	return dir, nil
}

// FileBackend stores content on the local file system, one file per content
// id, sharded by the first id byte.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates the backend and its namespace directories.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	for _, dir := range contentDirs {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Fetch reads content by id. Content whose hash no longer matches its id is
// reported as an error rather than returned.
func (b *FileBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	filePath, err := b.filePath(id, contentType)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := verifyContent(data, id, contentType); err != nil {
		return nil, err
	}

	b.log.Debug("Fetched content from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Store writes data under its SHA-256 id. The write goes through a temporary
// file so readers never see partial content.
func (b *FileBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	id := interfaces.ComputeID(data)
	filePath, err := b.filePath(id, contentType)
	if err != nil {
		return id, err
	}

	if _, err := os.Stat(filePath); err == nil {
		return id, nil
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return id, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-*")
	if err != nil {
		return id, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return id, fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return id, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return id, fmt.Errorf("failed to move file into place: %w", err)
	}

	b.log.Debug("Stored content in file",
		slog.String("path", filePath),
		slog.String("contentID", id.String()))

	return id, nil
}

// Available checks that the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	if _, err := os.Stat(b.baseDir); err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) filePath(id interfaces.ContentID, contentType interfaces.ContentType) (string, error) {
	dir, err := contentDir(contentType)
	if err != nil {
		return "", err
	}
	idStr := id.String()
	return filepath.Join(b.baseDir, dir, idStr[:2], idStr), nil
}
