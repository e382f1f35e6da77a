package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/splitkey-pep/interfaces"
)

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)
	assert.True(t, backend.Available(ctx))
	assert.Equal(t, "file://"+dir, backend.LocationURI())

	data := []byte("serialized page")
	id, err := backend.Store(ctx, data, interfaces.PageType)
	require.NoError(t, err)
	assert.Equal(t, interfaces.ComputeID(data), id)

	// Storing the same content again is a no-op.
	again, err := backend.Store(ctx, data, interfaces.PageType)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	fetched, err := backend.Fetch(ctx, id, interfaces.PageType)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)

	_, err = backend.Fetch(ctx, id, interfaces.ManifestType)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = backend.Store(ctx, data, interfaces.ContentType(42))
	assert.Error(t, err)
}

func TestFileBackendDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	backend, err := NewFileBackend(dir, discardLogger())
	require.NoError(t, err)

	id, err := backend.Store(ctx, []byte("original"), interfaces.ManifestType)
	require.NoError(t, err)

	path, err := backend.filePath(id, interfaces.ManifestType)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o600))

	_, err = backend.Fetch(ctx, id, interfaces.ManifestType)
	assert.ErrorIs(t, err, ErrCorruptContent)
}

func TestFactory(t *testing.T) {
	dir := t.TempDir()
	factory := NewStorageBackendFactory(discardLogger())

	backend, err := factory.StorageBackendFor(interfaces.StorageBackendLocation("file://" + dir))
	require.NoError(t, err)
	assert.IsType(t, &FileBackend{}, backend)

	backend, err = factory.StorageBackendFor("s3://key:secret@bucket/pages?region=eu-west-1&endpoint=http://localhost:9000&pathStyle=true")
	require.NoError(t, err)
	s3Backend := backend.(*S3Backend)
	assert.Equal(t, "bucket", s3Backend.bucketName)
	assert.Equal(t, "pages", s3Backend.prefix)

	key, err := s3Backend.objectKey(interfaces.ContentID{1}, interfaces.PageType)
	require.NoError(t, err)
	assert.Equal(t, "pages/pages/"+interfaces.ContentID{1}.String(), key)

	_, err = factory.StorageBackendFor("ftp://example.com/x")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	// Vault needs a client certificate.
	_, err = factory.StorageBackendFor("vault://vault.local:8200/secret/pep")
	assert.Error(t, err)

	multi, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
		interfaces.StorageBackendLocation("file://" + filepath.Join(dir, "a")),
		"ftp://ignored",
		interfaces.StorageBackendLocation("file://" + filepath.Join(dir, "b")),
	})
	require.NoError(t, err)
	assert.Len(t, multi.(*MultiStorageBackend).backends, 2)

	_, err = factory.CreateMultiBackend([]interfaces.StorageBackendLocation{"ftp://ignored"})
	assert.Error(t, err)
}
