package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/domain"
)

func TestLocalBackend_PutOpenRoundtrip(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	url, err := b.Put(context.Background(), "owner/root/blob-1", []byte("ciphertext"))
	require.NoError(t, err)
	assert.Equal(t, "/v1/blobs/local/owner/root/blob-1", url)

	rc, err := b.Open(context.Background(), "owner/root/blob-1")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), data)
}

func TestLocalBackend_OpenMissing(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	_, err = b.Open(context.Background(), "owner/root/ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLocalBackend_RemoveIsIdempotent(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	_, err = b.Put(context.Background(), "owner/root/blob-1", []byte("x"))
	require.NoError(t, err)

	require.NoError(t, b.Remove(context.Background(), "owner/root/blob-1"))
	require.NoError(t, b.Remove(context.Background(), "owner/root/blob-1"))
}

func TestLocalBackend_RejectsTraversalKeys(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)

	_, err = b.Put(context.Background(), "../outside", []byte("x"))
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = b.Open(context.Background(), "/etc/passwd")
	require.ErrorIs(t, err, domain.ErrValidation)
}

// Неудачная запись не должна оставлять объект видимым под его ключом:
// до переименования данные живут только во временном файле.
func TestLocalBackend_NoPartialStateVisible(t *testing.T) {
	root := t.TempDir()
	b, err := NewLocalBackend(root)
	require.NoError(t, err)

	_, err = b.Put(context.Background(), "owner/root/blob-1", []byte("first"))
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(root, "owner", "root"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "blob-1", entries[0].Name(), "no temp files may survive a successful put")
}

func TestNewLocalBackend_RequiresRoot(t *testing.T) {
	_, err := NewLocalBackend("")
	require.Error(t, err)
}
