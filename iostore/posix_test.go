package iostore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolve(t *testing.T) {
	posix := NewPosixStore()
	r := NewRegistry(posix)

	tests := []struct {
		name     string
		spec     string
		wantPath string
		wantErr  error
	}{
		{"bare absolute path is posix", "/backing/c/file", "/backing/c/file", nil},
		{"explicit scheme", "posix:/backing/c/file", "/backing/c/file", nil},
		{"unknown scheme", "hdfs:/c/file", "", ErrUnknownScheme},
		{"no scheme no slash", "relative", "", ErrUnknownScheme},
		{"empty", "", "", ErrEmptyPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, bpath, err := r.Resolve(tt.spec)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, posix, store)
			assert.Equal(t, tt.wantPath, bpath)
		})
	}
}

func TestSpecRendering(t *testing.T) {
	posix := NewPosixStore()
	assert.Equal(t, "/a/b", Spec(posix, "/a/b"))
	assert.Equal(t, "posix:a/b", Spec(posix, "a/b"))
}

func TestPosixStoreAppendAndRead(t *testing.T) {
	ctx := context.Background()
	store := NewPosixStore()
	p := filepath.Join(t.TempDir(), "drop")

	fh, err := store.Open(ctx, p, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o666)
	require.NoError(t, err)
	_, err = fh.Write([]byte("abcd"))
	require.NoError(t, err)
	_, err = fh.Write([]byte("efgh"))
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	fi, err := store.Lstat(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(8), fi.Size())

	rh, err := store.Open(ctx, p, os.O_RDONLY, 0)
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = rh.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, "cdef", string(buf))
	require.NoError(t, rh.Close())
}

func TestPosixStoreReadDirAndNotExist(t *testing.T) {
	ctx := context.Background()
	store := NewPosixStore()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "two"), 0o755))

	names, err := store.ReadDir(ctx, dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"one", "two"}, names)

	_, err = store.ReadDir(ctx, filepath.Join(dir, "missing"))
	assert.True(t, IsNotExist(err))

	_, err = store.Lstat(ctx, filepath.Join(dir, "missing"))
	assert.True(t, IsNotExist(err))
}
