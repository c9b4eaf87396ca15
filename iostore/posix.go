package iostore

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// PosixStore is the Store implementation for node-local (or node-mounted)
// file systems. The zero value is usable.
type PosixStore struct{}

func NewPosixStore() *PosixStore { return &PosixStore{} }

func (s *PosixStore) Scheme() string { return "posix" }

func (s *PosixStore) Open(ctx context.Context, bpath string, flags int, mode os.FileMode) (Handle, error) {
	f, err := os.OpenFile(bpath, flags, mode)
	if err != nil {
		return nil, fmt.Errorf("posix open %s: %w", bpath, err)
	}
	return f, nil
}

func (s *PosixStore) Lstat(ctx context.Context, bpath string) (fs.FileInfo, error) {
	fi, err := os.Lstat(bpath)
	if err != nil {
		return nil, fmt.Errorf("posix lstat %s: %w", bpath, err)
	}
	return fi, nil
}

func (s *PosixStore) ReadDir(ctx context.Context, bpath string) ([]string, error) {
	ents, err := os.ReadDir(bpath)
	if err != nil {
		return nil, fmt.Errorf("posix readdir %s: %w", bpath, err)
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		names = append(names, e.Name())
	}
	return names, nil
}

// Umask sets the process umask and returns the previous value. Dropping
// creation clears it for the duration of the create so the requested mode
// lands on disk exactly.
func Umask(mask int) int {
	return unix.Umask(mask)
}
