// Package iostore defines the backend store contract the index subsystem
// performs all of its I/O through. A store resolves opaque backend paths
// (bpaths) to handles; which physical system the bytes live on is the
// store implementation's business.
package iostore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

var (
	ErrUnknownScheme = errors.New("no store registered for the path scheme")
	ErrEmptyPath     = errors.New("a backend path must not be empty")
)

// Handle is an open file on some backend. Write appends when the handle
// was opened with os.O_APPEND, which is the only write discipline the
// index subsystem uses for droppings it did not truncate first.
type Handle interface {
	ReadAt(p []byte, off int64) (int, error)
	Write(p []byte) (int, error)
	Truncate(size int64) error
	Close() error
}

// Store is the backend I/O abstraction. Paths are opaque bpaths; flags and
// mode follow the os package conventions.
type Store interface {
	// Scheme identifies the store in path specs, e.g. "posix".
	Scheme() string
	Open(ctx context.Context, bpath string, flags int, mode os.FileMode) (Handle, error)
	Lstat(ctx context.Context, bpath string) (fs.FileInfo, error)
	// ReadDir returns the names (not paths) of the entries of a directory.
	ReadDir(ctx context.Context, bpath string) ([]string, error)
}

// Pathback pairs a backend path with the store it lives on.
type Pathback struct {
	BPath string
	Store Store
}

// IsNotExist reports whether err means the path does not exist on the
// backend. Store implementations wrap the platform error so this works
// through fmt.Errorf chains.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Registry resolves path specs of the form "<scheme>:<bpath>" to a store.
// Specs with a leading "/" are implicitly "posix:". The registry is a
// collaborator passed in by the caller, never package state.
type Registry struct {
	stores map[string]Store
}

func NewRegistry(stores ...Store) *Registry {
	r := &Registry{stores: map[string]Store{}}
	for _, s := range stores {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Store) {
	r.stores[s.Scheme()] = s
}

// Resolve splits a path spec into its store and bare bpath.
func (r *Registry) Resolve(spec string) (Store, string, error) {
	if spec == "" {
		return nil, "", ErrEmptyPath
	}
	scheme := "posix"
	bpath := spec
	if spec[0] != '/' {
		i := strings.IndexByte(spec, ':')
		if i <= 0 {
			return nil, "", fmt.Errorf("%w: %q", ErrUnknownScheme, spec)
		}
		scheme, bpath = spec[:i], spec[i+1:]
	}
	s, ok := r.stores[scheme]
	if !ok {
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return s, bpath, nil
}

// Spec renders the path spec for a bpath on a store. Posix paths render
// bare so that specs round-trip through Resolve unchanged.
func Spec(s Store, bpath string) string {
	if s.Scheme() == "posix" && strings.HasPrefix(bpath, "/") {
		return bpath
	}
	return s.Scheme() + ":" + bpath
}
