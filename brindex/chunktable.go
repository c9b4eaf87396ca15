package brindex

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/skypexu/plfs-core/iostore"
)

// ChunkEntry associates a dense integer with one data dropping so the
// aggregated index only needs an int32 per record. The handle is an
// advisory cache: opened on first use, closed when the index closes.
type ChunkEntry struct {
	BPath string
	Store iostore.Store
	fh    iostore.Handle
}

// Open returns the cached read handle for the data dropping, opening it
// on first use.
func (c *ChunkEntry) Open(ctx context.Context) (iostore.Handle, error) {
	if c.fh != nil {
		return c.fh, nil
	}
	fh, err := c.Store.Open(ctx, c.BPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	c.fh = fh
	return fh, nil
}

func (c *ChunkEntry) close() error {
	if c.fh == nil {
		return nil
	}
	fh := c.fh
	c.fh = nil
	return fh.Close()
}

// ChunkTable is the append-only mapping from chunk id to data dropping.
// Ids are dense: the id of a new entry equals the table size at insertion,
// and interning the same bpath twice yields the same id.
type ChunkTable struct {
	entries []ChunkEntry
	byPath  map[string]int32
}

func (t *ChunkTable) Len() int { return len(t.entries) }

func (t *ChunkTable) Entry(id int32) *ChunkEntry { return &t.entries[id] }

// Intern returns the id for the data dropping, adding a table entry if
// this is the first reference to it.
func (t *ChunkTable) Intern(bpath string, store iostore.Store) int32 {
	if id, ok := t.byPath[bpath]; ok {
		return id
	}
	if t.byPath == nil {
		t.byPath = map[string]int32{}
	}
	id := int32(len(t.entries))
	t.entries = append(t.entries, ChunkEntry{BPath: bpath, Store: store})
	t.byPath[bpath] = id
	return id
}

// closeAll drops every cached handle. Close errors on advisory read
// handles are returned but the sweep always completes.
func (t *ChunkTable) closeAll() error {
	var firstErr error
	for i := range t.entries {
		if err := t.entries[i].close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// dataDroppingPath derives the data dropping bpath an index record points
// at: the index dropping's own <sec>.<usec>.<host> with the trailing pid
// replaced by the record's writer id, under the data prefix.
func dataDroppingPath(idropBPath string, writer int32) (string, error) {
	dir := ""
	name := idropBPath
	if i := strings.LastIndexByte(idropBPath, '/'); i >= 0 {
		dir, name = idropBPath[:i+1], idropBPath[i+1:]
	}
	if !strings.HasPrefix(name, IndexPrefix) {
		return "", fmt.Errorf("%w: %s", ErrBadDroppingName, idropBPath)
	}
	stamp := name[len(IndexPrefix):]
	i := strings.LastIndexByte(stamp, '.')
	if i <= 0 {
		return "", fmt.Errorf("%w: %s", ErrBadDroppingName, idropBPath)
	}
	return dir + DataPrefix + stamp[:i] + "." + strconv.FormatInt(int64(writer), 10), nil
}

// droppingWriterID parses the trailing pid field of an index dropping
// name. Uniform restart uses it to restrict a scan to one writer.
func droppingWriterID(bpath string) (int32, error) {
	i := strings.LastIndexByte(bpath, '.')
	if i < 0 || i == len(bpath)-1 {
		return 0, fmt.Errorf("%w: %s", ErrBadDroppingName, bpath)
	}
	id, err := strconv.ParseInt(bpath[i+1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrBadDroppingName, bpath)
	}
	return int32(id), nil
}
