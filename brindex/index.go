package brindex

import (
	"context"
	"fmt"
	"sync"

	"github.com/datatrails/go-datatrails-common/logger"

	"github.com/skypexu/plfs-core/iostore"
)

// Mode is the open mode of an index.
type Mode int

const (
	ModeClosed Mode = iota
	ModeRead
	ModeWrite
	ModeReadWrite
)

func (m Mode) String() string {
	switch m {
	case ModeClosed:
		return "closed"
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadWrite:
		return "read-write"
	}
	return "invalid"
}

// Config carries the collaborators and tunables an index needs. There is
// no package-level configuration; everything arrives here.
type Config struct {
	// Registry resolves chunk path specs in imported global streams.
	// Defaults to a registry with just the posix store.
	Registry *iostore.Registry
	// ReaderWorkers bounds the parallel dropping scan. Values <= 1 scan
	// serially.
	ReaderWorkers int
	// FlushEvery overrides the journal flush threshold, for tests.
	FlushEvery int
}

// Index is one open-file's byte-range index. A single mutex protects
// every public operation body; operations block only on it and on backend
// I/O. The mode-dependent state lives in rd/wr so each open mode
// allocates exactly what it uses.
type Index struct {
	mu  sync.Mutex
	log logger.Logger
	cfg Config

	container iostore.Pathback

	mode Mode
	// eofTracker is the max logical tail observed: of our own writes when
	// writable, of the loaded records when readable. It survives close so
	// the container's metadata dropping can reuse it.
	eofTracker int64

	rd *readState
	wr *writeState
}

// New creates a closed index for the container.
func New(log logger.Logger, container iostore.Pathback, cfg Config) *Index {
	if cfg.Registry == nil {
		cfg.Registry = iostore.NewRegistry(iostore.NewPosixStore())
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = flushThreshold
	}
	return &Index{log: log, cfg: cfg, container: container}
}

// Open transitions the index from closed to the requested mode. Readable
// modes load the aggregated map, either from a caller-provided global
// stream or by scanning every dropping in the container. A read-write
// open loads and then discards the map: read-write queries rebuild it per
// call, trading speed for a view that always includes the newest flushed
// writes.
func (x *Index) Open(ctx context.Context, mode Mode, opts ...OpenOption) error {
	if mode != ModeRead && mode != ModeWrite && mode != ModeReadWrite {
		return fmt.Errorf("%w: open(%s)", ErrWrongMode, mode)
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.mode != ModeClosed {
		return fmt.Errorf("%w: %s", ErrAlreadyOpen, x.mode)
	}

	if mode != ModeWrite {
		rs := &readState{}
		var err error
		if o.stream != nil {
			err = rs.importStream(o.stream, x.cfg.Registry)
		} else {
			rs, err = aggregate(ctx, x.container, x.cfg.ReaderWorkers, o.uniformRestart, o.uniformRank)
		}
		if err != nil {
			return err
		}
		if rs.eof > x.eofTracker {
			x.eofTracker = rs.eof
		}
		if mode == ModeRead {
			x.rd = rs
		}
		// ModeReadWrite drops the loaded map here; only eofTracker is
		// retained.
	}

	if mode != ModeRead {
		x.wr = &writeState{}
	}

	x.mode = mode
	x.log.Debugf("brindex: opened %s %s", x.container.BPath, mode)
	return nil
}

// Close flushes and releases everything the open holds and reports
// (lastOffset, totalBytes) for the container's metadata dropping: the eof
// tracker, and the bytes written by this open (or the backing bytes
// scanned, for a read-only open). Closing a closed index is a successful
// no-op.
func (x *Index) Close(ctx context.Context) (lastOffset int64, totalBytes int64, err error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.mode == ModeClosed {
		return x.eofTracker, 0, nil
	}

	lastOffset = x.eofTracker

	if x.wr != nil {
		totalBytes = x.wr.bytes
		err = x.wr.close()
		x.wr = nil
	}
	if x.rd != nil {
		totalBytes = x.rd.backingBytes
		if cerr := x.rd.chunks.closeAll(); cerr != nil {
			x.log.Debugf("brindex: chunk handle close: %v", cerr)
		}
		x.rd = nil
	}

	x.mode = ModeClosed
	return lastOffset, totalBytes, err
}

// Add journals one write: nbytes at logical offset, living at physoff in
// the writer's data dropping, bracketed by the begin/end timestamps.
// Every flushThreshold-th add flushes the buffer to the index dropping.
func (x *Index) Add(
	ctx context.Context, offset int64, nbytes uint64, writer int32,
	physoff int64, begin, end float64,
) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.mode == ModeClosed {
		return ErrNotOpen
	}
	if x.mode == ModeRead {
		return fmt.Errorf("%w: add on a %s index", ErrWrongMode, x.mode)
	}

	rec := WriteRecord{
		LogicalOffset:  offset,
		PhysicalOffset: physoff,
		Length:         nbytes,
		Begin:          begin,
		End:            end,
		WriterID:       writer,
	}
	if nbytes > 0 && rec.Tail() > x.eofTracker {
		x.eofTracker = rec.Tail()
	}
	return x.wr.add(rec, x.cfg.FlushEvery)
}

// Sync forces buffered records out to the index dropping.
func (x *Index) Sync(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.mode == ModeClosed {
		return ErrNotOpen
	}
	if x.mode == ModeRead {
		return nil
	}
	return x.wr.flush()
}

// Query resolves the logical range [offset, offset+length) into ordered
// read instructions. The index must be open and not write-only. A
// read-write index keeps no aggregated map, so each query builds a
// throwaway read-only index over the same container: correct, and
// intentionally slow.
func (x *Index) Query(ctx context.Context, offset, length int64) ([]ReadInstruction, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadQuery, length)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	switch x.mode {
	case ModeClosed:
		return nil, ErrNotOpen
	case ModeWrite:
		return nil, fmt.Errorf("%w: query on a %s index", ErrWrongMode, x.mode)
	case ModeReadWrite:
		tmp := New(x.log, x.container, x.cfg)
		if err := tmp.Open(ctx, ModeRead); err != nil {
			return nil, err
		}
		out := tmp.rd.query(offset, length)
		_, _, err := tmp.Close(ctx)
		return out, err
	}
	return x.rd.query(offset, length), nil
}

// ChunkOpen returns the cached read handle for the data dropping behind a
// query instruction, opening it on first use. Cached handles are released
// by Close; the cache is advisory and callers may equally open the
// instruction's bpath themselves.
func (x *Index) ChunkOpen(ctx context.Context, id int32) (iostore.Handle, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.rd == nil {
		return nil, ErrNotOpen
	}
	if id < 0 || int(id) >= x.rd.chunks.Len() {
		return nil, fmt.Errorf("%w: id %d of %d chunks", ErrChunkRange, id, x.rd.chunks.Len())
	}
	return x.rd.chunks.Entry(id).Open(ctx)
}

// Truncate shrinks the index to the new eof z. Zero clears the in-memory
// state (the container layer has already removed the droppings); nonzero
// rewrites every persisted dropping to drop or clip records past z. The
// index must be open writable.
func (x *Index) Truncate(ctx context.Context, z int64) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.mode == ModeClosed {
		return ErrNotOpen
	}
	if x.mode == ModeRead {
		return fmt.Errorf("%w: truncate on a %s index", ErrWrongMode, x.mode)
	}

	if z == 0 {
		x.wr.buf = x.wr.buf[:0]
		if x.rd != nil {
			x.rd.idx.entries = nil
			x.rd.eof = 0
		}
		x.eofTracker = 0
		return nil
	}

	x.wr.buf = filterRecords(x.wr.buf, z)
	if err := x.droppingsTrunc(ctx, z); err != nil {
		return err
	}
	if x.rd != nil {
		x.rd.truncTo(z)
	}
	x.eofTracker = z
	return nil
}

// NewWdrop makes sure a writable index dropping exists under the writer
// subdirectory, named <INDEX_PREFIX><ts>.<hostname>.<pid>. Safe to call
// from every writer of the open; the first creates, the rest observe.
func (x *Index) NewWdrop(
	ctx context.Context, subdir string, store iostore.Store,
	ts string, hostname string, pid int,
) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.mode == ModeClosed {
		return ErrNotOpen
	}
	if x.mode == ModeRead {
		return fmt.Errorf("%w: new wdrop on a %s index", ErrWrongMode, x.mode)
	}
	return x.wr.newWdrop(ctx, subdir, store, ts, hostname, pid)
}

// ClosingWdrop is a no-op: all writers of one open share a single index
// dropping, and the final Close releases it.
func (x *Index) ClosingWdrop(ctx context.Context, ts string, pid int, filename string) error {
	return nil
}

// Info reports the current eof tracker and the bytes written by this
// open.
func (x *Index) Info() (lastOffset int64, writeBytes int64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	lastOffset = x.eofTracker
	if x.wr != nil {
		writeBytes = x.wr.bytes
	}
	return lastOffset, writeBytes
}

// ExportStream serializes the aggregated index as a global index stream
// for hand-off to another node. Only a read-only open holds the map.
func (x *Index) ExportStream(ctx context.Context) ([]byte, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.mode == ModeClosed {
		return nil, ErrNotOpen
	}
	if x.rd == nil {
		return nil, fmt.Errorf("%w: export on a %s index", ErrWrongMode, x.mode)
	}
	return x.rd.exportStream(), nil
}

// DroppingsRename is a no-op for this index kind: the droppings moved
// with the container.
func (x *Index) DroppingsRename(ctx context.Context, dst iostore.Pathback) error {
	return nil
}

// DroppingsUnlink is a no-op: the container unlink removes the droppings.
func (x *Index) DroppingsUnlink(ctx context.Context) error {
	return nil
}

// DroppingsZero is called when the file is truncated to zero; the
// container layer has deleted the dropping files, so only in-memory state
// needs clearing.
func (x *Index) DroppingsZero(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.wr != nil {
		x.wr.buf = x.wr.buf[:0]
	}
	if x.rd != nil {
		x.rd.idx.entries = nil
		if err := x.rd.chunks.closeAll(); err != nil {
			x.log.Debugf("brindex: chunk handle close: %v", err)
		}
		x.rd.chunks = ChunkTable{}
		x.rd.eof = 0
		x.rd.backingBytes = 0
	}
	x.eofTracker = 0
	return nil
}

// DroppingsTrunc edits the persisted index droppings of a closed
// container so no record describes content past z. Data droppings are
// not touched; shrinking never reclaims backing bytes.
func (x *Index) DroppingsTrunc(ctx context.Context, z int64) error {
	if z <= 0 {
		return fmt.Errorf("%w: droppings trunc to %d", ErrUnsupported, z)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.droppingsTrunc(ctx, z)
}

// Optimize would flatten the droppings into a single global index file.
// Not delivered; state is untouched.
func (x *Index) Optimize(ctx context.Context) error {
	return ErrUnsupported
}

// GetattrSize would report the logical file size from the droppings
// without a full open. Not delivered; state is untouched.
func (x *Index) GetattrSize(ctx context.Context) (int64, error) {
	return 0, ErrUnsupported
}
