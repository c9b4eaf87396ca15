package brindex

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/skypexu/plfs-core/iostore"
)

// flushThreshold is the default flush period: every flushThreshold-th add
// of an open, counted cumulatively, flushes the journal.
const flushThreshold = 1024

// writeState is the write side of an open index: the record buffer, the
// per-open counters, and the shared index dropping all writers of this
// open journal into.
type writeState struct {
	buf   []WriteRecord
	count int
	bytes int64

	wpath string
	fh    iostore.Handle
	store iostore.Store
}

// add buffers one record. The caller holds the index mutex.
func (w *writeState) add(rec WriteRecord, every int) error {
	w.buf = append(w.buf, rec)
	w.count++
	w.bytes += int64(rec.Length)
	if w.count%every == 0 {
		return w.flush()
	}
	return nil
}

// flush appends the whole buffer to the index dropping as one write. The
// buffer is cleared whether or not the write succeeds: durability is the
// backend's business, and a failed flush means those records are gone.
// The caller decides what to do about that.
func (w *writeState) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if w.fh == nil {
		return ErrNoWriteDropping
	}
	buf := marshalWriteRecords(w.buf)
	w.buf = w.buf[:0]
	if _, err := w.fh.Write(buf); err != nil {
		return fmt.Errorf("flush %s: %w", w.wpath, err)
	}
	return nil
}

// newWdrop makes sure a writable index dropping exists for this open. The
// first caller creates it; everyone after that sees the handle and
// returns. The caller holds the index mutex, which is the whole of the
// race protection.
func (w *writeState) newWdrop(
	ctx context.Context, subdir string, store iostore.Store,
	ts string, hostname string, pid int,
) error {
	if w.fh != nil {
		return nil
	}

	bpath := subdir + "/" + IndexPrefix + ts + "." + hostname + "." + strconv.Itoa(pid)

	old := iostore.Umask(0)
	fh, err := store.Open(ctx, bpath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, DroppingMode)
	iostore.Umask(old)
	if err != nil {
		return err
	}

	w.wpath = bpath
	w.fh = fh
	w.store = store
	return nil
}

// close flushes and releases the dropping handle. A flush error wins over
// a close error. An open that never created a dropping has nothing to
// flush to; whatever it buffered is discarded.
func (w *writeState) close() error {
	var err error
	if w.fh != nil {
		err = w.flush()
		if cerr := w.fh.Close(); err == nil {
			err = cerr
		}
		w.fh = nil
	}
	w.buf = nil
	w.store = nil
	return err
}
