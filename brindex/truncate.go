package brindex

import (
	"context"
	"os"

	"github.com/skypexu/plfs-core/iostore"
)

// filterRecords keeps only records with content before z, clipping any
// straddler so it ends exactly at z. The kept front of a straddler
// retains its physical offset.
func filterRecords(recs []WriteRecord, z int64) []WriteRecord {
	kept := make([]WriteRecord, 0, len(recs))
	for _, r := range recs {
		if r.LogicalOffset >= z {
			continue
		}
		if r.Tail() > z {
			r.Length = uint64(z - r.LogicalOffset)
		}
		kept = append(kept, r)
	}
	return kept
}

// rewriteDropping replaces a persisted dropping with the filtered record
// set, truncate-and-write.
func rewriteDropping(ctx context.Context, store iostore.Store, bpath string, recs []WriteRecord) error {
	fh, err := store.Open(ctx, bpath, os.O_WRONLY|os.O_TRUNC, DroppingMode)
	if err != nil {
		return err
	}
	if len(recs) > 0 {
		if _, err = fh.Write(marshalWriteRecords(recs)); err != nil {
			fh.Close()
			return err
		}
	}
	return fh.Close()
}

// droppingsTrunc rewrites every index dropping of the container so no
// record describes content at or past z. The open write dropping, if this
// index owns one, is edited through its own handle: the buffered records
// are filtered first, then the handle is truncated and the surviving
// on-disk records written back.
func (x *Index) droppingsTrunc(ctx context.Context, z int64) error {
	drops, err := collectDroppings(ctx, x.container)
	if err != nil {
		return err
	}
	for _, d := range drops {
		recs, err := readDropping(ctx, x.container.Store, d)
		if err != nil {
			return err
		}
		kept := filterRecords(recs, z)

		if x.wr != nil && x.wr.fh != nil && d == x.wr.wpath {
			x.wr.buf = filterRecords(x.wr.buf, z)
			if err = x.wr.fh.Truncate(0); err != nil {
				return err
			}
			if len(kept) > 0 {
				if _, err = x.wr.fh.Write(marshalWriteRecords(kept)); err != nil {
					return err
				}
			}
			continue
		}

		if err = rewriteDropping(ctx, x.container.Store, d, kept); err != nil {
			return err
		}
	}
	return nil
}
