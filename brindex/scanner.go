package brindex

import (
	"context"
	"fmt"
	"os"

	"github.com/skypexu/plfs-core/iostore"
)

// readDropping reads one index dropping in full and parses it into write
// records. Droppings have no header or framing; the record count is the
// file size divided by the record size, and any remainder means the file
// is not a dropping (or a writer died mid-record, which the format does
// not attempt to recover from).
func readDropping(ctx context.Context, store iostore.Store, bpath string) ([]WriteRecord, error) {
	fi, err := store.Lstat(ctx, bpath)
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size%WriteRecordSize != 0 {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrBadDroppingSize, bpath, size)
	}
	if size == 0 {
		return nil, nil
	}

	fh, err := store.Open(ctx, bpath, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	buf := make([]byte, size)
	if _, err = fh.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("read %s: %w", bpath, err)
	}

	recs := make([]WriteRecord, size/WriteRecordSize)
	for i := range recs {
		recs[i] = getWriteRecord(buf[i*WriteRecordSize:])
	}
	return recs, nil
}

// marshalWriteRecords renders records as one contiguous byte run, the
// exact layout a dropping stores.
func marshalWriteRecords(recs []WriteRecord) []byte {
	buf := make([]byte, len(recs)*WriteRecordSize)
	for i := range recs {
		putWriteRecord(buf[i*WriteRecordSize:], &recs[i])
	}
	return buf
}
