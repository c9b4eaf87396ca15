package brindex

import (
	"encoding/binary"
	"math"
)

const (
	// IndexPrefix names index droppings inside a writer subdirectory.
	IndexPrefix = "dropping.index."
	// DataPrefix is the analogue for the data droppings index records
	// point into.
	DataPrefix = "dropping.data."
	// HostDirPrefix names the per-writer subdirectories of a container.
	HostDirPrefix = "hostdir."

	// DroppingMode is the create mode for new droppings. The umask is
	// cleared around the create so this is exactly what lands on disk.
	DroppingMode = 0o666

	// WriteRecordSize is the on-disk size of one WriteRecord: six named
	// fields at their natural alignment, so the 32-bit writer id is
	// followed by four bytes of tail padding.
	WriteRecordSize = 48
	// IntervalRecordSize is the serialized size of one IntervalRecord in
	// a global index stream: the write record layout with the chunk id
	// occupying the id slot and the original writer id appended.
	IntervalRecordSize = 56
)

// native is the byte order of the on-disk record formats. Droppings are
// only ever exchanged between nodes of one homogeneous machine, so the
// layout is whatever this build's architecture says it is.
var native = binary.NativeEndian

// WriteRecord is the on-disk journal record describing one append to a
// data dropping.
type WriteRecord struct {
	// LogicalOffset is the byte position in the logical file.
	LogicalOffset int64
	// PhysicalOffset is the byte position inside the writer's data dropping.
	PhysicalOffset int64
	// Length may be zero; zero-length markers are legal.
	Length uint64
	// Begin and End bracket the underlying write in wall-clock seconds.
	Begin float64
	End   float64
	// WriterID selects the data dropping under the same timestamp and
	// host as the index dropping this record was journaled to.
	WriterID int32
}

// Tail returns the first logical byte past the record.
func (r *WriteRecord) Tail() int64 { return r.LogicalOffset + int64(r.Length) }

func putWriteRecord(b []byte, r *WriteRecord) {
	_ = b[WriteRecordSize-1]
	native.PutUint64(b[0:], uint64(r.LogicalOffset))
	native.PutUint64(b[8:], uint64(r.PhysicalOffset))
	native.PutUint64(b[16:], r.Length)
	native.PutUint64(b[24:], math.Float64bits(r.Begin))
	native.PutUint64(b[32:], math.Float64bits(r.End))
	native.PutUint32(b[40:], uint32(r.WriterID))
	native.PutUint32(b[44:], 0)
}

func getWriteRecord(b []byte) WriteRecord {
	_ = b[WriteRecordSize-1]
	return WriteRecord{
		LogicalOffset:  int64(native.Uint64(b[0:])),
		PhysicalOffset: int64(native.Uint64(b[8:])),
		Length:         native.Uint64(b[16:]),
		Begin:          math.Float64frombits(native.Uint64(b[24:])),
		End:            math.Float64frombits(native.Uint64(b[32:])),
		WriterID:       int32(native.Uint32(b[40:])),
	}
}

// IntervalRecord is the aggregated, in-memory form of a write record. The
// writer id has been interned into a dense chunk table index; the original
// id is retained so persisted droppings can be rewritten (e.g. truncate).
type IntervalRecord struct {
	LogicalOffset  int64
	PhysicalOffset int64
	Length         uint64
	Begin          float64
	End            float64
	ChunkID        int32
	WriterID       int32
}

func (e *IntervalRecord) Tail() int64 { return e.LogicalOffset + int64(e.Length) }

// contains reports whether off falls inside the record's logical interval.
// Zero-length records contain nothing.
func (e *IntervalRecord) contains(off int64) bool {
	return off >= e.LogicalOffset && off < e.Tail()
}

// overlaps reports whether the two logical intervals intersect.
func (e *IntervalRecord) overlaps(o *IntervalRecord) bool {
	return e.LogicalOffset < o.Tail() && o.LogicalOffset < e.Tail()
}

// newerThan orders conflicting records: later end timestamp wins, ties go
// to the later begin timestamp and then to the higher writer id. This is
// the only ordering overlap resolution is allowed to rely on.
func (e *IntervalRecord) newerThan(o *IntervalRecord) bool {
	if e.End != o.End {
		return e.End > o.End
	}
	if e.Begin != o.Begin {
		return e.Begin > o.Begin
	}
	return e.WriterID > o.WriterID
}

func putIntervalRecord(b []byte, e *IntervalRecord) {
	_ = b[IntervalRecordSize-1]
	native.PutUint64(b[0:], uint64(e.LogicalOffset))
	native.PutUint64(b[8:], uint64(e.PhysicalOffset))
	native.PutUint64(b[16:], e.Length)
	native.PutUint64(b[24:], math.Float64bits(e.Begin))
	native.PutUint64(b[32:], math.Float64bits(e.End))
	native.PutUint32(b[40:], uint32(e.ChunkID))
	native.PutUint32(b[44:], 0)
	native.PutUint32(b[48:], uint32(e.WriterID))
	native.PutUint32(b[52:], 0)
}

func getIntervalRecord(b []byte) IntervalRecord {
	_ = b[IntervalRecordSize-1]
	return IntervalRecord{
		LogicalOffset:  int64(native.Uint64(b[0:])),
		PhysicalOffset: int64(native.Uint64(b[8:])),
		Length:         native.Uint64(b[16:]),
		Begin:          math.Float64frombits(native.Uint64(b[24:])),
		End:            math.Float64frombits(native.Uint64(b[32:])),
		ChunkID:        int32(native.Uint32(b[40:])),
		WriterID:       int32(native.Uint32(b[48:])),
	}
}
