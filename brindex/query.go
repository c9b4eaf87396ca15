package brindex

import (
	"github.com/skypexu/plfs-core/iostore"
)

// ReadInstruction tells the caller where one segment of a queried logical
// range physically lives. Hole instructions mark subranges no write ever
// covered; the reader must substitute zeros for those. For data segments
// the chunk id can be handed to ChunkOpen to share the index's cached
// read handle.
type ReadInstruction struct {
	ChunkID        int32
	BPath          string
	Store          iostore.Store
	PhysicalOffset int64
	Length         uint64
	Hole           bool
}

// query resolves [offset, offset+length) into ordered instructions.
func (rs *readState) query(offset, length int64) []ReadInstruction {
	var out []ReadInstruction
	cur := offset
	end := offset + length

	i := rs.idx.searchTail(cur)
	for cur < end {
		// Step over zero-length markers; they resolve no bytes.
		for i < len(rs.idx.entries) && rs.idx.entries[i].Length == 0 {
			i++
		}
		if i >= len(rs.idx.entries) {
			// Trailing hole, up to the query end or eof, whichever
			// comes first.
			stop := end
			if rs.eof < stop {
				stop = rs.eof
			}
			if cur < stop {
				out = append(out, ReadInstruction{Hole: true, Length: uint64(stop - cur)})
			}
			return out
		}

		e := &rs.idx.entries[i]
		if e.LogicalOffset > cur {
			stop := e.LogicalOffset
			if stop > end {
				stop = end
			}
			out = append(out, ReadInstruction{Hole: true, Length: uint64(stop - cur)})
			cur = stop
			continue
		}

		seg := e.Tail() - cur
		if rem := end - cur; rem < seg {
			seg = rem
		}
		ent := rs.chunks.Entry(e.ChunkID)
		out = append(out, ReadInstruction{
			ChunkID:        e.ChunkID,
			BPath:          ent.BPath,
			Store:          ent.Store,
			PhysicalOffset: e.PhysicalOffset + (cur - e.LogicalOffset),
			Length:         uint64(seg),
		})
		cur += seg
		i++
	}
	return out
}
