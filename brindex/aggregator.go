package brindex

import (
	"context"
	"sort"

	"github.com/skypexu/plfs-core/iostore"
)

// globalIndex is the aggregated interval map: records ordered by logical
// offset whose nonzero intervals never overlap. A sorted slice keyed by
// LogicalOffset; because entries are disjoint, record tails are ordered
// the same way as record starts and both support binary search.
type globalIndex struct {
	entries []IntervalRecord
}

// search returns the position of the first entry whose logical offset is
// >= off.
func (gi *globalIndex) search(off int64) int {
	return sort.Search(len(gi.entries), func(i int) bool {
		return gi.entries[i].LogicalOffset >= off
	})
}

// searchTail returns the position of the first entry whose tail is > off,
// i.e. the first entry that could contain off or anything after it.
func (gi *globalIndex) searchTail(off int64) int {
	return sort.Search(len(gi.entries), func(i int) bool {
		return gi.entries[i].Tail() > off
	})
}

// insert places rec into the map, running overlap resolution when the
// start key is taken or the interval intersects or touches a nonzero
// neighbor.
func (gi *globalIndex) insert(rec IntervalRecord) {
	i := gi.search(rec.LogicalOffset)

	if rec.Length == 0 {
		// Zero-length markers are inert: keep them only while their
		// start key is free and outside every real interval, so the
		// tail ordering of the slice is preserved.
		if i < len(gi.entries) && gi.entries[i].LogicalOffset == rec.LogicalOffset {
			return
		}
		if i > 0 && gi.entries[i-1].Tail() > rec.LogicalOffset {
			return
		}
		gi.insertAt(i, rec)
		return
	}

	// Touching neighbors go through resolution too, so a record that
	// continues one of them is joined to it.
	collide := i < len(gi.entries) && gi.entries[i].LogicalOffset == rec.LogicalOffset
	overPrev := i > 0 && gi.entries[i-1].Tail() >= rec.LogicalOffset
	overNext := i < len(gi.entries) && gi.entries[i].reaches(rec.Tail())
	if !collide && !overPrev && !overNext {
		gi.insertAt(i, rec)
		return
	}
	gi.insertOverlapped(rec)
}

func (gi *globalIndex) insertAt(i int, rec IntervalRecord) {
	gi.entries = append(gi.entries, IntervalRecord{})
	copy(gi.entries[i+1:], gi.entries[i:])
	gi.entries[i] = rec
}

// insertOverlapped resolves rec against every existing entry it
// intersects. The affected window is cut at every involved record
// boundary and each fragment is awarded to the newest record covering it,
// with the loser's remainders re-emitted around the winner. Splitting a
// record at p shifts the back half's physical offset by p minus its
// start; timestamps and ids copy into both halves. One splice pass
// realizes all three overlap cases (identical start, containment,
// partial) and terminates by construction.
func (gi *globalIndex) insertOverlapped(rec IntervalRecord) {
	// The only predecessor that can reach or touch rec is the last entry
	// starting before it; everything from there up to rec's tail is
	// involved, including a nonzero entry starting exactly at the tail.
	lo := gi.search(rec.LogicalOffset)
	if lo > 0 && gi.entries[lo-1].Tail() >= rec.LogicalOffset {
		lo--
	}
	hi := lo
	for hi < len(gi.entries) && gi.entries[hi].reaches(rec.Tail()) {
		hi++
	}

	involved := make([]IntervalRecord, 0, hi-lo+1)
	involved = append(involved, gi.entries[lo:hi]...)
	involved = append(involved, rec)

	// Cut points: every start and tail of an involved record. Between
	// two adjacent cuts, coverage by any record is all or nothing.
	cuts := make([]int64, 0, 2*len(involved))
	for i := range involved {
		cuts = append(cuts, involved[i].LogicalOffset, involved[i].Tail())
	}
	sort.Slice(cuts, func(a, b int) bool { return cuts[a] < cuts[b] })
	cuts = dedupInt64(cuts)

	frags := make([]IntervalRecord, 0, len(cuts))
	for c := 0; c+1 < len(cuts); c++ {
		p, q := cuts[c], cuts[c+1]
		var win *IntervalRecord
		for i := range involved {
			e := &involved[i]
			if !e.contains(p) {
				continue
			}
			if win == nil || e.newerThan(win) {
				win = e
			}
		}
		if win == nil {
			continue // a gap the new record did not bridge
		}
		f := *win
		f.PhysicalOffset += p - f.LogicalOffset
		f.LogicalOffset = p
		f.Length = uint64(q - p)

		// Re-join adjacent fragments that continue one another: two cuts
		// with the same winner on both sides, or a touching neighbor of
		// the same write stream. Keeping the map maximally joined here is
		// what makes the final map independent of the order records
		// arrived in.
		if n := len(frags); n > 0 && abutting(&frags[n-1], &f) {
			frags[n-1].Length += f.Length
			continue
		}
		frags = append(frags, f)
	}

	gi.entries = append(gi.entries[:lo], append(frags, gi.entries[hi:]...)...)
}

// reaches reports whether an entry starting at or after a record's start
// takes part in resolving a record that ends at tail: it starts inside
// the record, or it is nonzero and starts exactly at tail.
func (e *IntervalRecord) reaches(tail int64) bool {
	return e.LogicalOffset < tail || (e.LogicalOffset == tail && e.Length > 0)
}

// abutting reports whether b continues a: same chunk, writer and
// timestamps, contiguous both logically and physically.
func abutting(a, b *IntervalRecord) bool {
	return a.ChunkID == b.ChunkID && a.WriterID == b.WriterID &&
		a.Begin == b.Begin && a.End == b.End &&
		a.Tail() == b.LogicalOffset &&
		a.PhysicalOffset+int64(a.Length) == b.PhysicalOffset
}

func dedupInt64(v []int64) []int64 {
	out := v[:0]
	for i, x := range v {
		if i == 0 || x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

// readState is the read side of an open index: the aggregated map, the
// chunk table it indexes into, and the running aggregates the scan
// produced. It doubles as the per-worker partial result of a parallel
// scan.
type readState struct {
	idx    globalIndex
	chunks ChunkTable
	// eof is the largest logical tail of any nonzero record seen.
	eof int64
	// backingBytes sums the length of every record scanned, shadowed
	// writes included.
	backingBytes int64
}

// insertScanned accounts one scanned record and inserts it. Zero-length
// records count toward backing bytes but never extend eof.
func (rs *readState) insertScanned(rec IntervalRecord) {
	rs.backingBytes += int64(rec.Length)
	if rec.Length > 0 && rec.Tail() > rs.eof {
		rs.eof = rec.Tail()
	}
	rs.idx.insert(rec)
}

// addDropping scans one index dropping into the state, interning the data
// droppings its records reference.
func (rs *readState) addDropping(ctx context.Context, store iostore.Store, bpath string) error {
	recs, err := readDropping(ctx, store, bpath)
	if err != nil {
		return err
	}

	// Writer ids repeat heavily within one dropping; intern each one once.
	ids := map[int32]int32{}
	for i := range recs {
		r := &recs[i]
		cid, ok := ids[r.WriterID]
		if !ok {
			cpath, err := dataDroppingPath(bpath, r.WriterID)
			if err != nil {
				return err
			}
			cid = rs.chunks.Intern(cpath, store)
			ids[r.WriterID] = cid
		}
		rs.insertScanned(IntervalRecord{
			LogicalOffset:  r.LogicalOffset,
			PhysicalOffset: r.PhysicalOffset,
			Length:         r.Length,
			Begin:          r.Begin,
			End:            r.End,
			ChunkID:        cid,
			WriterID:       r.WriterID,
		})
	}
	return nil
}

// merge folds src into rs, re-running overlap resolution for every source
// entry. Source chunk ids are re-interned so duplicate data droppings
// across partials collapse to one table slot. The resolution rules are
// deterministic under the timestamp/writer ordering, so the fold order of
// partials does not change the final map.
func (rs *readState) merge(src *readState) {
	idmap := make([]int32, src.chunks.Len())
	for i := range idmap {
		e := src.chunks.Entry(int32(i))
		idmap[i] = rs.chunks.Intern(e.BPath, e.Store)
	}
	for _, rec := range src.idx.entries {
		rec.ChunkID = idmap[rec.ChunkID]
		rs.idx.insert(rec)
	}
	if src.eof > rs.eof {
		rs.eof = src.eof
	}
	// Backing bytes carry over wholesale: entries shadowed during the
	// source's own resolution already contributed there.
	rs.backingBytes += src.backingBytes
}

// truncTo discards every entry at or past z and clips any straddler so it
// ends at z. The caller is responsible for rewriting persisted droppings
// to match.
func (rs *readState) truncTo(z int64) {
	keep := rs.idx.entries[:0]
	for _, e := range rs.idx.entries {
		if e.LogicalOffset >= z {
			continue
		}
		if e.Tail() > z {
			e.Length = uint64(z - e.LogicalOffset)
		}
		keep = append(keep, e)
	}
	rs.idx.entries = keep
	rs.eof = z
}
