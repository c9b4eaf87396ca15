package brindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/skypexu/plfs-core/iostore"
)

// Global index stream layout, used to hand a fully aggregated index to
// another node without rescanning:
//
//	uint64 LE   record count N
//	N x IntervalRecord, native layout, chunk id in the id slot
//	one physical path spec per chunk, '\n' terminated, in chunk id order
//
// Paths starting with "/" are implicitly "posix:".

// exportStream renders the read state as a global index stream.
func (rs *readState) exportStream() []byte {
	n := len(rs.idx.entries)
	var paths strings.Builder
	for i := 0; i < rs.chunks.Len(); i++ {
		e := rs.chunks.Entry(int32(i))
		paths.WriteString(iostore.Spec(e.Store, e.BPath))
		paths.WriteByte('\n')
	}

	buf := make([]byte, 8+n*IntervalRecordSize+paths.Len())
	binary.LittleEndian.PutUint64(buf, uint64(n))
	off := 8
	for i := range rs.idx.entries {
		putIntervalRecord(buf[off:], &rs.idx.entries[i])
		off += IntervalRecordSize
	}
	copy(buf[off:], paths.String())
	return buf
}

// importStream reconstructs the read state from a serialized global
// image, bypassing the dropping scan. The records are re-inserted through
// the normal path so the map invariants hold even for a stream somebody
// else produced.
func (rs *readState) importStream(data []byte, registry *iostore.Registry) error {
	if len(data) < 8 {
		return ErrStreamTruncated
	}
	n := binary.LittleEndian.Uint64(data)
	off := uint64(8)
	if n > (uint64(len(data))-off)/IntervalRecordSize {
		return ErrStreamTruncated
	}

	recs := make([]IntervalRecord, n)
	maxChunk := int32(-1)
	for i := range recs {
		recs[i] = getIntervalRecord(data[off:])
		off += IntervalRecordSize
		if recs[i].ChunkID > maxChunk {
			maxChunk = recs[i].ChunkID
		}
	}

	for _, line := range strings.Split(string(data[off:]), "\n") {
		if line == "" {
			continue
		}
		store, bpath, err := registry.Resolve(line)
		if err != nil {
			return err
		}
		rs.chunks.Intern(bpath, store)
	}
	if int(maxChunk) >= rs.chunks.Len() {
		return fmt.Errorf("%w: stream id %d of %d chunks", ErrChunkRange, maxChunk, rs.chunks.Len())
	}

	for _, rec := range recs {
		rs.insertScanned(rec)
	}
	return nil
}

// IndexFileInfo describes one index dropping of a writer subdirectory:
// its open timestamp, the writing host, and the writer id. Parallel
// readers exchange lists of these to partition scan work.
type IndexFileInfo struct {
	Timestamp float64
	Hostname  string
	ID        int32
}

// IndexInfoList enumerates the index droppings of one writer
// subdirectory. A missing subdirectory yields an empty list.
func IndexInfoList(ctx context.Context, subdir iostore.Pathback) ([]IndexFileInfo, error) {
	names, err := subdir.Store.ReadDir(ctx, subdir.BPath)
	if err != nil {
		if iostore.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var infos []IndexFileInfo
	for _, name := range names {
		if !strings.HasPrefix(name, IndexPrefix) {
			continue
		}
		info, err := parseDroppingName(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(a, b int) bool {
		if infos[a].Timestamp != infos[b].Timestamp {
			return infos[a].Timestamp < infos[b].Timestamp
		}
		return infos[a].ID < infos[b].ID
	})
	return infos, nil
}

// parseDroppingName splits "dropping.index.<sec>.<usec>.<host>.<pid>".
func parseDroppingName(name string) (IndexFileInfo, error) {
	fields := strings.Split(name[len(IndexPrefix):], ".")
	if len(fields) < 4 {
		return IndexFileInfo{}, fmt.Errorf("%w: %s", ErrBadDroppingName, name)
	}
	ts, err := strconv.ParseFloat(fields[0]+"."+fields[1], 64)
	if err != nil {
		return IndexFileInfo{}, fmt.Errorf("%w: %s", ErrBadDroppingName, name)
	}
	id, err := strconv.ParseInt(fields[len(fields)-1], 10, 32)
	if err != nil {
		return IndexFileInfo{}, fmt.Errorf("%w: %s", ErrBadDroppingName, name)
	}
	host := strings.Join(fields[2:len(fields)-1], ".")
	return IndexFileInfo{Timestamp: ts, Hostname: host, ID: int32(id)}, nil
}

// InfoListToStream packs dropping infos for the wire: per record a native
// float64 timestamp, a uint32 length-prefixed hostname, and the uint32
// writer id.
func InfoListToStream(infos []IndexFileInfo) []byte {
	size := 0
	for i := range infos {
		size += 8 + 4 + len(infos[i].Hostname) + 4
	}
	buf := make([]byte, size)
	off := 0
	for i := range infos {
		native.PutUint64(buf[off:], math.Float64bits(infos[i].Timestamp))
		off += 8
		native.PutUint32(buf[off:], uint32(len(infos[i].Hostname)))
		off += 4
		off += copy(buf[off:], infos[i].Hostname)
		native.PutUint32(buf[off:], uint32(infos[i].ID))
		off += 4
	}
	return buf
}

// InfoStreamToList is the inverse of InfoListToStream.
func InfoStreamToList(data []byte) ([]IndexFileInfo, error) {
	var infos []IndexFileInfo
	off := 0
	for off < len(data) {
		if len(data)-off < 12 {
			return nil, ErrStreamTruncated
		}
		ts := math.Float64frombits(native.Uint64(data[off:]))
		off += 8
		hlen := int(native.Uint32(data[off:]))
		off += 4
		if len(data)-off < hlen+4 {
			return nil, ErrStreamTruncated
		}
		host := string(data[off : off+hlen])
		off += hlen
		id := int32(native.Uint32(data[off:]))
		off += 4
		infos = append(infos, IndexFileInfo{Timestamp: ts, Hostname: host, ID: id})
	}
	return infos, nil
}
