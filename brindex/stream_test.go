package brindex

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypexu/plfs-core/iostore"
)

func testRegistry() *iostore.Registry {
	return iostore.NewRegistry(iostore.NewPosixStore())
}

func streamState() *readState {
	store := iostore.NewPosixStore()
	rs := &readState{}
	rs.chunks.Intern("/backing/c/hostdir.0/dropping.data.1.0.h.1", store)
	rs.chunks.Intern("/backing/c/hostdir.0/dropping.data.1.0.h.2", store)
	rs.insertScanned(ivl(0, 0, 100, 1, 2, 0, 1))
	rs.insertScanned(ivl(100, 0, 50, 2, 3, 1, 2))
	rs.insertScanned(ivl(200, 100, 10, 3, 4, 0, 1))
	return rs
}

func TestGlobalStreamImportIsFixedPoint(t *testing.T) {
	rs := streamState()
	stream := rs.exportStream()

	in := &readState{}
	require.NoError(t, in.importStream(stream, testRegistry()))
	assert.Equal(t, rs.idx.entries, in.idx.entries)
	assert.Equal(t, rs.eof, in.eof)
	assert.Equal(t, rs.backingBytes, in.backingBytes)

	// import then export reproduces the stream byte for byte
	assert.Equal(t, stream, in.exportStream())
}

func TestGlobalStreamLayout(t *testing.T) {
	rs := streamState()
	stream := rs.exportStream()

	// count is little-endian regardless of the record byte order
	require.Equal(t, uint64(3), binary.LittleEndian.Uint64(stream))

	rec := getIntervalRecord(stream[8:])
	assert.Equal(t, rs.idx.entries[0], rec)

	paths := string(stream[8+3*IntervalRecordSize:])
	assert.Equal(t,
		"/backing/c/hostdir.0/dropping.data.1.0.h.1\n/backing/c/hostdir.0/dropping.data.1.0.h.2\n",
		paths, "bare absolute paths imply the posix scheme")
}

func TestGlobalStreamTruncated(t *testing.T) {
	rs := streamState()
	stream := rs.exportStream()

	in := &readState{}
	assert.ErrorIs(t, in.importStream(stream[:4], testRegistry()), ErrStreamTruncated)

	in = &readState{}
	assert.ErrorIs(t, in.importStream(stream[:8+IntervalRecordSize], testRegistry()), ErrStreamTruncated)
}

func TestGlobalStreamChunkIdOutOfRange(t *testing.T) {
	buf := make([]byte, 8+IntervalRecordSize)
	binary.LittleEndian.PutUint64(buf, 1)
	rec := ivl(0, 0, 10, 1, 2, 3, 1) // chunk 3 of a stream with no paths
	putIntervalRecord(buf[8:], &rec)

	in := &readState{}
	assert.ErrorIs(t, in.importStream(buf, testRegistry()), ErrChunkRange)
}

func TestIndexInfoStreamRoundTrip(t *testing.T) {
	infos := []IndexFileInfo{
		{Timestamp: 1700000000.123456, Hostname: "node1.fast", ID: 4},
		{Timestamp: 1700000001.5, Hostname: "node2", ID: 9},
	}
	got, err := InfoStreamToList(InfoListToStream(infos))
	require.NoError(t, err)
	assert.Equal(t, infos, got)

	_, err = InfoStreamToList(InfoListToStream(infos)[:5])
	assert.ErrorIs(t, err, ErrStreamTruncated)
}

func TestParseDroppingName(t *testing.T) {
	info, err := parseDroppingName("dropping.index.1700000000.123456.node1.fast.42")
	require.NoError(t, err)
	assert.Equal(t, 1700000000.123456, info.Timestamp)
	assert.Equal(t, "node1.fast", info.Hostname)
	assert.Equal(t, int32(42), info.ID)

	_, err = parseDroppingName("dropping.index.1.2")
	assert.ErrorIs(t, err, ErrBadDroppingName)
}

func TestIndexInfoList(t *testing.T) {
	container, subdir := testContainer(t)
	ctx := context.Background()

	writeTestDropping(t, subdir, "2.0", "node2", 7, nil)
	writeTestDropping(t, subdir, "1.0", "node1", 3, nil)

	infos, err := IndexInfoList(ctx, iostore.Pathback{BPath: subdir, Store: container.Store})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	// sorted by timestamp
	assert.Equal(t, int32(3), infos[0].ID)
	assert.Equal(t, "node1", infos[0].Hostname)
	assert.Equal(t, int32(7), infos[1].ID)

	infos, err = IndexInfoList(ctx, iostore.Pathback{BPath: subdir + "/missing", Store: container.Store})
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestExportStreamThroughIndex(t *testing.T) {
	log := testLogger(t)
	container, subdir := testContainer(t)
	ctx := context.Background()

	writeTestDropping(t, subdir, "1.0", "h", 1, []WriteRecord{
		{LogicalOffset: 0, Length: 10, Begin: 1, End: 2, WriterID: 1},
	})

	x := New(log, container, Config{})
	require.NoError(t, x.Open(ctx, ModeRead))
	stream, err := x.ExportStream(ctx)
	require.NoError(t, err)
	_, _, err = x.Close(ctx)
	require.NoError(t, err)

	// another node opens straight from the stream, no droppings needed
	other := iostore.Pathback{BPath: container.BPath + "-elsewhere", Store: container.Store}
	y := New(log, other, Config{})
	require.NoError(t, y.Open(ctx, ModeRead, WithGlobalStream(stream)))
	out, err := y.Query(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(10), out[0].Length)
	_, _, err = y.Close(ctx)
	require.NoError(t, err)
}
