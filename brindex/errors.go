package brindex

import "errors"

var (
	ErrNotOpen         = errors.New("the index is not open")
	ErrAlreadyOpen     = errors.New("the index is already open")
	ErrWrongMode       = errors.New("operation not permitted in the current open mode")
	ErrBadQuery        = errors.New("query length must be positive")
	ErrNoWriteDropping = errors.New("write records are buffered but no write dropping is open")
	ErrBadDroppingSize = errors.New("index dropping size is not a multiple of the record size")
	ErrStreamTruncated = errors.New("global index stream is truncated")
	ErrChunkRange      = errors.New("chunk id out of range for the chunk table")
	ErrBadDroppingName = errors.New("file name is not a well formed index dropping name")
	ErrUnsupported     = errors.New("operation not supported by the byte range index")
)
