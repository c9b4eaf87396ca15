package brindex

type openOptions struct {
	stream         []byte
	uniformRestart bool
	uniformRank    int32
}

// OpenOption adjusts one Open call.
type OpenOption func(*openOptions)

// WithGlobalStream makes Open reconstruct the index from a pre-serialized
// global image instead of scanning droppings. The stream is typically
// produced by ExportStream on another node.
func WithGlobalStream(data []byte) OpenOption {
	return func(o *openOptions) {
		o.stream = data
	}
}

// WithUniformRestart restricts the open scan to droppings written by the
// given rank, for deterministic re-reads from a single writer identity.
func WithUniformRestart(rank int32) OpenOption {
	return func(o *openOptions) {
		o.uniformRestart = true
		o.uniformRank = rank
	}
}
