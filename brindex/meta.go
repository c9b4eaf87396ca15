package brindex

import (
	commoncbor "github.com/datatrails/go-datatrails-common/cbor"
)

// CloseMeta is the record the container layer persists in its metadata
// dropping when a writable open closes: the values Close reports, plus
// the writing host so readers can skip rescanning droppings of hosts
// whose meta is current.
type CloseMeta struct {
	LastOffset int64   `cbor:"1,keyasint"`
	TotalBytes uint64  `cbor:"2,keyasint"`
	Hostname   string  `cbor:"3,keyasint"`
	ClosedAt   float64 `cbor:"4,keyasint"`
}

// NewMetaCodec returns the codec close meta records are exchanged with.
func NewMetaCodec() (commoncbor.CBORCodec, error) {
	codec, err := commoncbor.NewCBORCodec(commoncbor.NewDeterministicEncOpts(), commoncbor.NewDeterministicDecOpts())
	if err != nil {
		return commoncbor.CBORCodec{}, err
	}
	return codec, nil
}

// EncodeCloseMeta serializes a close meta record.
func EncodeCloseMeta(codec commoncbor.CBORCodec, m *CloseMeta) ([]byte, error) {
	return codec.MarshalCBOR(m)
}

// DecodeCloseMeta parses a close meta record.
func DecodeCloseMeta(codec commoncbor.CBORCodec, data []byte) (CloseMeta, error) {
	var m CloseMeta
	if err := codec.UnmarshalInto(data, &m); err != nil {
		return CloseMeta{}, err
	}
	return m, nil
}
