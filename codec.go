package herdcache

import "github.com/vmihailenco/msgpack/v5"

// Codec converts between a cached value and the raw bytes the BackendClient
// deals in. Serialization is named in §1 as an external concern the core
// does not care about the implementation of; Codec is the seam that keeps
// the generic value type out of BackendClient entirely.
type Codec[V any] interface {
	Marshal(v V) ([]byte, error)
	Unmarshal(data []byte) (V, error)
}

// msgpackCodec is the default Codec, grounded on the msgpack dependency the
// retrieval pack's other Redis/memcache-backed cache client
// (iiivansss84/dcache) uses for the same purpose.
type msgpackCodec[V any] struct{}

func (msgpackCodec[V]) Marshal(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec[V]) Unmarshal(data []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(data, &v)
	return v, err
}

// defaultCodec returns the msgpack-backed Codec used when no Codec is
// configured via WithCodec.
func defaultCodec[V any]() Codec[V] {
	return msgpackCodec[V]{}
}
