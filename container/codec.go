package container

import (
	"encoding/binary"
	"encoding/json"
)

// Codec encodes and decodes the logical values a container stores.
// Containers never assume a specific wire format; callers plug in whichever
// codec fits, mirroring the Rust StateValueCodec/StateCodec split.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(b []byte) (T, error)
}

// JSONCodec is the default codec: adequate for any JSON-marshalable type
// and convenient for tests and tooling. Modules with hot-path encoding
// needs are expected to supply a tighter codec.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Encode(v T) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec[T]) Decode(b []byte) (T, error) {
	var v T
	err := json.Unmarshal(b, &v)
	return v, err
}

// BytesCodec is the identity codec for []byte values, used internally by
// Map's key index and directly available to callers that already manage
// their own encoding.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) ([]byte, error) { return v, nil }
func (BytesCodec) Decode(b []byte) ([]byte, error) { return b, nil }

// Uint64Codec encodes a uint64 as 8 big-endian bytes.
type Uint64Codec struct{}

func (Uint64Codec) Encode(v uint64) ([]byte, error) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf, nil
}

func (Uint64Codec) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, errShortUint64
	}
	return binary.BigEndian.Uint64(b), nil
}

var errShortUint64 = shortUint64Error{}

type shortUint64Error struct{}

func (shortUint64Error) Error() string { return "container: uint64 value must be exactly 8 bytes" }
