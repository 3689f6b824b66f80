package container

import (
	"encoding/binary"

	"github.com/rollkernel/rollkernel/hashfn"
)

// Vector is an ordered list of V, with a length singleton and individually
// addressed index slots.
type Vector[V any] struct {
	itemPrefix Prefix
	lenKeyHash []byte
	hasher     hashfn.Hasher
	codec      Codec[V]
}

// NewVector creates a Vector addressed by prefix.
func NewVector[V any](prefix Prefix, codec Codec[V], hasher hashfn.Hasher) *Vector[V] {
	return newVectorWithPrefix[V](prefix, codec, hasher)
}

func newVectorWithPrefix[V any](prefix Prefix, codec Codec[V], hasher hashfn.Hasher) *Vector[V] {
	lenPrefix := fieldPrefixSuffixed(prefix, "len")
	lh := lenPrefix.Hash(hasher)
	return &Vector[V]{itemPrefix: prefix, lenKeyHash: lh[:], hasher: hasher, codec: codec}
}

// fieldPrefixSuffixed derives a sub-prefix for an internal bookkeeping
// field (e.g. a Vector's length, or a Map's key index) nested under an
// existing container's prefix.
func fieldPrefixSuffixed(p Prefix, suffix string) Prefix {
	base := string(p.Bytes())
	return NewModulePrefix(base, suffix)
}

func (v *Vector[V]) indexKeyHash(i uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], i)
	h := v.hasher.Sum(v.itemPrefix.Bytes(), buf[:])
	return h[:]
}

// Len returns the number of elements currently in the vector.
func (v *Vector[V]) Len(ws reader) (uint64, error) {
	raw, ok, err := ws.Get(v.lenKeyHash)
	if err != nil || !ok {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, errShortUint64
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (v *Vector[V]) setLen(ws writer, n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	ws.Set(v.lenKeyHash, buf[:])
}

// Get returns the element at index i, or false if i is out of range.
func (v *Vector[V]) Get(ws reader, i uint64) (V, bool, error) {
	var zero V
	n, err := v.Len(ws)
	if err != nil || i >= n {
		return zero, false, err
	}
	raw, ok, err := ws.Get(v.indexKeyHash(i))
	if err != nil || !ok {
		return zero, false, err
	}
	val, err := v.codec.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return val, true, nil
}

// Set overwrites the element at index i. i must be < Len.
func (v *Vector[V]) Set(ws accessor, i uint64, val V) error {
	n, err := v.Len(ws)
	if err != nil {
		return err
	}
	if i >= n {
		return errVectorIndexOutOfRange
	}
	enc, err := v.codec.Encode(val)
	if err != nil {
		return err
	}
	ws.Set(v.indexKeyHash(i), enc)
	return nil
}

// Push appends val, growing the vector by one.
func (v *Vector[V]) Push(ws accessor, val V) error {
	n, err := v.Len(ws)
	if err != nil {
		return err
	}
	enc, err := v.codec.Encode(val)
	if err != nil {
		return err
	}
	ws.Set(v.indexKeyHash(n), enc)
	v.setLen(ws, n+1)
	return nil
}

// Iter returns every element in index order.
func (v *Vector[V]) Iter(ws accessor) ([]V, error) {
	n, err := v.Len(ws)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, n)
	for i := uint64(0); i < n; i++ {
		val, ok, err := v.Get(ws, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errVectorMissingElement
		}
		out = append(out, val)
	}
	return out, nil
}

type vectorError string

func (e vectorError) Error() string { return string(e) }

const (
	errVectorIndexOutOfRange vectorError = "container: vector index out of range"
	errVectorMissingElement  vectorError = "container: vector element missing within its own length"
)
