package container

import (
	"github.com/rollkernel/rollkernel/hashfn"
	"github.com/rollkernel/rollkernel/workingset"
)

// reader is the subset of WorkingSet a container needs for Get; satisfied
// by *workingset.WorkingSet.
type reader interface {
	Get(key []byte) ([]byte, bool, error)
}

// writer is the subset of WorkingSet a container needs for Set/Delete.
type writer interface {
	Set(key, value []byte)
	Delete(key []byte)
}

// accessor is the full read-write surface a container needs.
type accessor interface {
	reader
	writer
}

// Singleton holds exactly one value of type V under a fixed prefix.
type Singleton[V any] struct {
	codec   Codec[V]
	keyHash []byte
}

// NewSingleton creates a Singleton addressed by prefix, hashed with hasher.
func NewSingleton[V any](prefix Prefix, codec Codec[V], hasher hashfn.Hasher) *Singleton[V] {
	kh := prefix.Hash(hasher)
	return &Singleton[V]{codec: codec, keyHash: kh[:]}
}

// Get returns the stored value, or false if never set (or removed).
func (s *Singleton[V]) Get(ws reader) (V, bool, error) {
	var zero V
	raw, ok, err := ws.Get(s.keyHash)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := s.codec.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set stores v.
func (s *Singleton[V]) Set(ws writer, v V) error {
	enc, err := s.codec.Encode(v)
	if err != nil {
		return err
	}
	ws.Set(s.keyHash, enc)
	return nil
}

// Remove deletes the stored value.
func (s *Singleton[V]) Remove(ws writer) {
	ws.Delete(s.keyHash)
}

var _ accessor = (*workingset.WorkingSet)(nil)
