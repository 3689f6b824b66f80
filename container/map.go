package container

import "github.com/rollkernel/rollkernel/hashfn"

// Map is a K -> V container. Keys are codec-encoded, combined with the
// container's prefix, and hashed to the 32-byte KeyHash the JMT indexes by.
//
// Iteration needs an ordered key list the JMT can't give back on its own
// (KeyHash is one-way), so Map keeps a companion insertion-ordered index of
// encoded keys under prefix+"/keys", appended to on first Set of a key.
// Removed keys stay in the index (Iter skips them by re-checking presence)
// rather than being compacted out, trading iteration-time work for O(1)
// Remove.
type Map[K comparable, V any] struct {
	prefix     Prefix
	hasher     hashfn.Hasher
	keyCodec   Codec[K]
	valueCodec Codec[V]
	index      *Vector[[]byte]
}

// NewMap creates a Map addressed by prefix.
func NewMap[K comparable, V any](prefix Prefix, keyCodec Codec[K], valueCodec Codec[V], hasher hashfn.Hasher) *Map[K, V] {
	return &Map[K, V]{
		prefix:     prefix,
		hasher:     hasher,
		keyCodec:   keyCodec,
		valueCodec: valueCodec,
		index:      newVectorWithPrefix[[]byte](fieldPrefixSuffixed(prefix, "keys"), BytesCodec{}, hasher),
	}
}

func (m *Map[K, V]) keyHash(k K) ([]byte, error) {
	enc, err := m.keyCodec.Encode(k)
	if err != nil {
		return nil, err
	}
	h := m.hasher.Sum(m.prefix.Bytes(), enc)
	return h[:], nil
}

// Get returns the value stored for k, or false if absent.
func (m *Map[K, V]) Get(ws reader, k K) (V, bool, error) {
	var zero V
	kh, err := m.keyHash(k)
	if err != nil {
		return zero, false, err
	}
	raw, ok, err := ws.Get(kh)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := m.valueCodec.Decode(raw)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Set stores v under k, recording k in the iteration index the first time
// it is written.
func (m *Map[K, V]) Set(ws accessor, k K, v V) error {
	kh, err := m.keyHash(k)
	if err != nil {
		return err
	}
	_, existed, err := ws.Get(kh)
	if err != nil {
		return err
	}
	enc, err := m.valueCodec.Encode(v)
	if err != nil {
		return err
	}
	ws.Set(kh, enc)
	if !existed {
		rawKey, err := m.keyCodec.Encode(k)
		if err != nil {
			return err
		}
		if err := m.index.Push(ws, rawKey); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the value stored for k, if any.
func (m *Map[K, V]) Remove(ws writer, k K) error {
	kh, err := m.keyHash(k)
	if err != nil {
		return err
	}
	ws.Delete(kh)
	return nil
}

// Iter returns every (key, value) pair currently present, in the order
// each key was first inserted.
func (m *Map[K, V]) Iter(ws accessor) ([]K, []V, error) {
	rawKeys, err := m.index.Iter(ws)
	if err != nil {
		return nil, nil, err
	}
	var keys []K
	var values []V
	// A key removed and then set again appears in the index more than once.
	seen := make(map[string]bool, len(rawKeys))
	for _, rawKey := range rawKeys {
		if seen[string(rawKey)] {
			continue
		}
		seen[string(rawKey)] = true
		k, err := m.keyCodec.Decode(rawKey)
		if err != nil {
			return nil, nil, err
		}
		v, ok, err := m.Get(ws, k)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		keys = append(keys, k)
		values = append(values, v)
	}
	return keys, values, nil
}
