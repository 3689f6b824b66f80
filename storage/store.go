// Package storage implements the L0 backing store: an append-only,
// versioned key/value log backed by Pebble, plus a separate unversioned
// "accessory" keyspace for node-only indexes and a preimage keyspace for
// reconstructing keys from their hashes during witness replay.
//
// A single Pebble database holds four disjoint, prefix-tagged keyspaces
// (grounded on the teacher's column-family-per-concern layout in
// trie/database.go, collapsed here onto Pebble's flat keyspace since Pebble
// has no native column families):
//
//	'v' (KeyHash, Version) -> Value      authenticated values, versioned
//	'n' (NibblePath, Version) -> Node    JMT nodes, versioned
//	'a' AccessoryKey -> Value            non-authenticated side storage
//	'p' KeyHash -> Key                   preimages, for proof/debug use
//
// Value versions are stored bit-complemented so that Pebble's natural
// ascending key order walks versions in descending order, which is exactly
// the iteration direction the "latest version <= max_version" lookup needs.
// Node keys store the version as-is; nodes are only read at an exact version.
package storage

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"github.com/rollkernel/rollkernel/core/types"
)

const (
	prefixValue     byte = 'v'
	prefixNode      byte = 'n'
	prefixAccessory byte = 'a'
	prefixPreimage  byte = 'p'

	tagValue     byte = 0
	tagTombstone byte = 1
)

// Options tunes the underlying Pebble database. Zero values fall back to
// Pebble's own defaults.
type Options struct {
	CacheSizeMB  int
	MaxOpenFiles int
	BytesPerSync int
	DisableWAL   bool
}

// Store is the L0 backing store.
type Store struct {
	db *pebble.DB
}

// Open creates or opens a Pebble database at dir.
func Open(dir string, opts Options) (*Store, error) {
	popts := &pebble.Options{}
	if opts.MaxOpenFiles > 0 {
		popts.MaxOpenFiles = opts.MaxOpenFiles
	}
	if opts.BytesPerSync > 0 {
		popts.BytesPerSync = opts.BytesPerSync
	}
	if opts.CacheSizeMB > 0 {
		popts.Cache = pebble.NewCache(int64(opts.CacheSizeMB) << 20)
	}
	db, err := pebble.Open(dir, popts)
	if err != nil {
		return nil, errors.Wrapf(err, "storage: opening %s", dir)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func invertVersion(v uint64) uint64 { return ^v }

func versionKey(prefix byte, id []byte, version uint64) []byte {
	key := make([]byte, 1+len(id)+8)
	key[0] = prefix
	copy(key[1:], id)
	binary.BigEndian.PutUint64(key[1+len(id):], invertVersion(version))
	return key
}

func valueKeyPrefix(keyHash types.Hash) []byte {
	k := make([]byte, 1+types.HashLength)
	k[0] = prefixValue
	copy(k[1:], keyHash[:])
	return k
}

// GetValue returns the value written at the largest version <= maxVersion,
// and false if no such record exists or if the latest such record is a
// tombstone.
func (s *Store) GetValue(keyHash types.Hash, maxVersion uint64) ([]byte, bool, error) {
	seekKey := versionKey(prefixValue, keyHash[:], maxVersion)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, false, err
	}
	defer iter.Close()

	// seekKey encodes exactly maxVersion; entries for versions <= maxVersion
	// sort at or after it (inverted encoding), so SeekGE lands on the
	// newest qualifying record directly.
	if !iter.SeekGE(seekKey) {
		return nil, false, iter.Error()
	}
	k := iter.Key()
	prefix := valueKeyPrefix(keyHash)
	if len(k) < len(prefix) || string(k[:len(prefix)]) != string(prefix) {
		return nil, false, nil
	}
	val := iter.Value()
	if len(val) == 0 {
		return nil, false, errors.New("storage: malformed value record (missing tag byte)")
	}
	if val[0] == tagTombstone {
		return nil, false, nil
	}
	out := make([]byte, len(val)-1)
	copy(out, val[1:])
	return out, true, nil
}

func nodeKey(path []byte, version uint64) []byte {
	key := make([]byte, 1+len(path)+8)
	key[0] = prefixNode
	copy(key[1:], path)
	binary.BigEndian.PutUint64(key[1+len(path):], version)
	return key
}

// GetNode loads the JMT node stored at (path, version) verbatim.
func (s *Store) GetNode(path []byte, version uint64) ([]byte, bool, error) {
	val, closer, err := s.db.Get(nodeKey(path, version))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func accessoryKey(key []byte) []byte {
	k := make([]byte, 1+len(key))
	k[0] = prefixAccessory
	copy(k[1:], key)
	return k
}

// GetAccessory loads a non-authenticated side-storage value.
func (s *Store) GetAccessory(key []byte) ([]byte, bool, error) {
	val, closer, err := s.db.Get(accessoryKey(key))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

func preimageKey(keyHash types.Hash) []byte {
	k := make([]byte, 1+types.HashLength)
	k[0] = prefixPreimage
	copy(k[1:], keyHash[:])
	return k
}

// GetPreimage returns the original key bytes for keyHash, if stored.
func (s *Store) GetPreimage(keyHash types.Hash) ([]byte, bool, error) {
	val, closer, err := s.db.Get(preimageKey(keyHash))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// Batch accumulates writes for atomic application via ApplyBatch. A Batch
// is single-use: construct a fresh one per slot.
type Batch struct {
	pb *pebble.Batch
}

// NewBatch creates an empty batch bound to this store.
func (s *Store) NewBatch() *Batch {
	return &Batch{pb: s.db.NewBatch()}
}

// PutValue records value at (keyHash, version). A nil value writes a
// tombstone: the key is modeled as deleted as of version but the record
// itself remains, as required for "latest version <= v" lookups to
// correctly report absence rather than falling through to an older write.
func (b *Batch) PutValue(keyHash types.Hash, version uint64, value []byte) error {
	key := versionKey(prefixValue, keyHash[:], version)
	if value == nil {
		return b.pb.Set(key, []byte{tagTombstone}, nil)
	}
	rec := make([]byte, 1+len(value))
	rec[0] = tagValue
	copy(rec[1:], value)
	return b.pb.Set(key, rec, nil)
}

// PutNode records the JMT node encoding at (path, version).
func (b *Batch) PutNode(path []byte, version uint64, encoded []byte) error {
	return b.pb.Set(nodeKey(path, version), encoded, nil)
}

// PutAccessory records a non-authenticated side-storage value.
func (b *Batch) PutAccessory(key, value []byte) error {
	return b.pb.Set(accessoryKey(key), value, nil)
}

// PutPreimage records the original key bytes behind keyHash.
func (b *Batch) PutPreimage(keyHash types.Hash, key []byte) error {
	return b.pb.Set(preimageKey(keyHash), key, nil)
}

// ApplyBatch commits every write in b atomically. No partial writes are
// ever observable: the slot that produced b either commits in full or the
// caller retries the whole slot from its pre-state.
func (s *Store) ApplyBatch(b *Batch) error {
	return s.db.Apply(b.pb, pebble.Sync)
}
