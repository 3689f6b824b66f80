// Package snapshot implements the L2 snapshot manager: a tree of in-memory
// ChangeSets, one per DA block, with copy-on-read semantics so that forks
// of the DA layer map 1:1 onto forks of rollup state without copying data.
//
// The tree shape and the "read new first, fall back to the parent" lookup
// are adapted from the teacher's OverlayTrie (trie/overlay.go), generalized
// from a single old/new pair to an arbitrarily deep fork tree, and the
// insertion-order write tracking is adapted from the teacher's DiffTracker
// (trie/diff_tracker.go). SnapshotIds are issued from a flat arena (a plain
// map keyed by a u64 counter) rather than pointers, matching the spec's
// explicit choice to avoid cyclic-ownership bookkeeping.
package snapshot

import (
	"bytes"
	"errors"
	"sync"
)

// SnapshotId identifies a node in the snapshot tree. The zero value is
// reserved: it names the committed base (L0/L1) directly rather than any
// arena entry, so a lookup chain that reaches 0 falls through to Base.Get.
type SnapshotId uint64

const baseSnapshotID SnapshotId = 0

var (
	ErrUnknownSnapshot  = errors.New("snapshot: unknown snapshot id")
	ErrFinalized        = errors.New("snapshot: snapshot already finalized")
	ErrSuperseded       = errors.New("snapshot: snapshot was superseded by a finalized sibling")
	ErrNotRootSnapshot  = errors.New("snapshot: only a snapshot parented directly at the committed base may be finalized")
	ErrSiblingFinalized = errors.New("snapshot: a sibling of this snapshot has already been finalized")
)

// Write is one pending mutation recorded against a ChangeSet. A Tombstone
// write shadows any value the parent chain (or the base) would otherwise
// return for Key.
type Write struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

// Base is the committed backing state a root-level ChangeSet finalizes
// into and falls through to on a read miss. In this repo it is implemented
// by the working set's adapter over the JMT (L1) plus accessory storage.
type Base interface {
	Get(key []byte) (value []byte, ok bool, err error)
}

// Commit persists a finalized ChangeSet's writes into Base atomically.
type Commit func(writes []Write) error

// changeSet is one node of the fork tree: a parent pointer plus this node's
// own pending writes, kept both as a map (point lookups) and an insertion-
// ordered key list (iter_range).
type changeSet struct {
	parent     SnapshotId
	writes     map[string]*Write
	order      []string
	finalized  bool
	superseded bool
}

// Manager owns the fork tree and the single Base every root-level
// ChangeSet eventually finalizes into.
type Manager struct {
	mu       sync.Mutex
	base     Base
	commit   Commit
	next     SnapshotId
	nodes    map[SnapshotId]*changeSet
	children map[SnapshotId][]SnapshotId
}

// NewManager creates a Manager with no live snapshots, reading through to
// base and finalizing through commit.
func NewManager(base Base, commit Commit) *Manager {
	return &Manager{
		base:     base,
		commit:   commit,
		next:     1,
		nodes:    make(map[SnapshotId]*changeSet),
		children: make(map[SnapshotId][]SnapshotId),
	}
}

// CreateSnapshot allocates a new empty ChangeSet parented at parent, which
// must be the base sentinel or a live (not finalized, not superseded)
// snapshot previously returned by CreateSnapshot.
func (m *Manager) CreateSnapshot(parent SnapshotId) (SnapshotId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if parent != baseSnapshotID {
		p, ok := m.nodes[parent]
		if !ok {
			return 0, ErrUnknownSnapshot
		}
		if p.superseded {
			return 0, ErrSuperseded
		}
	}

	id := m.next
	m.next++
	m.nodes[id] = &changeSet{parent: parent, writes: make(map[string]*Write)}
	m.children[parent] = append(m.children[parent], id)
	return id, nil
}

// Read walks the parent chain from snapshot, returning the first write
// found -- including an explicit tombstone, which reports absence without
// consulting any ancestor -- and falling through to Base once the chain
// bottoms out at the base sentinel.
func (m *Manager) Read(snapshot SnapshotId, key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(snapshot, key)
}

func (m *Manager) read(snapshot SnapshotId, key []byte) ([]byte, bool, error) {
	k := string(key)
	for {
		if snapshot == baseSnapshotID {
			return m.base.Get(key)
		}
		cs, ok := m.nodes[snapshot]
		if !ok {
			return nil, false, ErrUnknownSnapshot
		}
		if w, found := cs.writes[k]; found {
			if w.Tombstone {
				return nil, false, nil
			}
			return w.Value, true, nil
		}
		snapshot = cs.parent
	}
}

// Write records a (key, value) mutation against snapshot, overwriting any
// earlier write to the same key in this ChangeSet while preserving its
// original insertion-order position (matching the teacher's DiffTracker
// update-in-place behavior).
func (m *Manager) Write(snapshot SnapshotId, key, value []byte) error {
	return m.put(snapshot, key, value, false)
}

// Delete records a tombstone for key against snapshot.
func (m *Manager) Delete(snapshot SnapshotId, key []byte) error {
	return m.put(snapshot, key, nil, true)
}

func (m *Manager) put(snapshot SnapshotId, key, value []byte, tombstone bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.nodes[snapshot]
	if !ok {
		return ErrUnknownSnapshot
	}
	if cs.finalized {
		return ErrFinalized
	}

	k := string(key)
	if existing, found := cs.writes[k]; found {
		existing.Value = cloneBytes(value)
		existing.Tombstone = tombstone
		return nil
	}
	cs.writes[k] = &Write{Key: cloneBytes(key), Value: cloneBytes(value), Tombstone: tombstone}
	cs.order = append(cs.order, k)
	return nil
}

// IterRange returns this ChangeSet's own writes (not its ancestors') whose
// key sorts below upperBound, in insertion order, per the spec's ordering
// guarantee.
func (m *Manager) IterRange(snapshot SnapshotId, upperBound []byte) ([]Write, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.nodes[snapshot]
	if !ok {
		return nil, ErrUnknownSnapshot
	}
	out := make([]Write, 0, len(cs.order))
	for _, k := range cs.order {
		w := cs.writes[k]
		if upperBound != nil && bytes.Compare(w.Key, upperBound) >= 0 {
			continue
		}
		out = append(out, *w)
	}
	return out, nil
}

// Finalize merges id's own writes into Base, then rebases every direct
// child of id so its parent pointer names the base sentinel instead of id.
// id must be parented directly at the base -- finalizing a deeper snapshot
// before its ancestors is rejected, since Commit only ever applies one
// ChangeSet's writes and has no way to apply the skipped ancestors'. Any
// other child of id's former parent is marked superseded: exactly one
// child of a given snapshot may ever be finalized.
func (m *Manager) Finalize(id SnapshotId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.nodes[id]
	if !ok {
		return ErrUnknownSnapshot
	}
	if cs.finalized {
		return ErrFinalized
	}
	if cs.superseded {
		return ErrSuperseded
	}
	if cs.parent != baseSnapshotID {
		return ErrNotRootSnapshot
	}

	writes := make([]Write, 0, len(cs.order))
	for _, k := range cs.order {
		writes = append(writes, *cs.writes[k])
	}
	if err := m.commit(writes); err != nil {
		return err
	}
	cs.finalized = true

	rootChildrenBefore := append([]SnapshotId(nil), m.children[baseSnapshotID]...)

	kids := m.children[id]
	for _, c := range kids {
		m.nodes[c].parent = baseSnapshotID
		m.children[baseSnapshotID] = append(m.children[baseSnapshotID], c)
	}
	delete(m.children, id)

	remaining := m.children[baseSnapshotID][:0]
	for _, s := range rootChildrenBefore {
		if s == id {
			continue
		}
		m.nodes[s].superseded = true
	}
	for _, s := range m.children[baseSnapshotID] {
		if s == id {
			continue
		}
		remaining = append(remaining, s)
	}
	m.children[baseSnapshotID] = remaining

	return nil
}

// Prune permanently drops a superseded (abandoned-fork) snapshot and every
// descendant of it from the arena. The caller is responsible for ensuring
// nothing still holds a reference to any of the pruned ids.
func (m *Manager) Prune(id SnapshotId) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.nodes[id]
	if !ok {
		return ErrUnknownSnapshot
	}
	if !cs.superseded && !cs.finalized {
		return errors.New("snapshot: refusing to prune a live, non-superseded snapshot")
	}

	var walk func(SnapshotId)
	walk = func(cur SnapshotId) {
		for _, c := range m.children[cur] {
			walk(c)
		}
		delete(m.children, cur)
		delete(m.nodes, cur)
	}
	walk(id)

	parent := cs.parent
	siblings := m.children[parent][:0]
	for _, s := range m.children[parent] {
		if s != id {
			siblings = append(siblings, s)
		}
	}
	m.children[parent] = siblings
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
