package jmt

import (
	"errors"

	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/storage"
)

// ErrKeyNotFound is returned by Get when no live value exists for a key at
// or before the queried version.
var ErrKeyNotFound = errors.New("jmt: key not found")

// NodeWrite is one (path, version, encoded node) entry produced by
// BatchPutValueSet, ready to hand to storage.Batch.PutNode.
type NodeWrite struct {
	Path    []byte
	Version uint64
	Encoded []byte
}

// Tree is a versioned Jellyfish Merkle Tree rooted at whatever version the
// caller last committed. It does not hold any mutable state of its own
// between calls -- every method reads prior nodes from store and, for
// writes, returns the new nodes for the caller to persist atomically
// alongside the rest of the slot's changes.
type Tree struct {
	store  *storage.Store
	hasher Hasher
}

// New creates a Tree backed by store, hashing with hasher.
func New(store *storage.Store, hasher Hasher) *Tree {
	return &Tree{store: store, hasher: hasher}
}

// Root returns the root hash of the tree as of version, by loading and
// re-hashing the root's recorded child set. The caller must know the exact
// version at which the root was last written (i.e. the most recent version
// at which BatchPutValueSet was called with at least one write); an empty
// tree's root is the all-zero hash.
func (t *Tree) Root(version uint64) (types.Hash, error) {
	root, err := t.loadInternal(nil, version)
	if err != nil {
		return types.Hash{}, err
	}
	if root == nil {
		return emptyHash, nil
	}
	return hashChildren(t.hasher, root.Children), nil
}

// loadInternal fetches the internalNode at path as written at exactly
// version. A nil, nil result means the subtree is empty: never written, or
// version is the placeholder used for a brand-new tree with no prior root.
func (t *Tree) loadInternal(path []byte, version uint64) (*internalNode, error) {
	raw, ok, err := t.store.GetNode(path, version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return decodeInternal(raw)
}

func (t *Tree) loadLeaf(path []byte, version uint64) (*leafNode, error) {
	raw, ok, err := t.store.GetNode(path, version)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return decodeLeaf(raw)
}

// Get returns the value hash stored for keyHash as of version, walking the
// tree from the root down to leaf depth. It does not resolve the preimage
// or the actual value bytes -- those live in L0's flat value table and are
// read directly from there by callers that already have the KeyHash.
func (t *Tree) Get(keyHash types.Hash, version uint64) (types.Hash, error) {
	nibbles := keyHashNibbles(keyHash)
	cur, err := t.loadInternal(nil, version)
	if err != nil {
		return types.Hash{}, err
	}
	curVersion := version
	for depth := 0; depth < 64; depth++ {
		if cur == nil {
			return types.Hash{}, ErrKeyNotFound
		}
		child := cur.Children[nibbles[depth]]
		if child == nil {
			return types.Hash{}, ErrKeyNotFound
		}
		curVersion = child.Version
		if child.Leaf {
			leaf, err := t.loadLeaf(nibbles[:depth+1], curVersion)
			if err != nil {
				return types.Hash{}, err
			}
			if leaf == nil || leaf.Tombstone || leaf.KeyHash != keyHash {
				return types.Hash{}, ErrKeyNotFound
			}
			return leaf.ValueHash, nil
		}
		cur, err = t.loadInternal(nibbles[:depth+1], curVersion)
		if err != nil {
			return types.Hash{}, err
		}
	}
	return types.Hash{}, ErrKeyNotFound
}

// Write is one pending (key, valueHash) update; a nil ValueHash (use
// Tombstone=true) models a delete.
type Write struct {
	KeyHash   types.Hash
	ValueHash types.Hash
	Tombstone bool
}

// batchState carries the in-progress node cache shared across every key in
// one BatchPutValueSet call, so later keys see earlier keys' edits to
// shared ancestors without re-reading them from store.
type batchState struct {
	tree     *Tree
	version  uint64
	internal map[string]*internalNode
	leaves   map[string]*leafNode
}

// BatchPutValueSet applies writes against the tree rooted at baseVersion,
// producing the new root hash and the full set of nodes to persist at
// version. baseVersion must be the version the caller last successfully
// committed a root at (0 for a brand-new, empty tree).
func (t *Tree) BatchPutValueSet(baseVersion uint64, writes []Write, version uint64) (types.Hash, []NodeWrite, error) {
	b := &batchState{
		tree:     t,
		version:  version,
		internal: make(map[string]*internalNode),
		leaves:   make(map[string]*leafNode),
	}

	for _, w := range writes {
		nibbles := keyHashNibbles(w.KeyHash)
		if err := b.put(nibbles, 0, baseVersion, w); err != nil {
			return types.Hash{}, nil, err
		}
	}

	root := b.internal[pathKeyString(nil)]
	if root == nil {
		// No writes at all, or every write landed under a path never
		// touched (impossible, since depth 0 is always on every path) --
		// re-load the prior root unchanged.
		prior, err := t.loadInternal(nil, baseVersion)
		if err != nil {
			return types.Hash{}, nil, err
		}
		if prior == nil {
			return emptyHash, nil, nil
		}
		return hashChildren(t.hasher, prior.Children), nil, nil
	}

	rootHash := hashChildren(t.hasher, root.Children)

	writesOut := make([]NodeWrite, 0, len(b.internal)+len(b.leaves))
	for path, n := range b.internal {
		writesOut = append(writesOut, NodeWrite{Path: []byte(path), Version: version, Encoded: encodeInternal(n)})
	}
	for path, l := range b.leaves {
		writesOut = append(writesOut, NodeWrite{Path: []byte(path), Version: version, Encoded: encodeLeaf(l)})
	}
	return rootHash, writesOut, nil
}

// put recursively walks nibbles[depth:] from the node at path (nibbles[:depth]),
// materializing every internal node on the path in b.internal and the final
// leaf in b.leaves, bottom-up via the recursion's return values.
func (b *batchState) put(nibbles []byte, depth int, baseVersion uint64, w Write) error {
	path := nibbles[:depth]
	key := pathKeyString(path)

	node, ok := b.internal[key]
	if !ok {
		loaded, err := b.tree.loadInternal(path, baseVersion)
		if err != nil {
			return err
		}
		if loaded == nil {
			loaded = &internalNode{}
		}
		node = loaded
	}

	nib := nibbles[depth]
	child := node.Children[nib]

	if depth == 63 {
		leafPath := nibbles[:64]
		leaf := &leafNode{
			KeyHash:   w.KeyHash,
			ValueHash: w.ValueHash,
			Version:   b.version,
			Tombstone: w.Tombstone,
		}
		b.leaves[pathKeyString(leafPath)] = leaf
		node.Children[nib] = &childRef{
			Hash:    hashLeaf(b.tree.hasher, leaf),
			Leaf:    true,
			Version: b.version,
		}
		node.Version = b.version
		b.internal[key] = node
		return nil
	}

	childBaseVersion := baseVersion
	if child != nil {
		childBaseVersion = child.Version
	}
	if err := b.put(nibbles, depth+1, childBaseVersion, w); err != nil {
		return err
	}

	childPath := nibbles[:depth+1]
	childNode := b.internal[pathKeyString(childPath)]
	node.Children[nib] = &childRef{
		Hash:    hashChildren(b.tree.hasher, childNode.Children),
		Leaf:    false,
		Version: b.version,
	}
	node.Version = b.version
	b.internal[key] = node
	return nil
}
