// Package jmt implements the L1 Jellyfish Merkle Tree: a versioned sparse
// Merkle tree of depth 256 (nibble-wise radix 16) keyed by 32-byte KeyHash.
// Node shapes and the insert/delete walk are adapted from the teacher's
// hex-radix-16 Merkle-Patricia trie (trie/node.go, trie/trie.go), generalized
// here with an explicit per-node Version, domain-separated leaf/internal
// hashing, and an extension marker for proofs over skipped empty subtrees.
package jmt

import "github.com/rollkernel/rollkernel/core/types"

// Domain separators distinguish leaf and internal node hashes so that a
// leaf can never be reinterpreted as an internal node (or vice versa) by an
// attacker replaying a different node's bytes.
const (
	domainSepLeaf     byte = 0x00
	domainSepInternal byte = 0x01
)

// emptyHash is the canonical hash of an empty subtree, by convention the
// all-zero 32-byte value.
var emptyHash = types.Hash{}

// node is the interface implemented by both tree node shapes. Unlike the
// teacher's trie (shortNode/fullNode/hashNode/valueNode, four shapes), the
// JMT has exactly two persisted shapes: every node is either a leaf or an
// internal branch with up to 16 children. There is no extension-node
// shape -- the spec's "extension marker" lives in proofs, not in storage,
// because every JMT node occupies an exact nibble depth.
type node interface {
	isNode()
}

// leafNode stores exactly one (KeyHash, ValueHash) pair and the version at
// which it was written. A leaf with ValueHash == empty and Tombstone true
// represents a deleted key retained only until it is pruned.
type leafNode struct {
	KeyHash   types.Hash
	ValueHash types.Hash
	Version   uint64
	Tombstone bool
}

func (*leafNode) isNode() {}

// internalNode stores up to 16 children, addressed by nibble 0-15. A nil
// entry means an empty subtree. Version is the version at which this exact
// node (this particular combination of children) was created; children may
// have been written at earlier versions and are not rewritten on every
// update (only the path from the modified leaf to the root is).
type internalNode struct {
	Children [16]*childRef
	Version  uint64
}

func (*internalNode) isNode() {}

// childRef is what an internalNode stores per nibble: the child's hash and
// whether it is itself a leaf (needed to pick the right domain separator
// when verifying a proof without re-fetching the child).
type childRef struct {
	Hash   types.Hash
	Leaf   bool
	Version uint64
}

// hashLeaf computes H(domainSepLeaf || keyHash || valueHash) for a live
// leaf, or the all-zero hash for a tombstoned one (a tombstone contributes
// nothing to the root, exactly as an absent key would).
func hashLeaf(h Hasher, l *leafNode) types.Hash {
	if l == nil || l.Tombstone {
		return emptyHash
	}
	return h.Sum([]byte{domainSepLeaf}, l.KeyHash[:], l.ValueHash[:])
}

// hashChildren folds 16 children pairwise into a single hash: four levels
// of H(domainSepInternal || left || right), matching the Jellyfish Merkle
// Tree's definition of an internal node's hash as a perfect binary tree
// over its 16 slots. An internalNode with every child empty hashes to
// emptyHash.
func hashChildren(h Hasher, children [16]*childRef) types.Hash {
	level := make([]types.Hash, 16)
	for i, c := range children {
		if c == nil {
			level[i] = emptyHash
		} else {
			level[i] = c.Hash
		}
	}
	for len(level) > 1 {
		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(next); i++ {
			left, right := level[2*i], level[2*i+1]
			if left == emptyHash && right == emptyHash {
				next[i] = emptyHash
				continue
			}
			next[i] = h.Sum([]byte{domainSepInternal}, left[:], right[:])
		}
		level = next
	}
	return level[0]
}

// Hasher is the digest function the tree hashes leaves and internal nodes
// with; supplied by the embedder (see package hashfn) rather than fixed by
// this package, per the core's Non-goal of not prescribing one hash
// function.
type Hasher interface {
	Sum(data ...[]byte) types.Hash
}
