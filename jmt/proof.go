package jmt

import "github.com/rollkernel/rollkernel/core/types"

// LeafClaim is the terminal leaf a Proof walks down to: either the queried
// key's own leaf (inclusion), a different key's leaf occupying the position
// the query would have landed on (exclusion by collision), or absent
// entirely (exclusion by empty subtree -- the spec's "extension" marker for
// a skipped empty subtree).
type LeafClaim struct {
	KeyHash   types.Hash
	ValueHash types.Hash
	Tombstone bool
}

// Proof is a sparse Merkle proof: the ordered list of 4-way sibling sets
// along the nibble path from the queried key's leaf position up to the
// root, one set per nibble level actually walked, plus the terminal leaf
// claim (nil for an exclusion proof that bottoms out at an empty subtree
// before reaching full depth -- the extension marker).
type Proof struct {
	Siblings [][4]types.Hash
	Leaf     *LeafClaim
}

// combine folds two subtree hashes with the internal-node domain separator,
// short-circuiting to emptyHash when both sides are empty so an
// all-absent subtree's hash is always the canonical zero value.
func combine(h Hasher, left, right types.Hash) types.Hash {
	if left == emptyHash && right == emptyHash {
		return emptyHash
	}
	return h.Sum([]byte{domainSepInternal}, left[:], right[:])
}

// siblingsForNibble computes the 4 sibling hashes needed to fold a value at
// position nib in children's 16-wide fan up to this internalNode's own
// hash, in the same pairing order hashChildren uses.
func siblingsForNibble(h Hasher, children [16]*childRef, nib byte) [4]types.Hash {
	level := make([]types.Hash, 16)
	for i, c := range children {
		if c == nil {
			level[i] = emptyHash
		} else {
			level[i] = c.Hash
		}
	}

	var out [4]types.Hash
	idx := int(nib)
	for step := 0; step < 4; step++ {
		out[step] = level[idx^1]
		next := make([]types.Hash, len(level)/2)
		for i := range next {
			next[i] = combine(h, level[2*i], level[2*i+1])
		}
		level = next
		idx >>= 1
	}
	return out
}

// foldSiblings replays siblingsForNibble's pairing in reverse, rebuilding
// the internalNode hash that produced it from a child value and its
// sibling set.
func foldSiblings(h Hasher, nib byte, value types.Hash, sib [4]types.Hash) types.Hash {
	cur := value
	for step := 0; step < 4; step++ {
		pos := (nib >> uint(step)) & 1
		if pos == 0 {
			cur = combine(h, cur, sib[step])
		} else {
			cur = combine(h, sib[step], cur)
		}
	}
	return cur
}

// GetWithProof returns the value hash for keyHash as of version (or ok=false
// if absent) together with a Proof a verifier can check against the root at
// that version without access to the store.
func (t *Tree) GetWithProof(keyHash types.Hash, version uint64) (types.Hash, bool, *Proof, error) {
	nibbles := keyHashNibbles(keyHash)
	proof := &Proof{}

	cur, err := t.loadInternal(nil, version)
	if err != nil {
		return types.Hash{}, false, nil, err
	}

	for depth := 0; depth < 64; depth++ {
		if cur == nil {
			// Empty subtree reached before full depth: extension marker,
			// no leaf claim, no further siblings.
			return types.Hash{}, false, proof, nil
		}
		nib := nibbles[depth]
		proof.Siblings = append(proof.Siblings, siblingsForNibble(t.hasher, cur.Children, nib))

		child := cur.Children[nib]
		if child == nil {
			return types.Hash{}, false, proof, nil
		}
		if child.Leaf {
			leaf, err := t.loadLeaf(nibbles[:depth+1], child.Version)
			if err != nil {
				return types.Hash{}, false, nil, err
			}
			if leaf == nil {
				return types.Hash{}, false, proof, nil
			}
			proof.Leaf = &LeafClaim{KeyHash: leaf.KeyHash, ValueHash: leaf.ValueHash, Tombstone: leaf.Tombstone}
			if leaf.KeyHash != keyHash || leaf.Tombstone {
				return types.Hash{}, false, proof, nil
			}
			return leaf.ValueHash, true, proof, nil
		}

		next, err := t.loadInternal(nibbles[:depth+1], child.Version)
		if err != nil {
			return types.Hash{}, false, nil, err
		}
		cur = next
	}
	return types.Hash{}, false, proof, nil
}

// VerifyProof checks that proof demonstrates, against root, either the
// inclusion of (keyHash, valueHash) when valueHash is non-nil, or the
// absence of keyHash when valueHash is nil.
func VerifyProof(h Hasher, root types.Hash, keyHash types.Hash, valueHash *types.Hash, proof *Proof) bool {
	if proof == nil {
		return false
	}
	nibbles := keyHashNibbles(keyHash)

	var cur types.Hash
	if proof.Leaf != nil {
		ln := &leafNode{KeyHash: proof.Leaf.KeyHash, ValueHash: proof.Leaf.ValueHash, Tombstone: proof.Leaf.Tombstone}
		cur = hashLeaf(h, ln)
	} else {
		cur = emptyHash
	}

	for level := len(proof.Siblings) - 1; level >= 0; level-- {
		cur = foldSiblings(h, nibbles[level], cur, proof.Siblings[level])
	}
	if cur != root {
		return false
	}

	if valueHash == nil {
		if proof.Leaf == nil {
			return true
		}
		if proof.Leaf.KeyHash == keyHash && !proof.Leaf.Tombstone {
			return false
		}
		return true
	}

	if proof.Leaf == nil {
		return false
	}
	if proof.Leaf.KeyHash != keyHash || proof.Leaf.Tombstone {
		return false
	}
	return proof.Leaf.ValueHash == *valueHash
}
