package stf

import (
	"github.com/cockroachdb/errors"

	"github.com/rollkernel/rollkernel/core/types"
)

// AnchorRingBufferSize bounds how many past slot roots an AnchorChain keeps
// addressable by height, the same ring-buffer sizing the teacher's EIP-4788
// style anchor predeploy used for L1 block history.
const AnchorRingBufferSize = 8191

var (
	ErrAnchorStaleHeight = errors.New("stf: anchor height not increasing")
	ErrAnchorNotFound    = errors.New("stf: anchor height not in window")
)

// AnchorEntry records one slot's committed root.
type AnchorEntry struct {
	Height    uint64
	Root      types.Hash
	Timestamp uint64
}

// AnchorChain composes the roots of successive slots into an addressable
// window (spec.md §6.3's "composition of successive slots"): a verifier
// checking a proof against slot N+k can look up slot N's root without
// replaying every slot in between, as long as N is still within the
// window. Older entries are silently overwritten once the window fills,
// the same trade-off the teacher's anchor ring buffer makes.
type AnchorChain struct {
	latest  AnchorEntry
	history [AnchorRingBufferSize]AnchorEntry
}

// NewAnchorChain creates an empty chain.
func NewAnchorChain() *AnchorChain {
	return &AnchorChain{}
}

// Append records a slot's root, height, and timestamp. Height must
// strictly increase, except for the first entry (height 0 is indistinguishable
// from "no entry" otherwise).
func (c *AnchorChain) Append(height uint64, root types.Hash, timestamp uint64) error {
	if height <= c.latest.Height && c.latest.Height > 0 {
		return ErrAnchorStaleHeight
	}
	entry := AnchorEntry{Height: height, Root: root, Timestamp: timestamp}
	c.history[height%AnchorRingBufferSize] = entry
	c.latest = entry
	return nil
}

// At returns the root recorded at height, if it's still within the window.
func (c *AnchorChain) At(height uint64) (AnchorEntry, bool) {
	if height == 0 || height > c.latest.Height {
		return AnchorEntry{}, false
	}
	if c.latest.Height-height >= AnchorRingBufferSize {
		return AnchorEntry{}, false
	}
	entry := c.history[height%AnchorRingBufferSize]
	if entry.Height != height {
		return AnchorEntry{}, false
	}
	return entry, true
}

// Latest returns the most recently appended entry.
func (c *AnchorChain) Latest() AnchorEntry {
	return c.latest
}
