package jmt

import (
	"encoding/binary"
	"fmt"

	"github.com/rollkernel/rollkernel/core/types"
)

const (
	tagLeaf     byte = 'L'
	tagInternal byte = 'I'
)

// encodeLeaf serializes a leafNode to its on-disk form.
func encodeLeaf(l *leafNode) []byte {
	buf := make([]byte, 1+32+32+8+1)
	buf[0] = tagLeaf
	copy(buf[1:33], l.KeyHash[:])
	copy(buf[33:65], l.ValueHash[:])
	binary.BigEndian.PutUint64(buf[65:73], l.Version)
	if l.Tombstone {
		buf[73] = 1
	}
	return buf
}

func decodeLeaf(data []byte) (*leafNode, error) {
	if len(data) != 74 || data[0] != tagLeaf {
		return nil, fmt.Errorf("jmt: malformed leaf node encoding")
	}
	l := &leafNode{
		Version:   binary.BigEndian.Uint64(data[65:73]),
		Tombstone: data[73] == 1,
	}
	copy(l.KeyHash[:], data[1:33])
	copy(l.ValueHash[:], data[33:65])
	return l, nil
}

// childSlotSize is the encoded size of one present childRef slot.
const childSlotSize = 1 + 32 + 1 + 8

// encodeInternal serializes an internalNode to its on-disk form.
func encodeInternal(n *internalNode) []byte {
	buf := make([]byte, 0, 9+16*childSlotSize)
	head := make([]byte, 9)
	head[0] = tagInternal
	binary.BigEndian.PutUint64(head[1:9], n.Version)
	buf = append(buf, head...)

	for _, c := range n.Children {
		if c == nil {
			buf = append(buf, 0)
			continue
		}
		slot := make([]byte, childSlotSize)
		slot[0] = 1
		copy(slot[1:33], c.Hash[:])
		if c.Leaf {
			slot[33] = 1
		}
		binary.BigEndian.PutUint64(slot[34:42], c.Version)
		buf = append(buf, slot...)
	}
	return buf
}

func decodeInternal(data []byte) (*internalNode, error) {
	if len(data) < 9 || data[0] != tagInternal {
		return nil, fmt.Errorf("jmt: malformed internal node encoding")
	}
	n := &internalNode{Version: binary.BigEndian.Uint64(data[1:9])}
	pos := 9
	for i := 0; i < 16; i++ {
		if pos >= len(data) {
			return nil, fmt.Errorf("jmt: truncated internal node encoding")
		}
		present := data[pos]
		pos++
		if present == 0 {
			continue
		}
		if pos+childSlotSize-1 > len(data) {
			return nil, fmt.Errorf("jmt: truncated internal node child slot")
		}
		var c childRef
		copy(c.Hash[:], data[pos:pos+32])
		c.Leaf = data[pos+32] == 1
		c.Version = binary.BigEndian.Uint64(data[pos+33 : pos+41])
		n.Children[i] = &c
		pos += childSlotSize - 1
	}
	return n, nil
}

// keyHashNibbles expands a 32-byte KeyHash into 64 nibbles, most significant
// nibble of the first byte first, matching the teacher's keybytesToHex
// convention for hex-radix tries.
func keyHashNibbles(kh types.Hash) []byte {
	nibbles := make([]byte, 64)
	for i, b := range kh {
		nibbles[2*i] = b >> 4
		nibbles[2*i+1] = b & 0x0f
	}
	return nibbles
}

// pathKeyString gives a map key for a nibble-path prefix, used to dedupe
// in-batch node mutations.
func pathKeyString(path []byte) string {
	return string(path)
}
