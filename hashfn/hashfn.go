// Package hashfn selects the hash function used to derive JMT key hashes and
// leaf/internal digests. The core deliberately does not fix a single hash
// function (spec Non-goals); callers pick one by name at config time and
// every layer above L0 consumes the resulting Hasher rather than calling a
// concrete hash package directly.
package hashfn

import (
	"crypto/sha256"
	"fmt"

	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/crypto"
)

// Hasher computes a 32-byte digest of its inputs. Implementations must be
// side-effect free and safe for concurrent use.
type Hasher interface {
	// Name identifies the algorithm, e.g. for inclusion in config dumps.
	Name() string
	// Sum hashes the concatenation of data and returns the digest.
	Sum(data ...[]byte) types.Hash
}

// Keccak256Hasher hashes with Keccak-256, the default used by the teacher's
// account/storage tries and kept here as the rollup's default too.
type Keccak256Hasher struct{}

func (Keccak256Hasher) Name() string { return "keccak256" }

func (Keccak256Hasher) Sum(data ...[]byte) types.Hash {
	return crypto.Keccak256Hash(data...)
}

// SHA256Hasher hashes with the standard library's SHA-256. Offered as an
// alternative for deployments that want a NIST-standard digest at the JMT
// layer (e.g. to match a zkVM with cheaper SHA-256 circuits than Keccak).
type SHA256Hasher struct{}

func (SHA256Hasher) Name() string { return "sha256" }

func (SHA256Hasher) Sum(data ...[]byte) types.Hash {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// ByName returns the Hasher registered under name. Recognized names are
// "keccak256" (default) and "sha256".
func ByName(name string) (Hasher, error) {
	switch name {
	case "", "keccak256":
		return Keccak256Hasher{}, nil
	case "sha256":
		return SHA256Hasher{}, nil
	default:
		return nil, fmt.Errorf("hashfn: unknown hash algorithm %q", name)
	}
}

// MustByName is ByName but panics on an unknown name; intended for use at
// config-validation time, never on a hot path.
func MustByName(name string) Hasher {
	h, err := ByName(name)
	if err != nil {
		panic(err)
	}
	return h
}
