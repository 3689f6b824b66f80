// Package container implements the L4 state containers -- Singleton, Map,
// and Vector -- each a codec-parameterized generic type that holds no
// storage of its own and instead takes a *workingset.WorkingSet on every
// call.
//
// Prefix construction is grounded on the Rust sov-modules-api Prefix type
// (original_source/module-system/sov-modules-api/src/prefix.rs): a
// module-path/module-name/field-name tuple joined with the single-byte
// domain separator '/' and hashed down to the 32-byte KeyHash the JMT
// indexes by.
package container

import (
	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/hashfn"
)

const domainSeparator = '/'

// Prefix is a unique namespace for one container's keys. Two containers
// with distinct (modulePath, moduleName, fieldName) triples never produce
// overlapping keys, since the separator byte can't appear inside any of
// the three components without being escaped by the caller (the core does
// not validate this -- it is a build-time naming discipline, same as the
// Rust original).
type Prefix struct {
	modulePath string
	moduleName string
	fieldName  string
	hasField   bool
}

// NewModulePrefix names a module itself (no field), used to derive the
// module's address.
func NewModulePrefix(modulePath, moduleName string) Prefix {
	return Prefix{modulePath: modulePath, moduleName: moduleName}
}

// NewFieldPrefix names one state variable within a module.
func NewFieldPrefix(modulePath, moduleName, fieldName string) Prefix {
	return Prefix{modulePath: modulePath, moduleName: moduleName, fieldName: fieldName, hasField: true}
}

// Bytes renders the prefix as "<module-path>/<module-name>/[<field-name>/]".
func (p Prefix) Bytes() []byte {
	n := len(p.modulePath) + 1 + len(p.moduleName) + 1
	if p.hasField {
		n += len(p.fieldName) + 1
	}
	out := make([]byte, 0, n)
	out = append(out, p.modulePath...)
	out = append(out, domainSeparator)
	out = append(out, p.moduleName...)
	out = append(out, domainSeparator)
	if p.hasField {
		out = append(out, p.fieldName...)
		out = append(out, domainSeparator)
	}
	return out
}

// Hash digests the prefix with h, giving the container's fixed key-space
// root (for a Singleton, this is the key itself; for a Map/Vector it is
// combined with an encoded logical key or index).
func (p Prefix) Hash(h hashfn.Hasher) types.Hash {
	return h.Sum(p.Bytes())
}
