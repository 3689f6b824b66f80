// Package module implements the L7 module ABI: the contract every
// state-transition module (bank, sequencer registry, and future additions)
// is built against, and the typed registry the STF pipeline dispatches
// decoded call messages through.
//
// The shape is adapted from the Rust reference's sov-modules-api crate
// (dispatch.rs's DispatchCall, hooks.rs's ApplyBatchHooks, capabilities.rs's
// blob-scoped hooks, prefix.rs's address derivation) generalized from a
// macro-generated per-runtime dispatcher to a single explicit Registry, and
// from the teacher's pkg/node/service_registry.go mutex-guarded
// name-to-descriptor map, generalized from service lifecycle to per-address
// module lookup.
package module

import (
	"github.com/cockroachdb/errors"

	"github.com/rollkernel/rollkernel/container"
	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/hashfn"
	"github.com/rollkernel/rollkernel/workingset"
)

// Context carries the per-call ambient data a module's call handler needs
// beyond the raw message bytes: who sent it and which slot it runs in.
type Context struct {
	Sender types.Address
	Slot   uint64
}

// CallResponse is the opaque result of a successful call. Modules populate
// Events and leave Data empty unless they have a return value to surface
// to the caller (e.g. a view query issued through the same dispatch path).
type CallResponse struct {
	Events []Event
	Data   []byte
}

// Event is a module-emitted, indexer-facing record of something that
// happened during a call. Key/Value are opaque to the dispatcher.
type Event struct {
	Module string
	Key    string
	Value  []byte
}

// Module is the contract every state-transition module implements.
type Module interface {
	// Name is the module's unique identifier, used to derive its Address
	// and namespace its container prefixes.
	Name() string

	// Address is the module's unique on-chain identity, derived once at
	// construction from Name via DeriveAddress.
	Address() types.Address

	// Genesis seeds the module's initial state from its config. Called
	// once, before the first slot, in registry registration order.
	Genesis(ws *workingset.WorkingSet, config []byte) error

	// Call decodes msg and dispatches it to the module's call handler.
	Call(ws *workingset.WorkingSet, ctx Context, msg []byte) (CallResponse, error)
}

// TxHooks lets a module observe every transaction's dispatch, independent
// of which module the transaction actually calls. The sequencer registry
// module uses this to debit gas before dispatch; nonce checks and nonce
// increments are done by the STF pipeline itself.
type TxHooks interface {
	// PreDispatch runs before a transaction is handed to its target
	// module's Call. Returning an error drops the transaction (spec
	// §4.6's per-tx fatal path): no nonce increment, no module call.
	PreDispatch(ws *workingset.WorkingSet, tx *types.Transaction) error

	// PostDispatch runs after Call, regardless of whether Call succeeded.
	// callErr is the error Call returned, if any; PostDispatch cannot
	// itself cause the transaction to be dropped.
	PostDispatch(ws *workingset.WorkingSet, tx *types.Transaction, callErr error)
}

// BlobHooks lets a module observe the start and end of an entire blob's
// worth of batches, e.g. to check a sequencer's bond before the blob and
// pay it the blob's collected fees after.
type BlobHooks interface {
	// BeginBlob runs once before any batch in the blob is applied.
	// Returning an error fails the whole blob (spec §4.6's per-blob
	// fatal path: e.g. an unbonded or unknown sequencer address).
	BeginBlob(ws *workingset.WorkingSet, sequencerAddr types.Address) error

	// EndBlob runs once after every batch in the blob has been applied,
	// receiving the total fees collected across the blob.
	EndBlob(ws *workingset.WorkingSet, sequencerAddr types.Address, feesCollected uint64) error
}

// DeriveAddress derives a module's unique on-chain address from its name,
// the same way container.Prefix derives a KeyHash: hash the domain-
// separated path, and take it as the address's bytes. Mirrors the Rust
// reference's use of a Prefix hash as a module's unique identity.
func DeriveAddress(name string, hasher hashfn.Hasher) types.Address {
	p := container.NewModulePrefix("module", name)
	h := p.Hash(hasher)
	var addr types.Address
	copy(addr[:], h[:])
	return addr
}

// ErrNotFound describes a lookup of an address at which no module is
// registered. Registry.Handle does not return it; Handle reports a miss
// through its bool result.
var ErrNotFound = errors.New("module: no module registered at this address")
