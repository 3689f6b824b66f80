// Package stf implements the L5 state-transition pipeline: the slot ->
// blob -> batch -> transaction state machine of spec.md §4.6, wired
// against the L3 working set, the L4 containers it uses for per-account
// nonces, and the L7 module registry.
//
// Grounded on the teacher's zkvm/stf_executor.go (test-only STFExecutor
// surface: ValidateTransition/GenerateWitness/VerifyProof) for the outer
// shape, and on the teacher's rollup package for the concepts a real
// pipeline needs: rollup/sequencer.go's batch-sealing and bonding
// (generalized into module.SequencerRegistry's admission/slashing, since
// bonding is application state, not pipeline state), and
// rollup/anchor.go/anchor_state.go (grounding for the cross-slot root
// composition spec.md §6.3 and §4.7 describe).
package stf

import (
	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/workingset"
)

// Blob is one sequencer's submission for the current slot: an opaque byte
// payload plus the DA address that submitted it.
type Blob struct {
	SequencerAddr types.Address
	Data          []byte
}

// wireBatch is the JSON encoding of a sequencer's batch: an ordered list
// of transactions, decoded whole or not at all (a single malformed
// transaction fails the entire blob, per spec.md §4.6's parse phase).
type wireBatch struct {
	Transactions []wireTransaction `json:"transactions"`
}

type wireTransaction struct {
	RuntimeMsg []byte `json:"runtime_msg"`
	PubKey     []byte `json:"pub_key"`
	Signature  []byte `json:"signature"`
	Nonce      uint64 `json:"nonce"`
	ChainID    uint64 `json:"chain_id"`
	GasTip     uint64 `json:"gas_tip"`
	GasLimit   uint64 `json:"gas_limit"`
}

// RuntimeMessage is the decoded form of a Transaction's RuntimeMsg: which
// module the call targets, and the opaque payload that module's Call
// method decodes.
type RuntimeMessage struct {
	Module  types.Address `json:"module"`
	Payload []byte        `json:"payload"`
}

// TxRevertReason names why a transaction's effect is Reverted rather than
// Applied.
type TxRevertReason string

const (
	ReasonBadSignature    TxRevertReason = "bad_signature"
	ReasonBadNonce        TxRevertReason = "bad_nonce"
	ReasonInsufficientGas TxRevertReason = "insufficient_gas"
	ReasonBadMessage      TxRevertReason = "bad_message"
	ReasonUnknownModule   TxRevertReason = "unknown_module"
	ReasonCallFailed      TxRevertReason = "call_failed"
)

// TxEffect is the outcome of applying a single transaction.
type TxEffect struct {
	Applied bool
	Reason  TxRevertReason // meaningful only when !Applied
	Err     string         // the underlying error, when !Applied
}

// TxReceipt records one transaction's hash and effect.
type TxReceipt struct {
	TxHash types.Hash
	Effect TxEffect
}

// SequencerOutcome is what happened to the blob's submitting sequencer.
type SequencerOutcome struct {
	Kind            SequencerOutcomeKind
	Amount          uint64 // meaningful when Kind == Rewarded
	Reason          string // meaningful when Kind == Slashed
	SequencerDAAddr types.Address
}

type SequencerOutcomeKind int

const (
	Rewarded SequencerOutcomeKind = iota
	Ignored
	Slashed
)

// BatchReceipt is the result of applying one blob's batch.
type BatchReceipt struct {
	BatchHash  types.Hash
	TxReceipts []TxReceipt
	Inner      SequencerOutcome
}

// SlotResult is the STF pipeline's complete output for one DA slot.
type SlotResult struct {
	StateRoot     types.Hash
	ChangeSet     workingset.OrderedReadsAndWrites
	BatchReceipts []BatchReceipt
	Witness       *workingset.Witness
}
