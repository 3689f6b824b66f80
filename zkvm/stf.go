package zkvm

import (
	"errors"

	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/crypto"
	"github.com/rollkernel/rollkernel/stf"
	"github.com/rollkernel/rollkernel/workingset"
)

// Default STF tuning knobs. These bound the data a single proof is allowed
// to carry and the cost model used to estimate zkVM cycles without
// actually running a prover.
const (
	DefaultMaxWitnessSize  uint64 = 4 << 20 // 4 MiB of witness hints per slot
	DefaultMaxProofSize    uint64 = 1 << 20 // 1 MiB of proof data
	DefaultTargetCycles    uint64 = 1 << 24
	DefaultSTFProofSystem         = "plonk"

	cyclesOverhead       uint64 = 10_000
	cyclesPerTransaction uint64 = 2_000
	cyclesPerWitnessKB   uint64 = 50
)

var (
	ErrSTFNilExecutor      = errors.New("zkvm: nil stf pipeline or committer")
	ErrSTFPostRootMismatch = errors.New("zkvm: post-state root mismatch")
	ErrSTFWitnessTooLarge  = errors.New("zkvm: witness exceeds configured maximum")
)

// STFConfig bounds the resources a single state-transition proof may consume.
type STFConfig struct {
	MaxWitnessSize uint64
	MaxProofSize   uint64
	TargetCycles   uint64
	ProofSystem    string
}

// DefaultSTFConfig returns the STF's default resource bounds.
func DefaultSTFConfig() STFConfig {
	return STFConfig{
		MaxWitnessSize: DefaultMaxWitnessSize,
		MaxProofSize:   DefaultMaxProofSize,
		TargetCycles:   DefaultTargetCycles,
		ProofSystem:    DefaultSTFProofSystem,
	}
}

// STFInput is the public input to a single slot's state transition: the
// root it starts at and claims to end at, and the DA blobs being applied.
// Witness, when set, is the witness ValidateTransition attaches to its
// working set (a recording witness has that run's hints appended to it);
// reads still go through the executor's Base, so a zk replay of a recorded
// trace uses an executor built over workingset.NewWitnessBase.
type STFInput struct {
	PreStateRoot  types.Hash
	PostStateRoot types.Hash
	Blobs         []stf.Blob
	Witness       *workingset.Witness
}

// STFOutput is the result of validating (or replaying) a state transition.
type STFOutput struct {
	Valid      bool
	PostRoot   types.Hash
	GasUsed    uint64
	ProofData  []byte
	CycleCount uint64
	Receipts   []stf.BatchReceipt
}

// STFExecutor drives a real stf.Pipeline against a fixed Base/Committer
// pair and validates the resulting root against what the input claims.
// Native mode constructs one over a StorageBase/NativeCommitter pair; zk
// mode over a witness-replay Base (workingset.NewWitnessBase) and a
// WitnessCommitter -- the same Pipeline code runs either way (spec.md
// §4.7's unified native/zk code path), only this executor's two injected
// dependencies change.
type STFExecutor struct {
	cfg       STFConfig
	pipeline  *stf.Pipeline
	base      workingset.Base
	committer stf.Committer
}

// NewSTFExecutor creates an executor that runs pipeline against base,
// committing through committer.
func NewSTFExecutor(cfg STFConfig, pipeline *stf.Pipeline, base workingset.Base, committer stf.Committer) (*STFExecutor, error) {
	if pipeline == nil || base == nil || committer == nil {
		return nil, ErrSTFNilExecutor
	}
	return &STFExecutor{cfg: cfg, pipeline: pipeline, base: base, committer: committer}, nil
}

// ValidateTransition runs input's blobs through the pipeline from scratch
// and checks that the resulting root matches input.PostStateRoot. A
// non-nil *STFOutput is always returned, even on error: it is empty when
// the pipeline fails or the witness exceeds MaxWitnessSize, and holds the
// computed root, gas and receipts on a root mismatch.
func (e *STFExecutor) ValidateTransition(input STFInput) (*STFOutput, error) {
	witness := input.Witness
	if witness == nil {
		witness = workingset.NewWitness()
	}
	ws := workingset.New(e.base, witness, nil)

	result, err := e.pipeline.ApplySlot(ws, input.Blobs, e.committer)
	if err != nil {
		return &STFOutput{}, err
	}

	witnessBytes := 0
	for _, h := range result.Witness.Hints() {
		witnessBytes += len(h.Data)
	}
	if uint64(witnessBytes) > e.cfg.MaxWitnessSize {
		return &STFOutput{}, ErrSTFWitnessTooLarge
	}

	output := &STFOutput{
		PostRoot:   result.StateRoot,
		GasUsed:    gasUsedOf(result.BatchReceipts),
		CycleCount: cyclesOf(result.BatchReceipts, witnessBytes),
		Receipts:   result.BatchReceipts,
	}
	proof := crypto.Keccak256Hash(output.PostRoot[:], input.PreStateRoot[:])
	output.ProofData = proof[:]

	if output.PostRoot != input.PostStateRoot {
		output.Valid = false
		return output, ErrSTFPostRootMismatch
	}
	output.Valid = true
	return output, nil
}

// GenerateWitness runs blobs against the pipeline once to produce the
// STFInput a later ValidateTransition call (in this executor or a zk
// replay of it) would validate: the actual resulting root and the
// witness trace recorded along the way.
func (e *STFExecutor) GenerateWitness(preState types.Hash, blobs []stf.Blob) (*STFInput, error) {
	witness := workingset.NewWitness()
	ws := workingset.New(e.base, witness, nil)

	result, err := e.pipeline.ApplySlot(ws, blobs, e.committer)
	if err != nil {
		return nil, err
	}

	return &STFInput{
		PreStateRoot:  preState,
		PostStateRoot: result.StateRoot,
		Blobs:         blobs,
		Witness:       result.Witness,
	}, nil
}

// VerifyProof performs a structural check of a previously computed output:
// it is flagged valid and its proof is 32 bytes long. The digest itself is
// not recomputed.
func (e *STFExecutor) VerifyProof(output STFOutput) bool {
	return output.Valid && len(output.ProofData) == 32
}

// ValidateSTFInput performs cheap structural validation of an STFInput
// before it is handed to ValidateTransition.
func ValidateSTFInput(input *STFInput) error {
	if input == nil {
		return errors.New("zkvm: nil stf input")
	}
	if input.PreStateRoot == (types.Hash{}) && input.PostStateRoot == (types.Hash{}) && len(input.Blobs) == 0 {
		return errors.New("zkvm: empty stf input")
	}
	return nil
}

func gasUsedOf(receipts []stf.BatchReceipt) uint64 {
	var total uint64
	for _, br := range receipts {
		if br.Inner.Kind == stf.Rewarded {
			total += br.Inner.Amount
		}
	}
	return total
}

func cyclesOf(receipts []stf.BatchReceipt, witnessBytes int) uint64 {
	var txCount int
	for _, br := range receipts {
		txCount += len(br.TxReceipts)
	}
	return cyclesOverhead + uint64(txCount)*cyclesPerTransaction + kbCeil(witnessBytes)*cyclesPerWitnessKB
}

// kbCeil returns the number of 1 KiB chunks n bytes rounds up to.
func kbCeil(n int) uint64 {
	if n == 0 {
		return 0
	}
	return uint64((n + 1023) / 1024)
}
