package zkvm

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/crypto"
	"github.com/rollkernel/rollkernel/stf"
)

// EncodeIType assembles a RISC-V I-type instruction word. Guest programs
// registered with a RealSTFExecutor are raw instruction streams built this
// way; the executor never decodes them (that is the zkVM runtime's job) but
// tests and tooling use this helper to construct well-formed fixtures.
func EncodeIType(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	u := uint32(imm) & 0xfff
	return (u << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

// GuestRegistry maps a program's content hash to its registered code, so
// an already-registered STF program can be looked up (or re-registered
// idempotently) by hash alone.
type GuestRegistry struct {
	mu       sync.RWMutex
	programs map[types.Hash][]byte
}

// NewGuestRegistry creates an empty registry.
func NewGuestRegistry() *GuestRegistry {
	return &GuestRegistry{programs: make(map[types.Hash][]byte)}
}

// Register stores program code under its content hash, returning the hash.
// Re-registering identical code is a no-op.
func (r *GuestRegistry) Register(code []byte) types.Hash {
	id := crypto.Keccak256Hash(code)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.programs[id]; !ok {
		stored := make([]byte, len(code))
		copy(stored, code)
		r.programs[id] = stored
	}
	return id
}

// Lookup returns the code registered under id, if any.
func (r *GuestRegistry) Lookup(id types.Hash) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.programs[id]
	return code, ok
}

// Len reports how many distinct programs are registered.
func (r *GuestRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.programs)
}

var (
	ErrRealSTFNilRegistry  = errors.New("zkvm: nil guest registry")
	ErrRealSTFNilExecutor  = errors.New("zkvm: nil stf executor")
	ErrRealSTFRootMismatch = errors.New("zkvm: stf post-state root mismatch")
	ErrRealSTFNilInput     = errors.New("zkvm: nil stf input")
	ErrRealSTFNoSTFProgram = errors.New("zkvm: no stf program registered")
)

// RealSTFConfig configures a RealSTFExecutor.
type RealSTFConfig struct {
	GasLimit       uint64
	MaxWitnessSize uint64
	ProofSystem    string
}

// DefaultRealSTFConfig returns sensible defaults for a RealSTFExecutor.
func DefaultRealSTFConfig() RealSTFConfig {
	return RealSTFConfig{
		GasLimit:       30_000_000,
		MaxWitnessSize: DefaultMaxWitnessSize,
		ProofSystem:    "ziren",
	}
}

// RealSTFExecutor drives state transitions through a registered guest
// program. Unlike STFExecutor (the bare reference pipeline run), it models
// the full native-mode flow: a program must be registered before a
// transition can be executed against it, and the emitted proof is bound to
// that program's identity. It delegates the actual transition arithmetic to
// an embedded STFExecutor rather than duplicating it.
type RealSTFExecutor struct {
	cfg      RealSTFConfig
	registry *GuestRegistry
	inner    *STFExecutor

	mu           sync.Mutex
	stfProgramID types.Hash
	hasProgram   bool
}

// NewRealSTFExecutor creates an executor backed by the given registry and
// delegating transition execution to inner.
func NewRealSTFExecutor(cfg RealSTFConfig, registry *GuestRegistry, inner *STFExecutor) (*RealSTFExecutor, error) {
	if registry == nil {
		return nil, ErrRealSTFNilRegistry
	}
	if inner == nil {
		return nil, ErrRealSTFNilExecutor
	}
	return &RealSTFExecutor{cfg: cfg, registry: registry, inner: inner}, nil
}

// RegisterSTFProgram registers the guest program used to execute state
// transitions, returning its content-addressed ID. Registering the same
// bytes twice returns the same ID.
func (e *RealSTFExecutor) RegisterSTFProgram(code []byte) (types.Hash, error) {
	id := e.registry.Register(code)
	e.mu.Lock()
	e.stfProgramID = id
	e.hasProgram = true
	e.mu.Unlock()
	return id, nil
}

// GenerateSTFWitness builds an STFInput for blobs, computing the
// post-state root the transition actually produces.
func (e *RealSTFExecutor) GenerateSTFWitness(preState types.Hash, blobs []stf.Blob) (*STFInput, error) {
	return e.inner.GenerateWitness(preState, blobs)
}

// ExecuteSTF validates input through the inner STFExecutor and binds the
// resulting public output to the registered STF program's identity. The
// program's code itself is not run.
func (e *RealSTFExecutor) ExecuteSTF(input *STFInput) (*STFOutput, error) {
	if input == nil {
		return &STFOutput{}, ErrRealSTFNilInput
	}

	e.mu.Lock()
	programID, hasProgram := e.stfProgramID, e.hasProgram
	e.mu.Unlock()
	if !hasProgram {
		return &STFOutput{}, ErrRealSTFNoSTFProgram
	}

	output, err := e.inner.ValidateTransition(*input)
	if errors.Is(err, ErrSTFPostRootMismatch) {
		return output, ErrRealSTFRootMismatch
	}
	if err != nil {
		return output, err
	}

	proof := stfOutputDigest(programID, output.PostRoot, output.GasUsed, output.CycleCount)
	output.ProofData = proof[:]
	return output, nil
}

// VerifySTFProof recomputes the expected proof digest and rejects any
// output whose proof was tampered with or whose transition was invalid.
func (e *RealSTFExecutor) VerifySTFProof(output *STFOutput) error {
	if output == nil || !output.Valid {
		return ErrInvalidProof
	}
	if len(output.ProofData) != 32 {
		return ErrInvalidProof
	}

	e.mu.Lock()
	programID := e.stfProgramID
	e.mu.Unlock()

	expected := stfOutputDigest(programID, output.PostRoot, output.GasUsed, output.CycleCount)
	var got types.Hash
	copy(got[:], output.ProofData)
	if expected != got {
		return ErrInvalidProof
	}
	return nil
}

// stfOutputDigest binds a proof to the program that produced it and to the
// output's post root, gas used and cycle count, so tampering with any of
// them is detectable without re-running the transition.
func stfOutputDigest(programID, postRoot types.Hash, gasUsed, cycles uint64) types.Hash {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], gasUsed)
	binary.LittleEndian.PutUint64(buf[8:], cycles)
	return crypto.Keccak256Hash(programID[:], postRoot[:], buf[:])
}

// ComputeSTFCommitment binds a pre/post state root pair to the slot they
// transitioned across, so proofs from different slots are never confusable.
func ComputeSTFCommitment(pre, post, slotHash types.Hash) types.Hash {
	return crypto.Keccak256Hash(pre[:], post[:], slotHash[:])
}

// encodeSTFInput serializes the public-facing portion of an STFInput
// (the two state roots) for transmission as a proof's public inputs.
func encodeSTFInput(input *STFInput) []byte {
	buf := make([]byte, 64)
	copy(buf[:32], input.PreStateRoot[:])
	copy(buf[32:], input.PostStateRoot[:])
	return buf
}

// decodeSTFPublicInputs parses the encoding produced by encodeSTFInput.
func decodeSTFPublicInputs(data []byte) (pre, post types.Hash, err error) {
	if len(data) != 64 {
		return types.Hash{}, types.Hash{}, errors.New("zkvm: malformed stf public inputs")
	}
	copy(pre[:], data[:32])
	copy(post[:], data[32:])
	return pre, post, nil
}
