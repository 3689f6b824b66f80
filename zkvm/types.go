package zkvm

import "github.com/rollkernel/rollkernel/core/types"

// GuestProgram is the compiled guest image executed inside the zkVM: the
// RISC-V ELF (or equivalent target) produced from the state transition
// function, plus the entry point the runtime jumps to.
type GuestProgram struct {
	Code       []byte
	EntryPoint string
	Version    uint32
}

// GuestInput is the data fed to a guest program at boot: the chain it is
// executing for and the RLP-encoded block/witness pair.
type GuestInput struct {
	ChainID     uint64
	BlockData   []byte
	WitnessData []byte
}

// VerificationKey binds a proof to the program it was produced for.
type VerificationKey struct {
	Data        []byte
	ProgramHash types.Hash
}

// Proof is an opaque zero-knowledge proof together with the public inputs
// it was generated against.
type Proof struct {
	Data         []byte
	PublicInputs []byte
}

// ExecutionResult is the public output of a block execution: the state
// roots it transitioned between and the resources it consumed.
type ExecutionResult struct {
	PreStateRoot  types.Hash
	PostStateRoot types.Hash
	ReceiptsRoot  types.Hash
	GasUsed       uint64
	Success       bool
}

// ProverBackend abstracts over the proving system used to turn a guest
// program execution into a verifiable proof. Production deployments back
// this with the Ziren zkVM runtime; tests and local development use
// MockVerifier.
type ProverBackend interface {
	Name() string
	Prove(program *GuestProgram, input []byte) (*Proof, error)
	Verify(vk *VerificationKey, proof *Proof) (bool, error)
}
