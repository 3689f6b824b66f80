package zkvm

import (
	"errors"
)

var (
	ErrNilVerificationKey = errors.New("zkvm: nil verification key")
	ErrNilProof           = errors.New("zkvm: nil proof")
	ErrEmptyProofData     = errors.New("zkvm: empty proof data")
	ErrEmptyVKData        = errors.New("zkvm: empty verification key data")
	ErrInvalidProof       = errors.New("zkvm: invalid proof")
)

// VerifyProof checks a proof against a verification key using the default
// (mock) backend. Production callers that need a real proving system go
// through ProverBackend directly instead.
func VerifyProof(vk *VerificationKey, proof *Proof) (bool, error) {
	return (&MockVerifier{}).Verify(vk, proof)
}

// MockVerifier is a ProverBackend that accepts any well-formed proof. It
// exists so the STF pipeline and its tests can exercise the prove/verify
// contract without linking a real proving system.
type MockVerifier struct{}

func (m *MockVerifier) Name() string { return "mock" }

func (m *MockVerifier) Prove(program *GuestProgram, input []byte) (*Proof, error) {
	if program == nil {
		return nil, errors.New("zkvm: nil guest program")
	}
	if len(program.Code) == 0 {
		return nil, errors.New("zkvm: empty guest program code")
	}
	data := append([]byte("mock-proof:"), program.Code...)
	return &Proof{Data: data, PublicInputs: input}, nil
}

func (m *MockVerifier) Verify(vk *VerificationKey, proof *Proof) (bool, error) {
	if vk == nil {
		return false, ErrNilVerificationKey
	}
	if proof == nil {
		return false, ErrNilProof
	}
	if len(vk.Data) == 0 {
		return false, ErrEmptyVKData
	}
	if len(proof.Data) == 0 {
		return false, ErrEmptyProofData
	}
	if len(proof.PublicInputs) == 0 {
		return false, nil
	}
	return true, nil
}

// RejectingVerifier is a ProverBackend that always fails proving and never
// accepts a proof. Used to exercise STF/guest error paths in tests.
type RejectingVerifier struct{}

func (r *RejectingVerifier) Name() string { return "rejecting" }

func (r *RejectingVerifier) Prove(program *GuestProgram, input []byte) (*Proof, error) {
	return nil, errors.New("zkvm: rejecting verifier refuses to prove")
}

func (r *RejectingVerifier) Verify(vk *VerificationKey, proof *Proof) (bool, error) {
	if vk == nil {
		return false, ErrNilVerificationKey
	}
	if proof == nil {
		return false, ErrNilProof
	}
	return false, nil
}
