package zkvm

import (
	"crypto/ecdsa"
	"encoding/json"
	"testing"

	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/crypto"
	"github.com/rollkernel/rollkernel/hashfn"
	"github.com/rollkernel/rollkernel/module"
	"github.com/rollkernel/rollkernel/stf"
	"github.com/rollkernel/rollkernel/workingset"
)

type zkTestMemBase map[string][]byte

func (b zkTestMemBase) Get(key []byte) ([]byte, bool, error) {
	v, ok := b[string(key)]
	return v, ok, nil
}

// wireTx/wireBatchJSON mirror stf's unexported wire format field-for-field:
// external callers (a DA layer, a wallet) build this shape directly, they
// never import stf's unexported types.
type wireTx struct {
	RuntimeMsg []byte `json:"runtime_msg"`
	PubKey     []byte `json:"pub_key"`
	Signature  []byte `json:"signature"`
	Nonce      uint64 `json:"nonce"`
	ChainID    uint64 `json:"chain_id"`
	GasTip     uint64 `json:"gas_tip"`
	GasLimit   uint64 `json:"gas_limit"`
}

type wireBatchJSON struct {
	Transactions []wireTx `json:"transactions"`
}

func beUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
	return b
}

func signWireTx(priv *ecdsa.PrivateKey, h hashfn.Hasher, runtimeMsg []byte, nonce, chainID, gasTip, gasLimit uint64) wireTx {
	txHash := h.Sum(runtimeMsg, beUint64(nonce), beUint64(chainID), beUint64(gasTip), beUint64(gasLimit))
	sig, err := crypto.Sign(txHash.Bytes(), priv)
	if err != nil {
		panic(err)
	}
	return wireTx{
		RuntimeMsg: runtimeMsg,
		PubKey:     crypto.FromECDSAPub(&priv.PublicKey),
		Signature:  sig,
		Nonce:      nonce,
		ChainID:    chainID,
		GasTip:     gasTip,
		GasLimit:   gasLimit,
	}
}

// zkTestHarness wires a Bank+SequencerRegistry pipeline against an
// in-memory Base and a WitnessCommitter, the same shape a zk-mode proof
// replay runs against -- it just skips the actual witness-replay Base
// variant so the test can drive real storage reads/writes directly.
type zkTestHarness struct {
	pipeline      *stf.Pipeline
	bank          *module.Bank
	base          zkTestMemBase
	hasher        hashfn.Hasher
	alice         *ecdsa.PrivateKey
	aliceAddr     types.Address
	sequencerAddr types.Address
}

func newZKTestHarness(t *testing.T) *zkTestHarness {
	t.Helper()
	h := hashfn.Keccak256Hasher{}
	bank := module.NewBank("bank", h)
	seqReg := module.NewSequencerRegistry("sequencerregistry", bank, h)
	reg := module.NewRegistry()
	if err := reg.Register(bank); err != nil {
		t.Fatalf("Register bank: %v", err)
	}
	if err := reg.Register(seqReg); err != nil {
		t.Fatalf("Register seqReg: %v", err)
	}

	alice, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	aliceAddr := crypto.PubkeyToAddress(alice.PublicKey)
	sequencerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sequencerAddr := crypto.PubkeyToAddress(sequencerKey.PublicKey)

	base := zkTestMemBase{}
	ws := workingset.New(base, workingset.NewWitness(), nil)
	mustOK(t, bank.Genesis(ws, mustJSON(module.BankConfig{Balances: []module.BalanceEntry{
		{Address: aliceAddr, Amount: 1000},
		{Address: sequencerAddr, Amount: 10},
	}})))
	mustOK(t, seqReg.Genesis(ws, mustJSON(module.SequencerRegistryConfig{BondAmount: 1, InitialPrice: 1})))
	mustOK(t, seqReg.Bond(ws, sequencerAddr, 1))
	out, _ := ws.Freeze()
	for _, w := range out.Writes {
		base[string(w.Key)] = w.Value
	}

	return &zkTestHarness{
		pipeline:      stf.NewPipeline(reg, seqReg, h, nil),
		bank:          bank,
		base:          base,
		hasher:        h,
		alice:         alice,
		aliceAddr:     aliceAddr,
		sequencerAddr: sequencerAddr,
	}
}

func (h *zkTestHarness) transferBlob(t *testing.T, to types.Address, nonce, gasLimit uint64) stf.Blob {
	t.Helper()
	runtimeMsg := mustJSON(stf.RuntimeMessage{
		Module:  module.DeriveAddress("bank", h.hasher),
		Payload: mustJSON(module.BankCallMessage{Transfer: &module.TransferCall{To: to, Amount: 100}}),
	})
	tx := signWireTx(h.alice, h.hasher, runtimeMsg, nonce, 1, 0, gasLimit)
	data, err := json.Marshal(wireBatchJSON{Transactions: []wireTx{tx}})
	if err != nil {
		t.Fatalf("marshal batch: %v", err)
	}
	return stf.Blob{SequencerAddr: h.sequencerAddr, Data: data}
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
}

func TestSTFDefaultConfig(t *testing.T) {
	cfg := DefaultSTFConfig()

	if cfg.MaxWitnessSize != DefaultMaxWitnessSize {
		t.Errorf("MaxWitnessSize: got %d, want %d", cfg.MaxWitnessSize, DefaultMaxWitnessSize)
	}
	if cfg.MaxProofSize != DefaultMaxProofSize {
		t.Errorf("MaxProofSize: got %d, want %d", cfg.MaxProofSize, DefaultMaxProofSize)
	}
	if cfg.TargetCycles != DefaultTargetCycles {
		t.Errorf("TargetCycles: got %d, want %d", cfg.TargetCycles, DefaultTargetCycles)
	}
	if cfg.ProofSystem != "plonk" {
		t.Errorf("expected default proof system 'plonk', got %q", cfg.ProofSystem)
	}
}

func TestSTFValidateTransition(t *testing.T) {
	h := newZKTestHarness(t)
	bob := types.BytesToAddress([]byte("bob"))
	blob := h.transferBlob(t, bob, 0, 10)

	preRoot := types.Hash{0xaa}
	committer := NewWitnessCommitter(h.hasher, preRoot)
	exec, err := NewSTFExecutor(DefaultSTFConfig(), h.pipeline, h.base, committer)
	if err != nil {
		t.Fatalf("NewSTFExecutor: %v", err)
	}

	// First pass to learn the actual resulting root.
	dryCommitter := NewWitnessCommitter(h.hasher, preRoot)
	dryExec, _ := NewSTFExecutor(DefaultSTFConfig(), h.pipeline, h.base, dryCommitter)
	dryOutput, err := dryExec.ValidateTransition(STFInput{PreStateRoot: preRoot, PostStateRoot: types.Hash{0xff}, Blobs: []stf.Blob{blob}})
	if err == nil || err != ErrSTFPostRootMismatch {
		t.Fatalf("dry run: expected ErrSTFPostRootMismatch to learn root, got %v", err)
	}

	output, err := exec.ValidateTransition(STFInput{PreStateRoot: preRoot, PostStateRoot: dryOutput.PostRoot, Blobs: []stf.Blob{blob}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !output.Valid {
		t.Error("expected valid transition")
	}
	if output.GasUsed != 10 {
		t.Errorf("expected gas used 10, got %d", output.GasUsed)
	}
	if len(output.ProofData) != 32 {
		t.Error("expected 32-byte proof data")
	}
	if output.CycleCount == 0 {
		t.Error("expected non-zero cycle count")
	}
	if len(output.Receipts) != 1 || len(output.Receipts[0].TxReceipts) != 1 || !output.Receipts[0].TxReceipts[0].Effect.Applied {
		t.Fatalf("unexpected receipts: %+v", output.Receipts)
	}
}

func TestSTFValidateTransitionMismatch(t *testing.T) {
	h := newZKTestHarness(t)
	bob := types.BytesToAddress([]byte("bob"))
	blob := h.transferBlob(t, bob, 0, 10)

	preRoot := types.Hash{0x01}
	committer := NewWitnessCommitter(h.hasher, preRoot)
	exec, _ := NewSTFExecutor(DefaultSTFConfig(), h.pipeline, h.base, committer)

	wrongPost := types.Hash{0xff, 0xfe, 0xfd}
	output, err := exec.ValidateTransition(STFInput{PreStateRoot: preRoot, PostStateRoot: wrongPost, Blobs: []stf.Blob{blob}})
	if err != ErrSTFPostRootMismatch {
		t.Errorf("expected ErrSTFPostRootMismatch, got %v", err)
	}
	if output == nil {
		t.Fatal("expected non-nil output even on mismatch")
	}
	if output.Valid {
		t.Error("expected invalid transition")
	}
	if output.PostRoot == wrongPost {
		t.Error("computed post root should differ from the wrong claimed one")
	}
}

func TestSTFGenerateWitnessRoundTrip(t *testing.T) {
	h := newZKTestHarness(t)
	bob := types.BytesToAddress([]byte("bob"))
	blob := h.transferBlob(t, bob, 0, 10)

	preRoot := types.Hash{0xaa, 0xbb}
	committer := NewWitnessCommitter(h.hasher, preRoot)
	exec, _ := NewSTFExecutor(DefaultSTFConfig(), h.pipeline, h.base, committer)

	stfInput, err := exec.GenerateWitness(preRoot, []stf.Blob{blob})
	if err != nil {
		t.Fatalf("GenerateWitness: %v", err)
	}
	if stfInput.PreStateRoot != preRoot {
		t.Error("pre-state root mismatch")
	}
	if stfInput.PostStateRoot == (types.Hash{}) {
		t.Error("expected non-zero post-state root")
	}
	if stfInput.Witness == nil || stfInput.Witness.Len() == 0 {
		t.Error("expected a non-empty recorded witness")
	}

	replayCommitter := NewWitnessCommitter(h.hasher, preRoot)
	replayExec, _ := NewSTFExecutor(DefaultSTFConfig(), h.pipeline, h.base, replayCommitter)
	output, err := replayExec.ValidateTransition(*stfInput)
	if err != nil {
		t.Fatalf("validating generated witness failed: %v", err)
	}
	if !output.Valid {
		t.Error("expected valid transition from generated witness")
	}
}

func TestSTFVerifyProof(t *testing.T) {
	h := newZKTestHarness(t)
	bob := types.BytesToAddress([]byte("bob"))
	blob := h.transferBlob(t, bob, 0, 10)
	preRoot := types.Hash{0x01}

	dryCommitter := NewWitnessCommitter(h.hasher, preRoot)
	dryExec, _ := NewSTFExecutor(DefaultSTFConfig(), h.pipeline, h.base, dryCommitter)
	dryOutput, _ := dryExec.ValidateTransition(STFInput{PreStateRoot: preRoot, PostStateRoot: types.Hash{0xff}, Blobs: []stf.Blob{blob}})

	committer := NewWitnessCommitter(h.hasher, preRoot)
	exec, _ := NewSTFExecutor(DefaultSTFConfig(), h.pipeline, h.base, committer)
	output, err := exec.ValidateTransition(STFInput{PreStateRoot: preRoot, PostStateRoot: dryOutput.PostRoot, Blobs: []stf.Blob{blob}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exec.VerifyProof(*output) {
		t.Error("expected valid proof verification")
	}

	tampered := *output
	tampered.ProofData = []byte{0x01, 0x02}
	if exec.VerifyProof(tampered) {
		t.Error("expected wrong-length proof to fail verification")
	}

	tampered2 := *output
	tampered2.Valid = false
	if exec.VerifyProof(tampered2) {
		t.Error("expected invalid-flagged output to fail verification")
	}
}

func TestSTFWitnessTooLarge(t *testing.T) {
	h := newZKTestHarness(t)
	bob := types.BytesToAddress([]byte("bob"))
	blob := h.transferBlob(t, bob, 0, 10)
	preRoot := types.Hash{0x01}

	cfg := DefaultSTFConfig()
	cfg.MaxWitnessSize = 1 // smaller than any recorded hint

	committer := NewWitnessCommitter(h.hasher, preRoot)
	exec, _ := NewSTFExecutor(cfg, h.pipeline, h.base, committer)

	_, err := exec.ValidateTransition(STFInput{PreStateRoot: preRoot, PostStateRoot: types.Hash{}, Blobs: []stf.Blob{blob}})
	if err != ErrSTFWitnessTooLarge {
		t.Errorf("expected ErrSTFWitnessTooLarge, got %v", err)
	}
}

func TestValidateSTFInput(t *testing.T) {
	if err := ValidateSTFInput(nil); err == nil {
		t.Error("expected error for nil input")
	}
	if err := ValidateSTFInput(&STFInput{}); err == nil {
		t.Error("expected error for a fully empty input")
	}
	if err := ValidateSTFInput(&STFInput{PreStateRoot: types.Hash{0x01}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
