package stf

import (
	"crypto/ecdsa"
	"encoding/json"
	"testing"

	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/crypto"
	"github.com/rollkernel/rollkernel/hashfn"
	"github.com/rollkernel/rollkernel/module"
	"github.com/rollkernel/rollkernel/workingset"
)

type memBase map[string][]byte

func (b memBase) Get(key []byte) ([]byte, bool, error) {
	v, ok := b[string(key)]
	return v, ok, nil
}

type stubCommitter struct{}

func (stubCommitter) Commit(writes []workingset.WriteEntry) (types.Hash, error) {
	return types.Hash{0x01}, nil
}

// signTx builds a wireTransaction signed by priv, reproducing the exact
// hash Pipeline.applyTransaction computes so signature verification succeeds.
func signTx(t *testing.T, priv *ecdsa.PrivateKey, runtimeMsg []byte, nonce, chainID, gasTip, gasLimit uint64) wireTransaction {
	t.Helper()
	h := hashfn.Keccak256Hasher{}
	txHash := h.Sum(runtimeMsg, encodeUint64(nonce), encodeUint64(chainID), encodeUint64(gasTip), encodeUint64(gasLimit))
	sig, err := crypto.Sign(txHash.Bytes(), priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return wireTransaction{
		RuntimeMsg: runtimeMsg,
		PubKey:     crypto.FromECDSAPub(&priv.PublicKey),
		Signature:  sig,
		Nonce:      nonce,
		ChainID:    chainID,
		GasTip:     gasTip,
		GasLimit:   gasLimit,
	}
}

func setupHarness(t *testing.T) (*Pipeline, *workingset.WorkingSet, *module.Bank, *module.SequencerRegistry, *ecdsa.PrivateKey, types.Address) {
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

	priv, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sender := crypto.PubkeyToAddress(priv.PublicKey)

	ws := workingset.New(memBase{}, workingset.NewWitness(), nil)
	if err := bank.Genesis(ws, mustJSON(module.BankConfig{Balances: []module.BalanceEntry{{Address: sender, Amount: 1000}}})); err != nil {
		t.Fatalf("bank.Genesis: %v", err)
	}
	if err := seqReg.Genesis(ws, mustJSON(module.SequencerRegistryConfig{BondAmount: 1, InitialPrice: 1})); err != nil {
		t.Fatalf("seqReg.Genesis: %v", err)
	}

	sequencerKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	sequencerAddr := crypto.PubkeyToAddress(sequencerKey.PublicKey)
	if err := seqReg.Bond(ws, sequencerAddr, 1); err != nil {
		t.Fatalf("Bond: %v", err)
	}

	p := NewPipeline(reg, seqReg, h, nil)
	return p, ws, bank, seqReg, priv, sequencerAddr
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func transferBlob(t *testing.T, p *Pipeline, priv *ecdsa.PrivateKey, bob types.Address, nonce, gasLimit uint64, sequencerAddr types.Address) Blob {
	t.Helper()
	runtimeMsg := mustJSON(RuntimeMessage{
		Module:  module.DeriveAddress("bank", hashfn.Keccak256Hasher{}),
		Payload: mustJSON(module.BankCallMessage{Transfer: &module.TransferCall{To: bob, Amount: 100}}),
	})
	wtx := signTx(t, priv, runtimeMsg, nonce, 1, 0, gasLimit)
	batch := wireBatch{Transactions: []wireTransaction{wtx}}
	data, _ := json.Marshal(batch)
	return Blob{SequencerAddr: sequencerAddr, Data: data}
}

func TestApplySlotSingleTransferScenarioS2(t *testing.T) {
	p, ws, bank, _, priv, sequencerAddr := setupHarness(t)
	alice := crypto.PubkeyToAddress(priv.PublicKey)
	bob := types.BytesToAddress([]byte("bob"))

	blob := transferBlob(t, p, priv, bob, 0, 10, sequencerAddr)
	result, err := p.ApplySlot(ws, []Blob{blob}, stubCommitter{})
	if err != nil {
		t.Fatalf("ApplySlot: %v", err)
	}
	if len(result.BatchReceipts) != 1 || len(result.BatchReceipts[0].TxReceipts) != 1 {
		t.Fatalf("unexpected receipt shape: %+v", result.BatchReceipts)
	}
	rcpt := result.BatchReceipts[0].TxReceipts[0]
	if !rcpt.Effect.Applied {
		t.Fatalf("expected tx applied, got %+v", rcpt.Effect)
	}
	if result.BatchReceipts[0].Inner.Kind != Rewarded || result.BatchReceipts[0].Inner.Amount != 10 {
		t.Fatalf("sequencer outcome = %+v, want Rewarded{10}", result.BatchReceipts[0].Inner)
	}

	aliceBal, _ := bank.BalanceOf(ws, alice)
	bobBal, _ := bank.BalanceOf(ws, bob)
	if aliceBal != 890 {
		t.Fatalf("alice balance = %d, want 890", aliceBal)
	}
	if bobBal != 100 {
		t.Fatalf("bob balance = %d, want 100", bobBal)
	}
	nonce, _ := p.NonceOf(ws, alice)
	if nonce != 1 {
		t.Fatalf("alice nonce = %d, want 1", nonce)
	}
}

func TestApplySlotBadNonceScenarioS3(t *testing.T) {
	p, ws, bank, _, priv, sequencerAddr := setupHarness(t)
	alice := crypto.PubkeyToAddress(priv.PublicKey)
	bob := types.BytesToAddress([]byte("bob"))

	blob := transferBlob(t, p, priv, bob, 5, 10, sequencerAddr)
	result, err := p.ApplySlot(ws, []Blob{blob}, stubCommitter{})
	if err != nil {
		t.Fatalf("ApplySlot: %v", err)
	}
	rcpt := result.BatchReceipts[0].TxReceipts[0]
	if rcpt.Effect.Applied || rcpt.Effect.Reason != ReasonBadNonce {
		t.Fatalf("expected BadNonce revert, got %+v", rcpt.Effect)
	}
	aliceBal, _ := bank.BalanceOf(ws, alice)
	if aliceBal != 1000 {
		t.Fatalf("alice balance after bad-nonce tx = %d, want unchanged 1000", aliceBal)
	}
	nonce, _ := p.NonceOf(ws, alice)
	if nonce != 0 {
		t.Fatalf("alice nonce after bad-nonce tx = %d, want unchanged 0", nonce)
	}
}

func TestApplySlotUnparseableBlobScenarioS4(t *testing.T) {
	p, ws, _, seqReg, _, sequencerAddr := setupHarness(t)

	blob := Blob{SequencerAddr: sequencerAddr, Data: []byte{0xff, 0xff, 0xff}}
	result, err := p.ApplySlot(ws, []Blob{blob}, stubCommitter{})
	if err != nil {
		t.Fatalf("ApplySlot: %v", err)
	}
	if result.BatchReceipts[0].Inner.Kind != Slashed {
		t.Fatalf("expected Slashed outcome, got %+v", result.BatchReceipts[0].Inner)
	}
	if bonded, _ := seqReg.IsBonded(ws, sequencerAddr); bonded {
		t.Fatal("sequencer should no longer be bonded after slashing")
	}
}
