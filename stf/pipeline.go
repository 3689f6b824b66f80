package stf

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/rollkernel/rollkernel/container"
	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/crypto"
	"github.com/rollkernel/rollkernel/hashfn"
	"github.com/rollkernel/rollkernel/module"
	"github.com/rollkernel/rollkernel/workingset"
)

// Pipeline drives one slot's worth of blobs through the state machine of
// spec.md §4.6, against a fixed module registry and sequencer registry.
type Pipeline struct {
	registry    *module.Registry
	seqRegistry *module.SequencerRegistry
	hasher      hashfn.Hasher
	kernel      BlobSelector
	nonces      *container.Map[types.Address, uint64]
}

// NewPipeline constructs a Pipeline. kernel may be nil, in which case
// FCFSKernel is used.
func NewPipeline(registry *module.Registry, seqRegistry *module.SequencerRegistry, hasher hashfn.Hasher, kernel BlobSelector) *Pipeline {
	if kernel == nil {
		kernel = FCFSKernel{}
	}
	return &Pipeline{
		registry:    registry,
		seqRegistry: seqRegistry,
		hasher:      hasher,
		kernel:      kernel,
		nonces: container.NewMap[types.Address, uint64](
			container.NewFieldPrefix("core", "nonce", "accounts"), addressCodec{}, container.Uint64Codec{}, hasher,
		),
	}
}

// addressCodec is the Codec[types.Address] the nonce Map keys with. Kept
// as a small unexported duplicate of module.addressCodec: the two
// packages intentionally share no internal types across the L4/L7
// boundary, since nonce accounting is core pipeline state, not
// application-module state.
type addressCodec struct{}

func (addressCodec) Encode(a types.Address) ([]byte, error) { return a.Bytes(), nil }
func (addressCodec) Decode(b []byte) (types.Address, error) { return types.BytesToAddress(b), nil }

// NonceOf returns the current nonce recorded for addr, 0 if never seen.
func (p *Pipeline) NonceOf(ws *workingset.WorkingSet, addr types.Address) (uint64, error) {
	n, _, err := p.nonces.Get(ws, addr)
	return n, err
}

// Committer turns a slot's final write set into a new state root. Native
// mode implements it against a real jmt.Tree and storage.Store; zk mode
// implements it as an in-memory root accumulator fed only by the witness's
// hints -- the same ApplySlot call drives either, per spec.md §4.7.
type Committer interface {
	Commit(writes []workingset.WriteEntry) (types.Hash, error)
}

// ApplySlot runs every accepted blob's batches against ws, in blob order,
// commits the resulting write set through committer, and returns the
// slot's complete result. ws is expected to be backed by a real
// L0/snapshot Base with a recording Witness in native mode, or by a
// witness-driven Base with a replay Witness in zk mode -- ApplySlot itself
// is oblivious to which (spec.md §4.7's unified code path).
func (p *Pipeline) ApplySlot(ws *workingset.WorkingSet, blobs []Blob, committer Committer) (SlotResult, error) {
	selected, err := p.kernel.SelectBlobs(ws, blobs)
	if err != nil {
		return SlotResult{}, errors.Wrap(err, "stf: blob selection")
	}

	receipts := make([]BatchReceipt, 0, len(selected))
	for _, blob := range selected {
		receipts = append(receipts, p.applyBlob(ws, blob))
	}

	out, witness := ws.Freeze()
	root, err := committer.Commit(out.Writes)
	if err != nil {
		return SlotResult{}, errors.Wrap(err, "stf: commit change set")
	}

	return SlotResult{
		StateRoot:     root,
		ChangeSet:     out,
		BatchReceipts: receipts,
		Witness:       witness,
	}, nil
}

func (p *Pipeline) applyBlob(ws *workingset.WorkingSet, blob Blob) BatchReceipt {
	blobHash := p.hasher.Sum(blob.Data)
	cp := ws.Checkpoint()

	if err := p.runBeginBlobHooks(ws, blob.SequencerAddr); err != nil {
		ws.Revert(cp)
		return p.slashedReceipt(ws, blob, blobHash, "admission: "+err.Error())
	}

	var batch wireBatch
	if err := json.Unmarshal(blob.Data, &batch); err != nil {
		ws.Revert(cp)
		return p.slashedReceipt(ws, blob, blobHash, "decode: "+err.Error())
	}

	txReceipts := make([]TxReceipt, 0, len(batch.Transactions))
	var feesCollected uint64
	for _, wireTx := range batch.Transactions {
		receipt, fee := p.applyTransaction(ws, wireTx)
		txReceipts = append(txReceipts, receipt)
		feesCollected += fee
	}

	if err := p.runEndBlobHooks(ws, blob.SequencerAddr, feesCollected); err != nil {
		return BatchReceipt{
			BatchHash:  blobHash,
			TxReceipts: txReceipts,
			Inner:      SequencerOutcome{Kind: Ignored, SequencerDAAddr: blob.SequencerAddr},
		}
	}

	return BatchReceipt{
		BatchHash:  blobHash,
		TxReceipts: txReceipts,
		Inner:      SequencerOutcome{Kind: Rewarded, Amount: feesCollected, SequencerDAAddr: blob.SequencerAddr},
	}
}

func (p *Pipeline) slashedReceipt(ws *workingset.WorkingSet, blob Blob, blobHash types.Hash, reason string) BatchReceipt {
	if p.seqRegistry != nil {
		p.seqRegistry.Slash(ws, blob.SequencerAddr)
	}
	p.runEndBlobHooks(ws, blob.SequencerAddr, 0)
	return BatchReceipt{
		BatchHash: blobHash,
		Inner: SequencerOutcome{
			Kind:            Slashed,
			Reason:          reason,
			SequencerDAAddr: blob.SequencerAddr,
		},
	}
}

func (p *Pipeline) runBeginBlobHooks(ws *workingset.WorkingSet, sequencerAddr types.Address) error {
	for _, h := range p.registry.BlobHooks() {
		if err := h.BeginBlob(ws, sequencerAddr); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runEndBlobHooks(ws *workingset.WorkingSet, sequencerAddr types.Address, fees uint64) error {
	for _, h := range p.registry.BlobHooks() {
		if err := h.EndBlob(ws, sequencerAddr, fees); err != nil {
			return err
		}
	}
	return nil
}

// applyTransaction runs one transaction through verify -> pre_hook ->
// dispatch_call -> post_hook, returning its receipt and the gas fee
// actually collected from it (0 if the tx never reached pre_hook).
func (p *Pipeline) applyTransaction(ws *workingset.WorkingSet, wtx wireTransaction) (TxReceipt, uint64) {
	tx := types.NewTransaction(wtx.RuntimeMsg, wtx.PubKey, wtx.Signature, wtx.Nonce, wtx.ChainID, wtx.GasTip, wtx.GasLimit)
	txHash := p.hasher.Sum(wtx.RuntimeMsg, encodeUint64(wtx.Nonce), encodeUint64(wtx.ChainID), encodeUint64(wtx.GasTip), encodeUint64(wtx.GasLimit))
	tx.SetHash(txHash)

	// Sender recovery verifies the signature against the transaction's own
	// carried PubKey rather than recovering a key from the signature alone:
	// the teacher's crypto.SigToPub (true ecrecover) is an unimplemented
	// placeholder over the stand-in P256 curve (crypto/secp256k1.go), but
	// crypto.ValidateSignature -- checking a signature against a supplied
	// key with ecdsa.Verify -- works over any curve and needs no recovery.
	if len(wtx.PubKey) != 65 || len(wtx.Signature) < 64 {
		return TxReceipt{TxHash: txHash, Effect: TxEffect{Reason: ReasonBadSignature, Err: "malformed signature or public key"}}, 0
	}
	if !crypto.ValidateSignature(wtx.PubKey, txHash.Bytes(), wtx.Signature[:64]) {
		return TxReceipt{TxHash: txHash, Effect: TxEffect{Reason: ReasonBadSignature, Err: "signature does not match public key"}}, 0
	}
	// Mirrors crypto.PubkeyToAddress's own Keccak256(pubkey[1:])[12:]
	// formula directly on the wire bytes, sidestepping the need to
	// reconstruct an ecdsa.PublicKey on a curve this package can't name.
	sender := types.BytesToAddress(crypto.Keccak256(wtx.PubKey[1:])[12:])
	tx.SetSender(sender)

	cpBeforePreHook := ws.Checkpoint()

	accountNonce, err := p.NonceOf(ws, sender)
	if err != nil {
		return TxReceipt{TxHash: txHash, Effect: TxEffect{Reason: ReasonBadNonce, Err: err.Error()}}, 0
	}
	if tx.Nonce != accountNonce {
		ws.Revert(cpBeforePreHook)
		return TxReceipt{TxHash: txHash, Effect: TxEffect{Reason: ReasonBadNonce}}, 0
	}

	for _, h := range p.registry.TxHooks() {
		if err := h.PreDispatch(ws, tx); err != nil {
			ws.Revert(cpBeforePreHook)
			return TxReceipt{TxHash: txHash, Effect: TxEffect{Reason: ReasonInsufficientGas, Err: err.Error()}}, 0
		}
	}
	fee := tx.GasLimit*mustGasPrice(p, ws) + tx.GasTip

	cpAfterPreHook := ws.Checkpoint()

	reason := ReasonCallFailed
	var msg RuntimeMessage
	callErr := json.Unmarshal(tx.RuntimeMsg, &msg)
	if callErr != nil {
		reason = ReasonBadMessage
	}

	var mod module.Module
	var ok bool
	if callErr == nil {
		mod, ok = p.registry.Handle(msg.Module)
		if !ok {
			callErr = errors.Newf("stf: no module registered at %s", msg.Module.Hex())
			reason = ReasonUnknownModule
		}
	}
	if callErr == nil {
		_, callErr = mod.Call(ws, module.Context{Sender: sender}, msg.Payload)
	}

	if callErr != nil {
		ws.Revert(cpAfterPreHook)
	}

	for _, h := range p.registry.TxHooks() {
		h.PostDispatch(ws, tx, callErr)
	}
	p.nonces.Set(ws, sender, tx.Nonce+1)

	if callErr != nil {
		return TxReceipt{TxHash: txHash, Effect: TxEffect{Reason: reason, Err: callErr.Error()}}, fee
	}
	return TxReceipt{TxHash: txHash, Effect: TxEffect{Applied: true}}, fee
}

func mustGasPrice(p *Pipeline, ws *workingset.WorkingSet) uint64 {
	if p.seqRegistry == nil {
		return 0
	}
	price, err := p.seqRegistry.GasPrice(ws)
	if err != nil {
		return 0
	}
	return price
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
	return b
}
