package module

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/rollkernel/rollkernel/container"
	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/hashfn"
	"github.com/rollkernel/rollkernel/workingset"
)

// SequencerRegistry is the bonding module the STF pipeline consults before
// applying any blob: a sequencer's DA address must be registered and
// bonded for at least BondAmount, or the blob fails outright (spec.md
// §4.6's per-blob fatal path). It also implements TxHooks, debiting gas
// before dispatch, and BlobHooks, checking the sequencer's bond before a
// blob and crediting it the blob's collected fees after. The STF pipeline
// calls Slash directly when a blob fails admission or does not parse.
//
// Adapted from the Rust reference's sov-sequencer-registry crate
// (original_source/module-system/module-implementations/
// sov-sequencer-registry/src/{call,hooks}.rs): Register/Exit/slash become
// Bond/Unbond/Slash against rollkernel's Bank instead of a generic
// Coins/token_address pair, since this rollup carries a single native fee
// token rather than sov-bank's multi-token ledger.
type SequencerRegistry struct {
	name       string
	address    types.Address
	bank       *Bank
	bondAmount uint64

	bonded   *container.Map[types.Address, uint64]
	gasPrice *container.Singleton[uint64]
}

// SequencerRegistryConfig is the genesis input: the fixed bond amount and
// any sequencers pre-bonded at genesis.
type SequencerRegistryConfig struct {
	BondAmount   uint64          `json:"bond_amount"`
	InitialPrice uint64          `json:"initial_gas_price"`
	Bonded       []BalanceEntry  `json:"bonded"`
}

// NewSequencerRegistry constructs a SequencerRegistry module backed by bank
// for fund custody.
func NewSequencerRegistry(name string, bank *Bank, hasher hashfn.Hasher) *SequencerRegistry {
	return &SequencerRegistry{
		name:    name,
		address: DeriveAddress(name, hasher),
		bank:    bank,
		bonded: container.NewMap[types.Address, uint64](
			container.NewFieldPrefix("module", name, "bonded"), addressCodec{}, container.Uint64Codec{}, hasher,
		),
		gasPrice: container.NewSingleton[uint64](
			container.NewFieldPrefix("module", name, "gas_price"), container.Uint64Codec{}, hasher,
		),
	}
}

func (r *SequencerRegistry) Name() string           { return r.name }
func (r *SequencerRegistry) Address() types.Address { return r.address }

func (r *SequencerRegistry) Genesis(ws *workingset.WorkingSet, config []byte) error {
	var cfg SequencerRegistryConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return errors.Wrap(err, "sequencerregistry: decode genesis config")
	}
	r.bondAmount = cfg.BondAmount
	if err := r.gasPrice.Set(ws, cfg.InitialPrice); err != nil {
		return err
	}
	for _, e := range cfg.Bonded {
		if err := r.bonded.Set(ws, e.Address, e.Amount); err != nil {
			return err
		}
	}
	return nil
}

// SequencerCallMessage is the decoded form of a call targeting
// SequencerRegistry.
type SequencerCallMessage struct {
	Bond   *BondCall   `json:"bond,omitempty"`
	Unbond *UnbondCall `json:"unbond,omitempty"`
}

// BondCall locks Amount of the caller's balance as bond.
type BondCall struct {
	Amount uint64 `json:"amount"`
}

// UnbondCall releases the caller's entire bond back to their balance.
type UnbondCall struct{}

func (r *SequencerRegistry) Call(ws *workingset.WorkingSet, ctx Context, msg []byte) (CallResponse, error) {
	var call SequencerCallMessage
	if err := json.Unmarshal(msg, &call); err != nil {
		return CallResponse{}, errors.Wrap(err, "sequencerregistry: decode call message")
	}
	switch {
	case call.Bond != nil:
		if err := r.Bond(ws, ctx.Sender, call.Bond.Amount); err != nil {
			return CallResponse{}, err
		}
	case call.Unbond != nil:
		if err := r.Unbond(ws, ctx.Sender); err != nil {
			return CallResponse{}, err
		}
	default:
		return CallResponse{}, errors.New("sequencerregistry: empty call message")
	}
	return CallResponse{Events: []Event{{Module: r.name}}}, nil
}

// Bond moves amount from addr's balance into its bond.
func (r *SequencerRegistry) Bond(ws *workingset.WorkingSet, addr types.Address, amount uint64) error {
	if err := r.bank.Transfer(ws, addr, r.address, amount); err != nil {
		return errors.Wrap(err, "sequencerregistry: bond transfer")
	}
	existing, _, err := r.bonded.Get(ws, addr)
	if err != nil {
		return err
	}
	return r.bonded.Set(ws, addr, existing+amount)
}

// Unbond releases addr's entire bond back to its balance.
func (r *SequencerRegistry) Unbond(ws *workingset.WorkingSet, addr types.Address) error {
	amount, ok, err := r.bonded.Get(ws, addr)
	if err != nil {
		return err
	}
	if !ok || amount == 0 {
		return errors.New("sequencerregistry: nothing bonded")
	}
	if err := r.bonded.Remove(ws, addr); err != nil {
		return err
	}
	return r.bank.Transfer(ws, r.address, addr, amount)
}

// IsBonded reports whether addr's bond meets BondAmount.
func (r *SequencerRegistry) IsBonded(ws *workingset.WorkingSet, addr types.Address) (bool, error) {
	amount, _, err := r.bonded.Get(ws, addr)
	if err != nil {
		return false, err
	}
	return amount >= r.bondAmount, nil
}

// Slash forfeits addr's entire bond: the funds stay locked at the
// registry's address rather than being burned or returned (spec.md §4.6:
// "bonded tokens stay locked at the registry address").
func (r *SequencerRegistry) Slash(ws *workingset.WorkingSet, addr types.Address) error {
	return r.bonded.Remove(ws, addr)
}

// GasPrice returns the registry's currently configured per-unit gas price.
func (r *SequencerRegistry) GasPrice(ws *workingset.WorkingSet) (uint64, error) {
	price, _, err := r.gasPrice.Get(ws)
	return price, err
}

// PreDispatch debits gasLimit*price + tip from the transaction's sender,
// failing (and so dropping the transaction, per spec.md §4.6) if the
// sender cannot afford it. Ported from the Rust reference's
// BankTxHook::pre_dispatch_tx_hook, generalized from a fixed external gas
// token transfer to this registry's own price lookup.
func (r *SequencerRegistry) PreDispatch(ws *workingset.WorkingSet, tx *types.Transaction) error {
	price, err := r.GasPrice(ws)
	if err != nil {
		return err
	}
	cost := tx.GasLimit*price + tx.GasTip
	if cost == 0 {
		return nil
	}
	sender := tx.Sender()
	if sender == nil {
		return errors.New("sequencerregistry: transaction has no sender")
	}
	return r.bank.Transfer(ws, *sender, r.address, cost)
}

// PostDispatch does nothing. PreDispatch charges the full
// gasLimit*price + tip up front, and no unused gas is refunded to the
// sender afterwards, here or in the STF pipeline.
func (r *SequencerRegistry) PostDispatch(ws *workingset.WorkingSet, tx *types.Transaction, callErr error) {}

// BeginBlob requires the submitting sequencer to be bonded before any
// batch in the blob is applied.
func (r *SequencerRegistry) BeginBlob(ws *workingset.WorkingSet, sequencerAddr types.Address) error {
	bonded, err := r.IsBonded(ws, sequencerAddr)
	if err != nil {
		return err
	}
	if !bonded {
		return errors.Newf("sequencerregistry: sequencer %s is not bonded", sequencerAddr.Hex())
	}
	return nil
}

// EndBlob credits the blob's total collected fees to the sequencer.
func (r *SequencerRegistry) EndBlob(ws *workingset.WorkingSet, sequencerAddr types.Address, feesCollected uint64) error {
	return r.bank.Transfer(ws, r.address, sequencerAddr, feesCollected)
}
