package module

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/rollkernel/rollkernel/container"
	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/hashfn"
	"github.com/rollkernel/rollkernel/workingset"
)

// Bank is the native fee-token module: it holds every account's balance
// and the token's total supply. It does not implement TxHooks; gas moves
// through Transfer, called by the sequencer registry's hooks.
//
// Adapted from the Rust reference's sov-bank crate, collapsed from its
// multi-token Token/TokenConfig model (original_source/module-system/
// module-implementations/sov-bank/src/{genesis,hooks,query}.rs) down to
// the rollup's single native fee token, since spec.md's module-ABI
// boundary names only a balance ledger and gas accounting, not asset
// issuance.
type Bank struct {
	name        string
	address     types.Address
	hasher      hashfn.Hasher
	balances    *container.Map[types.Address, uint64]
	totalSupply *container.Singleton[uint64]
}

// BankConfig is Bank's genesis input: the initial balance credited to
// each listed address.
type BankConfig struct {
	Balances []BalanceEntry `json:"balances"`
}

// BalanceEntry is one genesis credit.
type BalanceEntry struct {
	Address types.Address `json:"address"`
	Amount  uint64        `json:"amount"`
}

// addressCodec is the Codec[types.Address] Bank's balance Map keys with.
type addressCodec struct{}

func (addressCodec) Encode(a types.Address) ([]byte, error) { return a.Bytes(), nil }
func (addressCodec) Decode(b []byte) (types.Address, error) { return types.BytesToAddress(b), nil }

// NewBank constructs a Bank module, deriving its address from its name.
func NewBank(name string, hasher hashfn.Hasher) *Bank {
	return &Bank{
		name:    name,
		address: DeriveAddress(name, hasher),
		hasher:  hasher,
		balances: container.NewMap[types.Address, uint64](
			container.NewFieldPrefix("module", name, "balances"), addressCodec{}, container.Uint64Codec{}, hasher,
		),
		totalSupply: container.NewSingleton[uint64](
			container.NewFieldPrefix("module", name, "total_supply"), container.Uint64Codec{}, hasher,
		),
	}
}

func (b *Bank) Name() string          { return b.name }
func (b *Bank) Address() types.Address { return b.address }

// Genesis credits every configured address and sets the total supply to
// their sum, failing on overflow (spec.md's genesis invariants require a
// deterministic, validated initial state).
func (b *Bank) Genesis(ws *workingset.WorkingSet, config []byte) error {
	var cfg BankConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return errors.Wrap(err, "bank: decode genesis config")
	}

	var total uint64
	for _, e := range cfg.Balances {
		newTotal := total + e.Amount
		if newTotal < total {
			return errors.New("bank: genesis total supply overflow")
		}
		total = newTotal
		if err := b.balances.Set(ws, e.Address, e.Amount); err != nil {
			return errors.Wrap(err, "bank: set genesis balance")
		}
	}
	return b.totalSupply.Set(ws, total)
}

// BankCallMessage is the decoded form of a call targeting Bank.
type BankCallMessage struct {
	Transfer *TransferCall `json:"transfer,omitempty"`
}

// TransferCall moves Amount of the native token from the caller to To.
type TransferCall struct {
	To     types.Address `json:"to"`
	Amount uint64        `json:"amount"`
}

// Call decodes msg as a BankCallMessage and dispatches it.
func (b *Bank) Call(ws *workingset.WorkingSet, ctx Context, msg []byte) (CallResponse, error) {
	var call BankCallMessage
	if err := json.Unmarshal(msg, &call); err != nil {
		return CallResponse{}, errors.Wrap(err, "bank: decode call message")
	}
	switch {
	case call.Transfer != nil:
		return b.transfer(ws, ctx.Sender, call.Transfer.To, call.Transfer.Amount)
	default:
		return CallResponse{}, errors.New("bank: empty call message")
	}
}

func (b *Bank) transfer(ws *workingset.WorkingSet, from, to types.Address, amount uint64) (CallResponse, error) {
	if err := b.Transfer(ws, from, to, amount); err != nil {
		return CallResponse{}, err
	}
	return CallResponse{Events: []Event{{Module: b.name, Key: "transfer", Value: nil}}}, nil
}

// Transfer moves amount of the native token from `from` to `to`. Exported
// so other modules and the STF's gas accounting can move funds without
// going through the call-message dispatch path, mirroring the Rust
// reference's Bank::transfer_from being callable directly by
// sov-sequencer-registry and the gas hooks.
func (b *Bank) Transfer(ws *workingset.WorkingSet, from, to types.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	fromBal, _, err := b.balances.Get(ws, from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return errors.Newf("bank: insufficient balance: have %d, need %d", fromBal, amount)
	}
	toBal, _, err := b.balances.Get(ws, to)
	if err != nil {
		return err
	}
	if err := b.balances.Set(ws, from, fromBal-amount); err != nil {
		return err
	}
	return b.balances.Set(ws, to, toBal+amount)
}

// BalanceOf returns the balance of addr, 0 if never credited.
func (b *Bank) BalanceOf(ws *workingset.WorkingSet, addr types.Address) (uint64, error) {
	bal, _, err := b.balances.Get(ws, addr)
	return bal, err
}

// TotalSupply returns the native token's total supply.
func (b *Bank) TotalSupply(ws *workingset.WorkingSet) (uint64, error) {
	supply, _, err := b.totalSupply.Get(ws)
	return supply, err
}

// Mint credits amount to addr and grows total supply, failing on overflow.
func (b *Bank) Mint(ws *workingset.WorkingSet, addr types.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	supply, err := b.TotalSupply(ws)
	if err != nil {
		return err
	}
	newSupply := supply + amount
	if newSupply < supply {
		return errors.New("bank: mint overflows total supply")
	}
	bal, _, err := b.balances.Get(ws, addr)
	if err != nil {
		return err
	}
	if err := b.balances.Set(ws, addr, bal+amount); err != nil {
		return err
	}
	return b.totalSupply.Set(ws, newSupply)
}

// Burn debits amount from addr and shrinks total supply.
func (b *Bank) Burn(ws *workingset.WorkingSet, addr types.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	bal, _, err := b.balances.Get(ws, addr)
	if err != nil {
		return err
	}
	if bal < amount {
		return errors.Newf("bank: burn exceeds balance: have %d, need %d", bal, amount)
	}
	supply, err := b.TotalSupply(ws)
	if err != nil {
		return err
	}
	if err := b.balances.Set(ws, addr, bal-amount); err != nil {
		return err
	}
	return b.totalSupply.Set(ws, supply-amount)
}
