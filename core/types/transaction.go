package types

import "sync/atomic"

// Transaction is the module-ABI envelope every batch decodes into: an
// opaque runtime message addressed to a module, signed by an account, with
// the nonce/gas/chain fields the STF's pre-dispatch hook inspects before
// any module code runs. It replaces the teacher's Ethereum tx-type zoo
// (legacy/access-list/dynamic-fee/blob/set-code) -- the rollup has exactly
// one wire shape, not five.
type Transaction struct {
	RuntimeMsg []byte
	PubKey     []byte
	Signature  []byte
	Nonce      uint64
	ChainID    uint64
	GasTip     uint64
	GasLimit   uint64

	hash atomic.Pointer[Hash]
	from atomic.Pointer[Address]
}

// NewTransaction builds a Transaction, copying all byte-slice fields so the
// caller's buffers can be reused or mutated afterward.
func NewTransaction(runtimeMsg, pubKey, signature []byte, nonce, chainID, gasTip, gasLimit uint64) *Transaction {
	return &Transaction{
		RuntimeMsg: copyBytes(runtimeMsg),
		PubKey:     copyBytes(pubKey),
		Signature:  copyBytes(signature),
		Nonce:      nonce,
		ChainID:    chainID,
		GasTip:     gasTip,
		GasLimit:   gasLimit,
	}
}

// SetSender caches the sender address recovered from PubKey/Signature.
func (tx *Transaction) SetSender(addr Address) {
	a := addr
	tx.from.Store(&a)
}

// Sender returns the cached sender address, or nil if not yet recovered.
func (tx *Transaction) Sender() *Address {
	return tx.from.Load()
}

// Hash returns the transaction hash, caching on first call. Callers supply
// the digest (crypto.Keccak256Hash over the encoded envelope) once and it
// sticks for the lifetime of the Transaction.
func (tx *Transaction) Hash() Hash {
	if h := tx.hash.Load(); h != nil {
		return *h
	}
	return Hash{}
}

// SetHash caches a precomputed transaction hash.
func (tx *Transaction) SetHash(h Hash) {
	tx.hash.Store(&h)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cpy := make([]byte, len(b))
	copy(cpy, b)
	return cpy
}
