package zkvm

import (
	"errors"
	"sync"

	"github.com/rollkernel/rollkernel/core/types"
	"github.com/rollkernel/rollkernel/crypto"
)

var (
	ErrNilGuestContext    = errors.New("zkvm: nil guest context")
	ErrEmptyBlockData     = errors.New("zkvm: empty block data")
	ErrGuestPanicked      = errors.New("zkvm: guest execution panicked")
	errGuestAlreadyExecuted = errors.New("zkvm: guest context already executed")
)

// GuestContext is the state a guest program boots with inside the zkVM:
// the pre-state root it starts from, the witness it may read from (in zk
// mode this replaces direct storage access entirely), and the chain it is
// executing for. A context executes exactly once.
type GuestContext struct {
	mu        sync.Mutex
	stateRoot types.Hash
	witness   []byte
	chainID   uint64
	executed  bool
}

// NewGuestContext creates a guest context for chain 0.
func NewGuestContext(stateRoot types.Hash, witness []byte) *GuestContext {
	return NewGuestContextWithChain(stateRoot, witness, 0)
}

// NewGuestContextWithChain creates a guest context bound to a specific chain ID.
func NewGuestContextWithChain(stateRoot types.Hash, witness []byte, chainID uint64) *GuestContext {
	return &GuestContext{
		stateRoot: stateRoot,
		witness:   witness,
		chainID:   chainID,
	}
}

func (c *GuestContext) StateRoot() types.Hash { return c.stateRoot }
func (c *GuestContext) Witness() []byte       { return c.witness }
func (c *GuestContext) ChainID() uint64       { return c.chainID }

func (c *GuestContext) IsExecuted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executed
}

func (c *GuestContext) markExecuted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.executed {
		return errGuestAlreadyExecuted
	}
	c.executed = true
	return nil
}

// ExecuteBlock marks ctx executed and returns a post-state root derived as
// Keccak256(stateRoot, witness, blockData). It does not decode blockData or
// run its transactions; slot execution goes through stf.Pipeline (see
// STFExecutor).
func ExecuteBlock(ctx *GuestContext, blockData []byte) (types.Hash, error) {
	if ctx == nil {
		return types.Hash{}, ErrNilGuestContext
	}
	if len(blockData) == 0 {
		return types.Hash{}, ErrEmptyBlockData
	}
	if err := ctx.markExecuted(); err != nil {
		return types.Hash{}, err
	}
	return crypto.Keccak256Hash(ctx.stateRoot[:], ctx.witness, blockData), nil
}

// ExecuteBlockFull runs ExecuteBlock and additionally derives a receipts
// root as Keccak256(post, blockData) and a gas figure of 16 per byte of
// blockData plus 21000.
// It always returns a non-nil *ExecutionResult, even on failure, so
// callers can report the pre-state root that was attempted.
func ExecuteBlockFull(ctx *GuestContext, blockData []byte) (*ExecutionResult, error) {
	result := &ExecutionResult{}
	if ctx != nil {
		result.PreStateRoot = ctx.StateRoot()
	}

	post, err := ExecuteBlock(ctx, blockData)
	if err != nil {
		result.Success = false
		return result, err
	}

	result.PostStateRoot = post
	result.ReceiptsRoot = crypto.Keccak256Hash(post[:], blockData)
	result.GasUsed = uint64(len(blockData))*16 + 21000
	result.Success = true
	return result, nil
}
