package module

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/rollkernel/rollkernel/core/types"
)

// ErrAlreadyRegistered is returned by Registry.Register for a duplicate
// address.
var ErrAlreadyRegistered = errors.New("module: address already registered")

// Registry is the STF pipeline's lookup from a module address to its
// handler, built once at startup and read on every dispatched call.
// Adapted from the teacher's pkg/node/service_registry.go mutex-guarded
// name map, narrowed from full service lifecycle management to the single
// operation the STF pipeline actually needs: address -> Module.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
	byAddr  map[types.Address]Module
	txHooks []TxHooks
	blob    []BlobHooks
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byAddr: make(map[types.Address]Module)}
}

// Register adds a module, indexing it by its Address. If the module also
// implements TxHooks and/or BlobHooks, it is additionally registered to
// receive those callbacks in registration order.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	addr := m.Address()
	if _, exists := r.byAddr[addr]; exists {
		return errors.Wrapf(ErrAlreadyRegistered, "module %s at address %s", m.Name(), addr.Hex())
	}
	r.modules = append(r.modules, m)
	r.byAddr[addr] = m

	if h, ok := m.(TxHooks); ok {
		r.txHooks = append(r.txHooks, h)
	}
	if h, ok := m.(BlobHooks); ok {
		r.blob = append(r.blob, h)
	}
	return nil
}

// Handle looks up the module registered at addr.
func (r *Registry) Handle(addr types.Address) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byAddr[addr]
	return m, ok
}

// Modules returns every registered module, in registration order.
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// TxHooks returns every registered TxHooks implementation, in registration
// order. The STF pipeline runs PreDispatch/PostDispatch for all of them
// around every transaction.
func (r *Registry) TxHooks() []TxHooks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TxHooks, len(r.txHooks))
	copy(out, r.txHooks)
	return out
}

// BlobHooks returns every registered BlobHooks implementation, in
// registration order.
func (r *Registry) BlobHooks() []BlobHooks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BlobHooks, len(r.blob))
	copy(out, r.blob)
	return out
}
