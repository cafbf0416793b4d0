package vm

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tolelom/tolmarket/core"
)

// ErrUnknownTxType is returned for a transaction type no module handles.
var ErrUnknownTxType = errors.New("unknown tx type")

// Handler applies one transaction's payload to ctx.State.
type Handler func(ctx *Context, payload json.RawMessage) error

// Registry maps TxTypes to Handlers. Thread-safe for concurrent registration.
type Registry struct {
	mu       sync.RWMutex
	handlers map[core.TxType]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[core.TxType]Handler)}
}

// Register associates typ with h. Panics on duplicate registration.
func (r *Registry) Register(typ core.TxType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("vm: handler already registered for TxType %q", typ))
	}
	r.handlers[typ] = h
}

// Has reports whether typ has a handler.
func (r *Registry) Has(typ core.TxType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[typ]
	return ok
}

// Types lists the registered types in sorted order.
func (r *Registry) Types() []core.TxType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]core.TxType, 0, len(r.handlers))
	for typ := range r.handlers {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Execute dispatches payload to the handler registered for typ.
func (r *Registry) Execute(typ core.TxType, ctx *Context, payload json.RawMessage) error {
	r.mu.RLock()
	h, ok := r.handlers[typ]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTxType, typ)
	}
	return h(ctx, payload)
}

// globalRegistry holds the handlers of every linked-in module.
var globalRegistry = NewRegistry()

// Register adds a handler to the global registry. Modules call it from init.
func Register(typ core.TxType, h Handler) {
	globalRegistry.Register(typ, h)
}

// Supported reports whether a linked-in module handles typ.
func Supported(typ core.TxType) bool {
	return globalRegistry.Has(typ)
}

// SupportedTypes lists the tx types of every linked-in module.
func SupportedTypes() []core.TxType {
	return globalRegistry.Types()
}
