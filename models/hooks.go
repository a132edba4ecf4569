package models

import (
	"sync"

	"github.com/google/uuid"
	G "gorgonia.org/gorgonia"
)

// ForwardHook is called when Forward passes the layer it is registered on.
//
// output is the layer's node in the graph being built. Its value becomes
// available once a machine has run the graph, and is overwritten by the next
// run, so callers copy what they need.
type ForwardHook func(layer int, output *G.Node)

// HookHandle detaches a registered hook.
type HookHandle struct {
	id       uuid.UUID
	layer    int
	registry *hookRegistry
}

// ID returns the unique identifier of the registration.
func (h *HookHandle) ID() uuid.UUID {
	return h.id
}

// Layer returns the layer the hook is attached to.
func (h *HookHandle) Layer() int {
	return h.layer
}

// Remove detaches the hook. Calling it more than once is a no-op.
func (h *HookHandle) Remove() {
	h.registry.remove(h.layer, h.id)
}

type registeredHook struct {
	id   uuid.UUID
	hook ForwardHook
}

// hookRegistry keeps hooks per layer in registration order.
type hookRegistry struct {
	mu    sync.Mutex
	hooks map[int][]registeredHook
}

func newHookRegistry() *hookRegistry {
	return &hookRegistry{hooks: make(map[int][]registeredHook)}
}

func (r *hookRegistry) add(layer int, hook ForwardHook) *HookHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	r.hooks[layer] = append(r.hooks[layer], registeredHook{id: id, hook: hook})
	return &HookHandle{id: id, layer: layer, registry: r}
}

func (r *hookRegistry) remove(layer int, id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hooks := r.hooks[layer]
	for i, h := range hooks {
		if h.id == id {
			r.hooks[layer] = append(hooks[:i:i], hooks[i+1:]...)
			break
		}
	}
	if len(r.hooks[layer]) == 0 {
		delete(r.hooks, layer)
	}
}

func (r *hookRegistry) fire(layer int, output *G.Node) {
	r.mu.Lock()
	hooks := append([]registeredHook(nil), r.hooks[layer]...)
	r.mu.Unlock()

	for _, h := range hooks {
		h.hook(layer, output)
	}
}

func (r *hookRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, hooks := range r.hooks {
		n += len(hooks)
	}
	return n
}
