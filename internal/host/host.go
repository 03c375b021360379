// Package host is the transport boundary to the page host's capability surface.
//
// Capabilities are invoked by name with an opaque JSON payload and answer with an
// opaque JSON result. The package knows nothing about outcome strings or payload
// shapes; decoding and classification belong to the gateway.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Capability names of the wx_api namespace.
const (
	CapConfig      = "config"
	CapCheckJSAPI  = "checkJsApi"
	CapChooseImage = "chooseImage"
	CapUploadImage = "uploadImage"
	CapPay         = "pay"
	CapCloseWindow = "closeWindow"
)

var ErrUnknownCapability = errors.New("host capability is not registered")

// ForeignError is a host-level rejection: a thrown exception or a rejected
// promise, as opposed to a failure reported in-band by the result envelope.
type ForeignError struct {
	Capability string
	Message    string
}

func (e *ForeignError) Error() string {
	return fmt.Sprintf("host %s failed: %s", e.Capability, e.Message)
}

// Host invokes asynchronous host capabilities.
type Host interface {
	Invoke(ctx context.Context, capability string, payload json.RawMessage) (json.RawMessage, error)
}

// InvokeFunc is one registered capability.
type InvokeFunc func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Registry maps capability names to invoke functions. It is the injection point
// for real hosts and scripted test doubles alike.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]InvokeFunc
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]InvokeFunc)}
}

// Register binds fn to name, replacing any earlier binding.
func (r *Registry) Register(name string, fn InvokeFunc) {
	name = strings.TrimSpace(name)
	if name == "" || fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Invoke(ctx context.Context, capability string, payload json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	fn, ok := r.funcs[capability]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, capability)
	}
	return fn(ctx, payload)
}

// Forward registers every name as a pass-through to h.
func (r *Registry) Forward(h Host, names ...string) {
	for _, name := range names {
		capability := name
		r.Register(capability, func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
			return h.Invoke(ctx, capability, payload)
		})
	}
}
