package provider

import (
	"strings"
	"sync"

	"ccr/dom"
)

// Registry holds providers in priority order.
// Providers are checked in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewRegistry creates a registry holding ps in the given order.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register appends a provider with the lowest priority so far.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, p)
}

// Providers returns a copy of the registered providers.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Names returns the registered provider names in priority order.
func (r *Registry) Names() []string {
	ps := r.Providers()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// ReadySelector joins the readiness selectors of every provider into one
// selector group, so that a single wait covers all of them.
func (r *Registry) ReadySelector() string {
	var sels []string
	for _, p := range r.Providers() {
		if s := p.ReadySelector(); s != "" {
			sels = append(sels, s)
		}
	}
	return strings.Join(sels, ", ")
}

// Recognize returns the first provider, in priority order, that recognizes
// doc. Providers after it are not asked.
func (r *Registry) Recognize(doc *dom.Document) Provider {
	for _, p := range r.Providers() {
		if p.IsRecognized(doc) {
			return p
		}
	}
	return nil
}
