package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nimazasinich/crypto-dt-source-sub009/config"
	"github.com/nimazasinich/crypto-dt-source-sub009/errors"
)

// Registry is the thread-safe provider table. Names are case-insensitive.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Default creates a registry seeded with the built-in provider set.
func Default() *Registry {
	r := New()
	for _, p := range Defaults() {
		// The built-in set is static and valid.
		_ = r.Add(p)
	}
	return r
}

// Add registers a provider. Duplicate names are rejected.
func (r *Registry) Add(p Provider) error {
	if err := p.Validate(); err != nil {
		return err
	}

	key := strings.ToLower(p.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("provider %q is already registered", p.Name),
			"Registry", "Add", "duplicate provider check")
	}

	r.providers[key] = p
	return nil
}

// Get looks up a provider by name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// All returns every registered provider, sorted by name.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(Provider) bool { return true })
}

// Enabled returns the providers the pollers should work, sorted by name.
func (r *Registry) Enabled() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(p Provider) bool { return p.Enabled })
}

// ByCategory returns enabled providers in one category, sorted by name.
func (r *Registry) ByCategory(category string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked(func(p Provider) bool {
		return p.Enabled && p.Category == category
	})
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

func (r *Registry) sortedLocked(keep func(Provider) bool) []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Apply overlays config entries onto the registry. An overlay naming a
// registered provider adjusts it: non-empty strings replace, a non-nil
// Enabled flips the flag, and RequiresKey is left as registered (the
// registry knows which providers are key-gated). An overlay naming an
// unknown provider registers it outright; such entries need at least a
// base URL and health path, default to the market category, and default
// Enabled to whether a key requirement is satisfied.
func (r *Registry) Apply(overlays ...config.ProviderConfig) error {
	for _, o := range overlays {
		if o.Name == "" {
			return errors.WrapInvalid(
				fmt.Errorf("provider overlay without a name"),
				"Registry", "Apply", "check overlay")
		}

		existing, ok := r.Get(o.Name)
		if !ok {
			p := Provider{
				Name:        o.Name,
				BaseURL:     o.BaseURL,
				Category:    o.Category,
				Endpoints:   Endpoints{Health: o.HealthPath, Market: o.MarketPath},
				RequiresKey: o.RequiresKey,
				APIKey:      o.APIKey,
			}
			if p.Category == "" {
				p.Category = CategoryMarket
			}
			if o.Enabled != nil {
				p.Enabled = *o.Enabled
			} else {
				p.Enabled = !p.RequiresKey || p.APIKey != ""
			}
			if err := r.Add(p); err != nil {
				return err
			}
			continue
		}

		if o.BaseURL != "" {
			existing.BaseURL = o.BaseURL
		}
		if o.Category != "" {
			existing.Category = o.Category
		}
		if o.HealthPath != "" {
			existing.Endpoints.Health = o.HealthPath
		}
		if o.MarketPath != "" {
			existing.Endpoints.Market = o.MarketPath
		}
		if o.APIKey != "" {
			existing.APIKey = o.APIKey
		}
		if o.Enabled != nil {
			existing.Enabled = *o.Enabled
		}

		if err := existing.Validate(); err != nil {
			return err
		}

		r.mu.Lock()
		r.providers[strings.ToLower(existing.Name)] = existing
		r.mu.Unlock()
	}

	return nil
}
