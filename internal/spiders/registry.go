// Package spiders keeps the catalogue of runnable spiders.
package spiders

import (
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/crawlkit/internal/crawler"
	"github.com/JakeFAU/crawlkit/internal/spiders/loans"
	"github.com/JakeFAU/crawlkit/internal/spiders/turnover"
)

// Factory builds a fresh spider definition.
type Factory func() crawler.Spider

// Registry maps spider names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry holding the bundled spiders.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(turnover.Name, turnover.Spider)
	r.MustRegister(loans.Name, loans.Spider)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("spider name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("spider %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register for start-up code.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Get builds the spider registered under name.
func (r *Registry) Get(name string) (crawler.Spider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return crawler.Spider{}, fmt.Errorf("%w: unknown spider %q", crawler.ErrConfiguration, name)
	}
	return f(), nil
}

// Names lists the registered spiders in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
