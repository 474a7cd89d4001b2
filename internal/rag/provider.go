package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/deepwiki-go/repochat/internal/config"
)

// ErrProviderNotRegistered is returned when a request names a provider that
// is unknown or was not configured.
var ErrProviderNotRegistered = errors.New("provider not registered")

// Fragment is one piece of a streamed answer. A fragment with Err set is the
// last one on its channel.
type Fragment struct {
	Text string
	Err  error
}

// GenerateParams carries per-call generation settings
type GenerateParams struct {
	Model       string
	Temperature float32
	TopP        float32
}

// Generator streams completions for a prompt from one model provider.
type Generator interface {
	// Name returns the provider's unique name
	Name() string
	// DefaultModel is used when a request does not name a model
	DefaultModel() string
	// Generate starts a completion. Errors that happen before the first
	// fragment may be returned directly; later ones arrive as a Fragment.
	// The channel is closed when the stream ends or ctx is done.
	Generate(ctx context.Context, prompt string, params GenerateParams) (<-chan Fragment, error)
	// Close releases client resources
	Close() error
}

// ProviderRegistry holds the generators that can serve requests
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Generator
	active    string
}

// NewProviderRegistry creates an empty registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]Generator),
	}
}

// NewConfiguredRegistry registers every provider whose configuration is
// usable and makes the configured default active when it is among them.
func NewConfiguredRegistry(ctx context.Context, cfg *config.Config) *ProviderRegistry {
	r := NewProviderRegistry()

	if cfg.Google.ProjectID != "" {
		g, err := NewGoogleGenerator(ctx, cfg)
		if err != nil {
			log.Printf("Warning: Google provider unavailable: %v", err)
		} else {
			r.Register(g)
		}
	}
	if cfg.OpenAI.APIKey != "" {
		r.Register(NewOpenAIGenerator("openai", cfg.OpenAI, cfg.Timeouts.HTTP))
	}
	if cfg.OpenRouter.APIKey != "" {
		r.Register(NewOpenAIGenerator("openrouter", cfg.OpenRouter, cfg.Timeouts.HTTP))
	}
	if o, err := NewOllamaGenerator(cfg); err != nil {
		log.Printf("Warning: Ollama provider unavailable: %v", err)
	} else {
		r.Register(o)
	}
	if b, err := NewBedrockGenerator(ctx, cfg); err != nil {
		log.Printf("Warning: Bedrock provider unavailable: %v", err)
	} else {
		r.Register(b)
	}

	if err := r.SetActive(cfg.Generator.Provider); err != nil {
		log.Printf("Warning: default provider %q is not configured, using %q", cfg.Generator.Provider, r.ActiveName())
	}
	return r
}

// Register adds a generator. The first registered generator becomes active.
func (r *ProviderRegistry) Register(g Generator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := g.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.providers[name] = g
	if r.active == "" {
		r.active = name
	}
	log.Printf("Registered provider %s (default model %s)", name, g.DefaultModel())
	return nil
}

// SetActive selects the generator used when a request names none
func (r *ProviderRegistry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotRegistered, name)
	}
	r.active = name
	return nil
}

// ActiveName returns the name of the active generator, or "" if none.
func (r *ProviderRegistry) ActiveName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Get resolves a provider name; an empty name means the active provider.
func (r *ProviderRegistry) Get(name string) (Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.active
	}
	g, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, name)
	}
	return g, nil
}

// ProviderInfo describes a registered provider for the model catalogue
type ProviderInfo struct {
	Name         string `json:"name"`
	DefaultModel string `json:"default_model"`
	Active       bool   `json:"active"`
}

// List returns registered providers sorted by name
func (r *ProviderRegistry) List() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ProviderInfo, 0, len(r.providers))
	for name, g := range r.providers {
		infos = append(infos, ProviderInfo{Name: name, DefaultModel: g.DefaultModel(), Active: name == r.active})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Unregister removes a generator and closes it. If it was active another
// registered generator takes its place.
func (r *ProviderRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, exists := r.providers[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrProviderNotRegistered, name)
	}
	delete(r.providers, name)

	if r.active == name {
		r.active = ""
		for other := range r.providers {
			r.active = other
			break
		}
	}

	if err := g.Close(); err != nil {
		return fmt.Errorf("close provider %s: %w", name, err)
	}
	return nil
}

// Close closes every registered generator
func (r *ProviderRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, g := range r.providers {
		if err := g.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider %s: %w", name, err))
		}
	}
	r.providers = make(map[string]Generator)
	r.active = ""
	return errors.Join(errs...)
}

// send delivers a fragment unless ctx ends first.
func send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}
