package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrUnknownProvider is returned when a named provider is not registered.
var ErrUnknownProvider = fmt.Errorf("unknown provider")

// Settings selects and configures the active chat provider.
type Settings struct {
	// Provider names the backend: "openai", "openrouter", or "mock".
	Provider string `mapstructure:"provider" yaml:"provider"`

	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	Model             string        `mapstructure:"model" yaml:"model"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Registry holds named chat providers. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	clients     map[string]LLMClient
	defaultName string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]LLMClient)}
}

// NewRegistryFromSettings builds a registry containing the configured
// provider and marks it as the default.
func NewRegistryFromSettings(s Settings, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := NewRegistry()

	switch s.Provider {
	case "", "openai":
		client, err := NewOpenAIClient(OpenAIConfig{
			APIKey:            s.APIKey,
			Model:             s.Model,
			BaseURL:           s.BaseURL,
			RequestsPerMinute: s.RequestsPerMinute,
			MaxRetries:        s.MaxRetries,
			Timeout:           s.Timeout,
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		r.Register("openai", client)
		r.defaultName = "openai"
	case "openrouter":
		client, err := NewOpenRouterClient(OpenRouterConfig{
			APIKey:            s.APIKey,
			Model:             s.Model,
			BaseURL:           s.BaseURL,
			RequestsPerMinute: s.RequestsPerMinute,
			MaxRetries:        s.MaxRetries,
			Timeout:           s.Timeout,
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		r.Register("openrouter", client)
		r.defaultName = "openrouter"
	case "mock":
		r.Register("mock", NewMockClient(""))
		r.defaultName = "mock"
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, s.Provider)
	}

	logger.Info("provider registry initialized",
		"provider", r.defaultName,
		"model", s.Model)
	return r, nil
}

// Register adds or replaces a named provider.
func (r *Registry) Register(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	if r.defaultName == "" {
		r.defaultName = name
	}
}

// Get returns the named provider.
func (r *Registry) Get(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return client, nil
}

// Default returns the default provider.
func (r *Registry) Default() (LLMClient, error) {
	r.mu.RLock()
	name := r.defaultName
	r.mu.RUnlock()
	if name == "" {
		return nil, fmt.Errorf("%w: no default configured", ErrUnknownProvider)
	}
	return r.Get(name)
}

// SetDefault switches the default provider.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	r.defaultName = name
	return nil
}

// Has reports whether a provider is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[name]
	return ok
}

// List returns registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
