package llm

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pipelineforge/pipelineforge/internal/config"
)

// ProviderInfo is the registry's metadata about one provider.
type ProviderInfo struct {
	ID              string
	DisplayName     string
	AvailableModels []string
	Enabled         bool
	ActiveModel     string
}

// Registry tracks every known provider's metadata and the process-wide
// active provider, with runtime switching. The active
// provider is guarded by a read-write lock: switches are infrequent,
// reads take the read side and snapshot the active id.
type Registry struct {
	mu       sync.RWMutex
	cfg      config.LLMConfig
	logger   *logrus.Logger
	active   string
	providers map[string]*ProviderInfo
}

func defaultProviders() map[string]*ProviderInfo {
	return map[string]*ProviderInfo{
		"local": {
			ID:              "local",
			DisplayName:     "Local inference server",
			AvailableModels: []string{"codellama", "qwen2.5-coder"},
			Enabled:         true,
		},
		"cli": {
			ID:              "cli",
			DisplayName:     "CLI-wrapped agent",
			AvailableModels: []string{"default"},
			Enabled:         true,
		},
		"anthropic": {
			ID:              "anthropic",
			DisplayName:     "Anthropic (Messages API)",
			AvailableModels: []string{"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			Enabled:         os.Getenv("ANTHROPIC_API_KEY") != "",
		},
		"bedrock": {
			ID:              "bedrock",
			DisplayName:     "AWS Bedrock",
			AvailableModels: []string{"anthropic.claude-3-5-sonnet-20240620-v1:0"},
			Enabled:         os.Getenv("AWS_REGION") != "" || os.Getenv("AWS_PROFILE") != "",
		},
		"langchain": {
			ID:              "langchain",
			DisplayName:     "langchaingo (Ollama-compatible)",
			AvailableModels: []string{"llama3.1", "qwen2.5-coder"},
			Enabled:         true,
		},
	}
}

// NewRegistry builds a Registry whose initial active provider is
// cfg.Provider.
func NewRegistry(cfg config.LLMConfig, logger *logrus.Logger) *Registry {
	return &Registry{
		cfg:       cfg,
		logger:    logger,
		active:    cfg.Provider,
		providers: defaultProviders(),
	}
}

// List returns every registered provider's metadata.
func (r *Registry) List() []ProviderInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, *p)
	}
	return out
}

// GetActive returns the currently active provider's id.
func (r *Registry) GetActive() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// SetActive switches the process-wide active provider. It affects every
// subsequent Instance()/generate call and no earlier one, never an
// in-flight one. An empty model leaves the provider's current active
// model unchanged.
func (r *Registry) SetActive(id string, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.providers[id]
	if !ok {
		return fmt.Errorf("llm: unknown provider: %s", id)
	}
	if !info.Enabled {
		return fmt.Errorf("llm: provider %q is not enabled (missing credentials)", id)
	}
	if model != "" {
		if !containsModel(info.AvailableModels, model) {
			return fmt.Errorf("llm: model %q not available for provider %q", model, id)
		}
		info.ActiveModel = model
	}

	r.active = id
	return nil
}

func containsModel(models []string, model string) bool {
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}

// Instance builds a Client for id, or for the active provider if id is
// empty.
func (r *Registry) Instance(id string) (Client, error) {
	r.mu.RLock()
	if id == "" {
		id = r.active
	}
	info, ok := r.providers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("llm: unknown provider: %s", id)
	}

	cfg := r.cfg
	cfg.Provider = id
	if info.ActiveModel != "" {
		cfg.Model = info.ActiveModel
	}
	return NewClient(cfg, r.logger)
}
