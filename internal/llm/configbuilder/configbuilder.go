// Package configbuilder turns provider configuration into live clients.
package configbuilder

import (
	"fmt"

	"github.com/018kpmanoj/ModelZoo/internal/config"
	"github.com/018kpmanoj/ModelZoo/internal/llm"
	llmazure "github.com/018kpmanoj/ModelZoo/internal/llm/providers/azure"
	llmmockai "github.com/018kpmanoj/ModelZoo/internal/llm/providers/mockai"
	llmopenai "github.com/018kpmanoj/ModelZoo/internal/llm/providers/openai"
)

// Set is the provider collection built from configuration. MockMode is true
// when at least one real provider was downgraded to the mock client because
// its credentials are missing.
type Set struct {
	Providers map[string]llm.Provider
	MockMode  bool
}

// Build constructs providers from config. An azure or openai provider with no
// endpoint or api_key is replaced by the deterministic mock client so the
// stack runs offline.
func Build(cfg *config.Config) (*Set, error) {
	set := &Set{Providers: make(map[string]llm.Provider, len(cfg.Providers))}

	for name, pCfg := range cfg.Providers {
		p, downgraded, err := buildProvider(name, pCfg)
		if err != nil {
			return nil, err
		}
		if downgraded {
			set.MockMode = true
		}
		set.Providers[name] = p
	}

	return set, nil
}

func buildProvider(name string, cfg config.ProviderConfig) (llm.Provider, bool, error) {
	switch cfg.Type {
	case "azure":
		if cfg.Endpoint == "" || cfg.APIKey == "" {
			return llmmockai.NewProvider(name), true, nil
		}
		return llmazure.NewProvider(name, cfg.Endpoint, cfg.APIKey, cfg.APIVersion, cfg.Timeout), false, nil
	case "openai":
		if cfg.APIKey == "" {
			return llmmockai.NewProvider(name), true, nil
		}
		return llmopenai.NewProvider(name, cfg.Endpoint, cfg.APIKey, cfg.Timeout), false, nil
	case "mock":
		return llmmockai.NewProvider(name), false, nil
	default:
		return nil, false, fmt.Errorf("unknown provider type %q for provider %s", cfg.Type, name)
	}
}
