// Package profile picks the LLM profile for a run and derives the runtime key
// the LLM client is registered under.
package profile

import (
	"maps"

	"manus/internal/config"
)

const keySeparator = ":"

// Resolution is the outcome of resolving a profile for one run.
type Resolution struct {
	// Key identifies the (profile, model) pair, e.g. "default:gpt-4o".
	Key string
	// Config is the effective profile after any model override.
	Config config.LLMConfig
	// Configs maps both config.DefaultProfile and Key to Config.
	Configs map[string]config.LLMConfig
}

// Resolver resolves profiles against a read-only profile store.
type Resolver struct {
	store map[string]config.LLMConfig
}

// NewResolver returns a resolver over a private copy of store. The store is
// expected to contain config.DefaultProfile.
func NewResolver(store map[string]config.LLMConfig) *Resolver {
	return &Resolver{store: maps.Clone(store)}
}

// Resolve returns the configuration for name with model applied when
// non-empty. Unknown names resolve to the default profile. The key is always
// built from the requested name and the effective model.
func (r *Resolver) Resolve(name, model string) Resolution {
	cfg, ok := r.store[name]
	if !ok {
		cfg = r.store[config.DefaultProfile]
	}
	if model != "" {
		cfg = cfg.WithModel(model)
	}

	key := Key(name, cfg.Model)
	return Resolution{
		Key:    key,
		Config: cfg,
		Configs: map[string]config.LLMConfig{
			config.DefaultProfile: cfg,
			key:                   cfg,
		},
	}
}

// Key builds the runtime key for a profile and model.
func Key(name, model string) string {
	return name + keySeparator + model
}
