package profile

import (
	"testing"

	"manus/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore() map[string]config.LLMConfig {
	return map[string]config.LLMConfig{
		"default": {Model: "gpt-4o", BaseURL: "https://api.openai.com/v1", APIKey: "k1", MaxTokens: 4096},
		"vision":  {Model: "gpt-4o-mini", APIKey: "k2"},
		"local":   {Model: "gemma3:1b", APIType: "ollama"},
	}
}

func TestResolveEntriesAreIdentical(t *testing.T) {
	r := NewResolver(testStore())

	for _, name := range []string{"default", "vision", "local", "missing"} {
		for _, model := range []string{"", "custom-model"} {
			res := r.Resolve(name, model)

			require.Len(t, res.Configs, 2, "name=%s model=%s", name, model)
			assert.Equal(t, res.Config, res.Configs["default"])
			assert.Equal(t, res.Config, res.Configs[res.Key])
		}
	}
}

func TestResolveModelOverride(t *testing.T) {
	r := NewResolver(testStore())

	t.Run("override replaces only the model", func(t *testing.T) {
		res := r.Resolve("vision", "custom-model")

		assert.Equal(t, "custom-model", res.Config.Model)
		assert.Equal(t, "k2", res.Config.APIKey)
		assert.Equal(t, "vision:custom-model", res.Key)
	})

	t.Run("no override keeps the stored model", func(t *testing.T) {
		res := r.Resolve("local", "")

		assert.Equal(t, "gemma3:1b", res.Config.Model)
		assert.Equal(t, "local:gemma3:1b", res.Key)
	})

	t.Run("default with custom model", func(t *testing.T) {
		res := r.Resolve("default", "custom-model")

		assert.Equal(t, "default:custom-model", res.Key)
		assert.Equal(t, "custom-model", res.Configs["default"].Model)
	})
}

func TestResolveUnknownFallsBackToDefault(t *testing.T) {
	r := NewResolver(testStore())

	for _, model := range []string{"", "other"} {
		got := r.Resolve("nope", model)
		want := r.Resolve("default", model)

		assert.Equal(t, want.Config, got.Config)
		// The key keeps the requested name.
		assert.Equal(t, Key("nope", want.Config.Model), got.Key)
	}
}

func TestResolveDoesNotMutateStore(t *testing.T) {
	store := testStore()
	r := NewResolver(store)

	first := r.Resolve("default", "custom-model")
	second := r.Resolve("default", "custom-model")

	assert.Equal(t, first, second)
	assert.Equal(t, "gpt-4o", store["default"].Model)
	assert.Equal(t, "gpt-4o", r.store["default"].Model)

	// Later changes to the caller's map are not visible to the resolver.
	store["default"] = config.LLMConfig{Model: "changed"}
	assert.Equal(t, "gpt-4o", r.Resolve("default", "").Config.Model)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "default:custom-model", Key("default", "custom-model"))
	assert.Equal(t, "local:gemma3:1b", Key("local", "gemma3:1b"))
}
