// internal/llmclient/factory_test.go
package llmclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planopticon/planopticon/internal/config"
)

func TestNewClient(t *testing.T) {
	t.Run("Gemini", func(t *testing.T) {
		client, err := NewClient(getValidLLMConfig(), setupTestLogger(t))
		require.NoError(t, err)
		defer client.Close()
		assert.IsType(t, &GeminiClient{}, client)
	})

	t.Run("EmptyProviderDefaultsToGemini", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.Provider = ""
		client, err := NewClient(cfg, setupTestLogger(t))
		require.NoError(t, err)
		defer client.Close()
		assert.IsType(t, &GeminiClient{}, client)
	})

	t.Run("UnknownProvider", func(t *testing.T) {
		cfg := getValidLLMConfig()
		cfg.Provider = "openai"
		_, err := NewClient(cfg, setupTestLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai")
	})
}

func TestNewRouter(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		cfg := config.LLMRouterConfig{
			DefaultFastModel:     "gemini-2.5-flash",
			DefaultPowerfulModel: "gemini-2.5-pro",
			Models: map[string]config.LLMModelConfig{
				config.TierKeyFast:     {Provider: config.ProviderGemini, APIKey: "k"},
				config.TierKeyPowerful: {Provider: config.ProviderGemini, APIKey: "k"},
			},
		}

		router, err := NewRouter(cfg, setupTestLogger(t))
		require.NoError(t, err)
		defer router.Close()
		assert.IsType(t, &LLMRouter{}, router)
	})

	t.Run("TierKeysCarryCredentials", func(t *testing.T) {
		// Keys arriving under the tier entries (the env-binding path) must be
		// enough to build both clients.
		cfg := config.LLMRouterConfig{
			DefaultFastModel:     "gemini-2.5-flash",
			DefaultPowerfulModel: "gemini-2.5-pro",
			Models: map[string]config.LLMModelConfig{
				config.TierKeyFast:     {APIKey: "env-secret"},
				config.TierKeyPowerful: {APIKey: "env-secret"},
			},
		}

		router, err := NewRouter(cfg, setupTestLogger(t))
		require.NoError(t, err)
		defer router.Close()
	})

	t.Run("MissingAPIKey", func(t *testing.T) {
		cfg := config.LLMRouterConfig{
			DefaultFastModel:     "gemini-2.5-flash",
			DefaultPowerfulModel: "gemini-2.5-pro",
		}
		_, err := NewRouter(cfg, setupTestLogger(t))
		require.Error(t, err)
	})
}
