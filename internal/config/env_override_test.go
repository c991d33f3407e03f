package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("GOOGLE_API_KEY", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_API_KEY", "google-key")

		cfg := DefaultConfig()
		cfg.LLM.Provider = "other"
		cfg.applyEnvOverrides()

		assert.Equal(t, "google-key", cfg.LLM.APIKey)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
	})

	t.Run("GEMINI_API_KEY wins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_API_KEY", "google-key")
		t.Setenv("GEMINI_API_KEY", "gemini-key")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
	})

	t.Run("model", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("CREDENCE_MODEL", "gemini-pro-test")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini-pro-test", cfg.LLM.Model)
	})

	t.Run("no env leaves file values", func(t *testing.T) {
		clearEnv(t)

		cfg := DefaultConfig()
		cfg.LLM.APIKey = "from-file"
		cfg.applyEnvOverrides()

		assert.Equal(t, "from-file", cfg.LLM.APIKey)
	})
}

func TestEnvOverrides_Store_Server_Logging(t *testing.T) {
	clearEnv(t)
	t.Setenv("CREDENCE_DB", "/tmp/c.db")
	t.Setenv("CREDENCE_BLOB_ROOT", "/tmp/blobs")
	t.Setenv("CREDENCE_ADDR", ":9090")
	t.Setenv("CREDENCE_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "/tmp/c.db", cfg.Store.DatabasePath)
	assert.Equal(t, "/tmp/blobs", cfg.Store.BlobRoot)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
