package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	require.Equal(t, ":8080", cfg.HTTP.Address)
	require.Equal(t, 2*time.Hour, cfg.Ingest.DedupWindow)
	require.InDelta(t, 0.375, cfg.Ingest.ToleranceKm["VIIRS"], 1e-9)
	require.Equal(t, 100, cfg.Model.Trees)
	require.Equal(t, 7, cfg.Model.HorizonDays)
	require.InDelta(t, 0.2, cfg.Model.DefaultGridSize, 1e-9)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDRESS", ":9999")
	t.Setenv("FIRMS_API_KEY", "secret-key")
	t.Setenv("DEDUP_WINDOW", "90m")
	t.Setenv("MODEL_TREES", "25")
	t.Setenv("EVENTS_ENABLED", "true")
	t.Setenv("EVENTS_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("AUTH_ENABLED", "1")
	t.Setenv("AUTH_SECRET", "op-secret")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	require.Equal(t, ":9999", cfg.HTTP.Address)
	require.Equal(t, "secret-key", cfg.Firms.APIKey)
	require.Equal(t, 90*time.Minute, cfg.Ingest.DedupWindow)
	require.Equal(t, 25, cfg.Model.Trees)
	require.True(t, cfg.Events.Enabled)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Brokers)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "op-secret", cfg.Auth.Secret)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted latitudes", func(c *Config) { c.Ingest.LatMin = 40 }},
		{"zero dedup window", func(c *Config) { c.Ingest.DedupWindow = 0 }},
		{"negative tolerance", func(c *Config) { c.Ingest.ToleranceKm["MODIS"] = -1 }},
		{"zero trees", func(c *Config) { c.Model.Trees = 0 }},
		{"zero horizon", func(c *Config) { c.Model.HorizonDays = 0 }},
		{"cache without addr", func(c *Config) { c.Cache.Enabled = true; c.Cache.Addr = "" }},
		{"events without brokers", func(c *Config) { c.Events.Enabled = true }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestHydrateFromFile(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	payload := []byte("http:\n  address: \":7070\"\ningest:\n  latMin: 18\n")
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	cfg := defaultConfig()
	require.NoError(t, hydrateFromFile(cfg, path))
	require.Equal(t, ":7070", cfg.HTTP.Address)
	require.InDelta(t, 18, cfg.Ingest.LatMin, 1e-9)
	// Untouched sections keep their defaults.
	require.Equal(t, 100, cfg.Model.Trees)
}
