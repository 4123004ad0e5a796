package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EmptyDocumentYieldsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_OverridesLayerOverDefaults(t *testing.T) {
	doc := `
sandbox:
  timeout: 10s
  max_memory_mb: 256
debate:
  spread_dampening: 0.8
pipeline:
  query_timeout: 45s
log_level: debug
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 256, cfg.Sandbox.MaxMemoryMB)
	assert.Equal(t, "process", cfg.Sandbox.Runtime) // untouched default
	assert.Equal(t, 0.8, cfg.Debate.SpreadDampening)
	assert.Equal(t, 45*time.Second, cfg.Pipeline.QueryTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	// gate weights untouched
	assert.Equal(t, 0.3, cfg.Gate.Weights.TemporalFreshness)
}

func TestParse_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"zero timeout", "sandbox:\n  timeout: 0s"},
		{"bad runtime", "sandbox:\n  runtime: chroot"},
		{"weights not convex", "gate:\n  weights:\n    temporal_freshness: 0.9\n    source_reliability: 0.9\n    script_safety: 0.0\n    cross_check_match: 0.0"},
		{"dampening out of range", "debate:\n  spread_dampening: 1.5"},
		{"bad log level", "log_level: verbose"},
		{"negative retries", "pipeline:\n  max_retries: -1"},
		{"not yaml", ":\t["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verifind.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sandbox:\n  max_memory_mb: 128\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Sandbox.MaxMemoryMB)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConverters(t *testing.T) {
	cfg := Default()
	limits := cfg.SandboxLimits()
	assert.Equal(t, 30*time.Second, limits.Timeout)
	assert.Equal(t, 512, limits.MaxMemoryMB)
	assert.False(t, limits.AllowNetwork)

	syn := cfg.SynthesisConfig()
	assert.Equal(t, 0.5, syn.SpreadDampening)
}
