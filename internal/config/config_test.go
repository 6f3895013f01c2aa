package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:13331", cfg.Listen)
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.Latency.Std())
	assert.Equal(t, 10*time.Second, cfg.NRT.Timeout.Std())
	assert.Equal(t, SpacingAfter, cfg.NRT.Spacing)
	assert.Equal(t, []string{"batch-send"}, cfg.FunnelTags)
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := Parse([]byte(`
listen: 0.0.0.0:9000
engine:
  latency: 20ms
nrt:
  spacing: before
  timeout: 1m
funnel_tags: [batch-send, group]
bpm: 90
`))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, 20*time.Millisecond, cfg.Engine.Latency.Std())
	assert.Equal(t, "127.0.0.1:13337", cfg.Engine.Scsynth, "unset fields keep defaults")
	assert.Equal(t, SpacingBefore, cfg.NRT.Spacing)
	assert.Equal(t, time.Minute, cfg.NRT.Timeout.Std())
	assert.Equal(t, []string{"batch-send", "group"}, cfg.FunnelTags)
	assert.Equal(t, 90.0, cfg.BPM)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad duration":  "engine:\n  latency: soon\n",
		"bad spacing":   "nrt:\n  spacing: sideways\n",
		"empty address": "engine:\n  scsynth: \"\"\n",
		"zero timeout":  "nrt:\n  timeout: 0s\n",
		"zero bpm":      "bpm: 0\n",
		"bad done addr": "nrt:\n  done_address: done\n",
		"bad format":    "log:\n  format: xml\n",
		"not yaml":      "listen: [\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bpm: 140\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 140.0, cfg.BPM)

	t.Setenv(EnvVar, path)
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 140.0, cfg.BPM)

	t.Setenv(EnvVar, "")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDuration_MarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{Duration(1500 * time.Millisecond)})
	require.NoError(t, err)
	assert.Equal(t, "d: 1.5s\n", string(out))
}
