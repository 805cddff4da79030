package feeders

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinConfig struct {
	Cache string `yaml:"cache" toml:"cache" json:"cache"`
}

type fileConfig struct {
	Name  string               `yaml:"name" toml:"name" json:"name"`
	Pins  map[string]pinConfig `yaml:"pins" toml:"pins" json:"pins"`
	Hints []string             `yaml:"hints" toml:"hints" json:"hints"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileFeeders(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "hotswap.yaml",
			content: `name: edge
pins:
  adapter:
    cache: redis
hints: [vendor, third_party]
`,
		},
		{
			name: "toml",
			file: "hotswap.toml",
			content: `name = "edge"
hints = ["vendor", "third_party"]

[pins.adapter]
cache = "redis"
`,
		},
		{
			name:    "json",
			file:    "hotswap.json",
			content: `{"name": "edge", "pins": {"adapter": {"cache": "redis"}}, "hints": ["vendor", "third_party"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			f, err := ForFile(path)
			require.NoError(t, err)

			var cfg fileConfig
			require.NoError(t, f.Feed(&cfg))
			assert.Equal(t, "edge", cfg.Name)
			assert.Equal(t, "redis", cfg.Pins["adapter"].Cache)
			assert.Equal(t, []string{"vendor", "third_party"}, cfg.Hints)

			var pins map[string]pinConfig
			require.NoError(t, f.FeedKey("pins", &pins))
			assert.Equal(t, map[string]pinConfig{"adapter": {Cache: "redis"}}, pins)

			var missing []string
			require.NoError(t, f.FeedKey("absent", &missing))
			assert.Nil(t, missing)
		})
	}

	t.Run("should_reject_unknown_extension", func(t *testing.T) {
		_, err := ForFile("hotswap.ini")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("should_report_missing_file", func(t *testing.T) {
		f, err := ForFile(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Error(t, f.FeedKey("pins", &map[string]pinConfig{}))
	})
}

type upperText string

func (u *upperText) UnmarshalText(b []byte) error {
	*u = upperText(strings.ToUpper(string(b)))
	return nil
}

type envNested struct {
	Addr string `env:"HTTP_ADDR"`
}

type envConfig struct {
	Path     string        `env:"SNAPSHOT_PATH"`
	Window   int           `env:"SWAP_WINDOW"`
	Enabled  bool          `env:"HEALTH_ENABLED"`
	Timeout  time.Duration `env:"TIMEOUT"`
	Level    upperText     `env:"LOG_LEVEL"`
	Allow    []string      `env:"ALLOW"`
	HTTP     envNested
	Ptr      *envNested
	Untagged string
}

func TestAffixedEnvFeeder(t *testing.T) {
	t.Run("should_populate_tagged_fields", func(t *testing.T) {
		t.Setenv("HOTSWAP_SNAPSHOT_PATH", "/var/lib/hotswap/status.json")
		t.Setenv("HOTSWAP_SWAP_WINDOW", "7")
		t.Setenv("HOTSWAP_HEALTH_ENABLED", "true")
		t.Setenv("HOTSWAP_LOG_LEVEL", "debug")
		t.Setenv("HOTSWAP_ALLOW", "acme.adapters, acme.services,")
		t.Setenv("HOTSWAP_HTTP_ADDR", ":9090")

		cfg := envConfig{Ptr: &envNested{}, Untagged: "kept"}
		require.NoError(t, NewAffixedEnvFeeder("HOTSWAP_", "").Feed(&cfg))

		assert.Equal(t, "/var/lib/hotswap/status.json", cfg.Path)
		assert.Equal(t, 7, cfg.Window)
		assert.True(t, cfg.Enabled)
		assert.Equal(t, upperText("DEBUG"), cfg.Level)
		assert.Equal(t, []string{"acme.adapters", "acme.services"}, cfg.Allow)
		assert.Equal(t, ":9090", cfg.HTTP.Addr)
		assert.Equal(t, ":9090", cfg.Ptr.Addr)
		assert.Equal(t, "kept", cfg.Untagged)
	})

	t.Run("should_apply_suffix", func(t *testing.T) {
		f := NewAffixedEnvFeeder("app", "prod")
		assert.Equal(t, "APP_SNAPSHOT_PATH_PROD", f.EnvName("snapshot_path"))
	})

	t.Run("should_reject_invalid_input", func(t *testing.T) {
		var cfg envConfig
		assert.ErrorIs(t, NewAffixedEnvFeeder("", "").Feed(&cfg), ErrEnvEmptyPrefixAndSuffix)
		assert.ErrorIs(t, NewAffixedEnvFeeder("X", "").Feed(cfg), ErrEnvInvalidStructure)
		assert.ErrorIs(t, NewAffixedEnvFeeder("X", "").Feed(nil), ErrEnvInvalidStructure)
	})

	t.Run("should_report_conversion_errors", func(t *testing.T) {
		t.Setenv("BAD_SWAP_WINDOW", "twenty")
		var cfg envConfig
		err := NewAffixedEnvFeeder("BAD", "").Feed(&cfg)
		assert.ErrorIs(t, err, ErrCannotConvert)
		assert.Contains(t, err.Error(), "Window")
	})
}

func TestSetField(t *testing.T) {
	var target struct{ N int64 }
	v := reflect.ValueOf(&target).Elem().Field(0)
	require.NoError(t, SetField(v, "42"))
	assert.EqualValues(t, 42, target.N)

	assert.ErrorIs(t, SetField(reflect.ValueOf(target).Field(0), "1"), ErrFieldCannotBeSet)
}
