package cmd_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/hotswap/cmd/hotswapctl/cmd"
	"github.com/GoCodeAlone/hotswap/lifecycle"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := cmd.NewRootCommand()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const cacheManifest = `package: acme.adapters
priority: 10
candidates:
  - domain: adapter
    key: cache
    provider: redis
    factory: github.com/acme/cache:NewRedis
`

const memoryManifest = `package: local.caches
priority: 1
candidates:
  - domain: adapter
    key: cache
    provider: memory
    factory: hotswapctl/demo:NewMemoryCache
    stack_level: 9
`

func TestRootCommand(t *testing.T) {
	rootCmd := cmd.NewRootCommand()
	assert.NotNil(t, rootCmd)
	assert.Equal(t, "hotswapctl", rootCmd.Use)

	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "hot-swap runtime")
	for _, sub := range []string{"status", "explain", "validate", "serve", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hotswapctl v")
	assert.Contains(t, cmd.PrintVersion(), "commit: ")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"console", "info", "console", false},
		{"json", "debug", "json", false},
		{"default format", "warn", "", false},
		{"bad level", "loud", "console", true},
		{"bad format", "info", "xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			logger, err := cmd.NewLogger(buf, tt.level, tt.format)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			logger.Error().Msg("visible")
			assert.Contains(t, buf.String(), "visible")
		})
	}

	t.Run("json lines carry the app name", func(t *testing.T) {
		buf := new(bytes.Buffer)
		logger, err := cmd.NewLogger(buf, "info", "json")
		require.NoError(t, err)
		logger.Info().Str("domain", "adapter").Msg("swap committed")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "hotswapctl", line["app"])
		assert.Equal(t, "adapter", line["domain"])
	})
}

func TestStatusCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	store, err := lifecycle.NewFileStatusStore(path)
	require.NoError(t, err)
	activated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save([]lifecycle.Status{
		{Domain: "adapter", Key: "cache", State: lifecycle.StateFailed, CurrentProvider: "redis", LastError: "lifecycle: adapter/cache (provider broken): health check failed at health_check", SuccessfulSwaps: 1, FailedSwaps: 1, LastSwapDurationMS: 12, LastActivatedAt: activated},
		{Domain: "adapter", Key: "queue", State: lifecycle.StateReady, CurrentProvider: "sqs", SuccessfulSwaps: 3},
	}))

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, "status", "--snapshot", path)
		require.NoError(t, err)
		assert.Contains(t, out, "TARGET")
		assert.Contains(t, out, "adapter/cache")
		assert.Contains(t, out, "FAILED")
		assert.Contains(t, out, "2026-03-01T12:00:00Z")
		assert.Contains(t, out, "health check failed")
		assert.Contains(t, out, "adapter/queue")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "status", "--snapshot", path, "--json")
		require.NoError(t, err)
		var statuses []lifecycle.Status
		require.NoError(t, json.Unmarshal([]byte(out), &statuses))
		require.Len(t, statuses, 2)
		assert.Equal(t, "sqs", statuses[1].CurrentProvider)
	})

	t.Run("missing snapshot", func(t *testing.T) {
		out, err := execute(t, "status", "--snapshot", filepath.Join(dir, "none.json"))
		require.NoError(t, err)
		assert.Contains(t, out, "No statuses recorded")
	})

	t.Run("corrupt snapshot", func(t *testing.T) {
		bad := writeFile(t, dir, "bad.json", "{not json")
		_, err := execute(t, "status", "--snapshot", bad)
		assert.Error(t, err)
	})
}

func TestExplainCommand(t *testing.T) {
	dir := t.TempDir()
	acme := writeFile(t, dir, "acme.yaml", cacheManifest)
	local := writeFile(t, dir, "local.yaml", memoryManifest)

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, "explain", "--manifest", acme, "--manifest", local, "adapter", "cache")
		require.NoError(t, err)
		assert.Contains(t, out, "adapter/cache resolves to redis")
		assert.Contains(t, out, "lower priority (1 < 10)")
		assert.Contains(t, out, "github.com/acme/cache:NewRedis")
	})

	t.Run("provider filter", func(t *testing.T) {
		out, err := execute(t, "explain", "-m", acme, "-m", local, "--provider", "memory", "adapter", "cache")
		require.NoError(t, err)
		assert.Contains(t, out, "adapter/cache resolves to memory")
		assert.Contains(t, out, `filtered: provider "memory" requested`)
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "explain", "-m", acme, "-m", local, "--json", "adapter", "cache")
		require.NoError(t, err)
		var exp struct {
			Ordered []struct {
				Selected bool `json:"selected"`
			} `json:"ordered"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &exp))
		require.Len(t, exp.Ordered, 2)
		assert.True(t, exp.Ordered[0].Selected)
	})

	t.Run("unknown target", func(t *testing.T) {
		out, err := execute(t, "explain", "-m", acme, "adapter", "queue")
		require.NoError(t, err)
		assert.Contains(t, out, "No candidates registered for adapter/queue")
	})

	t.Run("requires a manifest", func(t *testing.T) {
		_, err := execute(t, "explain", "adapter", "cache")
		require.ErrorIs(t, err, cmd.ErrNoManifests)
	})

	t.Run("requires two args", func(t *testing.T) {
		_, err := execute(t, "explain", "-m", acme, "adapter")
		assert.Error(t, err)
	})
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	acme := writeFile(t, dir, "acme.yaml", cacheManifest)

	good := writeFile(t, dir, "good.yaml", `manifests:
  - `+acme+`
activate:
  - domain: adapter
    key: cache
`)
	out, err := execute(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "package acme.adapters, 1 candidates")
	assert.Contains(t, out, "is valid: 1 manifests, 1 candidates, 1 activation targets")

	bad := writeFile(t, dir, "bad.yaml", "swap_window: -3\n")
	_, err = execute(t, "validate", bad)
	assert.Error(t, err)

	missing := writeFile(t, dir, "missing.yaml", "manifests:\n  - "+filepath.Join(dir, "nope.yaml")+"\n")
	_, err = execute(t, "validate", missing)
	assert.Error(t, err)
}

func TestServeCommand_RequiresConfig(t *testing.T) {
	_, err := execute(t, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config")
}
