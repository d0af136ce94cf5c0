package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestLoadConfigWritesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig("", dir)
	require.NoError(t, err)

	want := defaultConfig()
	want.DataDir = dir
	assert.Equal(t, want, cfg)

	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	// the written file loads back to the same values
	again, err := loadConfig("", dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "config.toml"), `
url = "http://pool.example:8080"
numeric_id = 1111
target_deadline = 86400
get_mining_info_interval = 3000
timeout = 2500
cpu_threads = 6
gpu_devices = ["0:0"]
status_listen = ":8125"

[additional_headers]
X-Account = "me"
`)
	writeTestFile(t, filepath.Join(dir, "state", "secrets.toml"), `discord_bot_token = "bot-token"`)
	writeTestFile(t, filepath.Join(dir, ".env"), "GOPOC_START_NONCE=5000\n")
	t.Cleanup(func() { _ = os.Unsetenv("GOPOC_START_NONCE") })
	t.Setenv("GOPOC_TARGET_DEADLINE", "3600")

	cfg, err := loadConfig("", dir)
	require.NoError(t, err)

	assert.Equal(t, "http://pool.example:8080", cfg.URL)
	assert.Equal(t, uint64(1111), cfg.NumericID)
	assert.Equal(t, uint64(3600), cfg.TargetDeadline)
	assert.Equal(t, uint64(5000), cfg.StartNonce)
	assert.Equal(t, 3*time.Second, cfg.MiningInfoInterval)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 6, cfg.CPUThreads)
	assert.Equal(t, []string{"0:0"}, cfg.GPUDevices)
	assert.Equal(t, ":8125", cfg.StatusListen)
	assert.Equal(t, map[string]string{"X-Account": "me"}, cfg.AdditionalHeaders)
	assert.Equal(t, "bot-token", cfg.DiscordBotToken)
	assert.Equal(t, defaultSubmitRetries, cfg.SubmitRetries)
}

func TestLoadConfigRejectsBadToml(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "config.toml"), "url = \n")
	_, err := loadConfig("", dir)
	assert.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"GOPOC_URL":           " http://10.0.0.2:8124 ",
		"GOPOC_SECRET_PHRASE": "secret",
		"GOPOC_NUMERIC_ID":    "18446744073709551615",
		"GOPOC_START_NONCE":   "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := defaultConfig()
	cfg.StartNonce = 9
	require.NoError(t, applyEnvOverrides(&cfg, lookup))
	assert.Equal(t, "http://10.0.0.2:8124", cfg.URL)
	assert.Equal(t, "secret", cfg.SecretPhrase)
	assert.Equal(t, uint64(math.MaxUint64), cfg.NumericID)
	assert.Equal(t, uint64(9), cfg.StartNonce)

	env["GOPOC_TARGET_DEADLINE"] = "soon"
	assert.Error(t, applyEnvOverrides(&cfg, lookup))
}

func TestFetchTimeout(t *testing.T) {
	tests := []struct {
		interval, timeout, want time.Duration
	}{
		{time.Second, 5 * time.Second, 800 * time.Millisecond},
		{100 * time.Millisecond, 5 * time.Second, 300 * time.Millisecond},
		{10 * time.Second, 5 * time.Second, 5 * time.Second},
		{2 * time.Second, time.Second, time.Second},
	}
	for _, tc := range tests {
		cfg := Config{MiningInfoInterval: tc.interval, Timeout: tc.timeout}
		assert.Equal(t, tc.want, cfg.fetchTimeout(), "interval %s timeout %s", tc.interval, tc.timeout)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := defaultConfig()
	valid.NumericID = 1
	require.NoError(t, validateConfig(valid))

	tests := map[string]func(*Config){
		"no url":           func(c *Config) { c.URL = " " },
		"no account":       func(c *Config) { c.NumericID = 0 },
		"zero target":      func(c *Config) { c.TargetDeadline = 0 },
		"zero interval":    func(c *Config) { c.MiningInfoInterval = 0 },
		"zero timeout":     func(c *Config) { c.Timeout = 0 },
		"negative retries": func(c *Config) { c.SubmitRetries = -1 },
		"negative threads": func(c *Config) { c.CPUThreads = -2 },
		"zero task size":   func(c *Config) { c.CPUWorkerTaskSize = 0 },
		"zero blocktime":   func(c *Config) { c.BlocktimeSeconds = 0 },
		"bad log level":    func(c *Config) { c.LogLevel = "loud" },
		"discord half set": func(c *Config) { c.DiscordChannelID = "123" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}

	solo := defaultConfig()
	solo.SecretPhrase = "x"
	assert.NoError(t, validateConfig(solo))
}

func TestExampleConfigParses(t *testing.T) {
	data, err := exampleConfigBytes()
	require.NoError(t, err)

	var fc fileConfig
	require.NoError(t, toml.Unmarshal(data, &fc))
	cfg := defaultConfig()
	applyFileConfig(&cfg, fc)
	assert.Equal(t, uint64(1234567890), cfg.NumericID)
	assert.Equal(t, uint64(86400*30), cfg.TargetDeadline)
	assert.Equal(t, "rig-01", cfg.MinerName)

	dir := t.TempDir()
	require.NoError(t, ensureExampleFiles(dir))
	for _, name := range []string{"config.toml.example", "secrets.toml.example", "env.example"} {
		_, err := os.Stat(filepath.Join(dir, "examples", name))
		assert.NoError(t, err, name)
	}
}

func TestRewriteConfigFileKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := defaultConfig()
	cfg.URL = "http://first"
	require.NoError(t, rewriteConfigFile(path, cfg))
	cfg.URL = "http://second"
	require.NoError(t, rewriteConfigFile(path, cfg))

	cur, ok, err := loadConfigFile(path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://second", cur.URL)

	bak, ok, err := loadConfigFile(path + ".bak")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "http://first", bak.URL)
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]logLevel{"": logLevelInfo, "DEBUG": logLevelDebug, "warning": logLevelWarn, "error": logLevelError} {
		got, err := parseLogLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

func TestApplyRuntimeOverrides(t *testing.T) {
	cfg := defaultConfig()
	n := uint64(0)
	require.NoError(t, applyRuntimeOverrides(&cfg, runtimeOverrides{
		url:            "https://pool.example/",
		statusAddr:     "127.0.0.1:9000",
		zmqRoundAddr:   "tcp://127.0.0.1:28332",
		cpuThreads:     3,
		targetDeadline: 1000,
		startNonce:     &n,
		debug:          true,
	}))
	assert.Equal(t, "https://pool.example/", cfg.URL)
	assert.Equal(t, "127.0.0.1:9000", cfg.StatusListen)
	assert.Equal(t, "tcp://127.0.0.1:28332", cfg.ZMQRoundAddr)
	assert.Equal(t, 3, cfg.CPUThreads)
	assert.Equal(t, uint64(1000), cfg.TargetDeadline)
	assert.Equal(t, uint64(0), cfg.StartNonce)
	assert.Equal(t, "debug", cfg.LogLevel)

	assert.Error(t, applyRuntimeOverrides(&cfg, runtimeOverrides{url: "not a url"}))
}
