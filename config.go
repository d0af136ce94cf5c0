package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml"
)

const (
	defaultMiningInfoInterval = time.Second
	defaultRequestTimeout     = 5 * time.Second
	// minPollWindow keeps the derived poll timeout positive for very short
	// intervals; pollTimeoutSlack leaves room before the next tick fires.
	minPollWindow           = 500 * time.Millisecond
	pollTimeoutSlack        = 200 * time.Millisecond
	defaultSubmitRetries    = 3
	defaultCPUWorkerTask    = 64
	defaultBlocktimeSeconds = 240
	envPrefix               = "GOPOC_"
)

var defaultDataDir = btcutil.AppDataDir(softwareName, false)

type Config struct {
	URL               string
	SecretPhrase      string
	NumericID         uint64
	MinerName         string
	AdditionalHeaders map[string]string

	StartNonce     uint64
	TargetDeadline uint64

	MiningInfoInterval time.Duration
	Timeout            time.Duration
	SubmitRetries      int

	CPUThreads        int
	CPUWorkerTaskSize uint64
	GPUDevices        []string
	BlocktimeSeconds  uint64

	DataDir          string
	ZMQRoundAddr     string
	StatusListen     string
	DiscordBotToken  string
	DiscordChannelID string

	LogLevel    string
	LogToStdout bool
}

// fileConfig mirrors config.toml. Pointer fields distinguish "unset" from an
// explicit zero so defaults survive partial files.
type fileConfig struct {
	URL               string            `toml:"url"`
	NumericID         *uint64           `toml:"numeric_id,omitempty"`
	MinerName         string            `toml:"miner_name,omitempty"`
	AdditionalHeaders map[string]string `toml:"additional_headers,omitempty"`

	StartNonce     *uint64 `toml:"start_nonce,omitempty"`
	TargetDeadline *uint64 `toml:"target_deadline,omitempty"`

	MiningInfoIntervalMs *int64 `toml:"get_mining_info_interval,omitempty"`
	TimeoutMs            *int64 `toml:"timeout,omitempty"`
	SubmitRetries        *int   `toml:"submit_retries,omitempty"`

	CPUThreads        *int     `toml:"cpu_threads,omitempty"`
	CPUWorkerTaskSize *uint64  `toml:"cpu_worker_task_size,omitempty"`
	GPUDevices        []string `toml:"gpu_devices,omitempty"`
	BlocktimeSeconds  *uint64  `toml:"blocktime,omitempty"`

	DataDir          string `toml:"data_dir,omitempty"`
	ZMQRoundAddr     string `toml:"zmq_round_addr,omitempty"`
	StatusListen     string `toml:"status_listen,omitempty"`
	DiscordChannelID string `toml:"discord_channel_id,omitempty"`

	LogLevel    string `toml:"log_level,omitempty"`
	LogToStdout *bool  `toml:"log_to_stdout,omitempty"`
}

// secretsConfig holds values that should not live in a config file that
// gets shared or checked in.
type secretsConfig struct {
	SecretPhrase    string `toml:"secret_phrase"`
	DiscordBotToken string `toml:"discord_bot_token"`
}

// defaultConfig returns the built-in defaults that both config loading and
// the example config start from.
func defaultConfig() Config {
	return Config{
		URL:                "http://127.0.0.1:8124",
		TargetDeadline:     math.MaxUint64,
		MiningInfoInterval: defaultMiningInfoInterval,
		Timeout:            defaultRequestTimeout,
		SubmitRetries:      defaultSubmitRetries,
		CPUWorkerTaskSize:  defaultCPUWorkerTask,
		BlocktimeSeconds:   defaultBlocktimeSeconds,
		DataDir:            defaultDataDir,
		LogLevel:           "info",
		LogToStdout:        true,
	}
}

func defaultConfigPath(dataDir string) string {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	return filepath.Join(dataDir, "config.toml")
}

// loadConfig layers defaults, config.toml, secrets.toml, the .env file and
// GOPOC_* variables, in that order. A missing config file is written out
// with defaults so operators have something to edit.
func loadConfig(configPath, dataDir string) (Config, error) {
	cfg := defaultConfig()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if configPath == "" {
		configPath = defaultConfigPath(cfg.DataDir)
	}

	if fc, ok, err := loadConfigFile(configPath); err != nil {
		return cfg, err
	} else if ok {
		applyFileConfig(&cfg, *fc)
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
	} else {
		if err := rewriteConfigFile(configPath, cfg); err != nil {
			return cfg, fmt.Errorf("write default config: %w", err)
		}
		logger.Info("created default config file", "path", configPath)
	}

	secretsPath := filepath.Join(cfg.DataDir, "state", "secrets.toml")
	if sc, ok, err := loadSecretsFile(secretsPath); err != nil {
		return cfg, err
	} else if ok {
		applySecretsConfig(&cfg, *sc)
	}

	envPath := filepath.Join(cfg.DataDir, ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load %s: %w", envPath, err)
	}
	if err := applyEnvOverrides(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadConfigFile(path string) (*fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}
	return &fc, true, nil
}

func loadSecretsFile(path string) (*secretsConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	var sc secretsConfig
	if err := toml.Unmarshal(data, &sc); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}
	return &sc, true, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.URL != "" {
		cfg.URL = fc.URL
	}
	if fc.NumericID != nil {
		cfg.NumericID = *fc.NumericID
	}
	if fc.MinerName != "" {
		cfg.MinerName = fc.MinerName
	}
	if len(fc.AdditionalHeaders) > 0 {
		cfg.AdditionalHeaders = fc.AdditionalHeaders
	}
	if fc.StartNonce != nil {
		cfg.StartNonce = *fc.StartNonce
	}
	if fc.TargetDeadline != nil {
		cfg.TargetDeadline = *fc.TargetDeadline
	}
	if fc.MiningInfoIntervalMs != nil {
		cfg.MiningInfoInterval = time.Duration(*fc.MiningInfoIntervalMs) * time.Millisecond
	}
	if fc.TimeoutMs != nil {
		cfg.Timeout = time.Duration(*fc.TimeoutMs) * time.Millisecond
	}
	if fc.SubmitRetries != nil {
		cfg.SubmitRetries = *fc.SubmitRetries
	}
	if fc.CPUThreads != nil {
		cfg.CPUThreads = *fc.CPUThreads
	}
	if fc.CPUWorkerTaskSize != nil {
		cfg.CPUWorkerTaskSize = *fc.CPUWorkerTaskSize
	}
	if len(fc.GPUDevices) > 0 {
		cfg.GPUDevices = fc.GPUDevices
	}
	if fc.BlocktimeSeconds != nil {
		cfg.BlocktimeSeconds = *fc.BlocktimeSeconds
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.ZMQRoundAddr != "" {
		cfg.ZMQRoundAddr = fc.ZMQRoundAddr
	}
	if fc.StatusListen != "" {
		cfg.StatusListen = fc.StatusListen
	}
	if fc.DiscordChannelID != "" {
		cfg.DiscordChannelID = fc.DiscordChannelID
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogToStdout != nil {
		cfg.LogToStdout = *fc.LogToStdout
	}
}

func applySecretsConfig(cfg *Config, sc secretsConfig) {
	if sc.SecretPhrase != "" {
		cfg.SecretPhrase = sc.SecretPhrase
	}
	if sc.DiscordBotToken != "" {
		cfg.DiscordBotToken = sc.DiscordBotToken
	}
}

func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(envPrefix + name)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	parseUint := func(name string, dst *uint64) error {
		v, ok := get(name)
		if !ok {
			return nil
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = n
		return nil
	}

	if v, ok := get("URL"); ok {
		cfg.URL = v
	}
	if v, ok := get("SECRET_PHRASE"); ok {
		cfg.SecretPhrase = v
	}
	if v, ok := get("DISCORD_BOT_TOKEN"); ok {
		cfg.DiscordBotToken = v
	}
	if err := parseUint("NUMERIC_ID", &cfg.NumericID); err != nil {
		return err
	}
	if err := parseUint("TARGET_DEADLINE", &cfg.TargetDeadline); err != nil {
		return err
	}
	return parseUint("START_NONCE", &cfg.StartNonce)
}

func buildFileConfig(cfg Config) fileConfig {
	uint64Ptr := func(v uint64) *uint64 { return &v }
	int64Ptr := func(v int64) *int64 { return &v }
	intPtr := func(v int) *int { return &v }
	boolPtr := func(v bool) *bool { return &v }

	fc := fileConfig{
		URL:                  cfg.URL,
		MinerName:            cfg.MinerName,
		AdditionalHeaders:    cfg.AdditionalHeaders,
		MiningInfoIntervalMs: int64Ptr(cfg.MiningInfoInterval.Milliseconds()),
		TimeoutMs:            int64Ptr(cfg.Timeout.Milliseconds()),
		SubmitRetries:        intPtr(cfg.SubmitRetries),
		CPUThreads:           intPtr(cfg.CPUThreads),
		CPUWorkerTaskSize:    uint64Ptr(cfg.CPUWorkerTaskSize),
		GPUDevices:           cfg.GPUDevices,
		BlocktimeSeconds:     uint64Ptr(cfg.BlocktimeSeconds),
		DataDir:              cfg.DataDir,
		ZMQRoundAddr:         cfg.ZMQRoundAddr,
		StatusListen:         cfg.StatusListen,
		DiscordChannelID:     cfg.DiscordChannelID,
		LogLevel:             cfg.LogLevel,
		LogToStdout:          boolPtr(cfg.LogToStdout),
	}
	// TOML integers are signed 64-bit; values above that range stay unset
	// and fall back to the defaults when read back.
	if cfg.NumericID != 0 && cfg.NumericID <= math.MaxInt64 {
		fc.NumericID = uint64Ptr(cfg.NumericID)
	}
	if cfg.StartNonce <= math.MaxInt64 {
		fc.StartNonce = uint64Ptr(cfg.StartNonce)
	}
	if cfg.TargetDeadline <= math.MaxInt64 {
		fc.TargetDeadline = uint64Ptr(cfg.TargetDeadline)
	}
	return fc
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return fmt.Errorf("url is required")
	}
	if cfg.SecretPhrase == "" && cfg.NumericID == 0 {
		return fmt.Errorf("numeric_id is required unless secret_phrase is set")
	}
	if cfg.TargetDeadline == 0 {
		return fmt.Errorf("target_deadline must be > 0")
	}
	if cfg.MiningInfoInterval <= 0 {
		return fmt.Errorf("get_mining_info_interval must be > 0, got %s", cfg.MiningInfoInterval)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %s", cfg.Timeout)
	}
	if cfg.SubmitRetries < 0 {
		return fmt.Errorf("submit_retries cannot be negative")
	}
	if cfg.CPUThreads < 0 {
		return fmt.Errorf("cpu_threads cannot be negative")
	}
	if cfg.CPUWorkerTaskSize == 0 {
		return fmt.Errorf("cpu_worker_task_size must be > 0")
	}
	if cfg.BlocktimeSeconds == 0 {
		return fmt.Errorf("blocktime must be > 0")
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	if (cfg.DiscordBotToken == "") != (cfg.DiscordChannelID == "") {
		return fmt.Errorf("discord_bot_token and discord_channel_id must be set together")
	}
	return nil
}

// fetchTimeout bounds one mining info request so a hung request finishes
// before the next tick: min(timeout, max(500ms, interval) - 200ms).
func (cfg Config) fetchTimeout() time.Duration {
	window := cfg.MiningInfoInterval
	if window < minPollWindow {
		window = minPollWindow
	}
	window -= pollTimeoutSlack
	if cfg.Timeout > 0 && cfg.Timeout < window {
		return cfg.Timeout
	}
	return window
}

func (cfg Config) soloMining() bool {
	return cfg.SecretPhrase != ""
}

func parseLogLevel(s string) (logLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return logLevelDebug, nil
	case "", "info":
		return logLevelInfo, nil
	case "warn", "warning":
		return logLevelWarn, nil
	case "error":
		return logLevelError, nil
	default:
		return logLevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
}
