package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	debugpkg "runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const softwareName = "goPoC"

// Set with -ldflags "-X main.buildVersion=... -X main.buildTime=...".
var (
	buildVersion = "dev"
	buildTime    = ""
)

func main() {
	// Top-level panic handler: keep a stack trace in panic.log.
	defer func() {
		if r := recover(); r != nil {
			path := "panic.log"
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer f.Close()
				ts := time.Now().UTC().Format(time.RFC3339)
				fmt.Fprintf(f, "[%s] panic: %v\nbuild_time=%s\n%s\n\n",
					ts, r, buildTime, debugpkg.Stack())
			}
			panic(r)
		}
	}()

	configFlag := flag.String("config", "", "path to config.toml (default: <data-dir>/config.toml)")
	dataDirFlag := flag.String("data-dir", "", "override data directory")
	urlFlag := flag.String("url", "", "override pool/node URL")
	statusFlag := flag.String("status", "", "status HTTP listen address (e.g. :8125)")
	zmqFlag := flag.String("zmq", "", "ZMQ endpoint publishing round notifications")
	threadsFlag := flag.Int("cpu-threads", 0, "override CPU worker count (0 keeps config)")
	targetFlag := flag.Uint64("target-deadline", 0, "override target deadline in seconds (0 keeps config)")
	var startNonceFlag *uint64
	flag.Func("start-nonce", "override first nonce to mine", func(v string) error {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return err
		}
		startNonceFlag = &n
		return nil
	})
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	stdoutFlag := flag.Bool("stdout", false, "mirror logs to stdout")
	exampleFlag := flag.Bool("write-example-config", false, "write example config files to <data-dir>/examples and exit")
	flag.Parse()

	if *exampleFlag {
		dir := *dataDirFlag
		if dir == "" {
			dir = defaultDataDir
		}
		if err := ensureExampleFiles(dir); err != nil {
			fatal("write example config", err)
		}
		logger.Info("example config written", "dir", filepath.Join(dir, "examples"))
		logger.Stop()
		return
	}

	cfg, err := loadConfig(*configFlag, *dataDirFlag)
	if err != nil {
		fatal("config", err)
	}
	if err := applyRuntimeOverrides(&cfg, runtimeOverrides{
		url:            *urlFlag,
		statusAddr:     *statusFlag,
		zmqRoundAddr:   *zmqFlag,
		cpuThreads:     *threadsFlag,
		targetDeadline: *targetFlag,
		startNonce:     startNonceFlag,
		debug:          *debugFlag,
		stdout:         *stdoutFlag,
	}); err != nil {
		fatal("flags", err)
	}

	if debugBuild() {
		cfg.LogLevel = "debug"
	}
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		fatal("config", err)
	}
	setLogLevel(level)
	logDir := filepath.Join(cfg.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		fatal("create log directory", err, "dir", logDir)
	}
	debugLogPath := ""
	if debugLogging {
		debugLogPath = filepath.Join(logDir, "debug.log")
	}
	configureFileLogging(filepath.Join(logDir, "miner.log"), debugLogPath, cfg.LogToStdout)
	defer logger.Stop()
	if debugBuild() {
		setNetLogWriter(newRollingFileWriter(filepath.Join(logDir, "net.log")))
	}

	if err := validateConfig(cfg); err != nil {
		fatal("config", err)
	}
	if err := resolveAccountID(&cfg); err != nil {
		fatal("account", err)
	}

	client, err := NewPoolClient(cfg)
	if err != nil {
		fatal("pool client", err)
	}

	ledger, err := openSubmissionLedger(cfg.DataDir)
	if err != nil {
		logger.Warn("submission ledger unavailable; outcomes are logged only", "error", err, "path", ledgerPath(cfg.DataDir))
		ledger = nil
	}
	defer ledger.Close()

	mode := "pool"
	if cfg.soloMining() {
		mode = "solo"
	}
	logger.Info("starting "+softwareName,
		"version", buildVersion,
		"mode", mode,
		"url", client.Endpoint(),
		"account", cfg.NumericID,
		"target_deadline", cfg.TargetDeadline,
		"poll_timeout", cfg.fetchTimeout(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := newCoordinator(cfg, client, ledger, coordinatorOptions{})
	if err := coord.Run(ctx); err != nil {
		fatal("miner stopped", err)
	}
	logger.Info("shutdown complete")
}
