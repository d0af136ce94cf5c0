package main

import (
	"fmt"
	"net/url"
	"strings"
)

// runtimeOverrides carries command-line flags; they win over every file and
// environment layer.
type runtimeOverrides struct {
	url            string
	statusAddr     string
	zmqRoundAddr   string
	cpuThreads     int
	targetDeadline uint64
	startNonce     *uint64
	debug          bool
	stdout         bool
}

func applyRuntimeOverrides(cfg *Config, overrides runtimeOverrides) error {
	if overrides.url != "" {
		u, err := url.Parse(strings.TrimSpace(overrides.url))
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid -url %q", overrides.url)
		}
		cfg.URL = u.String()
	}
	if overrides.statusAddr != "" {
		cfg.StatusListen = overrides.statusAddr
	}
	if overrides.zmqRoundAddr != "" {
		cfg.ZMQRoundAddr = overrides.zmqRoundAddr
	}
	if overrides.cpuThreads > 0 {
		cfg.CPUThreads = overrides.cpuThreads
	}
	if overrides.targetDeadline > 0 {
		cfg.TargetDeadline = overrides.targetDeadline
	}
	if overrides.startNonce != nil {
		cfg.StartNonce = *overrides.startNonce
	}
	if overrides.debug {
		cfg.LogLevel = "debug"
	}
	if overrides.stdout {
		cfg.LogToStdout = true
	}
	return nil
}
