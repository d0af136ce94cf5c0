//go:build debug

package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var (
	netLogMu     sync.Mutex
	netLogWriter io.Writer
)

// setNetLogWriter directs the raw pool API exchange to w; nil turns it off.
func setNetLogWriter(w io.Writer) {
	netLogMu.Lock()
	defer netLogMu.Unlock()
	netLogWriter = w
}

// logNetMessage records one request or response line. The secret phrase is
// never written.
func logNetMessage(direction string, data []byte) {
	netLogMu.Lock()
	defer netLogMu.Unlock()
	if netLogWriter == nil {
		return
	}
	fmt.Fprintf(netLogWriter, "%s [%s] %s\n", time.Now().UTC().Format(time.RFC3339Nano), direction, redactSecret(strings.TrimRight(string(data), "\r\n")))
}

func redactSecret(s string) string {
	const key = "secretPhrase="
	i := strings.Index(s, key)
	if i < 0 {
		return s
	}
	start := i + len(key)
	end := strings.IndexAny(s[start:], "& ")
	if end < 0 {
		return s[:start] + "REDACTED"
	}
	return s[:start] + "REDACTED" + s[start+end:]
}
