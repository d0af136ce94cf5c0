package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	logger       = newSimpleLogger()
	debugLogging bool
)

const (
	logLevelDebug logLevel = iota
	logLevelInfo
	logLevelWarn
	logLevelError
)

var levelNames = [...]string{
	"DEBUG",
	"INFO",
	"WARN",
	"ERROR",
}

type logLevel int32

func (l logLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

type logEvent struct {
	at        time.Time
	level     logLevel
	component string
	msg       string
	attrs     []any
}

// componentLogger tags entries with the flow that wrote them (detector,
// collector, submitter, zmq) so interleaved round activity stays readable.
type componentLogger string

func (c componentLogger) Debug(msg string, attrs ...any) {
	logger.log(logLevelDebug, string(c), msg, attrs...)
}

func (c componentLogger) Info(msg string, attrs ...any) {
	logger.log(logLevelInfo, string(c), msg, attrs...)
}

func (c componentLogger) Warn(msg string, attrs ...any) {
	logger.log(logLevelWarn, string(c), msg, attrs...)
}

func (c componentLogger) Error(msg string, attrs ...any) {
	logger.log(logLevelError, string(c), msg, attrs...)
}

const (
	detectorLog  componentLogger = "detector"
	collectorLog componentLogger = "collector"
	submitLog    componentLogger = "submit"
	zmqLog       componentLogger = "zmq"
)

// simpleLogger queues entries to a single writer goroutine so the round and
// candidate loops never block on disk or terminal writes.
type simpleLogger struct {
	level       atomic.Int32
	queue       chan logEvent
	done        chan struct{}
	writerMu    sync.RWMutex
	minerWriter io.Writer
	debugWriter io.Writer
	stdout      bool
	wg          sync.WaitGroup
	stopOnce    sync.Once
	closing     atomic.Bool
}

func newSimpleLogger() *simpleLogger {
	l := &simpleLogger{
		queue:       make(chan logEvent, 4096),
		done:        make(chan struct{}),
		minerWriter: os.Stdout,
		debugWriter: io.Discard,
	}
	l.level.Store(int32(logLevelInfo))
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *simpleLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case evt := <-l.queue:
			l.writeEntry(evt)
		case <-l.done:
			for {
				select {
				case evt := <-l.queue:
					l.writeEntry(evt)
				default:
					return
				}
			}
		}
	}
}

func (l *simpleLogger) log(level logLevel, component, msg string, attrs ...any) {
	if int32(level) < l.level.Load() || l.closing.Load() {
		return
	}
	evt := logEvent{
		at:        time.Now(),
		level:     level,
		component: component,
		msg:       msg,
		attrs:     append([]any(nil), attrs...),
	}
	select {
	case l.queue <- evt:
	case <-l.done:
	}
}

func (l *simpleLogger) Debug(msg string, attrs ...any) { l.log(logLevelDebug, "", msg, attrs...) }
func (l *simpleLogger) Info(msg string, attrs ...any)  { l.log(logLevelInfo, "", msg, attrs...) }
func (l *simpleLogger) Warn(msg string, attrs ...any)  { l.log(logLevelWarn, "", msg, attrs...) }
func (l *simpleLogger) Error(msg string, attrs ...any) { l.log(logLevelError, "", msg, attrs...) }

func (l *simpleLogger) setLevel(level logLevel) {
	l.level.Store(int32(level))
}

func (l *simpleLogger) configureWriters(miner, debug io.Writer, stdout bool) {
	if miner == nil {
		miner = io.Discard
	}
	if debug == nil {
		debug = io.Discard
	}
	l.writerMu.Lock()
	l.minerWriter = miner
	l.debugWriter = debug
	l.stdout = stdout
	l.writerMu.Unlock()
}

// Stop drains queued entries and closes file writers. Safe to call twice.
func (l *simpleLogger) Stop() {
	l.stopOnce.Do(func() {
		l.closing.Store(true)
		close(l.done)
		l.wg.Wait()
		l.writerMu.Lock()
		closeWriter(l.minerWriter)
		closeWriter(l.debugWriter)
		l.minerWriter = io.Discard
		l.debugWriter = io.Discard
		l.writerMu.Unlock()
	})
}

func closeWriter(w io.Writer) {
	if w == os.Stdout || w == os.Stderr {
		return
	}
	if closer, ok := w.(io.Closer); ok {
		_ = closer.Close()
	}
}

func (l *simpleLogger) writeEntry(evt logEvent) {
	line := []byte(formatLogLine(evt))

	l.writerMu.RLock()
	minerWriter := l.minerWriter
	debugWriter := l.debugWriter
	stdout := l.stdout
	l.writerMu.RUnlock()

	if stdout && minerWriter != os.Stdout {
		_, _ = os.Stdout.Write(line)
	}
	if evt.level == logLevelDebug {
		_, _ = debugWriter.Write(line)
		return
	}
	_, _ = minerWriter.Write(line)
}

// formatLogLine renders "time [LEVEL] component: msg key=value ...".
func formatLogLine(evt logEvent) string {
	var entry strings.Builder
	entry.WriteString(evt.at.Format("2006-01-02 15:04:05.000"))
	entry.WriteString(" [")
	entry.WriteString(evt.level.String())
	entry.WriteString("] ")
	if evt.component != "" {
		entry.WriteString(evt.component)
		entry.WriteString(": ")
	}
	entry.WriteString(evt.msg)
	if attrs := formatAttrs(evt.attrs); attrs != "" {
		entry.WriteByte(' ')
		entry.WriteString(attrs)
	}
	entry.WriteByte('\n')
	return entry.String()
}

func formatAttrs(attrs []any) string {
	if len(attrs) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(attrs); i += 2 {
		if i > 0 {
			b.WriteByte(' ')
		}
		key := fmt.Sprint(attrs[i])
		if i+1 >= len(attrs) {
			b.WriteString(key)
			break
		}
		value := fmt.Sprint(attrs[i+1])
		if strings.ContainsAny(value, " \t") {
			value = fmt.Sprintf("%q", value)
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
	}
	return b.String()
}

func newRollingFileWriter(path string) io.Writer {
	if path == "" {
		return io.Discard
	}
	return &rollingFileWriter{path: path}
}

// rollingFileWriter reopens its file when it disappears, so logrotate-style
// move-and-recreate works without a signal.
type rollingFileWriter struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

func (w *rollingFileWriter) ensureFile() error {
	if _, err := os.Stat(w.path); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if w.f != nil {
			_ = w.f.Close()
			w.f = nil
		}
	}
	if w.f == nil {
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		w.f = f
	}
	return nil
}

func (w *rollingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureFile(); err != nil {
		return 0, err
	}
	return w.f.Write(p)
}

func (w *rollingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func setLogLevel(level logLevel) {
	logger.setLevel(level)
	debugLogging = level <= logLevelDebug
}

func configureFileLogging(minerPath, debugPath string, stdout bool) {
	var minerWriter io.Writer = os.Stdout
	if minerPath != "" {
		minerWriter = newRollingFileWriter(minerPath)
	} else {
		stdout = false
	}
	logger.configureWriters(minerWriter, newRollingFileWriter(debugPath), stdout)
}

// fatal logs, flushes the logger and exits. Used for the unrecoverable
// conditions only: bad config, protocol mismatch, dead internal queues.
func fatal(msg string, err error, attrs ...any) {
	attrPairs := append(attrs, "error", err)
	logger.Error(msg, attrPairs...)
	logger.Stop()
	os.Exit(1)
}
