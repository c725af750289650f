package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
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

const (
	logRetentionDays = 7
	logQueueDepth    = 4096
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

type logLevel int32

func (l logLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

func parseLogLevel(s string) (logLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logLevelDebug, nil
	case "", "info":
		return logLevelInfo, nil
	case "warn", "warning":
		return logLevelWarn, nil
	case "error":
		return logLevelError, nil
	default:
		return logLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

type logEvent struct {
	at    time.Time
	level logLevel
	msg   string
	attrs []any
}

// logSinks groups the destinations one entry can be routed to.
type logSinks struct {
	pool   io.Writer
	errors io.Writer
	debug  io.Writer
	stdout bool
}

// simpleLogger formats entries on a single background goroutine so callers on
// the share path only pay for a channel send.
type simpleLogger struct {
	level    atomic.Int32
	queue    chan logEvent
	done     chan struct{}
	sinksMu  sync.RWMutex
	sinks    logSinks
	wg       sync.WaitGroup
	stopOnce sync.Once
	closing  atomic.Bool
}

func newSimpleLogger() *simpleLogger {
	l := &simpleLogger{
		queue: make(chan logEvent, logQueueDepth),
		done:  make(chan struct{}),
		sinks: logSinks{pool: os.Stdout, errors: os.Stderr, debug: io.Discard},
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
			l.write(evt)
		case <-l.done:
			for {
				select {
				case evt := <-l.queue:
					l.write(evt)
				default:
					return
				}
			}
		}
	}
}

func (l *simpleLogger) Enabled(level logLevel) bool {
	return level >= logLevel(l.level.Load())
}

func (l *simpleLogger) log(level logLevel, msg string, attrs ...any) {
	if !l.Enabled(level) || l.closing.Load() {
		return
	}
	evt := logEvent{at: time.Now(), level: level, msg: msg, attrs: append([]any(nil), attrs...)}
	select {
	case l.queue <- evt:
	case <-l.done:
	}
}

func (l *simpleLogger) Debug(msg string, attrs ...any) { l.log(logLevelDebug, msg, attrs...) }
func (l *simpleLogger) Info(msg string, attrs ...any) { l.log(logLevelInfo, msg, attrs...) }
func (l *simpleLogger) Warn(msg string, attrs ...any) { l.log(logLevelWarn, msg, attrs...) }
func (l *simpleLogger) Error(msg string, attrs ...any) { l.log(logLevelError, msg, attrs...) }

func (l *simpleLogger) setLevel(level logLevel) {
	l.level.Store(int32(level))
}

func (l *simpleLogger) setSinks(s logSinks) {
	if s.pool == nil {
		s.pool = io.Discard
	}
	if s.errors == nil {
		s.errors = io.Discard
	}
	if s.debug == nil {
		s.debug = io.Discard
	}
	l.sinksMu.Lock()
	l.sinks = s
	l.sinksMu.Unlock()
}

// Stop drains queued entries and closes file sinks. Entries logged after Stop
// are dropped.
func (l *simpleLogger) Stop() {
	l.stopOnce.Do(func() {
		l.closing.Store(true)
		close(l.done)
		l.wg.Wait()
		l.sinksMu.Lock()
		for _, w := range []io.Writer{l.sinks.pool, l.sinks.errors, l.sinks.debug} {
			if c, ok := w.(io.Closer); ok && w != io.Writer(os.Stdout) && w != io.Writer(os.Stderr) {
				_ = c.Close()
			}
		}
		l.sinks = logSinks{pool: io.Discard, errors: io.Discard, debug: io.Discard}
		l.sinksMu.Unlock()
	})
}

func (l *simpleLogger) write(evt logEvent) {
	line := formatLogLine(evt)

	l.sinksMu.RLock()
	s := l.sinks
	l.sinksMu.RUnlock()

	if s.stdout {
		_, _ = os.Stdout.Write(line)
	}
	if evt.level == logLevelDebug {
		_, _ = s.debug.Write(line)
		return
	}
	_, _ = s.pool.Write(line)
	if evt.level >= logLevelError {
		_, _ = s.errors.Write(line)
	}
}

func formatLogLine(evt logEvent) []byte {
	var b strings.Builder
	b.WriteString(evt.at.UTC().Format(time.RFC3339Nano))
	b.WriteString(" [")
	b.WriteString(evt.level.String())
	b.WriteString("] ")
	b.WriteString(evt.msg)
	for i := 0; i < len(evt.attrs); i += 2 {
		b.WriteByte(' ')
		b.WriteString(fmt.Sprint(evt.attrs[i]))
		if i+1 < len(evt.attrs) {
			b.WriteByte('=')
			b.WriteString(fmt.Sprint(evt.attrs[i+1]))
		}
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

// dailyFileWriter appends to <dir>/<name>-YYYY-MM-DD<ext> and prunes files
// older than logRetentionDays whenever the day rolls over.
type dailyFileWriter struct {
	dir  string
	name string
	ext  string

	mu   sync.Mutex
	f    *os.File
	date string
}

func newDailyFileWriter(path string) io.Writer {
	if path == "" {
		return io.Discard
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return &dailyFileWriter{
		dir:  filepath.Dir(path),
		name: strings.TrimSuffix(base, ext),
		ext:  ext,
	}
}

func (w *dailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotate(time.Now().UTC()); err != nil {
		return 0, err
	}
	return w.f.Write(p)
}

func (w *dailyFileWriter) rotate(now time.Time) error {
	date := now.Format("2006-01-02")
	if w.f != nil && w.date == date {
		return nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, w.name+"-"+date+w.ext), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	w.date = date
	w.prune(now)
	return nil
}

func (w *dailyFileWriter) prune(now time.Time) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -(logRetentionDays - 1)).Format("2006-01-02")
	prefix := w.name + "-"
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, w.ext) {
			continue
		}
		date := strings.TrimSuffix(strings.TrimPrefix(name, prefix), w.ext)
		if _, err := time.Parse("2006-01-02", date); err != nil {
			continue
		}
		// ISO dates compare correctly as strings.
		if date < cutoff {
			_ = os.Remove(filepath.Join(w.dir, name))
		}
	}
}

func (w *dailyFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func configureLogging(cfg Config, stdout bool) error {
	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.setLevel(level)
	debugLogging = level == logLevelDebug

	dir := filepath.Join(cfg.DataDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	sinks := logSinks{
		pool:   newDailyFileWriter(filepath.Join(dir, "pool.log")),
		errors: newDailyFileWriter(filepath.Join(dir, "error.log")),
		stdout: stdout,
	}
	if debugLogging {
		sinks.debug = newDailyFileWriter(filepath.Join(dir, "debug.log"))
	}
	logger.setSinks(sinks)
	return nil
}

func fatal(msg string, err error, attrs ...any) {
	logger.Error(msg, append(attrs, "error", err)...)
	logger.Stop()
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
