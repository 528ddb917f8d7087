// Package logging configures logrus for the service and exposes the JSON log
// file it writes so the API can serve recent entries back to operators.
package logging

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ErrLogNotFound is returned by ReadTail when the log file does not exist yet.
var ErrLogNotFound = errors.New("log file not found")

// Options controls console and file output.
type Options struct {
	Level  string
	Format string // "text" or "json"
	File   string // optional JSON-lines file, empty disables it
}

// fileHook writes every entry as one JSON line, independent of the console formatter.
type fileHook struct {
	mu        sync.Mutex
	w         io.Writer
	formatter log.Formatter
}

func (h *fileHook) Levels() []log.Level { return log.AllLevels }

func (h *fileHook) Fire(entry *log.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(line)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup applies opts to the standard logrus logger. The returned closer
// releases the log file and is safe to call when no file was opened.
func Setup(opts Options) (io.Closer, error) {
	return setup(log.StandardLogger(), opts)
}

func setup(logger *log.Logger, opts Options) (io.Closer, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		parsed, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	logger.SetLevel(level)

	if opts.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if opts.File == "" {
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger.AddHook(&fileHook{w: f, formatter: &log.JSONFormatter{}})
	return f, nil
}

// Entry is one parsed line of the JSON log file.
type Entry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// ReadTail returns up to limit entries from the end of the log file, newest first.
func ReadTail(path string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrLogNotFound
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	// Keep a sliding window of the last `limit` lines.
	window := make([]string, 0, limit)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(window) == limit {
			window = window[1:]
		}
		window = append(window, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	entries := make([]Entry, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		entries = append(entries, parseLine(window[i]))
	}
	return entries, nil
}

func parseLine(line string) Entry {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{Message: line}
	}
	e := Entry{}
	if v, ok := raw["time"].(string); ok {
		e.Timestamp = v
	}
	if v, ok := raw["level"].(string); ok {
		e.Level = v
	}
	if v, ok := raw["msg"].(string); ok {
		e.Message = v
	}
	delete(raw, "time")
	delete(raw, "level")
	delete(raw, "msg")
	if len(raw) > 0 {
		e.Fields = raw
	}
	return e
}
