// Package report renders evaluation results: the run log, structured
// summaries and Prometheus metrics.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// LogFileName is the run-scoped log appended to inside the run directory.
const LogFileName = "log.txt"

// Logger writes report lines to an output stream and appends them to
// <runDir>/log.txt. It is safe for concurrent use.
type Logger struct {
	mu   sync.Mutex
	out  io.Writer
	file *os.File
	path string
}

// NewLogger creates runDir if needed and opens its log file for appending.
// An empty runDir disables the file copy.
func NewLogger(out io.Writer, runDir string) (*Logger, error) {
	if out == nil {
		out = io.Discard
	}
	l := &Logger{out: out}
	if runDir == "" {
		return l, nil
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	l.path = filepath.Join(runDir, LogFileName)
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	l.file = f
	return l, nil
}

// Path returns the run log path, or "" when there is none.
func (l *Logger) Path() string { return l.path }

// Line writes one line to both sinks.
func (l *Logger) Line(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line := s + "\n"
	if _, err := io.WriteString(l.out, line); err != nil {
		return err
	}
	if l.file != nil {
		if _, err := l.file.WriteString(line); err != nil {
			return fmt.Errorf("failed to append to run log: %w", err)
		}
	}
	return nil
}

// Start writes the run header.
func (l *Logger) Start() error { return l.Line("testing") }

// Mode writes the banner opening a mode section.
func (l *Logger) Mode(mode int) error {
	return l.Line(ModeBanner(mode))
}

// MAP writes the clean and perturbed mAP pair.
func (l *Logger) MAP(clean, perturbed float64) error {
	return l.Line(MAPLine(clean, perturbed))
}

// Close closes the run log.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ModeBanner renders "============ mode <m> =============".
func ModeBanner(mode int) string {
	return "============ mode " + strconv.Itoa(mode) + " ============="
}

// MAPLine renders "mAP:<clean>-><perturbed>".
func MAPLine(clean, perturbed float64) string {
	return "mAP:" + FormatScore(clean) + "->" + FormatScore(perturbed)
}

// FormatScore prints the shortest exact decimal, keeping a ".0" on whole
// numbers so 1 reads as 1.0.
func FormatScore(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".NI") {
		s += ".0"
	}
	return s
}
