package evaluate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ProgressCallback defines the interface for progress reporting during evaluation.
type ProgressCallback interface {
	// OnStart is called when evaluation begins with the total number of
	// images, or -1 when the source size is unknown.
	OnStart(total int)

	// OnProgress is called after every batch.
	OnProgress(current, total int)

	// OnComplete is called when evaluation is finished.
	OnComplete()

	// OnError is called when a batch fails.
	OnError(current int, err error)
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(total int)              {}
func (NoOpProgressCallback) OnProgress(current, total int)  {}
func (NoOpProgressCallback) OnComplete()                    {}
func (NoOpProgressCallback) OnError(current int, err error) {}

// BarProgressCallback draws a terminal progress bar.
type BarProgressCallback struct {
	writer      io.Writer
	description string
	mutex       sync.Mutex
	bar         *progressbar.ProgressBar
	done        int
}

// NewBarProgressCallback creates a progress bar writing to writer (stderr
// when nil).
func NewBarProgressCallback(writer io.Writer, description string) *BarProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &BarProgressCallback{writer: writer, description: description}
}

func (b *BarProgressCallback) OnStart(total int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.done = 0
	b.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(b.writer),
		progressbar.OptionSetDescription(b.description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("img"),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(b.writer) }),
	)
}

func (b *BarProgressCallback) OnProgress(current, total int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.bar == nil {
		return
	}
	_ = b.bar.Add(current - b.done)
	b.done = current
}

func (b *BarProgressCallback) OnComplete() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

func (b *BarProgressCallback) OnError(current int, err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	_, _ = fmt.Fprintf(b.writer, "\n%sError at item %d: %v\n", b.description, current, err)
}

// LogProgressCallback logs progress updates using slog.
type LogProgressCallback struct {
	logger    *slog.Logger
	level     slog.Level
	prefix    string
	interval  int // log every N images
	lastLog   int
	startTime time.Time
}

// NewLogProgressCallback creates a new log-based progress reporter.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level, prefix string) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{
		logger:   logger,
		level:    level,
		prefix:   prefix,
		interval: 500,
	}
}

// WithInterval sets how frequently to log progress (every N images).
func (l *LogProgressCallback) WithInterval(interval int) *LogProgressCallback {
	l.interval = interval
	return l
}

func (l *LogProgressCallback) OnStart(total int) {
	l.startTime = time.Now()
	l.lastLog = 0
	l.logger.Log(context.Background(), l.level, l.prefix+"evaluation started", "total", total)
}

func (l *LogProgressCallback) OnProgress(current, total int) {
	if current-l.lastLog < l.interval && current != total {
		return
	}
	l.lastLog = current
	elapsed := time.Since(l.startTime)
	attrs := []any{"current", current, "elapsed", elapsed.Round(time.Millisecond)}
	if total > 0 {
		attrs = append(attrs, "total", total, "percent", fmt.Sprintf("%.1f", float64(current)/float64(total)*100))
	}
	if elapsed > 0 {
		attrs = append(attrs, "rate", fmt.Sprintf("%.1f/s", float64(current)/elapsed.Seconds()))
	}
	l.logger.Log(context.Background(), l.level, l.prefix+"evaluation progress", attrs...)
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, l.prefix+"evaluation completed",
		"elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

func (l *LogProgressCallback) OnError(current int, err error) {
	l.logger.Log(context.Background(), slog.LevelError, l.prefix+"evaluation error", "current", current, "error", err)
}

// MultiProgressCallback combines multiple progress callbacks.
type MultiProgressCallback struct {
	callbacks []ProgressCallback
}

// NewMultiProgressCallback creates a progress callback that reports to multiple callbacks.
func NewMultiProgressCallback(callbacks ...ProgressCallback) *MultiProgressCallback {
	return &MultiProgressCallback{callbacks: callbacks}
}

func (m *MultiProgressCallback) OnStart(total int) {
	for _, cb := range m.callbacks {
		cb.OnStart(total)
	}
}

func (m *MultiProgressCallback) OnProgress(current, total int) {
	for _, cb := range m.callbacks {
		cb.OnProgress(current, total)
	}
}

func (m *MultiProgressCallback) OnComplete() {
	for _, cb := range m.callbacks {
		cb.OnComplete()
	}
}

func (m *MultiProgressCallback) OnError(current int, err error) {
	for _, cb := range m.callbacks {
		cb.OnError(current, err)
	}
}
