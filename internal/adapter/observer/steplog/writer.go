// Package steplog appends committed step summaries to hourly zstd-compressed
// JSONL files.
package steplog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/klauspost/compress/zstd"

	"aitown/internal/app/ports"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Logger is a StepObserver writing one entry per committed step, one file
// set per world.
type Logger struct {
	dir string

	mu      sync.Mutex
	writers map[string]*JSONLZstdWriter
}

func NewLogger(dataDir string) *Logger {
	return &Logger{dir: dataDir, writers: map[string]*JSONLZstdWriter{}}
}

func (l *Logger) StepCommitted(ctx context.Context, s ports.StepSummary) {
	if err := l.writer(s.WorldID).Write(s); err != nil {
		hlog.CtxWarnf(ctx, "steplog: world %s generation %d: %v", s.WorldID, s.Generation, err)
	}
}

func (l *Logger) writer(worldID string) *JSONLZstdWriter {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.writers[worldID]
	if !ok {
		w = NewJSONLZstdWriter(filepath.Join(l.dir, worldID, "steps"), "steps")
		l.writers[worldID] = w
	}
	return w
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for id, w := range l.writers {
		if err := w.Close(); err != nil && first == nil {
			first = fmt.Errorf("close step log for %s: %w", id, err)
		}
	}
	return first
}
