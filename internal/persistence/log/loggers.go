package log

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
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
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour || w.w == nil {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
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

// TrafficEntry is one envelope seen by the bridge. Raw holds the envelope
// when it is valid JSON; anything else lands in Text.
type TrafficEntry struct {
	T    string          `json:"t"`
	Dir  string          `json:"dir"`
	Type string          `json:"type"`
	Size int             `json:"size"`
	Raw  json.RawMessage `json:"raw,omitempty"`
	Text string          `json:"text,omitempty"`
}

// TrafficJournal writes every envelope into traffic-*.jsonl.zst files.
type TrafficJournal struct {
	w      *JSONLZstdWriter
	failed atomic.Uint64
}

func NewTrafficJournal(dir string) *TrafficJournal {
	return &TrafficJournal{w: NewJSONLZstdWriter(dir, "traffic")}
}

// Record never fails the caller; write errors are counted in Failed.
func (j *TrafficJournal) Record(dir, msgType string, raw []byte) {
	e := TrafficEntry{
		T:    j.w.now().UTC().Format(time.RFC3339Nano),
		Dir:  dir,
		Type: msgType,
		Size: len(raw),
	}
	if json.Valid(raw) {
		e.Raw = append(json.RawMessage(nil), raw...)
	} else {
		e.Text = string(raw)
	}
	if err := j.w.Write(e); err != nil {
		j.failed.Add(1)
	}
}

func (j *TrafficJournal) Failed() uint64 { return j.failed.Load() }
func (j *TrafficJournal) Close() error   { return j.w.Close() }
