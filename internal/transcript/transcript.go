// Package transcript appends one JSONL record per completed exchange.
// Records carry ids, sizes, and timings but never prompt or reply text,
// so the log is safe to keep around for debugging.
package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Record struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	ChatID      int64     `json:"chat_id"`
	SessionID   string    `json:"session_id,omitempty"`
	Resumed     bool      `json:"resumed,omitempty"`
	PromptChars int       `json:"prompt_chars"`
	ReplyChars  int       `json:"reply_chars"`
	Tools       []string  `json:"tools,omitempty"`
	Attachments int       `json:"attachments,omitempty"`
	SentFiles   int       `json:"sent_files,omitempty"`
	NumTurns    int       `json:"num_turns,omitempty"`
	DurationMS  int64     `json:"duration_ms,omitempty"`
	CostUSD     float64   `json:"cost_usd,omitempty"`
	Error       string    `json:"error,omitempty"`
}

type Writer struct {
	path           string
	rotateMaxBytes int64

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	size   int64
	closed bool

	now func() time.Time
}

func NewWriter(path string, rotateMaxBytes int64) (*Writer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("missing transcript path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		path:           abs,
		rotateMaxBytes: rotateMaxBytes,
		now:            time.Now,
	}
	if err := w.openLocked(); err != nil {
		return nil, err
	}
	return w, nil
}

// Append writes rec as one line, filling ID and Time when unset.
func (w *Writer) Append(rec Record) error {
	if w == nil {
		return nil
	}
	if strings.TrimSpace(rec.ID) == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = w.now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("transcript encode: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendBytesLocked(data)
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.writer != nil {
		_ = w.writer.Flush()
	}
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		w.writer = nil
		w.size = 0
		return err
	}
	return nil
}

func (w *Writer) appendBytesLocked(data []byte) error {
	if w.closed {
		return fmt.Errorf("transcript writer closed")
	}
	if err := w.rotateIfNeededLocked(int64(len(data))); err != nil {
		return err
	}
	n, err := w.writer.Write(data)
	if err != nil {
		return err
	}
	w.size += int64(n)
	return w.writer.Flush()
}

func (w *Writer) rotateIfNeededLocked(incomingBytes int64) error {
	if w.rotateMaxBytes <= 0 {
		return nil
	}
	if w.size+incomingBytes <= w.rotateMaxBytes {
		return nil
	}
	if w.writer != nil {
		_ = w.writer.Flush()
	}
	if w.file != nil {
		_ = w.file.Close()
	}

	if err := w.renameCurrentWithTimestampLocked(); err != nil {
		return err
	}
	w.file = nil
	w.writer = nil
	w.size = 0
	return w.openLocked()
}

func (w *Writer) renameCurrentWithTimestampLocked() error {
	ts := w.now().UTC().Format("20060102T150405Z")
	base := fmt.Sprintf("%s.%s", w.path, ts)
	rotatedPath := base
	for i := 0; ; i++ {
		if i > 0 {
			rotatedPath = fmt.Sprintf("%s.%d", base, i)
		}
		if _, err := os.Stat(rotatedPath); err == nil {
			continue
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.Rename(w.path, rotatedPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		return nil
	}
}

func (w *Writer) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o700); err != nil {
		return err
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}
	w.file = file
	w.writer = bufio.NewWriterSize(file, 64*1024)
	w.size = info.Size()
	return nil
}
