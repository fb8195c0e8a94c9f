package claude

import (
	"bufio"
	"bytes"
	"io"
	"log/slog"
	"os/exec"
)

// Stream is a running CLI child plus the goroutine draining its stdout.
// Events() closes when stdout closes; Wait() then reports the exit error.
type Stream struct {
	cmd    *exec.Cmd
	events chan Event
	stderr *limitedBuffer

	done    chan struct{}
	waitErr error
}

func newStream(cmd *exec.Cmd, stdout io.ReadCloser, stderr *limitedBuffer, maxLineBytes int) *Stream {
	s := &Stream{
		cmd:    cmd,
		events: make(chan Event, 64),
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go s.readLoop(stdout, maxLineBytes)
	return s
}

func (s *Stream) Events() <-chan Event { return s.events }

// Wait blocks until the child has exited and its stdout is fully drained.
// Call after Events() is closed (or while draining it).
func (s *Stream) Wait() error {
	<-s.done
	return s.waitErr
}

// Stderr returns the captured (capped) stderr text so far.
func (s *Stream) Stderr() string {
	return string(bytes.TrimSpace(s.stderr.Bytes()))
}

func (s *Stream) readLoop(stdout io.ReadCloser, maxLineBytes int) {
	skipped, err := scanEvents(stdout, maxLineBytes, func(ev Event) {
		s.events <- ev
	})
	if err != nil {
		slog.Debug("claude_stream_read_error", "error", err)
	}
	if skipped > 0 {
		slog.Debug("claude_stream_skipped_lines", "count", skipped)
	}
	close(s.events)

	s.waitErr = s.cmd.Wait()
	close(s.done)
}

// scanEvents reads NDJSON lines from r until EOF, emitting parsed events in
// order and counting lines that did not parse.
func scanEvents(r io.Reader, maxLineBytes int, emit func(Event)) (int, error) {
	if maxLineBytes <= 0 {
		maxLineBytes = 1024 * 1024
	}
	scanner := bufio.NewScanner(r)
	// Stream lines carry whole tool payloads and can far exceed the
	// default 64KiB token limit.
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	skipped := 0
	for scanner.Scan() {
		ev, ok := ParseEvent(scanner.Bytes())
		if !ok {
			skipped++
			continue
		}
		emit(ev)
	}
	return skipped, scanner.Err()
}

// limitedBuffer caps captured bytes; extra writes are counted as written
// but dropped so a chatty child cannot balloon memory.
type limitedBuffer struct {
	Limit     int
	Truncated bool
	buf       bytes.Buffer
}

func (w *limitedBuffer) Write(p []byte) (int, error) {
	if w.Limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.Limit - w.buf.Len()
	if remaining <= 0 {
		w.Truncated = true
		return len(p), nil
	}
	if len(p) <= remaining {
		return w.buf.Write(p)
	}
	_, _ = w.buf.Write(p[:remaining])
	w.Truncated = true
	return len(p), nil
}

func (w *limitedBuffer) Bytes() []byte {
	return w.buf.Bytes()
}
