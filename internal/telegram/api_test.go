package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	Path string
	Body map[string]any
}

type fakeBotServer struct {
	mu       sync.Mutex
	requests []recordedRequest

	// When set, sendMessage with this parse_mode fails with the error body.
	failParseMode string
}

func (s *fakeBotServer) record(r *http.Request) recordedRequest {
	raw, _ := io.ReadAll(r.Body)
	body := map[string]any{}
	_ = json.Unmarshal(raw, &body)
	rec := recordedRequest{Path: r.URL.Path, Body: body}
	s.mu.Lock()
	s.requests = append(s.requests, rec)
	s.mu.Unlock()
	return rec
}

func (s *fakeBotServer) recorded() []recordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *fakeBotServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := s.record(r)
		switch {
		case strings.HasSuffix(rec.Path, "/sendMessage"):
			mode, _ := rec.Body["parse_mode"].(string)
			if s.failParseMode != "" && mode == s.failParseMode {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities: character '_' is reserved"}`)
				return
			}
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":42,"chat":{"id":7}}}`)
		case strings.HasSuffix(rec.Path, "/editMessageText"):
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`)
		default:
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		}
	})
}

func newTestClient(t *testing.T, s *fakeBotServer) *Client {
	t.Helper()
	srv := httptest.NewServer(s.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "TESTTOKEN")
}

func TestSendMessageReturnsMessageID(t *testing.T) {
	srv := &fakeBotServer{}
	c := newTestClient(t, srv)

	msg, err := c.SendMessage(context.Background(), 7, "Working...")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg == nil || msg.MessageID != 42 {
		t.Fatalf("got %+v, want message_id 42", msg)
	}
}

func TestSendMessageMarkdownV2ParseErrorFallsBackToPlain(t *testing.T) {
	srv := &fakeBotServer{failParseMode: "MarkdownV2"}
	c := newTestClient(t, srv)

	if err := c.SendMessageMarkdownV2(context.Background(), 7, "a_b", true); err != nil {
		t.Fatalf("SendMessageMarkdownV2: %v", err)
	}

	reqs := srv.recorded()
	if len(reqs) != 3 {
		t.Fatalf("got %d requests, want 3 (markdown, escaped markdown, plain)", len(reqs))
	}
	for i := 0; i < 2; i++ {
		if mode, _ := reqs[i].Body["parse_mode"].(string); mode != "MarkdownV2" {
			t.Fatalf("request %d parse_mode = %q, want MarkdownV2", i, mode)
		}
	}
	if text, _ := reqs[1].Body["text"].(string); text != `a\_b` {
		t.Fatalf("second attempt text = %q, want escaped", text)
	}
	if mode, ok := reqs[2].Body["parse_mode"].(string); ok && mode != "" {
		t.Fatalf("fallback request parse_mode = %q, want empty", mode)
	}
	if text, _ := reqs[2].Body["text"].(string); text != "a_b" {
		t.Fatalf("fallback text = %q, want the raw text", text)
	}
}

func TestMarkdownFallbackLogsBothErrors(t *testing.T) {
	srv := &fakeBotServer{failParseMode: "MarkdownV2"}
	c := newTestClient(t, srv)

	var logBuf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logBuf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	if err := c.SendMessageMarkdownV2(context.Background(), 7, "a_b", true); err != nil {
		t.Fatalf("SendMessageMarkdownV2: %v", err)
	}

	logged := logBuf.String()
	if !strings.Contains(logged, "error=") || !strings.Contains(logged, "escaped_error=") {
		t.Fatalf("fallback log missing one of the attempt errors: %q", logged)
	}
}

func TestSendMessageChunkedReplySplitsAndRepliesOnce(t *testing.T) {
	srv := &fakeBotServer{}
	c := newTestClient(t, srv)

	long := strings.Repeat("x", 8000)
	if err := c.SendMessageChunkedReply(context.Background(), 7, long, 99); err != nil {
		t.Fatalf("SendMessageChunkedReply: %v", err)
	}

	reqs := srv.recorded()
	if len(reqs) != 3 {
		t.Fatalf("got %d requests, want 3 chunks", len(reqs))
	}
	for i, r := range reqs {
		text, _ := r.Body["text"].(string)
		if len(text) > 3500 {
			t.Fatalf("chunk %d has %d chars, want <= 3500", i, len(text))
		}
		replyTo, _ := r.Body["reply_to_message_id"].(float64)
		if i == 0 && int64(replyTo) != 99 {
			t.Fatalf("first chunk reply_to = %v, want 99", replyTo)
		}
		if i > 0 && replyTo != 0 {
			t.Fatalf("chunk %d reply_to = %v, want 0", i, replyTo)
		}
	}
}

func TestDownloadFileToRemovesOversizedPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 2048))
	}))
	defer srv.Close()
	c := NewClient(srv.Client(), srv.URL, "TESTTOKEN")

	dst := filepath.Join(t.TempDir(), "big.bin")
	_, tooLarge, err := c.DownloadFileTo(context.Background(), "documents/big.bin", dst, 1024)
	if err == nil {
		t.Fatal("want error for oversized download")
	}
	if !tooLarge {
		t.Fatalf("tooLarge = false, want true (err=%v)", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Fatalf("partial download left behind (err=%v)", statErr)
	}
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":[{"update_id":7,"message":{"message_id":1,"chat":{"id":5},"text":"hi"}},{"update_id":9,"message":{"message_id":2,"chat":{"id":5},"text":"yo"}}]}`)
	}))
	defer srv.Close()
	c := NewClient(srv.Client(), srv.URL, "TESTTOKEN")

	updates, next, err := c.GetUpdates(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if next != 10 {
		t.Fatalf("next offset = %d, want 10", next)
	}
}

func TestEditMessageTextNotModifiedClassified(t *testing.T) {
	srv := &fakeBotServer{}
	c := newTestClient(t, srv)

	err := c.EditMessageText(context.Background(), 7, 42, "same text")
	if err == nil {
		t.Fatal("want error for not-modified edit")
	}
	if !IsMessageNotModified(err) {
		t.Fatalf("IsMessageNotModified(%v) = false, want true", err)
	}
	if IsMarkdownParseError(err) {
		t.Fatalf("IsMarkdownParseError(%v) = true, want false", err)
	}
}

func TestDeleteWebhookSendsDropPending(t *testing.T) {
	srv := &fakeBotServer{}
	c := newTestClient(t, srv)

	if err := c.DeleteWebhook(context.Background(), true); err != nil {
		t.Fatalf("DeleteWebhook: %v", err)
	}
	reqs := srv.recorded()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if v, _ := reqs[0].Body["drop_pending_updates"].(bool); !v {
		t.Fatalf("drop_pending_updates = %v, want true", reqs[0].Body["drop_pending_updates"])
	}
}

func TestRequestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *RequestError
		want string
	}{
		{
			name: "with_description",
			err:  &RequestError{StatusCode: 400, Description: "Bad Request: chat not found"},
			want: "telegram http 400: Bad Request: chat not found",
		},
		{
			name: "body_only",
			err:  &RequestError{StatusCode: 502, Body: "bad gateway"},
			want: "telegram http 502: bad gateway",
		},
		{
			name: "empty",
			err:  &RequestError{},
			want: "telegram request failed",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}
