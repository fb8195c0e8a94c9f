package bridge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RedSquirrel5555/ClaudeLink/internal/telegram"
	"github.com/RedSquirrel5555/ClaudeLink/session"
)

func commandMessage(text string) *telegram.Message {
	return &telegram.Message{
		MessageID: 11,
		Chat:      &telegram.Chat{ID: 7},
		From:      &telegram.User{ID: testOwnerID},
		Text:      text,
	}
}

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		name        string
		cmd         string
		setup       func(rt *Runtime)
		wantHandled bool
		wantReply   string
	}{
		{
			name:        "start",
			cmd:         "/start",
			wantHandled: true,
			wantReply:   bannerText,
		},
		{
			name:        "help",
			cmd:         "/help",
			wantHandled: true,
			wantReply:   bannerText,
		},
		{
			name:        "status without session",
			cmd:         "/status",
			wantHandled: true,
			wantReply:   "No active session.\nModel: opus",
		},
		{
			name: "status with session",
			cmd:  "/status",
			setup: func(rt *Runtime) {
				_, gen := rt.session.Resume()
				rt.session.Observe("sess-abcdef123456", gen)
				rt.session.BumpMessages(gen)
				rt.session.BumpMessages(gen)
			},
			wantHandled: true,
			wantReply:   "Session: sess-abc...\nMessages: 2\nModel: opus",
		},
		{
			name: "clear",
			cmd:  "/clear",
			setup: func(rt *Runtime) {
				_, gen := rt.session.Resume()
				rt.session.Observe("sess-1", gen)
			},
			wantHandled: true,
			wantReply:   "Session reset. Next message starts fresh.",
		},
		{
			name:        "unknown falls through",
			cmd:         "/frobnicate",
			wantHandled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeChat()
			rt := newTestRuntime(t, Options{}, api, &fakeRunner{})
			if tt.setup != nil {
				tt.setup(rt)
			}

			handled := rt.handleCommand(context.Background(), commandMessage(tt.cmd), tt.cmd)
			if handled != tt.wantHandled {
				t.Fatalf("handled = %v, want %v", handled, tt.wantHandled)
			}

			sends := api.callsOf("sendMessage")
			if !tt.wantHandled {
				if len(sends) != 0 {
					t.Fatalf("unknown command replied: %+v", sends)
				}
				return
			}
			if len(sends) != 1 {
				t.Fatalf("replies = %d, want 1", len(sends))
			}
			if sends[0].text != tt.wantReply {
				t.Fatalf("reply = %q, want %q", sends[0].text, tt.wantReply)
			}
		})
	}
}

func TestClearWipesDownloads(t *testing.T) {
	api := newFakeChat()
	rt := newTestRuntime(t, Options{FilesEnabled: true, FileCacheDir: t.TempDir()}, api, &fakeRunner{})
	if err := rt.prepareFileCache(); err != nil {
		t.Fatalf("prepareFileCache: %v", err)
	}

	stale := filepath.Join(rt.downloadsDir, "old.bin")
	if err := os.WriteFile(stale, []byte("leftover"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if !rt.handleCommand(context.Background(), commandMessage("/clear"), "/clear") {
		t.Fatal("/clear not handled")
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale download survived /clear")
	}
	st, err := os.Stat(rt.downloadsDir)
	if err != nil || !st.IsDir() {
		t.Fatalf("downloads dir not recreated after /clear: %v", err)
	}
}

func TestIDPrefix(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abcdefghij", 8, "abcdefgh"},
		{"abc", 8, "abc"},
		{"", 8, ""},
	}
	for _, tt := range tests {
		if got := idPrefix(tt.in, tt.n); got != tt.want {
			t.Fatalf("idPrefix(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestFormatStatusShortID(t *testing.T) {
	got := formatStatus(session.Snapshot{ID: "abc", Messages: 1, Model: "opus"})
	if !strings.HasPrefix(got, "Session: abc...") {
		t.Fatalf("formatStatus = %q, want short id kept whole", got)
	}
}
