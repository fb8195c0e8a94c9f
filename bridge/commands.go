package bridge

import (
	"context"
	"fmt"
	"os"

	"github.com/RedSquirrel5555/ClaudeLink/internal/telegram"
	"github.com/RedSquirrel5555/ClaudeLink/session"
)

const bannerText = "ClaudeLink online. Send me anything."

// handleCommand dispatches registered slash commands. Returns false for
// unrecognized ones, which then run as plain prompts.
func (rt *Runtime) handleCommand(ctx context.Context, msg *telegram.Message, cmd string) bool {
	chatID := msg.Chat.ID
	switch cmd {
	case "/start", "/help":
		rt.replyPlain(ctx, chatID, bannerText)
		return true
	case "/clear":
		rt.session.Clear()
		rt.bumpWorkerVersion(chatID)
		rt.clearDownloads()
		rt.replyPlain(ctx, chatID, "Session reset. Next message starts fresh.")
		rt.logger.Info("session_cleared", "chat_id", chatID)
		return true
	case "/status":
		rt.replyPlain(ctx, chatID, formatStatus(rt.session.Snapshot()))
		return true
	default:
		return false
	}
}

func formatStatus(snap session.Snapshot) string {
	if snap.ID == "" {
		return "No active session.\nModel: " + snap.Model
	}
	return fmt.Sprintf("Session: %s...\nMessages: %d\nModel: %s", idPrefix(snap.ID, 8), snap.Messages, snap.Model)
}

func idPrefix(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}

func (rt *Runtime) clearDownloads() {
	if !rt.opts.FilesEnabled || rt.downloadsDir == "" {
		return
	}
	if err := os.RemoveAll(rt.downloadsDir); err != nil {
		rt.logger.Warn("downloads_clear_error", "error", err.Error())
		return
	}
	if err := telegram.EnsureSecureCacheDir(rt.downloadsDir); err != nil {
		rt.logger.Warn("downloads_recreate_error", "error", err.Error())
	}
}

func (rt *Runtime) replyPlain(ctx context.Context, chatID int64, text string) {
	if _, err := rt.api.SendMessage(ctx, chatID, text); err != nil {
		rt.logger.Warn("telegram_send_error", "chat_id", chatID, "error", err.Error())
	}
}
