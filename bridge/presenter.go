package bridge

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/RedSquirrel5555/ClaudeLink/internal/telegram"
)

const (
	statusInitialText = "Working..."
	statusMaxChars    = 3500
)

// statusPresenter owns the single "working" message for one exchange:
// created up front, edited with the accumulated tool log under an edit
// throttle, and deleted before the final reply. All methods run on the
// task goroutine; no locking.
type statusPresenter struct {
	api         ChatAPI
	chatID      int64
	minInterval time.Duration

	now func() time.Time

	messageID int64
	lines     []string
	lastEdit  time.Time
	pending   bool
}

func newStatusPresenter(api ChatAPI, chatID int64, minInterval time.Duration) *statusPresenter {
	if minInterval <= 0 {
		minInterval = 3 * time.Second
	}
	return &statusPresenter{
		api:         api,
		chatID:      chatID,
		minInterval: minInterval,
		now:         time.Now,
	}
}

// Start sends the initial status message. Failure is tolerated: the
// exchange proceeds without a status line.
func (p *statusPresenter) Start(ctx context.Context) {
	msg, err := p.api.SendMessage(ctx, p.chatID, statusInitialText)
	if err != nil {
		slog.Debug("status_send_failed", "chat_id", p.chatID, "error", err)
		return
	}
	if msg != nil {
		p.messageID = msg.MessageID
	}
	p.lastEdit = p.now()
}

// Note appends one tool description and edits immediately when the
// throttle allows; otherwise the update is left pending and the latest
// accumulated log wins on the next Flush.
func (p *statusPresenter) Note(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	p.lines = append(p.lines, line)
	p.pending = true
	p.flushIfAllowed(ctx)
}

// Flush applies a pending edit once the minimum interval has elapsed.
// Call it periodically while events are quiet.
func (p *statusPresenter) Flush(ctx context.Context) {
	p.flushIfAllowed(ctx)
}

func (p *statusPresenter) flushIfAllowed(ctx context.Context) {
	if !p.pending || p.messageID == 0 {
		return
	}
	if p.now().Sub(p.lastEdit) < p.minInterval {
		return
	}
	text := p.render()
	p.pending = false
	p.lastEdit = p.now()
	if err := p.api.EditMessageText(ctx, p.chatID, p.messageID, text); err != nil {
		if !telegram.IsMessageNotModified(err) {
			slog.Debug("status_edit_failed", "chat_id", p.chatID, "error", err)
		}
	}
}

// Clear removes the status message. Idempotent; always runs before any
// final or error reply so no stale "working" message survives.
func (p *statusPresenter) Clear(ctx context.Context) {
	if p.messageID == 0 {
		return
	}
	if err := p.api.DeleteMessage(ctx, p.chatID, p.messageID); err != nil {
		slog.Debug("status_delete_failed", "chat_id", p.chatID, "error", err)
	}
	p.messageID = 0
	p.pending = false
}

// render joins the tool log, dropping leading lines when the text would
// exceed a single message.
func (p *statusPresenter) render() string {
	if len(p.lines) == 0 {
		return statusInitialText
	}
	start := 0
	text := strings.Join(p.lines, "\n")
	for len(text) > statusMaxChars && start < len(p.lines)-1 {
		start++
		text = strings.Join(p.lines[start:], "\n")
	}
	if len(text) > statusMaxChars {
		text = text[len(text)-statusMaxChars:]
	}
	return text
}
