package bridge

import (
	"context"
	"time"

	"github.com/RedSquirrel5555/ClaudeLink/claude"
	"github.com/RedSquirrel5555/ClaudeLink/internal/telegram"
)

// ChatAPI is the slice of the Telegram client the runtime calls. Tests
// substitute a recorder.
type ChatAPI interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
	DeleteWebhook(ctx context.Context, dropPending bool) error

	SendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
	SendMessageChunkedReply(ctx context.Context, chatID int64, text string, replyToMessageID int64) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendChatAction(ctx context.Context, chatID int64, action string) error

	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	DownloadFileTo(ctx context.Context, filePath, dstPath string, maxBytes int64) (int64, bool, error)
	SendDocument(ctx context.Context, chatID int64, filePath, filename, caption string) error
	SendPhoto(ctx context.Context, chatID int64, filePath, filename, caption string) error
}

var _ ChatAPI = (*telegram.Client)(nil)

// Runner starts one assistant subprocess per exchange.
type Runner interface {
	Start(ctx context.Context, req claude.Request) (Stream, error)
}

// Stream is the event side of a running subprocess.
type Stream interface {
	Events() <-chan claude.Event
	Wait() error
	Stderr() string
}

type cliRunner struct {
	r *claude.Runner
}

func (c cliRunner) Start(ctx context.Context, req claude.Request) (Stream, error) {
	s, err := c.r.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c cliRunner) LookPath() (string, error) {
	return c.r.LookPath()
}
