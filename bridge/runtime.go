// Package bridge relays chat messages between Telegram and the Claude Code
// CLI: it long-polls updates, guards on the owner id, and hands each owner
// message to a per-chat worker that runs one assistant subprocess per
// exchange and streams progress back into the chat.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RedSquirrel5555/ClaudeLink/claude"
	"github.com/RedSquirrel5555/ClaudeLink/internal/telegram"
	"github.com/RedSquirrel5555/ClaudeLink/internal/transcript"
	"github.com/RedSquirrel5555/ClaudeLink/session"
)

type Runtime struct {
	opts    Options
	api     ChatAPI
	runner  Runner
	session *session.Store
	trans   *transcript.Writer
	logger  *slog.Logger

	mu      sync.Mutex
	workers map[int64]*chatWorker

	sem          chan struct{}
	botUsername  string
	downloadsDir string
}

// Deps are injectable collaborators; nil fields get production defaults
// built from Options.
type Deps struct {
	API        ChatAPI
	Runner     Runner
	Session    *session.Store
	Transcript *transcript.Writer
	Logger     *slog.Logger
}

func New(opts Options, deps Deps) (*Runtime, error) {
	opts = normalizeOptions(opts)
	if err := opts.validate(); err != nil {
		return nil, err
	}

	api := deps.API
	if api == nil {
		api = telegram.NewClient(nil, opts.BaseURL, opts.BotToken)
	}
	runner := deps.Runner
	if runner == nil {
		runner = cliRunner{r: claude.NewRunner(claude.Options{
			Bin:          opts.ClaudeBin,
			Model:        opts.Model,
			AllowedTools: opts.AllowedTools,
			WorkspaceDir: opts.WorkspaceDir,
			MaxLineBytes: opts.MaxLineBytes,
		})}
	}
	sess := deps.Session
	if sess == nil {
		sess = session.NewStore(opts.Model)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runtime{
		opts:    opts,
		api:     api,
		runner:  runner,
		session: sess,
		trans:   deps.Transcript,
		logger:  logger,
		workers: map[int64]*chatWorker{},
		sem:     make(chan struct{}, opts.MaxConcurrency),
	}, nil
}

type chatWorker struct {
	Jobs    chan job
	Version uint64
}

type job struct {
	TaskID  string
	Msg     *telegram.Message
	Version uint64
}

// Run polls for updates until ctx is cancelled. Startup failures (bad
// cache dir) return an error; a cancelled ctx returns nil.
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.prepareFileCache(); err != nil {
		return err
	}
	if lp, ok := rt.runner.(interface{ LookPath() (string, error) }); ok {
		if path, err := lp.LookPath(); err != nil {
			rt.logger.Warn("assistant_binary_not_found", "bin", rt.opts.ClaudeBin, "error", err.Error())
		} else {
			rt.logger.Debug("assistant_binary", "path", path)
		}
	}

	me, err := rt.waitForMe(ctx)
	if err != nil {
		return err
	}
	rt.botUsername = me.Username

	if err := rt.api.DeleteWebhook(ctx, rt.opts.DropPendingUpdates); err != nil {
		rt.logger.Warn("telegram_delete_webhook_error", "error", err.Error())
	}

	rt.logger.Info("bridge_start",
		"bot_username", me.Username,
		"bot_id", me.ID,
		"owner_id", rt.opts.OwnerID,
		"model", rt.opts.Model,
		"workspace_dir", rt.opts.WorkspaceDir,
		"command_timeout", rt.opts.CommandTimeout.String(),
		"poll_timeout", rt.opts.PollTimeout.String(),
		"edit_interval", rt.opts.EditInterval.String(),
		"max_concurrency", rt.opts.MaxConcurrency,
		"files_enabled", rt.opts.FilesEnabled,
	)

	var offset int64
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, next, err := rt.api.GetUpdates(ctx, offset, rt.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if telegram.IsPollTimeoutError(err) {
				continue
			}
			rt.logger.Warn("telegram_get_updates_error", "error", err.Error())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		offset = next

		for _, u := range updates {
			rt.handleUpdate(ctx, u)
		}
	}
}

// waitForMe retries getMe until it succeeds or ctx ends, so a flaky
// network at boot does not kill the daemon.
func (rt *Runtime) waitForMe(ctx context.Context) (*telegram.User, error) {
	for {
		me, err := rt.api.GetMe(ctx)
		if err == nil {
			return me, nil
		}
		rt.logger.Warn("telegram_get_me_error", "error", err.Error())
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (rt *Runtime) prepareFileCache() error {
	if !rt.opts.FilesEnabled {
		return nil
	}
	if err := telegram.EnsureSecureCacheDir(rt.opts.FileCacheDir); err != nil {
		return fmt.Errorf("file cache dir: %w", err)
	}
	rt.downloadsDir = filepath.Join(rt.opts.FileCacheDir, "downloads")
	if err := telegram.EnsureSecureCacheDir(rt.downloadsDir); err != nil {
		return fmt.Errorf("downloads dir: %w", err)
	}
	if err := telegram.CleanupFileCacheDir(rt.opts.FileCacheDir, rt.opts.FileCacheMaxAge, rt.opts.FileCacheMaxFiles, rt.opts.FileCacheMaxTotalBytes); err != nil {
		rt.logger.Warn("file_cache_cleanup_error", "error", err.Error())
	}
	return nil
}

func (rt *Runtime) handleUpdate(ctx context.Context, u telegram.Update) {
	msg := u.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	if !rt.authorized(msg.From) {
		// Silent: no reply, and ids only in the log.
		var senderID int64
		if msg.From != nil {
			senderID = msg.From.ID
		}
		rt.logger.Debug("unauthorized_update_dropped", "chat_id", msg.Chat.ID, "sender_id", senderID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	hasAttachments := rt.opts.FilesEnabled && (msg.Document != nil || len(msg.Photo) > 0)
	if text == "" && strings.TrimSpace(msg.Caption) == "" && !hasAttachments {
		return
	}

	if !hasAttachments && strings.HasPrefix(text, "/") {
		cmdWord, _ := splitCommand(text)
		if tag := commandAddressee(cmdWord); tag != "" && rt.botUsername != "" && !strings.EqualFold(tag, rt.botUsername) {
			rt.logger.Debug("command_for_other_bot_dropped", "chat_id", msg.Chat.ID)
			return
		}
		if rt.handleCommand(ctx, msg, normalizeSlashCommand(cmdWord)) {
			return
		}
		// Unrecognized commands run as plain prompts.
	}

	rt.enqueue(ctx, msg)
}

func (rt *Runtime) authorized(from *telegram.User) bool {
	return from != nil && from.ID == rt.opts.OwnerID
}

func (rt *Runtime) enqueue(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	rt.mu.Lock()
	w := rt.getOrStartWorkerLocked(ctx, chatID)
	v := w.Version
	rt.mu.Unlock()

	jb := job{TaskID: uuid.NewString(), Msg: msg, Version: v}
	select {
	case w.Jobs <- jb:
		rt.logger.Info("task_enqueued", "task_id", jb.TaskID, "chat_id", chatID, "text_len", len(msg.Text))
	default:
		rt.logger.Warn("task_queue_full", "chat_id", chatID)
		_ = rt.api.SendMessageChunkedReply(ctx, chatID, "Busy with earlier messages. Try again in a moment.", msg.MessageID)
	}
}

// Per chat serial; across chats parallel, gated by the global semaphore.
func (rt *Runtime) getOrStartWorkerLocked(ctx context.Context, chatID int64) *chatWorker {
	if w, ok := rt.workers[chatID]; ok && w != nil {
		return w
	}
	w := &chatWorker{Jobs: make(chan job, 16)}
	rt.workers[chatID] = w

	go func() {
		for jb := range w.Jobs {
			rt.sem <- struct{}{}
			func() {
				defer func() { <-rt.sem }()

				rt.mu.Lock()
				cur := w.Version
				rt.mu.Unlock()
				// A /clear after enqueue invalidates the job.
				if jb.Version != cur {
					rt.logger.Debug("task_dropped_after_clear", "task_id", jb.TaskID, "chat_id", chatID)
					return
				}
				rt.runTask(ctx, jb)
			}()
		}
	}()
	return w
}

func (rt *Runtime) bumpWorkerVersion(chatID int64) {
	rt.mu.Lock()
	if w, ok := rt.workers[chatID]; ok && w != nil {
		w.Version++
	}
	rt.mu.Unlock()
}

func (rt *Runtime) startTyping(ctx context.Context, chatID int64) func() {
	ticker := time.NewTicker(4 * time.Second)
	done := make(chan struct{})

	go func() {
		_ = rt.api.SendChatAction(ctx, chatID, "typing")
		for {
			select {
			case <-ticker.C:
				_ = rt.api.SendChatAction(ctx, chatID, "typing")
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		select {
		case <-done:
		default:
			close(done)
		}
		ticker.Stop()
	}
}

func splitCommand(text string) (cmd string, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	i := strings.IndexAny(text, " \n\t")
	if i == -1 {
		return text, ""
	}
	return text[:i], strings.TrimSpace(text[i:])
}

// commandAddressee returns the "@BotName" tag of a command word, or "".
func commandAddressee(cmd string) string {
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		return cmd[at+1:]
	}
	return ""
}

func normalizeSlashCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || !strings.HasPrefix(cmd, "/") {
		return ""
	}
	// Allow "/cmd@BotName" variants by stripping "@...".
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
