package bridge

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/RedSquirrel5555/ClaudeLink/claude"
	"github.com/RedSquirrel5555/ClaudeLink/internal/transcript"
)

// runTask performs one exchange: spawn the assistant, relay its tool
// activity into the status message, then replace the status with the final
// reply. Runs on a worker goroutine; ctx is the runtime's lifetime.
func (rt *Runtime) runTask(ctx context.Context, jb job) {
	msg := jb.Msg
	chatID := msg.Chat.ID
	started := time.Now()

	typingStop := rt.startTyping(ctx, chatID)
	defer typingStop()

	presenter := newStatusPresenter(rt.api, chatID, rt.opts.EditInterval)
	presenter.Start(ctx)

	prompt, attachments, err := rt.buildPrompt(ctx, msg)
	if err != nil {
		presenter.Clear(ctx)
		rt.reply(ctx, chatID, msg.MessageID, "Error: "+err.Error())
		return
	}
	if strings.TrimSpace(prompt) == "" {
		presenter.Clear(ctx)
		return
	}

	// The generation pins this exchange to the session state it started
	// from; a /clear while the subprocess runs silences its session writes.
	resumeID, sessionGen := rt.session.Resume()

	runCtx, cancel := context.WithTimeout(ctx, rt.opts.CommandTimeout)
	defer cancel()

	stream, err := rt.runner.Start(runCtx, claude.Request{Prompt: prompt, SessionID: resumeID})
	if err != nil {
		presenter.Clear(ctx)
		rt.reply(ctx, chatID, msg.MessageID, "Error: failed to start assistant: "+err.Error())
		rt.appendTranscript(transcript.Record{
			ID:          jb.TaskID,
			ChatID:      chatID,
			Resumed:     resumeID != "",
			PromptChars: len(prompt),
			Error:       "spawn: " + err.Error(),
		})
		return
	}

	rt.logger.Info("task_started",
		"task_id", jb.TaskID,
		"chat_id", chatID,
		"resumed", resumeID != "",
		"attachments", len(attachments),
	)

	var (
		result    *claude.Result
		toolNotes []string
		written   []string
	)

	events := stream.Events()
	flushTick := time.NewTicker(time.Second)
	defer flushTick.Stop()

	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.SessionID != "" {
				rt.session.Observe(ev.SessionID, sessionGen)
			}
			for _, tc := range ev.Tools {
				note := claude.DescribeToolUse(tc.Name, tc.Input)
				toolNotes = append(toolNotes, note)
				presenter.Note(ctx, note)
				if tc.Name == "Write" {
					written = appendWrittenPath(written, tc.Input, rt.opts.WorkspaceDir)
				}
			}
			if ev.Result != nil && result == nil {
				result = ev.Result
			}
		case <-flushTick.C:
			presenter.Flush(ctx)
		}
	}

	waitErr := stream.Wait()

	rec := transcript.Record{
		ID:          jb.TaskID,
		ChatID:      chatID,
		SessionID:   rt.session.ID(),
		Resumed:     resumeID != "",
		PromptChars: len(prompt),
		Tools:       toolNotes,
		Attachments: len(attachments),
		DurationMS:  time.Since(started).Milliseconds(),
	}

	// The child is already dead here (killed through runCtx); exactly one
	// timeout reply and no residual status message.
	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		presenter.Clear(ctx)
		mins := int(rt.opts.CommandTimeout.Minutes())
		rt.reply(ctx, chatID, msg.MessageID, fmt.Sprintf("Timed out after %dmin. Try breaking it into smaller asks.", mins))
		rec.Error = "timeout"
		rt.appendTranscript(rec)
		rt.logger.Warn("task_timeout", "task_id", jb.TaskID, "chat_id", chatID, "timeout", rt.opts.CommandTimeout.String())
		return
	}
	if ctx.Err() != nil {
		// Shutting down: tidy the status message, skip the reply.
		clearCtx, cancelClear := context.WithTimeout(context.Background(), 5*time.Second)
		presenter.Clear(clearCtx)
		cancelClear()
		return
	}

	var replyText string
	switch {
	case result != nil && strings.TrimSpace(result.Text) != "":
		replyText = result.Text
		rec.NumTurns = result.NumTurns
		rec.CostUSD = result.CostUSD
		if result.IsError {
			rec.Error = "assistant_error"
		}
	case waitErr != nil:
		exitCode := -1
		var ee *exec.ExitError
		if errors.As(waitErr, &ee) {
			exitCode = ee.ExitCode()
		}
		detail := stream.Stderr()
		if detail == "" {
			detail = waitErr.Error()
		}
		replyText = fmt.Sprintf("Error (exit %d): %s", exitCode, tailString(detail, 500))
		rec.Error = fmt.Sprintf("exit %d", exitCode)
	default:
		replyText = stream.Stderr()
		if strings.TrimSpace(replyText) == "" {
			replyText = "(no response)"
		}
	}
	rec.ReplyChars = len(replyText)

	// Status goes away before the reply lands, never after.
	presenter.Clear(ctx)
	rt.reply(ctx, chatID, msg.MessageID, replyText)

	if result != nil && !result.IsError {
		rt.session.BumpMessages(sessionGen)
	}

	if rt.opts.FilesEnabled && len(written) > 0 {
		rec.SentFiles = rt.sendWrittenFiles(ctx, chatID, written)
	}

	rt.appendTranscript(rec)
	rt.logger.Info("task_done",
		"task_id", jb.TaskID,
		"chat_id", chatID,
		"duration_ms", rec.DurationMS,
		"tools", len(toolNotes),
		"reply_chars", rec.ReplyChars,
	)
}

func (rt *Runtime) reply(ctx context.Context, chatID, replyTo int64, text string) {
	if err := rt.api.SendMessageChunkedReply(ctx, chatID, text, replyTo); err != nil {
		rt.logger.Warn("telegram_send_error", "chat_id", chatID, "error", err.Error())
	}
}

func (rt *Runtime) appendTranscript(rec transcript.Record) {
	if rt.trans == nil {
		return
	}
	if err := rt.trans.Append(rec); err != nil {
		rt.logger.Warn("transcript_append_error", "error", err.Error())
	}
}

func tailString(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
