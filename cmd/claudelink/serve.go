package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/RedSquirrel5555/ClaudeLink/bridge"
	"github.com/RedSquirrel5555/ClaudeLink/internal/configutil"
	"github.com/RedSquirrel5555/ClaudeLink/internal/logutil"
	"github.com/RedSquirrel5555/ClaudeLink/internal/pathutil"
	"github.com/RedSquirrel5555/ClaudeLink/internal/transcript"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			opts := bridge.Options{
				BotToken:           configutil.FlagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"),
				OwnerID:            configutil.FlagOrViperInt64(cmd, "owner-id", "telegram.owner_id"),
				Model:              configutil.FlagOrViperString(cmd, "model", "claude.model"),
				WorkspaceDir:       pathutil.ExpandHomePath(configutil.FlagOrViperString(cmd, "workspace-dir", "workspace_dir")),
				ClaudeBin:          configutil.FlagOrViperString(cmd, "claude-bin", "claude.bin"),
				AllowedTools:       configutil.FlagOrViperStringArray(cmd, "allowed-tool", "claude.allowed_tools"),
				PollTimeout:        configutil.FlagOrViperDuration(cmd, "poll-timeout", "telegram.poll_timeout"),
				EditInterval:       configutil.FlagOrViperDuration(cmd, "edit-interval", "telegram.edit_interval"),
				MaxConcurrency:     configutil.FlagOrViperInt(cmd, "max-concurrency", "telegram.max_concurrency"),
				DropPendingUpdates: configutil.FlagOrViperBool(cmd, "drop-pending-updates", "telegram.drop_pending_updates"),

				FilesEnabled:           configutil.FlagOrViperBool(cmd, "files-enabled", "files.enabled"),
				FileCacheDir:           pathutil.ResolveStateDir(configutil.FlagOrViperString(cmd, "file-cache-dir", "file_cache_dir"), "~/.claudelink/cache"),
				FileMaxBytes:           configutil.FlagOrViperInt64(cmd, "file-max-bytes", "files.max_bytes"),
				FileCacheMaxAge:        viper.GetDuration("file_cache.max_age"),
				FileCacheMaxFiles:      viper.GetInt("file_cache.max_files"),
				FileCacheMaxTotalBytes: viper.GetInt64("file_cache.max_total_bytes"),
			}

			if strings.TrimSpace(opts.BotToken) == "" {
				return fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or TELEGRAM_BOT_TOKEN)")
			}
			if opts.OwnerID == 0 {
				return fmt.Errorf("missing telegram.owner_id (set via --owner-id or OWNER_TELEGRAM_ID)")
			}

			timeout, err := parseCommandTimeout(configutil.FlagOrViperString(cmd, "command-timeout", "command_timeout"))
			if err != nil {
				return err
			}
			opts.CommandTimeout = timeout

			if abs, err := filepath.Abs(opts.WorkspaceDir); err == nil {
				opts.WorkspaceDir = abs
			}

			// A .claudelink.yaml at the workspace root can pin per-project
			// settings over the global ones.
			profile, err := bridge.LoadWorkspaceProfile(opts.WorkspaceDir)
			if err != nil {
				return err
			}
			if err := profile.Apply(&opts); err != nil {
				return err
			}

			deps := bridge.Deps{Logger: logger}
			if path := strings.TrimSpace(configutil.FlagOrViperString(cmd, "transcript-path", "transcript.path")); path != "" {
				w, err := transcript.NewWriter(pathutil.ExpandHomePath(path), viper.GetInt64("transcript.rotate_max_bytes"))
				if err != nil {
					return fmt.Errorf("open transcript: %w", err)
				}
				defer func() { _ = w.Close() }()
				deps.Transcript = w
			}

			rt, err := bridge.New(opts, deps)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.Run(runCtx)
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().Int64("owner-id", 0, "Telegram user id allowed to talk to the bridge.")
	cmd.Flags().String("model", "", "Claude model alias or name (defaults to opus).")
	cmd.Flags().String("workspace-dir", "", "Directory the assistant works in.")
	cmd.Flags().String("command-timeout", "", "Per-message assistant timeout: Go duration (\"10m\") or seconds (\"600\").")
	cmd.Flags().String("claude-bin", "", "Claude CLI binary (defaults to claude on PATH).")
	cmd.Flags().StringArray("allowed-tool", nil, "Tool the assistant may use without prompting (repeatable).")
	cmd.Flags().Duration("poll-timeout", 30*time.Second, "Long polling timeout for getUpdates.")
	cmd.Flags().Duration("edit-interval", 3*time.Second, "Minimum interval between status message edits.")
	cmd.Flags().Int("max-concurrency", 1, "Max number of chats processed concurrently.")
	cmd.Flags().Bool("drop-pending-updates", true, "Discard updates queued while the bridge was down.")
	cmd.Flags().Bool("files-enabled", true, "Download attachments and send written files back.")
	cmd.Flags().String("file-cache-dir", "", "Directory for downloaded attachments.")
	cmd.Flags().Int64("file-max-bytes", 0, "Max attachment download size in bytes.")
	cmd.Flags().String("transcript-path", "", "JSONL exchange transcript path (metadata only; empty disables).")

	return cmd
}

// parseCommandTimeout accepts a Go duration ("10m") or a bare number of
// seconds ("600").
func parseCommandTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("command_timeout must be positive, got %q", raw)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid command_timeout %q", raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("command_timeout must be positive, got %q", raw)
	}
	return d, nil
}
