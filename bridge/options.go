package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/RedSquirrel5555/ClaudeLink/claude"
)

type Options struct {
	BotToken string
	OwnerID  int64
	BaseURL  string

	Model          string
	WorkspaceDir   string
	CommandTimeout time.Duration
	ClaudeBin      string
	AllowedTools   []string
	MaxLineBytes   int

	PollTimeout        time.Duration
	EditInterval       time.Duration
	MaxConcurrency     int
	DropPendingUpdates bool

	FilesEnabled           bool
	FileCacheDir           string
	FileMaxBytes           int64
	FileCacheMaxAge        time.Duration
	FileCacheMaxFiles      int
	FileCacheMaxTotalBytes int64
}

func normalizeOptions(opts Options) Options {
	opts.BotToken = strings.TrimSpace(opts.BotToken)
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	opts.Model = strings.TrimSpace(opts.Model)
	opts.WorkspaceDir = strings.TrimSpace(opts.WorkspaceDir)
	opts.ClaudeBin = strings.TrimSpace(opts.ClaudeBin)
	opts.FileCacheDir = strings.TrimSpace(opts.FileCacheDir)

	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.Model == "" {
		opts.Model = "opus"
	}
	if opts.WorkspaceDir == "" {
		opts.WorkspaceDir = "."
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 10 * time.Minute
	}
	if opts.ClaudeBin == "" {
		opts.ClaudeBin = claude.DefaultBin
	}
	if len(opts.AllowedTools) == 0 {
		opts.AllowedTools = append([]string(nil), claude.DefaultAllowedTools...)
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 30 * time.Second
	}
	if opts.EditInterval <= 0 {
		opts.EditInterval = 3 * time.Second
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	if opts.FileMaxBytes <= 0 {
		opts.FileMaxBytes = 20 * 1024 * 1024
	}
	if opts.FileCacheMaxAge <= 0 {
		opts.FileCacheMaxAge = 7 * 24 * time.Hour
	}
	if opts.FileCacheMaxFiles <= 0 {
		opts.FileCacheMaxFiles = 1000
	}
	if opts.FileCacheMaxTotalBytes <= 0 {
		opts.FileCacheMaxTotalBytes = int64(512 * 1024 * 1024)
	}
	return opts
}

func (o Options) validate() error {
	if strings.TrimSpace(o.BotToken) == "" {
		return fmt.Errorf("missing telegram bot token")
	}
	if o.OwnerID == 0 {
		return fmt.Errorf("missing owner telegram id")
	}
	if o.FilesEnabled && strings.TrimSpace(o.FileCacheDir) == "" {
		return fmt.Errorf("files enabled but file cache dir is empty")
	}
	return nil
}
