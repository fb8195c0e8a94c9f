package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Assistant subprocess.
	viper.SetDefault("claude.model", "opus")
	viper.SetDefault("claude.bin", "claude")
	viper.SetDefault("workspace_dir", ".")
	viper.SetDefault("command_timeout", "10m")

	// Telegram loop.
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.edit_interval", 3*time.Second)
	viper.SetDefault("telegram.max_concurrency", 1)
	viper.SetDefault("telegram.drop_pending_updates", true)

	// File exchange cache.
	viper.SetDefault("files.enabled", true)
	viper.SetDefault("files.max_bytes", int64(20*1024*1024))
	viper.SetDefault("file_cache_dir", "~/.claudelink/cache")
	viper.SetDefault("file_cache.max_age", 7*24*time.Hour)
	viper.SetDefault("file_cache.max_files", 1000)
	viper.SetDefault("file_cache.max_total_bytes", int64(512*1024*1024))

	// Exchange transcript (metadata only; empty path disables it).
	viper.SetDefault("transcript.path", "")
	viper.SetDefault("transcript.rotate_max_bytes", int64(100*1024*1024))
}
