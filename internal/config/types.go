package config

import "os"

type Config struct {
	GitHub   GitHubConfig   `json:"github"`
	Logging  LoggingConfig  `json:"logging"`
	Notify   NotifyConfig   `json:"notify"`
	Dispatch DispatchConfig `json:"dispatch"`
	Storage  StorageConfig  `json:"storage"`
}

// GitHubConfig configures the notifications feed client.
//
// Token falls back to the GITHUB_TOKEN environment variable when empty, so a
// config file is not required for the common case.
type GitHubConfig struct {
	Token string `json:"token,omitempty"`
	// APIBaseURL overrides the GitHub API endpoint (GitHub Enterprise, tests).
	APIBaseURL string `json:"api_base_url,omitempty"`
	// RatePerSec caps outbound API calls. Default: 3.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// NotifyConfig selects and configures the interactive notification backend.
//
// Backend values:
//   - "desktop": org.freedesktop.Notifications over the session bus (default)
//   - "telegram": inline-keyboard messages via a Telegram bot (headless hosts)
type NotifyConfig struct {
	Backend string `json:"backend,omitempty"`
	// ResponseTimeout bounds the user-action wait per notification.
	// Go duration string; default "10s".
	ResponseTimeout string               `json:"response_timeout,omitempty"`
	Telegram        TelegramNotifyConfig `json:"telegram,omitempty"`
}

type TelegramNotifyConfig struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

// DispatchConfig controls the polling loop.
//
// All durations are Go duration strings (e.g. "500ms", "12s", "1m").
type DispatchConfig struct {
	// PollInterval between feed pulls. Default "60s".
	PollInterval string `json:"poll_interval,omitempty"`
	// PacingDelay between successive notification launches within one cycle.
	// Default "12s".
	PacingDelay string `json:"pacing_delay,omitempty"`
	// MaxInFlight bounds concurrently presented notifications. Default 8.
	MaxInFlight int `json:"max_in_flight,omitempty"`
}

// StorageConfig controls the snooze database.
type StorageConfig struct {
	// Path to the SQLite file. Default: <config dir>/config.db.
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
	// PruneSchedule is a cron spec for expired-snooze cleanup. Default "@hourly".
	PruneSchedule string `json:"prune_schedule,omitempty"`
}

// ResolveToken returns the configured token or the GITHUB_TOKEN fallback.
func (g GitHubConfig) ResolveToken() string {
	if g.Token != "" {
		return g.Token
	}
	return os.Getenv("GITHUB_TOKEN")
}
