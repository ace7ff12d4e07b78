package models

import "time"

// Bot statuses as reported by the remote process manager.
const (
	BotStatusStopped = "stopped"
	BotStatusRunning = "running"
	BotStatusErrored = "errored"
	BotStatusUnknown = "unknown"
)

// Bot is a registered lead-generation crawler running on the remote host.
// JobName is the process name known to the remote process manager.
type Bot struct {
	BotID      string     `db:"bot_id" json:"id"`
	Name       string     `db:"name" json:"name"`
	JobName    string     `db:"job_name" json:"job_name"`
	TargetSite string     `db:"target_site" json:"target_site"`
	Schedule   string     `db:"schedule" json:"schedule"`
	PromptID   string     `db:"prompt_id" json:"prompt_id,omitempty"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
