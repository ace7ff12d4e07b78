package models

import "time"

// Security event types written to the activity log.
const (
	EventLoginStepSuccess   = "login_step_success"
	EventLoginFailure       = "login_failure"
	EventLoginRateLimited   = "login_rate_limited"
	EventLoginIPRejected    = "login_ip_rejected"
	EventCodeVerified       = "code_verified"
	EventCodeRejected       = "code_rejected"
	EventLogout             = "logout"
	EventPasswordChanged    = "password_changed"
	EventPasswordRejected   = "password_change_rejected"
	EventAllowlistUpdated   = "allowlist_updated"
	EventNotificationFailed = "notification_failed"
)

type SecurityEvent struct {
	EventID       string    `json:"event_id"`
	EventBucket   int       `json:"event_bucket"`
	EventDate     string    `json:"event_date"`
	EventTime     time.Time `json:"event_time"`
	EventType     string    `json:"event_type"`
	UserID        string    `json:"user_id,omitempty"`
	Email         string    `json:"email,omitempty"`
	SourceAddress string    `json:"source_address,omitempty"`
	ClientDesc    string    `json:"client_desc,omitempty"`
	Details       string    `json:"details,omitempty"`
}
