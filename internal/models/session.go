package models

import "time"

type Session struct {
	Token         string    `db:"token" json:"-"`
	UserID        string    `db:"user_id" json:"user_id"`
	SourceAddress string    `db:"source_address" json:"source_address"`
	ClientDesc    string    `db:"client_desc" json:"client_desc"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
