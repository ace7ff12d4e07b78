package models

import "time"

// Lead is a contact captured by a bot. The contact email is envelope
// encrypted at rest; ContactEmail carries the plaintext only in memory
// and in API responses.
type Lead struct {
	LeadID           string    `db:"lead_id" json:"id"`
	BotID            string    `db:"bot_id" json:"bot_id"`
	Name             string    `db:"name" json:"name"`
	Company          string    `db:"company" json:"company"`
	ContactEmail     string    `db:"-" json:"contact_email,omitempty"`
	ContactEncrypted []byte    `db:"contact_encrypted" json:"-"`
	ContactKeyID     string    `db:"contact_key_id" json:"-"`
	SourceURL        string    `db:"source_url" json:"source_url"`
	Score            int       `db:"score" json:"score"`
	Status           string    `db:"status" json:"status"`
	CapturedAt       time.Time `db:"captured_at" json:"captured_at"`
}
