package models

import "time"

// VerificationCode is the ephemeral second-factor record held in the
// in-process code cache between the two login steps. Identifiers are
// unique per issuance, so one user may hold several outstanding codes
// from concurrent login attempts.
type VerificationCode struct {
	CodeID        string
	Code          string
	Email         string
	SourceAddress string
	ClientDesc    string
	ExpiresAt     time.Time
	Used          bool
	WrongGuesses  int
}

func (c *VerificationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
