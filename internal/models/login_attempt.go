package models

import "time"

// LoginAttempt tracks first-factor failures from one source address.
type LoginAttempt struct {
	SourceAddress string
	Failures      int
	LastFailureAt time.Time
}
