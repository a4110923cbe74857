package models

import "time"

// Verification is the live one-time-code state of a phone number. There is
// at most one per phone; issuing a new code replaces it.
type Verification struct {
	Phone     string
	Secret    string
	Token     string
	Code      string
	UpdatedAt time.Time
}
