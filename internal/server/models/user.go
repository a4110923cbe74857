package models

import "time"

// User is the identity record the auth flows read and write. Salt and
// PasswordHash never leave the server.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Phone        string    `json:"phone"`
	Salt         []byte    `json:"-"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
