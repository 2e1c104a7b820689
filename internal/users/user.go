package users

import "time"

// User is a registered account. The very first registered account becomes
// the admin and is the only one allowed to edit workout templates.
type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"isAdmin"`
	CreatedAt    time.Time `json:"createdAt"`
}
