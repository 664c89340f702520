package models

import "time"

// User represents a panel account. Admins manage nodes, blueprints and
// other users; non-admins only see servers they own.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}
