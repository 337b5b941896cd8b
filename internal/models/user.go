package models

import "time"

// Role labels for account authorization.
const (
	UserRoleAdmin = "admin"
	UserRoleUser  = "user"
)

// User is an account able to upload exams and use the chat assistant.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
