package models

import "time"

type User struct {
	ID         int64     `json:"user_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	Password   string    `json:"-"`
	Provider   string    `json:"provider,omitempty"`
	ProviderID string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
