package models

import "time"

type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Username  *string   `json:"username,omitempty"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Specialty *string   `json:"specialty,omitempty"`
	City      *string   `json:"city,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type UserSettings struct {
	UserID       string    `json:"user_id"`
	BlockedUsers []string  `json:"blocked_users"`
	UpdatedAt    time.Time `json:"updated_at"`
}
