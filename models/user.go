package models

import "time"

// User represents a board member. Passwords are stored as bcrypt hashes only.
// Provider/ProviderID are empty for local accounts and identify the upstream
// account for social logins.
type User struct {
	UserID     string    `gorm:"primaryKey;size:50" json:"userId"`
	Email      string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password   string    `gorm:"size:255" json:"-"`
	Nickname   string    `gorm:"size:50;not null" json:"nickname"`
	Provider   string    `gorm:"size:20;default:LOCAL" json:"provider"`
	ProviderID string    `gorm:"size:255" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
