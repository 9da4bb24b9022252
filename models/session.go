package models

import "time"

// Session maps an opaque bearer token to a user. A row is created at login
// and removed at logout; expiry is enforced by the session store, not the
// schema.
type Session struct {
	Token     string    `gorm:"primaryKey;size:64" json:"token"`
	UserID    string    `gorm:"index;size:50;not null" json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}
