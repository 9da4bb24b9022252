package models

import "time"

// Post is a board entry. ViewCount grows by one on every detail fetch.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ViewCount int64     `gorm:"not null;default:0" json:"viewCount"`
	AuthorID  string    `gorm:"index;size:50;not null" json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
}
