package models

import "time"

// SearchHistory logs keywords searched by authenticated users. Rows are only
// written for trimmed keywords of length >= 2 and are never deleted.
type SearchHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index;size:50;not null" json:"userId"`
	Keyword   string    `gorm:"size:255;not null" json:"keyword"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName keeps the legacy singular table name.
func (SearchHistory) TableName() string { return "search_history" }
