package model

import "time"

// BlockedIP is a durable network-level block. Expired rows are removed
// lazily the first time they are observed past BlockedUntil.
type BlockedIP struct {
	Identity     string    `json:"identity" gorm:"primaryKey;type:text;not null"`
	Reason       string    `json:"reason" gorm:"type:text"`
	BlockedUntil time.Time `json:"blocked_until" gorm:"not null;index"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null"`
}
