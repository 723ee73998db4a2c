package model

import "time"

// ApiKey is the durable quota record for one issued key. Rows are never
// hard-deleted; revocation flips Disabled.
type ApiKey struct {
	ApiKey         string    `json:"api_key" gorm:"primaryKey;type:text;not null"`
	Name           string    `json:"name" gorm:"size:255"`
	Email          string    `json:"email" gorm:"size:255;index"`
	QuotaTotal     int       `json:"quota_total" gorm:"not null"`
	QuotaRemaining int       `json:"quota_remaining" gorm:"not null"`
	TotalFetches   int       `json:"total_fetches" gorm:"default:0;not null"`
	Disabled       bool      `json:"disabled" gorm:"default:false;not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"not null"`
}
