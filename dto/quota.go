package dto

import "time"

type CreateKeyRequest struct {
	Name       string `json:"name" validate:"required,max=255"`
	Email      string `json:"email" validate:"required,email"`
	QuotaTotal int    `json:"quota_total" validate:"required,gt=0"`
}

type CreateKeyResponse struct {
	ApiKey         string `json:"api_key"`
	QuotaTotal     int    `json:"quota_total"`
	QuotaRemaining int    `json:"quota_remaining"`
}

// UpdateQuotaRequest mirrors the manager form: action "add" increments both
// totals, "reset" redefines them and zeroes the fetch count. Disable applies
// regardless of action; a toggle-only update omits the action entirely.
type UpdateQuotaRequest struct {
	ApiKey  string `json:"api_key" validate:"required"`
	Action  string `json:"action,omitempty" validate:"omitempty,oneof=add reset"`
	Amount  int    `json:"amount" validate:"gte=0"`
	Disable *bool  `json:"disable,omitempty"`
}

type ApiKeyResponse struct {
	ApiKey         string    `json:"api_key"`
	Name           string    `json:"name,omitempty"`
	Email          string    `json:"email,omitempty"`
	QuotaTotal     int       `json:"quota_total"`
	QuotaRemaining int       `json:"quota_remaining"`
	TotalFetches   int       `json:"total_fetches"`
	Disabled       bool      `json:"disabled"`
	CreatedAt      time.Time `json:"created_at"`
}
