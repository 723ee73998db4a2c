package dto

import "time"

type RateLimitInfo struct {
	Allowed           bool       `json:"allowed"`
	Window            string     `json:"window,omitempty"`
	Remaining         int        `json:"remaining"`
	WarningsLeft      int        `json:"warnings_left"`
	BlockedNextIfZero bool       `json:"blocked_next_if_zero"`
	ResetTime         *time.Time `json:"reset_time,omitempty"`
}

// RateLimitExceededResponse is the 429 wire shape.
type RateLimitExceededResponse struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	WarningsLeft      int    `json:"warnings_left"`
	BlockedNextIfZero bool   `json:"blocked_next_if_zero"`
}

// BlockedResponse is the 403 wire shape for blocked identities.
type BlockedResponse struct {
	Success   bool   `json:"success"`
	Blocked   bool   `json:"blocked"`
	Reason    string `json:"reason"`
	UnblockAt string `json:"unblock_at"`
}

type BlockEntryResponse struct {
	Identity     string    `json:"identity"`
	Reason       string    `json:"reason"`
	BlockedUntil time.Time `json:"blocked_until"`
}

type RateLimitStatsResponse struct {
	Windows           []WindowConfigResponse `json:"windows"`
	TrackedIdentities int                    `json:"tracked_identities"`
	ActiveBlocks      int                    `json:"active_blocks"`
	Timestamp         time.Time              `json:"timestamp"`
}

type WindowConfigResponse struct {
	Name        string `json:"name"`
	Duration    string `json:"duration"`
	MaxRequests int    `json:"max_requests"`
	ResetAfter  string `json:"violation_reset_after"`
}
