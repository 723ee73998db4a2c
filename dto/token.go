package dto

type IssueLinksRequest struct {
	ContentID      string `json:"content_id" validate:"required"`
	Title          string `json:"title" validate:"required"`
	Kind           string `json:"kind" validate:"required"`
	RuntimeMinutes int    `json:"runtime_minutes" validate:"gte=0"`
}

type IssueLinksResponse struct {
	WatchURL    string `json:"watch_url"`
	DownloadURL string `json:"download_url"`
}

// TokenRejectedResponse is returned for any verification failure. One
// generic reason only, so callers cannot probe which check failed.
type TokenRejectedResponse struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

type SessionResponse struct {
	ExpiresIn int64 `json:"expires_in"`
}
