package shared

const (
	// Fiber locals keys set by the gateway pipeline.
	ApiKeyLocal      = "api_key"
	IdentityLocal    = "identity"
	TokenClaimsLocal = "token_claims"
	OriginURLLocal   = "origin_url"

	// SessionCookieName holds a signed JWT carrying the caller's API key.
	SessionCookieName = "session_key"

	ActionWatch    = "watch"
	ActionDownload = "download"

	WindowPerSecond = "Per-second"
	WindowPerMinute = "Per-minute"
	WindowPerHour   = "Per-hour"
	WindowPerDay    = "Per-day"
)
