package events

import "time"

const (
	TopicVerificationIssued = "verification.issued"
	TopicDownloadGranted    = "download.granted"
	TopicRedemptionDenied   = "redemption.denied"
)

// VerificationIssuedEvent is emitted when a verification link is handed out.
type VerificationIssuedEvent struct {
	UserID    string    `json:"userId"`
	FileRef   string    `json:"fileRef"`
	Nonce     string    `json:"nonce"`
	ShortURL  string    `json:"shortUrl"`
	Shortened bool      `json:"shortened"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DownloadGrantedEvent is emitted once per successful redemption and drives file delivery.
type DownloadGrantedEvent struct {
	UserID    string    `json:"userId"`
	FileRef   string    `json:"fileRef"`
	Nonce     string    `json:"nonce"`
	Remaining int64     `json:"remaining"`
	GrantedAt time.Time `json:"grantedAt"`
}

// RedemptionDeniedEvent records a refused redemption attempt.
type RedemptionDeniedEvent struct {
	Outcome    string    `json:"outcome"`
	Missing    []string  `json:"missing,omitempty"`
	RetryAfter int64     `json:"retryAfterSeconds,omitempty"`
	ClientIP   string    `json:"clientIp"`
	UserAgent  string    `json:"userAgent"`
	DeniedAt   time.Time `json:"deniedAt"`
}
