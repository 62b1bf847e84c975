package handlers

import "time"

// CreateVerificationRequest is the request body for issuing a verification link.
type CreateVerificationRequest struct {
	Body struct {
		UserID  string `doc:"Chat platform user id"          example:"123456789" json:"userId"  maxLength:"64"  minLength:"1"`
		FileRef string `doc:"Stored file reference to grant" example:"1001"      json:"fileRef" maxLength:"128" minLength:"1"`
	}
}

// CreateVerificationResponse carries the link the user has to follow.
type CreateVerificationResponse struct {
	Body struct {
		URL       string    `doc:"Link to send to the user, shortened when possible" json:"url"`
		Shortened bool      `doc:"Whether the shortening provider was used"          json:"shortened"`
		ExpiresAt time.Time `doc:"When the verification stops being redeemable"      json:"expiresAt"`
	}
}

// RedeemRequest is the returning click on a verification link.
type RedeemRequest struct {
	Token string `doc:"Serialized verification token" maxLength:"2048" path:"token"`
}

// RedeemResponse is returned when a download is granted.
type RedeemResponse struct {
	Body struct {
		Status    string `doc:"Always granted"                             example:"granted" json:"status"`
		FileRef   string `doc:"Granted file reference"                     example:"1001"    json:"fileRef"`
		Remaining *int64 `doc:"Downloads left in the current quota window" json:"remaining,omitempty"`
		BotURL    string `doc:"Where the user receives the file"           json:"botUrl,omitempty"`
	}
}
