package shortener

import "errors"

// ErrShortenFailed marks a shortener call that fell back to the raw URL. It never reaches callers of Shorten.
var ErrShortenFailed = errors.New("shorten failed")

// Link is the outbound verification link handed to the user.
type Link struct {
	TargetURL string
	ShortURL  string // equals TargetURL when shortening failed or is disabled
}

// Shortened reports whether the provider produced a distinct short URL.
func (l Link) Shortened() bool {
	return l.ShortURL != l.TargetURL
}
