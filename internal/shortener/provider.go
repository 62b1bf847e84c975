package shortener

import (
	"fmt"
	"strings"
)

// Provider selects the external shortening service. It is resolved once at startup.
type Provider int

const (
	// ProviderNone disables shortening; the raw redemption URL is handed out.
	ProviderNone Provider = iota
	ProviderGPLinks
	ProviderModijiURL
)

// ParseProvider maps a configuration name to a Provider.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return ProviderNone, nil
	case "gplinks":
		return ProviderGPLinks, nil
	case "modijiurl":
		return ProviderModijiURL, nil
	default:
		return ProviderNone, fmt.Errorf("unknown shortener provider %q", name)
	}
}

func (p Provider) String() string {
	switch p {
	case ProviderGPLinks:
		return "gplinks"
	case ProviderModijiURL:
		return "modijiurl"
	default:
		return "none"
	}
}

// BaseURL is the provider host the api request is sent to.
func (p Provider) BaseURL() string {
	switch p {
	case ProviderGPLinks:
		return "https://api.gplinks.com"
	case ProviderModijiURL:
		return "https://api.modijiurl.com"
	default:
		return ""
	}
}
