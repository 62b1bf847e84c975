package container

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"github.com/serroba/filegate/internal/shortener"
	"github.com/serroba/filegate/internal/subscription"
	"github.com/serroba/filegate/internal/verification"
)

// Options is the server configuration, read once at startup from flags or SERVICE_* variables.
type Options struct {
	Port       int    `default:"8888"                  help:"Port to listen on"                        short:"p"`
	BaseURL    string `default:"http://localhost:8888" help:"Public origin used in verification links" validate:"required,url"`
	LogFormat  string `default:"json"                  help:"Log encoding: json or console"            validate:"oneof=json console"`
	CORSOrigin string `default:"*"                     help:"Comma separated origins allowed to call the API"`

	SigningKey         string `help:"Token signing secret, at least 32 bytes" validate:"min=32"`
	VerificationPeriod string `default:"24h" help:"How long a verification link stays valid"             validate:"duration"`
	DownloadLimit      int    `default:"0"   help:"Downloads per user per quota period, 0 is unlimited" validate:"min=0"`
	QuotaPeriod        string `default:"24h" help:"Length of the download quota window"                 validate:"duration"`
	RequiredChannels   string `help:"Comma separated channels users must join, in order"`

	ShortenerProvider string `default:"none" help:"Link shortener: gplinks, modijiurl or none" validate:"oneof=gplinks modijiurl none"`
	ShortenerAPIKey   string `help:"Shortener API key"                          validate:"required_unless=ShortenerProvider none"`
	ShortenerBaseURL  string `help:"Override the shortener API host"            validate:"omitempty,url"`
	ShortenerTimeout  string `default:"3s" help:"Timeout for each shortener attempt (one retry is made)" validate:"duration"`
	ShortenerProxy    string `help:"Optional SOCKS5 proxy URL for shortener calls" validate:"omitempty,url"`

	BotToken            string `help:"Bot API token used for membership checks" validate:"required_with=RequiredChannels"`
	BotUsername         string `help:"Bot username shown to users after a grant"`
	TelegramAPIURL      string `default:"https://api.telegram.org" help:"Bot API host" validate:"url"`
	SubscriptionTimeout string `default:"3s" help:"Timeout for one membership check" validate:"duration"`

	StoreBackend      string `default:"memory"         help:"Shared state backend: memory, redis or postgres" validate:"oneof=memory redis postgres"`
	RedisAddr         string `default:"localhost:6379" help:"Redis address, also used for event streams"       short:"r"`
	PostgresURL       string `help:"Postgres connection string" validate:"required_if=StoreBackend postgres"`
	MarkerCleanupSpec string `default:"@hourly" help:"Cron schedule for expired marker cleanup" validate:"cronspec"`
}

// ErrConfig wraps every startup configuration failure.
var ErrConfig = verification.ErrConfig

// Validate checks every field and reports all failures at once.
func (o *Options) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())

		return err == nil && d > 0
	})
	_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())

		return err == nil
	})

	if err := v.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}

			return fmt.Errorf("%w: %s", ErrConfig, strings.Join(fields, ", "))
		}

		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return nil
}

// Settings builds the engine configuration. Validate must have passed.
func (o *Options) Settings() *verification.Settings {
	return &verification.Settings{
		BaseURL:            o.BaseURL,
		VerificationPeriod: parseDuration(o.VerificationPeriod),
		DownloadLimit:      int64(o.DownloadLimit),
		QuotaPeriod:        parseDuration(o.QuotaPeriod),
		RequiredChannels:   o.Channels(),
	}
}

// Channels returns RequiredChannels split and trimmed, keeping order.
func (o *Options) Channels() subscription.Requirement {
	var channels subscription.Requirement

	for _, c := range strings.Split(o.RequiredChannels, ",") {
		if c = strings.TrimSpace(c); c != "" {
			channels = append(channels, c)
		}
	}

	return channels
}

// ShortenerConfig builds the gateway configuration. Validate must have passed.
func (o *Options) ShortenerConfig() shortener.Config {
	provider, _ := shortener.ParseProvider(o.ShortenerProvider)

	return shortener.Config{
		Provider:      provider,
		APIKey:        o.ShortenerAPIKey,
		BaseURL:       o.ShortenerBaseURL,
		Timeout:       parseDuration(o.ShortenerTimeout),
		RatePerSecond: 5,
		Burst:         10,
	}
}

// BotURL links users back to the bot, or "" when no username is configured.
func (o *Options) BotURL() string {
	if o.BotUsername == "" {
		return ""
	}

	return "https://t.me/" + strings.TrimPrefix(o.BotUsername, "@")
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)

	return d
}
