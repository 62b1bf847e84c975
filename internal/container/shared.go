package container

import "github.com/samber/do"

// Shared is the configuration every command needs, whatever its own options look like.
type Shared interface {
	LogEncoding() string
	RedisAddress() string
}

// LogEncoding selects the zap encoder.
func (o *Options) LogEncoding() string { return o.LogFormat }

// RedisAddress is the Redis instance used for event streams.
func (o *Options) RedisAddress() string { return o.RedisAddr }

// ProvideConfig registers cfg both as its concrete type and as Shared.
func ProvideConfig[T Shared](injector *do.Injector, cfg T) {
	do.ProvideValue(injector, cfg)
	do.ProvideValue[Shared](injector, cfg)
}
