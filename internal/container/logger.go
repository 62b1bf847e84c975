package container

import (
	"github.com/samber/do"
	"go.uber.org/zap"
)

// NewLogger builds a production JSON logger or a development console logger.
func NewLogger(encoding string) (*zap.Logger, error) {
	if encoding == "console" {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

// LoggerPackage provides *zap.Logger from the registered Shared config.
func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		cfg := do.MustInvoke[Shared](i)

		return NewLogger(cfg.LogEncoding())
	})
}
