package container_test

import (
	"context"
	"strings"
	"testing"

	"github.com/samber/do"
	"github.com/serroba/filegate/internal/container"
	"github.com/serroba/filegate/internal/maintenance"
	"github.com/serroba/filegate/internal/store"
	"github.com/serroba/filegate/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInjector(t *testing.T, opts *container.Options) *do.Injector {
	t.Helper()

	opts.LogFormat = "console"

	injector := do.New()
	container.ProvideConfig(injector, opts)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.StorePackage(injector)
	container.EnginePackage(injector)
	container.MaintenancePackage(injector)

	t.Cleanup(func() { _ = injector.Shutdown() })

	return injector
}

func TestPackages_MemoryBackend(t *testing.T) {
	injector := newInjector(t, validOptions())

	st := do.MustInvoke[container.Store](injector)
	assert.IsType(t, &store.MemoryStore{}, st)

	engine := do.MustInvoke[*verification.Engine](injector)
	require.NoError(t, engine.Ping(context.Background()))

	v, err := engine.RequestVerification(context.Background(), "42", "1001")
	require.NoError(t, err)
	assert.Contains(t, v.ShortURL, "https://files.example.com/verify/")

	grant, err := engine.Redeem(context.Background(), strings.TrimPrefix(v.TargetURL, "https://files.example.com/verify/"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), grant.Remaining)

	scheduler := do.MustInvoke[*maintenance.Scheduler](injector)
	removed, err := scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPackages_InvalidSigningKey(t *testing.T) {
	opts := validOptions()
	opts.SigningKey = "short"

	injector := newInjector(t, opts)

	_, err := do.Invoke[*verification.Engine](injector)

	require.ErrorIs(t, err, container.ErrConfig)
}
