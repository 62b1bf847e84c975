package verification_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serroba/filegate/internal/quota"
	"github.com/serroba/filegate/internal/shortener"
	"github.com/serroba/filegate/internal/store"
	"github.com/serroba/filegate/internal/subscription"
	"github.com/serroba/filegate/internal/token"
	"github.com/serroba/filegate/internal/verification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// stubShortener records targets and returns the raw link unchanged.
type stubShortener struct {
	mu      sync.Mutex
	targets []string
}

func (s *stubShortener) Shorten(_ context.Context, targetURL string) shortener.Link {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.targets = append(s.targets, targetURL)

	return shortener.Link{TargetURL: targetURL, ShortURL: targetURL}
}

// memberships is a MembershipChecker backed by a mutable table.
type memberships struct {
	mu      sync.Mutex
	joined  map[string]bool // channel -> member
	failErr error
	calls   atomic.Int32
}

func (m *memberships) IsMember(_ context.Context, channelID, _ string) (bool, error) {
	m.calls.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return false, m.failErr
	}

	return m.joined[channelID], nil
}

func (m *memberships) join(channels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range channels {
		m.joined[c] = true
	}
}

type fixture struct {
	engine  *verification.Engine
	codec   *token.Codec
	clock   *clock
	links   *stubShortener
	members *memberships
	store   *store.MemoryStore
}

func newFixture(t *testing.T, settings verification.Settings) *fixture {
	t.Helper()

	clk := &clock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}

	codec, err := token.NewCodec([]byte(testSecret), token.WithClock(clk.Now))
	require.NoError(t, err)

	if settings.BaseURL == "" {
		settings.BaseURL = "https://files.example.com"
	}

	if settings.VerificationPeriod == 0 {
		settings.VerificationPeriod = 24 * time.Hour
	}

	if settings.QuotaPeriod == 0 {
		settings.QuotaPeriod = 24 * time.Hour
	}

	f := &fixture{
		codec:   codec,
		clock:   clk,
		links:   &stubShortener{},
		members: &memberships{joined: map[string]bool{}},
		store:   store.NewMemoryStore(),
	}

	f.engine, err = verification.NewEngine(
		&settings,
		codec,
		f.links,
		subscription.NewGate(f.members, time.Second, zap.NewNop()),
		quota.NewLedger(f.store, clk.Now),
		f.store,
		zap.NewNop(),
		verification.WithClock(clk.Now),
	)
	require.NoError(t, err)

	return f
}

// issue returns the serialized token embedded in a fresh verification link.
func (f *fixture) issue(t *testing.T, userID, fileRef string) string {
	t.Helper()

	v, err := f.engine.RequestVerification(context.Background(), userID, fileRef)
	require.NoError(t, err)

	u, err := url.Parse(v.TargetURL)
	require.NoError(t, err)

	raw, err := url.PathUnescape(strings.TrimPrefix(u.Path, "/verify/"))
	require.NoError(t, err)

	return raw
}

func TestNewEngine(t *testing.T) {
	codec, err := token.NewCodec([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name     string
		settings verification.Settings
	}{
		{"missing base url", verification.Settings{VerificationPeriod: time.Hour}},
		{"relative base url", verification.Settings{BaseURL: "/verify", VerificationPeriod: time.Hour}},
		{"zero verification period", verification.Settings{BaseURL: "https://x.example"}},
		{"limit without period", verification.Settings{
			BaseURL: "https://x.example", VerificationPeriod: time.Hour, DownloadLimit: 3,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := verification.NewEngine(&tt.settings, codec, nil, nil, nil, nil, zap.NewNop())

			assert.ErrorIs(t, err, verification.ErrConfig)
		})
	}
}

func TestEngine_RequestVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("returns a link to the redemption endpoint", func(t *testing.T) {
		f := newFixture(t, verification.Settings{})

		v, err := f.engine.RequestVerification(ctx, "42", "1001")

		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(v.TargetURL, "https://files.example.com/verify/"))
		assert.Equal(t, "42", v.UserID)
		assert.Equal(t, "1001", v.FileRef)
		assert.NotEmpty(t, v.Nonce)
		assert.Equal(t, f.clock.Now().Add(24*time.Hour), v.ExpiresAt)
		assert.Len(t, f.links.targets, 1)
	})

	t.Run("each request gets a distinct token", func(t *testing.T) {
		f := newFixture(t, verification.Settings{})

		a := f.issue(t, "42", "1001")
		b := f.issue(t, "42", "1001")

		assert.NotEqual(t, a, b)
	})

	t.Run("rejects empty identifiers", func(t *testing.T) {
		f := newFixture(t, verification.Settings{})

		_, err := f.engine.RequestVerification(ctx, "", "1001")
		assert.ErrorIs(t, err, verification.ErrInvalidRequest)

		_, err = f.engine.RequestVerification(ctx, "42", "")
		assert.ErrorIs(t, err, verification.ErrInvalidRequest)
	})

	t.Run("unsubscribed user gets no token", func(t *testing.T) {
		f := newFixture(t, verification.Settings{RequiredChannels: subscription.Requirement{"@updates"}})

		_, err := f.engine.RequestVerification(ctx, "42", "1001")

		var subErr *verification.SubscriptionRequiredError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, []string{"@updates"}, subErr.Missing)
		assert.Empty(t, f.links.targets)
	})
}

func TestEngine_Redeem(t *testing.T) {
	ctx := context.Background()

	t.Run("grants once then reports already used", func(t *testing.T) {
		f := newFixture(t, verification.Settings{})
		raw := f.issue(t, "42", "1001")

		grant, err := f.engine.Redeem(ctx, raw)

		require.NoError(t, err)
		assert.Equal(t, "42", grant.UserID)
		assert.Equal(t, "1001", grant.FileRef)
		assert.Equal(t, quota.Unlimited, grant.Remaining)

		_, err = f.engine.Redeem(ctx, raw)
		assert.ErrorIs(t, err, verification.ErrAlreadyUsed)
	})

	t.Run("malformed token", func(t *testing.T) {
		f := newFixture(t, verification.Settings{})

		_, err := f.engine.Redeem(ctx, "not-a-token")

		assert.ErrorIs(t, err, verification.ErrMalformedToken)
		assert.Equal(t, "malformed", verification.Outcome(err))
	})

	t.Run("tampered token is rejected without side effects", func(t *testing.T) {
		f := newFixture(t, verification.Settings{})
		raw := f.issue(t, "42", "1001")

		b := []byte(raw)
		b[len(b)/3] ^= 0x01

		_, err := f.engine.Redeem(ctx, string(b))
		assert.ErrorIs(t, err, verification.ErrInvalidSignature)

		_, err = f.engine.Redeem(ctx, raw)
		assert.NoError(t, err)
	})

	t.Run("token from another key is rejected", func(t *testing.T) {
		f := newFixture(t, verification.Settings{})

		other, err := token.NewCodec([]byte(strings.Repeat("k", 32)))
		require.NoError(t, err)

		tok, err := other.Issue("42", "1001", time.Hour)
		require.NoError(t, err)

		raw, err := other.Serialize(tok)
		require.NoError(t, err)

		_, err = f.engine.Redeem(ctx, raw)
		assert.ErrorIs(t, err, verification.ErrInvalidSignature)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newFixture(t, verification.Settings{VerificationPeriod: time.Hour})
		raw := f.issue(t, "42", "1001")

		f.clock.Advance(time.Hour)
		_, err := f.engine.Redeem(ctx, raw)
		require.NoError(t, err, "redeemable up to and including the expiry instant")

		raw = f.issue(t, "42", "1001")
		f.clock.Advance(time.Hour + time.Second)

		_, err = f.engine.Redeem(ctx, raw)
		assert.ErrorIs(t, err, verification.ErrExpired)
	})

	t.Run("expiry is checked before subscription", func(t *testing.T) {
		f := newFixture(t, verification.Settings{
			VerificationPeriod: time.Hour,
			RequiredChannels:   subscription.Requirement{"@updates"},
		})
		f.members.join("@updates")
		raw := f.issue(t, "42", "1001")
		calls := f.members.calls.Load()

		f.clock.Advance(2 * time.Hour)

		_, err := f.engine.Redeem(ctx, raw)

		assert.ErrorIs(t, err, verification.ErrExpired)
		assert.Equal(t, calls, f.members.calls.Load())
	})

	t.Run("subscription lapse does not consume the token", func(t *testing.T) {
		f := newFixture(t, verification.Settings{RequiredChannels: subscription.Requirement{"@updates", "@backup"}})
		f.members.join("@updates", "@backup")
		raw := f.issue(t, "42", "1001")

		f.members.mu.Lock()
		f.members.joined = map[string]bool{}
		f.members.mu.Unlock()

		_, err := f.engine.Redeem(ctx, raw)

		var subErr *verification.SubscriptionRequiredError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, []string{"@updates", "@backup"}, subErr.Missing)

		f.members.join("@updates", "@backup")

		_, err = f.engine.Redeem(ctx, raw)
		assert.NoError(t, err)
	})

	t.Run("upstream failure neither grants nor consumes", func(t *testing.T) {
		f := newFixture(t, verification.Settings{RequiredChannels: subscription.Requirement{"@updates"}})
		f.members.join("@updates")
		raw := f.issue(t, "42", "1001")

		f.members.mu.Lock()
		f.members.failErr = errors.New("bad gateway")
		f.members.mu.Unlock()

		_, err := f.engine.Redeem(ctx, raw)
		assert.ErrorIs(t, err, verification.ErrUpstreamUnavailable)

		f.members.mu.Lock()
		f.members.failErr = nil
		f.members.mu.Unlock()

		_, err = f.engine.Redeem(ctx, raw)
		assert.NoError(t, err)
	})

	t.Run("quota denial reports retry after and keeps the token", func(t *testing.T) {
		f := newFixture(t, verification.Settings{DownloadLimit: 3})

		for i := int64(1); i <= 3; i++ {
			grant, err := f.engine.Redeem(ctx, f.issue(t, "42", "1001"))
			require.NoError(t, err)
			assert.Equal(t, 3-i, grant.Remaining)

			f.clock.Advance(time.Hour)
		}

		raw := f.issue(t, "42", "1001")

		_, err := f.engine.Redeem(ctx, raw)

		var quotaErr *verification.QuotaExceededError
		require.ErrorAs(t, err, &quotaErr)
		assert.Equal(t, 21*time.Hour, quotaErr.RetryAfter)

		// The fourth token is still valid for 24h, so it survives until the window resets.
		f.clock.Advance(21 * time.Hour)

		_, err = f.engine.Redeem(ctx, raw)
		assert.NoError(t, err)
	})

	t.Run("quota is per user", func(t *testing.T) {
		f := newFixture(t, verification.Settings{DownloadLimit: 1})

		_, err := f.engine.Redeem(ctx, f.issue(t, "42", "1001"))
		require.NoError(t, err)

		_, err = f.engine.Redeem(ctx, f.issue(t, "43", "1001"))
		assert.NoError(t, err)
	})

	t.Run("concurrent redemptions of one token grant exactly once", func(t *testing.T) {
		f := newFixture(t, verification.Settings{})
		raw := f.issue(t, "42", "1001")

		const workers = 32

		var (
			wg      sync.WaitGroup
			granted atomic.Int32
			used    atomic.Int32
		)

		for range workers {
			wg.Go(func() {
				_, err := f.engine.Redeem(ctx, raw)

				switch {
				case err == nil:
					granted.Add(1)
				case errors.Is(err, verification.ErrAlreadyUsed):
					used.Add(1)
				}
			})
		}

		wg.Wait()

		assert.Equal(t, int32(1), granted.Load())
		assert.Equal(t, int32(workers-1), used.Load())
	})

	t.Run("concurrent redemptions never exceed the quota", func(t *testing.T) {
		f := newFixture(t, verification.Settings{DownloadLimit: 2})

		tokens := make([]string, 10)
		for i := range tokens {
			tokens[i] = f.issue(t, "42", "1001")
		}

		var (
			wg      sync.WaitGroup
			granted atomic.Int32
		)

		for _, raw := range tokens {
			wg.Go(func() {
				if _, err := f.engine.Redeem(ctx, raw); err == nil {
					granted.Add(1)
				}
			})
		}

		wg.Wait()

		assert.Equal(t, int32(2), granted.Load())
	})

	t.Run("cancelled client still commits a granted redemption", func(t *testing.T) {
		f := newFixture(t, verification.Settings{})
		raw := f.issue(t, "42", "1001")

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.engine.Redeem(cctx, raw)
		require.NoError(t, err)

		_, err = f.engine.Redeem(ctx, raw)
		assert.ErrorIs(t, err, verification.ErrAlreadyUsed)
	})
}

func TestEngine_Ping(t *testing.T) {
	f := newFixture(t, verification.Settings{})

	assert.NoError(t, f.engine.Ping(context.Background()))
}

func TestIsDenial(t *testing.T) {
	assert.True(t, verification.IsDenial(verification.ErrExpired))
	assert.True(t, verification.IsDenial(&verification.QuotaExceededError{RetryAfter: time.Minute}))
	assert.True(t, verification.IsDenial(&verification.SubscriptionRequiredError{Missing: []string{"@a"}}))
	assert.False(t, verification.IsDenial(verification.ErrUpstreamUnavailable))
	assert.False(t, verification.IsDenial(errors.New("boom")))
}
