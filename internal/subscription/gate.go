package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serroba/filegate/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUpstreamUnavailable means membership could not be determined. It is neither a pass nor a denial.
var ErrUpstreamUnavailable = errors.New("membership query unavailable")

// MembershipChecker queries the chat platform for a single channel membership.
type MembershipChecker interface {
	IsMember(ctx context.Context, channelID, userID string) (bool, error)
}

// Requirement is the ordered list of channels a user must belong to.
type Requirement []string

// Result lists the required channels the user is not a member of, in requirement order.
type Result struct {
	Missing []string
}

// Satisfied reports whether the user is a member of every required channel.
func (r Result) Satisfied() bool {
	return len(r.Missing) == 0
}

// Gate checks force-subscription requirements against live membership.
// Results are never cached.
type Gate struct {
	checker MembershipChecker
	timeout time.Duration
	logger  *zap.Logger
}

// NewGate creates a gate with a bounded timeout per check.
func NewGate(checker MembershipChecker, timeout time.Duration, logger *zap.Logger) *Gate {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &Gate{
		checker: checker,
		timeout: timeout,
		logger:  logger,
	}
}

// Check queries every channel in req and reports all missing ones in one pass.
func (g *Gate) Check(ctx context.Context, userID string, req Requirement) (Result, error) {
	if len(req) == 0 {
		return Result{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	member := make([]bool, len(req))
	group, gctx := errgroup.WithContext(ctx)

	for i, channelID := range req {
		group.Go(func() error {
			ok, err := g.checker.IsMember(gctx, channelID, userID)
			if err != nil {
				return fmt.Errorf("channel %s: %w", channelID, err)
			}

			member[i] = ok

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		g.logger.Warn("membership query failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		metrics.SubscriptionChecksTotal.WithLabelValues("unavailable").Inc()

		return Result{}, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	var result Result

	for i, channelID := range req {
		if !member[i] {
			result.Missing = append(result.Missing, channelID)
		}
	}

	if result.Satisfied() {
		metrics.SubscriptionChecksTotal.WithLabelValues("satisfied").Inc()
	} else {
		metrics.SubscriptionChecksTotal.WithLabelValues("unsatisfied").Inc()
	}

	return result, nil
}
