package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-podium/internal/domain"
	"github.com/ahrav/go-podium/internal/ports"
)

var _ ports.RealtimeChannel = (*RateLimitedRealtime)(nil)

// RateLimitedRealtime paces writes to a realtime channel using a token
// bucket. Reads pass straight through.
type RateLimitedRealtime struct {
	next    ports.RealtimeChannel
	limiter *rate.Limiter
}

// NewRateLimitedRealtime wraps next so that writes proceed at most limit
// times per second, with bursts of up to burst writes.
func NewRateLimitedRealtime(next ports.RealtimeChannel, limit rate.Limit, burst int) *RateLimitedRealtime {
	return &RateLimitedRealtime{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// wait blocks until a write token is available or ctx is done.
func (r *RateLimitedRealtime) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}
	return nil
}

// LoadCompare forwards to the wrapped channel.
func (r *RateLimitedRealtime) LoadCompare(ctx context.Context, contestID, gradeID string) (*domain.CompareSession, error) {
	return r.next.LoadCompare(ctx, contestID, gradeID)
}

// SaveCompare waits for a write token before forwarding.
func (r *RateLimitedRealtime) SaveCompare(ctx context.Context, session *domain.CompareSession) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.SaveCompare(ctx, session)
}

// ClearCompare waits for a write token before forwarding.
func (r *RateLimitedRealtime) ClearCompare(ctx context.Context, contestID, gradeID string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.ClearCompare(ctx, contestID, gradeID)
}

// PutBallot waits for a write token before forwarding.
func (r *RateLimitedRealtime) PutBallot(ctx context.Context, contestID, gradeID string, ballot domain.Ballot) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.PutBallot(ctx, contestID, gradeID, ballot)
}

// ResultSaved forwards to the wrapped channel.
func (r *RateLimitedRealtime) ResultSaved(ctx context.Context, contestID string) ([]string, error) {
	return r.next.ResultSaved(ctx, contestID)
}

// MarkResultSaved waits for a write token before forwarding.
func (r *RateLimitedRealtime) MarkResultSaved(ctx context.Context, contestID, gradeID string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.MarkResultSaved(ctx, contestID, gradeID)
}

// ClearResultSaved waits for a write token before forwarding.
func (r *RateLimitedRealtime) ClearResultSaved(ctx context.Context, contestID, gradeID string) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.next.ClearResultSaved(ctx, contestID, gradeID)
}
