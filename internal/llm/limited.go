package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited throttles calls to an underlying Chatter.
type Limited struct {
	next    Chatter
	limiter *rate.Limiter
}

// NewLimited allows requestsPerMinute calls per minute with a burst of one.
// A non-positive rate disables throttling.
func NewLimited(next Chatter, requestsPerMinute int) *Limited {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (l *Limited) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return l.next.Chat(ctx, model, messages)
}
