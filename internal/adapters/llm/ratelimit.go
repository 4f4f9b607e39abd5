package llm

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

// RateLimitedSynthesizer spaces synthesis calls to stay inside the TTS quota.
type RateLimitedSynthesizer struct {
	next    domain.Synthesizer
	limiter *rate.Limiter
}

// NewRateLimitedSynthesizer allows perSecond calls per second with a burst of one.
// A non-positive rate disables limiting.
func NewRateLimitedSynthesizer(next domain.Synthesizer, perSecond float64) *RateLimitedSynthesizer {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &RateLimitedSynthesizer{next: next, limiter: rate.NewLimiter(limit, 1)}
}

func (r *RateLimitedSynthesizer) Synthesize(ctx context.Context, text string, voice domain.Voice) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Synthesize(ctx, text, voice)
}
