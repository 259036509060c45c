package reviewer

import (
	"github.com/nsxbet/sqlguard/pkg/risk"
)

// ReviewOption is a functional option for customizing review behavior.
type ReviewOption func(*reviewOptions)

// reviewOptions holds optional configuration for a review operation.
type reviewOptions struct {
	minimumTier risk.Tier
}

// WithMinimumTier drops statements below tier from the per-statement
// results. The overall classification is not affected.
//
// Example:
//
//	result, err := r.Review(ctx, script, WithMinimumTier(risk.Dangerous))
func WithMinimumTier(tier risk.Tier) ReviewOption {
	return func(opts *reviewOptions) {
		opts.minimumTier = tier
	}
}
