package scoring

import (
	"github.com/habit-scoreboard/internal/config"
	"github.com/shopspring/decimal"
)

// Default policy constants
const (
	DefaultDailyCap            = 3.0
	DefaultCompletionThreshold = 1.0
	DefaultCatchableGap        = 3.0
)

var hundred = decimal.NewFromInt(100)

// Policy holds the constants every calculation is parameterised by
type Policy struct {
	DailyCap            decimal.Decimal
	CompletionThreshold decimal.Decimal
	CatchableGap        decimal.Decimal
}

// DefaultPolicy returns the 3.0 cap / 1.0 threshold policy
func DefaultPolicy() Policy {
	return Policy{
		DailyCap:            decimal.NewFromFloat(DefaultDailyCap),
		CompletionThreshold: decimal.NewFromFloat(DefaultCompletionThreshold),
		CatchableGap:        decimal.NewFromFloat(DefaultCatchableGap),
	}
}

// NewPolicy builds a policy from configuration, keeping defaults for unset values
func NewPolicy(cfg config.ScoringConfig) Policy {
	p := DefaultPolicy()
	if cfg.DailyCap > 0 {
		p.DailyCap = decimal.NewFromFloat(cfg.DailyCap)
	}
	if cfg.CompletionThreshold > 0 {
		p.CompletionThreshold = decimal.NewFromFloat(cfg.CompletionThreshold)
	}
	if cfg.CatchableGap > 0 {
		p.CatchableGap = decimal.NewFromFloat(cfg.CatchableGap)
	}
	return p
}

// completes reports whether a daily total reaches the completion threshold
func (p Policy) completes(points decimal.Decimal) bool {
	return points.GreaterThanOrEqual(p.CompletionThreshold)
}

// round1 rounds half away from zero to one decimal place. Points are never
// negative, so this is the usual round-half-up.
func round1(d decimal.Decimal) float64 {
	f, _ := d.Round(1).Float64()
	return f
}

// percent returns part/whole*100 rounded to one decimal, or 0 when whole is 0
func percent(part, whole int) float64 {
	if whole <= 0 {
		return 0
	}
	ratio := decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole)))
	return round1(ratio)
}
