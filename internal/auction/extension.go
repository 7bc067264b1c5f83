package auction

import (
	"time"

	"github.com/motorline/auction-api/internal/types"
)

// ExtensionDecision is the outcome of one anti-sniping evaluation.
type ExtensionDecision struct {
	Extend         bool
	NewEnd         time.Time
	ExtensionsUsed int
}

// EvaluateExtension is the anti-sniping rule as a pure function: a
// qualifying bid arriving inside the trailing threshold window pushes the
// close out by the configured duration, at most MaxExtensions times,
// never retroactively. Called once per qualifying bid while the auction
// is open.
func EvaluateExtension(a *types.Auction, now time.Time) ExtensionDecision {
	decision := ExtensionDecision{
		NewEnd:         a.ScheduledEnd,
		ExtensionsUsed: a.ExtensionsUsed,
	}

	if !a.ExtensionEnabled {
		return decision
	}
	if a.ExtensionsUsed >= a.MaxExtensions {
		return decision
	}

	windowStart := a.ScheduledEnd.Add(-time.Duration(a.ExtensionThresholdSecs) * time.Second)
	if !now.After(windowStart) {
		return decision
	}
	if !now.Before(a.ScheduledEnd) {
		// The auction is already past its end; extending would be retroactive.
		return decision
	}

	decision.Extend = true
	decision.NewEnd = a.ScheduledEnd.Add(time.Duration(a.ExtensionDurationSecs) * time.Second)
	decision.ExtensionsUsed = a.ExtensionsUsed + 1
	return decision
}
