package auction

import (
	"testing"
	"time"

	"github.com/motorline/auction-api/internal/types"
	"github.com/stretchr/testify/assert"
)

func extAuction(end time.Time) *types.Auction {
	return &types.Auction{
		AuctionID:              "AUC_ext",
		ScheduledEnd:           end,
		ExtensionEnabled:       true,
		ExtensionThresholdSecs: 120,
		ExtensionDurationSecs:  180,
		MaxExtensions:          3,
	}
}

func TestEvaluateExtensionInsideThreshold(t *testing.T) {
	end := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	a := extAuction(end)

	decision := EvaluateExtension(a, end.Add(-30*time.Second))
	assert.True(t, decision.Extend)
	assert.Equal(t, end.Add(180*time.Second), decision.NewEnd)
	assert.Equal(t, 1, decision.ExtensionsUsed)
}

func TestEvaluateExtensionOutsideThreshold(t *testing.T) {
	end := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	a := extAuction(end)

	decision := EvaluateExtension(a, end.Add(-5*time.Minute))
	assert.False(t, decision.Extend)
	assert.Equal(t, end, decision.NewEnd)
	assert.Equal(t, 0, decision.ExtensionsUsed)
}

func TestEvaluateExtensionAtThresholdBoundary(t *testing.T) {
	end := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	a := extAuction(end)

	// Exactly on the window start: not yet inside it.
	decision := EvaluateExtension(a, end.Add(-120*time.Second))
	assert.False(t, decision.Extend)
}

func TestEvaluateExtensionNeverRetroactive(t *testing.T) {
	end := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	a := extAuction(end)

	// At or past the scheduled end an extension would reopen a closed
	// window; it must not fire.
	assert.False(t, EvaluateExtension(a, end).Extend)
	assert.False(t, EvaluateExtension(a, end.Add(time.Second)).Extend)
}

func TestEvaluateExtensionRespectsCap(t *testing.T) {
	end := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	a := extAuction(end)
	a.ExtensionsUsed = 3

	decision := EvaluateExtension(a, end.Add(-30*time.Second))
	assert.False(t, decision.Extend)
	assert.Equal(t, 3, decision.ExtensionsUsed)
}

func TestEvaluateExtensionDisabled(t *testing.T) {
	end := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	a := extAuction(end)
	a.ExtensionEnabled = false

	assert.False(t, EvaluateExtension(a, end.Add(-30*time.Second)).Extend)
}

func TestEvaluateExtensionChain(t *testing.T) {
	end := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	a := extAuction(end)
	a.MaxExtensions = 2

	// First qualifying bid extends.
	first := EvaluateExtension(a, end.Add(-time.Minute))
	assert.True(t, first.Extend)
	a.ScheduledEnd = first.NewEnd
	a.ExtensionsUsed = first.ExtensionsUsed

	// Second qualifying bid inside the new window extends again.
	second := EvaluateExtension(a, a.ScheduledEnd.Add(-time.Minute))
	assert.True(t, second.Extend)
	assert.Equal(t, 2, second.ExtensionsUsed)
	a.ScheduledEnd = second.NewEnd
	a.ExtensionsUsed = second.ExtensionsUsed

	// The cap stops the third.
	third := EvaluateExtension(a, a.ScheduledEnd.Add(-time.Minute))
	assert.False(t, third.Extend)
}
