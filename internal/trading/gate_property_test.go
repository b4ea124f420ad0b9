package trading

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"gold-scalper/internal/models"
)

// Feature: gold-scalper, Property 4: Setup confirmation counter
//
// Property: For any stored setup and any new observation:
// 1. the next count is at least one;
// 2. it grows by at most one per cycle;
// 3. it restarts at one when the direction flips;
// 4. repeating the same bar never increases it.

func TestProperty_NextConfirmCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	bar := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	properties.Property("counter stays within its bounds", prop.ForAll(
		func(count int, prevDir, dir models.Direction, prevEntry, entry float64, sameBar bool) bool {
			st := &models.DayState{
				SetupConfirmCount:  count,
				LastSetupDirection: prevDir,
				LastSetupEntry:     prevEntry,
				LastSetupBarAt:     &bar,
			}
			at := bar.Add(15 * time.Minute)
			if sameBar {
				at = bar
			}
			next := NextConfirmCount(st, dir, entry, &at, 5)

			if next < 1 || next > count+1 {
				return false
			}
			if dir != prevDir && next != 1 {
				return false
			}
			if sameBar && next > max(count, 1) {
				return false
			}
			return true
		},
		gen.IntRange(0, 20),
		gen.OneConstOf(models.Buy, models.Sell),
		gen.OneConstOf(models.Buy, models.Sell),
		gen.Float64Range(4990, 5060),
		gen.Float64Range(4990, 5060),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
