package news

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"gold-scalper/internal/models"
)

// Feature: gold-scalper, Property 5: News lock window
//
// Property: For any single event and any offset from its release:
// 1. the lock is active exactly when the offset lies in [-pre, +post];
// 2. LOW impact never locks;
// 3. a pre-alert is only raised for a configured bucket before release.

func TestProperty_LockWindow(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	params := DefaultParams()
	release := time.Date(2026, 3, 10, 13, 30, 0, 0, time.UTC)

	properties.Property("lock follows the impact window", prop.ForAll(
		func(offset int, impact string) bool {
			at := release.Add(time.Duration(offset) * time.Minute)
			ev := models.NewsEvent{Title: "E", Impact: impact, Time: release}
			st := ComputeState(params, []models.NewsEvent{ev}, at)

			minutes := -offset
			pre, post, lockable := params.Window(impact)
			want := lockable && minutes <= pre && minutes >= -post
			if st.LockActive != want {
				return false
			}
			if st.ShouldPreAlert {
				if !lockable || minutes <= 0 {
					return false
				}
				found := false
				for _, b := range params.PreAlertMinutes {
					found = found || b == minutes
				}
				return found
			}
			return true
		},
		gen.IntRange(-240, 240),
		gen.OneConstOf("HIGH", "MED", "MEDIUM", "LOW"),
	))

	properties.TestingRun(t)
}
