package news

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"gold-scalper/internal/models"
)

// Moment labels.
const (
	MomentNone     = "NONE"
	MomentNow      = "NOW"
	MomentNext     = "NEXT_30_90_MIN"
	MomentLater    = "LATER_TODAY"
	MomentSwing    = "SWING"
	noEventHorizon = 30
)

// MinutesTo rounds the time from now to t to whole minutes. Negative once
// the event has passed.
func MinutesTo(now, t time.Time) int {
	return int(math.Round(t.Sub(now).Minutes()))
}

// RelevantEvent picks the event that drives the state: the earliest event
// whose lock window contains now, else the next upcoming event.
func RelevantEvent(p Params, events []models.NewsEvent, now time.Time) *models.NewsEvent {
	sorted := slices.Clone(events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	for i := range sorted {
		if locked(p, sorted[i], now) {
			return &sorted[i]
		}
	}
	for i := range sorted {
		if !sorted[i].Time.Before(now) {
			return &sorted[i]
		}
	}
	return nil
}

func locked(p Params, ev models.NewsEvent, now time.Time) bool {
	pre, post, ok := p.Window(ev.Impact)
	if !ok {
		return false
	}
	m := MinutesTo(now, ev.Time)
	return m <= pre && m >= -post
}

// ComputeState builds the news state for now from raw events. ProviderOK is
// left to the caller.
func ComputeState(p Params, events []models.NewsEvent, now time.Time) models.NewsState {
	st := models.NewsState{
		Moment:         MomentNone,
		HorizonMinutes: noEventHorizon,
		RawCount:       len(events),
	}
	ev := RelevantEvent(p, events, now)
	if ev == nil {
		return st
	}

	event := *ev
	event.Impact = NormalizeImpact(event.Impact)
	minutes := MinutesTo(now, event.Time)
	st.NextEvent = &event
	st.MinutesToEvent = &minutes
	st.Moment, st.HorizonMinutes = Moment(minutes)

	if pre, post, ok := p.Window(event.Impact); ok {
		st.HorizonMinutes = post
		st.LockWindowStartMin = -pre
		st.LockWindowEndMin = post
		if minutes <= pre && minutes >= -post {
			st.LockActive = true
			st.LockReason = lockReason(event, minutes)
		}
		if minutes > 0 && slices.Contains(p.PreAlertMinutes, minutes) {
			st.ShouldPreAlert = true
			st.BucketLabel = fmt.Sprintf("T-%d", minutes)
		}
	}
	return st
}

// Moment labels the time to the event and returns the matching horizon.
func Moment(minutes int) (string, int) {
	switch {
	case minutes <= 0:
		return MomentNow, 30
	case minutes <= 90:
		return MomentNext, 90
	case minutes <= 600:
		return MomentLater, 240
	default:
		return MomentSwing, 1440
	}
}

func lockReason(ev models.NewsEvent, minutes int) string {
	if minutes >= 0 {
		return fmt.Sprintf("News %s %s dans %d min", ev.Impact, ev.Title, minutes)
	}
	return fmt.Sprintf("News %s %s il y a %d min", ev.Impact, ev.Title, -minutes)
}
