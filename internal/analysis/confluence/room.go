package confluence

import (
	"fmt"
	"math"

	"gold-scalper/internal/models"
)

// RoomParams configures the room-to-target check.
type RoomParams struct {
	Mult      float64 `mapstructure:"room_to_target_mult" default:"1.3"`
	BufferPts float64 `mapstructure:"room_to_target_buffer_pts" default:"2"`
}

// Room is the distance available before the next opposing level.
type Room struct {
	OK          bool
	Points      float64
	NextLevel   *float64
	TP1Distance float64
	Reason      string
}

// RoomToTarget checks that the nearest level beyond entry (resistance for
// BUY, support for SELL) leaves at least TP1 distance × Mult of room. With no
// such level the room is unbounded.
func RoomToTarget(p RoomParams, dir models.Direction, entry, tp1 float64, levels []float64) Room {
	tp1Pts := math.Abs(tp1 - entry)
	res := Room{OK: true, Points: math.Inf(1), TP1Distance: tp1Pts}
	if tp1Pts < 0.01 {
		res.Reason = "TP1 distance nulle"
		return res
	}

	var next *float64
	for _, l := range levels {
		switch dir {
		case models.Sell:
			if l < entry-p.BufferPts && (next == nil || l > *next) {
				next = &l
			}
		default:
			if l > entry+p.BufferPts && (next == nil || l < *next) {
				next = &l
			}
		}
	}
	if next == nil {
		if dir == models.Sell {
			res.Reason = "Pas de support en-dessous"
		} else {
			res.Reason = "Pas de résistance au-dessus"
		}
		return res
	}

	res.NextLevel = next
	res.Points = math.Abs(*next-entry) - p.BufferPts
	required := tp1Pts * p.Mult
	res.OK = res.Points >= required
	if res.OK {
		res.Reason = fmt.Sprintf("Room OK: %.1f >= %.1f", res.Points, required)
	} else {
		res.Reason = fmt.Sprintf("Room insuffisant: %.1f < %.1f (niveau %.2f)", res.Points, required, *next)
	}
	return res
}
