package scheduler

import (
	"errors"
	"math"
	"time"

	"github.com/colmryan/notedeck/internal/domain"
)

// Scheduling bounds. The ease floor stops the interval from collapsing
// under repeated lapses; the interval ceiling keeps a card from being
// pushed more than four years out.
const (
	MinEase         = 1.3
	MaxIntervalDays = 1460
)

// ErrInvalidRating is returned when a rating outside {again, hard, good,
// easy} is applied. This indicates a caller bug, never user input.
var ErrInvalidRating = errors.New("scheduler: invalid rating")

// CardSchedule is the scheduling slice of a card's state. Interval 0 and
// a nil Due mean the card has never been successfully reviewed.
type CardSchedule struct {
	Interval    int
	Ease        float64
	Due         *time.Time
	ReviewCount int
}

// Next computes the schedule that results from applying rating to cur at
// time now. It is a pure transformation: the caller writes the result
// back to the card store and records history.
func Next(cur CardSchedule, rating domain.Rating, now time.Time) (CardSchedule, error) {
	if !rating.Valid() {
		return CardSchedule{}, ErrInvalidRating
	}

	interval := cur.Interval
	ease := cur.Ease

	switch rating {
	case domain.Again:
		// Lapse: reset progress and penalize ease.
		interval = 1
		ease = math.Max(MinEase, ease-0.2)
	case domain.Hard:
		if cur.Interval == 0 {
			interval = 1
		} else {
			interval = max(2, ceilDays(float64(cur.Interval)*0.6))
		}
		ease = math.Max(MinEase, ease*0.85)
	case domain.Good:
		switch cur.Interval {
		case 0:
			interval = 1
		case 1:
			interval = 3
		default:
			interval = ceilDays(float64(cur.Interval) * ease)
		}
	case domain.Easy:
		switch cur.Interval {
		case 0:
			interval = 3
		case 1:
			interval = 7
		default:
			interval = ceilDays(float64(cur.Interval) * ease * 1.3)
		}
		ease = ease * 1.3
	}

	if interval < 1 {
		interval = 1
	}
	if interval > MaxIntervalDays {
		interval = MaxIntervalDays
	}
	if ease < MinEase {
		ease = MinEase
	}

	due := now.Add(time.Duration(interval) * 24 * time.Hour)

	return CardSchedule{
		Interval:    interval,
		Ease:        ease,
		Due:         &due,
		ReviewCount: cur.ReviewCount + 1,
	}, nil
}

func ceilDays(days float64) int {
	return int(math.Ceil(days))
}
