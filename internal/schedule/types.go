// Package schedule models agents' stochastic daily routines and works out
// where an agent is at a given time of day.
package schedule

import (
	"errors"
	"time"
)

// Place is the kind of building an activity happens in.
type Place uint8

const (
	PlaceHome Place = iota
	PlaceWork
	PlaceSchool
	PlaceSupermarket
	PlaceShop
	PlaceRecreation
)

// NumPlaces is the total number of place kinds.
const NumPlaces = 6

// PlaceName returns a human-readable name for a place.
func PlaceName(p Place) string {
	switch p {
	case PlaceHome:
		return "home"
	case PlaceWork:
		return "work"
	case PlaceSchool:
		return "school"
	case PlaceSupermarket:
		return "supermarket"
	case PlaceShop:
		return "shop"
	case PlaceRecreation:
		return "recreation"
	default:
		return "unknown"
	}
}

// Timing says when an agent leaves an activity. It is either LeaveAt or Stay.
type Timing interface {
	jitter() time.Duration
}

// LeaveAt leaves at a fixed time of day, give or take Jitter (one standard
// deviation).
type LeaveAt struct {
	At     time.Duration // since midnight
	Jitter time.Duration
}

func (t LeaveAt) jitter() time.Duration { return t.Jitter }

// Stay leaves after a dwell Duration, give or take Jitter (one standard
// deviation).
type Stay struct {
	Duration time.Duration
	Jitter   time.Duration
}

func (t Stay) jitter() time.Duration { return t.Jitter }

// Activity is a node of a schedule graph.
type Activity struct {
	Name   string
	Place  Place
	Timing Timing
}

// Transition is a weighted edge between two activities. Weights out of one
// activity are relative; they need not sum to one.
type Transition struct {
	From, To string
	P        float64
}

// Clock returns the time of day h:m as an offset from midnight.
func Clock(h, m int) time.Duration {
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
}

// Sentinel errors for schedule construction and traversal.
var (
	ErrNoTiming          = errors.New("schedule: activity has neither leave-at time nor duration")
	ErrBadJitter         = errors.New("schedule: negative jitter or duration")
	ErrDuplicateActivity = errors.New("schedule: duplicate activity")
	ErrUnknownActivity   = errors.New("schedule: transition references unknown activity")
	ErrBadTransition     = errors.New("schedule: self or duplicate transition")
	ErrBadProbability    = errors.New("schedule: transition weight must be positive")
	ErrStartNode         = errors.New("schedule: need exactly one activity without incoming transitions")
	ErrCyclicSchedule    = errors.New("schedule: transitions form a cycle")
	ErrUnassignedPlace   = errors.New("schedule: no building assigned to place")
	ErrBadSpeed          = errors.New("schedule: walking speed must be positive")
)
