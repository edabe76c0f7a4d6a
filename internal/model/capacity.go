package model

import "math"

// DefaultCapacityTotal is used when the capacity_config row is missing.
const DefaultCapacityTotal = 30

// Availability is a ledger snapshot.  Left never goes below zero even when
// an administrator lowers Total under the amount already taken.
type Availability struct {
	Total int `json:"total"`
	Taken int `json:"taken"`
	Left  int `json:"left"`
}

// NewAvailability derives Left from total and taken.
func NewAvailability(total, taken int) Availability {
	left := total - taken
	if left < 0 {
		left = 0
	}
	return Availability{Total: total, Taken: taken, Left: left}
}

// Fits reports whether n more participants can be admitted.
func (a Availability) Fits(n int) bool { return a.Left >= n }

// Pct is the rounded share of capacity taken, capped at 100.
func (a Availability) Pct() int {
	if a.Total <= 0 {
		return 0
	}
	p := int(math.Round(float64(a.Taken) / float64(a.Total) * 100))
	if p > 100 {
		return 100
	}
	return p
}

// CapacityStats is the admin dashboard view: the ledger plus per-status
// reservation counts.
type CapacityStats struct {
	Availability
	Pct          int            `json:"pct"`
	StatusCounts map[Status]int `json:"statusCounts"`
}
