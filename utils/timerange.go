package utils

import (
	"errors"
	"time"
)

// TimeRange represents a half-open time interval [Start, End): the start
// instant is included, the end instant is excluded. Back-to-back ranges
// therefore never overlap.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeRange builds a validated range; End must be strictly after Start
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	r := TimeRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return TimeRange{}, err
	}
	return r, nil
}

// Validate rejects empty and inverted ranges
func (r TimeRange) Validate() error {
	if !r.End.After(r.Start) {
		return errors.New("end time must be strictly after start time")
	}
	return nil
}

// Overlaps applies the half-open overlap test: [a0,a1) and [b0,b1) overlap
// iff a0 < b1 and b0 < a1. The test is symmetric.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start.Before(other.End) && other.Start.Before(r.End)
}

// Contains reports whether the instant falls inside the range
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Covers reports whether the whole of other lies within r
func (r TimeRange) Covers(other TimeRange) bool {
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Duration returns the length of the range
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}
