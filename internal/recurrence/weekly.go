package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidCount indicates a non-positive occurrence count.
var ErrInvalidCount = errors.New("recurrence: occurrence count must be positive")

// ErrZeroStart indicates the series has no first occurrence.
var ErrZeroStart = errors.New("recurrence: series start must be set")

// WeeklyOccurrences expands a weekly series into its occurrence starts. The
// first occurrence is the series start itself; each following occurrence is
// exactly seven days later, preserving wall-clock time in the start's
// location across DST transitions.
func WeeklyOccurrences(start time.Time, count int) ([]time.Time, error) {
	if count <= 0 {
		return nil, ErrInvalidCount
	}
	if start.IsZero() {
		return nil, ErrZeroStart
	}

	occurrences := make([]time.Time, 0, count)
	for week := 0; week < count; week++ {
		occurrences = append(occurrences, start.AddDate(0, 0, 7*week))
	}
	return occurrences, nil
}

// WeeklyRule renders the recurrence rule string for a bounded weekly series,
// in the form calendar providers expect.
func WeeklyRule(count int) (string, error) {
	if count <= 0 {
		return "", ErrInvalidCount
	}
	return fmt.Sprintf("RRULE:FREQ=WEEKLY;COUNT=%d", count), nil
}

// NormalizeStart collapses an occurrence start to a comparison key. Provider
// instances and stored meetings may carry different zones or sub-minute
// noise; both sides are normalized before matching.
func NormalizeStart(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
