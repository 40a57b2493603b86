package models

import "fmt"

// DateRange is the half-open span [Start, End) of calendar days.
type DateRange struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// NewDateRange rejects empty and reversed ranges. It does not care where the
// range sits relative to today.
func NewDateRange(start, end Date) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, NewValidationError("range", "start and end dates are required")
	}
	if !start.Before(end) {
		return DateRange{}, NewValidationError("range",
			fmt.Sprintf("start %s must be before end %s", start, end))
	}
	return DateRange{Start: start, End: end}, nil
}

func MustDateRange(start, end string) DateRange {
	r, err := NewDateRange(MustParseDate(start), MustParseDate(end))
	if err != nil {
		panic(err)
	}
	return r
}

// Overlaps reports whether a and b share at least one day. Ranges that only
// touch (a.End == b.Start) do not overlap, which is what allows a checkout
// and a check-in on the same day.
func Overlaps(a, b DateRange) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func (r DateRange) Overlaps(o DateRange) bool { return Overlaps(r, o) }

// Contains reports Start <= d < End.
func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Start) && d.Before(r.End)
}

// StrictlyContains reports Start < d < End.
func (r DateRange) StrictlyContains(d Date) bool {
	return r.Start.Before(d) && d.Before(r.End)
}

func (r DateRange) Nights() int { return r.Start.DaysUntil(r.End) }

func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && r.Start.Before(r.End)
}

// Intersect returns the shared part of r and o.
func (r DateRange) Intersect(o DateRange) (DateRange, bool) {
	if !Overlaps(r, o) {
		return DateRange{}, false
	}
	start, end := r.Start, r.End
	if o.Start.After(start) {
		start = o.Start
	}
	if o.End.Before(end) {
		end = o.End
	}
	return DateRange{Start: start, End: end}, true
}

// Days lists every day in the range.
func (r DateRange) Days() []Date {
	if !r.Valid() {
		return nil
	}
	days := make([]Date, 0, r.Nights())
	for d := r.Start; d.Before(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}
