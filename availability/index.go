package availability

import (
	"sort"

	"github.com/dzoniops/condo-booking/models"
)

// Index answers date queries for one property over a fixed set of blocked
// intervals. An empty index (unknown property) reports every date as free.
type Index struct {
	intervals []models.BlockedInterval
}

func NewIndex(intervals []models.BlockedInterval) *Index {
	sorted := make([]models.BlockedInterval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartDate.Before(sorted[j].StartDate)
	})
	return &Index{intervals: sorted}
}

func (x *Index) Intervals() []models.BlockedInterval { return x.intervals }

// CanCheckIn reports whether a guest may arrive on d: no interval may
// contain d. An interval ending on d does not block it.
func (x *Index) CanCheckIn(d models.Date) bool {
	for _, in := range x.intervals {
		if in.Range().Contains(d) {
			return false
		}
	}
	return true
}

// BoundaryFreeForCheckOut reports whether d lies strictly inside no
// interval. An interval starting on d does not block a departure on d.
func (x *Index) BoundaryFreeForCheckOut(d models.Date) bool {
	for _, in := range x.intervals {
		if in.Range().StrictlyContains(d) {
			return false
		}
	}
	return true
}

// CanCheckOut reports whether a stay arriving on checkIn may leave on d.
func (x *Index) CanCheckOut(checkIn, d models.Date) bool {
	if !checkIn.Before(d) || !x.BoundaryFreeForCheckOut(d) {
		return false
	}
	return len(x.Conflicts(models.DateRange{Start: checkIn, End: d})) == 0
}

// Conflicts returns every interval overlapping r, earliest first.
func (x *Index) Conflicts(r models.DateRange) []models.BlockedInterval {
	var out []models.BlockedInterval
	for _, in := range x.intervals {
		if in.Range().Overlaps(r) {
			out = append(out, in)
		}
	}
	return out
}

// BlockedDays lists every night inside window that at least one interval
// covers, in order and without duplicates.
func (x *Index) BlockedDays(window models.DateRange) []models.Date {
	var out []models.Date
	for _, d := range window.Days() {
		if !x.CanCheckIn(d) {
			out = append(out, d)
		}
	}
	return out
}

// Guard rejects a stay that overlaps any interval with a
// *models.DateConflictError naming the earliest conflicting range.
func Guard(propertyID string, stay models.DateRange) func([]models.BlockedInterval) error {
	return func(existing []models.BlockedInterval) error {
		conflicts := NewIndex(existing).Conflicts(stay)
		if len(conflicts) == 0 {
			return nil
		}
		first := conflicts[0]
		return &models.DateConflictError{
			PropertyID: propertyID,
			Requested:  stay,
			Conflict:   first.Range(),
			Source:     first.Source,
		}
	}
}
