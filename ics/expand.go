package ics

import (
	"errors"
	"fmt"

	"github.com/teambition/rrule-go"

	"github.com/dzoniops/condo-booking/models"
)

// expand turns a recurring event into one ParsedEvent per occurrence that
// is still blocking on opts.From and starts no later than opts.Until. Each
// occurrence keeps the base event's length. Occurrences starting on a day
// in moved were replaced by an override and are left out. truncated is true
// when opts.MaxOccurrences stopped the walk before Until.
func expand(e rawEvent, moved map[models.Date]bool, opts Options) (out []ParsedEvent, truncated bool, err error) {
	if opts.Until.IsZero() {
		return nil, false, errors.New("recurring event without an expansion horizon")
	}
	if e.nights <= 0 {
		return nil, false, errors.New("ends on or before its start date")
	}
	r, err := rrule.StrToRRule(e.rrule)
	if err != nil {
		return nil, false, fmt.Errorf("RRULE: %w", err)
	}
	// Blocks cover whole nights, so instances finer than a day would only
	// repeat the same dates.
	if r.OrigOptions.Freq > rrule.DAILY {
		return nil, false, fmt.Errorf("RRULE: frequency %v is finer than daily", r.OrigOptions.Freq)
	}
	r.DTStart(e.start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.exdates {
		set.ExDate(ex.In(e.start.Location()))
	}

	var from models.Date
	if !opts.From.IsZero() {
		from = models.Normalize(opts.From.In(opts.Location))
	}
	until := opts.Until.In(e.start.Location())

	next := set.Iterator()
	for t, ok := next(); ok && !t.After(until); t, ok = next() {
		occ := e
		occ.start = t
		ev := occ.single(opts.Location)
		if !from.IsZero() && !ev.End.After(from) {
			continue
		}
		if moved[ev.Start] {
			continue
		}
		if len(out) == opts.MaxOccurrences {
			return out, true, nil
		}
		out = append(out, ev)
	}
	return out, false, nil
}
