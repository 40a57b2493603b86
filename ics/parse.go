package ics

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/dzoniops/condo-booking/models"
)

// ParsedEvent is one blocked stay read from a feed, already reduced to
// calendar dates. End is exclusive.
type ParsedEvent struct {
	UID   string
	Title string
	Start models.Date
	End   models.Date
}

func (e ParsedEvent) Range() models.DateRange {
	return models.DateRange{Start: e.Start, End: e.End}
}

// Skipped records a VEVENT that was dropped and why.
type Skipped struct {
	UID    string
	Reason string
}

type Result struct {
	Events  []ParsedEvent
	Skipped []Skipped
}

// Options controls how a feed is read.
type Options struct {
	// Location interprets floating date-times and reduces timed values to
	// dates. Defaults to UTC.
	Location *time.Location
	// From is the lower bound of RRULE expansion: occurrences that end on or
	// before its calendar day are dropped. Zero expands from DTSTART.
	From time.Time
	// Until bounds RRULE expansion. Recurring events are ignored when zero.
	Until time.Time
	// MaxOccurrences caps the instances produced by one recurring event
	// inside [From, Until].
	MaxOccurrences int
}

const defaultMaxOccurrences = 1000

// rawEvent is a VEVENT after its properties were read but before its
// recurrence was expanded.
type rawEvent struct {
	uid     string
	title   string
	start   time.Time
	allDay  bool
	nights  int
	rrule   string
	exdates []time.Time
	// recurrenceID is set on an override of one instance of a recurring
	// event; it names the calendar day of the instance it replaces.
	recurrenceID *models.Date
	cancelled    bool
}

// Parse reads an iCalendar payload. The whole call fails only when the
// payload is not a calendar at all; individual VEVENTs that cannot be read
// are reported in Result.Skipped and never coerced into a block.
//
// A VEVENT carrying RECURRENCE-ID replaces the instance of the event with
// the same UID that starts on that day. The replaced instance is dropped and
// the override is emitted in its place unless it is cancelled.
func Parse(body []byte, opts Options) (Result, error) {
	var res Result
	if len(bytes.TrimSpace(body)) == 0 {
		return res, errors.New("empty calendar body")
	}
	if !bytes.Contains(body, []byte("BEGIN:VCALENDAR")) {
		return res, errors.New("payload is not an iCalendar document")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = defaultMaxOccurrences
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return res, fmt.Errorf("parse calendar: %w", err)
	}

	type entry struct {
		raw rawEvent
		err error
	}
	var entries []entry
	replaced := make(map[string]map[models.Date]bool)
	for _, ve := range cal.Events() {
		raw, err := readEvent(ve, opts.Location)
		entries = append(entries, entry{raw: raw, err: err})
		if err == nil && raw.recurrenceID != nil && raw.uid != "" {
			if replaced[raw.uid] == nil {
				replaced[raw.uid] = make(map[models.Date]bool)
			}
			replaced[raw.uid][*raw.recurrenceID] = true
		}
	}

	for _, en := range entries {
		raw := en.raw
		if en.err != nil {
			res.Skipped = append(res.Skipped, Skipped{UID: raw.uid, Reason: en.err.Error()})
			continue
		}
		if raw.cancelled {
			res.Skipped = append(res.Skipped, Skipped{UID: raw.uid, Reason: "event is cancelled"})
			continue
		}
		var moved map[models.Date]bool
		if raw.recurrenceID == nil {
			moved = replaced[raw.uid]
		}
		if raw.rrule == "" || raw.recurrenceID != nil {
			ev := raw.single(opts.Location)
			if moved[ev.Start] {
				continue
			}
			if !ev.Start.Before(ev.End) {
				res.Skipped = append(res.Skipped, Skipped{UID: raw.uid, Reason: "ends on or before its start date"})
				continue
			}
			res.Events = append(res.Events, ev)
			continue
		}
		occ, truncated, err := expand(raw, moved, opts)
		if err != nil {
			res.Skipped = append(res.Skipped, Skipped{UID: raw.uid, Reason: err.Error()})
			continue
		}
		if truncated {
			res.Skipped = append(res.Skipped, Skipped{UID: raw.uid,
				Reason: fmt.Sprintf("recurrence truncated after %d occurrences", opts.MaxOccurrences)})
		}
		res.Events = append(res.Events, occ...)
	}
	return res, nil
}

func readEvent(ve *ical.VEvent, loc *time.Location) (rawEvent, error) {
	var out rawEvent
	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.uid = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.title = strings.TrimSpace(p.Value)
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := propTime(startProp, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.start = start
	out.allDay = allDay

	startDate := toDate(start, allDay, loc)
	switch endProp, durProp := ve.GetProperty(ical.ComponentPropertyDtEnd), ve.GetProperty(ical.ComponentProperty("DURATION")); {
	case endProp != nil:
		end, endAllDay, err := propTime(endProp, loc)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.nights = startDate.DaysUntil(toDate(end, endAllDay, loc))
	case durProp != nil:
		days, err := durationDays(durProp.Value)
		if err != nil {
			return out, fmt.Errorf("DURATION: %w", err)
		}
		out.nights = days
	default:
		out.nights = 1
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.rrule = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentProperty("STATUS")); p != nil {
		out.cancelled = strings.EqualFold(strings.TrimSpace(p.Value), "CANCELLED")
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		rid, ridAllDay, err := propTime(p, loc)
		if err != nil {
			return out, fmt.Errorf("RECURRENCE-ID: %w", err)
		}
		d := toDate(rid, ridAllDay, loc)
		out.recurrenceID = &d
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t, _, err := parseValue(part, paramLocation(p, loc))
			if err != nil {
				return out, fmt.Errorf("EXDATE: %w", err)
			}
			out.exdates = append(out.exdates, t)
		}
	}
	return out, nil
}

func (e rawEvent) single(loc *time.Location) ParsedEvent {
	start := toDate(e.start, e.allDay, loc)
	return ParsedEvent{UID: e.uid, Title: e.title, Start: start, End: start.AddDays(e.nights)}
}

// propTime reads a DATE or DATE-TIME property. allDay is true for DATE
// values.
func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		t, err := time.ParseInLocation("20060102", strings.TrimSpace(p.Value), time.UTC)
		return t, true, err
	}
	return parseValue(p.Value, paramLocation(p, loc))
}

func paramLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tz[0], `"`)); err == nil {
			return l
		}
	}
	return fallback
}

func parseValue(v string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, false, errors.New("empty value")
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102", v, time.UTC)
		return t, true, err
	}
}

// toDate reduces t to the calendar day it falls on. DATE values carry no
// zone and are taken as written.
func toDate(t time.Time, allDay bool, loc *time.Location) models.Date {
	if allDay {
		return models.NewDate(t.Year(), t.Month(), t.Day())
	}
	return models.Normalize(t.In(loc))
}

var durationRe = regexp.MustCompile(`^P(?:(\d+)W)?(?:(\d+)D)?(?:T.*)?$`)

// durationDays reads the whole days of an RFC 5545 duration. Time parts
// are ignored because blocks cover whole nights.
func durationDays(v string) (int, error) {
	m := durationRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, fmt.Errorf("unsupported duration %q", v)
	}
	var days int
	if m[1] != "" {
		w, _ := strconv.Atoi(m[1])
		days += 7 * w
	}
	if m[2] != "" {
		d, _ := strconv.Atoi(m[2])
		days += d
	}
	return days, nil
}
