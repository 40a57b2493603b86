package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzoniops/condo-booking/models"
)

func calendar(events ...string) []byte {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Airbnb Inc//Hosting Calendar 1.0//EN",
		"CALSCALE:GREGORIAN",
	}
	for _, ev := range events {
		lines = append(lines, "BEGIN:VEVENT")
		lines = append(lines, strings.Split(strings.TrimSpace(ev), "\n")...)
		lines = append(lines, "END:VEVENT")
	}
	lines = append(lines, "END:VCALENDAR")
	return []byte(strings.Join(lines, "\r\n") + "\r\n")
}

func TestParseAllDayEvents(t *testing.T) {
	body := calendar(`
DTSTAMP:20251101T000000Z
DTSTART;VALUE=DATE:20251220
DTEND;VALUE=DATE:20251225
SUMMARY:Reserved
UID:a1@airbnb.com`, `
DTSTAMP:20251101T000000Z
DTSTART;VALUE=DATE:20251231
DTEND;VALUE=DATE:20260102
SUMMARY:Airbnb (Not available)
UID:a2@airbnb.com`)

	res, err := Parse(body, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	require.Len(t, res.Events, 2)
	assert.Equal(t, models.MustDateRange("2025-12-20", "2025-12-25"), res.Events[0].Range())
	assert.Equal(t, models.MustDateRange("2025-12-31", "2026-01-02"), res.Events[1].Range())
	assert.Equal(t, "Reserved", res.Events[0].Title)
	assert.Equal(t, "a2@airbnb.com", res.Events[1].UID)
}

func TestParseMissingEndIsOneNight(t *testing.T) {
	res, err := Parse(calendar(`
DTSTART;VALUE=DATE:20250301
UID:one`, `
DTSTART;VALUE=DATE:20250310
DURATION:P1W
UID:week`), Options{})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, models.MustDateRange("2025-03-01", "2025-03-02"), res.Events[0].Range())
	assert.Equal(t, models.MustDateRange("2025-03-10", "2025-03-17"), res.Events[1].Range())
}

func TestParseSkipsMalformedEvents(t *testing.T) {
	res, err := Parse(calendar(`
SUMMARY:no start
UID:nostart`, `
DTSTART;VALUE=DATE:20250405
DTEND;VALUE=DATE:20250405
UID:empty`, `
DTSTART;VALUE=DATE:20250410
DTEND;VALUE=DATE:20250408
UID:reversed`, `
DTSTART:not-a-date
UID:garbage`, `
DTSTART;VALUE=DATE:20250420
DTEND;VALUE=DATE:20250422
UID:good`), Options{})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "good", res.Events[0].UID)
	require.Len(t, res.Skipped, 4)
	assert.Equal(t, "nostart", res.Skipped[0].UID)
	assert.Contains(t, res.Skipped[0].Reason, "DTSTART")
	assert.Equal(t, "empty", res.Skipped[1].UID)
	assert.Equal(t, "reversed", res.Skipped[2].UID)
	assert.Equal(t, "garbage", res.Skipped[3].UID)
}

func TestParseTimedEventsUseLocation(t *testing.T) {
	manila := time.FixedZone("PHT", 8*60*60)
	res, err := Parse(calendar(`
DTSTART:20250601T170000Z
DTEND:20250603T030000Z
UID:utc`), Options{Location: manila})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	// 17:00Z is 01:00 the next morning in Manila.
	assert.Equal(t, models.MustDateRange("2025-06-02", "2025-06-03"), res.Events[0].Range())
}

func TestParseExpandsRecurringBlocks(t *testing.T) {
	until := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	res, err := Parse(calendar(`
DTSTART;VALUE=DATE:20250106
DTEND;VALUE=DATE:20250107
RRULE:FREQ=WEEKLY;BYDAY=MO
EXDATE;VALUE=DATE:20250113
SUMMARY:Weekly cleaning
UID:clean`), Options{Until: until})
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	// Mondays from Jan 6 to Mar 31 inclusive is 13, minus one exclusion.
	require.Len(t, res.Events, 12)
	assert.Equal(t, models.MustDateRange("2025-01-06", "2025-01-07"), res.Events[0].Range())
	assert.Equal(t, models.MustDateRange("2025-01-20", "2025-01-21"), res.Events[1].Range())
	for _, ev := range res.Events {
		assert.Equal(t, time.Monday, ev.Start.Time().Weekday())
		assert.Equal(t, 1, ev.Range().Nights())
	}

	capped, err := Parse(calendar(`
DTSTART;VALUE=DATE:20250101
RRULE:FREQ=DAILY
UID:daily`), Options{Until: until, MaxOccurrences: 10})
	require.NoError(t, err)
	assert.Len(t, capped.Events, 10)
	require.Len(t, capped.Skipped, 1)
	assert.Equal(t, "daily", capped.Skipped[0].UID)
	assert.Contains(t, capped.Skipped[0].Reason, "truncated")

	noHorizon, err := Parse(calendar(`
DTSTART;VALUE=DATE:20250101
RRULE:FREQ=DAILY
UID:daily`), Options{})
	require.NoError(t, err)
	assert.Empty(t, noHorizon.Events)
	require.Len(t, noHorizon.Skipped, 1)
}

func TestParseExpandsFromLowerBound(t *testing.T) {
	from := time.Date(2025, 5, 31, 17, 0, 0, 0, time.UTC)
	until := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	manila := time.FixedZone("Asia/Manila", 8*3600)
	res, err := Parse(calendar(`
DTSTART;VALUE=DATE:20200101
RRULE:FREQ=DAILY
SUMMARY:Owner hold
UID:hold`), Options{Location: manila, From: from, Until: until})
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)

	// 17:00 UTC on May 31 is already June 1 in Manila.
	require.NotEmpty(t, res.Events)
	assert.Equal(t, models.MustDateRange("2025-06-01", "2025-06-02"), res.Events[0].Range())
	last := res.Events[len(res.Events)-1]
	assert.Equal(t, models.MustDateRange("2026-06-30", "2026-07-01"), last.Range())
	assert.Len(t, res.Events, 395)
}

func TestParseSubDailyRuleIsSkipped(t *testing.T) {
	res, err := Parse(calendar(`
DTSTART:20250601T090000Z
DTEND:20250602T090000Z
RRULE:FREQ=HOURLY
UID:hourly`), Options{Until: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "hourly", res.Skipped[0].UID)
}

func TestParseAppliesRecurrenceOverrides(t *testing.T) {
	until := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	res, err := Parse(calendar(`
DTSTART;VALUE=DATE:20250602
DTEND;VALUE=DATE:20250603
RRULE:FREQ=WEEKLY;COUNT=4
SUMMARY:Deep clean
UID:clean`, `
RECURRENCE-ID;VALUE=DATE:20250609
DTSTART;VALUE=DATE:20250611
DTEND;VALUE=DATE:20250613
SUMMARY:Deep clean (moved)
UID:clean`, `
RECURRENCE-ID;VALUE=DATE:20250616
DTSTART;VALUE=DATE:20250616
DTEND;VALUE=DATE:20250617
STATUS:CANCELLED
UID:clean`), Options{Until: until})
	require.NoError(t, err)

	var got []models.DateRange
	for _, ev := range res.Events {
		got = append(got, ev.Range())
	}
	assert.Equal(t, []models.DateRange{
		models.MustDateRange("2025-06-02", "2025-06-03"),
		models.MustDateRange("2025-06-23", "2025-06-24"),
		models.MustDateRange("2025-06-11", "2025-06-13"),
	}, got)
	assert.Equal(t, "Deep clean (moved)", res.Events[2].Title)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "event is cancelled", res.Skipped[0].Reason)
}

func TestParseOverrideReplacesSingleEvent(t *testing.T) {
	res, err := Parse(calendar(`
DTSTART;VALUE=DATE:20250701
DTEND;VALUE=DATE:20250704
UID:stay`, `
RECURRENCE-ID;VALUE=DATE:20250701
DTSTART;VALUE=DATE:20250702
DTEND;VALUE=DATE:20250705
UID:stay`), Options{})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, models.MustDateRange("2025-07-02", "2025-07-05"), res.Events[0].Range())
}

func TestParseRejectsNonCalendar(t *testing.T) {
	_, err := Parse(nil, Options{})
	assert.Error(t, err)
	_, err = Parse([]byte("<html>login required</html>"), Options{})
	assert.Error(t, err)

	res, err := Parse(calendar(), Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Events)
}
