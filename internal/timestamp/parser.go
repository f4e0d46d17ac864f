// -----------------------------------------------------------------------
// Timestamp Parser - Extracts capture instants from filenames and
// metadata strings
// -----------------------------------------------------------------------

package timestamp

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/mediaparser/internal/models"
)

// MaxValidYear caps accepted years.
const MaxValidYear = 2100

// Date-only filenames get an end-of-day default time.
const (
	defaultHour   = 23
	defaultMinute = 59
	defaultSecond = 0
)

var (
	datePattern = regexp.MustCompile(`(19|20)\d{2}[-_.]?(0[1-9]|1[0-2])[-_.]?([0-2]\d|3[01])`)
	timePattern = regexp.MustCompile(`([01]\d|2[0-3])[0-5]\d[0-5]\d`)
	digitsOnly  = regexp.MustCompile(`\D`)
)

// metadataLayouts are tried in order against metadata strings without an
// explicit offset. Fractional seconds are tolerated by time.Parse without
// being present in the layout.
var metadataLayouts = []string{
	"2006:01:02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"20060102_150405",
	"20060102150405",
	"2006:01:02",
	"2006-01-02",
}

// offsetLayouts carry an explicit zone; the embedded offset always wins
// over the configured default zone.
var offsetLayouts = []string{
	"2006:01:02 15:04:05Z07:00",
	"2006:01:02 15:04:05-07:00",
	time.RFC3339,
	"2006-01-02T15:04:05-07:00",
}

// Parser converts filename fragments and metadata strings into UTC
// instants. A Parser is immutable and safe for concurrent use.
type Parser struct {
	loc     *time.Location
	minYear int
}

// NewParser builds a parser that interprets offset-less values in loc and
// rejects years before minYear.
func NewParser(loc *time.Location, minYear int) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	if minYear <= 0 {
		minYear = 2000
	}
	return &Parser{loc: loc, minYear: minYear}
}

// Location returns the default zone applied to offset-less values.
func (p *Parser) Location() *time.Location {
	return p.loc
}

// ParseFilename scans a filename for an embedded date and optional time.
// The time is only searched for after the date match, so a leading counter
// like IMG_0231 cannot be misread as a clock. Returns the UTC instant, the
// source tag (filename_datetime or filename_date), and whether anything
// valid was found.
func (p *Parser) ParseFilename(name string) (time.Time, string, bool) {
	loc := datePattern.FindStringIndex(name)
	if loc == nil {
		return time.Time{}, models.SourceNone, false
	}

	digits := digitsOnly.ReplaceAllString(name[loc[0]:loc[1]], "")
	year, _ := strconv.Atoi(digits[0:4])
	month, _ := strconv.Atoi(digits[4:6])
	day, _ := strconv.Atoi(digits[6:8])

	hour, minute, second := defaultHour, defaultMinute, defaultSecond
	source := models.SourceFilenameDate

	if tm := timePattern.FindString(name[loc[1]:]); tm != "" {
		hour, _ = strconv.Atoi(tm[0:2])
		minute, _ = strconv.Atoi(tm[2:4])
		second, _ = strconv.Atoi(tm[4:6])
		source = models.SourceFilenameDatetime
	}

	t := time.Date(year, time.Month(month), day, hour, minute, second, 0, p.loc)
	// time.Date normalizes impossible dates (Feb 31 -> Mar 3); a round-trip
	// mismatch means the calendar values were bogus.
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, models.SourceNone, false
	}
	if year < p.minYear || year > MaxValidYear {
		return time.Time{}, models.SourceNone, false
	}
	return t.UTC(), source, true
}

// ParseString parses a metadata value in the forms common metadata writers
// produce. An explicit offset in the value wins; otherwise the value is
// interpreted in loc (pass time.UTC for QuickTime tags, which encode UTC
// regardless of where the camera was).
func (p *Parser) ParseString(value string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = p.loc
	}
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, "0000") {
		return time.Time{}, false
	}

	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return p.validate(t.UTC())
		}
	}
	for _, layout := range metadataLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return p.validate(t.UTC())
		}
	}
	return time.Time{}, false
}

// ParseDefault parses a metadata value in the parser's default zone.
func (p *Parser) ParseDefault(value string) (time.Time, bool) {
	return p.ParseString(value, p.loc)
}

func (p *Parser) validate(t time.Time) (time.Time, bool) {
	if t.Year() < p.minYear || t.Year() > MaxValidYear {
		return time.Time{}, false
	}
	return t, true
}
