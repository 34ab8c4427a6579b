package cycle

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ElectionType names the kind of a calendar entry.
type ElectionType string

const (
	ElectionPrimary ElectionType = "primary"
	ElectionSpecial ElectionType = "special"
	ElectionRunoff  ElectionType = "runoff"
)

type calendarFile struct {
	Elections []calendarEntry `yaml:"elections"`
}

type calendarEntry struct {
	State string       `yaml:"state"`
	Type  ElectionType `yaml:"type"`
	Date  string       `yaml:"date"`
}

// Calendar holds state primary dates keyed by state and election year.
// The zero value is an empty calendar in which every state has a single
// general bucket per cycle.
type Calendar struct {
	primaries map[string]map[int]time.Time
}

//go:embed primaries.yaml
var defaultCalendar []byte

// NoCalendar is the PRIMARY_CALENDAR value that disables primary buckets.
const NoCalendar = "none"

// DefaultCalendar returns the built-in primary calendar.
func DefaultCalendar(loc *time.Location) (*Calendar, error) {
	return ParseCalendar(defaultCalendar, loc)
}

// OpenCalendar picks the calendar for a configured path: the built-in one
// when path is empty, an empty one for NoCalendar, otherwise the file.
func OpenCalendar(path string, loc *time.Location) (*Calendar, error) {
	switch path {
	case "":
		return DefaultCalendar(loc)
	case NoCalendar:
		return &Calendar{}, nil
	default:
		return LoadCalendar(path, loc)
	}
}

// LoadCalendar reads a YAML primary calendar from path. An empty path
// yields an empty calendar.
func LoadCalendar(path string, loc *time.Location) (*Calendar, error) {
	if path == "" {
		return &Calendar{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read primary calendar: %w", err)
	}
	return ParseCalendar(raw, loc)
}

// ParseCalendar parses YAML of the form
//
//	elections:
//	  - state: NY
//	    type: primary
//	    date: 2026-06-23
//
// Special and runoff entries are rejected: their bucketing is undecided.
func ParseCalendar(raw []byte, loc *time.Location) (*Calendar, error) {
	if loc == nil {
		loc = time.UTC
	}
	var file calendarFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse primary calendar: %w", err)
	}

	cal := &Calendar{primaries: make(map[string]map[int]time.Time)}
	for i, e := range file.Elections {
		state := strings.ToUpper(strings.TrimSpace(e.State))
		if state == "" {
			return nil, fmt.Errorf("calendar entry %d: state is required", i)
		}
		switch e.Type {
		case ElectionPrimary:
		case ElectionSpecial, ElectionRunoff:
			return nil, fmt.Errorf("calendar entry %d (%s): %s elections are not supported", i, state, e.Type)
		default:
			return nil, fmt.Errorf("calendar entry %d (%s): unknown election type %q", i, state, e.Type)
		}
		date, err := time.ParseInLocation(time.DateOnly, e.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("calendar entry %d (%s): %w", i, state, err)
		}
		if !IsElectionYear(date.Year()) {
			return nil, fmt.Errorf("calendar entry %d (%s): %d is not a general election year", i, state, date.Year())
		}
		if !date.Before(GeneralElectionDate(date.Year(), loc)) {
			return nil, fmt.Errorf("calendar entry %d (%s): primary must precede the general election", i, state)
		}
		if cal.primaries[state] == nil {
			cal.primaries[state] = make(map[int]time.Time)
		}
		if _, dup := cal.primaries[state][date.Year()]; dup {
			return nil, fmt.Errorf("calendar entry %d (%s): duplicate primary for %d", i, state, date.Year())
		}
		cal.primaries[state][date.Year()] = date
	}
	return cal, nil
}

// Primary returns the primary date for state in electionYear.
func (c *Calendar) Primary(state string, electionYear int) (time.Time, bool) {
	if c == nil || c.primaries == nil {
		return time.Time{}, false
	}
	d, ok := c.primaries[strings.ToUpper(state)][electionYear]
	return d, ok
}
