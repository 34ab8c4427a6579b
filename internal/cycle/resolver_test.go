package cycle

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestCalendar(t *testing.T, loc *time.Location) *Calendar {
	t.Helper()
	cal, err := LoadCalendar("testdata/primaries.yaml", loc)
	require.NoError(t, err)
	return cal
}

func TestResolverCutoff(t *testing.T) {
	loc := mustLoc(t)
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, loc)
	r := NewResolver(loc, WithClock(func() time.Time { return now }))

	assert.True(t, r.Cutoff(now))
	assert.True(t, r.Cutoff(time.Date(2026, time.November, 3, 23, 59, 0, 0, loc)))
	assert.False(t, r.Cutoff(time.Date(2026, time.November, 4, 0, 0, 0, 0, loc)))
	assert.True(t, r.Cutoff(time.Date(2023, time.January, 1, 0, 0, 0, 0, loc)))

	assert.True(t, r.InCurrentCycle(time.Date(2025, time.January, 1, 0, 0, 0, 0, loc)))
	assert.False(t, r.InCurrentCycle(time.Date(2024, time.November, 5, 12, 0, 0, 0, loc)))
}

func TestResolverCycle(t *testing.T) {
	loc := mustLoc(t)
	r := NewResolver(loc)

	c := r.Cycle(time.Date(2025, time.July, 4, 0, 0, 0, 0, loc))
	assert.Equal(t, 2026, c.ElectionYear)
	assert.Equal(t, GeneralBoundary(2024, loc), c.Start)
	assert.Equal(t, GeneralBoundary(2026, loc), c.End)
}

func TestResolverBucket(t *testing.T) {
	loc := mustLoc(t)
	r := NewResolver(loc, WithCalendar(loadTestCalendar(t, loc)))

	t.Run("before primary", func(t *testing.T) {
		b := r.Bucket("NY", time.Date(2026, time.May, 1, 0, 0, 0, 0, loc))
		assert.Equal(t, KindPrimary, b.Kind)
		assert.Equal(t, "2026-primary", b.Key())
		assert.Equal(t, time.Date(2026, time.June, 24, 0, 0, 0, 0, loc), b.End)
	})
	t.Run("on primary day", func(t *testing.T) {
		b := r.Bucket("ny", time.Date(2026, time.June, 23, 18, 0, 0, 0, loc))
		assert.Equal(t, KindPrimary, b.Kind)
	})
	t.Run("after primary", func(t *testing.T) {
		b := r.Bucket("NY", time.Date(2026, time.June, 24, 0, 0, 0, 0, loc))
		assert.Equal(t, KindGeneral, b.Kind)
		assert.Equal(t, time.Date(2026, time.June, 24, 0, 0, 0, 0, loc), b.Start)
		assert.Equal(t, GeneralBoundary(2026, loc), b.End)
	})
	t.Run("odd year pledge falls in next primary", func(t *testing.T) {
		b := r.Bucket("TX", time.Date(2025, time.December, 1, 0, 0, 0, 0, loc))
		assert.Equal(t, KindPrimary, b.Kind)
		assert.Equal(t, 2026, b.ElectionYear)
	})
	t.Run("state without calendar entry", func(t *testing.T) {
		b := r.Bucket("VT", time.Date(2026, time.May, 1, 0, 0, 0, 0, loc))
		assert.Equal(t, KindGeneral, b.Kind)
		assert.Equal(t, GeneralBoundary(2024, loc), b.Start)
		assert.True(t, b.Contains(time.Date(2026, time.May, 1, 0, 0, 0, 0, loc)))
	})
}

func TestParseCalendarRejects(t *testing.T) {
	tests := map[string]string{
		"special":       "elections:\n  - {state: GA, type: special, date: 2026-01-05}\n",
		"runoff":        "elections:\n  - {state: GA, type: runoff, date: 2026-12-01}\n",
		"unknown type":  "elections:\n  - {state: GA, type: caucus, date: 2026-01-05}\n",
		"odd year":      "elections:\n  - {state: GA, type: primary, date: 2027-05-05}\n",
		"after general": "elections:\n  - {state: GA, type: primary, date: 2026-11-20}\n",
		"bad date":      "elections:\n  - {state: GA, type: primary, date: May 5}\n",
		"no state":      "elections:\n  - {type: primary, date: 2026-05-05}\n",
		"duplicate":     "elections:\n  - {state: GA, type: primary, date: 2026-05-05}\n  - {state: GA, type: primary, date: 2026-05-19}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCalendar([]byte(doc), time.UTC)
			require.Error(t, err)
		})
	}
}

func TestLoadCalendarEmptyPath(t *testing.T) {
	cal, err := LoadCalendar("", time.UTC)
	require.NoError(t, err)
	_, ok := cal.Primary("NY", 2026)
	assert.False(t, ok)

	_, err = LoadCalendar("testdata/missing.yaml", time.UTC)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestOpenCalendar(t *testing.T) {
	loc := mustLoc(t)

	builtIn, err := OpenCalendar("", loc)
	require.NoError(t, err)
	ny, ok := builtIn.Primary("NY", 2026)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.June, 23, 0, 0, 0, 0, loc), ny)
	_, ok = builtIn.Primary("TX", 2026)
	assert.True(t, ok)

	none, err := OpenCalendar(NoCalendar, loc)
	require.NoError(t, err)
	_, ok = none.Primary("NY", 2026)
	assert.False(t, ok)

	file, err := OpenCalendar("testdata/primaries.yaml", loc)
	require.NoError(t, err)
	_, ok = file.Primary("NY", 2028)
	assert.True(t, ok)
}
