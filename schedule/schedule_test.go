package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warriorguo/dagflow/types"
)

var (
	startDate = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	day       = 24 * time.Hour
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	cases := map[string]string{
		"":            "none",
		"none":        "none",
		"@once":       "@once",
		"@every 24h":  "@every 24h0m0s",
		"@daily":      "@daily",
		"*/5 * * * *": "*/5 * * * *",
	}
	for expr, expected := range cases {
		s, err := Parse(expr)
		require.Nil(t, err, expr)
		assert.Equal(t, expected, s.String(), expr)
	}

	for _, expr := range []string{"@every", "@every -1h", "@every abc", "* * *", "@sometimes"} {
		_, err := Parse(expr)
		assert.NotNil(t, err, expr)
	}
}

func TestResolve(t *testing.T) {
	s, err := Resolve(types.DAGArgs{ScheduleInterval: day, Schedule: "@hourly"})
	require.Nil(t, err)
	assert.Equal(t, Every(day).String(), s.String())

	s, err = Resolve(types.DAGArgs{Schedule: "@hourly"})
	require.Nil(t, err)
	assert.Equal(t, "@hourly", s.String())

	s, err = Resolve(types.DAGArgs{})
	require.Nil(t, err)
	assert.True(t, IsManual(s))
}

func TestDeltaFirstInterval(t *testing.T) {
	s := Every(day)
	r := Restriction{StartDate: startDate, Catchup: true, Now: date(2021, 1, 1).Add(12 * time.Hour)}

	interval, due := s.NextDataInterval(nil, r)
	assert.Equal(t, startDate, interval.Start)
	assert.Equal(t, date(2021, 1, 2), interval.End)
	assert.False(t, due)

	r.Now = date(2021, 1, 2)
	_, due = s.NextDataInterval(nil, r)
	assert.True(t, due)
}

func TestDeltaCatchup(t *testing.T) {
	s := Every(day)
	r := Restriction{StartDate: startDate, Catchup: true, Now: date(2021, 1, 4).Add(time.Hour)}

	var last *types.DataInterval
	starts := []time.Time{}
	for {
		interval, due := s.NextDataInterval(last, r)
		if !due {
			break
		}
		starts = append(starts, interval.Start)
		last = &interval
	}
	assert.Equal(t, []time.Time{date(2021, 1, 1), date(2021, 1, 2), date(2021, 1, 3)}, starts)
}

func TestDeltaNoCatchup(t *testing.T) {
	s := Every(day)
	r := Restriction{StartDate: startDate, Catchup: false, Now: date(2026, 10, 15).Add(3 * time.Hour)}

	interval, due := s.NextDataInterval(nil, r)
	assert.True(t, due)
	assert.Equal(t, date(2026, 10, 14), interval.Start)
	assert.Equal(t, date(2026, 10, 15), interval.End)

	// the latest interval already ran, nothing new is due
	_, due = s.NextDataInterval(&interval, r)
	assert.False(t, due)

	// an old last run does not cause a backfill
	old := types.DataInterval{Start: date(2021, 1, 1), End: date(2021, 1, 2)}
	interval, due = s.NextDataInterval(&old, r)
	assert.True(t, due)
	assert.Equal(t, date(2026, 10, 14), interval.Start)
}

func TestDeltaEndDate(t *testing.T) {
	s := Every(day)
	end := date(2021, 1, 2)
	r := Restriction{StartDate: startDate, EndDate: &end, Catchup: true, Now: date(2021, 2, 1)}

	last := &types.DataInterval{Start: date(2021, 1, 2), End: date(2021, 1, 3)}
	interval, due := s.NextDataInterval(last, r)
	assert.False(t, due)
	assert.True(t, interval.Start.IsZero())
}

func TestDeltaManualInterval(t *testing.T) {
	interval := Every(day).ManualDataInterval(date(2021, 1, 5))
	assert.Equal(t, date(2021, 1, 4), interval.Start)
	assert.Equal(t, date(2021, 1, 5), interval.End)
}

func TestDeltaTrigger(t *testing.T) {
	trigger := Every(day).Trigger(startDate)
	assert.Equal(t, startDate, trigger.Next(date(2020, 12, 1)))
	assert.Equal(t, date(2021, 1, 2), trigger.Next(startDate))
	assert.Equal(t, date(2021, 1, 6), trigger.Next(date(2021, 1, 5).Add(time.Minute)))
}

func TestCronIntervals(t *testing.T) {
	s, err := Parse("@daily")
	require.Nil(t, err)

	r := Restriction{StartDate: startDate.Add(6 * time.Hour), Catchup: true, Now: date(2021, 1, 10)}
	interval, due := s.NextDataInterval(nil, r)
	assert.True(t, due)
	assert.Equal(t, date(2021, 1, 2), interval.Start)
	assert.Equal(t, date(2021, 1, 3), interval.End)

	r.Catchup = false
	interval, due = s.NextDataInterval(nil, r)
	assert.True(t, due)
	assert.Equal(t, date(2021, 1, 9), interval.Start)
	assert.Equal(t, date(2021, 1, 10), interval.End)

	manual := s.ManualDataInterval(date(2021, 1, 10).Add(5 * time.Hour))
	assert.Equal(t, date(2021, 1, 9), manual.Start)
	assert.Equal(t, date(2021, 1, 10), manual.End)
}

func TestCronNeverFires(t *testing.T) {
	// February never has a 30th
	s, err := Parse("0 0 30 2 *")
	require.Nil(t, err)

	for _, catchup := range []bool{true, false} {
		r := Restriction{StartDate: startDate, Catchup: catchup, Now: date(2030, 1, 1)}
		interval, due := s.NextDataInterval(nil, r)
		assert.False(t, due)
		assert.True(t, interval.Start.IsZero())
		assert.True(t, interval.End.IsZero())
	}

	manual := s.ManualDataInterval(date(2021, 3, 1))
	assert.Equal(t, date(2021, 3, 1), manual.Start)
	assert.Equal(t, date(2021, 3, 1), manual.End)
}

func TestOnce(t *testing.T) {
	s := Once()
	r := Restriction{StartDate: startDate, Now: date(2021, 3, 1)}

	interval, due := s.NextDataInterval(nil, r)
	assert.True(t, due)
	assert.Equal(t, startDate, interval.Start)

	_, due = s.NextDataInterval(&interval, r)
	assert.False(t, due)

	trigger := s.Trigger(startDate)
	assert.Equal(t, startDate, trigger.Next(date(2020, 1, 1)))
	assert.True(t, trigger.Next(date(2021, 3, 1)).IsZero())
}

func TestManual(t *testing.T) {
	s := Manual()
	_, due := s.NextDataInterval(nil, Restriction{StartDate: startDate, Now: date(2030, 1, 1)})
	assert.False(t, due)
	assert.Nil(t, s.Trigger(startDate))
}
