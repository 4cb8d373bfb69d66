// Package schedule turns a DAG schedule expression into data intervals.
//
// A run covers the data interval [Start, End) and becomes due once End has
// passed. Interval schedules are aligned to the DAG start date, cron
// schedules to their ticks.
package schedule

import (
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/robfig/cron/v3"
	"github.com/warriorguo/dagflow/types"
)

type Restriction struct {
	StartDate time.Time
	EndDate   *time.Time
	Catchup   bool
	Now       time.Time
}

func (r Restriction) afterEnd(t time.Time) bool {
	return r.EndDate != nil && t.After(*r.EndDate)
}

type Schedule interface {
	/**
	 * NextDataInterval returns the interval following last (nil for the first
	 * run) and whether it is due at r.Now. An interval that is not due is
	 * still returned so the caller knows when to look again, unless the
	 * schedule is exhausted, in which case the zero interval is returned.
	 */
	NextDataInterval(last *types.DataInterval, r Restriction) (types.DataInterval, bool)
	ManualDataInterval(runAfter time.Time) types.DataInterval
	/**
	 * Trigger returns the times at which new intervals may become due, in the
	 * form robfig/cron consumes. Nil means the schedule never fires by itself.
	 */
	Trigger(startDate time.Time) cron.Schedule
	String() string
}

var presets = map[string]string{
	"@hourly":   "0 * * * *",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@weekly":   "0 0 * * 0",
	"@monthly":  "0 0 1 * *",
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
}

// Parse accepts presets, five-field cron expressions, "@every <duration>",
// "@once" and "none" (or an empty string) for manually triggered DAGs.
func Parse(expr string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	switch expr {
	case "", "none", "@none":
		return Manual(), nil
	case "@once":
		return Once(), nil
	}

	if rest, found := strings.CutPrefix(expr, "@every "); found {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil {
			return nil, errors.NotValidf("schedule %q", expr)
		}
		if d <= 0 {
			return nil, errors.NotValidf("schedule %q: non positive interval", expr)
		}
		return Every(d), nil
	}

	cronExpr := expr
	if preset, exists := presets[expr]; exists {
		cronExpr = preset
	}
	// cron expressions are evaluated in UTC unless they name a zone
	if !strings.HasPrefix(cronExpr, "CRON_TZ=") && !strings.HasPrefix(cronExpr, "TZ=") {
		cronExpr = "CRON_TZ=UTC " + cronExpr
	}
	spec, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, errors.Annotatef(err, "parse schedule %q", expr)
	}
	return &cronSchedule{expr: expr, spec: spec}, nil
}

// Resolve picks the schedule of a DAG: a fixed interval wins over the expression.
func Resolve(args types.DAGArgs) (Schedule, error) {
	if args.ScheduleInterval > 0 {
		return Every(args.ScheduleInterval), nil
	}
	return Parse(args.Schedule)
}

type deltaSchedule struct {
	interval time.Duration
}

// Every is a fixed interval schedule aligned to the start date.
func Every(interval time.Duration) Schedule {
	return &deltaSchedule{interval: interval}
}

func (s *deltaSchedule) String() string {
	return "@every " + s.interval.String()
}

func (s *deltaSchedule) NextDataInterval(last *types.DataInterval, r Restriction) (types.DataInterval, bool) {
	start := r.StartDate
	if last != nil {
		start = last.End
	}
	if !r.Catchup {
		// latest complete interval
		if elapsed := r.Now.Sub(r.StartDate); elapsed >= s.interval {
			k := int64(elapsed / s.interval)
			latest := r.StartDate.Add(time.Duration(k-1) * s.interval)
			if latest.After(start) {
				start = latest
			}
		}
	}
	if r.afterEnd(start) {
		return types.DataInterval{}, false
	}
	interval := types.DataInterval{Start: start, End: start.Add(s.interval)}
	return interval, !interval.End.After(r.Now)
}

func (s *deltaSchedule) ManualDataInterval(runAfter time.Time) types.DataInterval {
	return types.DataInterval{Start: runAfter.Add(-s.interval), End: runAfter}
}

func (s *deltaSchedule) Trigger(startDate time.Time) cron.Schedule {
	return &deltaTrigger{anchor: startDate, interval: s.interval}
}

type deltaTrigger struct {
	anchor   time.Time
	interval time.Duration
}

func (t *deltaTrigger) Next(now time.Time) time.Time {
	if now.Before(t.anchor) {
		return t.anchor
	}
	k := int64(now.Sub(t.anchor)/t.interval) + 1
	return t.anchor.Add(time.Duration(k) * t.interval)
}

type cronSchedule struct {
	expr string
	spec cron.Schedule
}

func (s *cronSchedule) String() string {
	return s.expr
}

func (s *cronSchedule) first(startDate time.Time) time.Time {
	return s.spec.Next(startDate.Add(-time.Second))
}

func (s *cronSchedule) NextDataInterval(last *types.DataInterval, r Restriction) (types.DataInterval, bool) {
	start := s.first(r.StartDate)
	if start.IsZero() {
		// the expression never fires
		return types.DataInterval{}, false
	}
	if last != nil && last.End.After(start) {
		start = last.End
	}
	if !r.Catchup {
		if ticks := s.lastTicks(r.Now, 2); len(ticks) == 2 && ticks[0].After(start) {
			start = ticks[0]
		}
	}
	if r.afterEnd(start) {
		return types.DataInterval{}, false
	}
	interval := types.DataInterval{Start: start, End: s.spec.Next(start)}
	if interval.End.IsZero() {
		return types.DataInterval{}, false
	}
	return interval, !interval.End.After(r.Now)
}

func (s *cronSchedule) ManualDataInterval(runAfter time.Time) types.DataInterval {
	ticks := s.lastTicks(runAfter, 2)
	if len(ticks) < 2 {
		return types.DataInterval{Start: runAfter, End: runAfter}
	}
	return types.DataInterval{Start: ticks[0], End: ticks[1]}
}

func (s *cronSchedule) Trigger(startDate time.Time) cron.Schedule {
	return s.spec
}

const maxLookback = 5 * 366 * 24 * time.Hour

// lastTicks returns up to n most recent ticks at or before now, oldest first.
func (s *cronSchedule) lastTicks(now time.Time, n int) []time.Time {
	for lookback := time.Hour; lookback <= 2*maxLookback; lookback *= 2 {
		ticks := make([]time.Time, 0, n)
		for t := s.spec.Next(now.Add(-lookback)); !t.IsZero() && !t.After(now); t = s.spec.Next(t) {
			ticks = append(ticks, t)
			if len(ticks) > n {
				ticks = ticks[1:]
			}
		}
		if len(ticks) == n {
			return ticks
		}
	}
	return nil
}

type onceSchedule struct{}

// Once runs a single interval at the start date.
func Once() Schedule {
	return onceSchedule{}
}

func (onceSchedule) String() string {
	return "@once"
}

func (onceSchedule) NextDataInterval(last *types.DataInterval, r Restriction) (types.DataInterval, bool) {
	if last != nil {
		return types.DataInterval{}, false
	}
	interval := types.DataInterval{Start: r.StartDate, End: r.StartDate}
	return interval, !r.StartDate.After(r.Now)
}

func (onceSchedule) ManualDataInterval(runAfter time.Time) types.DataInterval {
	return types.DataInterval{Start: runAfter, End: runAfter}
}

func (onceSchedule) Trigger(startDate time.Time) cron.Schedule {
	return onceTrigger(startDate)
}

type onceTrigger time.Time

func (t onceTrigger) Next(now time.Time) time.Time {
	if now.Before(time.Time(t)) {
		return time.Time(t)
	}
	return time.Time{}
}

type manualSchedule struct{}

// Manual never schedules runs by itself.
func Manual() Schedule {
	return manualSchedule{}
}

func (manualSchedule) String() string {
	return "none"
}

func (manualSchedule) NextDataInterval(last *types.DataInterval, r Restriction) (types.DataInterval, bool) {
	return types.DataInterval{}, false
}

func (manualSchedule) ManualDataInterval(runAfter time.Time) types.DataInterval {
	return types.DataInterval{Start: runAfter, End: runAfter}
}

func (manualSchedule) Trigger(startDate time.Time) cron.Schedule {
	return nil
}

// IsManual reports whether s never fires by itself.
func IsManual(s Schedule) bool {
	_, ok := s.(manualSchedule)
	return ok
}
