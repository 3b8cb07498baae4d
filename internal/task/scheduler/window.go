package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"promptcron/internal/schedule"
)

var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronSpec renders the robfig spec for sc:
//
//	CRON_TZ=<zone> <minute> <hour> * * <dow>
//
// dow is "*" for daily schedules. Weekly days map monday=0 … sunday=6 onto
// cron's Sunday=0 numbering, de-duplicated and sorted.
func CronSpec(sc schedule.Schedule) (string, error) {
	h, m, err := schedule.ParseClock(sc.Schedule.Time)
	if err != nil {
		return "", err
	}
	tz := strings.TrimSpace(sc.Schedule.Timezone)
	if tz == "" {
		return "", fmt.Errorf("timezone required")
	}

	dow := "*"
	switch sc.Schedule.Type {
	case schedule.Daily:
	case schedule.Weekly:
		if len(sc.Schedule.Days) == 0 {
			return "", fmt.Errorf("weekly schedule without days")
		}
		seen := map[int]bool{}
		nums := make([]int, 0, len(sc.Schedule.Days))
		for _, d := range sc.Schedule.Days {
			idx, ok := schedule.WeekdayIndex(d)
			if !ok {
				return "", fmt.Errorf("unknown day %q", d)
			}
			n := (idx + 1) % 7
			if !seen[n] {
				seen[n] = true
				nums = append(nums, n)
			}
		}
		sort.Ints(nums)
		parts := make([]string, len(nums))
		for i, n := range nums {
			parts[i] = strconv.Itoa(n)
		}
		dow = strings.Join(parts, ",")
	default:
		return "", fmt.Errorf("unsupported schedule type %q", sc.Schedule.Type)
	}
	return fmt.Sprintf("CRON_TZ=%s %d %d * * %s", tz, m, h, dow), nil
}

// windowSchedule restricts a base schedule to [start, end). Next returns the
// zero time once the window is exhausted, which robfig treats as "never".
type windowSchedule struct {
	base       cron.Schedule
	start, end time.Time
}

func (w windowSchedule) Next(t time.Time) time.Time {
	if !w.start.IsZero() && t.Before(w.start) {
		// base.Next is strictly after its argument; step back so start itself qualifies.
		t = w.start.Add(-time.Nanosecond)
	}
	n := w.base.Next(t)
	if n.IsZero() {
		return n
	}
	if !w.end.IsZero() && !n.Before(w.end) {
		return time.Time{}
	}
	return n
}

// Build parses sc into its spec string and bounded cron.Schedule.
func Build(sc schedule.Schedule) (string, cron.Schedule, error) {
	spec, err := CronSpec(sc)
	if err != nil {
		return "", nil, err
	}
	base, err := specParser.Parse(spec)
	if err != nil {
		return "", nil, err
	}
	start, end := sc.Window()
	if start.IsZero() && end.IsZero() {
		return spec, base, nil
	}
	return spec, windowSchedule{base: base, start: start, end: end}, nil
}

// PreviewRuns lists up to n fire times strictly after from.
func PreviewRuns(sc schedule.Schedule, from time.Time, n int) ([]time.Time, error) {
	_, sched, err := Build(sc)
	if err != nil {
		return nil, err
	}
	return nextN(sched, from, n), nil
}

func nextN(sched cron.Schedule, from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
