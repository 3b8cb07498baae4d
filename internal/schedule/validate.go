package schedule

import (
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"time"

	"promptcron/internal/expand"
)

// ValidationError identifies the first field that violates an invariant.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ParseClock parses "HH:MM" (24-hour, zero padding optional).
func ParseClock(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || hs == "" || ms == "" || len(hs) > 2 || len(ms) > 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || h > 23 || strings.HasPrefix(hs, "+") {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 || m > 59 || strings.HasPrefix(ms, "+") {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}

// ParseDate accepts RFC3339 (with or without fractional seconds), a local
// "YYYY-MM-DDTHH:MM:SS" or a plain "YYYY-MM-DD"; zone-less forms are
// interpreted in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Validate checks every invariant and returns the normalized schedule.
// Errors are always *ValidationError.
func Validate(in Input) (Schedule, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return Schedule{}, invalid("id", "required")
	}

	if len(in.Emails) == 0 {
		return Schedule{}, invalid("emails", "at least one recipient required")
	}
	emails := make([]string, 0, len(in.Emails))
	for _, e := range in.Emails {
		e = strings.TrimSpace(e)
		if _, err := mail.ParseAddress(e); err != nil {
			return Schedule{}, invalid("emails", "%q is not a valid address", e)
		}
		emails = append(emails, e)
	}

	if strings.TrimSpace(in.Prompt) == "" {
		return Schedule{}, invalid("prompt", "required")
	}
	if strings.TrimSpace(in.EmailTitle) == "" {
		return Schedule{}, invalid("email_title", "required")
	}

	// Every declared list must be non-empty; every referenced name must be declared.
	names := make([]string, 0, len(in.PromptVariables))
	for name := range in.PromptVariables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if len(in.PromptVariables[name]) == 0 {
			return Schedule{}, invalid("prompt_variables", "variable %q has no values", name)
		}
	}
	for _, tmpl := range []struct{ field, text string }{{"prompt", in.Prompt}, {"email_title", in.EmailTitle}} {
		for _, name := range expand.Placeholders(tmpl.text) {
			if _, ok := in.PromptVariables[name]; !ok {
				return Schedule{}, invalid("prompt_variables", "variable %q referenced by %s has no values", name, tmpl.field)
			}
		}
	}

	spec := in.Schedule
	spec.Type = Kind(strings.ToLower(strings.TrimSpace(string(spec.Type))))
	switch spec.Type {
	case Daily, Weekly:
	case "":
		return Schedule{}, invalid("schedule.type", "required")
	default:
		return Schedule{}, invalid("schedule.type", "must be daily or weekly, got %q", in.Schedule.Type)
	}

	h, m, err := ParseClock(spec.Time)
	if err != nil {
		return Schedule{}, invalid("schedule.time", "%v", err)
	}
	spec.Time = fmt.Sprintf("%02d:%02d", h, m)

	spec.Timezone = strings.TrimSpace(spec.Timezone)
	if spec.Timezone == "" {
		return Schedule{}, invalid("schedule.timezone", "required")
	}
	loc, err := time.LoadLocation(spec.Timezone)
	if err != nil {
		return Schedule{}, invalid("schedule.timezone", "unknown zone %q", spec.Timezone)
	}

	if spec.Type == Weekly {
		if len(spec.Days) == 0 {
			return Schedule{}, invalid("schedule.days", "weekly schedule requires at least one day")
		}
		days := make([]string, 0, len(spec.Days))
		seen := make(map[int]bool, len(spec.Days))
		for _, d := range spec.Days {
			idx, ok := WeekdayIndex(d)
			if !ok {
				return Schedule{}, invalid("schedule.days", "unknown day %q", d)
			}
			if seen[idx] {
				continue
			}
			seen[idx] = true
			days = append(days, Weekdays[idx])
		}
		spec.Days = days
	} else {
		spec.Days = nil
	}

	out := Schedule{
		ID:         id,
		Emails:     emails,
		Prompt:     in.Prompt,
		EmailTitle: in.EmailTitle,
		Schedule:   spec,
	}
	out.PromptVariables = make(map[string][]string, len(in.PromptVariables))
	for k, v := range in.PromptVariables {
		out.PromptVariables[k] = append([]string(nil), v...)
	}

	if s := strings.TrimSpace(in.StartDate); s != "" {
		t, err := ParseDate(s, loc)
		if err != nil {
			return Schedule{}, invalid("start_date", "%v", err)
		}
		out.StartDate = &t
	}
	if s := strings.TrimSpace(in.EndDate); s != "" {
		t, err := ParseDate(s, loc)
		if err != nil {
			return Schedule{}, invalid("end_date", "%v", err)
		}
		out.EndDate = &t
	}
	if out.StartDate != nil && out.EndDate != nil && !out.EndDate.After(*out.StartDate) {
		return Schedule{}, invalid("end_date", "must be after start_date")
	}
	return out, nil
}
