// Package schedule defines the persisted Schedule record and its validation rules.
package schedule

import (
	"strings"
	"time"
)

type Kind string

const (
	Daily  Kind = "daily"
	Weekly Kind = "weekly"
)

// Weekdays is the fixed day vocabulary, indexed monday=0 … sunday=6.
var Weekdays = [7]string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// WeekdayIndex maps a day name (case-insensitive) to its index in Weekdays.
func WeekdayIndex(name string) (int, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, d := range Weekdays {
		if d == n {
			return i, true
		}
	}
	return 0, false
}

// Spec is the temporal part of a schedule.
type Spec struct {
	Type     Kind     `json:"type"`
	Time     string   `json:"time"`
	Timezone string   `json:"timezone"`
	Days     []string `json:"days,omitempty"`
}

// Schedule is a validated recurrence definition. Values are treated as
// immutable once created; use Clone before handing one out.
type Schedule struct {
	ID              string              `json:"id"`
	Emails          []string            `json:"emails"`
	Prompt          string              `json:"prompt"`
	EmailTitle      string              `json:"email_title"`
	PromptVariables map[string][]string `json:"prompt_variables"`
	Schedule        Spec                `json:"schedule"`
	StartDate       *time.Time          `json:"start_date,omitempty"`
	EndDate         *time.Time          `json:"end_date,omitempty"`

	// SourceFile is set for schedules loaded from the declarative schedule
	// directory. It is never persisted by the registry.
	SourceFile string `json:"source_file,omitempty"`
}

// Clock returns the validated hour and minute.
func (s Schedule) Clock() (hour, minute int) {
	h, m, _ := ParseClock(s.Schedule.Time)
	return h, m
}

// Location resolves the schedule's timezone.
func (s Schedule) Location() (*time.Location, error) {
	return time.LoadLocation(s.Schedule.Timezone)
}

// Window returns the validity bounds; zero values mean unbounded.
func (s Schedule) Window() (start, end time.Time) {
	if s.StartDate != nil {
		start = *s.StartDate
	}
	if s.EndDate != nil {
		end = *s.EndDate
	}
	return start, end
}

// Clone returns a deep copy.
func (s Schedule) Clone() Schedule {
	cp := s
	cp.Emails = append([]string(nil), s.Emails...)
	cp.Schedule.Days = append([]string(nil), s.Schedule.Days...)
	if s.PromptVariables != nil {
		cp.PromptVariables = make(map[string][]string, len(s.PromptVariables))
		for k, v := range s.PromptVariables {
			cp.PromptVariables[k] = append([]string(nil), v...)
		}
	}
	if s.StartDate != nil {
		t := *s.StartDate
		cp.StartDate = &t
	}
	if s.EndDate != nil {
		t := *s.EndDate
		cp.EndDate = &t
	}
	return cp
}

// Input is the unvalidated shape accepted by the registry and the loader.
// Dates are raw strings: RFC3339, or YYYY-MM-DD meaning midnight in the
// schedule's timezone.
type Input struct {
	ID              string              `json:"id"`
	Emails          []string            `json:"emails"`
	Prompt          string              `json:"prompt"`
	EmailTitle      string              `json:"email_title"`
	PromptVariables map[string][]string `json:"prompt_variables"`
	Schedule        Spec                `json:"schedule"`
	StartDate       string              `json:"start_date,omitempty"`
	EndDate         string              `json:"end_date,omitempty"`
}

// InputOf converts a stored schedule back to its input form.
func InputOf(s Schedule) Input {
	in := Input{
		ID:              s.ID,
		Emails:          append([]string(nil), s.Emails...),
		Prompt:          s.Prompt,
		EmailTitle:      s.EmailTitle,
		PromptVariables: s.Clone().PromptVariables,
		Schedule:        s.Clone().Schedule,
	}
	if s.StartDate != nil {
		in.StartDate = s.StartDate.Format(time.RFC3339)
	}
	if s.EndDate != nil {
		in.EndDate = s.EndDate.Format(time.RFC3339)
	}
	return in
}
