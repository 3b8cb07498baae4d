package schedule

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func validInput() Input {
	return Input{
		ID:              "s1",
		Emails:          []string{"a@example.com"},
		Prompt:          "Weather in {{city}}?",
		EmailTitle:      "Report for {{city}}",
		PromptVariables: map[string][]string{"city": {"Paris", "Tokyo"}},
		Schedule:        Spec{Type: Daily, Time: "09:00", Timezone: "UTC"},
	}
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error %v is not a *ValidationError", err)
	}
	return ve.Field
}

func TestValidateTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		time string
		ok   bool
		want string
	}{
		{time: "00:00", ok: true, want: "00:00"},
		{time: "23:59", ok: true, want: "23:59"},
		{time: "9:05", ok: true, want: "09:05"},
		{time: "09:05", ok: true, want: "09:05"},
		{time: "24:00"},
		{time: "12:60"},
		{time: "-1:00"},
		{time: "+1:00"},
		{time: "1200"},
		{time: ""},
		{time: "12:"},
		{time: "123:00"},
	}
	for _, tt := range tests {
		t.Run(tt.time, func(t *testing.T) {
			t.Parallel()
			in := validInput()
			in.Schedule.Time = tt.time
			got, err := Validate(in)
			if tt.ok {
				if err != nil {
					t.Fatalf("Validate(%q) error: %v", tt.time, err)
				}
				if got.Schedule.Time != tt.want {
					t.Fatalf("time = %q, want %q", got.Schedule.Time, tt.want)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate(%q) accepted", tt.time)
			}
			if f := fieldOf(t, err); f != "schedule.time" {
				t.Fatalf("field = %q, want schedule.time", f)
			}
		})
	}
}

func TestValidateWeeklyDays(t *testing.T) {
	t.Parallel()

	in := validInput()
	in.Schedule.Type = Weekly
	in.Schedule.Days = []string{}
	if _, err := Validate(in); err == nil || fieldOf(t, err) != "schedule.days" {
		t.Fatalf("empty days: err = %v, want schedule.days error", err)
	}

	in.Schedule.Days = []string{"monday"}
	got, err := Validate(in)
	if err != nil {
		t.Fatalf("days [monday]: %v", err)
	}
	if !reflect.DeepEqual(got.Schedule.Days, []string{"monday"}) {
		t.Fatalf("days = %v", got.Schedule.Days)
	}

	in.Schedule.Days = []string{"Friday", "MONDAY", "friday"}
	got, err = Validate(in)
	if err != nil {
		t.Fatalf("mixed case days: %v", err)
	}
	if !reflect.DeepEqual(got.Schedule.Days, []string{"friday", "monday"}) {
		t.Fatalf("days = %v, want lower-cased and de-duplicated", got.Schedule.Days)
	}

	in.Schedule.Days = []string{"funday"}
	if _, err := Validate(in); err == nil || fieldOf(t, err) != "schedule.days" {
		t.Fatalf("unknown day: err = %v", err)
	}
}

func TestValidateDailyIgnoresDays(t *testing.T) {
	t.Parallel()

	in := validInput()
	in.Schedule.Days = []string{"monday"}
	got, err := Validate(in)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Schedule.Days != nil {
		t.Fatalf("daily schedule kept days %v", got.Schedule.Days)
	}
}

func TestValidateDates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end string
		ok         bool
	}{
		{name: "end after start", start: "2025-01-01T00:00:00Z", end: "2025-01-02T00:00:00Z", ok: true},
		{name: "end equals start", start: "2025-01-01T00:00:00Z", end: "2025-01-01T00:00:00Z"},
		{name: "end before start", start: "2025-01-02", end: "2025-01-01"},
		{name: "only start", start: "2025-01-01", ok: true},
		{name: "only end", end: "2025-01-01", ok: true},
		{name: "garbage", start: "tomorrow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := validInput()
			in.StartDate, in.EndDate = tt.start, tt.end
			_, err := Validate(in)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestValidatePlainDateUsesScheduleZone(t *testing.T) {
	t.Parallel()

	in := validInput()
	in.Schedule.Timezone = "Asia/Tokyo"
	in.StartDate = "2025-03-01"
	got, err := Validate(in)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := time.Date(2025, 2, 28, 15, 0, 0, 0, time.UTC)
	if !got.StartDate.Equal(want) {
		t.Fatalf("start = %v, want %v", got.StartDate.UTC(), want)
	}
}

func TestValidateFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		mut   func(*Input)
		field string
	}{
		{name: "missing id", mut: func(in *Input) { in.ID = " " }, field: "id"},
		{name: "no emails", mut: func(in *Input) { in.Emails = nil }, field: "emails"},
		{name: "bad email", mut: func(in *Input) { in.Emails = []string{"not-an-address"} }, field: "emails"},
		{name: "empty prompt", mut: func(in *Input) { in.Prompt = "" }, field: "prompt"},
		{name: "empty title", mut: func(in *Input) { in.EmailTitle = "" }, field: "email_title"},
		{name: "empty values", mut: func(in *Input) { in.PromptVariables["city"] = nil }, field: "prompt_variables"},
		{name: "undeclared in title", mut: func(in *Input) { in.EmailTitle = "{{country}}" }, field: "prompt_variables"},
		{name: "bad type", mut: func(in *Input) { in.Schedule.Type = "monthly" }, field: "schedule.type"},
		{name: "no zone", mut: func(in *Input) { in.Schedule.Timezone = "" }, field: "schedule.timezone"},
		{name: "bad zone", mut: func(in *Input) { in.Schedule.Timezone = "Mars/Olympus" }, field: "schedule.timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := validInput()
			tt.mut(&in)
			_, err := Validate(in)
			if err == nil {
				t.Fatal("expected error")
			}
			if f := fieldOf(t, err); f != tt.field {
				t.Fatalf("field = %q, want %q", f, tt.field)
			}
		})
	}
}

func TestValidateKeepsUnreferencedVariables(t *testing.T) {
	t.Parallel()

	in := validInput()
	in.PromptVariables["spare"] = []string{"x"}
	got, err := Validate(in)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, ok := got.PromptVariables["spare"]; !ok {
		t.Fatal("unreferenced variable dropped")
	}
}

func TestWeekdayIndex(t *testing.T) {
	t.Parallel()

	for i, d := range Weekdays {
		got, ok := WeekdayIndex(d)
		if !ok || got != i {
			t.Fatalf("WeekdayIndex(%q) = %d,%v want %d", d, got, ok, i)
		}
	}
	if _, ok := WeekdayIndex("mon"); ok {
		t.Fatal("abbreviations are not part of the vocabulary")
	}
}
