package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"promptcron/internal/schedule"
	logx "promptcron/pkg/logx"
)

func sample(id string) schedule.Schedule {
	return schedule.Schedule{
		ID:              id,
		Emails:          []string{id + "@example.com"},
		Prompt:          "Weather in {{city}}?",
		EmailTitle:      "Report for {{city}}",
		PromptVariables: map[string][]string{"city": {"Paris", "Tokyo"}},
		Schedule:        schedule.Spec{Type: schedule.Weekly, Time: "09:00", Timezone: "UTC", Days: []string{"monday"}},
	}
}

func TestDriversRoundTrip(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)

	for _, driver := range []string{"file", "csv", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "schedules."+driver)

			st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			if err != nil {
				t.Fatalf("Open(%s): %v", driver, err)
			}
			t.Cleanup(func() { _ = st.Close() })

			got, err := st.Load(ctx)
			if err != nil || len(got) != 0 {
				t.Fatalf("fresh Load = %v, %v; want empty", got, err)
			}

			b := sample("b")
			b.StartDate, b.EndDate = &start, &end
			b.SourceFile = "not-persisted.yaml"
			daily := sample("a")
			daily.Schedule = schedule.Spec{Type: schedule.Daily, Time: "07:30", Timezone: "Europe/Paris"}
			want := []schedule.Schedule{b, daily, sample("c")}

			if err := st.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err = st.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("Load len = %d, want 3", len(got))
			}
			for i, id := range []string{"b", "a", "c"} {
				if got[i].ID != id {
					t.Fatalf("order[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
			if got[0].SourceFile != "" {
				t.Fatalf("source_file persisted: %q", got[0].SourceFile)
			}
			if got[0].StartDate == nil || !got[0].StartDate.Equal(start) || !got[0].EndDate.Equal(end) {
				t.Fatalf("window = %v..%v", got[0].StartDate, got[0].EndDate)
			}
			if got[1].Schedule.Days != nil {
				t.Fatalf("daily days = %#v, want nil", got[1].Schedule.Days)
			}
			if !reflect.DeepEqual(got[2].PromptVariables, want[2].PromptVariables) {
				t.Fatalf("vars = %v", got[2].PromptVariables)
			}

			ok, err := st.Exists(ctx, "a")
			if err != nil || !ok {
				t.Fatalf("Exists(a) = %v, %v", ok, err)
			}
			ok, err = st.Exists(ctx, "zzz")
			if err != nil || ok {
				t.Fatalf("Exists(zzz) = %v, %v", ok, err)
			}

			// Full replace drops records not in the new collection.
			if err := st.Save(ctx, want[1:2]); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, _ = st.Load(ctx)
			if len(got) != 1 || got[0].ID != "a" {
				t.Fatalf("after replace = %v", got)
			}
		})
	}
}

func TestCSVReadsLegacyLayout(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "schedules.csv")
	legacy := "id,emails,prompt,email_title,prompt_variables,schedule_type,time,timezone,days\n" +
		`abc,"[""x@example.com""]",Weather in {{city}}?,Report for {{city}},"{""city"": [""Paris"", ""Tokyo""]}",daily,9:00,UTC,[]` + "\n" +
		`def,"[""y@example.com""]",News,News,{},weekly,18:30,Asia/Tokyo,"[""monday"", ""friday""]"` + "\n"
	if err := os.WriteFile(path, []byte(legacy), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := Open(Config{Driver: "csv", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "abc" || got[0].Schedule.Time != "9:00" || got[0].Schedule.Days != nil {
		t.Fatalf("row 0 = %+v", got[0])
	}
	if !reflect.DeepEqual(got[0].PromptVariables["city"], []string{"Paris", "Tokyo"}) {
		t.Fatalf("row 0 vars = %v", got[0].PromptVariables)
	}
	if !reflect.DeepEqual(got[1].Schedule.Days, []string{"monday", "friday"}) {
		t.Fatalf("row 1 days = %v", got[1].Schedule.Days)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestTemplateWhitespaceSurvivesRoundTrip(t *testing.T) {
	t.Parallel()

	for _, driver := range []string{"file", "csv"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "schedules."+driver)}, logx.Nop())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			t.Cleanup(func() { _ = st.Close() })

			sc := schedule.Schedule{
				ID:         "padded",
				Emails:     []string{"a@example.com"},
				Prompt:     "  Summarize:\n{{topic}}\n",
				EmailTitle: " Digest {{topic}} ",
				Schedule:   schedule.Spec{Type: schedule.Daily, Time: "07:00", Timezone: "UTC"},
			}
			ctx := context.Background()
			if err := st.Save(ctx, []schedule.Schedule{sc}); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := st.Load(ctx)
			if err != nil || len(got) != 1 {
				t.Fatalf("Load = %v, %v", got, err)
			}
			if got[0].Prompt != sc.Prompt || got[0].EmailTitle != sc.EmailTitle {
				t.Fatalf("templates = %q / %q, want %q / %q", got[0].Prompt, got[0].EmailTitle, sc.Prompt, sc.EmailTitle)
			}
		})
	}
}
