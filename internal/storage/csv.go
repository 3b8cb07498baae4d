package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"promptcron/internal/schedule"
	logx "promptcron/pkg/logx"
)

// templateColumns keep their whitespace; every other cell is trimmed.
var templateColumns = map[string]bool{"prompt": true, "email_title": true}

// csvColumns is the legacy schedules.csv header. List and map cells hold JSON.
// start_date/end_date are appended; files without them still load.
var csvColumns = []string{
	"id", "emails", "prompt", "email_title", "prompt_variables",
	"schedule_type", "time", "timezone", "days", "start_date", "end_date",
}

type csvStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	closed bool
}

func openCSV(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for csv driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &csvStore{log: log, path: path}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.writeLocked(nil); err != nil {
			return nil, err
		}
		log.Info("storage file created", logx.String("path", path))
	}
	return s, nil
}

func (s *csvStore) Load(ctx context.Context) ([]schedule.Schedule, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.readLocked()
}

func (s *csvStore) Save(ctx context.Context, all []schedule.Schedule) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writeLocked(all)
}

func (s *csvStore) Exists(ctx context.Context, id string) (bool, error) {
	all, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	for _, sc := range all {
		if sc.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *csvStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *csvStore) readLocked() ([]schedule.Schedule, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range csvColumns[:9] {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("decode %s: missing column %q", s.path, required)
		}
	}

	out := make([]schedule.Schedule, 0, len(rows)-1)
	for n, row := range rows[1:] {
		cell := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			v := row[i]
			if !templateColumns[name] {
				v = strings.TrimSpace(v)
			}
			if v == "nan" || v == "NaN" {
				return ""
			}
			return v
		}
		sc, err := decodeCSVRow(cell)
		if err != nil {
			return nil, fmt.Errorf("decode %s row %d: %w", s.path, n+2, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

func decodeCSVRow(cell func(string) string) (schedule.Schedule, error) {
	sc := schedule.Schedule{
		ID:         cell("id"),
		Prompt:     cell("prompt"),
		EmailTitle: cell("email_title"),
		Schedule: schedule.Spec{
			Type:     schedule.Kind(cell("schedule_type")),
			Time:     cell("time"),
			Timezone: cell("timezone"),
		},
	}
	if err := unmarshalCell(cell("emails"), &sc.Emails); err != nil {
		return sc, fmt.Errorf("emails: %w", err)
	}
	if err := unmarshalCell(cell("prompt_variables"), &sc.PromptVariables); err != nil {
		return sc, fmt.Errorf("prompt_variables: %w", err)
	}
	if err := unmarshalCell(cell("days"), &sc.Schedule.Days); err != nil {
		return sc, fmt.Errorf("days: %w", err)
	}
	if len(sc.Schedule.Days) == 0 {
		sc.Schedule.Days = nil
	}
	for _, d := range []struct {
		name string
		dst  **time.Time
	}{{"start_date", &sc.StartDate}, {"end_date", &sc.EndDate}} {
		v := cell(d.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return sc, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = &t
	}
	return sc, nil
}

func unmarshalCell(v string, dst any) error {
	if v == "" {
		return nil
	}
	return json.Unmarshal([]byte(v), dst)
}

func (s *csvStore) writeLocked(all []schedule.Schedule) error {
	return writeFileAtomic(s.path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(csvColumns); err != nil {
			return err
		}
		for _, sc := range all {
			row, err := encodeCSVRow(persisted(sc))
			if err != nil {
				return fmt.Errorf("encode %s: %w", sc.ID, err)
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
}

func encodeCSVRow(sc schedule.Schedule) ([]string, error) {
	emails, err := json.Marshal(sc.Emails)
	if err != nil {
		return nil, err
	}
	vars := sc.PromptVariables
	if vars == nil {
		vars = map[string][]string{}
	}
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return nil, err
	}
	days := sc.Schedule.Days
	if days == nil {
		days = []string{}
	}
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return nil, err
	}
	var start, end string
	if sc.StartDate != nil {
		start = sc.StartDate.Format(time.RFC3339Nano)
	}
	if sc.EndDate != nil {
		end = sc.EndDate.Format(time.RFC3339Nano)
	}
	return []string{
		sc.ID, string(emails), sc.Prompt, sc.EmailTitle, string(varsJSON),
		string(sc.Schedule.Type), sc.Schedule.Time, sc.Schedule.Timezone, string(daysJSON),
		start, end,
	}, nil
}
