package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"promptcron/internal/registry"
	"promptcron/internal/schedule"
	"promptcron/internal/task/scheduler"
	logx "promptcron/pkg/logx"
)

type fakeBackend struct {
	mu       sync.Mutex
	items    []schedule.Schedule
	runs     []string
	failList error
}

func (f *fakeBackend) ListSchedules(ctx context.Context) ([]schedule.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	return append([]schedule.Schedule(nil), f.items...), nil
}

func (f *fakeBackend) CreateSchedule(ctx context.Context, in schedule.Input) (schedule.Schedule, error) {
	sc, err := schedule.Validate(in)
	if err != nil {
		return schedule.Schedule{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.ID == sc.ID {
			return schedule.Schedule{}, &schedule.ValidationError{Field: "id", Reason: "already exists", Err: registry.ErrDuplicate}
		}
	}
	f.items = append(f.items, sc)
	return sc, nil
}

func (f *fakeBackend) DeleteSchedule(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, it := range f.items {
		if it.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBackend) RunSchedule(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range f.items {
		if it.ID == id {
			f.runs = append(f.runs, id)
			return nil
		}
	}
	return &scheduler.RegistrationError{ID: id, Err: scheduler.ErrNotRegistered}
}

func (f *fakeBackend) NextRuns(id string, n int) []time.Time {
	return []time.Time{time.Date(2030, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (f *fakeBackend) Status() any { return map[string]any{"ok": true} }

func newTestServer(t *testing.T) (*Server, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{}
	return New(Config{AllowedOrigins: []string{"http://localhost:3000"}}, b, logx.Nop()), b
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	return w
}

const createBody = `{
	"id": "weather",
	"emails": ["a@example.com"],
	"prompt": "Weather in {{city}}?",
	"emailTitle": "Weather {{city}}",
	"promptVariables": {"city": ["Paris", "Tokyo"]},
	"schedule": {"type": "weekly", "time": "9:00", "timezone": "UTC", "days": ["Monday"]}
}`

func TestCreateListDelete(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/api/schedules", createBody)
	if w.Code != http.StatusOK {
		t.Fatalf("create status %d: %s", w.Code, w.Body.String())
	}
	var created CreateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Message != "Schedule created successfully" || created.Schedule.Schedule.Time != "09:00" {
		t.Fatalf("unexpected create response %+v", created)
	}
	if strings.Join(created.Schedule.Schedule.Days, ",") != "monday" || len(created.Schedule.NextRuns) != 1 {
		t.Fatalf("unexpected schedule %+v", created.Schedule)
	}

	w = do(t, s, http.MethodGet, "/api/schedules", "")
	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0]["emailTitle"] != "Weather {{city}}" {
		t.Fatalf("unexpected list %s", w.Body.String())
	}
	if _, ok := list[0]["promptVariables"]; !ok {
		t.Fatalf("list item missing promptVariables: %s", w.Body.String())
	}

	w = do(t, s, http.MethodDelete, "/api/schedules/weather", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Schedule deleted successfully") {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	w = do(t, s, http.MethodDelete, "/api/schedules/weather", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", w.Code)
	}
}

func TestCreateErrors(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	if w := do(t, s, http.MethodPost, "/api/schedules", createBody); w.Code != http.StatusOK {
		t.Fatalf("create: %d", w.Code)
	}

	tests := []struct {
		name  string
		body  string
		code  int
		field string
	}{
		{name: "duplicate", body: createBody, code: http.StatusConflict, field: "id"},
		{name: "bad json", body: `{"id":`, code: http.StatusBadRequest},
		{name: "bad time", body: strings.Replace(createBody, `"9:00"`, `"24:00"`, 1), code: http.StatusBadRequest, field: "schedule.time"},
		{name: "bad zone", body: strings.Replace(createBody, `"UTC"`, `"Mars/Base"`, 1), code: http.StatusBadRequest, field: "schedule.timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/api/schedules", tt.body)
			if w.Code != tt.code {
				t.Fatalf("status %d, want %d: %s", w.Code, tt.code, w.Body.String())
			}
			if tt.field != "" {
				var body map[string]string
				_ = json.Unmarshal(w.Body.Bytes(), &body)
				if body["field"] != tt.field {
					t.Fatalf("field = %q, want %q", body["field"], tt.field)
				}
			}
		})
	}
}

func TestListStoreFailure(t *testing.T) {
	t.Parallel()
	s, b := newTestServer(t)
	b.failList = errors.New("disk on fire")
	if w := do(t, s, http.MethodGet, "/api/schedules", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
}

func TestRunSchedule(t *testing.T) {
	t.Parallel()
	s, b := newTestServer(t)
	do(t, s, http.MethodPost, "/api/schedules", createBody)

	if w := do(t, s, http.MethodPost, "/api/schedules/weather/run", ""); w.Code != http.StatusAccepted {
		t.Fatalf("run status %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, s, http.MethodPost, "/api/schedules/nope/run", ""); w.Code != http.StatusNotFound {
		t.Fatalf("run unknown status %d", w.Code)
	}
	if len(b.runs) != 1 {
		t.Fatalf("runs = %v", b.runs)
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()
	s, b := newTestServer(t)

	body := strings.Replace(createBody, `"id": "weather",`, "", 1)
	w := do(t, s, http.MethodPost, "/api/schedules/preview", body)
	if w.Code != http.StatusOK {
		t.Fatalf("preview: %d %s", w.Code, w.Body.String())
	}
	var p PreviewResponse
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Count != 2 || p.Variants[1].Title != "Weather Tokyo" || len(p.NextRuns) != 3 {
		t.Fatalf("unexpected preview %+v", p)
	}
	if len(b.items) != 0 {
		t.Fatal("preview must not persist")
	}
}

func TestHealthStatusAndCORS(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	if w := do(t, s, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Fatalf("healthz %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/status", ""); !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("status body %s", w.Body.String())
	}

	r := httptest.NewRequest(http.MethodOptions, "/api/schedules", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	r.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q (status %d)", got, w.Code)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/schedules", nil)
	r.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, r)
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign origin status %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestStartShutdown(t *testing.T) {
	t.Parallel()
	b := &fakeBackend{}
	s := New(Config{Host: "127.0.0.1", Port: 0}, b, logx.Nop())
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", s.Addr()))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz %d", resp.StatusCode)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
}
