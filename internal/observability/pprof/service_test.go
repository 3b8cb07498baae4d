package pprof

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	logx "promptcron/pkg/logx"
)

func TestHandlerToken(t *testing.T) {
	t.Parallel()
	h := Handler("", "s3cret")

	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"no token", "/debug/pprof/", "", http.StatusUnauthorized},
		{"wrong token", "/debug/pprof/?token=nope", "", http.StatusUnauthorized},
		{"query token", "/debug/pprof/?token=s3cret", "", http.StatusOK},
		{"bearer", "/debug/pprof/cmdline", "Bearer s3cret", http.StatusOK},
		{"named profile", "/debug/pprof/goroutine?debug=1", "Bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestHandlerCustomPrefix(t *testing.T) {
	t.Parallel()
	h := Handler("ops/prof", "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/prof/heap?debug=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStartRefusesInsecureBind(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop())
	if err := s.Start(); !errors.Is(err, ErrInsecureBind) {
		t.Fatalf("Start err = %v, want ErrInsecureBind", err)
	}
	if s.Addr() != "" {
		t.Fatalf("Addr = %q after refused start", s.Addr())
	}
}

func TestReconfigureEnableDisable(t *testing.T) {
	prevMutex := runtime.SetMutexProfileFraction(-1)
	t.Cleanup(func() {
		runtime.SetMutexProfileFraction(prevMutex)
		runtime.SetBlockProfileRate(0)
	})

	s := New(Config{}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	if err := s.Start(); err != nil || s.Addr() != "" {
		t.Fatalf("disabled Start = %v, addr %q", err, s.Addr())
	}

	cfg := Config{Enabled: true, Addr: "127.0.0.1:0", MutexProfileFraction: 5}
	if err := s.Reconfigure(ctx, cfg); err != nil {
		t.Fatalf("Reconfigure enable: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("expected listener after enable")
	}
	if got := runtime.SetMutexProfileFraction(-1); got != 5 {
		t.Fatalf("mutex fraction = %d, want 5", got)
	}
	resp, err := http.Get("http://" + addr + "/debug/pprof/cmdline")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	if err := s.Reconfigure(ctx, Config{Enabled: false}); err != nil {
		t.Fatalf("Reconfigure disable: %v", err)
	}
	if s.Addr() != "" {
		t.Fatal("listener still bound after disable")
	}
}
