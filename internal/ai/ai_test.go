package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFormatCitations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		urls []string
		text string
		want string
	}{
		{name: "none", text: "plain answer", want: ""},
		{
			name: "annotations strip www and dedupe",
			urls: []string{"https://www.example.com/a", "https://www.example.com/a", "http://news.org/x?y=1"},
			want: "\n\n##Sources:\n- [example.com](https://www.example.com/a)\n\n- [news.org](http://news.org/x?y=1)\n",
		},
		{
			name: "markdown links kept with their label",
			text: "See [Le Monde](https://lemonde.fr/p) and [Le Monde](https://lemonde.fr/p).",
			want: "\n\n##Sources:\n- [Le Monde](https://lemonde.fr/p)\n",
		},
		{
			name: "annotation and link merged sorted",
			urls: []string{"https://b.com/1"},
			text: "[a.com](https://a.com/2)",
			want: "\n\n##Sources:\n- [a.com](https://a.com/2)\n\n- [b.com](https://b.com/1)\n",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatCitations(tt.urls, tt.text); got != tt.want {
				t.Fatalf("FormatCitations =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"https://www.bbc.co.uk/news/1": "bbc.co.uk",
		"http://example.com":           "example.com",
		"ftp://example.com/x":          "ftp://example.com/x",
	}
	for in, want := range cases {
		if got := Domain(in); got != want {
			t.Fatalf("Domain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClientRespond(t *testing.T) {
	t.Parallel()

	var got responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"id":"resp_1","status":"completed",
			"output":[
				{"type":"web_search_call","status":"completed"},
				{"type":"message","role":"assistant","content":[
					{"type":"output_text","text":"It is sunny in Paris.","annotations":[
						{"type":"url_citation","url":"https://www.meteo.fr/paris","title":"Meteo"}
					]}
				]}
			]}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", WebSearch: true, Temperature: 0.7})
	ans, err := c.Respond(context.Background(), "Weather in Paris?")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if ans.Text != "It is sunny in Paris." {
		t.Fatalf("text = %q", ans.Text)
	}
	if !strings.Contains(ans.Citations, "- [meteo.fr](https://www.meteo.fr/paris)") {
		t.Fatalf("citations = %q", ans.Citations)
	}

	if got.Model != "gpt-4.1" || got.ToolChoice != "required" || got.Temperature != 0.7 {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Tools) != 1 || got.Tools[0].Type != "web_search_preview" || got.Tools[0].SearchContextSize != "high" {
		t.Fatalf("tools = %+v", got.Tools)
	}
	if !strings.HasSuffix(got.Input, "\nWeather in Paris?") {
		t.Fatalf("input = %q", got.Input)
	}
}

func TestClientAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(Config{BaseURL: srv.URL, APIKey: "k"}).Respond(context.Background(), "q")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || apiErr.Message != "slow down" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestClientRequiresKey(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{}).Respond(context.Background(), "q")
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestNewProviders(t *testing.T) {
	t.Parallel()
	r, err := New(Config{Provider: "echo"})
	if err != nil {
		t.Fatal(err)
	}
	ans, err := r.Respond(context.Background(), "hi")
	if err != nil || ans.Text != "Echo: hi" {
		t.Fatalf("echo = %+v, %v", ans, err)
	}
	if _, err := New(Config{Provider: "bard"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
