package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "promptcron/pkg/logx"
)

// Client calls POST {BaseURL}/responses.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithLogger(log logx.Logger) Option    { return func(c *Client) { c.log = log } }

func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), cfg.RatePerMin),
		log:     logx.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With(logx.String("comp", "ai"))
	return c
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openai: http %d", e.Status)
	}
	return fmt.Sprintf("openai: http %d: %s", e.Status, e.Message)
}

type tool struct {
	Type              string `json:"type"`
	SearchContextSize string `json:"search_context_size,omitempty"`
}

type responsesRequest struct {
	Model        string  `json:"model"`
	Instructions string  `json:"instructions,omitempty"`
	Input        string  `json:"input"`
	Tools        []tool  `json:"tools,omitempty"`
	ToolChoice   string  `json:"tool_choice,omitempty"`
	Temperature  float64 `json:"temperature"`
}

type annotation struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type contentPart struct {
	Type        string       `json:"type"`
	Text        string       `json:"text"`
	Annotations []annotation `json:"annotations"`
}

type outputItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type apiErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type responsesResponse struct {
	ID     string        `json:"id"`
	Status string        `json:"status"`
	Output []outputItem  `json:"output"`
	Error  *apiErrorBody `json:"error"`
}

func (c *Client) Respond(ctx context.Context, prompt string) (Answer, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Answer{}, ErrNoAPIKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Answer{}, err
	}

	req := responsesRequest{
		Model:        c.cfg.Model,
		Instructions: c.cfg.Instructions,
		Input:        fmt.Sprintf(c.cfg.InputTemplate, prompt),
		Temperature:  c.cfg.Temperature,
	}
	if c.cfg.WebSearch {
		req.Tools = []tool{{Type: "web_search_preview", SearchContextSize: c.cfg.SearchContextSize}}
		req.ToolChoice = c.cfg.ToolChoice
	}
	body, err := json.Marshal(req)
	if err != nil {
		return Answer{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return Answer{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Answer{}, fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Answer{}, fmt.Errorf("openai read: %w", err)
	}

	var out responsesResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil && out.Error != nil {
			apiErr.Message, apiErr.Type = out.Error.Message, out.Error.Type
		}
		return Answer{}, apiErr
	}
	if decodeErr != nil {
		return Answer{}, fmt.Errorf("openai decode: %w", decodeErr)
	}
	if out.Error != nil && out.Error.Message != "" {
		return Answer{}, &APIError{Status: resp.StatusCode, Type: out.Error.Type, Message: out.Error.Message}
	}

	text, urls := extract(out.Output)
	if strings.TrimSpace(text) == "" {
		return Answer{}, fmt.Errorf("openai: empty answer (status %q)", out.Status)
	}
	ans := Answer{Text: text, Citations: FormatCitations(urls, text)}
	c.log.Debug("prompt answered",
		logx.String("response_id", out.ID),
		logx.Duration("took", time.Since(start)),
		logx.Int("chars", len(text)),
		logx.Int("citations", len(urls)),
	)
	return ans, nil
}

// extract concatenates the output_text parts of message items and collects
// url_citation annotation URLs.
func extract(items []outputItem) (string, []string) {
	var b strings.Builder
	var urls []string
	for _, it := range items {
		if it.Type != "message" {
			continue
		}
		for _, part := range it.Content {
			if part.Type != "output_text" {
				continue
			}
			b.WriteString(part.Text)
			for _, a := range part.Annotations {
				if a.Type == "url_citation" && a.URL != "" {
					urls = append(urls, a.URL)
				}
			}
		}
	}
	return b.String(), urls
}
