// Package ai asks the language model for an answer to one prompt.
//
// The production client talks to the OpenAI Responses API with the web
// search tool forced on, and returns the answer text plus a rendered
// "Sources" block built from url_citation annotations and markdown links.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Answer is the model output for one prompt.
type Answer struct {
	Text      string
	Citations string // rendered block, empty when there are none
}

// Responder maps prompt text to an answer. Implementations must be safe for
// concurrent use.
type Responder interface {
	Respond(ctx context.Context, prompt string) (Answer, error)
}

var ErrNoAPIKey = errors.New("OPENAI_API_KEY is not set")

// Config configures the OpenAI client.
type Config struct {
	Provider          string // "openai" (default) or "echo"
	BaseURL           string
	APIKey            string
	Model             string
	Instructions      string
	InputTemplate     string // %s receives the prompt
	WebSearch         bool
	SearchContextSize string
	ToolChoice        string
	Temperature       float64
	Timeout           time.Duration
	RatePerMin        int
}

const DefaultInstructions = `You are a helpful assistant with access to current information through web search.
IMPORTANT: You MUST search the web for accurate information and cite your sources.
For each fact or piece of information you provide:
1. Include the specific URL where you found it
2. Format citations as markdown links: [domain.com](full_url)
3. Use multiple sources when possible for comprehensive information`

const DefaultInputTemplate = "Please search the web to answer this question accurately. Include URLs for your sources:\n%s"

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = "gpt-4.1"
	}
	if c.Instructions == "" {
		c.Instructions = DefaultInstructions
	}
	if c.InputTemplate == "" || !strings.Contains(c.InputTemplate, "%s") {
		c.InputTemplate = DefaultInputTemplate
	}
	if c.SearchContextSize == "" {
		c.SearchContextSize = "high"
	}
	if c.ToolChoice == "" {
		c.ToolChoice = "required"
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.RatePerMin <= 0 {
		c.RatePerMin = 60
	}
	return c
}

// New builds the configured responder.
func New(cfg Config, opts ...Option) (Responder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewClient(cfg, opts...), nil
	case "echo":
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// Echo answers with the prompt itself. Useful for local runs without an API key.
type Echo struct{}

func (Echo) Respond(ctx context.Context, prompt string) (Answer, error) {
	if err := ctx.Err(); err != nil {
		return Answer{}, err
	}
	return Answer{Text: "Echo: " + prompt}, nil
}
