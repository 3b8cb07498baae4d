// Package pipeline executes one firing of a schedule: expand the templates,
// ask the AI collaborator for each variant, and mail the composed answer.
//
// Variants are independent. A failure in one is logged, published on the
// bus, and counted; the others still run. There are no retries inside a
// firing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"promptcron/internal/ai"
	"promptcron/internal/eventbus"
	"promptcron/internal/expand"
	"promptcron/internal/mailer"
	"promptcron/internal/schedule"
	logx "promptcron/pkg/logx"
)

// Stage names the step a variant failed in.
type Stage string

const (
	StageAI   Stage = "ai"
	StageMail Stage = "mail"
)

// VariantError reports one failed variant.
type VariantError struct {
	ScheduleID string
	Values     map[string]string
	Stage      Stage
	Err        error
}

func (e *VariantError) Error() string {
	return fmt.Sprintf("schedule %s variant %s: %s: %v", e.ScheduleID, formatValues(e.Values), e.Stage, e.Err)
}

func (e *VariantError) Unwrap() error { return e.Err }

// Report summarises one firing.
type Report struct {
	ScheduleID string          `json:"schedule_id"`
	Attempted  int             `json:"attempted"`
	Sent       int             `json:"sent"`
	Failed     int             `json:"failed"`
	Errors     []*VariantError `json:"-"`
	Took       time.Duration   `json:"took"`
}

// VariantSent is the payload of eventbus.VariantSent.
type VariantSent struct {
	ScheduleID string
	Title      string
	Values     map[string]string
}

type Config struct {
	// Concurrency bounds in-flight variants per firing. Values <= 1 run
	// variants sequentially in expansion order.
	Concurrency int
	// VariantTimeout bounds the AI call plus the send of one variant.
	VariantTimeout time.Duration
}

type Pipeline struct {
	ai   ai.Responder
	mail mailer.Sender
	log  logx.Logger
	bus  eventbus.Bus

	concurrency    atomic.Int32
	variantTimeout atomic.Int64
}

func New(cfg Config, responder ai.Responder, sender mailer.Sender, log logx.Logger, bus eventbus.Bus) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &Pipeline{
		ai:   responder,
		mail: sender,
		log:  log.With(logx.String("comp", "pipeline")),
		bus:  bus,
	}
	p.Apply(cfg)
	return p
}

// Apply updates the tunables. In-flight firings keep the values they started with.
func (p *Pipeline) Apply(cfg Config) {
	n := cfg.Concurrency
	if n < 1 {
		n = 1
	}
	p.concurrency.Store(int32(n))
	p.variantTimeout.Store(int64(cfg.VariantTimeout))
}

// Fire adapts Run to the scheduler's fire callback. It returns an error when
// at least one variant failed so the engine records the firing as failed.
func (p *Pipeline) Fire(ctx context.Context, sc schedule.Schedule) error {
	rep := p.Run(ctx, sc)
	if rep.Failed == 0 {
		return nil
	}
	errs := make([]error, 0, len(rep.Errors))
	for _, e := range rep.Errors {
		errs = append(errs, e)
	}
	return fmt.Errorf("%d of %d variants failed: %w", rep.Failed, rep.Attempted, errors.Join(errs...))
}

// Run executes every variant of sc once.
func (p *Pipeline) Run(ctx context.Context, sc schedule.Schedule) Report {
	start := time.Now()
	log := p.log.With(logx.String("schedule", sc.ID))
	if sc.SourceFile != "" {
		log = log.With(logx.String("source_file", sc.SourceFile))
	}

	variants := expand.Expand(sc.Prompt, sc.EmailTitle, sc.PromptVariables)
	rep := Report{ScheduleID: sc.ID, Attempted: len(variants)}
	if len(variants) == 0 {
		log.Warn("no variants to execute")
		rep.Took = time.Since(start)
		p.publish(eventbus.FiringDone, rep)
		return rep
	}
	log.Info("firing", logx.Int("variants", len(variants)))

	results := make([]*VariantError, len(variants))
	limit := int(p.concurrency.Load())
	timeout := time.Duration(p.variantTimeout.Load())

	if limit <= 1 {
		for i, v := range variants {
			results[i] = p.runVariant(ctx, log, sc, v, timeout)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(limit)
		for i, v := range variants {
			g.Go(func() error {
				results[i] = p.runVariant(ctx, log, sc, v, timeout)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, ve := range results {
		if ve == nil {
			rep.Sent++
			continue
		}
		rep.Failed++
		rep.Errors = append(rep.Errors, ve)
	}
	rep.Took = time.Since(start)

	fields := []logx.Field{
		logx.Int("attempted", rep.Attempted),
		logx.Int("sent", rep.Sent),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Took),
	}
	if rep.Failed > 0 {
		log.Warn("firing completed with failures", fields...)
	} else {
		log.Info("firing completed", fields...)
	}
	p.publish(eventbus.FiringDone, rep)
	return rep
}

func (p *Pipeline) runVariant(ctx context.Context, log logx.Logger, sc schedule.Schedule, v expand.Variant, timeout time.Duration) (ve *VariantError) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	fail := func(stage Stage, err error) *VariantError {
		ve := &VariantError{ScheduleID: sc.ID, Values: v.Values, Stage: stage, Err: err}
		log.Error("variant failed",
			logx.String("stage", string(stage)),
			logx.String("values", formatValues(v.Values)),
			logx.String("title", v.Title),
			logx.Err(err),
		)
		p.publish(eventbus.VariantFailed, ve)
		return ve
	}

	// A panicking collaborator fails this variant only.
	stage := StageAI
	defer func() {
		if r := recover(); r != nil {
			ve = fail(stage, fmt.Errorf("panic: %v", r))
		}
	}()

	ans, err := p.ai.Respond(ctx, v.Prompt)
	if err != nil {
		return fail(StageAI, err)
	}
	body := ComposeBody(sc, v, ans)
	stage = StageMail
	if err := p.mail.Send(ctx, sc.Emails, v.Title, body); err != nil {
		return fail(StageMail, err)
	}

	log.Debug("variant sent", logx.String("values", formatValues(v.Values)), logx.String("title", v.Title))
	p.publish(eventbus.VariantSent, VariantSent{ScheduleID: sc.ID, Title: v.Title, Values: v.Values})
	return nil
}

func (p *Pipeline) publish(typ string, data any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

// ComposeBody renders the markdown email body for one variant. The output
// depends only on its arguments.
func ComposeBody(sc schedule.Schedule, v expand.Variant, ans ai.Answer) string {
	var b strings.Builder
	b.WriteString("**Prompt template:** ")
	b.WriteString(sc.Prompt)
	b.WriteString("\n**Title template:** ")
	b.WriteString(sc.EmailTitle)
	b.WriteString("\n\n")

	if len(v.Values) > 0 {
		b.WriteString("**Variables:**\n")
		for _, name := range sortedKeys(v.Values) {
			b.WriteString("- ")
			b.WriteString(name)
			b.WriteString(": ")
			b.WriteString(v.Values[name])
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Prompt: ")
	b.WriteString(v.Prompt)
	b.WriteString("\n\nResponse: ")
	b.WriteString(ans.Text)
	if ans.Citations != "" {
		b.WriteString(ans.Citations)
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValues(values map[string]string) string {
	if len(values) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(values))
	for _, k := range sortedKeys(values) {
		parts = append(parts, k+"="+values[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
