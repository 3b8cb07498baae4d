// Package mailer delivers answer emails over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jordan-wright/email"
	"golang.org/x/time/rate"

	logx "promptcron/pkg/logx"
)

// Sender delivers one message to a recipient list. The body is markdown; the
// HTML alternative is rendered from it.
type Sender interface {
	Send(ctx context.Context, to []string, subject, body string) error
}

const (
	ModeSSL      = "ssl"
	ModeStartTLS = "starttls"
	ModePlain    = "plain"
	ModeLog      = "log"
)

var (
	ErrNoRecipients = errors.New("mailer: no recipients")
	ErrClosed       = errors.New("mailer: closed")
)

type Config struct {
	Mode               string
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	InsecureSkipVerify bool
	Timeout            time.Duration
	// PoolSize > 0 keeps a connection pool for starttls/plain modes.
	PoolSize   int
	RatePerMin int
	// AlertTo receives operator alerts from the log sink.
	AlertTo []string
}

func (c Config) withDefaults() Config {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeSSL
	}
	if c.Host == "" {
		c.Host = "smtp.gmail.com"
	}
	if c.Port <= 0 {
		switch c.Mode {
		case ModeSSL:
			c.Port = 465
		case ModeStartTLS:
			c.Port = 587
		default:
			c.Port = 25
		}
	}
	if c.From == "" {
		c.From = c.Username
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RatePerMin <= 0 {
		c.RatePerMin = 30
	}
	return c
}

func (c Config) addr() string { return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) }

// Mailer is the SMTP Sender.
type Mailer struct {
	cfg      Config
	log      logx.Logger
	limiter  *rate.Limiter
	renderer *Renderer

	auth   smtp.Auth
	tlsCfg *tls.Config
	pool   *email.Pool

	// deliver is replaced in tests.
	deliver func(e *email.Email) error

	mu     sync.Mutex
	closed bool
}

func New(cfg Config, log logx.Logger) (*Mailer, error) {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Mailer{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "mailer"), logx.String("mode", cfg.Mode)),
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMin)), cfg.RatePerMin),
		renderer: NewRenderer(),
		tlsCfg: &tls.Config{
			ServerName:         cfg.Host,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
	if cfg.Username != "" || cfg.Password != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	switch cfg.Mode {
	case ModeLog:
		m.deliver = m.logOnly
	case ModeSSL:
		m.deliver = func(e *email.Email) error { return e.SendWithTLS(cfg.addr(), m.auth, m.tlsCfg) }
	case ModeStartTLS, ModePlain:
		if cfg.PoolSize > 0 {
			var tlsCfg []*tls.Config
			if cfg.Mode == ModeStartTLS {
				tlsCfg = append(tlsCfg, m.tlsCfg)
			}
			pool, err := email.NewPool(cfg.addr(), cfg.PoolSize, m.auth, tlsCfg...)
			if err != nil {
				return nil, fmt.Errorf("mailer pool: %w", err)
			}
			m.pool = pool
			m.deliver = func(e *email.Email) error { return pool.Send(e, cfg.Timeout) }
		} else if cfg.Mode == ModeStartTLS {
			m.deliver = func(e *email.Email) error { return e.SendWithStartTLS(cfg.addr(), m.auth, m.tlsCfg) }
		} else {
			m.deliver = func(e *email.Email) error { return e.Send(cfg.addr(), m.auth) }
		}
	default:
		return nil, fmt.Errorf("unknown mail mode %q", cfg.Mode)
	}
	return m, nil
}

func (m *Mailer) Send(ctx context.Context, to []string, subject, body string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	html, err := m.renderer.Page(body)
	if err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	e := &email.Email{
		From:    m.cfg.From,
		To:      append([]string(nil), to...),
		Subject: subject,
		Text:    []byte(body),
		HTML:    html,
		Headers: textproto.MIMEHeader{},
	}

	done := make(chan error, 1)
	go func() { done <- m.deliver(e) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		m.log.Info("email sent", logx.Strings("to", to), logx.String("subject", subject))
		return nil
	case <-ctx.Done():
		// jordan-wright/email has no context support; the dial goroutine
		// finishes on its own and its result is dropped.
		return ctx.Err()
	}
}

// SendAlert implements logx.AlertSender. Without AlertTo it is a no-op.
func (m *Mailer) SendAlert(ctx context.Context, subject, body string) error {
	if len(m.cfg.AlertTo) == 0 {
		return nil
	}
	return m.Send(ctx, m.cfg.AlertTo, subject, "```\n"+body+"\n```")
}

func (m *Mailer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.pool != nil {
		m.pool.Close()
	}
	return nil
}

func (m *Mailer) logOnly(e *email.Email) error {
	m.log.Info("email (log mode)",
		logx.Strings("to", e.To),
		logx.String("subject", e.Subject),
		logx.Int("text_bytes", len(e.Text)),
		logx.Int("html_bytes", len(e.HTML)),
	)
	return nil
}
