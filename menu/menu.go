// Package menu is the top-level loop: it offers the composer flows, starts
// the chosen one and comes back when it ends.
package menu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"auto_social_publisher/chat"
	"auto_social_publisher/compose"
	"auto_social_publisher/config"
)

const (
	prompt        = "Que souhaitez-vous faire ?"
	optQuit       = "Quitter"
	noticeIdle    = "Inactivité prolongée, fermeture du programme."
	noticeGoodbye = "Fin du programme."
)

// Asker is the part of the conversation gateway the menu needs.
type Asker interface {
	Notify(ctx context.Context, text string)
	AskChoice(ctx context.Context, prompt string, options []string, timeout time.Duration) (string, error)
}

// Runner runs one composer flow. *compose.Engine implements it.
type Runner interface {
	Run(ctx context.Context, p *compose.Policy) (compose.Outcome, error)
}

// Entry is one menu line. Build is called each time the entry is picked, so
// a sink whose settings are incomplete only blocks its own flow.
type Entry struct {
	Label string
	Build func() (*compose.Policy, error)
}

type Menu struct {
	chat    Asker
	engine  Runner
	entries []Entry
	timeout time.Duration
	logger  *slog.Logger
	choices func(string)
}

type Option func(*Menu)

// WithChoiceCounter reports every menu pick, Quitter included.
func WithChoiceCounter(fn func(choice string)) Option {
	return func(m *Menu) { m.choices = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Menu) { m.logger = logger }
}

func New(chat Asker, engine Runner, timeout time.Duration, entries []Entry, opts ...Option) (*Menu, error) {
	if chat == nil || engine == nil {
		return nil, errors.New("menu: chat and engine are required")
	}
	if len(entries) == 0 {
		return nil, errors.New("menu: no entry")
	}
	if timeout <= 0 {
		return nil, errors.New("menu: timeout must be positive")
	}
	m := &Menu{
		chat:    chat,
		engine:  engine,
		entries: entries,
		timeout: timeout,
		logger:  slog.Default(),
		choices: func(string) {},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Run shows the menu until the operator quits or stays idle. It returns an
// error only when the conversation itself broke.
func (m *Menu) Run(ctx context.Context) error {
	options := make([]string, 0, len(m.entries)+1)
	for _, e := range m.entries {
		options = append(options, e.Label)
	}
	options = append(options, optQuit)

	for {
		choice, err := m.chat.AskChoice(ctx, prompt, options, m.timeout)
		switch {
		case errors.Is(err, chat.ErrTimeout):
			m.chat.Notify(ctx, noticeIdle)
			return nil
		case err != nil:
			return err
		}
		m.choices(choice)
		if choice == optQuit {
			m.chat.Notify(ctx, noticeGoodbye)
			return nil
		}

		entry := m.entry(choice)
		policy, err := entry.Build()
		if err != nil {
			m.logger.Error("flow not started", "flow", entry.Label, "err", err)
			m.chat.Notify(ctx, startNotice(err))
			continue
		}
		if _, err := m.engine.Run(ctx, policy); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("flow ended with error", "flow", entry.Label, "err", err)
		}
	}
}

func (m *Menu) entry(label string) Entry {
	for _, e := range m.entries {
		if e.Label == label {
			return e
		}
	}
	// AskChoice only returns offered options
	panic("menu: unknown choice " + label)
}

func startNotice(err error) string {
	if config.IsConfigError(err) {
		return fmt.Sprintf("⚙️ Configuration incomplète : %v. Le flux ne peut pas démarrer.", err)
	}
	return fmt.Sprintf("⚠️ Impossible de démarrer : %v.", err)
}
