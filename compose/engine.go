// Package compose drives one composition flow (post or email) from the first
// notes to publication. A single engine runs both flows; a Policy supplies
// what differs between them.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"auto_social_publisher/chat"
	"auto_social_publisher/generator"
)

// Outcome is how a flow ended.
type Outcome int

const (
	OutcomeAbandoned Outcome = iota
	OutcomePublished
	OutcomeScheduled
	OutcomeTimedOut
	// OutcomeReturned means the operator left the flow from the draft menu.
	OutcomeReturned
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublished:
		return "published"
	case OutcomeScheduled:
		return "scheduled"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeReturned:
		return "returned"
	default:
		return "abandoned"
	}
}

// Operator-facing texts shared by every flow.
const (
	optContinue = "Continuer"
	optCancel   = "Annuler"

	TimeoutNotice   = "Inactivité prolongée, retour au menu."
	noticeCancelled = "Opération annulée."
	noticeEmptySeed = "Aucun contenu reçu, opération annulée."
	noticeFinished  = "Retour au menu principal."
	noticeNoEdit    = "Aucune modification reçue, le texte est inchangé."
	promptEdit      = "Partagez vos modifications s'il vous plaît !"
)

var (
	errEmptySeed = errors.New("compose: empty seed")
	// errBackToDraft aborts a delivery before any sink call; the policy has
	// already told the operator why.
	errBackToDraft = errors.New("compose: back to draft")
)

// Gateway is the conversation surface used by flows. *chat.Gateway
// implements it.
type Gateway interface {
	Notify(ctx context.Context, text string)
	AskChoice(ctx context.Context, prompt string, options []string, timeout time.Duration) (string, error)
	AskText(ctx context.Context, prompt string, timeout time.Duration) (string, error)
	AskMulti(ctx context.Context, prompt string, options []string, timeout time.Duration) ([]string, error)
	AskImage(ctx context.Context, prompt string, images [][]byte, timeout time.Duration) ([]byte, error)
	AskPhoto(ctx context.Context, prompt string, timeout time.Duration) ([]byte, error)
}

// Reviser rewrites a draft from free-form instructions.
type Reviser interface {
	Revise(ctx context.Context, draft generator.Draft, instructions string, history []generator.Turn) (generator.Draft, error)
}

// Observer is told about flow outcomes and delivery attempts.
type Observer interface {
	FlowFinished(kind string, outcome Outcome)
	DeliveryAttempt(kind, op string, err error)
}

// Record is one successful delivery.
type Record struct {
	FlowID    string
	Kind      string
	Op        string
	ReceiptID string
	URL       string
	When      time.Time
	Excerpt   string
	CreatedAt time.Time
}

// Recorder keeps delivery records.
type Recorder interface {
	Record(ctx context.Context, r Record) error
}

// Receipt is what a policy reports after a successful delivery.
type Receipt struct {
	ID       string
	URL      string
	When     time.Time
	Warnings []string
}

// IsDelivery reports whether err is a sink delivery failure.
func IsDelivery(err error) bool {
	var d interface{ Delivery() bool }
	return errors.As(err, &d) && d.Delivery()
}

// Menu holds the labels of the draft menu, in display order.
type Menu struct {
	Edit     string
	Enrich   string
	Publish  string
	Schedule string
	Finish   string
}

func (m Menu) options() []string {
	return []string{m.Edit, m.Enrich, m.Publish, m.Schedule, m.Finish}
}

// Policy is everything that differs between the post and the email flow.
type Policy struct {
	Kind       string
	Welcome    string
	SeedPrompt string
	Menu       Menu

	// Published and Scheduled are the success notices; Scheduled takes the
	// local target time.
	Published string
	Scheduled string

	Draft   func(ctx context.Context, seed string) (generator.Draft, error)
	Preview func(s *Session) string
	// Enrich is the illustration step of posts and the link step of emails.
	Enrich func(ctx context.Context, f *Flow) error
	Slot   func(now time.Time) time.Time

	Publish  func(ctx context.Context, f *Flow) (Receipt, error)
	Schedule func(ctx context.Context, f *Flow, when time.Time) (Receipt, error)
}

// Flow is one running invocation: its session plus timed conversation
// helpers.
type Flow struct {
	ID      string
	Session *Session

	chat    Gateway
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

func (f *Flow) Notify(ctx context.Context, text string) { f.chat.Notify(ctx, text) }

func (f *Flow) Choose(ctx context.Context, prompt string, options []string) (string, error) {
	return f.chat.AskChoice(ctx, prompt, options, f.timeout)
}

func (f *Flow) Text(ctx context.Context, prompt string) (string, error) {
	return f.chat.AskText(ctx, prompt, f.timeout)
}

func (f *Flow) Multi(ctx context.Context, prompt string, options []string) ([]string, error) {
	return f.chat.AskMulti(ctx, prompt, options, f.timeout)
}

func (f *Flow) Image(ctx context.Context, prompt string, images [][]byte) ([]byte, error) {
	return f.chat.AskImage(ctx, prompt, images, f.timeout)
}

func (f *Flow) Photo(ctx context.Context, prompt string) ([]byte, error) {
	return f.chat.AskPhoto(ctx, prompt, f.timeout)
}

// Now is the engine clock.
func (f *Flow) Now() time.Time { return f.now() }

func (f *Flow) Logger() *slog.Logger { return f.logger }

// Engine runs flows one at a time.
type Engine struct {
	chat     Gateway
	reviser  Reviser
	timeout  time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
	journal  Recorder
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

func WithLogger(logger *slog.Logger) Option { return func(e *Engine) { e.logger = logger } }

func WithObserver(o Observer) Option { return func(e *Engine) { e.observer = o } }

func WithRecorder(r Recorder) Option { return func(e *Engine) { e.journal = r } }

func NewEngine(gw Gateway, reviser Reviser, timeout time.Duration, opts ...Option) (*Engine, error) {
	if gw == nil {
		return nil, errors.New("compose: gateway is required")
	}
	if reviser == nil {
		return nil, errors.New("compose: reviser is required")
	}
	if timeout <= 0 {
		return nil, errors.New("compose: timeout must be positive")
	}
	e := &Engine{
		chat:    gw,
		reviser: reviser,
		timeout: timeout,
		loc:     time.Local,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run drives p until a terminal outcome. The error is non-nil only when the
// flow could not talk to the operator any more (transport failure, parent
// context done, a newer flow took over the chat).
func (e *Engine) Run(ctx context.Context, p *Policy) (Outcome, error) {
	id := uuid.NewString()
	f := &Flow{
		ID:      id,
		Session: NewSession(id, p.Kind),
		chat:    e.chat,
		timeout: e.timeout,
		now:     e.now,
		logger:  e.logger.With("flow_id", id, "flow", p.Kind),
	}
	f.logger.Info("flow started")

	out, err := e.run(ctx, p, f)

	f.logger.Info("flow finished", "outcome", out.String(), "turns", len(f.Session.History), "err", err)
	if e.observer != nil {
		e.observer.FlowFinished(p.Kind, out)
	}
	return out, err
}

func (e *Engine) run(ctx context.Context, p *Policy, f *Flow) (Outcome, error) {
	choice, err := f.Choose(ctx, p.Welcome, []string{optContinue, optCancel})
	if err != nil {
		return e.interrupted(ctx, f, err)
	}
	if choice == optCancel {
		f.Notify(ctx, noticeCancelled)
		return OutcomeAbandoned, nil
	}

	if err := e.seed(ctx, p, f); err != nil {
		if errors.Is(err, errEmptySeed) {
			f.Notify(ctx, noticeEmptySeed)
			return OutcomeAbandoned, nil
		}
		return e.interrupted(ctx, f, err)
	}

	for {
		action, err := f.Choose(ctx, p.Preview(f.Session), p.Menu.options())
		if err != nil {
			return e.interrupted(ctx, f, err)
		}

		switch action {
		case p.Menu.Edit:
			err = e.edit(ctx, f)
		case p.Menu.Enrich:
			err = p.Enrich(ctx, f)
		case p.Menu.Publish, p.Menu.Schedule:
			var out Outcome
			var done bool
			out, done, err = e.deliver(ctx, p, f, action == p.Menu.Schedule)
			if done {
				return out, nil
			}
		case p.Menu.Finish:
			f.Notify(ctx, noticeFinished)
			return OutcomeReturned, nil
		}

		if err != nil {
			if ends(ctx, err) {
				return e.interrupted(ctx, f, err)
			}
			f.logger.Error("step failed", "step", action, "err", err)
			f.Notify(ctx, stepNotice(err))
		}
	}
}

// seed asks for the notes until a first draft exists. A failed generation
// asks again; empty notes end the flow.
func (e *Engine) seed(ctx context.Context, p *Policy, f *Flow) error {
	for {
		text, err := f.Text(ctx, p.SeedPrompt)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return errEmptySeed
		}
		d, err := p.Draft(ctx, text)
		if err == nil && d.Empty() {
			err = &generator.Error{Op: "draft", Err: errors.New("empty draft")}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Error("first draft failed", "err", err)
			f.Notify(ctx, stepNotice(err)+" Renvoyez votre texte.")
			continue
		}
		f.Session.Start(text, d)
		return nil
	}
}

func (e *Engine) edit(ctx context.Context, f *Flow) error {
	instructions, err := f.Text(ctx, promptEdit)
	if err != nil {
		return err
	}
	if strings.TrimSpace(instructions) == "" {
		f.Notify(ctx, noticeNoEdit)
		return nil
	}
	d, err := e.reviser.Revise(ctx, f.Session.Draft, instructions, f.Session.History)
	if err != nil {
		return err
	}
	if d.Empty() {
		return &generator.Error{Op: "revise", Err: errors.New("empty draft")}
	}
	f.Session.Revise(instructions, d)
	return nil
}

// deliver makes exactly one sink call for this operator choice. done is true
// on success; a delivery failure is reported and leaves the draft as it was.
func (e *Engine) deliver(ctx context.Context, p *Policy, f *Flow, schedule bool) (Outcome, bool, error) {
	op := "publish"
	var (
		rec Receipt
		err error
	)
	if schedule {
		op = "schedule"
		when := p.Slot(e.now().In(e.loc))
		rec, err = p.Schedule(ctx, f, when)
		if rec.When.IsZero() {
			rec.When = when
		}
	} else {
		rec, err = p.Publish(ctx, f)
	}

	switch {
	case errors.Is(err, errBackToDraft):
		return 0, false, nil
	case err != nil && ends(ctx, err):
		return 0, false, err
	}
	if e.observer != nil {
		e.observer.DeliveryAttempt(p.Kind, op, err)
	}
	if err != nil {
		f.logger.Error("delivery failed", "op", op, "err", err, "delivery", IsDelivery(err))
		f.Notify(ctx, "❌ Échec de l'envoi : "+err.Error())
		return 0, false, nil
	}

	for _, w := range rec.Warnings {
		f.Notify(ctx, "⚠️ "+w)
	}
	e.record(ctx, f, op, rec)

	if schedule {
		f.Notify(ctx, fmt.Sprintf(p.Scheduled, rec.When.In(e.loc).Format("02/01/2006 à 15:04")))
		return OutcomeScheduled, true, nil
	}
	msg := p.Published
	if rec.URL != "" {
		msg += "\n" + rec.URL
	}
	f.Notify(ctx, msg)
	return OutcomePublished, true, nil
}

func (e *Engine) record(ctx context.Context, f *Flow, op string, rec Receipt) {
	if e.journal == nil {
		return
	}
	r := Record{
		FlowID:    f.ID,
		Kind:      f.Session.Kind,
		Op:        op,
		ReceiptID: rec.ID,
		URL:       rec.URL,
		When:      rec.When,
		Excerpt:   Excerpt(f.Session.Draft.Body),
		CreatedAt: e.now(),
	}
	if err := e.journal.Record(context.WithoutCancel(ctx), r); err != nil {
		f.logger.Warn("journal write failed", "err", err)
	}
}

// interrupted maps a flow-ending error to its outcome. Only a timeout is
// told to the operator.
func (e *Engine) interrupted(ctx context.Context, f *Flow, err error) (Outcome, error) {
	switch {
	case errors.Is(err, chat.ErrTimeout):
		f.Notify(ctx, TimeoutNotice)
		return OutcomeTimedOut, nil
	case ctx.Err() != nil:
		return OutcomeAbandoned, ctx.Err()
	default:
		f.logger.Warn("flow interrupted", "err", err)
		return OutcomeAbandoned, err
	}
}

// ends reports whether err must stop the flow rather than be reported as a
// failed step.
func ends(ctx context.Context, err error) bool {
	return errors.Is(err, chat.ErrTimeout) || errors.Is(err, chat.ErrSuperseded) || ctx.Err() != nil
}

func stepNotice(err error) string {
	var ge *generator.Error
	if errors.As(err, &ge) {
		return fmt.Sprintf("⚠️ La génération a échoué : %v.", ge.Err)
	}
	return fmt.Sprintf("⚠️ L'opération a échoué : %v.", err)
}

// Excerpt is the short form of a body kept in delivery records.
func Excerpt(s string) string { return excerpt(s, 120) }

// excerpt cuts s to at most n runes on a word boundary.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
