package compose

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"auto_social_publisher/chat"
	"auto_social_publisher/config"
	"auto_social_publisher/generator"
	"auto_social_publisher/mailing"
	"auto_social_publisher/publisher"
)

// step is one scripted operator answer.
type step struct {
	kind   string
	choice string
	text   string
	multi  []string
	pick   int
	photo  []byte
	err    error
}

func choose(s string) step       { return step{kind: "choice", choice: s} }
func say(s string) step          { return step{kind: "text", text: s} }
func selectAll(s ...string) step { return step{kind: "multi", multi: s} }
func pickImage(i int) step       { return step{kind: "image", pick: i} }
func sendPhoto(b string) step    { return step{kind: "photo", photo: []byte(b)} }
func timeout(kind string) step   { return step{kind: kind, err: chat.ErrTimeout} }

// scriptGateway answers questions from a script and records what the
// operator would have seen.
type scriptGateway struct {
	t       *testing.T
	script  []step
	notices []string
	prompts []string
	offered [][][]byte
}

func newScript(t *testing.T, steps ...step) *scriptGateway {
	return &scriptGateway{t: t, script: steps}
}

func (g *scriptGateway) pop(kind, prompt string) (step, error) {
	g.prompts = append(g.prompts, prompt)
	if len(g.script) == 0 {
		g.t.Errorf("unexpected %s question %q", kind, prompt)
		return step{}, chat.ErrTimeout
	}
	s := g.script[0]
	g.script = g.script[1:]
	if s.kind != kind {
		g.t.Errorf("question %q: got a %s question, script expected %s", prompt, kind, s.kind)
		return step{}, chat.ErrTimeout
	}
	return s, s.err
}

func (g *scriptGateway) Notify(_ context.Context, text string) {
	g.notices = append(g.notices, text)
}

func (g *scriptGateway) AskChoice(_ context.Context, prompt string, options []string, _ time.Duration) (string, error) {
	s, err := g.pop("choice", prompt)
	if err != nil {
		return "", err
	}
	if !slices.Contains(options, s.choice) {
		g.t.Errorf("question %q: %q is not among %q", prompt, s.choice, options)
		return "", chat.ErrTimeout
	}
	return s.choice, nil
}

func (g *scriptGateway) AskText(_ context.Context, prompt string, _ time.Duration) (string, error) {
	s, err := g.pop("text", prompt)
	return s.text, err
}

func (g *scriptGateway) AskMulti(_ context.Context, prompt string, options []string, _ time.Duration) ([]string, error) {
	s, err := g.pop("multi", prompt)
	if err != nil {
		return nil, err
	}
	for _, o := range s.multi {
		if !slices.Contains(options, o) {
			g.t.Errorf("question %q: %q is not among %q", prompt, o, options)
		}
	}
	return s.multi, nil
}

func (g *scriptGateway) AskImage(_ context.Context, prompt string, images [][]byte, _ time.Duration) ([]byte, error) {
	g.offered = append(g.offered, images)
	s, err := g.pop("image", prompt)
	if err != nil {
		return nil, err
	}
	return images[s.pick], nil
}

func (g *scriptGateway) AskPhoto(_ context.Context, prompt string, _ time.Duration) ([]byte, error) {
	s, err := g.pop("photo", prompt)
	return s.photo, err
}

func (g *scriptGateway) count(notice string) int {
	n := 0
	for _, s := range g.notices {
		if s == notice {
			n++
		}
	}
	return n
}

// fakeGen drafts "post v1" (or the queued drafts) and revises by appending
// the instructions, so a revision history is visible in the body.
type fakeGen struct {
	drafts      []generator.Draft
	draftErrs   []error
	reviseErr   error
	candidates  [][]byte
	styles      []string
	revisions   []string
	draftSeeds  []string
	emailDrafts generator.Draft
}

func (f *fakeGen) Draft(_ context.Context, seed string) (generator.Draft, error) {
	f.draftSeeds = append(f.draftSeeds, seed)
	if len(f.draftErrs) > 0 {
		err := f.draftErrs[0]
		f.draftErrs = f.draftErrs[1:]
		if err != nil {
			return generator.Draft{}, err
		}
	}
	if len(f.drafts) > 0 {
		d := f.drafts[0]
		f.drafts = f.drafts[1:]
		return d, nil
	}
	return generator.Draft{Body: "post v1"}, nil
}

func (f *fakeGen) DraftEmail(ctx context.Context, seed string) (generator.Draft, error) {
	if _, err := f.Draft(ctx, seed); err != nil {
		return generator.Draft{}, err
	}
	return f.emailDrafts, nil
}

func (f *fakeGen) Revise(_ context.Context, d generator.Draft, instructions string, _ []generator.Turn) (generator.Draft, error) {
	if f.reviseErr != nil {
		return generator.Draft{}, f.reviseErr
	}
	f.revisions = append(f.revisions, instructions)
	d.Body += " | " + instructions
	return d, nil
}

func (f *fakeGen) Illustrate(_ context.Context, _ generator.Draft, style string) [][]byte {
	f.styles = append(f.styles, style)
	return f.candidates
}

type pagePublish struct {
	post publisher.Post
	when time.Time
}

type fakePage struct {
	published []publisher.Post
	scheduled []pagePublish
	crossed   [][]config.Group
	err       error
	crossErrs []error
}

func (f *fakePage) Publish(_ context.Context, post publisher.Post) (publisher.Receipt, error) {
	f.published = append(f.published, post)
	if f.err != nil {
		return publisher.Receipt{}, f.err
	}
	return publisher.Receipt{PostID: "123_456", URL: "https://www.facebook.com/123_456"}, nil
}

func (f *fakePage) Schedule(_ context.Context, post publisher.Post, when time.Time) (publisher.Receipt, error) {
	f.scheduled = append(f.scheduled, pagePublish{post, when})
	if f.err != nil {
		return publisher.Receipt{}, f.err
	}
	return publisher.Receipt{PostID: "123_789", ScheduledAt: when}, nil
}

func (f *fakePage) CrossPost(_ context.Context, _ publisher.Receipt, groups []config.Group) []error {
	f.crossed = append(f.crossed, groups)
	return f.crossErrs
}

func (f *fakePage) calls() int { return len(f.published) + len(f.scheduled) }

type fakeMail struct {
	mailings []mailing.Mailing
	err      error
	warnings []string
	// scheduleErr fails once after the mailing was created.
	scheduleErr error
}

func (f *fakeMail) Schedule(_ context.Context, m mailing.Mailing) (mailing.Receipt, error) {
	f.mailings = append(f.mailings, m)
	if f.err != nil {
		return mailing.Receipt{}, f.err
	}
	if err := f.scheduleErr; err != nil {
		f.scheduleErr = nil
		return mailing.Receipt{ID: 31}, err
	}
	return mailing.Receipt{ID: 31, Warnings: f.warnings}, nil
}

type observed struct {
	finished []string
	attempts []string
}

func (o *observed) FlowFinished(kind string, outcome Outcome) {
	o.finished = append(o.finished, kind+":"+outcome.String())
}

func (o *observed) DeliveryAttempt(kind, op string, err error) {
	o.attempts = append(o.attempts, fmt.Sprintf("%s:%s:%t", kind, op, err == nil))
}

type memJournal struct {
	records []Record
	err     error
}

func (j *memJournal) Record(_ context.Context, r Record) error {
	j.records = append(j.records, r)
	return j.err
}

var errRateLimited = errors.New("rate limited")
