package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrTimeout means the operator did not answer within the question's budget.
	ErrTimeout = errors.New("chat: no answer before timeout")
	// ErrSuperseded means a newer question of the same kind replaced this one.
	ErrSuperseded = errors.New("chat: question superseded")
)

// DoneOption terminates a multi-select prompt.
const DoneOption = "✅ Terminé"

const (
	staleNotice     = "Cette question a expiré."
	transcribeRetry = "Je n'ai pas pu transcrire le message vocal. Renvoyez-le ou tapez votre texte."
)

type slotKind string

const (
	slotChoice slotKind = "c"
	slotImage  slotKind = "i"
	slotText   slotKind = "t"
	slotPhoto  slotKind = "p"
)

type pending struct {
	token      string
	accept     func(Event) bool
	answer     chan Event
	superseded chan struct{}
}

// Gateway turns transport callbacks into synchronous questions for one
// authorized operator.
type Gateway struct {
	transport   Transport
	transcriber Transcriber
	operator    int64
	logger      *slog.Logger

	mu    sync.Mutex
	seq   uint64
	slots map[slotKind]*pending
}

// NewGateway builds a gateway answering only to operator.
func NewGateway(transport Transport, transcriber Transcriber, operator int64, logger *slog.Logger) (*Gateway, error) {
	if transport == nil {
		return nil, errors.New("chat transport is required")
	}
	if operator == 0 {
		return nil, errors.New("operator id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		transport:   transport,
		transcriber: transcriber,
		operator:    operator,
		logger:      logger,
		slots:       make(map[slotKind]*pending),
	}, nil
}

// Notify sends a message and never fails the caller.
func (g *Gateway) Notify(ctx context.Context, text string) {
	if err := g.transport.SendText(ctx, text); err != nil {
		g.logger.Warn("notify failed", "err", err)
	}
}

// AskChoice shows options as buttons and returns the picked option.
func (g *Gateway) AskChoice(ctx context.Context, prompt string, options []string, timeout time.Duration) (string, error) {
	idx, err := g.askIndex(ctx, prompt, options, timeout)
	if err != nil {
		return "", err
	}
	return options[idx], nil
}

// AskMulti repeatedly asks for one option out of the remaining pool until
// DoneOption is picked or the pool is empty. Any timeout discards the whole
// selection.
func (g *Gateway) AskMulti(ctx context.Context, prompt string, options []string, timeout time.Duration) ([]string, error) {
	pool := append([]string(nil), options...)
	var picked []string
	for len(pool) > 0 {
		text := prompt
		if len(picked) > 0 {
			text = fmt.Sprintf("%s\n\nSélection : %s", prompt, strings.Join(picked, ", "))
		}
		labels := append(append([]string(nil), pool...), DoneOption)
		idx, err := g.askIndex(ctx, text, labels, timeout)
		if err != nil {
			return nil, err
		}
		if idx == len(pool) {
			break
		}
		picked = append(picked, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
	}
	return picked, nil
}

// AskText waits for a typed reply or a voice note, whichever arrives first.
// Voice notes are transcribed. A failed transcription asks again; the timeout
// covers every attempt.
func (g *Gateway) AskText(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	accept := func(ev Event) bool {
		return (ev.Kind == EventText && ev.Text != "") || (ev.Kind == EventVoice && ev.FileID != "")
	}
	deadline := time.Now().Add(timeout)
	for {
		ev, err := g.ask(ctx, slotText, time.Until(deadline), accept, func(string) (MessageRef, error) {
			return MessageRef{}, g.transport.SendText(ctx, prompt)
		})
		if err != nil {
			return "", err
		}
		if ev.Kind == EventText {
			return strings.TrimSpace(ev.Text), nil
		}

		if text := g.transcribe(ctx, ev.FileID); text != "" {
			g.Notify(ctx, "🎙️ "+text)
			return text, nil
		}
		prompt = transcribeRetry
	}
}

// AskPhoto waits for one uploaded photo and returns its bytes.
func (g *Gateway) AskPhoto(ctx context.Context, prompt string, timeout time.Duration) ([]byte, error) {
	accept := func(ev Event) bool { return ev.Kind == EventPhoto && ev.FileID != "" }
	ev, err := g.ask(ctx, slotPhoto, timeout, accept, func(string) (MessageRef, error) {
		return MessageRef{}, g.transport.SendText(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}
	data, err := g.transport.Download(ctx, ev.FileID)
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}
	return data, nil
}

// AskImage offers images with one pick button each and returns the chosen
// blob unchanged.
func (g *Gateway) AskImage(ctx context.Context, prompt string, images [][]byte, timeout time.Duration) ([]byte, error) {
	if len(images) == 0 {
		return nil, errors.New("no image to choose from")
	}
	accept := indexAcceptor(len(images))
	ev, err := g.ask(ctx, slotImage, timeout, accept, func(token string) (MessageRef, error) {
		buttons := make([]Button, len(images))
		for i := range images {
			buttons[i] = Button{Label: fmt.Sprintf("Choisir n°%d", i+1), Data: callbackData(token, i)}
		}
		return g.transport.SendImages(ctx, prompt, images, buttons)
	})
	if err != nil {
		return nil, err
	}
	idx, _ := parseIndex(ev.Data)
	return images[idx], nil
}

// Dispatch routes one inbound event to the pending question it answers.
// Events from other users and answers to stale questions are dropped.
func (g *Gateway) Dispatch(ctx context.Context, ev Event) {
	if ev.From != g.operator {
		g.logger.Debug("ignoring event from unauthorized user", "from", ev.From, "kind", ev.Kind)
		return
	}

	var kind slotKind
	switch ev.Kind {
	case EventText, EventVoice:
		kind = slotText
	case EventPhoto:
		kind = slotPhoto
	case EventCallback:
		token, _, _ := strings.Cut(ev.Data, "|")
		kind = slotKind(strings.TrimRight(token, "0123456789"))
	}

	delivered := g.deliver(kind, ev)
	if ev.Kind == EventCallback {
		text := ""
		if !delivered {
			text = staleNotice
		}
		if err := g.transport.AnswerCallback(ctx, ev.CallbackID, text); err != nil {
			g.logger.Debug("answer callback failed", "err", err)
		}
	}
	if !delivered {
		g.logger.Debug("dropping unexpected event", "kind", ev.Kind)
	}
}

func (g *Gateway) deliver(kind slotKind, ev Event) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.slots[kind]
	if !ok {
		return false
	}
	if ev.Kind == EventCallback {
		token, _, _ := strings.Cut(ev.Data, "|")
		if token != p.token {
			return false
		}
	}
	if !p.accept(ev) {
		return false
	}
	delete(g.slots, kind)
	p.answer <- ev
	return true
}

func (g *Gateway) askIndex(ctx context.Context, prompt string, options []string, timeout time.Duration) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no option to choose from")
	}
	ev, err := g.ask(ctx, slotChoice, timeout, indexAcceptor(len(options)), func(token string) (MessageRef, error) {
		buttons := make([]Button, len(options))
		for i, opt := range options {
			buttons[i] = Button{Label: opt, Data: callbackData(token, i)}
		}
		return g.transport.SendButtons(ctx, prompt, buttons)
	})
	if err != nil {
		return 0, err
	}
	idx, _ := parseIndex(ev.Data)
	return idx, nil
}

// ask registers the slot before sending so that a fast answer cannot be lost,
// then waits for an answer, the timeout, supersession or cancellation. The
// slot is always released and any buttons removed before returning.
func (g *Gateway) ask(ctx context.Context, kind slotKind, timeout time.Duration, accept func(Event) bool, send func(token string) (MessageRef, error)) (Event, error) {
	p := g.register(kind, accept)
	defer g.release(kind, p)

	ref, err := send(p.token)
	if err != nil {
		return Event{}, fmt.Errorf("send question: %w", err)
	}
	if len(ref.MessageIDs) > 0 {
		defer func() {
			if err := g.transport.ClearButtons(context.WithoutCancel(ctx), ref); err != nil {
				g.logger.Debug("clear buttons failed", "err", err)
			}
		}()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-p.answer:
		return ev, nil
	case <-timer.C:
		return Event{}, ErrTimeout
	case <-p.superseded:
		return Event{}, ErrSuperseded
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (g *Gateway) register(kind slotKind, accept func(Event) bool) *pending {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	p := &pending{
		token:      string(kind) + strconv.FormatUint(g.seq, 10),
		accept:     accept,
		answer:     make(chan Event, 1),
		superseded: make(chan struct{}),
	}
	if old, ok := g.slots[kind]; ok {
		close(old.superseded)
	}
	g.slots[kind] = p
	return p
}

func (g *Gateway) release(kind slotKind, p *pending) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slots[kind] == p {
		delete(g.slots, kind)
	}
}

func (g *Gateway) transcribe(ctx context.Context, fileID string) string {
	if g.transcriber == nil {
		return ""
	}
	audio, err := g.transport.Download(ctx, fileID)
	if err != nil {
		g.logger.Error("download voice note failed", "err", err)
		return ""
	}
	return g.transcriber.Transcribe(ctx, audio)
}

func callbackData(token string, idx int) string {
	return token + "|" + strconv.Itoa(idx)
}

func parseIndex(data string) (int, bool) {
	_, raw, ok := strings.Cut(data, "|")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func indexAcceptor(n int) func(Event) bool {
	return func(ev Event) bool {
		if ev.Kind != EventCallback {
			return false
		}
		idx, ok := parseIndex(ev.Data)
		return ok && idx >= 0 && idx < n
	}
}
