// Package chat exposes blocking ask/notify primitives over an asynchronous
// chat transport. Each kind of question has a single pending slot: a newer
// question of the same kind supersedes the older one, and answers to stale
// questions are dropped.
package chat

import "context"

// EventKind classifies inbound operator input.
type EventKind int

const (
	EventText EventKind = iota
	EventVoice
	EventPhoto
	EventCallback
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "text"
	case EventVoice:
		return "voice"
	case EventPhoto:
		return "photo"
	case EventCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Event is one inbound update, already decoded by the transport.
type Event struct {
	Kind       EventKind
	From       int64
	Text       string
	FileID     string
	Data       string
	CallbackID string
}

// Button is an inline affordance; Data comes back verbatim in a callback Event.
type Button struct {
	Label string
	Data  string
}

// MessageRef identifies sent messages whose buttons may need to be removed.
type MessageRef struct {
	ChatID     int64
	MessageIDs []int
}

// Transport is the outbound half of a chat backend. Inbound updates are fed
// to Gateway.Dispatch by whatever loop the backend runs.
type Transport interface {
	SendText(ctx context.Context, text string) error
	SendButtons(ctx context.Context, text string, buttons []Button) (MessageRef, error)
	// SendImages posts each image with the button of the same index under it.
	SendImages(ctx context.Context, caption string, images [][]byte, buttons []Button) (MessageRef, error)
	ClearButtons(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Transcriber turns a voice note into text, returning "" on failure.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) string
}
