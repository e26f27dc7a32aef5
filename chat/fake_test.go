package chat

import (
	"context"
	"errors"
	"sync"
)

// sent is one outbound message captured by fakeTransport.
type sent struct {
	Text    string
	Buttons []Button
	Images  [][]byte
}

type fakeTransport struct {
	mu        sync.Mutex
	out       chan sent
	texts     []string
	cleared   int
	answered  map[string]string
	files     map[string][]byte
	failSends bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		out:      make(chan sent, 32),
		answered: make(map[string]string),
		files:    make(map[string][]byte),
	}
}

func (f *fakeTransport) SendText(_ context.Context, text string) error {
	if f.failSends {
		return errors.New("network down")
	}
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	f.out <- sent{Text: text}
	return nil
}

func (f *fakeTransport) SendButtons(_ context.Context, text string, buttons []Button) (MessageRef, error) {
	if f.failSends {
		return MessageRef{}, errors.New("network down")
	}
	f.out <- sent{Text: text, Buttons: buttons}
	return MessageRef{ChatID: 1, MessageIDs: []int{1}}, nil
}

func (f *fakeTransport) SendImages(_ context.Context, caption string, images [][]byte, buttons []Button) (MessageRef, error) {
	f.out <- sent{Text: caption, Buttons: buttons, Images: images}
	return MessageRef{ChatID: 1, MessageIDs: []int{2, 3}}, nil
}

func (f *fakeTransport) ClearButtons(context.Context, MessageRef) error {
	f.mu.Lock()
	f.cleared++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, id, text string) error {
	f.mu.Lock()
	f.answered[id] = text
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Download(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (f *fakeTransport) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

type echoTranscriber struct{}

func (echoTranscriber) Transcribe(_ context.Context, audio []byte) string {
	return string(audio)
}
