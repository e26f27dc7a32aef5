package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto_social_publisher/chat"
)

func TestDecode(t *testing.T) {
	from := &tgbotapi.User{ID: 42}

	cases := []struct {
		name string
		in   tgbotapi.Update
		want chat.Event
		ok   bool
	}{
		{
			name: "text",
			in:   tgbotapi.Update{Message: &tgbotapi.Message{From: from, Text: "bonjour"}},
			want: chat.Event{Kind: chat.EventText, From: 42, Text: "bonjour"},
			ok:   true,
		},
		{
			name: "voice",
			in:   tgbotapi.Update{Message: &tgbotapi.Message{From: from, Voice: &tgbotapi.Voice{FileID: "v1"}}},
			want: chat.Event{Kind: chat.EventVoice, From: 42, FileID: "v1"},
			ok:   true,
		},
		{
			name: "largest photo size",
			in: tgbotapi.Update{Message: &tgbotapi.Message{From: from, Photo: []tgbotapi.PhotoSize{
				{FileID: "small", Width: 90, Height: 90},
				{FileID: "big", Width: 1280, Height: 960},
				{FileID: "medium", Width: 320, Height: 240},
			}}},
			want: chat.Event{Kind: chat.EventPhoto, From: 42, FileID: "big"},
			ok:   true,
		},
		{
			name: "callback",
			in:   tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "q", From: from, Data: "c3|1"}},
			want: chat.Event{Kind: chat.EventCallback, From: 42, Data: "c3|1", CallbackID: "q"},
			ok:   true,
		},
		{name: "edited message", in: tgbotapi.Update{EditedMessage: &tgbotapi.Message{From: from, Text: "x"}}},
		{name: "no sender", in: tgbotapi.Update{Message: &tgbotapi.Message{Text: "x"}}},
		{name: "sticker", in: tgbotapi.Update{Message: &tgbotapi.Message{From: from}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Decode(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

type recorder struct {
	mu     sync.Mutex
	events []chat.Event
}

func (r *recorder) Dispatch(_ context.Context, ev chat.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func TestWebhookHandler(t *testing.T) {
	rec := &recorder{}
	h := WebhookHandler(context.Background(), rec, "s3cr3t", nil)
	const url = "/telegram/webhook/s3cr3t"

	body := `{"update_id":1,"callback_query":{"id":"q","from":{"id":42},"data":"c1|0"}}`
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, url, strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, rec.events, 1)
	assert.Equal(t, "c1|0", rec.events[0].Data)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, url, strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Len(t, rec.events, 1)
}

func TestWebhookHandler_ForgedUpdatesAreNotDispatched(t *testing.T) {
	forged := `{"update_id":2,"callback_query":{"id":"x","from":{"id":42},"data":"c7|2"}}`
	cases := []struct {
		name   string
		secret string
		url    string
	}{
		{"bare path", "s3cr3t", "/telegram/webhook"},
		{"wrong secret", "s3cr3t", "/telegram/webhook/guess"},
		{"no secret configured", "", "/telegram/webhook/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			h := WebhookHandler(context.Background(), rec, tc.secret, nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tc.url, strings.NewReader(forged)))
			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Empty(t, rec.events)
		})
	}
}

func TestWebhookURL(t *testing.T) {
	assert.Equal(t, "https://bot.example/telegram/webhook/s3cr3t", WebhookURL("https://bot.example/telegram/webhook/", "s3cr3t"))
}
