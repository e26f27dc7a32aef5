package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"auto_social_publisher/chat"
)

// Dispatcher consumes decoded events; chat.Gateway satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev chat.Event)
}

// Decode converts an update into a chat event. ok is false for updates the
// gateway has no use for (edits, stickers, channel posts...).
func Decode(u tgbotapi.Update) (ev chat.Event, ok bool) {
	if cb := u.CallbackQuery; cb != nil {
		if cb.From == nil {
			return chat.Event{}, false
		}
		return chat.Event{Kind: chat.EventCallback, From: cb.From.ID, Data: cb.Data, CallbackID: cb.ID}, true
	}

	m := u.Message
	if m == nil || m.From == nil {
		return chat.Event{}, false
	}
	switch {
	case m.Voice != nil:
		return chat.Event{Kind: chat.EventVoice, From: m.From.ID, FileID: m.Voice.FileID}, true
	case len(m.Photo) > 0:
		return chat.Event{Kind: chat.EventPhoto, From: m.From.ID, FileID: largest(m.Photo).FileID}, true
	case m.Text != "":
		return chat.Event{Kind: chat.EventText, From: m.From.ID, Text: m.Text}, true
	}
	return chat.Event{}, false
}

func largest(sizes []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height > best.Width*best.Height {
			best = s
		}
	}
	return best
}

// Poll long-polls updates until ctx is done.
func Poll(ctx context.Context, bot *tgbotapi.BotAPI, d Dispatcher, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("telegram delete webhook: %w", err)
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := bot.GetUpdatesChan(cfg)
	logger.Info("polling updates", "bot", bot.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return nil
		case u, open := <-updates:
			if !open {
				return nil
			}
			if ev, ok := Decode(u); ok {
				d.Dispatch(ctx, ev)
			}
		}
	}
}

// RegisterWebhook points Telegram at url followed by the secret path segment.
func RegisterWebhook(bot *tgbotapi.BotAPI, url, secret string) error {
	wh, err := tgbotapi.NewWebhook(WebhookURL(url, secret))
	if err != nil {
		return fmt.Errorf("telegram webhook url: %w", err)
	}
	if _, err := bot.Request(wh); err != nil {
		return fmt.Errorf("telegram set webhook: %w", err)
	}
	return nil
}

// WebhookURL is the address registered with Telegram: base with the secret
// as last path segment.
func WebhookURL(base, secret string) string {
	return strings.TrimRight(base, "/") + "/" + secret
}

// WebhookHandler decodes POSTed updates and dispatches them. Requests whose
// last path segment is not secret get a 404. Telegram only needs a 200;
// undecodable bodies get a 400 so they show up in webhook info.
func WebhookHandler(ctx context.Context, d Dispatcher, secret string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secret == "" || subtle.ConstantTimeCompare([]byte(path.Base(r.URL.Path)), []byte(secret)) != 1 {
			logger.Warn("webhook call with wrong secret", "remote", r.RemoteAddr)
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var u tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			logger.Warn("bad webhook payload", "err", err)
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		if ev, ok := Decode(u); ok {
			d.Dispatch(ctx, ev)
		}
		w.WriteHeader(http.StatusOK)
	})
}
