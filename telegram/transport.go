// Package telegram adapts the Telegram Bot API to chat.Transport and decodes
// inbound updates into chat events.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"auto_social_publisher/chat"
)

// botAPI is the part of *tgbotapi.BotAPI the transport uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Transport sends everything to the private chat of a single operator.
type Transport struct {
	bot    botAPI
	chatID int64
	http   *http.Client
	logger *slog.Logger
}

var _ chat.Transport = (*Transport)(nil)

func NewTransport(bot botAPI, chatID int64, logger *slog.Logger) (*Transport, error) {
	if bot == nil {
		return nil, errors.New("telegram bot is required")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		bot:    bot,
		chatID: chatID,
		http:   &http.Client{Timeout: 60 * time.Second},
		logger: logger,
	}, nil
}

func (t *Transport) SendText(_ context.Context, text string) error {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("telegram send message: %w", err)
	}
	return nil
}

// SendButtons sends text with one inline button per row.
func (t *Transport) SendButtons(_ context.Context, text string, buttons []chat.Button) (chat.MessageRef, error) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ReplyMarkup = keyboard(buttons...)
	sent, err := t.bot.Send(msg)
	if err != nil {
		return chat.MessageRef{}, fmt.Errorf("telegram send buttons: %w", err)
	}
	return chat.MessageRef{ChatID: t.chatID, MessageIDs: []int{sent.MessageID}}, nil
}

// SendImages sends one photo per image; the caption goes on the first photo
// and buttons[i], when present, sits under image i.
func (t *Transport) SendImages(_ context.Context, caption string, images [][]byte, buttons []chat.Button) (chat.MessageRef, error) {
	ref := chat.MessageRef{ChatID: t.chatID}
	for i, img := range images {
		photo := tgbotapi.NewPhoto(t.chatID, tgbotapi.FileBytes{Name: fmt.Sprintf("image-%d.png", i+1), Bytes: img})
		if i == 0 {
			photo.Caption = caption
		}
		if i < len(buttons) {
			photo.ReplyMarkup = keyboard(buttons[i])
		}
		sent, err := t.bot.Send(photo)
		if err != nil {
			return ref, fmt.Errorf("telegram send photo %d: %w", i+1, err)
		}
		ref.MessageIDs = append(ref.MessageIDs, sent.MessageID)
	}
	return ref, nil
}

func (t *Transport) ClearButtons(_ context.Context, ref chat.MessageRef) error {
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	var errs []error
	for _, id := range ref.MessageIDs {
		if _, err := t.bot.Request(tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, id, empty)); err != nil {
			errs = append(errs, fmt.Errorf("message %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Transport) AnswerCallback(_ context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	_, err := t.bot.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}

// Download fetches a file the operator sent (photo or voice note).
func (t *Transport) Download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("telegram file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram download: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func keyboard(buttons ...chat.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
