package telegram

import (
	"context"
	"fmt"

	"github.com/NasaVasa/pricewatch/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI the handlers and notifiers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api         *tgbotapi.BotAPI
	handlers    *Handlers
	pollTimeout int
	logger      *zap.Logger
}

func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

func NewBot(api *tgbotapi.BotAPI, handlers *Handlers, pollTimeout int, logger *zap.Logger) *Bot {
	return &Bot{api: api, handlers: handlers, pollTimeout: pollTimeout, logger: logger}
}

// Start long-polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	config := tgbotapi.NewUpdate(0)
	config.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(config)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handlers.HandleUpdate(ctx, b.api, update)
		}
	}
}

// Dispatch handles one update delivered through the webhook.
func (b *Bot) Dispatch(ctx context.Context, update tgbotapi.Update) {
	b.handlers.HandleUpdate(ctx, b.api, update)
}

// SetWebhook registers url with Telegram. Telegram then sends secret in the
// X-Telegram-Bot-Api-Secret-Token header of every update; WebhookConfig in
// this library version has no field for it, so the call is made directly.
func (b *Bot) SetWebhook(url, secret string) error {
	params := tgbotapi.Params{}
	params["url"] = url
	params.AddNonEmpty("secret_token", secret)
	if _, err := b.api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	b.logger.Info("telegram webhook registered", zap.String("url", url))
	return nil
}

func (b *Bot) DeleteWebhook() error {
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	b.logger.Info("telegram webhook deleted")
	return nil
}

type Notifier struct {
	api    Sender
	logger *zap.Logger
}

func NewNotifier(api Sender, logger *zap.Logger) *Notifier {
	return &Notifier{api: api, logger: logger}
}

func (n *Notifier) Notify(telegramUserID int64, text string) error {
	n.logger.Info("telegram notify send", zap.Int64("telegram_user_id", telegramUserID), zap.String("text", text))
	msg := tgbotapi.NewMessage(telegramUserID, text)
	_, err := n.api.Send(msg)
	if err != nil {
		n.logger.Warn("failed to notify", zap.Int64("telegram_user_id", telegramUserID), zap.Error(err))
	}
	return err
}

// Broadcast sends msg as a photo or video with caption when one is attached,
// plain text otherwise.
func (n *Notifier) Broadcast(telegramUserID int64, msg usecase.BroadcastMessage) error {
	var c tgbotapi.Chattable
	switch {
	case msg.PhotoFileID != "":
		photo := tgbotapi.NewPhoto(telegramUserID, tgbotapi.FileID(msg.PhotoFileID))
		photo.Caption = msg.Text
		c = photo
	case msg.VideoFileID != "":
		video := tgbotapi.NewVideo(telegramUserID, tgbotapi.FileID(msg.VideoFileID))
		video.Caption = msg.Text
		c = video
	default:
		c = tgbotapi.NewMessage(telegramUserID, msg.Text)
	}
	_, err := n.api.Send(c)
	return err
}
