package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/rollcall/internal/handlers"
	"github.com/Kerhoff/rollcall/internal/service"
)

// Bot wraps the Telegram bot API and hosts the attendance commands
type Bot struct {
	api    *tgbotapi.BotAPI
	logger *logrus.Logger
	router *Router
}

// NewBot creates a new Telegram bot instance
func NewBot(token string, logger *logrus.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	logger.Infof("Authorized on account %s", api.Self.UserName)

	return &Bot{
		api:    api,
		logger: logger,
		router: NewRouter(logger),
	}, nil
}

// Start starts the bot with long polling
func (b *Bot) Start(ctx context.Context) error {
	// Delete webhook if exists and use polling
	_, err := b.api.Request(tgbotapi.DeleteWebhookConfig{})
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started with long polling")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping bot...")
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			go b.handleUpdate(update)
		}
	}
}

// handleUpdate processes incoming updates
func (b *Bot) handleUpdate(update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("Panic in update handler: %v", r)
		}
	}()

	if update.Message != nil {
		b.router.HandleMessage(b.api, update.Message)
	} else if update.CallbackQuery != nil {
		b.router.HandleCallbackQuery(b.api, update.CallbackQuery)
	}
}

// SendMessage sends a message to a chat
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// Register wires the attendance commands and the "returned" buttons of
// /passes to svc.
func (b *Bot) Register(svc *service.Service) {
	b.router.RegisterCommand("start", handlers.NewStartHandler(b.logger))
	b.router.RegisterCommand("help", handlers.NewHelpHandler(b.logger))
	b.router.RegisterCommand("link", handlers.NewLinkHandler(svc, b.logger))
	b.router.RegisterCommand("passes", handlers.NewPassesHandler(svc, b.logger))
	b.router.RegisterCommand("present", handlers.NewPresentHandler(svc, b.logger))
	b.router.RegisterCommand("stats", handlers.NewStatsHandler(svc, b.logger))

	b.router.RegisterCallback(handlers.ReturnAction, handlers.NewPassReturnHandler(svc, b.logger))
}

// OverdueAlerts returns the sweeper callback that posts overdue passes to
// each group's linked chat.
func (b *Bot) OverdueAlerts(svc *service.Service) service.OverdueCallback {
	return NewOverdueNotifier(b, svc.Groups, svc.Chats, svc.Now, svc.Location(), b.logger).Notify
}
