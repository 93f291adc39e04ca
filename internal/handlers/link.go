package handlers

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/rollcall/internal/service"
)

// ---------------------------------------------------------------------------
// LinkHandler – /link <group> [secret]
// ---------------------------------------------------------------------------

// LinkHandler makes the current chat the alert chat of a group.
type LinkHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(svc *service.Service, logger *logrus.Logger) *LinkHandler {
	return &LinkHandler{svc: svc, logger: logger}
}

// Handle processes the /link command.
func (h *LinkHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	if len(args) == 0 {
		return reply(bot, message.Chat.ID, "❌ Please name the group.\nUsage: `/link p1 secret`")
	}
	secret := ""
	if len(args) > 1 {
		secret = args[1]
	}

	text, err := h.link(message.Chat.ID, args[0], secret)
	if err != nil {
		return err
	}

	// drop the message carrying the secret
	if secret != "" {
		if _, err := bot.Request(tgbotapi.NewDeleteMessage(message.Chat.ID, message.MessageID)); err != nil {
			h.logger.WithError(err).Warn("Failed to delete /link message")
		}
	}
	return reply(bot, message.Chat.ID, text)
}

func (h *LinkHandler) link(chatID int64, groupID, secret string) (string, error) {
	group, err := h.svc.LinkChat(groupID, chatID, secret)
	if err != nil {
		if text, ok := userError(err); ok {
			return text, nil
		}
		return "", fmt.Errorf("link chat: %w", err)
	}
	return fmt.Sprintf("🔗 This chat now receives overdue alerts for *%s*.", esc(group.DisplayName)), nil
}
