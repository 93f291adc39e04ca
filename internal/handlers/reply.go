package handlers

import (
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/service"
)

// maxListLines caps the rows of a list reply so it stays under Telegram's
// message size limit.
const maxListLines = 40

// esc escapes text for the legacy Markdown parse mode.
func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func reply(bot *tgbotapi.BotAPI, chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// parseArgs splits command arguments into an optional group and an optional
// date, in either order.
func parseArgs(args []string) (groupID string, day *models.Day) {
	for _, a := range args {
		if d, err := models.ParseDay(a); err == nil {
			day = &d
			continue
		}
		if groupID == "" {
			groupID = a
		}
	}
	return groupID, day
}

// chatGroup picks the group a command refers to: the explicit argument, or
// the chat's only linked group. An empty result means the default group.
func chatGroup(svc *service.Service, chatID int64, groupID string) string {
	if groupID != "" {
		return groupID
	}
	if linked := svc.Chats.GroupsFor(chatID); len(linked) == 1 {
		return linked[0]
	}
	return ""
}

// userError returns the message shown for errors caused by the request
// rather than the system.
func userError(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrGroupNotFound):
		return "❌ Unknown group. Use /help to see usage.", true
	case errors.Is(err, service.ErrInvalidSecret):
		return "🔒 Wrong group secret.", true
	case errors.Is(err, service.ErrRosterUnavailable):
		return "⚠️ The roster for this group is unavailable right now.", true
	default:
		return "", false
	}
}
