package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/service"
)

// ---------------------------------------------------------------------------
// PassesHandler – /passes [group]
// ---------------------------------------------------------------------------

// PassesHandler lists the open hall passes of a group.
type PassesHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewPassesHandler creates a new PassesHandler.
func NewPassesHandler(svc *service.Service, logger *logrus.Logger) *PassesHandler {
	return &PassesHandler{svc: svc, logger: logger}
}

// Handle processes the /passes command.
func (h *PassesHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	groupID, _ := parseArgs(args)
	group, err := h.svc.Groups.Resolve(chatGroup(h.svc, message.Chat.ID, groupID))
	if err != nil {
		text, _ := userError(err)
		return reply(bot, message.Chat.ID, text)
	}

	passes, err := h.svc.Passes.ActiveOrOverdue(context.Background(), group.ID)
	if err != nil {
		return fmt.Errorf("list hall passes: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id":  message.Chat.ID,
		"group_id": group.ID,
		"count":    len(passes),
	}).Info("Listed hall passes")

	msg := tgbotapi.NewMessage(message.Chat.ID, FormatPasses(group, passes, h.svc.Now(), h.svc.Location()))
	msg.ParseMode = tgbotapi.ModeMarkdown
	// only the linked chat may close the group's passes
	if chatID, ok := h.svc.Chats.ChatFor(group.ID); ok && chatID == message.Chat.ID && len(passes) > 0 {
		msg.ReplyMarkup = PassKeyboard(passes)
	}
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send hall passes: %w", err)
	}
	return nil
}

// ReturnAction is the callback action of the "returned" buttons.
const ReturnAction = "return"

// PassKeyboard offers one "returned" button per open pass.
func PassKeyboard(passes []*models.HallPass) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(passes))
	for i, p := range passes {
		if i == maxListLines {
			break
		}
		label := fmt.Sprintf("✅ %s returned", p.MemberName)
		data := fmt.Sprintf("%s:%d", ReturnAction, p.ID)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// ---------------------------------------------------------------------------
// PassReturnHandler – "returned" button
// ---------------------------------------------------------------------------

// PassReturnHandler checks a pass in from its inline button.
type PassReturnHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewPassReturnHandler creates a new PassReturnHandler.
func NewPassReturnHandler(svc *service.Service, logger *logrus.Logger) *PassReturnHandler {
	return &PassReturnHandler{svc: svc, logger: logger}
}

// HandleCallback checks in the pass whose id is payload. Presses from any
// chat other than the one linked to the pass's group are refused.
func (h *PassReturnHandler) HandleCallback(query *tgbotapi.CallbackQuery, payload string) (string, error) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return "❓ Unknown hall pass.", nil
	}

	ctx := context.Background()
	pass, err := h.svc.Passes.Get(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrPassNotFound) {
			return "❓ Unknown hall pass.", nil
		}
		return "", fmt.Errorf("get hall pass: %w", err)
	}

	chatID, linked := h.svc.Chats.ChatFor(pass.GroupID)
	if query.Message == nil || query.Message.Chat == nil || !linked || chatID != query.Message.Chat.ID {
		return "🔒 This chat is not linked to the pass's group.", nil
	}

	notes := "returned via Telegram"
	if query.From != nil && query.From.UserName != "" {
		notes += " by @" + query.From.UserName
	}
	minutes, err := h.svc.Passes.Checkin(ctx, id, "", notes)
	switch {
	case errors.Is(err, service.ErrPassNotActive):
		return fmt.Sprintf("%s is already back.", pass.MemberName), nil
	case err != nil:
		return "", fmt.Errorf("check in hall pass: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id":  chatID,
		"group_id": pass.GroupID,
		"pass_id":  id,
	}).Info("Hall pass checked in from Telegram")

	return fmt.Sprintf("✅ %s back after %d min.", pass.MemberName, minutes), nil
}

// FormatPasses renders the open passes of a group, most recent first.
func FormatPasses(group models.GroupConfig, passes []*models.HallPass, now time.Time, loc *time.Location) string {
	if len(passes) == 0 {
		return fmt.Sprintf("✅ Nobody from *%s* is out of the room.", esc(group.DisplayName))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🚶 *Hall passes: %s* (%d)\n\n", esc(group.DisplayName), len(passes))
	for i, p := range passes {
		if i == maxListLines {
			fmt.Fprintf(&b, "…and %d more\n", len(passes)-i)
			break
		}
		b.WriteString(formatPassLine(p, now, loc))
		b.WriteByte('\n')
	}
	return b.String()
}

func formatPassLine(p *models.HallPass, now time.Time, loc *time.Location) string {
	icon := "🟢"
	if p.Status == models.HallPassOverdue {
		icon = "🔴"
	}
	out := int(now.Sub(p.CheckOutTime) / time.Minute)
	if out < 0 {
		out = 0
	}
	line := fmt.Sprintf("%s %s (%s) out since %s, %d/%d min",
		icon, esc(p.MemberName), esc(p.MemberID),
		p.CheckOutTime.In(loc).Format("15:04"), out, p.ExpectedDurationMinutes)
	if p.CheckOutReason != "" {
		line += ": " + esc(p.CheckOutReason)
	}
	return line
}

// FormatOverdueAlert renders the notice posted when passes become overdue.
func FormatOverdueAlert(group models.GroupConfig, passes []*models.HallPass, now time.Time, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ *Overdue hall passes in %s*\n\n", esc(group.DisplayName))
	for _, p := range passes {
		b.WriteString(formatPassLine(p, now, loc))
		b.WriteByte('\n')
	}
	return b.String()
}
