package telegram

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/rollcall/internal/handlers"
	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/service"
)

// Sender delivers a Markdown message to a chat.
type Sender interface {
	SendMessage(chatID int64, text string) error
}

// OverdueNotifier posts newly overdue passes to the chat linked to their
// group. Groups without a chat are skipped.
type OverdueNotifier struct {
	sender Sender
	groups *service.Groups
	chats  *service.ChatBindings
	now    func() time.Time
	loc    *time.Location
	logger *logrus.Logger
}

// NewOverdueNotifier creates a notifier that sends through sender.
func NewOverdueNotifier(sender Sender, groups *service.Groups, chats *service.ChatBindings, now func() time.Time, loc *time.Location, logger *logrus.Logger) *OverdueNotifier {
	return &OverdueNotifier{sender: sender, groups: groups, chats: chats, now: now, loc: loc, logger: logger}
}

// Notify is a service.OverdueCallback.
func (n *OverdueNotifier) Notify(passes []*models.HallPass) {
	byGroup := make(map[string][]*models.HallPass)
	var order []string
	for _, p := range passes {
		if _, ok := byGroup[p.GroupID]; !ok {
			order = append(order, p.GroupID)
		}
		byGroup[p.GroupID] = append(byGroup[p.GroupID], p)
	}

	now := n.now()
	for _, id := range order {
		chatID, linked := n.chats.ChatFor(id)
		if !linked {
			continue
		}
		group, err := n.groups.Resolve(id)
		if err != nil {
			continue
		}
		text := handlers.FormatOverdueAlert(group, byGroup[id], now, n.loc)
		if err := n.sender.SendMessage(chatID, text); err != nil {
			n.logger.WithFields(logrus.Fields{
				"group_id": id,
				"chat_id":  chatID,
			}).Errorf("Failed to send overdue alert: %v", err)
		}
	}
}
