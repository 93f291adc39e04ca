package telegram

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/service"
)

type sent struct {
	chatID int64
	text   string
}

type fakeSender struct {
	msgs []sent
	err  error
}

func (f *fakeSender) SendMessage(chatID int64, text string) error {
	f.msgs = append(f.msgs, sent{chatID, text})
	return f.err
}

func TestOverdueNotifierGroupsByChat(t *testing.T) {
	groups := service.NewGroups([]models.GroupConfig{
		{ID: "p1", DisplayName: "Period 1", TelegramChatID: 100},
		{ID: "p2", DisplayName: "Period 2"},
		{ID: "p3", DisplayName: "Period 3", TelegramChatID: 300},
	}, "")
	now := time.Date(2025, 10, 28, 15, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	chats := service.NewChatBindings(groups.List())
	n := NewOverdueNotifier(sender, groups, chats, func() time.Time { return now }, time.UTC, quietLogger())

	out := now.Add(-15 * time.Minute)
	n.Notify([]*models.HallPass{
		{GroupID: "p3", MemberID: "7", MemberName: "Zed", CheckOutTime: out, ExpectedDurationMinutes: 10, Status: models.HallPassOverdue},
		{GroupID: "p1", MemberID: "1", MemberName: "Ada", CheckOutTime: out, ExpectedDurationMinutes: 10, Status: models.HallPassOverdue},
		{GroupID: "p2", MemberID: "2", MemberName: "Bob", CheckOutTime: out, ExpectedDurationMinutes: 10, Status: models.HallPassOverdue},
		{GroupID: "p1", MemberID: "3", MemberName: "Cy", CheckOutTime: out, ExpectedDurationMinutes: 5, Status: models.HallPassOverdue},
		{GroupID: "gone", MemberID: "4", MemberName: "Dee", CheckOutTime: out, ExpectedDurationMinutes: 5, Status: models.HallPassOverdue},
	})

	if len(sender.msgs) != 2 {
		t.Fatalf("messages = %+v", sender.msgs)
	}
	if sender.msgs[0].chatID != 300 || !strings.Contains(sender.msgs[0].text, "Zed") {
		t.Errorf("first message = %+v", sender.msgs[0])
	}
	p1 := sender.msgs[1]
	if p1.chatID != 100 || !strings.Contains(p1.text, "Ada") || !strings.Contains(p1.text, "Cy") || strings.Contains(p1.text, "Bob") {
		t.Errorf("p1 message = %+v", p1)
	}
}

func TestOverdueNotifierContinuesAfterSendError(t *testing.T) {
	groups := service.NewGroups([]models.GroupConfig{
		{ID: "p1", TelegramChatID: 100},
		{ID: "p2", TelegramChatID: 200},
	}, "")
	sender := &fakeSender{err: errors.New("network down")}
	n := NewOverdueNotifier(sender, groups, service.NewChatBindings(groups.List()), time.Now, time.UTC, quietLogger())

	n.Notify([]*models.HallPass{
		{GroupID: "p1", MemberID: "1", Status: models.HallPassOverdue},
		{GroupID: "p2", MemberID: "2", Status: models.HallPassOverdue},
	})
	if len(sender.msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(sender.msgs))
	}
}

func TestOverdueNotifierFollowsRuntimeLinks(t *testing.T) {
	groups := service.NewGroups([]models.GroupConfig{{ID: "p1", DisplayName: "Period 1"}}, "")
	chats := service.NewChatBindings(groups.List())
	sender := &fakeSender{}
	n := NewOverdueNotifier(sender, groups, chats, time.Now, time.UTC, quietLogger())
	overdue := []*models.HallPass{{GroupID: "p1", MemberID: "1", Status: models.HallPassOverdue}}

	n.Notify(overdue)
	if len(sender.msgs) != 0 {
		t.Fatalf("unlinked group alerted: %+v", sender.msgs)
	}

	chats.Bind("p1", 777)
	n.Notify(overdue)
	if len(sender.msgs) != 1 || sender.msgs[0].chatID != 777 {
		t.Fatalf("messages = %+v", sender.msgs)
	}
}
