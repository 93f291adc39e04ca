package handlers

import (
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/rollcall/internal/clock"
	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository/memory"
	"github.com/Kerhoff/rollcall/internal/service"
)

const linkedChat = int64(500)

func newTestService(t *testing.T) (*service.Service, *clock.FakeClock, *logrus.Logger) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	rosters := memory.NewRosterRepository()
	rosters.Put("p1.xlsx", &models.RosterTable{
		Header: []string{"Name", "s-number"},
		Rows:   [][]string{{"Ada Lovelace", "101"}, {"Bob Stone", "102"}},
	})
	groups := service.NewGroups([]models.GroupConfig{
		{ID: "p1", DisplayName: "Period 1", RosterRef: "p1.xlsx", AccessSecret: "letmein", TelegramChatID: linkedChat},
		{ID: "p2", DisplayName: "Period 2", RosterRef: "p2.xlsx"},
	}, "")
	clk := clock.Fake(time.Date(2025, 10, 28, 14, 0, 0, 0, time.UTC))
	svc := service.New(logger, groups, rosters, memory.NewLedgerRepository(), memory.NewHallPassRepository(), service.Settings{
		Clock:              clk,
		Location:           time.UTC,
		DefaultPassMinutes: 10,
	})
	return svc, clk, logger
}

func pressFrom(chatID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "q",
		From:    &tgbotapi.User{ID: 7, UserName: "msharp"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}
}

func TestPassKeyboard(t *testing.T) {
	kb := PassKeyboard([]*models.HallPass{
		{ID: 3, MemberName: "Ada"},
		{ID: 9, MemberName: "Bob"},
	})
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d", len(kb.InlineKeyboard))
	}
	btn := kb.InlineKeyboard[1][0]
	if btn.Text != "✅ Bob returned" || btn.CallbackData == nil || *btn.CallbackData != "return:9" {
		t.Fatalf("button = %+v", btn)
	}
}

func TestPassReturnHandler(t *testing.T) {
	svc, clk, logger := newTestService(t)
	ctx := context.Background()
	h := NewPassReturnHandler(svc, logger)

	pass, err := svc.Passes.Checkout(ctx, "p1", "101", "restroom", 5, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	data := strconv.FormatInt(pass.ID, 10)
	clk.Advance(4 * time.Minute)

	got, err := h.HandleCallback(pressFrom(999, ReturnAction+":"+data), data)
	if err != nil || !strings.Contains(got, "not linked") {
		t.Fatalf("foreign chat: %q, %v", got, err)
	}
	if stored, _ := svc.Passes.Get(ctx, pass.ID); !stored.IsOpen() {
		t.Fatal("a press from another chat must not close the pass")
	}

	got, err = h.HandleCallback(pressFrom(linkedChat, ReturnAction+":"+data), data)
	if err != nil || got != "✅ Ada Lovelace back after 4 min." {
		t.Fatalf("linked chat: %q, %v", got, err)
	}
	stored, _ := svc.Passes.Get(ctx, pass.ID)
	if stored.Status != models.HallPassCompleted || stored.CheckInNotes == nil || *stored.CheckInNotes != "returned via Telegram by @msharp" {
		t.Fatalf("stored pass = %+v", stored)
	}

	got, err = h.HandleCallback(pressFrom(linkedChat, ReturnAction+":"+data), data)
	if err != nil || !strings.Contains(got, "already back") {
		t.Fatalf("second press: %q, %v", got, err)
	}
	for _, payload := range []string{"999", "abc"} {
		if got, err := h.HandleCallback(pressFrom(linkedChat, ReturnAction+":"+payload), payload); err != nil || !strings.Contains(got, "Unknown") {
			t.Fatalf("payload %q: %q, %v", payload, got, err)
		}
	}
}

func TestLinkAndChatGroup(t *testing.T) {
	svc, _, logger := newTestService(t)
	h := NewLinkHandler(svc, logger)

	if got := chatGroup(svc, linkedChat, ""); got != "p1" {
		t.Fatalf("linked chat group = %q", got)
	}
	if got := chatGroup(svc, 600, ""); got != "" {
		t.Fatalf("unlinked chat group = %q", got)
	}
	if got := chatGroup(svc, linkedChat, "p2"); got != "p2" {
		t.Fatalf("explicit group = %q", got)
	}

	text, err := h.link(600, "p1", "nope")
	if err != nil || !strings.Contains(text, "Wrong group secret") {
		t.Fatalf("bad secret: %q, %v", text, err)
	}
	text, err = h.link(600, "p2", "")
	if err != nil || !strings.Contains(text, "Period 2") {
		t.Fatalf("link p2: %q, %v", text, err)
	}
	if got := chatGroup(svc, 600, ""); got != "p2" {
		t.Fatalf("chat 600 group = %q", got)
	}
	if text, err := h.link(600, "zz", ""); err != nil || !strings.Contains(text, "Unknown group") {
		t.Fatalf("unknown group: %q, %v", text, err)
	}
}
