package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/service"
)

// ---------------------------------------------------------------------------
// PresentHandler – /present [group] [YYYY-MM-DD]
// ---------------------------------------------------------------------------

// PresentHandler shows who checked in on a day and who is missing.
type PresentHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewPresentHandler creates a new PresentHandler.
func NewPresentHandler(svc *service.Service, logger *logrus.Logger) *PresentHandler {
	return &PresentHandler{svc: svc, logger: logger}
}

// Handle processes the /present command.
func (h *PresentHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	groupID, day := parseArgs(args)
	groupID = chatGroup(h.svc, message.Chat.ID, groupID)
	if day == nil {
		today := h.svc.Today()
		day = &today
	}

	summary, err := h.svc.DaySummary(context.Background(), groupID, *day)
	if err != nil {
		if text, ok := userError(err); ok {
			return reply(bot, message.Chat.ID, text)
		}
		return fmt.Errorf("load day summary: %w", err)
	}
	group, err := h.svc.Groups.Resolve(summary.GroupID)
	if err != nil {
		return fmt.Errorf("resolve group: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id":  message.Chat.ID,
		"group_id": summary.GroupID,
		"day":      summary.Day,
	}).Info("Sent attendance summary")

	return reply(bot, message.Chat.ID, FormatSummary(group, summary, h.svc.Location()))
}

// FormatSummary renders a day's attendance: present members in check-in
// order, then absent ones.
func FormatSummary(group models.GroupConfig, summary *models.DaySummary, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 *%s, %s*\n", esc(group.DisplayName), summary.Day)
	fmt.Fprintf(&b, "Present: %d, absent: %d\n", len(summary.Present), len(summary.Absent))

	if len(summary.Present) > 0 {
		b.WriteString("\n*Present*\n")
		for i, r := range summary.Present {
			if i == maxListLines {
				fmt.Fprintf(&b, "…and %d more\n", len(summary.Present)-i)
				break
			}
			fmt.Fprintf(&b, "✅ %s %s\n", r.Timestamp.In(loc).Format("15:04"), esc(r.MemberName))
		}
	}
	if len(summary.Absent) > 0 {
		b.WriteString("\n*Absent*\n")
		for i, m := range summary.Absent {
			if i == maxListLines {
				fmt.Fprintf(&b, "…and %d more\n", len(summary.Absent)-i)
				break
			}
			fmt.Fprintf(&b, "❌ %s (%s)\n", esc(m.DisplayName), esc(m.ID))
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// StatsHandler – /stats [group]
// ---------------------------------------------------------------------------

// StatsHandler reports attendance rates over all recorded days.
type StatsHandler struct {
	svc    *service.Service
	logger *logrus.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(svc *service.Service, logger *logrus.Logger) *StatsHandler {
	return &StatsHandler{svc: svc, logger: logger}
}

// Handle processes the /stats command.
func (h *StatsHandler) Handle(bot *tgbotapi.BotAPI, message *tgbotapi.Message, args []string) error {
	groupID, _ := parseArgs(args)
	group, err := h.svc.Groups.Resolve(chatGroup(h.svc, message.Chat.ID, groupID))
	if err != nil {
		text, _ := userError(err)
		return reply(bot, message.Chat.ID, text)
	}

	report, err := h.svc.GroupAnalytics(context.Background(), group.ID)
	if err != nil {
		if text, ok := userError(err); ok {
			return reply(bot, message.Chat.ID, text)
		}
		return fmt.Errorf("compute analytics: %w", err)
	}

	h.logger.WithFields(logrus.Fields{
		"chat_id":  message.Chat.ID,
		"group_id": group.ID,
	}).Info("Sent attendance stats")

	return reply(bot, message.Chat.ID, FormatReport(group, report))
}

// FormatReport renders an attendance report with one line per member.
func FormatReport(group models.GroupConfig, report models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *Attendance: %s*\n", esc(group.DisplayName))
	fmt.Fprintf(&b, "Sessions: %d, students: %d, average: %.1f%%\n",
		report.TotalSessions, report.TotalMembers, report.AvgAttendance)

	if report.TotalSessions == 0 {
		b.WriteString("\n_No attendance has been recorded yet._\n")
		return b.String()
	}

	b.WriteByte('\n')
	for i, m := range report.Members {
		if i == maxListLines {
			fmt.Fprintf(&b, "…and %d more\n", len(report.Members)-i)
			break
		}
		fmt.Fprintf(&b, "• %s: %d/%d (%.1f%%)\n", esc(m.DisplayName),
			m.PresentCount, m.PresentCount+m.AbsentCount, m.AttendanceRate)
	}
	return b.String()
}
