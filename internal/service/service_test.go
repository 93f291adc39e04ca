package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kerhoff/rollcall/internal/clock"
	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
	"github.com/Kerhoff/rollcall/internal/repository/memory"
)

var chicago = mustLoad("America/Chicago")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

type fixture struct {
	svc     *Service
	clock   *clock.FakeClock
	rosters *memory.RosterRepository
	ledgers repository.LedgerRepository
	passes  repository.PassRepository
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testGroups() *Groups {
	return NewGroups([]models.GroupConfig{
		{ID: "p1", DisplayName: "Period 1", RosterRef: "p1.xlsx", AccessSecret: "letmein"},
		{ID: "p2", DisplayName: "Period 2", RosterRef: "p2.xlsx"},
	}, "p1")
}

// newFixture builds a service over in-memory stores. The clock starts at
// 09:00 on 2025-10-28 in Chicago.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithLedger(t, memory.NewLedgerRepository())
}

func newFixtureWithLedger(t *testing.T, ledgers repository.LedgerRepository) *fixture {
	t.Helper()
	rosters := memory.NewRosterRepository()
	rosters.Put("p1.xlsx", &models.RosterTable{
		Header: []string{"S Number", "Student"},
		Rows: [][]string{
			{"101", "Ada Lovelace"},
			{"102", " Bob Stone "},
			{"007", "Zed Zero"},
		},
	})
	passes := memory.NewHallPassRepository()
	clk := clock.Fake(time.Date(2025, 10, 28, 9, 0, 0, 0, chicago))

	svc := New(quietLogger(), testGroups(), rosters, ledgers, passes, Settings{
		Clock:              clk,
		Location:           chicago,
		DefaultPassMinutes: 10,
	})
	return &fixture{svc: svc, clock: clk, rosters: rosters, ledgers: ledgers, passes: passes}
}

func TestGroupsResolve(t *testing.T) {
	g := testGroups()

	def, err := g.Resolve("")
	if err != nil || def.ID != "p1" {
		t.Fatalf("default group = %+v, %v", def, err)
	}
	if _, err := g.Resolve("nope"); !errors.Is(err, ErrGroupNotFound) || !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
	if got := len(g.List()); got != 2 {
		t.Fatalf("list = %d groups", got)
	}
	if NewGroups(g.List(), "").DefaultID() != "p1" {
		t.Fatal("first group should be the default")
	}
}

func TestDaySummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	day := models.Day("2025-10-28")

	for _, id := range []string{"102", "101"} {
		m, _ := f.svc.Rosters.Lookup(ctx, "p1", id)
		if _, err := f.svc.Ledger.CheckIn(ctx, "p1", day, m, f.clock.Now(), ""); err != nil {
			t.Fatalf("check in %s: %v", id, err)
		}
		f.clock.Advance(time.Minute)
	}

	summary, err := f.svc.DaySummary(ctx, "p1", day)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.Present) != 2 || summary.Present[0].MemberID != "102" {
		t.Fatalf("present should keep check-in order, got %+v", summary.Present)
	}
	if len(summary.Absent) != 1 || summary.Absent[0].ID != "007" {
		t.Fatalf("absent = %+v", summary.Absent)
	}

	empty, err := f.svc.DaySummary(ctx, "p1", "2025-10-01")
	if err != nil {
		t.Fatalf("summary of empty day: %v", err)
	}
	if len(empty.Present) != 0 || len(empty.Absent) != 3 {
		t.Fatalf("empty day summary = %+v", empty)
	}
	if empty.Absent[0].DisplayName != "Ada Lovelace" || empty.Absent[2].DisplayName != "Zed Zero" {
		t.Fatalf("absent members should be sorted by name: %+v", empty.Absent)
	}
}

func TestGroupAnalytics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.rosters.Put("p2.xlsx", &models.RosterTable{
		Header: []string{"name", "s-number"},
		Rows:   [][]string{{"Ada", "101"}, {"Bob", "102"}},
	})

	ledger := map[models.Day][]string{
		"2025-10-27": {"101"},
		"2025-10-28": {"101", "102", "999"},
	}
	for day, ids := range ledger {
		var records []models.AttendanceRecord
		for _, id := range ids {
			records = append(records, models.AttendanceRecord{MemberID: id, GroupID: "p2", Day: day})
		}
		if err := f.ledgers.Save(ctx, "p2", day, records); err != nil {
			t.Fatalf("seed ledger: %v", err)
		}
	}

	report, err := f.svc.GroupAnalytics(ctx, "p2")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if report.TotalSessions != 2 || report.TotalMembers != 2 || report.AvgAttendance != 75 {
		t.Fatalf("unexpected report totals: %+v", report)
	}
	if report.Members[0].DisplayName != "Ada" || report.Members[0].AttendanceRate != 100 {
		t.Fatalf("Ada = %+v", report.Members[0])
	}
	if report.Members[1].PresentCount != 1 || report.Members[1].AbsentCount != 1 {
		t.Fatalf("Bob = %+v", report.Members[1])
	}
}

func TestGroupAnalyticsWithoutHistory(t *testing.T) {
	f := newFixture(t)
	report, err := f.svc.GroupAnalytics(context.Background(), "p1")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if report.TotalSessions != 0 || report.AvgAttendance != 0 || len(report.Members) != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestVerifyGroupSecret(t *testing.T) {
	f := newFixture(t)

	ok, err := f.svc.VerifyGroupSecret("p1", "letmein")
	if err != nil || !ok {
		t.Fatalf("correct secret rejected: %v %v", ok, err)
	}
	if ok, _ := f.svc.VerifyGroupSecret("p1", "wrong"); ok {
		t.Fatal("wrong secret accepted")
	}
	if ok, _ := f.svc.VerifyGroupSecret("p2", ""); !ok {
		t.Fatal("group without secret should be open")
	}
	if _, err := f.svc.VerifyGroupSecret("p9", "x"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestCheckSecretBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckSecret(string(hash), "s3cret") {
		t.Fatal("bcrypt secret rejected")
	}
	if CheckSecret(string(hash), "S3cret") {
		t.Fatal("bcrypt secret accepted with wrong input")
	}
	if CheckSecret("", "") {
		t.Fatal("empty stored secret must never match")
	}
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")
	unlockB := k.Lock("b")
	if k.size() != 2 {
		t.Fatalf("size = %d", k.size())
	}
	unlockA()
	unlockB()
	if k.size() != 0 {
		t.Fatalf("locks leaked: %d", k.size())
	}
}

func TestToday(t *testing.T) {
	f := newFixture(t)
	// 03:00 UTC on the 29th is still the 28th in Chicago
	f.clock.Set(time.Date(2025, 10, 29, 3, 0, 0, 0, time.UTC))
	if got := f.svc.Today(); got != "2025-10-28" {
		t.Fatalf("today = %s", got)
	}
}
