package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

func TestHallPassOverdueScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()

	pass, err := f.svc.Passes.Checkout(ctx, "p1", "101", "restroom", 10, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if pass.Status != models.HallPassActive || pass.MemberName != "Ada Lovelace" {
		t.Fatalf("unexpected pass: %+v", pass)
	}

	f.clock.Set(start.Add(5 * time.Minute))
	n, err := f.svc.Passes.ReclassifyOverdue(ctx, "")
	if err != nil || n != 0 {
		t.Fatalf("reclassify at +5m: n=%d err=%v", n, err)
	}
	got, _ := f.svc.Passes.Get(ctx, pass.ID)
	if got.Status != models.HallPassActive {
		t.Fatalf("status at +5m = %s", got.Status)
	}

	f.clock.Set(start.Add(11 * time.Minute))
	n, err = f.svc.Passes.ReclassifyOverdue(ctx, "p1")
	if err != nil || n != 1 {
		t.Fatalf("reclassify at +11m: n=%d err=%v", n, err)
	}
	n, err = f.svc.Passes.ReclassifyOverdue(ctx, "p1")
	if err != nil || n != 0 {
		t.Fatalf("reclassify must be idempotent: n=%d err=%v", n, err)
	}

	f.clock.Set(start.Add(15 * time.Minute))
	mins, err := f.svc.Passes.Checkin(ctx, pass.ID, "", "back")
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if mins != 15 {
		t.Fatalf("actual duration = %d, want 15", mins)
	}
	got, _ = f.svc.Passes.Get(ctx, pass.ID)
	if got.Status != models.HallPassCompleted || got.CheckInNotes == nil || *got.CheckInNotes != "back" {
		t.Fatalf("unexpected completed pass: %+v", got)
	}
}

func TestCheckoutRejectsSecondOpenPass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Passes.Checkout(ctx, "p1", "101", "water", 5, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	_, err = f.svc.Passes.Checkout(ctx, "p1", "101", "again", 5, "")
	var active *PassAlreadyActiveError
	if !errors.As(err, &active) {
		t.Fatalf("expected PassAlreadyActiveError, got %v", err)
	}
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatal("PassAlreadyActiveError should be a conflict")
	}
	if active.Pass == nil || active.Pass.ID != first.ID {
		t.Fatalf("conflicting pass = %+v", active.Pass)
	}

	// still conflicts while overdue, and reports the overdue status
	f.clock.Advance(6 * time.Minute)
	_, err = f.svc.Passes.Checkout(ctx, "p1", "101", "again", 5, "")
	if !errors.As(err, &active) || active.Pass.Status != models.HallPassOverdue {
		t.Fatalf("expected overdue conflict, got %v", err)
	}

	open, err := f.passes.List(ctx, repository.PassFilters{GroupID: "p1", Statuses: models.OpenStatuses})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected exactly one open pass, got %d", len(open))
	}
}

func TestConcurrentCheckoutSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Passes.Checkout(ctx, "p1", "102", "", 0, "")
			mu.Lock()
			defer mu.Unlock()
			var active *PassAlreadyActiveError
			switch {
			case err == nil:
				wins++
			case errors.As(err, &active):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 || conflicts != 15 {
		t.Fatalf("wins=%d conflicts=%d", wins, conflicts)
	}
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Passes.Checkout(ctx, "p1", "101", "", -5, ""); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	if _, err := f.svc.Passes.Checkout(ctx, "p1", "999", "", 5, ""); !errors.Is(err, ErrMemberNotInRoster) {
		t.Fatalf("expected ErrMemberNotInRoster, got %v", err)
	}
	if _, err := f.svc.Passes.Checkout(ctx, "p1", "", "", 5, ""); !errors.Is(err, ErrEmptyMemberID) {
		t.Fatalf("expected ErrEmptyMemberID, got %v", err)
	}

	pass, err := f.svc.Passes.Checkout(ctx, "p1", "101", "", 0, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if pass.ExpectedDurationMinutes != 10 {
		t.Fatalf("default duration = %d", pass.ExpectedDurationMinutes)
	}
}

func TestCheckinErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Passes.Checkin(ctx, 42, "", ""); !errors.Is(err, ErrPassNotFound) {
		t.Fatalf("expected ErrPassNotFound, got %v", err)
	}

	pass, err := f.svc.Passes.Checkout(ctx, "p1", "101", "", 5, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := f.svc.Passes.Checkin(ctx, pass.ID, "", ""); err != nil {
		t.Fatalf("checkin: %v", err)
	}
	_, err = f.svc.Passes.Checkin(ctx, pass.ID, "", "")
	if !errors.Is(err, ErrPassNotActive) || !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrPassNotActive, got %v", err)
	}
}

func TestCheckinAcrossDSTChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 01:50 CDT; clocks fall back to 01:00 CST at 02:00 CDT
	out := time.Date(2025, 11, 2, 6, 50, 0, 0, time.UTC)
	f.clock.Set(out)
	pass, err := f.svc.Passes.Checkout(ctx, "p1", "101", "", 30, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	f.clock.Set(out.Add(20 * time.Minute)) // 01:10 CST on the wall clock
	mins, err := f.svc.Passes.Checkin(ctx, pass.ID, "", "")
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if mins != 20 {
		t.Fatalf("duration across fall-back = %d, want 20", mins)
	}
}

func TestCheckinAcrossMidnight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.clock.Set(time.Date(2025, 10, 28, 23, 55, 0, 0, chicago))
	pass, err := f.svc.Passes.Checkout(ctx, "p1", "101", "", 10, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	f.clock.Advance(7*time.Minute + 59*time.Second)
	mins, err := f.svc.Passes.Checkin(ctx, pass.ID, "", "")
	if err != nil {
		t.Fatalf("checkin: %v", err)
	}
	if mins != 7 {
		t.Fatalf("duration = %d, want floor of 7m59s", mins)
	}
}

func TestActiveOrOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Passes.Checkout(ctx, "p1", "101", "", 5, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	f.clock.Advance(3 * time.Minute)
	second, err := f.svc.Passes.Checkout(ctx, "p1", "102", "", 10, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	done, err := f.svc.Passes.Checkout(ctx, "p1", "007", "", 10, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := f.svc.Passes.Checkin(ctx, done.ID, "", ""); err != nil {
		t.Fatalf("checkin: %v", err)
	}

	f.clock.Advance(3 * time.Minute)
	open, err := f.svc.Passes.ActiveOrOverdue(ctx, "p1")
	if err != nil {
		t.Fatalf("active or overdue: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open passes, got %d", len(open))
	}
	if open[0].ID != second.ID || open[0].Status != models.HallPassActive {
		t.Fatalf("most recent checkout should come first and be active: %+v", open[0])
	}
	if open[1].ID != first.ID || open[1].Status != models.HallPassOverdue {
		t.Fatalf("first pass should be overdue: %+v", open[1])
	}

	stored, _ := f.passes.GetByID(ctx, first.ID)
	if stored.Status != models.HallPassOverdue {
		t.Fatalf("read should persist the overdue flip, stored status = %s", stored.Status)
	}
}

func TestHistoryByCivilDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 23:30 in Chicago on the 28th is the 29th in UTC
	f.clock.Set(time.Date(2025, 10, 28, 23, 30, 0, 0, chicago))
	late, err := f.svc.Passes.Checkout(ctx, "p1", "101", "", 5, "")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	f.clock.Set(time.Date(2025, 10, 29, 8, 0, 0, 0, chicago))
	if _, err := f.svc.Passes.Checkout(ctx, "p1", "102", "", 5, ""); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	day := models.Day("2025-10-28")
	passes, err := f.svc.Passes.History(ctx, "p1", &day)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(passes) != 1 || passes[0].ID != late.ID {
		t.Fatalf("history for %s = %+v", day, passes)
	}

	all, err := f.svc.Passes.History(ctx, "p1", nil)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 2 || all[0].MemberID != "102" {
		t.Fatalf("unfiltered history = %+v", all)
	}

	bad := models.Day("yesterday")
	if _, err := f.svc.Passes.History(ctx, "p1", &bad); !errors.Is(err, ErrInvalidDay) {
		t.Fatalf("expected ErrInvalidDay, got %v", err)
	}
}

func TestOverdueSweeper(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Passes.Checkout(ctx, "p1", "101", "", 5, ""); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	var got []*models.HallPass
	callback := func(passes []*models.HallPass) { got = append(got, passes...) }

	f.svc.Sweeper.Sweep(ctx, callback)
	if len(got) != 0 {
		t.Fatalf("nothing is overdue yet, got %d", len(got))
	}

	f.clock.Advance(6 * time.Minute)
	f.svc.Sweeper.Sweep(ctx, callback)
	f.svc.Sweeper.Sweep(ctx, callback)
	if len(got) != 1 || got[0].MemberID != "101" {
		t.Fatalf("callback passes = %+v", got)
	}

	stats := f.svc.Sweeper.Stats()
	if stats.Runs != 3 || stats.Flipped != 1 || stats.Errors != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestOverdueSweeperRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.Sweeper.Run(ctx, time.Millisecond, nil)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
