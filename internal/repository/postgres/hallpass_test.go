package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

// openTestDB connects to the database named by ROLLCALL_TEST_POSTGRES_URL.
// The schema must already be migrated.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("ROLLCALL_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("ROLLCALL_TEST_POSTGRES_URL not set")
	}
	db, err := sql.Open("postgres", url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`TRUNCATE hall_passes RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

func TestHallPassLifecycle(t *testing.T) {
	repo := NewHallPassRepository(openTestDB(t))
	ctx := context.Background()
	out := time.Date(2025, 10, 28, 14, 0, 0, 0, time.UTC)

	pass, err := repo.Create(ctx, &models.HallPass{
		GroupID: "p1", MemberID: "101", MemberName: "Ada",
		CheckOutTime: out, ExpectedDurationMinutes: 10, CheckOutReason: "restroom",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = repo.Create(ctx, &models.HallPass{
		GroupID: "p1", MemberID: "101", CheckOutTime: out, ExpectedDurationMinutes: 5,
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	flipped, err := repo.MarkOverdue(ctx, "p1", out.Add(11*time.Minute))
	if err != nil {
		t.Fatalf("mark overdue: %v", err)
	}
	if len(flipped) != 1 || flipped[0].Status != models.HallPassOverdue {
		t.Fatalf("expected one overdue pass, got %+v", flipped)
	}

	in := out.Add(15 * time.Minute)
	mins := 15
	pass.CheckInTime = &in
	pass.ActualDurationMinutes = &mins
	if err := repo.Complete(ctx, pass); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.Complete(ctx, pass); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict on second complete, got %v", err)
	}
}
