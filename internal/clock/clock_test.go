package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2025, 3, 9, 1, 50, 0, 0, time.UTC)
	f := Fake(start)

	f.Advance(15 * time.Minute)
	if got := f.Now(); !got.Equal(start.Add(15 * time.Minute)) {
		t.Fatalf("expected %v, got %v", start.Add(15*time.Minute), got)
	}

	later := start.Add(24 * time.Hour)
	f.Set(later)
	if got := f.Now(); !got.Equal(later) {
		t.Fatalf("expected %v, got %v", later, got)
	}
}
