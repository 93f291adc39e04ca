package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.CheckIn("p1", "new")
	m.CheckIn("p1", "new")
	m.CheckIn("p1", "already")
	m.PassCheckout("p1")
	m.Overdue("p1", 2)
	m.Overdue("p1", 0)
	m.SetOpenPasses("p1", 3, 1)

	if got := testutil.ToFloat64(m.checkIns.WithLabelValues("p1", "new")); got != 2 {
		t.Fatalf("new check-ins = %v", got)
	}
	if got := testutil.ToFloat64(m.overdueFlipped.WithLabelValues("p1")); got != 2 {
		t.Fatalf("overdue = %v", got)
	}
	if got := testutil.ToFloat64(m.openPasses.WithLabelValues("p1", "active")); got != 3 {
		t.Fatalf("open active = %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CheckIn("p1", "new")
	m.PassCheckout("p1")
	m.PassCheckin("p1")
	m.Overdue("p1", 1)
	m.SetOpenPasses("p1", 1, 1)
	m.StorageError("ledger.save")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).PassCheckin("p2")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `rollcall_hallpass_checkins_total{group="p2"} 1`) {
		t.Fatalf("metrics output missing counter:\n%s", body)
	}
}
