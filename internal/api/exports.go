package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/Kerhoff/rollcall/internal/export"
)

// respondWorkbook streams a rendered workbook as a download.
func (s *Server) respondWorkbook(w http.ResponseWriter, buf *bytes.Buffer, name string) {
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.WithError(err).WithField("file", name).Error("failed to write workbook")
	}
}

func (s *Server) handleExportAttendance(w http.ResponseWriter, r *http.Request) {
	day, err := s.queryDay(r)
	if err != nil {
		s.respondServiceError(w, err, "parse date")
		return
	}
	summary, err := s.svc.DaySummary(r.Context(), r.URL.Query().Get("group"), day)
	if err != nil {
		s.respondServiceError(w, err, "load attendance")
		return
	}
	buf, name, err := export.Attendance(summary, s.svc.Location())
	if err != nil {
		s.respondServiceError(w, err, "export attendance")
		return
	}
	s.respondWorkbook(w, buf, name)
}

func (s *Server) handleExportAnalytics(w http.ResponseWriter, r *http.Request) {
	group, err := s.svc.Groups.Resolve(r.URL.Query().Get("group"))
	if err != nil {
		s.respondServiceError(w, err, "resolve group")
		return
	}
	report, err := s.svc.GroupAnalytics(r.Context(), group.ID)
	if err != nil {
		s.respondServiceError(w, err, "compute analytics")
		return
	}
	buf, name, err := export.Analytics(group.ID, report)
	if err != nil {
		s.respondServiceError(w, err, "export analytics")
		return
	}
	s.respondWorkbook(w, buf, name)
}

func (s *Server) handleExportRoster(w http.ResponseWriter, r *http.Request) {
	group, err := s.svc.Groups.Resolve(r.URL.Query().Get("group"))
	if err != nil {
		s.respondServiceError(w, err, "resolve group")
		return
	}
	members, err := s.svc.Rosters.Load(r.Context(), group.ID)
	if err != nil {
		s.respondServiceError(w, err, "load roster")
		return
	}
	buf, name, err := export.Roster(group.ID, members)
	if err != nil {
		s.respondServiceError(w, err, "export roster")
		return
	}
	s.respondWorkbook(w, buf, name)
}

func (s *Server) handleExportHallPasses(w http.ResponseWriter, r *http.Request) {
	group, err := s.svc.Groups.Resolve(r.URL.Query().Get("group"))
	if err != nil {
		s.respondServiceError(w, err, "resolve group")
		return
	}
	day, err := optionalDay(r)
	if err != nil {
		s.respondServiceError(w, err, "parse date")
		return
	}
	passes, err := s.svc.Passes.History(r.Context(), group.ID, day)
	if err != nil {
		s.respondServiceError(w, err, "load hall pass history")
		return
	}
	buf, name, err := export.HallPasses(group.ID, day, passes, s.svc.Location())
	if err != nil {
		s.respondServiceError(w, err, "export hall passes")
		return
	}
	s.respondWorkbook(w, buf, name)
}
