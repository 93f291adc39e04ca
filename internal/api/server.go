package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/rollcall/internal/evidence"
	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
	"github.com/Kerhoff/rollcall/internal/service"
)

// maxBodyBytes bounds request bodies; check-in bodies carry a base64 photo.
const maxBodyBytes = 8 << 20

// Header names for the two secrets the API accepts.
const (
	HeaderAdminPassword = "X-Admin-Password"
	HeaderGroupSecret   = "X-Group-Secret"
)

// Server provides the HTTP API over the attendance service.
type Server struct {
	svc           *service.Service
	photos        *evidence.Store
	adminPassword string
	logger        *logrus.Logger
	mux           *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it. An empty
// adminPassword disables the admin routes.
func NewServer(svc *service.Service, photos *evidence.Store, adminPassword string, logger *logrus.Logger) *Server {
	s := &Server{
		svc:           svc,
		photos:        photos,
		adminPassword: adminPassword,
		logger:        logger,
		mux:           http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// API – Groups
	s.mux.HandleFunc("GET /api/groups", s.handleListGroups)
	s.mux.HandleFunc("POST /api/groups/{group}/verify", s.handleVerifyGroup)

	// API – Attendance
	s.mux.HandleFunc("POST /api/checkin", s.handleCheckIn)
	s.mux.HandleFunc("GET /api/history/days", s.admin(s.handleListDays))
	s.mux.HandleFunc("GET /api/history", s.admin(s.handleDaySummary))
	s.mux.HandleFunc("GET /api/analytics", s.admin(s.handleAnalytics))

	// API – Roster
	s.mux.HandleFunc("GET /api/roster", s.admin(s.handleGetRoster))
	s.mux.HandleFunc("POST /api/roster", s.admin(s.handleAddRoster))

	// API – Hall passes
	s.mux.HandleFunc("POST /api/hall-pass/checkout", s.handleCheckout)
	s.mux.HandleFunc("POST /api/hall-pass/checkin", s.handlePassCheckin)
	s.mux.HandleFunc("GET /api/hall-pass/status/{group}", s.handlePassStatus)
	s.mux.HandleFunc("GET /api/hall-pass/history", s.admin(s.handlePassHistory))
	s.mux.HandleFunc("GET /api/hall-pass/sweeper", s.admin(s.handleSweeperStats))

	// Exports
	s.mux.HandleFunc("GET /export/attendance", s.admin(s.handleExportAttendance))
	s.mux.HandleFunc("GET /export/analytics", s.admin(s.handleExportAnalytics))
	s.mux.HandleFunc("GET /export/students", s.admin(s.handleExportRoster))
	s.mux.HandleFunc("GET /export/hall-passes", s.admin(s.handleExportHallPasses))

	// Evidence photos
	s.mux.HandleFunc("GET /photos/{path...}", s.admin(s.handlePhoto))
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps an error's kind to a status code. Unexpected
// errors are logged and hidden behind a generic message.
func (s *Server) respondServiceError(w http.ResponseWriter, err error, action string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Errorf("failed to %s", action)
		if status == http.StatusServiceUnavailable {
			s.respondError(w, status, "storage unavailable, try again")
			return
		}
		s.respondError(w, status, "failed to "+action)
		return
	}
	s.respondError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, repository.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the request body into dst and returns an error message on
// failure.  The caller should return immediately when ok == false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) (ok bool, errMsg string) {
	if r.Body == nil {
		return false, "request body is empty"
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return false, fmt.Sprintf("invalid JSON: %v", err)
	}
	return true, ""
}

// queryDay reads the date query parameter, defaulting to today.
func (s *Server) queryDay(r *http.Request) (models.Day, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return s.svc.Today(), nil
	}
	day, err := models.ParseDay(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", service.ErrInvalidDay, raw)
	}
	return day, nil
}

// ---------------------------------------------------------------------------
// Access
// ---------------------------------------------------------------------------

// admin wraps h so it only runs for requests carrying the admin password,
// either in X-Admin-Password or as the basic auth password.
func (s *Server) admin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminPassword == "" {
			s.respondError(w, http.StatusForbidden, "admin access is disabled")
			return
		}
		supplied := r.Header.Get(HeaderAdminPassword)
		if supplied == "" {
			_, supplied, _ = r.BasicAuth()
		}
		if !service.CheckSecret(s.adminPassword, supplied) {
			w.Header().Set("WWW-Authenticate", `Basic realm="rollcall"`)
			s.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h(w, r)
	}
}

// requireGroup resolves the group and checks its access secret. It writes
// the error response and returns false on failure.
func (s *Server) requireGroup(w http.ResponseWriter, r *http.Request, groupID string) (models.GroupConfig, bool) {
	group, err := s.svc.Groups.Resolve(groupID)
	if err != nil {
		s.respondServiceError(w, err, "resolve group")
		return models.GroupConfig{}, false
	}
	ok, err := s.svc.VerifyGroupSecret(group.ID, r.Header.Get(HeaderGroupSecret))
	if err != nil {
		s.respondServiceError(w, err, "verify group secret")
		return models.GroupConfig{}, false
	}
	if !ok {
		s.respondError(w, http.StatusForbidden, "invalid group secret")
		return models.GroupConfig{}, false
	}
	return group, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Groups
// ---------------------------------------------------------------------------

type groupResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Protected bool   `json:"protected"`
	Default   bool   `json:"default"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.svc.Groups.List()
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupResponse{
			ID:        g.ID,
			Name:      g.DisplayName,
			Protected: g.AccessSecret != "",
			Default:   g.ID == s.svc.Groups.DefaultID(),
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

type verifyRequest struct {
	Secret string `json:"secret"`
}

func (s *Server) handleVerifyGroup(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if ok, msg := s.decodeJSON(w, r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	ok, err := s.svc.VerifyGroupSecret(r.PathValue("group"), req.Secret)
	if err != nil {
		s.respondServiceError(w, err, "verify group secret")
		return
	}
	if !ok {
		s.respondJSON(w, http.StatusForbidden, map[string]bool{"ok": false})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ---------------------------------------------------------------------------
// Attendance
// ---------------------------------------------------------------------------

type checkInRequest struct {
	GroupID      string `json:"group_id"`
	MemberID     string `json:"s_number"`
	ImageDataURL string `json:"image_data_url"`
}

type checkInResponse struct {
	OK        bool                 `json:"ok"`
	Status    models.CheckInStatus `json:"status"`
	FirstName string               `json:"first_name"`
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if ok, msg := s.decodeJSON(w, r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	req.MemberID = strings.TrimSpace(req.MemberID)
	if req.MemberID == "" {
		s.respondError(w, http.StatusBadRequest, "s_number is required")
		return
	}
	if !strings.HasPrefix(req.ImageDataURL, "data:image/") {
		s.respondError(w, http.StatusBadRequest, "missing or invalid photo")
		return
	}

	group, ok := s.requireGroup(w, r, req.GroupID)
	if !ok {
		return
	}

	// reject unknown members before writing their photo
	if _, err := s.svc.Rosters.Lookup(r.Context(), group.ID, req.MemberID); err != nil {
		s.respondServiceError(w, err, "look up member")
		return
	}

	prefix := group.PhotosPrefix
	if prefix == "" {
		prefix = group.ID
	}
	ref, err := s.photos.SaveDataURL(s.svc.Today(), prefix+"_"+req.MemberID, req.ImageDataURL)
	if err != nil {
		s.respondServiceError(w, err, "store photo")
		return
	}

	result, firstName, err := s.svc.CheckInNow(r.Context(), group.ID, req.MemberID, ref)
	if err != nil {
		s.respondServiceError(w, err, "check in")
		return
	}

	s.respondJSON(w, http.StatusOK, checkInResponse{
		OK:        true,
		Status:    result.Status,
		FirstName: firstName,
	})
}

func (s *Server) handleListDays(w http.ResponseWriter, r *http.Request) {
	days, err := s.svc.Ledger.ListAvailableDays(r.Context(), r.URL.Query().Get("group"))
	if err != nil {
		s.respondServiceError(w, err, "list days")
		return
	}
	if days == nil {
		days = []models.Day{}
	}
	s.respondJSON(w, http.StatusOK, days)
}

func (s *Server) handleDaySummary(w http.ResponseWriter, r *http.Request) {
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
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.GroupAnalytics(r.Context(), r.URL.Query().Get("group"))
	if err != nil {
		s.respondServiceError(w, err, "compute analytics")
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

// ---------------------------------------------------------------------------
// Roster
// ---------------------------------------------------------------------------

func (s *Server) handleGetRoster(w http.ResponseWriter, r *http.Request) {
	members, err := s.svc.Rosters.Load(r.Context(), r.URL.Query().Get("group"))
	if err != nil {
		s.respondServiceError(w, err, "load roster")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "students": members})
}

type addRosterRequest struct {
	GroupID  string          `json:"group_id"`
	Name     string          `json:"name"`
	MemberID string          `json:"s_number"`
	Entries  []models.Member `json:"entries"`
}

func (s *Server) handleAddRoster(w http.ResponseWriter, r *http.Request) {
	var req addRosterRequest
	if ok, msg := s.decodeJSON(w, r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	entries := req.Entries
	if req.Name != "" || req.MemberID != "" {
		entries = append(entries, models.Member{ID: req.MemberID, DisplayName: req.Name})
	}
	if len(entries) == 0 {
		s.respondError(w, http.StatusBadRequest, "no entries provided")
		return
	}

	added, err := s.svc.Rosters.AddMembers(r.Context(), req.GroupID, entries)
	if err != nil {
		s.respondServiceError(w, err, "update roster")
		return
	}
	if added == nil {
		added = []models.Member{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "added": added})
}

// ---------------------------------------------------------------------------
// Hall passes
// ---------------------------------------------------------------------------

type checkoutRequest struct {
	GroupID      string `json:"group_id"`
	MemberID     string `json:"s_number"`
	Reason       string `json:"reason"`
	Duration     int    `json:"duration"`
	ImageDataURL string `json:"image_data_url"`
}

type checkoutResponse struct {
	PassID      int64            `json:"pass_id"`
	PhotoPath   string           `json:"photo_path,omitempty"`
	StudentName string           `json:"student_name"`
	Pass        *models.HallPass `json:"pass"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if ok, msg := s.decodeJSON(w, r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if strings.TrimSpace(req.MemberID) == "" {
		s.respondError(w, http.StatusBadRequest, "s_number is required")
		return
	}

	group, ok := s.requireGroup(w, r, req.GroupID)
	if !ok {
		return
	}

	var ref string
	if req.ImageDataURL != "" {
		var err error
		ref, err = s.photos.SaveDataURL(s.svc.Today(), "hallpass_out_"+req.MemberID, req.ImageDataURL)
		if err != nil {
			s.respondServiceError(w, err, "store photo")
			return
		}
	}

	pass, err := s.svc.Passes.Checkout(r.Context(), group.ID, req.MemberID, req.Reason, req.Duration, ref)
	if err != nil {
		var active *service.PassAlreadyActiveError
		if errors.As(err, &active) {
			s.respondJSON(w, http.StatusConflict, map[string]any{
				"error": "student already has active hall pass",
				"pass":  active.Pass,
			})
			return
		}
		s.respondServiceError(w, err, "check out hall pass")
		return
	}

	s.respondJSON(w, http.StatusCreated, checkoutResponse{
		PassID:      pass.ID,
		PhotoPath:   ref,
		StudentName: pass.MemberName,
		Pass:        pass,
	})
}

type passCheckinRequest struct {
	PassID       int64  `json:"pass_id"`
	Notes        string `json:"notes"`
	ImageDataURL string `json:"image_data_url"`
}

func (s *Server) handlePassCheckin(w http.ResponseWriter, r *http.Request) {
	var req passCheckinRequest
	if ok, msg := s.decodeJSON(w, r, &req); !ok {
		s.respondError(w, http.StatusBadRequest, msg)
		return
	}
	if req.PassID == 0 {
		s.respondError(w, http.StatusBadRequest, "pass_id is required")
		return
	}

	pass, err := s.svc.Passes.Get(r.Context(), req.PassID)
	if err != nil {
		s.respondServiceError(w, err, "get hall pass")
		return
	}
	if _, ok := s.requireGroup(w, r, pass.GroupID); !ok {
		return
	}

	var ref string
	if req.ImageDataURL != "" {
		ref, err = s.photos.SaveDataURL(s.svc.Today(), "hallpass_in_"+pass.MemberID, req.ImageDataURL)
		if err != nil {
			s.respondServiceError(w, err, "store photo")
			return
		}
	}

	minutes, err := s.svc.Passes.Checkin(r.Context(), req.PassID, ref, req.Notes)
	if err != nil {
		s.respondServiceError(w, err, "check in hall pass")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"photo_path":      ref,
		"actual_duration": minutes,
	})
}

func (s *Server) handlePassStatus(w http.ResponseWriter, r *http.Request) {
	passes, err := s.svc.Passes.ActiveOrOverdue(r.Context(), r.PathValue("group"))
	if err != nil {
		s.respondServiceError(w, err, "list hall passes")
		return
	}
	if passes == nil {
		passes = []*models.HallPass{}
	}
	s.respondJSON(w, http.StatusOK, passes)
}

// optionalDay reads the date query parameter; absent means no filter.
func optionalDay(r *http.Request) (*models.Day, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return nil, nil
	}
	day, err := models.ParseDay(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", service.ErrInvalidDay, raw)
	}
	return &day, nil
}

func (s *Server) handlePassHistory(w http.ResponseWriter, r *http.Request) {
	day, err := optionalDay(r)
	if err != nil {
		s.respondServiceError(w, err, "parse date")
		return
	}
	passes, err := s.svc.Passes.History(r.Context(), r.URL.Query().Get("group"), day)
	if err != nil {
		s.respondServiceError(w, err, "load hall pass history")
		return
	}
	if passes == nil {
		passes = []*models.HallPass{}
	}
	s.respondJSON(w, http.StatusOK, passes)
}

func (s *Server) handleSweeperStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.svc.Sweeper.Stats())
}

// ---------------------------------------------------------------------------
// Photos
// ---------------------------------------------------------------------------

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	p, err := s.photos.Resolve(r.PathValue("path"))
	if err != nil {
		s.respondServiceError(w, err, "resolve photo")
		return
	}
	http.ServeFile(w, r, p)
}
