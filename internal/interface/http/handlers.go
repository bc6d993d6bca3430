package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/companion-hub/companion-hub/internal/application/command"
	"github.com/companion-hub/companion-hub/internal/application/query"
	"github.com/companion-hub/companion-hub/internal/application/saga"
	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
	"github.com/companion-hub/companion-hub/internal/interface/http/handlers"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports every dependency check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]any{
			"status": "healthy",
			"uptime": s.Uptime().String(),
		})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

// handleReady fails only when a required dependency is down. A lost Redis
// degrades the service but keeps it ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE & ONBOARDING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type registerRequest struct {
	Role  string `json:"role"`
	Email string `json:"email"`
}

// handleRegister handles POST /api/v1/me
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	claims, _ := handlers.ClaimsFromContext(r.Context())
	email := req.Email
	if email == "" {
		email = claims.Email
	}

	p, err := s.deps.RegisterProfile.Handle(r.Context(), command.RegisterProfileCommand{
		UserID: claims.Subject,
		Email:  email,
		Role:   req.Role,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, query.ToProfileDTO(p))
}

// handleGetProfile handles GET /api/v1/me
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetProfile.Handle(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleGetHome handles GET /api/v1/me/home
func (s *Server) handleGetHome(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetHome.Handle(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

type confirmFocusRequest struct {
	Focus     []string `json:"focus"`
	Companion string   `json:"companion,omitempty"`
}

type onboardingResponse struct {
	Profile     query.ProfileDTO    `json:"profile"`
	Companion   *query.CompanionDTO `json:"companion,omitempty"`
	ConfirmedAt string              `json:"confirmed_at,omitempty"`
}

// handleConfirmFocus handles PUT /api/v1/me/focus
func (s *Server) handleConfirmFocus(w http.ResponseWriter, r *http.Request) {
	var req confirmFocusRequest
	if !s.decode(w, r, &req) {
		return
	}

	focus, err := profile.ParseFocusSet(req.Focus)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var species companion.Species
	if req.Companion != "" {
		if species, err = companion.ParseSpecies(req.Companion); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	res, err := s.deps.Onboarding.Confirm(r.Context(), callerID(r), saga.NewOnboardingState(focus, species))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := onboardingResponse{
		Profile:     query.ToProfileDTO(res.Profile),
		ConfirmedAt: res.ConfirmedAt.Format(time.RFC3339),
	}
	if res.Companion != nil {
		c := query.NewCompanionDTO(*res.Companion, s.deps.Rules)
		out.Companion = &c
	}
	writeJSON(w, r, http.StatusOK, out)
}

type selectCompanionRequest struct {
	Species string `json:"species"`
}

// handleSelectCompanion handles PUT /api/v1/me/companion
func (s *Server) handleSelectCompanion(w http.ResponseWriter, r *http.Request) {
	var req selectCompanionRequest
	if !s.decode(w, r, &req) {
		return
	}
	species, err := companion.ParseSpecies(req.Species)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, st, err := s.deps.Onboarding.SelectCompanion(r.Context(), callerID(r), species)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c := query.NewCompanionDTO(st, s.deps.Rules)
	writeJSON(w, r, http.StatusOK, onboardingResponse{
		Profile:   query.ToProfileDTO(p),
		Companion: &c,
	})
}

type mentorProfileRequest struct {
	Name         string   `json:"name"`
	Bio          string   `json:"bio"`
	SupportAreas []string `json:"support_areas"`
	Availability string   `json:"availability"`
}

// handleSaveMentorProfile handles PUT /api/v1/me/mentor-profile
func (s *Server) handleSaveMentorProfile(w http.ResponseWriter, r *http.Request) {
	var req mentorProfileRequest
	if !s.decode(w, r, &req) {
		return
	}

	p, err := s.deps.SaveMentorProfile.Handle(r.Context(), command.SaveMentorProfileCommand{
		UserID:       callerID(r),
		Name:         req.Name,
		Bio:          req.Bio,
		SupportAreas: req.SupportAreas,
		Availability: req.Availability,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, query.ToProfileDTO(p))
}

// handleGetAssignedMentor handles GET /api/v1/me/mentor. No mentor is a
// successful empty result.
func (s *Server) handleGetAssignedMentor(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetAssignedMentor.Handle(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"mentor": dto})
}

// handleMentorDashboard handles GET /api/v1/mentor/dashboard
func (s *Server) handleMentorDashboard(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetMentorDashboard.Handle(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPANION & SHOP HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type companionResponse struct {
	Outcome   companion.Outcome  `json:"outcome"`
	Companion query.CompanionDTO `json:"companion"`
	Wallet    shared.Wallet      `json:"wallet"`
}

func (s *Server) companionResult(w http.ResponseWriter, r *http.Request, res *command.CompanionResult, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, companionResponse{
		Outcome:   res.Outcome,
		Companion: query.NewCompanionDTO(res.State, s.deps.Rules),
		Wallet:    res.Wallet,
	})
}

// handleGetCompanion handles GET /api/v1/me/companion
func (s *Server) handleGetCompanion(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetCompanion.Handle(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleFeed handles POST /api/v1/me/companion/feed
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Companion.Feed(r.Context(), callerID(r))
	s.companionResult(w, r, res, err)
}

// handleLevelUp handles POST /api/v1/me/companion/level-up
func (s *Server) handleLevelUp(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Companion.LevelUp(r.Context(), callerID(r))
	s.companionResult(w, r, res, err)
}

// handleGetShop handles GET /api/v1/shop
func (s *Server) handleGetShop(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetShop.Handle(r.Context(), callerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

type purchaseRequest struct {
	ItemID string `json:"item_id"`
}

// handlePurchase handles POST /api/v1/shop/purchase
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Companion.Purchase(r.Context(), command.PurchaseFoodCommand{
		UserID: callerID(r),
		ItemID: req.ItemID,
	})
	s.companionResult(w, r, res, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type sendMessageRequest struct {
	Text string `json:"text"`
}

// handleSendMessage handles POST /api/v1/chats/{peerID}/messages
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	m, err := s.deps.SendMessage.Handle(r.Context(), command.SendMessageCommand{
		SenderID: callerID(r),
		PeerID:   r.PathValue("peerID"),
		Text:     req.Text,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, m)
}

// handleGetHistory handles GET /api/v1/chats/{peerID}/messages?after_seq=&limit=
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	afterSeq, err := queryInt64(r, "after_seq", 0)
	if err != nil || afterSeq < 0 {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "after_seq must be a non-negative integer")
		return
	}
	limit, err := queryInt64(r, "limit", 0)
	if err != nil || limit < 0 {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
		return
	}

	dto, err := s.deps.GetHistory.Handle(r.Context(), query.HistoryQuery{
		UserID:   callerID(r),
		PeerID:   r.PathValue("peerID"),
		AfterSeq: afterSeq,
		Limit:    int(limit),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// WELLNESS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListResources handles GET /api/v1/resources?filter=
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, query.ListResources(r.URL.Query().Get("filter")))
}

// handleGetLesson handles GET /api/v1/lessons/{id}
func (s *Server) handleGetLesson(w http.ResponseWriter, r *http.Request) {
	lesson, err := query.GetLesson(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, lesson)
}

type attemptResponse struct {
	ID          string `json:"id"`
	LessonID    string `json:"lesson_id"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// handleStartLesson handles POST /api/v1/lessons/{id}/attempts
func (s *Server) handleStartLesson(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Rewards.StartLesson(r.Context(), callerID(r), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toAttemptResponse(a))
}

type completeLessonRequest struct {
	Answers []int `json:"answers"`
}

type grantResponse struct {
	Granted bool            `json:"granted"`
	Key     string          `json:"key"`
	Reward  wellness.Reward `json:"reward"`
	Wallet  shared.Wallet   `json:"wallet"`
}

func toGrantResponse(g command.GrantResult) grantResponse {
	return grantResponse{Granted: g.Granted, Key: g.Key, Reward: g.Reward, Wallet: g.Wallet}
}

// handleCompleteLesson handles POST /api/v1/lessons/{id}/attempts/{attemptID}/complete
func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request) {
	var req completeLessonRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Rewards.CompleteLesson(r.Context(), command.CompleteLessonCommand{
		UserID:    callerID(r),
		LessonID:  r.PathValue("id"),
		AttemptID: r.PathValue("attemptID"),
		Answers:   req.Answers,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"grant": toGrantResponse(res.GrantResult),
		"score": res.Score,
		"total": res.Total,
	})
}

// handleCheckinForm handles GET /api/v1/checkins/questions
func (s *Server) handleCheckinForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, query.GetCheckinForm())
}

type submitCheckinRequest struct {
	Answers []string `json:"answers"`
}

// handleSubmitCheckin handles POST /api/v1/checkins
func (s *Server) handleSubmitCheckin(w http.ResponseWriter, r *http.Request) {
	var req submitCheckinRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.Rewards.SubmitCheckin(r.Context(), command.SubmitCheckinCommand{
		UserID:  callerID(r),
		Answers: req.Answers,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{
		"grant": toGrantResponse(res.GrantResult),
		"checkin": map[string]any{
			"id":    res.Checkin.ID,
			"kind":  res.Checkin.Kind,
			"date":  res.Checkin.Date,
			"score": res.Checkin.Score(),
		},
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type assignMentorRequest struct {
	StudentID string `json:"student_id"`
	MentorID  string `json:"mentor_id"`
}

// handleAssignMentor handles PUT /admin/v1/assignments
func (s *Server) handleAssignMentor(w http.ResponseWriter, r *http.Request) {
	var req assignMentorRequest
	if !s.decode(w, r, &req) {
		return
	}
	err := s.deps.AssignMentor.Handle(r.Context(), command.AssignMentorCommand{
		StudentID: req.StudentID,
		MentorID:  req.MentorID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, req)
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST & ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// callerID is set by the user middleware on every authenticated route.
func callerID(r *http.Request) string {
	id, _ := handlers.UserIDFromContext(r.Context())
	return id
}

// decode reads a JSON body into dst. An empty body leaves dst zeroed.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_json", "Request body is not valid JSON")
		return false
	}
	return true
}

func queryInt64(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

// writeError maps domain errors to status codes. Store failures get a
// generic message; the cause is only logged.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	message := "An unexpected error occurred"
	var de *shared.DomainError
	if status < http.StatusInternalServerError && errors.As(err, &de) {
		message = de.Message
	} else if status < http.StatusInternalServerError {
		message = err.Error()
	}

	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error("request failed", logger.Err(err), logger.String("step", string(saga.FailedStep(err))))
		if status == http.StatusBadGateway {
			message = "The data store is unavailable, please try again"
		}
	} else {
		log.Debug("request rejected", logger.Err(err), logger.Int("status", status))
	}

	writeJSONError(w, r, status, code, message)
}

func classify(err error) (int, string) {
	switch {
	case shared.IsStore(err):
		return http.StatusBadGateway, "store_unavailable"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case shared.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err), errors.Is(err, shared.ErrAlreadyProcessed):
		return http.StatusConflict, "conflict"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func toAttemptResponse(a wellness.Attempt) attemptResponse {
	out := attemptResponse{
		ID:        a.ID,
		LessonID:  a.LessonID,
		StartedAt: a.StartedAt.Format(time.RFC3339),
	}
	if a.IsCompleted() {
		out.CompletedAt = a.CompletedAt.Format(time.RFC3339)
	}
	return out
}
