package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examind/test-engine/internal/models"
	"github.com/examind/test-engine/internal/session"
	"github.com/examind/test-engine/internal/utils"
)

// SessionHandler exposes the session engine to the exam UI. It holds no
// state of its own; every invariant lives in internal/session.
type SessionHandler struct {
	manager   *session.Manager
	validator *utils.Validator
	logger    utils.Logger
}

func NewSessionHandler(manager *session.Manager, validator *utils.Validator, logger utils.Logger) *SessionHandler {
	return &SessionHandler{
		manager:   manager,
		validator: validator,
		logger:    logger,
	}
}

// ===== REQUEST / RESPONSE SHAPES =====

type OpenSessionRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type SelectOptionRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	SelectedOption *int   `json:"selected_option" validate:"required,min=0"`
}

type NavigateRequest struct {
	UserID     string  `json:"user_id" validate:"required"`
	QuestionID *int    `json:"question_id"`
	Subject    *string `json:"subject"`
	Direction  *string `json:"direction" validate:"omitempty,oneof=next prev"`
}

type MarkForReviewRequest struct {
	UserID  string `json:"user_id" validate:"required"`
	Advance bool   `json:"advance"` // mark-and-advance
}

type UserRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// SessionView is the snapshot handed to the UI for rendering.
type SessionView struct {
	Session          *models.TestSession        `json:"session"`
	RemainingDisplay string                     `json:"remaining_display"`
	Palette          []session.PaletteEntry     `json:"palette"`
	InputPolicy      session.InputPolicy        `json:"input_policy"`
	BlockedActions   []session.RestrictedAction `json:"blocked_actions"`
	StorageDegraded  bool                       `json:"storage_degraded"`
}

// QuestionView strips grading fields before a question leaves the service.
type QuestionView struct {
	ID      int      `json:"id"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

// ===== HANDLERS =====

// OpenSession creates or resumes the session for (test, user).
// POST /api/v1/tests/:test_id/session
func (h *SessionHandler) OpenSession(c *gin.Context) {
	var req OpenSessionRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	testID := c.Param("test_id")
	eng, _, err := h.manager.Open(c.Request.Context(), testID, req.UserID)
	if err != nil {
		h.logger.LogError(err, "Failed to open session", "test_id", testID, "user_id", req.UserID)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.sessionView(eng))
}

// GetSession returns the current snapshot for palette rendering.
// GET /api/v1/tests/:test_id/session?user_id=...
func (h *SessionHandler) GetSession(c *gin.Context) {
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.sessionView(eng))
}

// GetCurrentQuestion returns the current question without grading fields.
// GET /api/v1/tests/:test_id/session/question?user_id=...
func (h *SessionHandler) GetCurrentQuestion(c *gin.Context) {
	eng, ok := h.engine(c)
	if !ok {
		return
	}
	q, err := eng.CurrentQuestion(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, QuestionView{
		ID:      q.ID,
		Subject: q.Subject,
		Text:    q.Text,
		Options: q.Options,
	})
}

// SelectOption records an answer for the current question.
// POST /api/v1/tests/:test_id/session/answer
func (h *SessionHandler) SelectOption(c *gin.Context) {
	var req SelectOptionRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	eng, ok := h.engineFor(c, req.UserID)
	if !ok {
		return
	}
	if err := eng.SelectOption(c.Request.Context(), *req.SelectedOption); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.sessionView(eng))
}

// ClearResponse clears the current question's selection.
// POST /api/v1/tests/:test_id/session/clear
func (h *SessionHandler) ClearResponse(c *gin.Context) {
	var req UserRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	eng, ok := h.engineFor(c, req.UserID)
	if !ok {
		return
	}
	if err := eng.ClearResponse(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.sessionView(eng))
}

// MarkForReview flags the current question, optionally advancing to the
// next one.
// POST /api/v1/tests/:test_id/session/mark
func (h *SessionHandler) MarkForReview(c *gin.Context) {
	var req MarkForReviewRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	eng, ok := h.engineFor(c, req.UserID)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := eng.MarkForReview(ctx); err != nil {
		respondError(c, err)
		return
	}
	if req.Advance {
		if _, err := eng.NextQuestion(ctx); err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, h.sessionView(eng))
}

// Navigate moves to a question by id, by subject, or by direction.
// POST /api/v1/tests/:test_id/session/navigate
func (h *SessionHandler) Navigate(c *gin.Context) {
	var req NavigateRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	eng, ok := h.engineFor(c, req.UserID)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var err error
	switch {
	case req.QuestionID != nil:
		err = eng.Navigate(ctx, *req.QuestionID)
	case req.Subject != nil:
		_, err = eng.NavigateToSubject(ctx, *req.Subject)
	case req.Direction != nil && *req.Direction == "next":
		_, err = eng.NextQuestion(ctx)
	case req.Direction != nil && *req.Direction == "prev":
		_, err = eng.PrevQuestion(ctx)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "one of question_id, subject or direction is required",
			Code:    "validation_failed",
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.sessionView(eng))
}

// ReportVisibilityLoss registers a tab-switch/visibility violation and
// returns the warning indicator; the third one forces submission.
// POST /api/v1/tests/:test_id/session/visibility
func (h *SessionHandler) ReportVisibilityLoss(c *gin.Context) {
	var req UserRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	eng, ok := h.engineFor(c, req.UserID)
	if !ok {
		return
	}
	warning, err := eng.VisibilityLost(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"warning": warning,
		"session": eng.Snapshot(),
	})
}

// SubmitSession ends the session. Idempotent: resubmitting returns the same
// result.
// POST /api/v1/tests/:test_id/session/submit
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	var req UserRequest
	if !h.bindAndValidate(c, &req) {
		return
	}
	eng, ok := h.engineFor(c, req.UserID)
	if !ok {
		return
	}
	result, err := eng.Submit(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "test submitted",
		Data:    result,
	})
}

// GetResult serves a completed session's result, surviving restarts via the
// persisted copy.
// GET /api/v1/tests/:test_id/result?user_id=...
func (h *SessionHandler) GetResult(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "user_id is required", Code: "validation_failed"})
		return
	}
	result, err := h.manager.Result(c.Request.Context(), c.Param("test_id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ===== HELPERS =====

func (h *SessionHandler) bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid request body", Code: "bad_request"})
		return false
	}
	if err := h.validator.Validate(req); err != nil {
		respondError(c, err)
		return false
	}
	return true
}

func (h *SessionHandler) engine(c *gin.Context) (*session.Engine, bool) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "user_id is required", Code: "validation_failed"})
		return nil, false
	}
	return h.engineFor(c, userID)
}

func (h *SessionHandler) engineFor(c *gin.Context, userID string) (*session.Engine, bool) {
	eng, err := h.manager.Get(c.Param("test_id"), userID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return eng, true
}

func (h *SessionHandler) sessionView(eng *session.Engine) SessionView {
	snap := eng.Snapshot()
	policy := eng.InputPolicy()
	view := SessionView{
		Session:         snap,
		InputPolicy:     policy,
		BlockedActions:  policy.BlockedActions(),
		StorageDegraded: eng.StoreError() != nil,
	}
	if snap == nil {
		return view
	}
	view.RemainingDisplay = utils.FormatSeconds(snap.RemainingTime)
	// Palette only fails before Open, which the snapshot guard above rules
	// out.
	palette, err := eng.Palette()
	if err != nil {
		h.logger.LogError(err, "Failed to derive palette")
		return view
	}
	view.Palette = palette
	return view
}
