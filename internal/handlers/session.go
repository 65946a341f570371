package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/requestdata"
	"github.com/attestra/attestra-backend/internal/services"
)

type SessionHandler struct {
	log        *logger.Logger
	sessionSvc services.SessionService
}

func NewSessionHandler(log *logger.Logger, sessionSvc services.SessionService) *SessionHandler {
	return &SessionHandler{
		log:        log.With("handler", "SessionHandler"),
		sessionSvc: sessionSvc,
	}
}

// POST /api/sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	session, modules, err := h.sessionSvc.StartSession(c.Request.Context(), rd.TenantID, rd.EmployeeID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": session, "modules": modules})
}

// GET /api/sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	sessions, err := h.sessionSvc.ListSessions(c.Request.Context(), rd.TenantID, rd.EmployeeID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"sessions": sessions})
}

// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	session, modules, err := h.sessionSvc.GetSession(c.Request.Context(), rd.TenantID, rd.EmployeeID, sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session, "modules": modules})
}

// POST /api/sessions/:id/modules/:index/open
func (h *SessionHandler) OpenModule(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	moduleIndex, ok := parseIntParam(c, "index")
	if !ok {
		return
	}
	module, err := h.sessionSvc.OpenModule(c.Request.Context(), rd.TenantID, rd.EmployeeID, sessionID, moduleIndex)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"module": module})
}

// POST /api/sessions/:id/modules/:index/scenarios
func (h *SessionHandler) SubmitScenarioResponse(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	moduleIndex, ok := parseIntParam(c, "index")
	if !ok {
		return
	}
	var req struct {
		ScenarioIndex int    `json:"scenario_index"`
		Response      string `json:"response"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	module, err := h.sessionSvc.SubmitScenarioResponse(c.Request.Context(), rd.TenantID, rd.EmployeeID, sessionID, moduleIndex, req.ScenarioIndex, req.Response)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"module": module})
}

// POST /api/sessions/:id/modules/:index/quiz
func (h *SessionHandler) SubmitQuizAnswer(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	moduleIndex, ok := parseIntParam(c, "index")
	if !ok {
		return
	}
	var req struct {
		QuestionIndex  int    `json:"question_index"`
		SelectedOption string `json:"selected_option"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	result, err := h.sessionSvc.SubmitQuizAnswer(c.Request.Context(), rd.TenantID, rd.EmployeeID, sessionID, moduleIndex, req.QuestionIndex, req.SelectedOption)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

// POST /api/sessions/:id/remediation
func (h *SessionHandler) StartRemediation(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	session, err := h.sessionSvc.StartRemediation(c.Request.Context(), rd.TenantID, rd.EmployeeID, sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

// POST /api/sessions/:id/abandon
func (h *SessionHandler) Abandon(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	session, err := h.sessionSvc.Abandon(c.Request.Context(), rd.TenantID, rd.EmployeeID, sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"session": session})
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return uuid.Nil, false
	}
	return id, true
}

func parseIntParam(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil || v < 0 {
		RespondError(c, http.StatusBadRequest, "invalid_index", err)
		return 0, false
	}
	return v, true
}
