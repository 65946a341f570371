package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/attestra/attestra-backend/internal/pkg/logger"
	"github.com/attestra/attestra-backend/internal/requestdata"
	"github.com/attestra/attestra-backend/internal/services"
)

type EvidenceHandler struct {
	log           *logger.Logger
	evidenceSvc   services.EvidenceService
	complianceSvc services.ComplianceService
}

func NewEvidenceHandler(log *logger.Logger, evidenceSvc services.EvidenceService, complianceSvc services.ComplianceService) *EvidenceHandler {
	return &EvidenceHandler{
		log:           log.With("handler", "EvidenceHandler"),
		evidenceSvc:   evidenceSvc,
		complianceSvc: complianceSvc,
	}
}

// GET /api/sessions/:id/evidence
func (h *EvidenceHandler) GetSessionEvidence(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	evidence, err := h.evidenceSvc.GetBySession(c.Request.Context(), nil, rd.TenantID, sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"evidence": evidence})
}

// GET /api/sessions/:id/evidence/verify
func (h *EvidenceHandler) VerifySessionEvidence(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	evidence, err := h.evidenceSvc.GetBySession(c.Request.Context(), nil, rd.TenantID, sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	valid, err := h.evidenceSvc.VerifyContentHash(evidence)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"valid": valid, "content_hash": evidence.ContentHash})
}

// GET /api/sessions/:id/uploads
func (h *EvidenceHandler) ListSessionUploads(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	sessionID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	uploads, err := h.complianceSvc.ListBySession(c.Request.Context(), nil, rd.TenantID, sessionID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"uploads": uploads})
}
