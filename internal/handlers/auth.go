package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/attestra/attestra-backend/internal/services"
	"github.com/attestra/attestra-backend/internal/types"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// POST /api/register
func (ah *AuthHandler) Register(c *gin.Context) {
	var req struct {
		TenantSlug    string `json:"tenant_slug"`
		Email         string `json:"email"`
		FirstName     string `json:"first_name"`
		LastName      string `json:"last_name"`
		RoleProfileID string `json:"role_profile_id"`
		Password      string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	emp := &types.Employee{
		Email:         req.Email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		RoleProfileID: req.RoleProfileID,
	}
	created, err := ah.authService.RegisterEmployee(c.Request.Context(), req.TenantSlug, emp, req.Password)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"employee": created})
}

// POST /api/login
func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		TenantSlug string `json:"tenant_slug"`
		Email      string `json:"email"`
		Password   string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	token, emp, err := ah.authService.Login(c.Request.Context(), req.TenantSlug, req.Email, req.Password)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"access_token": token, "employee": emp})
}
