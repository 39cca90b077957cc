package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dreamflow/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
	log         *zap.Logger
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func NewAuthHandler(authService services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// Login exchanges credentials for an access token and a refresh token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.authService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(c, h.log, err, "User")
		return
	}

	tokens, err := h.authService.IssueToken(c.Request.Context(), user)
	if err != nil {
		handleServiceError(c, h.log, err, "User")
		return
	}

	h.log.Info("user logged in", zap.Uint("user_id", user.ID))
	c.JSON(http.StatusOK, tokens)
}
