package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dreamflow/internal/services"
)

type RefreshHandler struct {
	authService services.AuthService
	log         *zap.Logger
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func NewRefreshHandler(authService services.AuthService, log *zap.Logger) *RefreshHandler {
	return &RefreshHandler{authService: authService, log: log}
}

// Refresh rotates a refresh token. The presented token cannot be used again.
func (h *RefreshHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	tokens, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		handleServiceError(c, h.log, err, "Refresh token")
		return
	}
	c.JSON(http.StatusOK, tokens)
}
