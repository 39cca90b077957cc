package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dreamflow/internal/services"
)

type LogoutHandler struct {
	authService services.AuthService
	log         *zap.Logger
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func NewLogoutHandler(authService services.AuthService, log *zap.Logger) *LogoutHandler {
	return &LogoutHandler{authService: authService, log: log}
}

// Logout revokes the refresh token. Unknown tokens are not an error so the
// call is idempotent.
func (h *LogoutHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.authService.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		handleServiceError(c, h.log, err, "Refresh token")
		return
	}
	respondSuccess(c, http.StatusOK, nil, "Successfully logged out")
}
