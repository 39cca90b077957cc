package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dreamflow/internal/middleware"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// GetProfile returns the authenticated caller. The password hash is never serialised.
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	respondSuccess(c, http.StatusOK, user, "")
}
