package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dreamflow/internal/services"
)

type RegisterHandler struct {
	registerService services.RegisterService
	log             *zap.Logger
}

func NewRegisterHandler(registerService services.RegisterService, log *zap.Logger) *RegisterHandler {
	return &RegisterHandler{registerService: registerService, log: log}
}

func (h *RegisterHandler) Register(c *gin.Context) {
	var req services.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.registerService.Register(c.Request.Context(), req)
	if err != nil {
		handleServiceError(c, h.log, err, "User")
		return
	}

	h.log.Info("user registered", zap.Uint("user_id", user.ID))
	respondSuccess(c, http.StatusCreated, user, "Account created successfully")
}
