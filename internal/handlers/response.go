package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dreamflow/internal/middleware"
	"dreamflow/internal/models"
)

func respondSuccess(c *gin.Context, status int, data any, message string) {
	body := gin.H{"success": true}
	if data != nil {
		body["data"] = data
	}
	if message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

func respondError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

// handleServiceError maps domain errors onto HTTP statuses. Anything
// unrecognised is logged and reported as a generic 500.
func handleServiceError(c *gin.Context, log *zap.Logger, err error, resource string) {
	var validation *models.ValidationError
	switch {
	case errors.As(err, &validation):
		respondError(c, http.StatusBadRequest, validation.Error())
	case errors.Is(err, models.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "Incorrect email or password")
	case errors.Is(err, models.ErrInvalidToken):
		c.Header("WWW-Authenticate", "Bearer")
		respondError(c, http.StatusUnauthorized, "Could not validate credentials")
	case errors.Is(err, models.ErrForbidden):
		respondError(c, http.StatusForbidden, "Forbidden")
	case errors.Is(err, models.ErrNotFound):
		respondError(c, http.StatusNotFound, resource+" not found")
	case errors.Is(err, models.ErrConflict):
		respondError(c, http.StatusConflict, err.Error())
	default:
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		respondError(c, http.StatusInternalServerError, "internal server error")
	}
}

func bindError(c *gin.Context, err error) {
	respondError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
}

func requireUser(c *gin.Context) (uint, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "Not authenticated")
		return 0, false
	}
	return id, true
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
