package handlers_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"dreamflow/internal/database"
	"dreamflow/internal/handlers"
	"dreamflow/internal/middleware"
	"dreamflow/internal/models"
	"dreamflow/internal/repositories"
	"dreamflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm/logger"
)

func setupAuthRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	pool, err := database.NewDatabasePool(&database.PoolConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: logger.Silent}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, database.Migrate(pool.DB))

	users := repositories.NewUserRepository(pool.DB)
	auth := services.NewAuthService(users, repositories.NewRefreshTokenRepository(pool.DB), services.AuthConfig{
		Secret:          "handler-test-secret",
		Issuer:          "dreamflow-test",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	log := zap.NewNop()

	router := gin.New()
	router.POST("/api/register", handlers.NewRegisterHandler(services.NewRegisterService(users, bcrypt.MinCost), log).Register)
	router.POST("/api/login", handlers.NewAuthHandler(auth, log).Login)
	router.POST("/api/refresh", handlers.NewRefreshHandler(auth, log).Refresh)
	router.POST("/api/logout", handlers.NewLogoutHandler(auth, log).Logout)
	router.GET("/api/users/me", middleware.AuthMiddleware(auth), handlers.NewUserHandler().GetProfile)
	return router
}

func decodeTokens(t *testing.T, body []byte) services.TokenPair {
	t.Helper()
	var tokens services.TokenPair
	require.NoError(t, json.Unmarshal(body, &tokens))
	return tokens
}

func TestRegisterLoginAndProfile(t *testing.T) {
	router := setupAuthRouter(t)

	w, env := doJSON(t, router, "POST", "/api/register", 0, map[string]any{
		"email":    "Alice@Example.com",
		"username": "alice",
		"password": "s3cretpass",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, string(env.Data), "password")
	var user models.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "alice@example.com", user.Email)

	w, _ = doJSON(t, router, "POST", "/api/register", 0, map[string]any{
		"email":    "alice@example.com",
		"username": "alice2",
		"password": "s3cretpass",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = doJSON(t, router, "POST", "/api/login", 0, map[string]any{"email": "alice@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, router, "POST", "/api/login", 0, map[string]any{"email": "alice@example.com", "password": "s3cretpass"})
	require.Equal(t, http.StatusOK, w.Code)
	tokens := decodeTokens(t, w.Body.Bytes())
	assert.Equal(t, "bearer", tokens.TokenType)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	req, _ := http.NewRequest("GET", "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	rec := serve(router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	req, _ = http.NewRequest("GET", "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken+"x")
	assert.Equal(t, http.StatusUnauthorized, serve(router, req).Code)
}

func TestRegisterValidation(t *testing.T) {
	router := setupAuthRouter(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad email", map[string]any{"email": "not-an-email", "username": "bob", "password": "s3cretpass"}},
		{"short username", map[string]any{"email": "bob@example.com", "username": "bo", "password": "s3cretpass"}},
		{"short password", map[string]any{"email": "bob@example.com", "username": "bob", "password": "short"}},
		{"missing fields", map[string]any{"email": "bob@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := doJSON(t, router, "POST", "/api/register", 0, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLoginRejectsMalformedEmail(t *testing.T) {
	router := setupAuthRouter(t)

	for _, email := range []string{"carol", "carol@", "@example.com"} {
		w, env := doJSON(t, router, "POST", "/api/login", 0, map[string]any{"email": email, "password": "s3cretpass"})
		assert.Equal(t, http.StatusBadRequest, w.Code, email)
		assert.Contains(t, env.Detail, "Email", email)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	router := setupAuthRouter(t)

	doJSON(t, router, "POST", "/api/register", 0, map[string]any{"email": "carol@example.com", "username": "carol", "password": "s3cretpass"})
	w, _ := doJSON(t, router, "POST", "/api/login", 0, map[string]any{"email": "carol@example.com", "password": "s3cretpass"})
	require.Equal(t, http.StatusOK, w.Code)
	first := decodeTokens(t, w.Body.Bytes())

	w, _ = doJSON(t, router, "POST", "/api/refresh", 0, map[string]any{"refresh_token": first.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	second := decodeTokens(t, w.Body.Bytes())
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	w, _ = doJSON(t, router, "POST", "/api/refresh", 0, map[string]any{"refresh_token": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := doJSON(t, router, "POST", "/api/logout", 0, map[string]any{"refresh_token": second.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, _ = doJSON(t, router, "POST", "/api/refresh", 0, map[string]any{"refresh_token": second.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
