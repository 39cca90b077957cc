package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"dreamflow/internal/config"
	"dreamflow/internal/handlers"
	"dreamflow/internal/middleware"
	"dreamflow/internal/monitoring"
	"dreamflow/internal/services"
)

// RouterParams holds everything the HTTP surface depends on.
type RouterParams struct {
	fx.In

	Config        *config.Config
	Logger        *zap.Logger
	Auth          services.AuthService
	Register      services.RegisterService
	Tasks         services.TaskService
	Chat          handlers.ChatService
	Conversations handlers.ConversationReader
	Metrics       *monitoring.Metrics
	Health        *monitoring.HealthChecker
	RateLimiter   *middleware.RateLimiter `optional:"true"`
}

func NewRouter(p RouterParams) *gin.Engine {
	if p.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RecoveryWithLog(p.Logger))
	r.Use(middleware.RequestLogger(p.Logger))
	r.Use(p.Metrics.Middleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     p.Config.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", p.Health.HealthHandler())
	r.GET("/health/live", p.Health.LivenessHandler())
	r.GET("/health/ready", p.Health.ReadinessHandler())
	r.GET("/metrics", p.Metrics.Handler())

	authHandler := handlers.NewAuthHandler(p.Auth, p.Logger)
	refreshHandler := handlers.NewRefreshHandler(p.Auth, p.Logger)
	logoutHandler := handlers.NewLogoutHandler(p.Auth, p.Logger)
	registerHandler := handlers.NewRegisterHandler(p.Register, p.Logger)
	userHandler := handlers.NewUserHandler()
	taskHandler := handlers.NewTaskHandler(p.Tasks, p.Logger)
	chatHandler := handlers.NewChatHandler(p.Chat, p.Conversations, p.Logger)

	public := r.Group("/api")
	if p.RateLimiter != nil {
		public.Use(p.RateLimiter.Middleware())
	}
	public.POST("/register", registerHandler.Register)
	public.POST("/login", authHandler.Login)
	public.POST("/refresh", refreshHandler.Refresh)
	public.POST("/logout", logoutHandler.Logout)

	protected := r.Group("/api")
	protected.Use(middleware.AuthMiddleware(p.Auth))
	if p.RateLimiter != nil {
		protected.Use(p.RateLimiter.Middleware())
	}

	protected.GET("/users/me", userHandler.GetProfile)

	protected.GET("/tasks", taskHandler.GetTasks)
	protected.POST("/tasks", taskHandler.CreateTask)
	protected.GET("/tasks/stats", taskHandler.GetStats)
	protected.GET("/tasks/:id", taskHandler.GetTask)
	protected.PUT("/tasks/:id", taskHandler.UpdateTask)
	protected.DELETE("/tasks/:id", taskHandler.DeleteTask)
	protected.PATCH("/tasks/:id/toggle-complete", taskHandler.ToggleComplete)

	protected.POST("/:user_id/chat", chatHandler.Chat)
	protected.GET("/:user_id/conversations", chatHandler.ListConversations)
	protected.GET("/:user_id/conversations/:conversation_id/messages", chatHandler.ListMessages)

	return r
}
