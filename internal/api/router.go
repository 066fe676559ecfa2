package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/doorguard/internal/api/handlers"
	"github.com/your-org/doorguard/internal/api/ws"
	"github.com/your-org/doorguard/internal/auth"
	"github.com/your-org/doorguard/internal/queue"
	"github.com/your-org/doorguard/internal/storage"
)

// Station is a handlers.Station that also exposes its admin session.
type Station interface {
	handlers.Station
	Session() *auth.Session
}

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Hub      *ws.Hub
	Station  Station
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Admin session
	adminH := handlers.NewAdminHandler(cfg.Station)
	v1.POST("/admin/login", adminH.Login)
	v1.POST("/admin/logout", adminH.Logout)
	v1.GET("/admin/session", adminH.Session)

	// Identities
	identityH := handlers.NewIdentityHandler(cfg.Station)
	v1.GET("/identities", identityH.List)
	admin := v1.Group("", auth.RequireAdmin(cfg.Station.Session()))
	admin.POST("/identities", identityH.Enroll)
	admin.DELETE("/identities/:name", identityH.Delete)

	// Door
	doorH := handlers.NewDoorHandler(cfg.Station)
	v1.POST("/door/open", doorH.Open)
	v1.GET("/logs", doorH.Logs)
	v1.GET("/status", doorH.Status)
	v1.GET("/preview", doorH.Preview)

	return r
}
