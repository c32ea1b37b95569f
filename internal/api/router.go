package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/classguard/internal/api/handlers"
	"github.com/your-org/classguard/internal/api/ws"
	"github.com/your-org/classguard/internal/auth"
	"github.com/your-org/classguard/internal/pipeline"
	"github.com/your-org/classguard/internal/queue"
	"github.com/your-org/classguard/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	Blobs    *storage.BlobStore
	Producer *queue.Producer
	Hub      *ws.Hub
	Pipeline *pipeline.Pipeline
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Blobs, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Students & reference embeddings
	studentH := handlers.NewStudentHandler(cfg.DB, cfg.Pipeline)
	v1.POST("/students", studentH.Enroll)
	v1.GET("/students", studentH.List)
	v1.GET("/students/:id", studentH.Get)
	v1.POST("/students/:id/photos", studentH.AddPhoto)
	v1.PATCH("/students/:id/policy", studentH.UpdatePolicy)
	v1.DELETE("/students/:id", studentH.Delete)
	v1.POST("/search", studentH.Search)

	// Classes
	classH := handlers.NewClassHandler(cfg.DB)
	v1.GET("/classes", classH.List)

	// Class photos & results
	photoH := handlers.NewPhotoHandler(cfg.DB, cfg.Blobs, cfg.Pipeline, cfg.Producer)
	v1.POST("/photos/process", photoH.Process)
	v1.POST("/photos/jobs", photoH.SubmitJob)
	v1.GET("/results/:id", photoH.GetResult)
	v1.GET("/photos/*ref", photoH.Artifact)

	// Administration
	v1.POST("/reset", photoH.Reset)

	return r
}
