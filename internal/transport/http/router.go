package http

import (
	"github.com/gin-gonic/gin"

	"github.com/Pimboto/DarkStackBackend/internal/intake"
)

// RouterConfig mirrors the teacher's server.RouterConfig — a flat struct of
// already-constructed handlers/middleware the router wires together
// (internal/server/router.go).
type RouterConfig struct {
	API      *intake.API
	AdminKey string
	NodeEnv  string
}

// NewRouter builds the gin.Engine exposing the Intake command surface (spec
// §6) and the live subscribe endpoint.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()
	h := NewHandlers(cfg.API)

	router.GET("/healthz", HealthCheck)

	tenants := router.Group("/tenants/:tenant")
	tenants.GET("/subscribe", h.Subscribe)

	jobs := tenants.Group("/jobs/:jobType")
	jobs.Use(adminKeyMiddleware(cfg.AdminKey, cfg.NodeEnv))
	{
		jobs.POST("", h.Enqueue)
		jobs.POST("/bulk", h.EnqueueBulk)
		jobs.POST("/category/:categoryId", h.EnqueueByCategory)
		jobs.GET("/parent/:parentId", h.ListJobsByParent)
		jobs.GET("/:jobId", h.GetJob)
	}

	return router
}
