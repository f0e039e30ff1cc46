package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RegisterRoutes builds the gin engine. promHandler serves the
// prometheus exposition and may be nil; obs may be nil.
func RegisterRoutes(h *Handler, logger logrus.FieldLogger, obs HTTPObserver, promHandler http.Handler) *gin.Engine {
	router := gin.New()

	// Middlewares
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(RecoveryMiddleware(logger))
	if obs != nil {
		router.Use(MetricsMiddleware(obs))
	}

	router.GET("/", h.GetIndex)

	// Observability APIs
	router.GET("/health", h.GetHealth)
	router.GET("/status", h.GetStatus)
	router.GET("/metrics", h.GetMetrics)
	if promHandler != nil {
		router.GET("/metrics/prometheus", gin.WrapH(promHandler))
	}

	myria := router.Group("/myria")
	{
		myria.GET("/health", h.GetHealth)
		myria.GET("/status", h.GetStatus)
		myria.GET("/metrics", h.GetMetrics)
		myria.GET("/ready", h.GetReady)
		myria.GET("/live", h.GetLive)
		myria.GET("/logs", h.GetLogs)
		myria.GET("/diagnosis", h.GetDiagnosis)

		// Lifecycle APIs
		myria.GET("/lifecycle", h.GetLifecycle)
		myria.POST("/start", h.PostStart)
		myria.POST("/stop", h.PostStop)
		myria.POST("/secrets", h.PostSecrets)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "path": c.Request.URL.Path})
	})

	return router
}
