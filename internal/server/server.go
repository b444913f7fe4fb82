package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Skufu/triage/internal/engine"
	"github.com/Skufu/triage/internal/profile"
	"github.com/Skufu/triage/internal/session"
)

const maxBodyBytes = 1 << 20

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Service is what the handlers need from session.Service.
type Service interface {
	Rules() *profile.Set
	Diagnose(ctx context.Context, req engine.Request) (*session.Session, error)
	Lookup(ctx context.Context, id uuid.UUID) (*session.Session, error)
	Unrecorded() []uuid.UUID
}

// NewRouter wires the API. db may be nil when the record store is disabled.
func NewRouter(svc Service, db HealthChecker, log zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		requestLogger(log),
		gin.Recovery(),
		limitBodySize(maxBodyBytes),
		cors.New(cors.Config{
			AllowOrigins:  []string{"*"},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders: []string{"Content-Disposition"},
			MaxAge:        12 * time.Hour,
		}),
	)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", readyz(db))

	h := &handlers{svc: svc}
	api := router.Group("/api")
	api.GET("/symptoms", h.symptoms)
	api.GET("/risk-factors", h.riskFactors)
	api.GET("/profiles", h.profiles)
	api.POST("/diagnosis", h.diagnose)
	api.GET("/sessions/unrecorded", h.unrecorded)
	api.GET("/sessions/:id/report", h.report)

	return router
}

func readyz(db HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"db":     fmt.Sprintf("unhealthy: %v", err),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "db": "ok"})
	}
}

func NewHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
