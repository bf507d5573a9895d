package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"posagent/internal/handler"
	"posagent/pkg/mq"
)

type Router struct {
	Engine *gin.Engine
}

// NewRouter wires the HTTP surface: the routing endpoint, health and
// readiness probes, and the metrics endpoint. db and publisher are the
// optional collaborators checked by /readyz; either may be nil.
func NewRouter(routeHandler *handler.RouteHandler, jwtSecret string, db *pgxpool.Pool, publisher *mq.Publisher) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware(), MetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c, 1*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
				return
			}
		}

		if publisher != nil && !publisher.IsConnected() {
			c.JSON(500, gin.H{"status": "mq_not_ready"})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routed := r.Group("/")
	if jwtSecret != "" {
		routed.Use(AuthMiddleware(jwtSecret))
	}
	routed.POST("/route", routeHandler.RouteMessage)

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
