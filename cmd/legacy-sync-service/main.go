package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/splitleasesharath/splitlease-sub012/bubblesync"
	"github.com/splitleasesharath/splitlease-sub012/config"
	"github.com/splitleasesharath/splitlease-sub012/marketplace"
	"github.com/splitleasesharath/splitlease-sub012/middlewares"
	"github.com/splitleasesharath/splitlease-sub012/models"
	"github.com/splitleasesharath/splitlease-sub012/utils"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("SYNC_SERVICE_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	r := gin.New()
	r.Use(middlewares.CorrelationIdMiddleware())
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(requestLogger(logger))
	r.Use(gin.Recovery())

	// Background pipeline. Constructed up front so route handlers can nudge
	// the dispatcher; it only starts dispatching once the DB is connected.
	invoker, err := bubblesync.NewClient()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "startup"}).Fatal(err)
	}
	var sink bubblesync.AlertSink
	if webhook, err := bubblesync.NewWebhookSink(); err == nil {
		sink = webhook
	} else {
		logger.WithFields(logrus.Fields{"field": "startup"}).Warn("no alert webhook configured; alerts go to the log")
		sink = bubblesync.LogSink{Logger: logger}
	}

	var dispatcher *bubblesync.Dispatcher

	// Marketplace producers.
	r.POST("/api/users", marketplace.CreateUserHandler())
	r.POST("/api/proposals", marketplace.CreateProposalHandler())
	r.PUT("/api/listings/:id", marketplace.UpdateListingHandler())
	r.DELETE("/api/listings/:id", marketplace.DeleteListingHandler())
	r.POST("/api/leases", marketplace.CreateLeaseHandler())

	// Operational endpoints.
	ops := r.Group("/api/sync", middlewares.ServiceTokenMiddleware())
	ops.GET("/entries/:id", bubblesync.GetEntryHandler())
	ops.GET("/entries", bubblesync.ListEntriesHandler())
	ops.GET("/dead-letters", bubblesync.ListDeadLettersHandler())
	ops.GET("/dead-letters/export", bubblesync.ExportDeadLettersHandler())

	// The dispatcher is built after the DB connects; until then these routes
	// answer as not ready.
	ops.POST("/dead-letters/:id/requeue", func(c *gin.Context) {
		if dispatcher == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		bubblesync.RequeueDeadLetterHandler(dispatcher)(c)
	})
	r.POST("/pubsub/sync-nudge", func(c *gin.Context) {
		if dispatcher == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		bubblesync.PubSubPushHandler(dispatcher, logger)(c)
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	store := bubblesync.NewStore(db)
	collector := bubblesync.NewCollector(bubblesync.NewFailureStore(db), sink, logger)
	worker := bubblesync.NewWorker(store, invoker, collector, logger)
	dispatcher = bubblesync.NewDispatcher(store, worker, logger)
	archiver := bubblesync.NewArchiver(db, logger)

	go dispatcher.Run(sigCtx)
	go collector.Run(sigCtx)
	go archiver.Run(sigCtx)

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
