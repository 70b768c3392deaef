package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendtrack/internal/attendance"
	"attendtrack/internal/auth"
	"attendtrack/internal/config"
	"attendtrack/internal/handler"
	"attendtrack/internal/httpmiddleware"
	"attendtrack/internal/imagestore"
	"attendtrack/internal/queue"
	"attendtrack/internal/store"
	"attendtrack/internal/ws"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	if err := run(cfg); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup, err := store.NewSupervisor(store.SupervisorConfig{
		URL:            cfg.DatabaseURL,
		MaxRetries:     cfg.DBMaxRetries,
		ConnectTimeout: cfg.DBConnectTimeout,
		Heartbeat:      cfg.DBHeartbeat,
	})
	if err != nil {
		return err
	}
	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Printf("connection supervisor stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// The HTTP layer does not accept traffic until the database has connected
	// at least once.
	log.Println("waiting for database connection...")
	select {
	case <-sup.Ready():
	case sig := <-quit:
		log.Printf("received %s before database was ready, exiting", sig)
		return nil
	}

	if err := store.Migrate(ctx, sup.DB()); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:events")
	}

	images, err := buildImageStore(cfg)
	if err != nil {
		return err
	}

	repo := attendance.NewRepository(sup.DB())
	svc := attendance.NewService(repo, images, cfg.MinShiftHours)

	hub := ws.NewHub()
	go hub.Run(ctx)

	h := handler.New(svc, repo, q, hub, redisClient, handler.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := sup.State() == store.StateConnected
		redisHealthy := redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"status": "ok",
			"db":     sup.State().String(),
			"redis":  redisHealthy,
		})
	})

	r.POST("/v1/auth/register", h.Register)

	authGroup := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer))
	authGroup.POST("/attendance/mark", h.Mark)
	authGroup.POST("/attendance/checkout", h.Checkout)
	authGroup.GET("/attendance/today", h.Today)
	authGroup.PUT("/attendance/location", h.UpdateLocation)

	adminGroup := authGroup.Group("", auth.RequireAdmin())
	adminGroup.GET("/attendance/date/:date", h.ByDate)
	adminGroup.GET("/attendance/export", h.Export)
	adminGroup.GET("/attendance/summary", h.Summary)
	adminGroup.GET("/attendance/live", h.Live)
	adminGroup.GET("/employees/:employeeID/history", h.History)
	adminGroup.POST("/employees/:employeeID/block", h.SetBlocked)

	if cfg.StorageBackend == "disk" {
		r.Static("/uploads", cfg.UploadDir)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}

	cancel()
	if err := sup.Close(shutdownCtx); err != nil {
		log.Printf("database close: %v", err)
		return err
	}

	log.Println("server exited")
	return nil
}

func buildImageStore(cfg config.App) (imagestore.Store, error) {
	if cfg.StorageBackend == "cloudinary" {
		if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
			log.Fatal("cloudinary backend selected but CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set")
		}
		log.Println("image storage: cloudinary,", cfg.CloudinaryCloudName)
		return imagestore.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder), nil
	}
	log.Println("image storage: local disk,", cfg.UploadDir)
	return imagestore.NewDisk(cfg.UploadDir, "/uploads")
}

// CORS middleware for browser requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
