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

	"campusattend/internal/cloudinary"
	"campusattend/internal/config"
	"campusattend/internal/faceclient"
	"campusattend/internal/gradebook"
	"campusattend/internal/httpapi"
	"campusattend/internal/ledger"
	"campusattend/internal/noticeboard"
	"campusattend/internal/queue"
	"campusattend/internal/roster"
	"campusattend/internal/store"
	"campusattend/internal/timetable"
	"campusattend/internal/transport"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("api: %v", err)
	}
}

func run(cfg config.App) error {
	ctx := context.Background()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campusattend:verify")
	}

	policy, err := ledger.ParsePolicy(cfg.DuplicatePolicy)
	if err != nil {
		return err
	}
	led := ledger.NewService(
		ledger.NewPostgresStore(db.Client), policy,
		ledger.WithCache(redisClient, cfg.SummaryCacheTTL),
	)

	var cdn *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdn = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("cloudinary not configured, snapshot upload disabled")
	}

	srv := httpapi.New(
		cfg,
		led,
		roster.NewRepository(db.Client),
		gradebook.NewRepository(db.Client),
		noticeboard.NewRepository(db.Client),
		timetable.NewRepository(db.Client),
		transport.NewRepository(db.Client),
		q,
		redisClient,
		cdn,
		faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip),
		func() bool { return db.Client.PingContext(context.Background()) == nil },
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s (duplicate policy: %s)", cfg.HTTPPort, policy)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	// Give outstanding requests 10 seconds to complete.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}

	log.Println("server exited")
	return nil
}
