package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusattend/internal/config"
	"campusattend/internal/faceclient"
	"campusattend/internal/ledger"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
	"campusattend/internal/store"
)

// The worker drains verification jobs: every automated mark with a
// snapshot gets re-checked against the face service and its stored
// confidence replaced with the verified similarity.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campusattend:verify")
	}

	events := ledger.NewPostgresStore(db.Client)
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: face service not available: %v", err)
			log.Println("worker will retry verification when jobs arrive")
		} else {
			log.Println("face service connected")
		}
	}

	jobs, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for jobs...")
	for job := range jobs {
		log.Printf("verifying event %s (student %s)", job.EventID, job.StudentID)

		evt, err := events.Event(ctx, job.EventID)
		if err != nil {
			log.Printf("fetch event %s failed: %v", job.EventID, err)
			continue
		}
		if evt == nil {
			log.Printf("event %s no longer exists, dropping job", job.EventID)
			continue
		}

		res, err := face.Verify(ctx, job.StudentID, job.SnapshotURL)
		if err != nil {
			log.Printf("verify failed for %s: %v", job.EventID, err)
			metrics.FaceVerifications.WithLabelValues("error").Inc()
			continue
		}

		outcome := "rejected"
		if res.Verified {
			outcome = "verified"
		}
		metrics.FaceVerifications.WithLabelValues(outcome).Inc()
		log.Printf("event %s: %s (similarity %.2f, threshold %.2f)",
			job.EventID, outcome, res.Similarity, res.Threshold)

		if err := events.UpdateConfidence(ctx, job.EventID, res.Similarity); err != nil {
			log.Printf("confidence update failed for %s: %v", job.EventID, err)
		}

		time.Sleep(10 * time.Millisecond)
	}

	log.Println("worker stopped")
}
