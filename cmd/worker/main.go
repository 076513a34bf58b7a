package main

import (
	"log"
	"time"

	"wagate/internal/pkg/logger"
	"wagate/internal/platform/config"
	"wagate/internal/platform/database"
	"wagate/internal/platform/repositories"
	"wagate/internal/workers"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	globalDB, err := database.NewGlobalDB(cfg.Database.Global)
	if err != nil {
		log.Fatalf("Failed to connect to global DB: %v", err)
	}
	defer globalDB.Close()

	tenantDBPool := database.NewTenantDBPool(cfg.Database.Tenant)
	defer tenantDBPool.CloseAll()

	runner := workers.NewRunner(
		repositories.NewOrganizationRepository(globalDB),
		repositories.NewSessionRepository(globalDB),
		tenantDBPool,
		cfg.Webhooks,
		nil,
	)

	log.Println("Starting background workers...")

	go runDailyStatsWorker(runner)
	go runFailureSweepWorker(runner)
	go runSessionExpiryWorker(runner)

	select {}
}

// Runs shortly after midnight UTC and recomputes the previous day.
func runDailyStatsWorker(runner *workers.Runner) {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 15, 0, 0, time.UTC)
		time.Sleep(next.Sub(now))

		date := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
		log.Printf("Aggregating daily stats for %s", date)
		runner.AggregateDailyStats(date)
	}
}

func runFailureSweepWorker(runner *workers.Runner) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		runner.SweepFailingSubscriptions()
	}
}

func runSessionExpiryWorker(runner *workers.Runner) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		runner.ExpireStaleSessions()
	}
}
