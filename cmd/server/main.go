package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wagate/internal/api"
	"wagate/internal/api/handlers"
	"wagate/internal/api/middleware"
	"wagate/internal/engine/admission"
	"wagate/internal/engine/messages"
	"wagate/internal/engine/sessions"
	"wagate/internal/engine/webhooks"
	"wagate/internal/pkg/logger"
	"wagate/internal/platform/audit"
	"wagate/internal/platform/auth"
	"wagate/internal/platform/config"
	"wagate/internal/platform/database"
	"wagate/internal/platform/repositories"
	"wagate/internal/platform/transport"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	// Database connections
	globalDB, err := database.NewGlobalDB(cfg.Database.Global)
	if err != nil {
		log.Fatalf("Failed to connect to global DB: %v", err)
	}
	defer globalDB.Close()

	globalDBWrapper := database.NewGlobalDBWrapper(globalDB)

	tenantDBPool := database.NewTenantDBPool(cfg.Database.Tenant)
	defer tenantDBPool.CloseAll()

	// Global repositories
	orgRepo := repositories.NewOrganizationRepository(globalDB)
	userRepo := repositories.NewUserRepository(globalDB)
	inviteRepo := repositories.NewInviteRepository(globalDB)
	apiKeyRepo := repositories.NewAPIKeyRepository(globalDB)
	sessionRepo := repositories.NewSessionRepository(globalDB)

	// Tenant-routing adapters
	resolver := repositories.NewTenantResolver(orgRepo, tenantDBPool)
	webhookSource := repositories.NewWebhookSource(resolver)
	deliverySink := repositories.NewDeliverySink(resolver)
	messageStores := repositories.NewMessageStores(resolver)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	auditLogger := audit.NewLogger(globalDB)

	tp := transport.NewMemory()
	defer tp.Close()

	gate := admission.NewGate(admission.Config{
		Limits: admission.Limits{
			PerMinute: cfg.Admission.PerMinute,
			PerHour:   cfg.Admission.PerHour,
			PerDay:    cfg.Admission.PerDay,
		},
		Screen: admission.ScreenConfig{
			Keywords:       cfg.Admission.BlockedKeywords,
			BlockedSchemes: cfg.Admission.BlockedSchemes,
			MaxRepeatRun:   cfg.Admission.MaxRepeatRun,
		},
		OutcomeWindow:      cfg.Admission.OutcomeWindow,
		FailureRatio:       cfg.Admission.FailureRatio,
		SuspicionThreshold: cfg.Admission.SuspicionThreshold,
		SuspicionCooldown:  cfg.Admission.SuspicionCooldown,
	}, nil)

	hookEngine := webhooks.NewEngine(webhookSource, deliverySink, webhooks.Config{
		Workers:     cfg.Webhooks.WorkerCount,
		QueueSize:   cfg.Webhooks.QueueSize,
		MaxAttempts: cfg.Webhooks.MaxAttempts,
		Timeout:     cfg.Webhooks.Timeout,
	}, nil)
	hookEngine.Start()
	defer hookEngine.Stop()

	sessionSvc := sessions.NewService(sessionRepo, tp, nil)
	messageSvc := messages.NewService(gate, tp, hookEngine, nil)

	// Inbound event pump: transport events -> tenant stores + webhooks
	pumpCtx, stopPump := context.WithCancel(context.Background())
	defer stopPump()
	pump := messages.NewPump(tp, sessionRepo, messageStores, hookEngine, gate, nil)
	go pump.Run(pumpCtx)

	// Handlers
	authHandler := handlers.NewAuthHandler(userRepo, orgRepo, inviteRepo, tokenSvc)
	orgHandler := handlers.NewOrgHandler(orgRepo, userRepo, tokenSvc, cfg.Database.Tenant.BasePath)
	inviteHandler := handlers.NewInviteHandler(inviteRepo)
	userHandler := handlers.NewUserHandler(userRepo, orgRepo)
	sessionHandler := handlers.NewSessionHandler(sessionSvc, orgRepo, auditLogger)
	messageHandler := handlers.NewMessageHandler(messageSvc, sessionSvc)
	webhookHandler := handlers.NewWebhookHandler(hookEngine, auditLogger)
	analyticsHandler := handlers.NewAnalyticsHandler()
	apiKeyHandler := handlers.NewAPIKeyHandler(apiKeyRepo, auditLogger)
	healthHandler := handlers.NewHealthHandler(globalDBWrapper, tp, hookEngine)
	metricsHandler := handlers.NewMetricsHandler()

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc)
	tenantMiddleware := middleware.NewTenantMiddleware(orgRepo, tenantDBPool)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)

	router := api.NewRouter(&api.Dependencies{
		AuthHandler:      authHandler,
		OrgHandler:       orgHandler,
		InviteHandler:    inviteHandler,
		UserHandler:      userHandler,
		SessionHandler:   sessionHandler,
		MessageHandler:   messageHandler,
		WebhookHandler:   webhookHandler,
		AnalyticsHandler: analyticsHandler,
		APIKeyHandler:    apiKeyHandler,
		HealthHandler:    healthHandler,
		MetricsHandler:   metricsHandler,
		AuthMiddleware:   authMiddleware,
		TenantMiddleware: tenantMiddleware,
		RateLimiter:      rateLimiter,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Server starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}
