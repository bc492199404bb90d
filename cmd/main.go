package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/imyashkale/previewserver/internal/config"
	"github.com/imyashkale/previewserver/internal/handlers"
	"github.com/imyashkale/previewserver/internal/logger"
	"github.com/imyashkale/previewserver/internal/router"
	"github.com/imyashkale/previewserver/internal/services"
)

func main() {

	// Load application configuration
	cfg := config.New()
	log.Println("Configuration loaded successfully")

	// Initialize structured logging
	logger.Init(cfg.LogLevel)

	// Initialize deployment platform client
	dokployClient := services.NewDokployClient(cfg.DokployURL)
	log.Println("Dokploy client initialized")

	// Initialize Docker; log streaming degrades gracefully when the daemon
	// is unreachable
	dockerService, err := services.NewDockerService(cfg.DockerHost)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("Docker daemon unreachable, container inspection and log streaming disabled")
		dockerService = nil
	} else {
		log.Println("Docker service initialized")
	}

	// Initialize cached API key validation
	authCache := services.NewAuthCache(cfg.AuthCacheTTL, cfg.AuthCacheNegativeTTL, cfg.AuthCacheMaxKeys)
	authService := services.NewAuthService(authCache, dokployClient)
	log.Println("Auth service initialized")

	// Initialize preview orchestration
	var inspector services.ContainerInspector
	if dockerService != nil {
		inspector = dockerService
	}
	previewService := services.NewPreviewService(dokployClient, inspector, cfg)
	log.Println("Preview service initialized")

	// Initialize Azure DevOps client and Slack notifier
	azureClient := services.NewAzureDevOpsClient(cfg.AzdoOrg, cfg.AzdoProject, cfg.AzdoPAT)
	var slackClient services.Notifier
	if cfg.SlackWebhookURL != "" {
		slackClient = services.NewSlackClient(cfg.SlackWebhookURL)
		log.Println("Slack notifier initialized")
	} else {
		log.Println("No Slack webhook configured, regression alerts will only be logged")
	}

	// Initialize webhook routing
	webhookService := services.NewWebhookService(previewService, azureClient, slackClient, cfg)
	log.Println("Webhook service initialized")

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	previewHandler := handlers.NewPreviewHandler(previewService)
	webhookHandler := handlers.NewWebhookHandler(webhookService)
	logsHandler := handlers.NewLogsHandler(dockerService, previewService, cfg)
	log.Println("Handlers initialized")

	// Setup router
	r := router.Setup(authService, healthHandler, previewHandler, webhookHandler, logsHandler)

	// Setup graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down server gracefully...")

		if dockerService != nil {
			if err := dockerService.Close(); err != nil {
				log.Printf("Failed to close docker client: %v", err)
			}
		}

		os.Exit(0)
	}()

	// Start server
	log.Printf("Starting server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
