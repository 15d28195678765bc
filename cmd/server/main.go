package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentient.health/symptom-ai/internal/api"
	"sentient.health/symptom-ai/internal/config"
	"sentient.health/symptom-ai/internal/core"
	"sentient.health/symptom-ai/internal/llm"
	"sentient.health/symptom-ai/internal/logger"
	"sentient.health/symptom-ai/internal/store"
)

func newProvider(ctx context.Context) (llm.Provider, error) {
	switch config.AppConfig.LLMProvider {
	case config.ProviderGemini:
		return llm.NewGeminiClient(ctx, config.AppConfig.GeminiAPIKey, config.AppConfig.GeminiModel)
	default:
		return llm.NewFireworksClient(config.AppConfig.LLMAPIURL, config.AppConfig.LLMAPIKey, config.AppConfig.LLMModel), nil
	}
}

func main() {
	// Load configuration
	config.LoadConfig()
	logger.SetLevel(config.AppConfig.LogLevel)
	logger.Debug("Service starting in DEBUG mode")

	// Command line flag for erasing one user's data
	purgeUser := flag.String("purge-user", "", "Delete all stored data for the given external user id and exit")
	flag.Parse()

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	if *purgeUser != "" {
		removed, err := dbStore.PurgeUser(*purgeUser)
		if err != nil {
			dbStore.Close()
			logger.Fatal("Purge of user %s failed: %v", *purgeUser, err)
		}
		logger.Info("Purged user %s and %d saved analyses. Exiting.", *purgeUser, removed)
		return
	}

	// Initialize the model provider
	provider, err := newProvider(context.Background())
	if err != nil {
		dbStore.Close()
		logger.Fatal("Failed to initialize %s provider: %v", config.AppConfig.LLMProvider, err)
	}
	defer provider.Close()
	logger.Info("Using %s model provider", config.AppConfig.LLMProvider)

	// Initialize services
	workspaces := core.NewWorkspaceManager(
		core.NewDiagnosisService(provider),
		core.NewChatService(provider),
		core.NewHistoryService(dbStore),
	)
	accounts := core.NewAccountService(dbStore, workspaces)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(accounts, workspaces)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: chat replies are streamed for as long as the model keeps sending.
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Could not listen on %s: %v", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown: %v", err)
		return
	}

	// provider.Close() and dbStore.Close() will be called by their defers.
	logger.Info("Server exiting gracefully")
}
