package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"newco.ai/founder-scout/internal/api"
	"newco.ai/founder-scout/internal/config"
	"newco.ai/founder-scout/internal/core"
	"newco.ai/founder-scout/internal/llm"
	"newco.ai/founder-scout/internal/logger"
	"newco.ai/founder-scout/internal/metrics"
	"newco.ai/founder-scout/internal/store"
)

func main() {
	chatFlag := flag.Bool("chat", false, "Run one interview in the terminal and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Setup logging
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	if cfg.DotEnvMissing {
		log.Warn().Msg("No .env file found, using environment variables only")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(registry)

	ctx := context.Background()

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Provider).Msg("Failed to initialize completion provider")
	}
	gateway := llm.NewGateway(provider, cfg.RetryBaseDelay, logger.Component(log, "gateway"), llm.WithMetrics(m))
	defer gateway.Close()

	// A nil interface, not a nil *store.Store, marks persistence as disabled.
	var conversations core.ConversationStore
	if cfg.PersistenceEnabled() {
		backend, err := store.OpenBackend(ctx, cfg.StorageDriver, cfg.StorageURL, cfg.StorageKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize conversation storage")
		}
		dbStore := store.NewStore(backend, cfg.RetryBaseDelay, logger.Component(log, "store"), store.WithMetrics(m))
		defer dbStore.Close()
		conversations = dbStore
		log.Info().Str("driver", store.DetectDriver(cfg.StorageDriver, cfg.StorageURL)).Msg("Conversation storage ready")
	} else {
		log.Warn().Msg("STORAGE_URL is not set, conversations will not be saved")
	}

	profiles := core.Profiles{
		Conversation: profileFor("conversation", cfg.Conversation),
		Summary:      profileFor("summary", cfg.Summary),
		Evaluation:   profileFor("evaluation", cfg.Evaluation),
	}

	assembler := core.NewPromptAssembler(cfg.TestMode, logger.Component(log, "prompt"))
	enrichment := core.NewEnrichmentService(gateway, profiles, cfg.EvaluationFormat == config.EvaluationFormatStructured, logger.Component(log, "enrichment"))
	saveService := core.NewSaveService(enrichment, conversations, logger.Component(log, "save"), m)
	interviews := core.NewInterviewService(assembler, gateway, profiles, saveService, conversations, logger.Component(log, "interview"), m)

	if *chatFlag {
		if err := runTerminal(ctx, interviews, os.Stdin, os.Stdout); err != nil {
			log.Error().Err(err).Msg("Terminal interview failed")
			os.Exit(1)
		}
		return
	}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go interviews.RunJanitor(janitorCtx, time.Minute, cfg.SessionIdleTTL)

	apiHandler := api.NewAPIHandler(interviews)
	router := api.NewRouter(apiHandler, logger.Component(log, "http"), registry)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // streamed replies and saves with enrichment run long
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverAddr).Msg("Starting server. Press Ctrl+C to quit.")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}
	log.Info().Msg("Server exiting gracefully")
}

func newProvider(ctx context.Context, cfg *config.Config) (llm.Provider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		provider, err := llm.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return provider, nil
	case config.ProviderOpenAI:
		return llm.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
}

func profileFor(purpose string, mc config.ModelConfig) llm.Profile {
	return llm.Profile{
		Purpose:          purpose,
		Model:            mc.Model,
		Temperature:      mc.Temperature,
		MaxTokens:        mc.MaxTokens,
		TopP:             mc.TopP,
		PresencePenalty:  mc.PresencePenalty,
		FrequencyPenalty: mc.FrequencyPenalty,
		Timeout:          mc.Timeout,
	}
}
