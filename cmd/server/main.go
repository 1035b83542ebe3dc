package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/medidesk/voice-agent/internal/booking"
	"github.com/medidesk/voice-agent/internal/config"
	"github.com/medidesk/voice-agent/internal/notify"
	"github.com/medidesk/voice-agent/internal/observability"
	"github.com/medidesk/voice-agent/internal/session"
	"github.com/medidesk/voice-agent/internal/stt"
	"github.com/medidesk/voice-agent/internal/telephony"
	"github.com/medidesk/voice-agent/internal/tools"
	"github.com/medidesk/voice-agent/internal/tts"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("clinic", cfg.ClinicName).
		Str("booking_api", cfg.BookingAPIURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Bool("voice_agent_enabled", cfg.VoiceAgentEnabled).
		Msg("Clinic Voice Agent starting")

	// Session store
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	store := session.NewStore(
		redisClient,
		time.Duration(cfg.CallSessionTTL)*time.Second,
		time.Duration(cfg.ScratchDefaultTTL)*time.Second,
	)

	// Clinic backend client and tool executor
	bookingClient := booking.NewClient(cfg)
	executor, err := tools.NewExecutor(bookingClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build tool executor")
	}

	// Speech pipeline: Deepgram recognition, ElevenLabs synthesis with OpenAI
	// fallback, OpenAI conversation model
	recognizers := stt.NewManager(cfg)
	synth := tts.NewGenerator(tts.NewElevenLabsClient(cfg), tts.NewOpenAIClient(cfg))
	chatClient := openai.NewClient(cfg.OpenAIAPIKey)

	// SMS confirmations (nil when disabled)
	smsSender := notify.NewSMSSender(cfg)
	if smsSender == nil {
		logger.Info().Msg("SMS confirmations disabled")
	}

	controller := telephony.NewController(cfg, store, recognizers, synth, chatClient, executor, smsSender, bookingClient)

	// HTTP surface
	mux := http.NewServeMux()
	telephony.NewHandler(cfg, controller, store).Register(mux)

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"redis": func(ctx context.Context) (bool, error) {
			if err := store.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
		"booking_api": func(ctx context.Context) (bool, error) {
			if err := bookingClient.Ping(ctx); err != nil {
				return false, err
			}
			return true, nil
		},
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: mux,
		// No WriteTimeout: the media stream WebSocket lives as long as the call.
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("stream_endpoint", fmt.Sprintf("ws://localhost:%s/voice/stream", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := redisClient.Close(); err != nil {
		logger.Warn().Err(err).Msg("Redis client close failed")
	}

	logger.Info().Msg("Server exited gracefully")
}
