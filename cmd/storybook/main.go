// Package main boots the storybook HTTP service and wires application dependencies.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/easeaico/storybook/internal/config"
	"github.com/easeaico/storybook/internal/handler"
	"github.com/easeaico/storybook/internal/models"
	"github.com/easeaico/storybook/internal/session"
	"github.com/easeaico/storybook/internal/storage"
	"github.com/easeaico/storybook/internal/story"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level := parseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Info("slog logger initialized", "level", level.String())
	slog.Info("configuration loaded", "card_model", cfg.CardModel, "story_provider", cfg.StoryProvider, "archive", cfg.ArchiveEnabled())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	credErr := cfg.RequireAPIKey()
	if credErr != nil {
		slog.Error("story generation disabled", "error", credErr.Error())
	}

	limiter := newLimiter(cfg.GenerationRatePerMinute)
	cards, assembler, narrator := buildStages(ctx, cfg, credErr, limiter)

	opts := session.Options{
		CredentialErr: credErr,
		MaxImages:     cfg.MaxImages,
	}

	var archive handler.StorybookArchive
	if cfg.ArchiveEnabled() {
		store, err := storage.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer store.Close()
		if err := storage.AutoMigrate(store.DB()); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		opts.Archiver = store.Storybooks
		archive = store.Storybooks
	}

	service := session.NewService(session.NewStore(cfg.SessionTTL), cards, assembler, narrator, opts)
	router := handler.NewRouter(
		handler.NewSessionHandler(service, archive, cfg.MaxUploadMB<<20),
		story.MetricsHandler(),
		cfg.CORSAllowedOrigins,
	)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.HTTPAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	case <-ctx.Done():
		fmt.Println("\n正在关闭...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err.Error())
	}
	fmt.Println("Storybook shutdown complete")
}

func buildStages(ctx context.Context, cfg config.Config, credErr error, limiter *rate.Limiter) (*story.CardStage, *story.AssemblyStage, *story.NarrationStage) {
	var (
		cardModel story.CardModel
		writer    story.TextWriter
		synth     story.Synthesizer
	)
	if credErr != nil {
		return story.NewCardStage(nil, limiter), story.NewAssemblyStage(nil, limiter), story.NewNarrationStage(nil)
	}

	client, err := models.NewGeminiClient(ctx, cfg.GoogleAPIKey)
	if err != nil {
		log.Fatalf("failed to create gemini client: %v", err)
	}
	temperature := float32(cfg.Temperature)

	gemini, err := models.NewGeminiCardModel(client, cfg.CardModel, temperature)
	if err != nil {
		log.Fatalf("failed to create card model: %v", err)
	}
	cardModel = gemini

	switch cfg.StoryProvider {
	case config.ProviderOpenAI:
		w, err := models.NewOpenAIStoryWriter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.Temperature)
		if err != nil {
			log.Fatalf("failed to create openai story writer: %v", err)
		}
		writer = w
	default:
		w, err := models.NewGeminiStoryWriter(client, cfg.StoryModel, temperature)
		if err != nil {
			log.Fatalf("failed to create story writer: %v", err)
		}
		writer = w
	}

	narrator, err := models.NewNarrator(ctx, cfg.GoogleAPIKey, cfg.TTSLanguage, cfg.TTSVoice, cfg.TTSSpeakingRate)
	if err != nil {
		// Narration is optional; the story is still shown without audio.
		slog.Warn("narration disabled", "error", err.Error())
	} else {
		synth = narrator
	}

	return story.NewCardStage(cardModel, limiter), story.NewAssemblyStage(writer, limiter), story.NewNarrationStage(synth)
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
