package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/acyrxbrown/chat-app/internal/ai"
	"github.com/acyrxbrown/chat-app/internal/app"
	"github.com/acyrxbrown/chat-app/internal/assist"
	"github.com/acyrxbrown/chat-app/internal/blob"
	"github.com/acyrxbrown/chat-app/internal/config"
	"github.com/acyrxbrown/chat-app/internal/feed"
	"github.com/acyrxbrown/chat-app/internal/search"
	"github.com/acyrxbrown/chat-app/internal/social"
	"github.com/acyrxbrown/chat-app/internal/store"
	"github.com/acyrxbrown/chat-app/internal/topics"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	redisClient, err := feed.Dial(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()
	adapter := feed.NewAdapter(redisClient)
	publisher := feed.NewPublisher(redisClient)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	searchService.ReindexAllFromPG(ctx)

	var blobs *blob.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		blobs, err = blob.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
			cfg.MinioBucket, cfg.MinioPublicURL, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("WARNING: object storage unavailable, attachments disabled: %v", err)
			blobs = nil
		}
	}

	aiClient := ai.New(ai.Config{
		APIKey:        cfg.GeminiAPIKey,
		BaseURL:       cfg.GeminiBaseURL,
		TextModel:     cfg.TextModel,
		ImageModel:    cfg.ImageModel,
		ImageModelAlt: cfg.ImageModelAlt,
		VideoModel:    cfg.VideoModel,
		RatePerSecond: cfg.AIRatePerSecond,
	})

	assistant, err := dataStore.EnsureProfileByEmail(ctx, cfg.AssistantEmail, "Assistant")
	if err != nil {
		log.Fatalf("assistant profile setup failed: %v", err)
	}

	serviceCfg := app.ServiceConfig{
		Store:         dataStore,
		Feed:          app.AdapterSource{Adapter: adapter},
		Publisher:     publisher,
		Search:        searchService,
		AssistantID:   assistant.ID,
		AIEnabled:     aiClient.Enabled(),
		HistoryWindow: cfg.HistoryWindow,
		PendingTTL:    cfg.PendingTTL,
	}
	if blobs != nil {
		serviceCfg.Blobs = blobs
	}
	if aiClient.Enabled() {
		serviceCfg.Coach = social.NewCoach(aiClient)
		serviceCfg.Generator = aiClient
		serviceCfg.Topics = topics.NewPipeline(aiClient, dataStore, cfg.TopicThreshold)
	} else {
		log.Printf("GEMINI_API_KEY not set; assistant, coaching and generation disabled")
	}

	service := app.NewService(serviceCfg)
	if aiClient.Enabled() {
		service.SetAssistant(assist.NewHandler(aiClient, service, assistant.ID, cfg.HistoryWindow))
	}

	jobs := cron.New()
	if _, err := jobs.AddFunc("@every 15s", func() {
		service.ExpirePendingSends()
	}); err != nil {
		log.Fatalf("schedule pending sweep: %v", err)
	}
	if _, err := jobs.AddFunc("@every 10m", func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := dataStore.RecountSuggestions(jobCtx); err != nil {
			log.Printf("suggestion recount failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("schedule suggestion recount: %v", err)
	}
	jobs.Start()
	defer jobs.Stop()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("chat-app API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
