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

	"github.com/joho/godotenv"

	"scribe/api/internal/app"
	"scribe/api/internal/config"
	"scribe/api/internal/files"
	"scribe/api/internal/generate"
	"scribe/api/internal/history"
	"scribe/api/internal/search"
	"scribe/api/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	opts := app.Options{}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()

		if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
		opts.DB = store.NewPostgresStore(db)

		pgfts := search.NewPgFTS(db)
		var meiliClient *search.Meili
		if strings.TrimSpace(cfg.MeiliURL) != "" {
			meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
			defer meiliClient.Close()
		}
		opts.Search = search.NewService(meiliClient, pgfts)
	} else {
		log.Printf("DATABASE_URL not set, running without persistence or search")
	}

	var localPort *files.LocalPort
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		port, err := files.NewMinioPort(ctx, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3UseSSL)
		if err != nil {
			log.Fatalf("object storage connection failed: %v", err)
		}
		opts.FilePort = port
		log.Printf("Reading uploaded files from s3://%s", cfg.S3Bucket)
	} else {
		port, err := files.NewLocalPort(cfg.UploadsDir, log.Default())
		if err != nil {
			log.Fatalf("uploads dir unavailable: %v", err)
		}
		localPort = port
		opts.FilePort = port
		log.Printf("Reading uploaded files from %s", cfg.UploadsDir)
	}

	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		opts.Generator = generate.NewOpenAIGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	} else {
		log.Printf("OPENAI_API_KEY not set, template generation disabled")
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := generate.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer cache.Close()
		opts.Cache = cache
		log.Printf("Using Redis for generation caching")
	}

	historyService, err := history.New(cfg.HistoryDir)
	if err != nil {
		log.Fatalf("history repository failed: %v", err)
	}
	opts.History = historyService

	service := app.NewService(cfg, opts)
	if err := service.Bootstrap(ctx); err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if localPort != nil {
		go func() {
			err := localPort.Watch(watchCtx, func() {
				service.ResyncFiles(watchCtx)
			})
			if err != nil && watchCtx.Err() == nil {
				log.Printf("WARNING: uploads watcher stopped: %v", err)
			}
		}()
	}

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
		log.Printf("Scribe API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	stopWatch()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	service.Shutdown()
}
