package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"workreport/api/internal/app"
	"workreport/api/internal/archive"
	"workreport/api/internal/audio"
	"workreport/api/internal/config"
	"workreport/api/internal/export"
	"workreport/api/internal/llm"
	"workreport/api/internal/logging"
	"workreport/api/internal/notion"
	"workreport/api/internal/search"
	"workreport/api/internal/session"
	"workreport/api/internal/store"
)

var rootCmd = &cobra.Command{
	Use:           "workreport-api",
	Short:         "Daily and weekly work report service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default)",
	RunE:  runServe,
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger every command shares.
func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, store.Migrations(cfg.MigrationsDir)); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("meili"))
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, logger.Named("search"))
	if meiliClient != nil {
		go searchService.ReindexFromPG(context.WithoutCancel(ctx))
	}

	opts := app.Options{
		Config:  cfg,
		Store:   dataStore,
		Search:  searchService,
		Archive: archive.New(cfg.ArchiveDir, logger.Named("archive")),
		Export:  export.NewService(logger.Named("export")),
		Logger:  logger,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis for refresh tokens and sync locks")
		client, err := session.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer client.Close()
		opts.Refresh = session.NewRedisStore(client)
		opts.Locker = session.NewRedisLock(client, cfg.SyncLockTTL)
	} else {
		logger.Info("using postgres for refresh tokens and in-process sync locks")
	}

	notionClient := notion.NewClient(notion.Config{
		Token:   cfg.NotionToken,
		BaseURL: cfg.NotionBaseURL,
		Version: cfg.NotionVersion,
	}, logger.Named("notion"))
	if !notionClient.Configured() {
		logger.Warn("NOTION_API_TOKEN is not set; sync requests will answer 503")
	}
	opts.Notion = notion.NewExecutor(notionClient, logger.Named("notion"))

	llmClient, err := newLLMClient(ctx, cfg, logger.Named("llm"))
	if err != nil {
		return err
	}
	opts.LLM = llm.WithMetrics(llmClient)

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		objects, err := audio.NewMinioStore(ctx, audio.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Secure:    cfg.MinioSecure,
		}, logger.Named("minio"))
		if err != nil {
			return fmt.Errorf("object storage failed: %w", err)
		}
		whisper := audio.NewWhisperClient(audio.WhisperConfig{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.TranscribeModel,
			Timeout: cfg.LLMTimeout,
		}, logger.Named("whisper"))
		opts.Audio = audio.NewService(objects, whisper, dataStore, logger.Named("audio"))
	}

	service := app.New(opts)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger.Named("http"))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("work report API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	return nil
}

func newLLMClient(ctx context.Context, cfg config.Config, logger *zap.Logger) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "gemini":
		client, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{APIKey: cfg.LLMAPIKey, Model: cfg.LLMModel}, logger)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return client, nil
	case "openai", "":
		return llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.LLMAPIKey,
			BaseURL: cfg.LLMBaseURL,
			Model:   cfg.LLMModel,
			Timeout: cfg.LLMTimeout,
		}, logger), nil
	}
	return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
}
