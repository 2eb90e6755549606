package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"golang.org/x/text/language"

	"DF-TPLGEN/internal"
	"DF-TPLGEN/internal/config"
	"DF-TPLGEN/internal/handlers"
	"DF-TPLGEN/internal/importer"
	"DF-TPLGEN/internal/overlay"
	"DF-TPLGEN/internal/resolver"
	"DF-TPLGEN/internal/services"
	"DF-TPLGEN/internal/storage"
	"DF-TPLGEN/internal/store"
	"DF-TPLGEN/internal/variables"
)

func main() {
	envFile := pflag.String("env-file", ".env", "environment file to load before reading the process environment")
	port := pflag.String("port", "", "listen port, overrides SERVER_PORT")
	pflag.Parse()

	if err := run(*envFile, *port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(envFile, port string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Server.Port = port
	}

	logger := newLogger(cfg.Server)
	slog.SetDefault(logger)
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := internal.InitDB(cfg); err != nil {
		return err
	}
	defer internal.CloseDB()

	ctx := context.Background()
	blobs, closeBlobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBlobs()

	workDir := filepath.Join(cfg.Generation.WorkDir, "df-tplgen")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	registry, err := variables.Default()
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(cfg.Generation.Timezone)
	if err != nil {
		return err
	}
	lang, err := language.Parse(cfg.Generation.Locale)
	if err != nil {
		return fmt.Errorf("invalid GENERATION_LOCALE %q: %w", cfg.Generation.Locale, err)
	}

	pdfService, err := services.NewPDFService(cfg.Gotenberg.URL, cfg.Gotenberg.Timeout, logger)
	if err != nil {
		return err
	}

	templateStore := store.NewTemplates(internal.DB)
	cabecalhoStore := store.NewCabecalhos(internal.DB)
	generationStore := store.NewGenerations(internal.DB)

	im := importer.New(importer.Config{MaxSize: cfg.Generation.ImportMaxSize}, pdfService)
	jobs := importer.NewJobs(cfg.Generation.ImportTimeout, cfg.Generation.JobWorkers, logger)

	templateService := services.NewTemplateService(templateStore, blobs, logger)
	cabecalhoService := services.NewCabecalhoService(cabecalhoStore)
	pipeline := services.NewPipeline(services.PipelineConfig{
		Resolver:        resolver.New(registry, resolver.WithLocation(loc), resolver.WithLanguage(lang)),
		Headers:         cabecalhoStore,
		Blobs:           blobs,
		Stamper:         overlay.NewStamper(workDir),
		PDF:             pdfService,
		Usage:           templateStore,
		Logs:            generationStore,
		Timeout:         cfg.Gotenberg.Timeout,
		DefaultFontSize: cfg.Generation.DefaultFontSize,
		Parallelism:     cfg.Generation.Parallelism,
		Logger:          logger,
	})
	defer pipeline.Flush()

	cleanup := handlers.NewCleanupService(workDir, cfg.Generation.CleanupMaxAge, jobs, logger)
	cleanup.Start()
	defer cleanup.Stop()

	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition", "X-Generation-Report"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	variablesHandler := handlers.NewVariablesHandler(registry)
	templateHandler := handlers.NewTemplateHandler(templateService, im)
	importHandler := handlers.NewImportHandler(im, jobs, templateService)
	generateHandler := handlers.NewGenerateHandler(templateService, services.NewContextAssembler(store.NewDirectory(internal.DB)), pipeline)
	cabecalhoHandler := handlers.NewCabecalhoHandler(cabecalhoService)
	generationHandler := handlers.NewGenerationHandler(generationStore)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/variables", variablesHandler.ListGroups)

		v1.GET("/templates", templateHandler.List)
		v1.POST("/templates", templateHandler.CreateFlow)
		v1.GET("/templates/:id", templateHandler.Get)
		v1.PUT("/templates/:id", templateHandler.UpdateFlow)
		v1.DELETE("/templates/:id", templateHandler.Delete)
		v1.POST("/templates/:id/commands", templateHandler.ApplyCommands)
		v1.PUT("/templates/:id/fields", templateHandler.UpdateFields)
		v1.POST("/templates/:id/pdf", templateHandler.ReplacePDF)
		v1.POST("/templates/:id/trash", templateHandler.Trash)
		v1.POST("/templates/:id/restore", templateHandler.Restore)
		v1.POST("/templates/:id/generate", generateHandler.Generate)
		v1.POST("/templates/:id/generate/batch", generateHandler.GenerateBatch)

		v1.POST("/imports/flow", importHandler.ImportFlow)
		v1.POST("/imports/overlay", importHandler.ImportOverlay)
		v1.GET("/imports/:jobId", importHandler.Status)
		v1.DELETE("/imports/:jobId", importHandler.Cancel)

		v1.GET("/cabecalhos", cabecalhoHandler.List)
		v1.POST("/cabecalhos", cabecalhoHandler.Create)
		v1.GET("/cabecalhos/:id", cabecalhoHandler.Get)
		v1.PUT("/cabecalhos/:id", cabecalhoHandler.Update)
		v1.DELETE("/cabecalhos/:id", cabecalhoHandler.Delete)

		v1.GET("/generations", generationHandler.List)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port, "environment", cfg.Server.Environment, "storage", cfg.Storage.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down server", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newLogger(cfg config.ServerConfig) *slog.Logger {
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newBlobStore picks the storage backend for template PDFs.
func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, func(), error) {
	noop := func() {}
	switch cfg.Storage.Backend {
	case config.StorageGCS:
		gcs, err := storage.NewGCSClient(ctx, cfg.GCS.BucketName, cfg.GCS.ProjectID, cfg.GCS.CredentialsPath)
		if err != nil {
			return nil, noop, err
		}
		return gcs, func() {
			if err := gcs.Close(); err != nil {
				slog.Warn("failed to close gcs client", "error", err)
			}
		}, nil
	case config.StorageS3:
		s3, err := storage.NewS3Client(cfg.S3.Endpoint, cfg.S3.Region, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket)
		if err != nil {
			return nil, noop, err
		}
		return s3, noop, nil
	default:
		local, err := storage.NewLocalStore(cfg.Storage.LocalDir)
		if err != nil {
			return nil, noop, err
		}
		return local, noop, nil
	}
}
