package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/mrag/internal/config"
	"github.com/xxxsen/mrag/internal/handler"
	"github.com/xxxsen/mrag/internal/job"
	"github.com/xxxsen/mrag/internal/metrics"
	"github.com/xxxsen/mrag/internal/middleware"
	"github.com/xxxsen/mrag/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "mrag",
		Short: "retrieval augmented generation service",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run http server and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			return runServer(cfg, app)
		},
	}

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "initialize the vector store and load the corpus if it is empty",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			res, err := app.loader.Bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			logutil.GetLogger(cmd.Context()).Info("load finished",
				zap.Bool("loaded", res.Loaded),
				zap.Bool("existing", res.Existing),
				zap.Bool("skipped", res.Skipped),
				zap.Int("files", res.Files),
				zap.Int("vectors", res.Vectors),
			)
			return nil
		},
	}

	var reindexPause time.Duration
	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "re-embed every catalogued document into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			app, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.store.Initialize(cmd.Context()); err != nil {
				return fmt.Errorf("initialize vector store: %w", err)
			}
			_, err = app.ingest.Reindex(cmd.Context(), reindexPause)
			return err
		},
	}
	reindexCmd.Flags().DurationVar(&reindexPause, "pause", 200*time.Millisecond, "pause between documents")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd, loadCmd, reindexCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func runServer(cfg *config.Config, app *application) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("catalog", cfg.Catalog.Type),
		zap.String("corpus", cfg.Corpus.Type),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler, err := buildScheduler(cfg, app)
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()
	if cfg.Bootstrap.LoadOnStart {
		if err := scheduler.RunNow(job.NewCorpusBootstrapJob(app.loader).Name()); err != nil {
			return err
		}
	}

	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(app.ingest, cfg.UploadMaxBytes),
		Search:    handler.NewSearchHandler(app.search),
		System:    handler.NewSystemHandler(app.loader, app.store),
		ChatLimit: middleware.RateLimit(time.Duration(cfg.RateLimit.ChatWindowMs) * time.Millisecond),
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			metrics.Middleware(),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func buildScheduler(cfg *config.Config, app *application) (*schedule.CronScheduler, error) {
	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewCorpusBootstrapJob(app.loader), cfg.Bootstrap.Cron); err != nil {
		return nil, fmt.Errorf("schedule corpus bootstrap: %w", err)
	}
	if app.cacheRepo != nil {
		cleanup := job.NewEmbeddingCacheCleanupJob(app.cacheRepo, cfg.EmbedCache.MaxAgeDays)
		if err := scheduler.AddJob(cleanup, cfg.EmbedCache.CleanupCron); err != nil {
			return nil, fmt.Errorf("schedule embedding cache cleanup: %w", err)
		}
	}
	return scheduler, nil
}
