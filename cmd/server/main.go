package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sunublog/sunublog/internal/api"
	"github.com/sunublog/sunublog/internal/auth"
	"github.com/sunublog/sunublog/internal/blog"
	"github.com/sunublog/sunublog/internal/cache"
	"github.com/sunublog/sunublog/internal/db"
	"github.com/sunublog/sunublog/internal/scheduler"
	"github.com/sunublog/sunublog/pkg/config"
	"github.com/sunublog/sunublog/pkg/logging"
	"github.com/sunublog/sunublog/pkg/snowflake"
	"github.com/sunublog/sunublog/pkg/telemetry"
)

func main() {
	app := &cli.App{
		Name:           "sunublog",
		Usage:          "social blogging API server",
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the HTTP server and the scheduled article publisher",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "create or update the database schema and exit",
				Action: migrate,
			},
			{
				Name:   "publish-scheduled",
				Usage:  "publish every scheduled article that is due and exit",
				Action: publishScheduled,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "sunublog: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and initializes logging and id generation
func setup() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := snowflake.Init(cfg.Snowflake.Node); err != nil {
		return nil, fmt.Errorf("failed to initialize id generator: %w", err)
	}
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg *config.Config, migrate bool) (*db.DB, error) {
	database, err := db.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if migrate {
		if err := database.Migrate(ctx); err != nil {
			_ = database.Close()
			return nil, err
		}
	}
	return database, nil
}

func migrate(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logging.GetLogger().Sync()

	database, err := openDatabase(c.Context, cfg, true)
	if err != nil {
		return err
	}
	defer database.Close()

	logging.GetLogger().Info("Database schema is up to date", zap.String("driver", cfg.Database.Driver))
	return nil
}

func publishScheduled(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logging.GetLogger().Sync()

	database, err := openDatabase(c.Context, cfg, cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer database.Close()

	services := blog.NewServices(db.NewRepository(database.DB), blog.Options{})
	_, err = scheduler.NewPublisher(services.Content, &cfg.Scheduler).RunOnce(c.Context)
	return err
}

func serve(c *cli.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting SunuBlog API Server")

	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer telemetryShutdown()

	database, err := openDatabase(c.Context, cfg, cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	defer database.Close()

	redisCache, err := cache.New(&cfg.Redis)
	if err != nil {
		// The API works without Redis; revocation and unread-count caching are off
		logger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		redisCache = nil
	}
	defer redisCache.Close()

	services := blog.NewServices(db.NewRepository(database.DB), blog.Options{Cache: redisCache})
	tokens := auth.NewTokenService(&cfg.Auth, redisCache)

	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.NewRouter(services, tokens, database, redisCache).SetupRoutes(engine)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	eg, groupCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	if cfg.Scheduler.Enabled {
		publisher := scheduler.NewPublisher(services.Content, &cfg.Scheduler)
		eg.Go(func() error {
			if err := publisher.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	eg.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Server exited")
	return nil
}
