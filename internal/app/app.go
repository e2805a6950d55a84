package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/vadimbarashkov/shortlink/internal/clicks"
	"github.com/vadimbarashkov/shortlink/internal/config"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/internal/shortcode"
	"github.com/vadimbarashkov/shortlink/internal/usecase"
	"github.com/vadimbarashkov/shortlink/pkg/postgres"
	"golang.org/x/sync/errgroup"

	cachemem "github.com/vadimbarashkov/shortlink/internal/adapter/cache/memory"
	cacheredis "github.com/vadimbarashkov/shortlink/internal/adapter/cache/redis"
	delivery "github.com/vadimbarashkov/shortlink/internal/adapter/delivery/http"
	repomem "github.com/vadimbarashkov/shortlink/internal/adapter/repository/memory"
	repopg "github.com/vadimbarashkov/shortlink/internal/adapter/repository/postgres"
	redispkg "github.com/vadimbarashkov/shortlink/pkg/redis"
)

const (
	migrationsPath  = "file://migrations"
	shutdownTimeout = 10 * time.Second
)

type urlRepository interface {
	Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error)
	FindByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
	FindByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error)
	IncrementAccessCount(ctx context.Context, shortCode string, delta int64) error
}

type urlCache interface {
	Get(ctx context.Context, shortCode string) (string, bool, error)
	Set(ctx context.Context, shortCode, originalURL string, ttl time.Duration) error
}

func newURLRepository(ctx context.Context, cfg *config.Config) (urlRepository, io.Closer, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return repomem.NewURLRepository(), io.NopCloser(nil), nil

	default:
		db, err := postgres.New(
			ctx,
			cfg.Postgres.DSN(),
			postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
			postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
			postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
			postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		if err := postgres.RunMigrations(migrationsPath, cfg.Postgres.DSN()); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		return repopg.NewURLRepository(db), db, nil
	}
}

func newURLCache(ctx context.Context, cfg *config.Config) (urlCache, io.Closer, error) {
	switch cfg.Cache.Driver {
	case config.DriverMemory:
		return cachemem.NewURLCache(time.Minute), io.NopCloser(nil), nil

	default:
		client, err := redispkg.New(
			ctx,
			cfg.Redis.Addr(),
			redispkg.WithPassword(cfg.Redis.Password),
			redispkg.WithDB(cfg.Redis.DB),
			redispkg.WithDialTimeout(cfg.Redis.DialTimeout),
			redispkg.WithReadTimeout(cfg.Redis.ReadTimeout),
			redispkg.WithWriteTimeout(cfg.Redis.WriteTimeout),
			redispkg.WithPoolSize(cfg.Redis.PoolSize),
			redispkg.WithMinIdleConns(cfg.Redis.MinIdleConns),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		return cacheredis.NewURLCache(client), client, nil
	}
}

func Run(ctx context.Context, cfg *config.Config, logger *httplog.Logger) error {
	const op = "app.Run"

	urlRepo, repoCloser, err := newURLRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer repoCloser.Close()

	urlCache, cacheCloser, err := newURLCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer cacheCloser.Close()

	gen, err := shortcode.New(cfg.ShortCode.Alphabet, cfg.ShortCode.Length)
	if err != nil {
		return fmt.Errorf("%s: invalid short code settings: %w", op, err)
	}

	recorder := clicks.NewRecorder(urlRepo, logger.Logger, clicks.Config{
		QueueSize:     cfg.Clicks.QueueSize,
		BatchSize:     cfg.Clicks.BatchSize,
		FlushInterval: cfg.Clicks.FlushInterval,
		FlushTimeout:  cfg.Clicks.FlushTimeout,
	})

	urlUseCase := usecase.New(
		urlRepo,
		urlCache,
		gen,
		recorder,
		logger.Logger,
		usecase.WithCacheTTL(cfg.Cache.TTL),
		usecase.WithMaxAttempts(cfg.ShortCode.MaxAttempts),
		usecase.WithStorageTimeout(cfg.Storage.Timeout),
	)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        delivery.NewRouter(logger, urlUseCase),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		logger.Info("starting server",
			slog.String("addr", server.Addr),
			slog.String("storage", cfg.Storage.Driver),
			slog.String("cache", cfg.Cache.Driver),
		)

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error

		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s: failed to shutdown server: %w", op, err))
		}

		// in-flight requests are done, so no click can be recorded after this
		if err := recorder.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("%s: failed to flush clicks: %w", op, err))
		}

		logger.Info("server stopped")

		return errors.Join(errs...)
	})

	return g.Wait()
}
