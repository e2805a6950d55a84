package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/vadimbarashkov/shortlink/internal/entity"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL       = 24 * time.Hour
	defaultMaxAttempts    = 10
	defaultStorageTimeout = 3 * time.Second
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

type codeGenerator interface {
	Generate() string
}

type clickRecorder interface {
	Record(shortCode string)
}

type Option func(*URLUseCase)

// WithCacheTTL sets how long resolved URLs stay in the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(uc *URLUseCase) {
		if ttl > 0 {
			uc.cacheTTL = ttl
		}
	}
}

// WithMaxAttempts bounds the number of candidate codes tried per shortening request.
func WithMaxAttempts(n int) Option {
	return func(uc *URLUseCase) {
		if n > 0 {
			uc.maxAttempts = n
		}
	}
}

// WithStorageTimeout bounds every call to the durable store.
func WithStorageTimeout(timeout time.Duration) Option {
	return func(uc *URLUseCase) {
		if timeout > 0 {
			uc.storageTimeout = timeout
		}
	}
}

type URLUseCase struct {
	urlRepo   urlRepository
	urlCache  urlCache
	generator codeGenerator
	clicks    clickRecorder
	logger    *slog.Logger

	cacheTTL       time.Duration
	maxAttempts    int
	storageTimeout time.Duration

	reads singleflight.Group
}

func New(
	urlRepo urlRepository,
	urlCache urlCache,
	generator codeGenerator,
	clicks clickRecorder,
	logger *slog.Logger,
	opts ...Option,
) *URLUseCase {
	uc := &URLUseCase{
		urlRepo:        urlRepo,
		urlCache:       urlCache,
		generator:      generator,
		clicks:         clicks,
		logger:         logger,
		cacheTTL:       defaultCacheTTL,
		maxAttempts:    defaultMaxAttempts,
		storageTimeout: defaultStorageTimeout,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

func validateURL(originalURL string) error {
	if strings.TrimSpace(originalURL) == "" {
		return entity.ErrInvalidURL
	}

	u, err := url.Parse(originalURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return entity.ErrInvalidURL
	}

	return nil
}

// storageErr keeps ErrURLNotFound matchable and tags everything else as ErrStorage.
func storageErr(op string, err error) error {
	if errors.Is(err, entity.ErrURLNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, entity.ErrStorage, err)
}

// writeContext detaches durable writes from caller cancellation.
func (uc *URLUseCase) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), uc.storageTimeout)
}

func (uc *URLUseCase) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, uc.storageTimeout)
}

func (uc *URLUseCase) findByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	ctx, cancel := uc.readContext(ctx)
	defer cancel()
	return uc.urlRepo.FindByOriginalURL(ctx, originalURL)
}

func (uc *URLUseCase) findByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	ctx, cancel := uc.readContext(ctx)
	defer cancel()
	return uc.urlRepo.FindByShortCode(ctx, shortCode)
}

func (uc *URLUseCase) save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error) {
	ctx, cancel := uc.writeContext(ctx)
	defer cancel()
	return uc.urlRepo.Save(ctx, shortCode, originalURL)
}

func (uc *URLUseCase) cacheURL(ctx context.Context, shortCode, originalURL string) {
	if err := uc.urlCache.Set(ctx, shortCode, originalURL, uc.cacheTTL); err != nil {
		uc.logger.Warn("failed to cache url",
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}
}

// ShortenURL returns the short code for originalURL, minting a new one only if
// the URL has not been shortened before.
func (uc *URLUseCase) ShortenURL(ctx context.Context, originalURL string) (*entity.ShortenResult, error) {
	const op = "usecase.URLUseCase.ShortenURL"

	if err := validateURL(originalURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	existing, err := uc.findByOriginalURL(ctx, originalURL)
	if err == nil {
		return &entity.ShortenResult{Status: entity.StatusAlreadyExists, URL: existing}, nil
	}
	if !errors.Is(err, entity.ErrURLNotFound) {
		return nil, storageErr(op, fmt.Errorf("failed to find url: %w", err))
	}

	for attempt := 0; attempt < uc.maxAttempts; attempt++ {
		shortCode := uc.generator.Generate()

		_, err := uc.findByShortCode(ctx, shortCode)
		if err == nil {
			uc.logger.Debug("short code collision", slog.String("short_code", shortCode), slog.Int("attempt", attempt+1))
			continue
		}
		if !errors.Is(err, entity.ErrURLNotFound) {
			return nil, storageErr(op, fmt.Errorf("failed to check short code: %w", err))
		}

		saved, err := uc.save(ctx, shortCode, originalURL)
		switch {
		case err == nil:
			uc.cacheURL(ctx, saved.ShortCode, saved.OriginalURL)
			return &entity.ShortenResult{Status: entity.StatusCreated, URL: saved}, nil

		case errors.Is(err, entity.ErrShortCodeExists):
			uc.logger.Debug("short code taken on insert", slog.String("short_code", shortCode), slog.Int("attempt", attempt+1))
			continue

		case errors.Is(err, entity.ErrOriginalURLExists):
			winner, err := uc.findByOriginalURL(ctx, originalURL)
			if err != nil {
				return nil, storageErr(op, fmt.Errorf("failed to find concurrently shortened url: %w", err))
			}
			return &entity.ShortenResult{Status: entity.StatusAlreadyExists, URL: winner}, nil

		default:
			return nil, storageErr(op, fmt.Errorf("failed to save url: %w", err))
		}
	}

	return nil, fmt.Errorf("%s: %w", op, entity.ErrCapacityExhausted)
}

// ResolveShortCode returns the original URL for shortCode and counts the click.
// Cache hits are counted asynchronously, misses synchronously.
func (uc *URLUseCase) ResolveShortCode(ctx context.Context, shortCode string) (string, error) {
	const op = "usecase.URLUseCase.ResolveShortCode"

	originalURL, ok, err := uc.urlCache.Get(ctx, shortCode)
	if err != nil {
		uc.logger.Warn("cache unavailable, falling back to storage",
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}
	if err == nil && ok {
		uc.clicks.Record(shortCode)
		return originalURL, nil
	}

	v, err, _ := uc.reads.Do(shortCode, func() (any, error) {
		rctx, cancel := uc.readContext(context.WithoutCancel(ctx))
		defer cancel()
		return uc.urlRepo.FindByShortCode(rctx, shortCode)
	})
	if err != nil {
		return "", storageErr(op, fmt.Errorf("failed to find url: %w", err))
	}
	url := v.(*entity.URL)

	uc.cacheURL(ctx, url.ShortCode, url.OriginalURL)

	wctx, cancel := uc.writeContext(ctx)
	defer cancel()

	if err := uc.urlRepo.IncrementAccessCount(wctx, shortCode, 1); err != nil {
		uc.logger.Error("failed to count click",
			slog.String("op", op),
			slog.String("short_code", shortCode),
			slog.Any("err", err),
		)
	}

	return url.OriginalURL, nil
}

// GetURLStats returns the stored record for shortCode without counting a click.
func (uc *URLUseCase) GetURLStats(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "usecase.URLUseCase.GetURLStats"

	url, err := uc.findByShortCode(ctx, shortCode)
	if err != nil {
		return nil, storageErr(op, fmt.Errorf("failed to get url stats: %w", err))
	}

	return url, nil
}
