// Package memory provides an in-process URL repository with the same uniqueness
// guarantees as the PostgreSQL schema. It backs the "memory" storage driver and
// the use case tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vadimbarashkov/shortlink/internal/entity"
)

type URLRepository struct {
	mu          sync.RWMutex
	nextID      int64
	byShortCode map[string]*entity.URL
	byOriginal  map[string]string
	now         func() time.Time
}

func NewURLRepository() *URLRepository {
	return &URLRepository{
		byShortCode: make(map[string]*entity.URL),
		byOriginal:  make(map[string]string),
		now:         time.Now,
	}
}

func clone(u *entity.URL) *entity.URL {
	c := *u
	return &c
}

func (r *URLRepository) Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.Save"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byShortCode[shortCode]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}
	if _, ok := r.byOriginal[originalURL]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrOriginalURLExists)
	}

	r.nextID++
	url := &entity.URL{
		ID:          r.nextID,
		ShortCode:   shortCode,
		OriginalURL: originalURL,
		CreatedAt:   r.now().UTC(),
	}
	r.byShortCode[shortCode] = url
	r.byOriginal[originalURL] = shortCode

	return clone(url), nil
}

func (r *URLRepository) FindByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.FindByShortCode"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	url, ok := r.byShortCode[shortCode]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return clone(url), nil
}

func (r *URLRepository) FindByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.memory.URLRepository.FindByOriginalURL"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	shortCode, ok := r.byOriginal[originalURL]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return clone(r.byShortCode[shortCode]), nil
}

func (r *URLRepository) IncrementAccessCount(ctx context.Context, shortCode string, delta int64) error {
	const op = "adapter.repository.memory.URLRepository.IncrementAccessCount"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	url, ok := r.byShortCode[shortCode]
	if !ok {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	url.AccessCount += delta
	return nil
}
