package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

func TestURLRepository_Save(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		repo := NewURLRepository()
		createdAt := time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)
		repo.now = func() time.Time { return createdAt }

		url, err := repo.Save(context.Background(), "abc123", "https://example.com")

		assert.NoError(t, err)
		assert.Equal(t, &entity.URL{
			ID:          1,
			ShortCode:   "abc123",
			OriginalURL: "https://example.com",
			CreatedAt:   createdAt,
		}, url)
	})

	t.Run("short code exists", func(t *testing.T) {
		repo := NewURLRepository()
		_, err := repo.Save(context.Background(), "abc123", "https://example.com")
		require.NoError(t, err)

		url, err := repo.Save(context.Background(), "abc123", "https://other.example.com")

		assert.ErrorIs(t, err, entity.ErrShortCodeExists)
		assert.Nil(t, url)
	})

	t.Run("original url exists", func(t *testing.T) {
		repo := NewURLRepository()
		_, err := repo.Save(context.Background(), "abc123", "https://example.com")
		require.NoError(t, err)

		url, err := repo.Save(context.Background(), "xyz789", "https://example.com")

		assert.ErrorIs(t, err, entity.ErrOriginalURLExists)
		assert.Nil(t, url)
	})

	t.Run("cancelled context", func(t *testing.T) {
		repo := NewURLRepository()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		url, err := repo.Save(ctx, "abc123", "https://example.com")

		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, url)
	})
}

func TestURLRepository_Find(t *testing.T) {
	repo := NewURLRepository()
	_, err := repo.Save(context.Background(), "abc123", "https://example.com")
	require.NoError(t, err)

	t.Run("by short code", func(t *testing.T) {
		url, err := repo.FindByShortCode(context.Background(), "abc123")

		assert.NoError(t, err)
		assert.Equal(t, "https://example.com", url.OriginalURL)
	})

	t.Run("by original url", func(t *testing.T) {
		url, err := repo.FindByOriginalURL(context.Background(), "https://example.com")

		assert.NoError(t, err)
		assert.Equal(t, "abc123", url.ShortCode)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByShortCode(context.Background(), "missing")
		assert.ErrorIs(t, err, entity.ErrURLNotFound)

		_, err = repo.FindByOriginalURL(context.Background(), "https://missing.example.com")
		assert.ErrorIs(t, err, entity.ErrURLNotFound)
	})

	t.Run("returned record is a copy", func(t *testing.T) {
		url, err := repo.FindByShortCode(context.Background(), "abc123")
		require.NoError(t, err)

		url.OriginalURL = "https://mutated.example.com"

		again, err := repo.FindByShortCode(context.Background(), "abc123")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", again.OriginalURL)
	})
}

func TestURLRepository_IncrementAccessCount(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		repo := NewURLRepository()

		err := repo.IncrementAccessCount(context.Background(), "missing", 1)

		assert.ErrorIs(t, err, entity.ErrURLNotFound)
	})

	t.Run("concurrent", func(t *testing.T) {
		repo := NewURLRepository()
		_, err := repo.Save(context.Background(), "abc123", "https://example.com")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, repo.IncrementAccessCount(context.Background(), "abc123", 2))
			}()
		}
		wg.Wait()

		url, err := repo.FindByShortCode(context.Background(), "abc123")
		require.NoError(t, err)
		assert.Equal(t, int64(200), url.AccessCount)
	})
}
