package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const (
	uniqueViolationErrCode = "23505"

	shortCodeConstraint   = "urls_short_code_key"
	originalURLConstraint = "urls_original_url_key"
)

// uniqueViolation reports the constraint violated by err, if err is a unique violation.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.SQLState() != uniqueViolationErrCode {
		return "", false
	}
	return pgErr.ConstraintName, true
}

type urlDB struct {
	ID          int64     `db:"id"`
	ShortCode   string    `db:"short_code"`
	OriginalURL string    `db:"original_url"`
	AccessCount int64     `db:"access_count"`
	CreatedAt   time.Time `db:"created_at"`
}

func (u *urlDB) toEntity() *entity.URL {
	return &entity.URL{
		ID:          u.ID,
		ShortCode:   u.ShortCode,
		OriginalURL: u.OriginalURL,
		URLStats: entity.URLStats{
			AccessCount: u.AccessCount,
		},
		CreatedAt: u.CreatedAt,
	}
}

type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{db: db}
}

func (r *URLRepository) Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.Save"
	const query = `INSERT INTO urls(short_code, original_url) VALUES ($1, $2)
		RETURNING id, short_code, original_url, access_count, created_at`

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, shortCode, originalURL); err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			switch constraint {
			case shortCodeConstraint:
				return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
			case originalURLConstraint:
				return nil, fmt.Errorf("%s: %w", op, entity.ErrOriginalURLExists)
			default:
				return nil, fmt.Errorf("%s: unexpected unique violation on %q: %w", op, constraint, err)
			}
		}

		return nil, fmt.Errorf("%s: failed to insert into urls table: %w", op, err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) FindByShortCode(ctx context.Context, shortCode string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.FindByShortCode"
	const query = `SELECT id, short_code, original_url, access_count, created_at
		FROM urls WHERE short_code = $1`

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from urls table: %w", op, err)
	}

	return url.toEntity(), nil
}

// FindByOriginalURL goes through the md5 expression index backing urls_original_url_key.
func (r *URLRepository) FindByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error) {
	const op = "adapter.repository.postgres.URLRepository.FindByOriginalURL"
	const query = `SELECT id, short_code, original_url, access_count, created_at
		FROM urls WHERE md5(original_url) = md5($1) AND original_url = $1`

	var url urlDB

	if err := r.db.GetContext(ctx, &url, query, originalURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from urls table: %w", op, err)
	}

	return url.toEntity(), nil
}

func (r *URLRepository) IncrementAccessCount(ctx context.Context, shortCode string, delta int64) error {
	const op = "adapter.repository.postgres.URLRepository.IncrementAccessCount"
	const query = `UPDATE urls SET access_count = access_count + $1 WHERE short_code = $2`

	res, err := r.db.ExecContext(ctx, query, delta, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to update urls table row: %w", op, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, entity.ErrURLNotFound)
	}

	return nil
}
