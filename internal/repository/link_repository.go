package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/linkgate/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
)

type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByShortCode(ctx context.Context, code string) (*models.Link, error)
	GetByID(ctx context.Context, id int64) (*models.Link, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Link, error)
	Delete(ctx context.Context, id int64) error
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

// Create вставляет ссылку целиком; ограничение уникальности short_code
// в БД — единственный арбитр при гонке за один и тот же код
func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO links (short_code, original_url, owner_id, password_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, click_count, created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.ShortCode,
		link.OriginalURL,
		link.OwnerID,
		link.PasswordHash,
		link.ExpiresAt,
		link.CreatedAt,
	).Scan(&link.ID, &link.ClickCount, &link.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

// GetByShortCode возвращает ссылку в любом состоянии: просрочку и
// парольную защиту классифицирует сервис, а не запрос
func (r *linkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, short_code, original_url, owner_id, password_hash, expires_at,
		       click_count, last_clicked, created_at
		FROM links
		WHERE short_code = $1
	`

	return r.scanLink(r.db.Pool.QueryRow(ctx, query, code))
}

func (r *linkRepository) GetByID(ctx context.Context, id int64) (*models.Link, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, short_code, original_url, owner_id, password_hash, expires_at,
		       click_count, last_clicked, created_at
		FROM links
		WHERE id = $1
	`

	return r.scanLink(r.db.Pool.QueryRow(ctx, query, id))
}

func (r *linkRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Link, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, short_code, original_url, owner_id, password_hash, expires_at,
		       click_count, last_clicked, created_at
		FROM links
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	links := []*models.Link{}
	for rows.Next() {
		link, err := r.scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating links: %w", err)
	}

	return links, nil
}

// Delete удаляет ссылку; события кликов уходят каскадом по FK
func (r *linkRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `DELETE FROM links WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *linkRepository) scanLink(row pgx.Row) (*models.Link, error) {
	link := &models.Link{}
	err := row.Scan(
		&link.ID,
		&link.ShortCode,
		&link.OriginalURL,
		&link.OwnerID,
		&link.PasswordHash,
		&link.ExpiresAt,
		&link.ClickCount,
		&link.LastClicked,
		&link.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

// isUniqueViolation проверяет нарушение ограничения уникальности (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
