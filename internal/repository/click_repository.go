package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/linkgate/internal/models"
)

type ClickRepository interface {
	RecordClick(ctx context.Context, click *models.Click) error
	GetDailyStats(ctx context.Context, linkID int64) ([]models.DailyClickStats, error)
}

type clickRepository struct {
	db *PostgresDB
}

func NewClickRepository(db *PostgresDB) ClickRepository {
	return &clickRepository{db: db}
}

// RecordClick записывает событие клика и инкремент счётчика одной
// транзакцией: читатель никогда не увидит одно без другого.
// Инкремент выполняется на стороне БД (click_count = click_count + 1),
// без read-modify-write в приложении
func (r *clickRepository) RecordClick(ctx context.Context, click *models.Click) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin click transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if click.ClickedAt.IsZero() {
		click.ClickedAt = time.Now()
	}

	insertQuery := `
		INSERT INTO clicks (link_id, ip_address, user_agent, referrer, clicked_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err = tx.QueryRow(ctx, insertQuery,
		click.LinkID,
		click.IPAddress,
		click.UserAgent,
		click.Referrer,
		click.ClickedAt,
	).Scan(&click.ID)
	if err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}

	updateQuery := `
		UPDATE links
		SET click_count = click_count + 1, last_clicked = $2
		WHERE id = $1
	`

	result, err := tx.Exec(ctx, updateQuery, click.LinkID, click.ClickedAt)
	if err != nil {
		return fmt.Errorf("failed to increment click count: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Ссылку успели удалить: откатываем и событие тоже
		return ErrLinkNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit click transaction: %w", err)
	}

	return nil
}

// GetDailyStats возвращает по одной записи на каждый календарный день,
// в котором был хотя бы один клик, по возрастанию даты
func (r *clickRepository) GetDailyStats(ctx context.Context, linkID int64) ([]models.DailyClickStats, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT to_char(clicked_at::date, 'YYYY-MM-DD') AS date,
		       COUNT(*) AS count
		FROM clicks
		WHERE link_id = $1
		GROUP BY 1
		ORDER BY 1 ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats: %w", err)
	}
	defer rows.Close()

	stats := []models.DailyClickStats{}
	for rows.Next() {
		var dailyStat models.DailyClickStats
		if err := rows.Scan(&dailyStat.Date, &dailyStat.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		stats = append(stats, dailyStat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats: %w", err)
	}

	return stats, nil
}
