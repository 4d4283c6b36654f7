package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/linkgate/internal/models"
	"github.com/SergeiKhy/linkgate/internal/repository"
	"go.uber.org/zap"
)

// ErrRecordingFailed клик не записан; редирект в этом случае не выдаётся
var ErrRecordingFailed = errors.New("не удалось записать клик")

// Таймаут записи клика: запись либо фиксируется быстро, либо считается
// неудавшейся. Повторов нет - повтор записи означал бы риск двойного счёта
const recordTimeout = 5 * time.Second

// ClickRecorder записывает события кликов и отдаёт агрегаты по ним.
// Запись синхронная: редирект выдаётся только после фиксации события
// вместе с инкрементом счётчика (fail-closed)
type ClickRecorder interface {
	Record(ctx context.Context, event *models.ClickEvent) error
	GetDailyStats(ctx context.Context, linkID int64) ([]models.DailyClickStats, error)
}

type clickRecorder struct {
	clickRepo repository.ClickRepository
	logger    *zap.Logger
}

// NewClickRecorder создаёт новый рекордер кликов
func NewClickRecorder(clickRepo repository.ClickRepository, logger *zap.Logger) ClickRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &clickRecorder{
		clickRepo: clickRepo,
		logger:    logger,
	}
}

// Record записывает одно событие клика. Вставка события и инкремент
// счётчика - одна транзакция в хранилище; любая ошибка означает, что не
// произошло ни того, ни другого
func (r *clickRecorder) Record(ctx context.Context, event *models.ClickEvent) error {
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	ip := event.IPAddress
	if ip == "" {
		ip = "unknown"
	}

	click := &models.Click{
		LinkID:    event.LinkID,
		IPAddress: ip,
		UserAgent: event.UserAgent,
		Referrer:  event.Referrer,
		ClickedAt: time.Now(),
	}

	if err := r.clickRepo.RecordClick(ctx, click); err != nil {
		r.logger.Error("Не удалось записать клик",
			zap.Int64("link_id", event.LinkID),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %v", ErrRecordingFailed, err)
	}

	return nil
}

// GetDailyStats дневная статистика кликов по ссылке
func (r *clickRecorder) GetDailyStats(ctx context.Context, linkID int64) ([]models.DailyClickStats, error) {
	return r.clickRepo.GetDailyStats(ctx, linkID)
}
