package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/SergeiKhy/linkgate/internal/models"
	"github.com/SergeiKhy/linkgate/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Ошибки сервиса
var (
	ErrInvalidURL          = errors.New("невалидный URL назначения")
	ErrInvalidCode         = errors.New("невалидный кастомный код")
	ErrCodeTaken           = errors.New("короткий код уже занят")
	ErrGenerationExhausted = errors.New("не удалось сгенерировать уникальный код")
	ErrIncorrectPassword   = errors.New("неверный пароль")
	ErrLinkExpired         = errors.New("срок действия ссылки истёк")
	ErrLinkNotFound        = errors.New("ссылка не найдена")
	ErrNotOwner            = errors.New("ссылка принадлежит другому владельцу")
)

// Константы сервиса
const (
	cacheTTL     = 24 * time.Hour
	maxCodeLen   = 64
	// Сколько раз пробуем новый сгенерированный код, прежде чем сдаться.
	// Срабатывание лимита — сигнал исчерпания алфавита или сбоя
	// источника случайности, а не штатная ситуация
	maxGenerateAttempts = 5
	// Повторы только для идемпотентных чтений; запись клика не
	// повторяется никогда (риск двойного счёта)
	maxLookupAttempts = 3
)

var (
	codePattern   = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	schemePattern = regexp.MustCompile(`(?i)^https?://`)
)

// ResolutionState состояние ссылки с точки зрения посетителя
type ResolutionState int

const (
	// StateNotFound код никому не принадлежит
	StateNotFound ResolutionState = iota
	// StateExpired срок действия истёк; проверяется раньше пароля,
	// чтобы просроченная защищённая ссылка не выдавала форму ввода
	StateExpired
	// StatePasswordRequired нужна разблокировка через Unlock
	StatePasswordRequired
	// StateActive можно записывать клик и редиректить
	StateActive
)

// Resolution результат классификации короткого кода
type Resolution struct {
	State ResolutionState
	Link  *models.Link
}

// LinkService интерфейс движка ссылок: авторинг, резолвинг и парольный шлюз
type LinkService interface {
	CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error)
	Resolve(ctx context.Context, code string) (*Resolution, error)
	Unlock(ctx context.Context, code, password string) (*models.Link, error)
	GetOwnedLink(ctx context.Context, ownerID string, linkID int64) (*models.Link, error)
	ListLinks(ctx context.Context, ownerID string) ([]*models.Link, error)
	DeleteLink(ctx context.Context, ownerID string, linkID int64) error
}

// linkService реализация сервиса ссылок
type linkService struct {
	linkRepo   repository.LinkRepository
	cacheRepo  repository.CacheRepository
	logger     *zap.Logger
	bcryptCost int
}

// NewLinkService создаёт новый экземпляр сервиса. bcryptCost == 0 означает
// стоимость по умолчанию (проверка пароля укладывается в 50-200мс)
func NewLinkService(
	linkRepo repository.LinkRepository,
	cacheRepo repository.CacheRepository,
	logger *zap.Logger,
	bcryptCost int,
) LinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &linkService{
		linkRepo:   linkRepo,
		cacheRepo:  cacheRepo,
		logger:     logger,
		bcryptCost: bcryptCost,
	}
}

// CreateLink создаёт новую короткую ссылку
func (s *linkService) CreateLink(ctx context.Context, input *models.CreateLinkInput) (*models.Link, error) {
	// Нормализация и валидация URL
	originalURL, err := normalizeURL(input.OriginalURL)
	if err != nil {
		return nil, err
	}

	// Хэширование пароля; открытый текст не сохраняется и не логируется
	var passwordHash *string
	if input.Password != nil && *input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*input.Password), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		h := string(hash)
		passwordHash = &h
	}

	link := &models.Link{
		OriginalURL:  originalURL,
		OwnerID:      input.OwnerID,
		PasswordHash: passwordHash,
		ExpiresAt:    input.ExpiresAt,
		CreatedAt:    time.Now(),
	}

	if input.CustomCode != nil && *input.CustomCode != "" {
		if err := s.createWithCustomCode(ctx, link, *input.CustomCode); err != nil {
			return nil, err
		}
	} else {
		if err := s.createWithGeneratedCode(ctx, link); err != nil {
			return nil, err
		}
	}

	// Кэширование: ошибка кэша не отменяет уже созданную ссылку
	if ttl := s.cacheTTLFor(link); ttl > 0 {
		if err := s.cacheRepo.Set(ctx, link.ShortCode, link, ttl); err != nil {
			s.logger.Warn("Не удалось закэшировать ссылку",
				zap.String("short_code", link.ShortCode),
				zap.Error(err),
			)
		}
	}

	return link, nil
}

// createWithCustomCode резервирует пользовательский код. Предварительная
// проверка существования — только оптимизация: при гонке за один код
// арбитром остаётся ограничение уникальности в БД
func (s *linkService) createWithCustomCode(ctx context.Context, link *models.Link, code string) error {
	if len(code) > maxCodeLen || !codePattern.MatchString(code) {
		return ErrInvalidCode
	}

	_, err := s.linkRepo.GetByShortCode(ctx, code)
	if err == nil {
		return ErrCodeTaken
	}
	if !errors.Is(err, repository.ErrLinkNotFound) {
		return fmt.Errorf("failed to check code availability: %w", err)
	}

	link.ShortCode = code
	if err := s.linkRepo.Create(ctx, link); err != nil {
		if errors.Is(err, repository.ErrCodeExists) {
			// Конкурент успел первым: для вызывающего неотличимо
			// от результата предварительной проверки
			return ErrCodeTaken
		}
		return err
	}

	return nil
}

// createWithGeneratedCode подбирает свободный сгенерированный код с
// ограниченным числом попыток
func (s *linkService) createWithGeneratedCode(ctx context.Context, link *models.Link) error {
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		code, err := generateShortCode()
		if err != nil {
			return fmt.Errorf("failed to generate code: %w", err)
		}

		if _, err := s.linkRepo.GetByShortCode(ctx, code); err == nil {
			// Код занят, пробуем следующий
			continue
		} else if !errors.Is(err, repository.ErrLinkNotFound) {
			return fmt.Errorf("failed to check code availability: %w", err)
		}

		link.ShortCode = code
		err = s.linkRepo.Create(ctx, link)
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrCodeExists) {
			// Гонка на вставке: повторяем с новым кодом
			continue
		}
		return err
	}

	// Операционная тревога: либо алфавит почти исчерпан, либо источник
	// случайности деградировал
	s.logger.Error("Исчерпаны попытки генерации короткого кода",
		zap.Int("attempts", maxGenerateAttempts),
	)
	return ErrGenerationExhausted
}

// Resolve классифицирует короткий код. Порядок проверок фиксирован:
// not found -> expired -> password -> active
func (s *linkService) Resolve(ctx context.Context, code string) (*Resolution, error) {
	link, err := s.getLink(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return &Resolution{State: StateNotFound}, nil
		}
		return nil, err
	}

	if link.ExpiredAt(time.Now()) {
		return &Resolution{State: StateExpired, Link: link}, nil
	}

	if link.Protected() {
		return &Resolution{State: StatePasswordRequired, Link: link}, nil
	}

	return &Resolution{State: StateActive, Link: link}, nil
}

// Unlock сверяет пароль с хэшем. Отсутствующая и незащищённая ссылка
// неразличимы для вызывающего, чтобы не раскрывать, какой это случай
func (s *linkService) Unlock(ctx context.Context, code, password string) (*models.Link, error) {
	link, err := s.getLink(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	if !link.Protected() {
		return nil, ErrLinkNotFound
	}

	// Просрочка проверяется раньше пароля, как и в Resolve
	if link.ExpiredAt(time.Now()) {
		return nil, ErrLinkExpired
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(password)); err != nil {
		return nil, ErrIncorrectPassword
	}

	return link, nil
}

// GetOwnedLink возвращает ссылку, если она принадлежит ownerID
func (s *linkService) GetOwnedLink(ctx context.Context, ownerID string, linkID int64) (*models.Link, error) {
	link, err := s.linkRepo.GetByID(ctx, linkID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	if link.OwnerID != ownerID {
		return nil, ErrNotOwner
	}

	return link, nil
}

// ListLinks возвращает ссылки владельца, новые первыми
func (s *linkService) ListLinks(ctx context.Context, ownerID string) ([]*models.Link, error) {
	return s.linkRepo.ListByOwner(ctx, ownerID)
}

// DeleteLink удаляет ссылку владельца; события кликов уходят каскадом
func (s *linkService) DeleteLink(ctx context.Context, ownerID string, linkID int64) error {
	link, err := s.GetOwnedLink(ctx, ownerID, linkID)
	if err != nil {
		return err
	}

	if err := s.linkRepo.Delete(ctx, linkID); err != nil {
		return err
	}

	// Кэш чистится после удаления в БД: при обратном порядке
	// параллельный резолвер успевает перечитать строку и вернуть
	// удалённую ссылку в кэш на весь TTL
	if err := s.cacheRepo.Delete(ctx, link.ShortCode); err != nil {
		s.logger.Warn("Не удалось удалить ссылку из кэша",
			zap.String("short_code", link.ShortCode),
			zap.Error(err),
		)
	}

	return nil
}

// getLink получает ссылку по коду: сначала из кэша, затем из БД.
// Чтение из БД повторяется ограниченное число раз - это единственная
// операция, где повтор безопасен
func (s *linkService) getLink(ctx context.Context, code string) (*models.Link, error) {
	if link, err := s.cacheRepo.Get(ctx, code); err == nil {
		return link, nil
	}

	var link *models.Link
	var err error
	for attempt := 1; attempt <= maxLookupAttempts; attempt++ {
		link, err = s.linkRepo.GetByShortCode(ctx, code)
		if err == nil || errors.Is(err, repository.ErrLinkNotFound) {
			break
		}
		if attempt < maxLookupAttempts {
			s.logger.Debug("Повторная попытка чтения ссылки",
				zap.String("short_code", code),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			// Пауза прерывается отменой запроса: отменённый запрос
			// не должен продолжать долбить хранилище
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}
	}
	if err != nil {
		return nil, err
	}

	if ttl := s.cacheTTLFor(link); ttl > 0 {
		if err := s.cacheRepo.Set(ctx, code, link, ttl); err != nil {
			s.logger.Warn("Не удалось закэшировать ссылку",
				zap.String("short_code", code),
				zap.Error(err),
			)
		}
	}

	return link, nil
}

// cacheTTLFor кэш не должен жить дольше самой ссылки
func (s *linkService) cacheTTLFor(link *models.Link) time.Duration {
	ttl := cacheTTL
	if link.ExpiresAt != nil {
		if until := time.Until(*link.ExpiresAt); until < ttl {
			ttl = until
		}
	}
	return ttl
}

// normalizeURL приводит адрес назначения к абсолютному URL: обрезает
// пробелы и добавляет https://, если схема не указана. Повторный вызов
// результата не меняет
func normalizeURL(raw string) (string, error) {
	fixed := strings.TrimSpace(raw)
	if fixed == "" {
		return "", ErrInvalidURL
	}

	if !schemePattern.MatchString(fixed) {
		fixed = "https://" + fixed
	}

	u, err := url.Parse(fixed)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", ErrInvalidURL
	}

	return fixed, nil
}
