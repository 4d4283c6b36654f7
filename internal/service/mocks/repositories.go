package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/linkgate/internal/models"
	"github.com/SergeiKhy/linkgate/internal/repository"
)

// MockLinkRepository implements repository.LinkRepository for testing
type MockLinkRepository struct {
	mu     sync.RWMutex
	links  map[string]*models.Link // short code -> link
	nextID int64

	// CreateErr, when set, is returned by every Create call
	CreateErr error

	// DeleteErr, when set, is returned by every Delete call
	DeleteErr error

	// GetErr, when set, is returned by GetByShortCode. GetFailures
	// limits it to the next N calls, after which the error clears
	// (a transient failure); zero means every call fails
	GetErr      error
	GetFailures int
	getCalls    int
}

func NewMockLinkRepository() *MockLinkRepository {
	return &MockLinkRepository{
		links:  make(map[string]*models.Link),
		nextID: 1,
	}
}

func (m *MockLinkRepository) Create(ctx context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return m.CreateErr
	}

	if _, exists := m.links[link.ShortCode]; exists {
		return repository.ErrCodeExists
	}

	link.ID = m.nextID
	m.nextID++
	stored := *link
	m.links[link.ShortCode] = &stored
	return nil
}

func (m *MockLinkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.GetErr != nil {
		err := m.GetErr
		if m.GetFailures > 0 {
			m.GetFailures--
			if m.GetFailures == 0 {
				m.GetErr = nil
			}
		}
		return nil, err
	}

	link, exists := m.links[code]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (m *MockLinkRepository) GetByID(ctx context.Context, id int64) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, link := range m.links {
		if link.ID == id {
			copied := *link
			return &copied, nil
		}
	}
	return nil, repository.ErrLinkNotFound
}

func (m *MockLinkRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	links := []*models.Link{}
	for _, link := range m.links {
		if link.OwnerID == ownerID {
			copied := *link
			links = append(links, &copied)
		}
	}
	sort.Slice(links, func(i, j int) bool {
		return links[i].CreatedAt.After(links[j].CreatedAt)
	})
	return links, nil
}

func (m *MockLinkRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.DeleteErr != nil {
		return m.DeleteErr
	}

	for code, link := range m.links {
		if link.ID == id {
			delete(m.links, code)
			return nil
		}
	}
	return repository.ErrLinkNotFound
}

// GetCalls returns the number of GetByShortCode calls so far
func (m *MockLinkRepository) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}

func (m *MockLinkRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = make(map[string]*models.Link)
	m.nextID = 1
	m.CreateErr = nil
	m.DeleteErr = nil
	m.GetErr = nil
	m.GetFailures = 0
	m.getCalls = 0
}

// MockCacheRepository implements repository.CacheRepository for testing
type MockCacheRepository struct {
	mu    sync.RWMutex
	cache map[string]*models.Link

	// SetErr, when set, is returned by every Set call
	SetErr error
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		cache: make(map[string]*models.Link),
	}
}

func (m *MockCacheRepository) Get(ctx context.Context, key string) (*models.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, exists := m.cache[key]
	if !exists {
		return nil, repository.ErrLinkNotFound
	}
	return link, nil
}

func (m *MockCacheRepository) Set(ctx context.Context, key string, link *models.Link, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.cache[key] = link
	return nil
}

func (m *MockCacheRepository) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, key)
	return nil
}

func (m *MockCacheRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*models.Link)
	m.SetErr = nil
}

// MockClickRepository implements repository.ClickRepository for testing.
// It mirrors the store's transactional pairing: the click append and the
// counter increment on the owning link happen under one lock, or not at all.
type MockClickRepository struct {
	mu     sync.Mutex
	links  *MockLinkRepository
	clicks map[int64][]*models.Click // link_id -> clicks
	nextID int64

	// RecordErr, when set, is returned by every RecordClick call
	RecordErr error
}

func NewMockClickRepository(links *MockLinkRepository) *MockClickRepository {
	return &MockClickRepository{
		links:  links,
		clicks: make(map[int64][]*models.Click),
		nextID: 1,
	}
}

func (m *MockClickRepository) RecordClick(ctx context.Context, click *models.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RecordErr != nil {
		return m.RecordErr
	}

	// Locate the owning link; a deleted link aborts the whole operation
	m.links.mu.Lock()
	defer m.links.mu.Unlock()

	var owner *models.Link
	for _, link := range m.links.links {
		if link.ID == click.LinkID {
			owner = link
			break
		}
	}
	if owner == nil {
		return repository.ErrLinkNotFound
	}

	click.ID = m.nextID
	m.nextID++
	stored := *click
	m.clicks[click.LinkID] = append(m.clicks[click.LinkID], &stored)

	owner.ClickCount++
	clickedAt := stored.ClickedAt
	owner.LastClicked = &clickedAt

	return nil
}

func (m *MockClickRepository) GetDailyStats(ctx context.Context, linkID int64) ([]models.DailyClickStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDate := make(map[string]int64)
	for _, click := range m.clicks[linkID] {
		byDate[click.ClickedAt.Format("2006-01-02")]++
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	stats := make([]models.DailyClickStats, 0, len(dates))
	for _, date := range dates {
		stats = append(stats, models.DailyClickStats{Date: date, Count: byDate[date]})
	}
	return stats, nil
}

// Clicks returns the recorded clicks for a link
func (m *MockClickRepository) Clicks(linkID int64) []*models.Click {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Click{}, m.clicks[linkID]...)
}

func (m *MockClickRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks = make(map[int64][]*models.Click)
	m.nextID = 1
	m.RecordErr = nil
}
