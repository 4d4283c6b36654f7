package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SergeiKhy/linkgate/internal/config"
	"github.com/SergeiKhy/linkgate/internal/handler"
	"github.com/SergeiKhy/linkgate/internal/middleware"
	"github.com/SergeiKhy/linkgate/internal/models"
	"github.com/SergeiKhy/linkgate/internal/repository"
	"github.com/SergeiKhy/linkgate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestMain настраивает тестовый режим gin
func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// TestEnv хранит окружение для интеграционных тестов
type TestEnv struct {
	router         *gin.Engine
	linkService    service.LinkService
	dbContainer    testcontainers.Container
	redisContainer testcontainers.Container
	db             *repository.PostgresDB
	redis          *repository.RedisDB
}

// setupTestEnv создаёт тестовое окружение с PostgreSQL и Redis контейнерами
func setupTestEnv(t *testing.T) *TestEnv {
	ctx := t.Context()

	// Запускаем контейнер PostgreSQL
	dbContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("linkgate"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	// Запускаем контейнер Redis
	redisContainer, err := redis.Run(ctx,
		"redis:7-alpine",
	)
	require.NoError(t, err)

	// Получаем данные для подключения
	dbHost, err := dbContainer.Host(ctx)
	require.NoError(t, err)
	dbPort, err := dbContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	dbConfig := config.DBConfig{
		Host:     dbHost,
		Port:     dbPort.Port(),
		User:     "user",
		Password: "password",
		Name:     "linkgate",
	}

	// Применяем миграции на чистую БД
	require.NoError(t, repository.Migrate(repository.DSN(dbConfig)))

	// Создаём подключение к БД
	db, err := repository.NewPostgresDB(dbConfig)
	require.NoError(t, err)

	// Создаём подключение к Redis
	redisClient, err := repository.NewRedisClient(config.RedisConfig{
		Host: redisHost,
		Port: redisPort.Port(),
	})
	require.NoError(t, err)

	// Инициализируем репозитории и сервисы
	linkRepo := repository.NewLinkRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)
	clickRepo := repository.NewClickRepository(db)

	linkService := service.NewLinkService(linkRepo, cacheRepo, nil, 0)
	recorder := service.NewClickRecorder(clickRepo, nil)

	ownerAuth := middleware.RequireOwner(map[string]string{
		"key-alpha": "owner-1",
		"key-beta":  "owner-2",
	})

	router := handler.NewRouter(linkService, recorder, nil, ownerAuth, "http://sho.rt", nil)

	return &TestEnv{
		router:         router,
		linkService:    linkService,
		dbContainer:    dbContainer,
		redisContainer: redisContainer,
		db:             db,
		redis:          redisClient,
	}
}

// teardown очищает ресурсы после теста
func (env *TestEnv) teardown(t *testing.T) {
	env.db.Close()
	env.redis.Close()

	ctx := t.Context()
	if env.dbContainer != nil {
		env.dbContainer.Terminate(ctx)
	}
	if env.redisContainer != nil {
		env.redisContainer.Terminate(ctx)
	}
}

// createLink создаёт ссылку через API и возвращает ответ
func (env *TestEnv) createLink(t *testing.T, apiKey string, req handler.CreateLinkRequest) handler.LinkResponse {
	t.Helper()

	body, _ := json.Marshal(req)
	w := httptest.NewRecorder()
	httpReq, _ := http.NewRequest("POST", "/api/v1/links", bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", apiKey)
	env.router.ServeHTTP(w, httpReq)
	require.Equal(t, http.StatusCreated, w.Code, "тело ответа: %s", w.Body.String())

	var resp handler.LinkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// clickCounts возвращает счётчик ссылки и число событий кликов из БД
func (env *TestEnv) clickCounts(t *testing.T, linkID int64) (int64, int64) {
	t.Helper()

	var clickCount, events int64
	err := env.db.Pool.QueryRow(t.Context(),
		`SELECT click_count, (SELECT COUNT(*) FROM clicks WHERE link_id = $1) FROM links WHERE id = $1`,
		linkID,
	).Scan(&clickCount, &events)
	require.NoError(t, err)
	return clickCount, events
}

// TestIntegration_CreateLink тестирует создание ссылок через API
func TestIntegration_CreateLink(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	tests := []struct {
		name           string
		request        handler.CreateLinkRequest
		expectedStatus int
	}{
		{
			name:           "валидный URL",
			request:        handler.CreateLinkRequest{URL: "https://example.com/test"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "URL без схемы нормализуется",
			request:        handler.CreateLinkRequest{URL: "example.com/test"},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "валидный URL с кастомным кодом",
			request: handler.CreateLinkRequest{
				URL:        "https://example.com/custom",
				CustomCode: "my-custom",
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "повторный кастомный код",
			request: handler.CreateLinkRequest{
				URL:        "https://example.com/duplicate",
				CustomCode: "my-custom",
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "невалидный кастомный код",
			request: handler.CreateLinkRequest{
				URL:        "https://example.com/bad",
				CustomCode: "bad code!",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "невалидный URL",
			request:        handler.CreateLinkRequest{URL: "https://"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.request)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("POST", "/api/v1/links", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-API-Key", "key-alpha")

			env.router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusCreated {
				var resp handler.LinkResponse
				json.Unmarshal(w.Body.Bytes(), &resp)
				assert.NotEmpty(t, resp.ShortCode)
			} else {
				var errResp handler.ErrorResponse
				json.Unmarshal(w.Body.Bytes(), &errResp)
				assert.NotEmpty(t, errResp.Error)
			}
		})
	}
}

// TestIntegration_Redirect тестирует исходы резолвинга
func TestIntegration_Redirect(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	created := env.createLink(t, "key-alpha", handler.CreateLinkRequest{
		URL: "https://example.com/integration-test",
	})

	t.Run("редирект на оригинальный URL с записью клика", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/"+created.ShortCode, nil)
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
		assert.Equal(t, "https://example.com/integration-test", w.Header().Get("Location"))

		// Клик записан синхронно: счётчик и событие видны сразу
		clickCount, events := env.clickCounts(t, created.ID)
		assert.Equal(t, int64(1), clickCount)
		assert.Equal(t, int64(1), events)
	})

	t.Run("несуществующая ссылка ведёт на корень", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/nonexistent", nil)
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/", w.Header().Get("Location"))
	})

	t.Run("просроченная ссылка отвечает 410 без клика", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		expired := env.createLink(t, "key-alpha", handler.CreateLinkRequest{
			URL:       "https://example.com/expired",
			ExpiresAt: &past,
			Password:  "secret",
		})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/"+expired.ShortCode, nil)
		env.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusGone, w.Code)

		clickCount, events := env.clickCounts(t, expired.ID)
		assert.Equal(t, int64(0), clickCount)
		assert.Equal(t, int64(0), events)
	})
}

// TestIntegration_PasswordFlow тестирует парольный шлюз end-to-end
func TestIntegration_PasswordFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	created := env.createLink(t, "key-alpha", handler.CreateLinkRequest{
		URL:      "https://example.com/protected",
		Password: "secret",
	})

	postPassword := func(password string) *httptest.ResponseRecorder {
		form := url.Values{"password": {password}}
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/"+created.ShortCode, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		env.router.ServeHTTP(w, req)
		return w
	}

	// GET показывает форму, клик не записан
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/"+created.ShortCode, nil)
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="password"`)

	clickCount, events := env.clickCounts(t, created.ID)
	assert.Equal(t, int64(0), clickCount)
	assert.Equal(t, int64(0), events)

	// Неверный пароль: 401, кликов нет
	w = postPassword("wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	clickCount, events = env.clickCounts(t, created.ID)
	assert.Equal(t, int64(0), clickCount)
	assert.Equal(t, int64(0), events)

	// Верный пароль: редирект и ровно один клик
	w = postPassword("secret")
	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "https://example.com/protected", w.Header().Get("Location"))

	clickCount, events = env.clickCounts(t, created.ID)
	assert.Equal(t, int64(1), clickCount)
	assert.Equal(t, int64(1), events)
}

// TestIntegration_ConcurrentClicks проверяет главный инвариант движка:
// при N одновременных кликах счётчик равен N и событий ровно N
func TestIntegration_ConcurrentClicks(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	created := env.createLink(t, "key-alpha", handler.CreateLinkRequest{
		URL: "https://example.com/concurrent",
	})

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/"+created.ShortCode, nil)
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("192.0.2.%d", id))
			env.router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
		}(i)
	}
	wg.Wait()

	clickCount, events := env.clickCounts(t, created.ID)
	assert.Equal(t, int64(n), clickCount)
	assert.Equal(t, int64(n), events)
}

// TestIntegration_DailyStats проверяет агрегацию по календарным дням
func TestIntegration_DailyStats(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	created := env.createLink(t, "key-alpha", handler.CreateLinkRequest{
		URL: "https://example.com/stats",
	})

	// Вставляем клики на трёх датах напрямую: 2, 5 и 1
	days := []struct {
		date  string
		count int
	}{
		{"2026-04-01", 2},
		{"2026-04-02", 5},
		{"2026-04-07", 1},
	}
	for _, day := range days {
		for i := 0; i < day.count; i++ {
			_, err := env.db.Pool.Exec(t.Context(),
				`INSERT INTO clicks (link_id, ip_address, user_agent, referrer, clicked_at)
				 VALUES ($1, '192.0.2.1', '', '', $2::date + interval '10 hours')`,
				created.ID, day.date,
			)
			require.NoError(t, err)
		}
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", fmt.Sprintf("/api/v1/links/%d/stats", created.ID), nil)
	req.Header.Set("X-API-Key", "key-alpha")
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats []models.DailyClickStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Len(t, stats, 3)
	assert.Equal(t, models.DailyClickStats{Date: "2026-04-01", Count: 2}, stats[0])
	assert.Equal(t, models.DailyClickStats{Date: "2026-04-02", Count: 5}, stats[1])
	assert.Equal(t, models.DailyClickStats{Date: "2026-04-07", Count: 1}, stats[2])

	// Чужой владелец статистику не видит
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", fmt.Sprintf("/api/v1/links/%d/stats", created.ID), nil)
	req.Header.Set("X-API-Key", "key-beta")
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestIntegration_DeleteCascade удаление ссылки каскадно удаляет клики
func TestIntegration_DeleteCascade(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	created := env.createLink(t, "key-alpha", handler.CreateLinkRequest{
		URL: "https://example.com/delete-test",
	})

	// Несколько кликов перед удалением
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/"+created.ShortCode, nil)
		env.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusTemporaryRedirect, w.Code)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", fmt.Sprintf("/api/v1/links/%d", created.ID), nil)
	req.Header.Set("X-API-Key", "key-alpha")
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// События кликов ушли каскадом
	var events int64
	err := env.db.Pool.QueryRow(t.Context(),
		`SELECT COUNT(*) FROM clicks WHERE link_id = $1`, created.ID).Scan(&events)
	require.NoError(t, err)
	assert.Equal(t, int64(0), events)

	// Код больше не резолвится
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/"+created.ShortCode, nil)
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}

// TestIntegration_HealthCheck тестирует endpoint проверки здоровья
func TestIntegration_HealthCheck(t *testing.T) {
	if testing.Short() {
		t.Skip("Пропускаем интеграционный тест в коротком режиме")
	}

	env := setupTestEnv(t)
	defer env.teardown(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/health", nil)
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "linkgate", resp["service"])
}
