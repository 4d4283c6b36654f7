package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// UnlockLimiterConfig лимиты на попытки подбора пароля защищённых ссылок
type UnlockLimiterConfig struct {
	AttemptsPerSecond float64       // Допустимая частота попыток с одного адреса
	BurstSize         int           // Максимальный burst попыток
	CleanupInterval   time.Duration // Интервал очистки неактивных адресов
}

// DefaultUnlockLimiterConfig конфигурация по умолчанию
var DefaultUnlockLimiterConfig = UnlockLimiterConfig{
	AttemptsPerSecond: 1,
	BurstSize:         5,
	CleanupInterval:   time.Minute,
}

// visitor попытки с одного клиентского адреса
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UnlockLimiter ограничивает частоту отправки паролей на POST /{code}
// по алгоритму Token Bucket. Контракта шлюза не меняет: ограниченный
// запрос получает 429, а не 401
type UnlockLimiter struct {
	config   UnlockLimiterConfig
	visitors map[string]*visitor // IP -> visitor
	mu       sync.RWMutex
	stop     chan struct{}
	stopOnce sync.Once
}

// NewUnlockLimiter создаёт новый лимитер попыток разблокировки
func NewUnlockLimiter(config UnlockLimiterConfig) *UnlockLimiter {
	ul := &UnlockLimiter{
		config:   config,
		visitors: make(map[string]*visitor),
		stop:     make(chan struct{}),
	}

	// Запускаем горутину для периодической очистки
	go ul.cleanupLoop()

	return ul
}

// Stop останавливает фоновую очистку. Сам лимитер продолжает работать;
// повторный вызов безопасен
func (ul *UnlockLimiter) Stop() {
	ul.stopOnce.Do(func() { close(ul.stop) })
}

// cleanupLoop периодически удаляет неактивные адреса
func (ul *UnlockLimiter) cleanupLoop() {
	ticker := time.NewTicker(ul.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ul.cleanup()
		case <-ul.stop:
			return
		}
	}
}

// cleanup удаляет адреса, с которых давно не было попыток
func (ul *UnlockLimiter) cleanup() {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	for ip, v := range ul.visitors {
		if time.Since(v.lastSeen) > ul.config.CleanupInterval*3 {
			delete(ul.visitors, ip)
		}
	}
}

// getLimiter возвращает или создаёт limiter для данного адреса
func (ul *UnlockLimiter) getLimiter(ip string) *rate.Limiter {
	ul.mu.Lock()
	defer ul.mu.Unlock()

	if v, exists := ul.visitors[ip]; exists {
		v.lastSeen = time.Now()
		return v.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(ul.config.AttemptsPerSecond), ul.config.BurstSize)
	ul.visitors[ip] = &visitor{
		limiter:  limiter,
		lastSeen: time.Now(),
	}

	return limiter
}

// Middleware возвращает Gin handler, ограничивающий попытки разблокировки
func (ul *UnlockLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := ul.getLimiter(ip)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "too_many_attempts",
				"message": "Слишком много попыток, попробуйте позже",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
