package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Ключ контекста с идентификатором владельца
const ownerIDKey = "owner_id"

// OwnerAuthConfig конфигурация аутентификации владельцев.
// Движок не знает ничего о пользователях: API ключ отображается в
// непрозрачный идентификатор владельца, и этого достаточно для
// проверки принадлежности ссылок
type OwnerAuthConfig struct {
	// Keys карта API ключей к идентификаторам владельцев
	Keys map[string]string
	// HeaderName имя заголовка для API ключа (по умолчанию: X-API-Key)
	HeaderName string
}

// OwnerAuth middleware аутентификации владельца по API ключу
type OwnerAuth struct {
	config OwnerAuthConfig
}

// NewOwnerAuth создаёт новый middleware аутентификации владельца
func NewOwnerAuth(config OwnerAuthConfig) *OwnerAuth {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	return &OwnerAuth{config: config}
}

// Middleware возвращает Gin handler, требующий валидный API ключ
func (oa *OwnerAuth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(oa.config.HeaderName)

		// Также принимаем заголовок Authorization с Bearer схемой
		if apiKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_api_key",
				"message": "Требуется API ключ: заголовок X-API-Key или Authorization: Bearer",
			})
			c.Abort()
			return
		}

		// Сверка ключа с использованием constant-time comparison
		var ownerID string
		valid := false
		for validKey, owner := range oa.config.Keys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(validKey)) == 1 {
				valid = true
				ownerID = owner
				break
			}
		}

		if !valid {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "Невалидный API ключ",
			})
			c.Abort()
			return
		}

		c.Set(ownerIDKey, ownerID)
		c.Next()
	}
}

// RequireOwner хелпер для создания middleware по карте ключей
func RequireOwner(keys map[string]string) gin.HandlerFunc {
	oa := NewOwnerAuth(OwnerAuthConfig{Keys: keys})
	return oa.Middleware()
}

// OwnerIDFromContext извлекает идентификатор владельца из контекста
func OwnerIDFromContext(c *gin.Context) (string, bool) {
	v, exists := c.Get(ownerIDKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
