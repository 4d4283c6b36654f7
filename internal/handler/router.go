package handler

import (
	"net/http"

	"github.com/SergeiKhy/linkgate/internal/middleware"
	"github.com/SergeiKhy/linkgate/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(
	linkService service.LinkService,
	recorder service.ClickRecorder,
	unlockLimiter *middleware.UnlockLimiter,
	ownerAuth gin.HandlerFunc,
	baseURL string,
	logger *zap.Logger,
) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.Default()

	// Middleware для логгирования
	router.Use(func(c *gin.Context) {
		logger.Info("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("ip", c.ClientIP()),
		)
		c.Next()
	})

	// Инициализация обработчика ссылок
	linkHandler := NewLinkHandler(linkService, recorder, baseURL, logger)

	// API v.1 - авторинг, статистика и удаление требуют владельца
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", HealthCheck)

		if ownerAuth != nil {
			v1.Use(ownerAuth)
		}

		v1.POST("/links", linkHandler.CreateLink)
		v1.GET("/links", linkHandler.ListLinks)
		v1.DELETE("/links/:id", linkHandler.DeleteLink)
		v1.GET("/links/:id/stats", linkHandler.GetDailyStats)
	}

	// Резолвинг коротких кодов - публичный
	router.GET("/:code", linkHandler.Redirect)

	// Отправка пароля ограничена лимитером попыток
	unlock := router.Group("/")
	if unlockLimiter != nil {
		unlock.Use(unlockLimiter.Middleware())
	}
	unlock.POST("/:code", linkHandler.Unlock)

	return router
}

// HealthCheck godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/v1/health [get]
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "linkgate",
	})
}
