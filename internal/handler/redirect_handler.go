package handler

import (
	"errors"
	"net/http"

	"github.com/SergeiKhy/linkgate/internal/models"
	"github.com/SergeiKhy/linkgate/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Страница запроса пароля для защищённой ссылки; форма отправляется
// на тот же путь
const passwordPage = `<html>
  <body style="font-family:sans-serif;padding:40px;">
    <h3>This link is password protected</h3>
    <form method="POST">
      <input type="password" name="password" required />
      <button type="submit">Access</button>
    </form>
  </body>
</html>`

// Redirect godoc
// @Summary Resolve a short code
// @Description Redirect to the destination, or report the link's state
// @Tags redirect
// @Param code path string true "Short code"
// @Success 307 {object} nil "Active link, click recorded"
// @Failure 410 {string} string "Link expired"
// @Router /{code} [get]
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	res, err := h.service.Resolve(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("Failed to resolve link", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to resolve link",
		})
		return
	}

	switch res.State {
	case service.StateNotFound:
		c.Redirect(http.StatusFound, "/")

	case service.StateExpired:
		// Просрочка отвечает раньше пароля: форма для истёкшей
		// защищённой ссылки не показывается
		c.String(http.StatusGone, "This link has expired")

	case service.StatePasswordRequired:
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(passwordPage))

	case service.StateActive:
		h.recordAndRedirect(c, res.Link)
	}
}

// Unlock godoc
// @Summary Unlock a password-protected link
// @Description Verify the submitted password; on match redirect with click recorded
// @Tags redirect
// @Accept x-www-form-urlencoded
// @Param code path string true "Short code"
// @Param password formData string true "Password"
// @Success 307 {object} nil "Password matched, click recorded"
// @Failure 401 {string} string "Incorrect password"
// @Router /{code} [post]
func (h *LinkHandler) Unlock(c *gin.Context) {
	code := c.Param("code")
	password := c.PostForm("password")

	link, err := h.service.Unlock(c.Request.Context(), code, password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLinkNotFound):
			// Нет ссылки или нет пароля - не раскрываем, какой случай
			c.Redirect(http.StatusFound, "/")
		case errors.Is(err, service.ErrLinkExpired):
			c.String(http.StatusGone, "This link has expired")
		case errors.Is(err, service.ErrIncorrectPassword):
			// Штатный исход, не ошибка сервера
			c.String(http.StatusUnauthorized, "Incorrect password")
		default:
			h.logger.Error("Failed to unlock link", zap.String("code", code), zap.Error(err))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to unlock link",
			})
		}
		return
	}

	h.recordAndRedirect(c, link)
}

// recordAndRedirect записывает клик и только после успешной записи
// выдаёт редирект (fail-closed: без записи нет перехода)
func (h *LinkHandler) recordAndRedirect(c *gin.Context, link *models.Link) {
	event := &models.ClickEvent{
		LinkID:    link.ID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referrer:  c.Request.Referer(),
	}

	if err := h.recorder.Record(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "recording_failed",
			Message: "Failed to process the visit",
		})
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, link.OriginalURL)
}
