package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/adaptive-escrow/escrow-backend/internal/logger"
	"github.com/adaptive-escrow/escrow-backend/internal/pkg/apperror"
)

// ErrorHandler обрабатывает ошибки централизованно: переводит AppError
// в статус и сообщение, всё остальное маскирует как внутреннюю ошибку.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		appErr := apperror.AsAppError(err)

		entry := logger.WithComponent("http").WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"code":   appErr.Code,
		})
		if appErr.HTTPStatus >= 500 {
			entry.WithError(err).Error("Ошибка обработки запроса")
		} else {
			entry.Debug(appErr.Message)
		}

		c.JSON(appErr.HTTPStatus, gin.H{"error": appErr.Message})
	}
}
