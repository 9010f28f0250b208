package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adaptive-escrow/escrow-backend/internal/validation"
)

// WalletValidator проверяет, что параметр пути является валидным
// Stellar wallet-адресом.
// Использование: router.GET("/users/:wallet", WalletValidator("wallet"), handler.Get)
func WalletValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.Param(paramName)
		if err := validation.ValidateWalletAddress(wallet); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Next()
	}
}
