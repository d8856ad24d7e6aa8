package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("logger", logger)
		c.Next()
	}
}

func GetLogger(c *gin.Context) *zap.Logger {
	logger, exists := c.Get("logger")
	if !exists {
		return zap.NewNop()
	}
	return logger.(*zap.Logger)
}
