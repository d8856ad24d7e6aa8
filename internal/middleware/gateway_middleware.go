package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/pradiptarn/gigtix/internal/payments"
)

func GatewayMiddleware(client *payments.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("gateway_client", client)
		c.Next()
	}
}

func GetGatewayClient(c *gin.Context) *payments.Client {
	client, exists := c.Get("gateway_client")
	if !exists {
		return nil
	}
	return client.(*payments.Client)
}
