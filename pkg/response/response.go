package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	// Error is a machine-readable code, set only on failures.
	Error     string    `json:"error,omitempty"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

func SendAPIResponse(c *gin.Context, code int, success bool, message string, data any) {
	resp := APIResponse{
		Success:   success,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	}

	c.JSON(code, resp)
}

// SendError writes a failed envelope carrying errCode and aborts the chain.
func SendError(c *gin.Context, code int, errCode, message string) {
	c.AbortWithStatusJSON(code, APIResponse{
		Success:   false,
		Message:   message,
		Error:     errCode,
		CreatedAt: time.Now(),
	})
}
