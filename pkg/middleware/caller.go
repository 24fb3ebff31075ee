package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"soundwork/pkg/ledger"
	"soundwork/pkg/response"
)

const (
	CallerHeader = "X-Caller-Address"
	callerKey    = "caller_address"
)

// RequireCaller rejects requests without a valid X-Caller-Address and stores
// the checksummed address on the context.
func RequireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(CallerHeader)
		if raw == "" {
			response.SendError(c, http.StatusUnauthorized, "missing_caller", CallerHeader+" header is required")
			return
		}
		addr, err := ledger.ParseAddress(raw)
		if err != nil || addr.IsZero() {
			response.SendError(c, http.StatusUnauthorized, "invalid_caller", "invalid "+CallerHeader+" header")
			return
		}
		c.Set(callerKey, addr)
		c.Next()
	}
}

// Caller returns the address stored by RequireCaller.
func Caller(c *gin.Context) (ledger.Address, bool) {
	v, ok := c.Get(callerKey)
	if !ok {
		return "", false
	}
	addr, ok := v.(ledger.Address)
	return addr, ok
}
