package middleware

import (
	"net/http"
	"strconv"
	"time"

	"restaurant_ordering_backend/internal/ratelimit"
	"restaurant_ordering_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RateLimit allows at most limit requests per client IP in each window. scope separates the
// counters of differently limited route groups.
//
// Store failures let the request through; the limiter must not take the API down with it.
func RateLimit(store ratelimit.Store, scope string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()
		count, resetIn, err := store.Hit(c.Request.Context(), key, window)
		if err != nil {
			utils.LogError(err, "Rate limit store failed", map[string]interface{}{"scope": scope})
			c.Next()
			return
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(int64(resetIn.Round(time.Second)/time.Second), 10))

		if count > int64(limit) {
			h.Set("Retry-After", strconv.FormatInt(int64((resetIn+time.Second-1)/time.Second), 10))
			utils.RespondWithError(c, utils.NewAPIError(http.StatusTooManyRequests, utils.ErrCodeTooManyRequests,
				"Too many requests, please try again later", ""))
			return
		}
		c.Next()
	}
}
