package cnxn

import (
	"strconv"
	"time"

	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/metrics"
	"github.com/gin-gonic/gin"
)

// loggingMiddleware logs one access line per request at debug level.
func loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logging.Debug("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
		return ""
	})
}

// metricsMiddleware counts requests and observes their latency.
func metricsMiddleware(factory string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		method := c.Request.Method
		metrics.ClientRequestsTotal.WithLabelValues(factory, method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.ClientRequestDuration.WithLabelValues(factory, method).Observe(time.Since(start).Seconds())
	}
}
