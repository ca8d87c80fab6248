package ctxmanage

import "github.com/gin-gonic/gin"

// TraceIdKey is the gin context key under which the logger middleware
// stores the per-request trace id.
const TraceIdKey = "traceId"

func GetTraceIdOfRequest(c *gin.Context) string {
	traceId, ok := c.Value(TraceIdKey).(string)
	if !ok {
		return "unknown"
	}
	return traceId
}
