package server

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xiaoxuxiansheng/olatx"
	"github.com/xiaoxuxiansheng/olatx/log"
	"github.com/xiaoxuxiansheng/olatx/metrics"
)

// RequestIDHeader 请求 id 透传使用的请求头
const RequestIDHeader = "X-Request-ID"

// requestID 为每个请求分配 id 并写入 context，日志中会自动带上
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(log.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.InfoContextf(c.Request.Context(), "%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func observe(m *metrics.ServerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.InFlight.Inc()
		defer m.InFlight.Dec()

		c.Next()

		handler := c.FullPath()
		if handler == "" {
			handler = "unmatched"
		}
		m.Requests.WithLabelValues(handler, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
	}
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet,
		http.MethodPut,
		http.MethodPost,
		http.MethodHead,
		http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{
		"Content-Type",
		"Accept",
		"Origin",
		"Authorization",
		RequestIDHeader,
		olatx.EnlistmentURIHeader,
	}, ", ")
)

// cors 放行浏览器跨域调用，预检请求直接返回
func cors(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := allowedOrigin(allowedOrigins, c.GetHeader("Origin"))
		if origin == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Expose-Headers", "Link, Location, "+RequestIDHeader)
		c.Writer.Header().Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions && c.GetHeader("Access-Control-Request-Method") != "" {
			c.Header("Access-Control-Allow-Methods", corsMethods)
			c.Header("Access-Control-Allow-Headers", corsHeaders)
			c.Header("Access-Control-Max-Age", "3600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// 支持精确匹配以及 https://*.example.com 形式的通配
func allowedOrigin(allowed []string, origin string) string {
	if origin == "" {
		return ""
	}
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return "*"
	}
	for _, pattern := range allowed {
		if pattern == origin {
			return origin
		}
		prefix, suffix, ok := strings.Cut(pattern, "*")
		if ok && strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return origin
		}
	}
	return ""
}
