package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"OpenMCP-Ankr/internal/observability/metrics"
	"OpenMCP-Ankr/pkg/logger"
)

// authenticate 校验静态 Bearer Token，健康检查与指标接口免认证。
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.tokens) == 0 || r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok || !s.acceptToken(token) {
			status := http.StatusUnauthorized
			reason := "invalid bearer token"
			if !ok {
				reason = "missing bearer token"
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="ankrmcp"`)
			writeError(w, status, "UNAUTHENTICATED", reason)
			logger.Audit().Warn("access_denied",
				"path", r.URL.Path,
				"method", r.Method,
				"status", status,
				"error", reason,
			)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) acceptToken(token string) bool {
	for _, candidate := range s.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			return true
		}
	}
	return false
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// instrument 记录每个路由的请求数、错误数与延迟，并写一条审计日志。
func instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTPRequest(pattern, r.Method, sw.status, elapsed)
		logger.Audit().Info("api_request",
			"event", pattern,
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// statusWriter 捕获响应状态码。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
