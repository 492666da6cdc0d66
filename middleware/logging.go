package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"admsserver/logger"
	"admsserver/metrics"
	"admsserver/utils"
)

// statusRecorder는 응답 상태 코드와 크기를 기록합니다.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// LoggingMiddleware 요청마다 request_id를 부여하고 응답을 기록합니다.
// 단말기 요청은 사업자 코드와 SN, 관리자 요청은 admin_id가 함께 남습니다.
func LoggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID, _ := utils.GenerateID("req")
		r = r.WithContext(context.WithValue(r.Context(), "request_id", requestID))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := map[string]interface{}{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"bytes":       rec.bytes,
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          clientIP(r),
		}
		device := strings.HasPrefix(r.URL.Path, "/iclock/")
		if device {
			fields["business_code"] = mux.Vars(r)["businessCode"]
			fields["sn"] = r.URL.Query().Get("SN")
		} else {
			metrics.AdminRequestsTotal.WithLabelValues(r.Method, fmt.Sprintf("%dxx", rec.status/100)).Inc()
		}

		level := levelFor(rec.status)
		if device && level == logger.INFO {
			// 단말기는 수 초 간격으로 폴링하므로 정상 응답은 DEBUG로 남긴다
			level = logger.DEBUG
		}
		logger.WithFields(fields).Log(level, "HTTP %s %s", r.Method, r.URL.Path)
	}
}

func levelFor(status int) logger.LogLevel {
	if status >= 500 {
		return logger.ERROR
	}
	if status >= 400 {
		return logger.WARN
	}
	return logger.INFO
}

// clientIP 프록시 헤더를 우선하여 클라이언트 주소를 구합니다.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
