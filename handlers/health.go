package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"admsserver/database"
	"admsserver/models"
)

// JobCounter reports how many background jobs are queued or running.
type JobCounter interface {
	Pending() int
}

// HealthHandler reports central database reachability and queue depth.
type HealthHandler struct {
	central *database.Conn
	jobs    JobCounter
}

func NewHealthHandler(central *database.Conn, jobs JobCounter) *HealthHandler {
	return &HealthHandler{central: central, jobs: jobs}
}

// Check 헬스 체크
// @Summary 헬스 체크
// @Description 중앙 DB 연결 상태와 대기 중인 작업 수를 반환합니다
// @Tags 시스템
// @Produce json
// @Success 200 {object} models.APIResponse "정상"
// @Failure 503 {object} models.APIResponse "중앙 DB 연결 불가"
// @Router /health [get]
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.central.DB.PingContext(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(models.ErrorResponse("Central database unreachable", err))
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("OK", map[string]interface{}{
		"status":       "ok",
		"pending_jobs": h.jobs.Pending(),
	}))
}
