package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"admsserver/dal"
	"admsserver/logger"
	"admsserver/models"
	"admsserver/query"
	"admsserver/services"
)

// DashboardHandler는 중앙 디렉터리 기준 운영 현황을 제공한다.
type DashboardHandler struct {
	central *dal.DB
	audit   *services.AdminAuditLog
}

// NewDashboardHandler는 대시보드 핸들러를 생성한다.
func NewDashboardHandler(central *dal.DB, auditLog *services.AdminAuditLog) *DashboardHandler {
	return &DashboardHandler{central: central, audit: auditLog}
}

// Stats 대시보드 통계
// @Summary 대시보드 통계
// @Description 테넌트, 단말기, 상태별 명령 수를 조회합니다
// @Tags 관리자 - 대시보드
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse "조회 성공"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/dashboard/stats [get]
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts := []struct {
		key  string
		stmt *query.Statement
	}{
		{"total_tenants", query.Count("tenants")},
		{"active_tenants", query.Count("tenants").Where(query.Eq("is_active", 1))},
		{"total_devices", query.Count("devices")},
		{"approved_devices", query.Count("devices").Where(query.Eq("is_approved", 1), query.Eq("is_active", 1))},
		{"pending_commands", query.Count("device_commands").Where(query.Eq("status", models.CommandStatusPending))},
		{"sent_commands", query.Count("device_commands").Where(query.Eq("status", models.CommandStatusSent))},
		{"executed_commands", query.Count("device_commands").Where(query.Eq("status", models.CommandStatusExecuted))},
		{"failed_commands", query.Count("device_commands").Where(query.Eq("status", models.CommandStatusFailed))},
	}

	stats := make(map[string]interface{}, len(counts))
	for _, c := range counts {
		n, err := h.central.Count(ctx, c.stmt)
		if err != nil {
			logger.Error("Failed to compute %s: %v", c.key, err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(models.ErrorResponse("Failed to compute dashboard stats", err))
			return
		}
		stats[c.key] = n
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Dashboard stats retrieved", stats))
}

// RecentActivities 최근 관리자 활동 내역
// @Summary 최근 관리자 활동
// @Description 관리자 API로 수행된 변경 내역을 최신순으로 조회합니다
// @Tags 관리자 - 대시보드
// @Produce json
// @Security BearerAuth
// @Param limit query int false "최대 개수 (기본 20, 최대 500)"
// @Success 200 {object} models.APIResponse{data=[]models.AdminActivityLog} "조회 성공"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/dashboard/activities [get]
func (h *DashboardHandler) RecentActivities(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	logs, err := h.audit.Recent(r.Context(), limit)
	if err != nil {
		logger.Error("Failed to query admin activities: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to query activities", err))
		return
	}
	json.NewEncoder(w).Encode(models.ListResponse("Recent activities retrieved", logs, len(logs), limit))
}
