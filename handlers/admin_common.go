package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"admsserver/database"
	"admsserver/logger"
	"admsserver/models"
	"admsserver/services"
)

func getAdminID(r *http.Request) string {
	adminID, _ := r.Context().Value("admin_id").(string)
	return adminID
}

func getUsername(r *http.Request) string {
	username, _ := r.Context().Value("username").(string)
	return username
}

// tenantFromPath는 경로의 businessCode로 테넌트를 찾고, 실패 시 응답까지 작성한다.
func tenantFromPath(w http.ResponseWriter, r *http.Request, tenants TenantLookup) (*models.Tenant, bool) {
	code := mux.Vars(r)["businessCode"]
	tenant, err := tenants.ByBusinessCode(r.Context(), code)
	if errors.Is(err, database.ErrTenantNotFound) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.ErrorResponse("Tenant not found", nil))
		return nil, false
	}
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"business_code": code,
			"error":         err.Error(),
		}).Error("Failed to resolve tenant")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to resolve tenant", err))
		return nil, false
	}
	return tenant, true
}

// audit 관리자 활동 로그 기록 (인증 컨텍스트가 없으면 건너뛴다)
func audit(r *http.Request, log *services.AdminAuditLog, tenantID int64, action, details string) {
	if log == nil {
		return
	}
	adminID := getAdminID(r)
	if adminID == "" {
		return
	}
	log.Log(r.Context(), adminID, getUsername(r), tenantID, action, details)
}
