package services

import (
	"context"

	"admsserver/dal"
	"admsserver/logger"
	"admsserver/models"
	"admsserver/query"
	"admsserver/utils"
)

// AdminAuditLog는 관리자 API로 수행된 변경을 admin_activity_logs에 남깁니다.
type AdminAuditLog struct {
	central *dal.DB
}

// NewAdminAuditLog는 AdminAuditLog를 생성합니다.
func NewAdminAuditLog(central *dal.DB) *AdminAuditLog {
	return &AdminAuditLog{central: central}
}

// Log 관리자 활동 로그 기록 헬퍼. tenantID가 0이면 테넌트와 무관한 작업이다.
func (a *AdminAuditLog) Log(ctx context.Context, adminID, username string, tenantID int64, action, details string) {
	var tenant any
	if tenantID > 0 {
		tenant = tenantID
	}
	_, err := a.central.Insert(ctx, "admin_activity_logs", query.Row{
		"admin_id":   adminID,
		"username":   username,
		"tenant_id":  tenant,
		"action":     action,
		"details":    details,
		"created_at": utils.NowDB(),
	})
	if err != nil {
		logger.Error("Failed to log admin activity: %v", err)
	}
}

// Recent 최근 관리자 활동
func (a *AdminAuditLog) Recent(ctx context.Context, limit int) ([]models.AdminActivityLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	recs, err := a.central.Fetch(ctx, query.Select("admin_activity_logs",
		"id", "admin_id", "username", "tenant_id", "action", "details", "created_at",
	).OrderBy("id", true).Limit(limit))
	if err != nil {
		return nil, err
	}
	logs := make([]models.AdminActivityLog, 0, len(recs))
	for _, rec := range recs {
		logs = append(logs, models.AdminActivityLog{
			ID:        rec.Int64("id"),
			AdminID:   rec.String("admin_id"),
			Username:  rec.String("username"),
			TenantID:  rec.Int64("tenant_id"),
			Action:    rec.String("action"),
			Details:   rec.String("details"),
			CreatedAt: rec.String("created_at"),
		})
	}
	return logs, nil
}
