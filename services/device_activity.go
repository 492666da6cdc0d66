package services

import (
	"context"

	"admsserver/dal"
	"admsserver/logger"
	"admsserver/models"
	"admsserver/query"
	"admsserver/utils"
)

// ActivityLogger는 중앙 device_activity_logs 테이블에 단말기 활동을 기록합니다.
type ActivityLogger struct {
	central *dal.DB
}

// NewActivityLogger는 ActivityLogger를 생성합니다.
func NewActivityLogger(central *dal.DB) *ActivityLogger {
	return &ActivityLogger{central: central}
}

// Log 단말기 활동 로그 기록. 실패해도 호출자에게 에러를 돌려주지 않는다.
func (a *ActivityLogger) Log(ctx context.Context, tenantID int64, serialNumber, action, details string) {
	_, err := a.central.Insert(ctx, "device_activity_logs", query.Row{
		"tenant_id":     tenantID,
		"serial_number": serialNumber,
		"action":        action,
		"details":       details,
		"created_at":    utils.NowDB(),
	})
	if err != nil {
		logger.Error("Failed to log device activity: %v", err)
	}
}

// Recent 단말기의 최근 활동 로그
func (a *ActivityLogger) Recent(ctx context.Context, tenantID int64, serialNumber string, limit int) ([]models.DeviceActivityLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	recs, err := a.central.Fetch(ctx, query.Select("device_activity_logs",
		"id", "tenant_id", "serial_number", "action", "details", "created_at",
	).Where(
		query.Eq("tenant_id", tenantID),
		query.Eq("serial_number", serialNumber),
	).OrderBy("id", true).Limit(limit))
	if err != nil {
		return nil, err
	}

	logs := make([]models.DeviceActivityLog, 0, len(recs))
	for _, rec := range recs {
		logs = append(logs, models.DeviceActivityLog{
			ID:           rec.Int64("id"),
			TenantID:     rec.Int64("tenant_id"),
			SerialNumber: rec.String("serial_number"),
			Action:       rec.String("action"),
			Details:      rec.String("details"),
			CreatedAt:    rec.String("created_at"),
		})
	}
	return logs, nil
}
