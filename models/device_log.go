package models

// DeviceActivityLog 단말기 활동 로그
type DeviceActivityLog struct {
	ID           int64  `json:"id" db:"id"`
	TenantID     int64  `json:"tenant_id" db:"tenant_id"`
	SerialNumber string `json:"serial_number" db:"serial_number"`
	Action       string `json:"action" db:"action"` // command_executed, command_failed, info_updated, data_uploaded
	Details      string `json:"details" db:"details"`
	CreatedAt    string `json:"created_at" db:"created_at"`
}

// 활동 액션 타입 상수
const (
	DeviceActionCommandExecuted = "command_executed"
	DeviceActionCommandFailed   = "command_failed"
	DeviceActionInfoUpdated     = "info_updated"
	DeviceActionDataUploaded    = "data_uploaded"
)
