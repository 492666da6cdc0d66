package models

// AdminActivityLog 관리자 활동 로그
type AdminActivityLog struct {
	ID        int64  `json:"id" db:"id"`
	AdminID   string `json:"admin_id" db:"admin_id"`
	Username  string `json:"username" db:"username"`
	TenantID  int64  `json:"tenant_id,omitempty" db:"tenant_id"`
	Action    string `json:"action" db:"action"`
	Details   string `json:"details" db:"details"`
	CreatedAt string `json:"created_at" db:"created_at"`
}

// 관리자 활동 액션 상수
const (
	AdminActionCreateCommand    = "create_command"
	AdminActionRegisterDevice   = "register_device"
	AdminActionUpdateDevice     = "update_device"
	AdminActionRemoveDevice     = "remove_device"
	AdminActionGenerateKey      = "generate_key"
	AdminActionActivateKey      = "activate_key"
	AdminActionDeleteKey        = "delete_key"
	AdminActionRotateKeys       = "rotate_keys"
	AdminActionInvalidateDevice = "invalidate_device_cache"
)
