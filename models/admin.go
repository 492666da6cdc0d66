package models

// 관리자 역할. 토큰은 외부 인증 서비스가 발급하며 role 클레임을 그대로 사용한다.
const (
	AdminRoleSuperAdmin = "super_admin"
	AdminRoleOperator   = "operator"
)

// AdminIdentity 인증된 관리자 정보 (토큰 클레임)
type AdminIdentity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CreateCommandRequest 명령 생성 요청
type CreateCommandRequest struct {
	Name   string        `json:"name" example:"add_user"`
	Params CommandParams `json:"params" swaggertype:"object"`
}

// RegisterDeviceRequest 단말기 등록 요청
type RegisterDeviceRequest struct {
	DeviceID     string         `json:"device_id"`
	SerialNumber string         `json:"serial_number"`
	Name         string         `json:"name"`
	IsApproved   bool           `json:"is_approved"`
	Settings     DeviceSettings `json:"settings,omitempty"`
}

// UpdateDeviceStatusRequest 단말기 승인/활성 상태 변경 요청
type UpdateDeviceStatusRequest struct {
	IsApproved bool `json:"is_approved"`
	IsActive   bool `json:"is_active"`
}
