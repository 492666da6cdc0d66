package models

import "strconv"

// Device 중앙 디렉터리에 등록된 근태/출입 단말기
type Device struct {
	ID           int64          `json:"id" db:"id"`
	TenantID     int64          `json:"tenant_id" db:"tenant_id"`
	DeviceID     string         `json:"device_id" db:"device_id"`
	SerialNumber string         `json:"serial_number" db:"serial_number"`
	Name         string         `json:"name" db:"name"`
	IsApproved   bool           `json:"is_approved" db:"is_approved"`
	IsActive     bool           `json:"is_active" db:"is_active"`
	Settings     DeviceSettings `json:"settings" db:"settings"`
	LastSyncAt   string         `json:"last_sync_at,omitempty" db:"last_sync_at"`
	MACAddress   string         `json:"mac_address,omitempty" db:"mac_address"`
	IPAddress    string         `json:"ip_address,omitempty" db:"ip_address"`
	DeviceInfo   string         `json:"device_info,omitempty" db:"device_info"` // JSON 문자열
	CreatedAt    string         `json:"created_at" db:"created_at"`
	UpdatedAt    string         `json:"updated_at" db:"updated_at"`
}

// Device lookup key types
const (
	DeviceKeyDeviceID     = "device_id"
	DeviceKeySerialNumber = "serial_number"
)

// DeviceSettings 단말기 설정 (전송 스탬프, 주기, 시간대, 암호화 여부 등)
type DeviceSettings map[string]string

// Get 설정값을 반환하고 없으면 기본값을 반환한다
func (s DeviceSettings) Get(key, fallback string) string {
	if s == nil {
		return fallback
	}
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Int 정수 설정값을 반환한다
func (s DeviceSettings) Int(key string, fallback int) int {
	n, err := strconv.Atoi(s.Get(key, ""))
	if err != nil {
		return fallback
	}
	return n
}

// Usable 프로토콜 응답 대상인지 여부 (승인 + 활성)
func (d *Device) Usable() bool {
	return d != nil && d.IsApproved && d.IsActive
}

// DeviceInfoUpdate devicecmd 응답으로 갱신되는 단말기 정보
type DeviceInfoUpdate struct {
	MACAddress string
	IPAddress  string
	Info       map[string]string
}
