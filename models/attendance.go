package models

// AttendanceLog 단말기에서 업로드된 출퇴근 기록 (ATTLOG)
type AttendanceLog struct {
	DeviceSN     string `json:"device_sn" db:"device_sn"`
	EmployeeCode string `json:"employee_code" db:"employee_code"`
	PunchTime    string `json:"punch_time" db:"punch_time"`
	Status       string `json:"status" db:"status"`
	VerifyType   string `json:"verify_type" db:"verify_type"`
	WorkCode     string `json:"work_code" db:"work_code"`
}

// DeviceUser 단말기에 등록된 사용자 (OPERLOG USER)
type DeviceUser struct {
	DeviceSN   string `json:"device_sn" db:"device_sn"`
	PIN        string `json:"pin" db:"pin"`
	Name       string `json:"name" db:"name"`
	Privilege  string `json:"privilege" db:"privilege"`
	Password   string `json:"password" db:"password"`
	Card       string `json:"card" db:"card"`
	GroupNo    string `json:"group_no" db:"group_no"`
	TimeZones  string `json:"timezones" db:"timezones"`
	VerifyMode string `json:"verify_mode" db:"verify_mode"`
}

// BiometricTemplate 지문/생체 템플릿 (OPERLOG FP, BIODATA)
type BiometricTemplate struct {
	DeviceSN     string `json:"device_sn" db:"device_sn"`
	PIN          string `json:"pin" db:"pin"`
	FingerIndex  string `json:"finger_index" db:"finger_index"`
	TemplateType string `json:"template_type" db:"template_type"`
	Size         string `json:"size" db:"size"`
	Valid        string `json:"valid" db:"valid"`
	Template     string `json:"template" db:"template"`
}
