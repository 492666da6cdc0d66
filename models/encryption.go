package models

// EncryptionKey 테넌트 암호화 키 메타데이터 (키 원문은 API로 노출하지 않는다)
type EncryptionKey struct {
	ID        int64  `json:"id" db:"id"`
	Version   string `json:"version" db:"version"`
	IsActive  bool   `json:"is_active" db:"is_active"`
	CreatedAt string `json:"created_at" db:"created_at"`
}

// GenerateKeyRequest 키 생성 요청
type GenerateKeyRequest struct {
	Activate bool `json:"activate"`
}

// RotateKeysRequest 키 회전 요청. Version이 비어 있으면 새 키를 생성한다.
type RotateKeysRequest struct {
	Version string `json:"version"`
}

// RotationPlan 키 회전 시 예약된 재암호화 작업 정보
type RotationPlan struct {
	TenantID int64            `json:"tenant_id"`
	Version  string           `json:"version"`
	Batches  int              `json:"batches"`
	Tables   map[string]int64 `json:"tables"` // 테이블별 재암호화 대상 행 수
}
