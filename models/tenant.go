package models

// Tenant 테넌트(고객사) 정보. 각 테넌트는 별도의 데이터베이스와 암호화 키를 가진다.
type Tenant struct {
	ID           int64  `json:"id" db:"id"`
	BusinessCode string `json:"business_code" db:"business_code"`
	Name         string `json:"name" db:"name"`
	DBDriver     string `json:"db_driver" db:"db_driver"`
	DBDSN        string `json:"db_dsn" db:"db_dsn"`
	IsActive     bool   `json:"is_active" db:"is_active"`
	CreatedAt    string `json:"created_at" db:"created_at"`
	UpdatedAt    string `json:"updated_at" db:"updated_at"`
}
