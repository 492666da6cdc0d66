package dal

import (
	"fmt"
	"strconv"
)

// Record는 조회 결과 한 행입니다. 드라이버에 따라 문자열 컬럼이 []byte로 올 수 있어
// 접근자로 읽습니다.
type Record map[string]any

// String 컬럼 값을 문자열로 반환한다. NULL이면 빈 문자열.
func (r Record) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Int64 컬럼 값을 정수로 반환한다. 변환할 수 없으면 0.
func (r Record) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		n, _ := strconv.ParseInt(r.String(col), 10, 64)
		return n
	}
}

// Bool 0이 아닌 정수를 true로 본다
func (r Record) Bool(col string) bool {
	return r.Int64(col) != 0
}

// Bytes 바이너리 컬럼 값
func (r Record) Bytes(col string) []byte {
	switch v := r[col].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// IsNull 컬럼이 NULL이거나 없는지 여부
func (r Record) IsNull(col string) bool {
	return r[col] == nil
}

// NullableString 빈 문자열을 NULL로 저장할 때 쓴다
func NullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
