package models

// APIResponse 관리자 API 공통 응답 형식
type APIResponse struct {
	Status  string      `json:"status"` // success, error
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *ListMeta   `json:"meta,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ListMeta 목록 응답의 개수 정보. Limit은 요청에 지정된 경우에만 채운다.
type ListMeta struct {
	Count int `json:"count"`
	Limit int `json:"limit,omitempty"`
}

const (
	statusSuccess = "success"
	statusError   = "error"
)

// SuccessResponse 성공 응답
func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{Status: statusSuccess, Message: message, Data: data}
}

// ListResponse 목록 성공 응답
func ListResponse(message string, data interface{}, count, limit int) APIResponse {
	resp := SuccessResponse(message, data)
	resp.Meta = &ListMeta{Count: count, Limit: limit}
	return resp
}

// ErrorResponse 실패 응답. err가 있으면 error 필드에 원인을 싣는다.
func ErrorResponse(message string, err error) APIResponse {
	resp := APIResponse{Status: statusError, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
