package handlers

import (
	"encoding/json"
	"net/http"

	"admsserver/models"
)

// GetMe 현재 관리자 정보 조회
// @Summary 현재 관리자 정보 조회
// @Description 토큰에 담긴 관리자 ID, 이름, 역할을 반환합니다. 관리자 계정은 외부 인증 서비스가 관리합니다
// @Tags 인증
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse{data=models.AdminIdentity} "조회 성공"
// @Failure 401 {object} models.APIResponse "인증 필요"
// @Router /api/admin/me [get]
func GetMe(w http.ResponseWriter, r *http.Request) {
	adminID := getAdminID(r)
	if adminID == "" {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(models.ErrorResponse("Unauthorized", nil))
		return
	}
	role, _ := r.Context().Value("role").(string)

	json.NewEncoder(w).Encode(models.SuccessResponse("Admin retrieved", models.AdminIdentity{
		ID:       adminID,
		Username: getUsername(r),
		Role:     role,
	}))
}
