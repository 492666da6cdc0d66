package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"admsserver/encryption"
	"admsserver/logger"
	"admsserver/models"
	"admsserver/services"
)

// KeyHandler는 테넌트 암호화 키 관리 API를 처리한다.
type KeyHandler struct {
	tenants  TenantLookup
	rotation *encryption.RotationManager
	audit    *services.AdminAuditLog
}

// NewKeyHandler는 키 핸들러를 생성한다.
func NewKeyHandler(tenants TenantLookup, rotation *encryption.RotationManager, auditLog *services.AdminAuditLog) *KeyHandler {
	return &KeyHandler{tenants: tenants, rotation: rotation, audit: auditLog}
}

// writeKeyError 키 관리 에러를 상태 코드로 변환한다
func writeKeyError(w http.ResponseWriter, tenantID int64, op string, err error) {
	switch {
	case errors.Is(err, encryption.ErrKeyNotFound):
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.ErrorResponse("Encryption key not found", err))
	case errors.Is(err, encryption.ErrKeyInUse):
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.ErrorResponse("Encryption key is in use", err))
	default:
		logger.WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"error":     err.Error(),
		}).Error("Failed to %s", op)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to "+op, err))
	}
}

// List 암호화 키 목록 조회
// @Summary 암호화 키 목록 조회
// @Description 테넌트의 키 버전과 활성 여부를 조회합니다. 키 원문은 반환하지 않습니다
// @Tags 관리자 - 암호화 키
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Success 200 {object} models.APIResponse{data=[]models.EncryptionKey} "조회 성공"
// @Failure 404 {object} models.APIResponse "테넌트 없음"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/keys [get]
func (h *KeyHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	keys, err := h.rotation.ListKeys(r.Context(), tenant)
	if err != nil {
		writeKeyError(w, tenant.ID, "list encryption keys", err)
		return
	}
	json.NewEncoder(w).Encode(models.SuccessResponse("Encryption keys retrieved", keys))
}

// Generate 암호화 키 생성
// @Summary 암호화 키 생성
// @Description 새 키를 생성합니다. activate가 true이면 바로 활성화합니다 (기존 행은 재암호화하지 않음)
// @Tags 관리자 - 암호화 키
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Param request body models.GenerateKeyRequest false "생성 옵션"
// @Success 201 {object} models.APIResponse{data=models.EncryptionKey} "생성 성공"
// @Failure 400 {object} models.APIResponse "잘못된 요청"
// @Failure 404 {object} models.APIResponse "테넌트 없음"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/keys [post]
func (h *KeyHandler) Generate(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	var req models.GenerateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	key, err := h.rotation.GenerateKey(r.Context(), tenant)
	if err != nil {
		writeKeyError(w, tenant.ID, "generate encryption key", err)
		return
	}
	if req.Activate {
		if err := h.rotation.ActivateKey(r.Context(), tenant, key.Version); err != nil {
			writeKeyError(w, tenant.ID, "activate encryption key", err)
			return
		}
		key.IsActive = true
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.SuccessResponse("Encryption key generated", key))
	audit(r, h.audit, tenant.ID, models.AdminActionGenerateKey, key.Version)
}

// Activate 암호화 키 활성화
// @Summary 암호화 키 활성화
// @Description 지정한 버전을 유일한 활성 키로 만듭니다
// @Tags 관리자 - 암호화 키
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Param version path string true "키 버전"
// @Success 200 {object} models.APIResponse "활성화 성공"
// @Failure 404 {object} models.APIResponse "테넌트 또는 키 없음"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/keys/{version}/activate [put]
func (h *KeyHandler) Activate(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	version := mux.Vars(r)["version"]
	if err := h.rotation.ActivateKey(r.Context(), tenant, version); err != nil {
		writeKeyError(w, tenant.ID, "activate encryption key", err)
		return
	}
	json.NewEncoder(w).Encode(models.SuccessResponse("Encryption key activated", nil))
	audit(r, h.audit, tenant.ID, models.AdminActionActivateKey, version)
}

// Delete 암호화 키 삭제
// @Summary 암호화 키 삭제
// @Description 활성 키가 아니고 어떤 행도 참조하지 않는 키만 삭제할 수 있습니다
// @Tags 관리자 - 암호화 키
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Param version path string true "키 버전"
// @Success 200 {object} models.APIResponse "삭제 성공"
// @Failure 404 {object} models.APIResponse "테넌트 또는 키 없음"
// @Failure 409 {object} models.APIResponse "사용 중인 키"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/keys/{version} [delete]
func (h *KeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	version := mux.Vars(r)["version"]
	if err := h.rotation.DeleteKey(r.Context(), tenant, version); err != nil {
		writeKeyError(w, tenant.ID, "delete encryption key", err)
		return
	}
	json.NewEncoder(w).Encode(models.SuccessResponse("Encryption key deleted", nil))
	audit(r, h.audit, tenant.ID, models.AdminActionDeleteKey, version)
}

// Rotate 암호화 키 회전
// @Summary 암호화 키 회전
// @Description 지정한 버전(비어 있으면 새 키)을 활성화하고 다른 버전의 모든 행을 재암호화 작업으로 예약합니다
// @Tags 관리자 - 암호화 키
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Param request body models.RotateKeysRequest false "대상 버전"
// @Success 202 {object} models.APIResponse{data=models.RotationPlan} "재암호화 예약"
// @Failure 400 {object} models.APIResponse "잘못된 요청"
// @Failure 404 {object} models.APIResponse "테넌트 또는 키 없음"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/keys/rotate [post]
func (h *KeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	var req models.RotateKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	plan, err := h.rotation.RotateKeys(r.Context(), tenant, req.Version)
	if err != nil {
		writeKeyError(w, tenant.ID, "rotate encryption keys", err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"tenant_id": tenant.ID,
		"version":   plan.Version,
		"batches":   plan.Batches,
	}).Info("Key rotation scheduled")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(models.SuccessResponse("Key rotation scheduled", plan))
	audit(r, h.audit, tenant.ID, models.AdminActionRotateKeys, plan.Version)
}
