package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"admsserver/adms"
	"admsserver/database"
	"admsserver/logger"
	"admsserver/models"
	"admsserver/services"
)

// DeviceHandler는 단말기 등록/상태 관리 API를 처리한다.
type DeviceHandler struct {
	tenants  TenantLookup
	devices  *services.DeviceRegistry
	activity *services.ActivityLogger
	audit    *services.AdminAuditLog
}

// NewDeviceHandler는 단말기 핸들러를 생성한다.
func NewDeviceHandler(tenants TenantLookup, devices *services.DeviceRegistry, activity *services.ActivityLogger, auditLog *services.AdminAuditLog) *DeviceHandler {
	return &DeviceHandler{tenants: tenants, devices: devices, activity: activity, audit: auditLog}
}

// List 단말기 목록 조회
// @Summary 단말기 목록 조회
// @Description 테넌트에 등록된 단말기를 조회합니다 (캐시가 아닌 DB 기준)
// @Tags 관리자 - 단말기
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Success 200 {object} models.APIResponse{data=[]models.Device} "조회 성공"
// @Failure 404 {object} models.APIResponse "테넌트 없음"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/devices [get]
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	devices, err := h.devices.List(r.Context(), tenant.ID)
	if err != nil {
		logger.Error("Failed to query devices: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to query devices", err))
		return
	}
	json.NewEncoder(w).Encode(models.ListResponse("Devices retrieved", devices, len(devices), 0))
}

// Register 단말기 등록
// @Summary 단말기 등록
// @Description 단말기를 등록합니다. 승인된 활성 단말기만 프로토콜 요청이 허용됩니다
// @Tags 관리자 - 단말기
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Param request body models.RegisterDeviceRequest true "단말기 정보"
// @Success 201 {object} models.APIResponse{data=models.Device} "등록 성공"
// @Failure 400 {object} models.APIResponse "잘못된 요청"
// @Failure 404 {object} models.APIResponse "테넌트 없음"
// @Failure 409 {object} models.APIResponse "이미 등록된 단말기"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/devices [post]
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}

	var req models.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}
	req.SerialNumber = strings.TrimSpace(req.SerialNumber)
	if err := adms.ValidateSN(req.SerialNumber); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid serial number", err))
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		req.DeviceID = req.SerialNumber
	}

	// 같은 테넌트에 같은 SN이 있으면 레지스트리에서 둘 다 제외되므로 등록 전에 막는다
	existing, err := h.devices.List(r.Context(), tenant.ID)
	if err != nil {
		logger.Error("Failed to query devices: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to register device", err))
		return
	}
	for _, d := range existing {
		if d.SerialNumber == req.SerialNumber || d.DeviceID == req.DeviceID {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(models.ErrorResponse("Device already registered", nil))
			return
		}
	}

	device, err := h.devices.Register(r.Context(), models.Device{
		TenantID:     tenant.ID,
		DeviceID:     req.DeviceID,
		SerialNumber: req.SerialNumber,
		Name:         req.Name,
		IsApproved:   req.IsApproved,
		IsActive:     true,
		Settings:     req.Settings,
	})
	if err != nil {
		if database.IsDuplicateKey(err) {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(models.ErrorResponse("Device already registered", nil))
			return
		}
		logger.WithFields(map[string]interface{}{
			"tenant_id":     tenant.ID,
			"serial_number": req.SerialNumber,
			"error":         err.Error(),
		}).Error("Failed to register device")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to register device", err))
		return
	}

	logger.WithFields(map[string]interface{}{
		"tenant_id":     tenant.ID,
		"serial_number": device.SerialNumber,
	}).Info("Device registered")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.SuccessResponse("Device registered successfully", device))
	audit(r, h.audit, tenant.ID, models.AdminActionRegisterDevice, "Device registered: "+device.SerialNumber)
}

// UpdateStatus 단말기 승인/활성 상태 변경
// @Summary 단말기 상태 변경
// @Description 단말기 승인 및 활성 상태를 변경하고 단말기 캐시를 무효화합니다
// @Tags 관리자 - 단말기
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Param serialNumber path string true "단말기 시리얼 번호"
// @Param request body models.UpdateDeviceStatusRequest true "상태"
// @Success 200 {object} models.APIResponse "변경 성공"
// @Failure 400 {object} models.APIResponse "잘못된 요청"
// @Failure 404 {object} models.APIResponse "테넌트 또는 단말기 없음"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/devices/{serialNumber}/status [put]
func (h *DeviceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	sn := mux.Vars(r)["serialNumber"]

	var req models.UpdateDeviceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	if err := h.devices.SetStatus(r.Context(), tenant.ID, sn, req.IsApproved, req.IsActive); err != nil {
		if errors.Is(err, services.ErrDeviceNotFound) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.ErrorResponse("Device not found", nil))
			return
		}
		logger.WithFields(map[string]interface{}{
			"tenant_id":     tenant.ID,
			"serial_number": sn,
			"error":         err.Error(),
		}).Error("Failed to update device status")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to update device status", err))
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Device status updated", req))
	audit(r, h.audit, tenant.ID, models.AdminActionUpdateDevice,
		"Device "+sn+" approved="+strconv.FormatBool(req.IsApproved)+" active="+strconv.FormatBool(req.IsActive))
}

// Remove 단말기 삭제
// @Summary 단말기 삭제
// @Description 단말기를 소프트 삭제합니다. 이후 해당 SN의 요청은 거부됩니다
// @Tags 관리자 - 단말기
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Param serialNumber path string true "단말기 시리얼 번호"
// @Success 200 {object} models.APIResponse "삭제 성공"
// @Failure 404 {object} models.APIResponse "테넌트 또는 단말기 없음"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/devices/{serialNumber} [delete]
func (h *DeviceHandler) Remove(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	sn := mux.Vars(r)["serialNumber"]
	if err := h.devices.Remove(r.Context(), tenant.ID, sn); err != nil {
		if errors.Is(err, services.ErrDeviceNotFound) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.ErrorResponse("Device not found", nil))
			return
		}
		logger.Error("Failed to remove device: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to remove device", err))
		return
	}
	json.NewEncoder(w).Encode(models.SuccessResponse("Device removed", nil))
	audit(r, h.audit, tenant.ID, models.AdminActionRemoveDevice, "Device removed: "+sn)
}

// Activity 단말기 활동 로그 조회
// @Summary 단말기 활동 로그 조회
// @Description 명령 결과, 정보 갱신, 업로드 등 단말기 활동을 최신순으로 조회합니다
// @Tags 관리자 - 단말기
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Param serialNumber path string true "단말기 시리얼 번호"
// @Param limit query int false "최대 개수 (기본 100)"
// @Success 200 {object} models.APIResponse{data=[]models.DeviceActivityLog} "조회 성공"
// @Failure 404 {object} models.APIResponse "테넌트 없음"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/devices/{serialNumber}/activity [get]
func (h *DeviceHandler) Activity(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := h.activity.Recent(r.Context(), tenant.ID, mux.Vars(r)["serialNumber"], limit)
	if err != nil {
		logger.Error("Failed to query device activity: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to query device activity", err))
		return
	}
	json.NewEncoder(w).Encode(models.ListResponse("Device activity retrieved", logs, len(logs), limit))
}

// InvalidateCache 단말기 캐시 무효화
// @Summary 단말기 캐시 무효화
// @Description 공유 단말기 스냅샷과 로컬 인덱스를 버립니다. 다음 요청에서 다시 만들어집니다
// @Tags 관리자 - 단말기
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse "무효화 성공"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/cache/devices/invalidate [post]
func (h *DeviceHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.devices.Invalidate(r.Context()); err != nil {
		logger.Error("Failed to invalidate device cache: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to invalidate device cache", err))
		return
	}
	logger.Info("Device cache invalidated")
	json.NewEncoder(w).Encode(models.SuccessResponse("Device cache invalidated", nil))
	audit(r, h.audit, 0, models.AdminActionInvalidateDevice, "Device snapshot invalidated")
}
