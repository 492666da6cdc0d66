package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"admsserver/logger"
	"admsserver/models"
	"admsserver/services"
)

// CommandHandler는 단말기 명령 관리 API를 처리한다.
type CommandHandler struct {
	tenants  TenantLookup
	commands *services.CommandManager
	audit    *services.AdminAuditLog
}

// NewCommandHandler는 명령 핸들러를 생성한다.
func NewCommandHandler(tenants TenantLookup, commands *services.CommandManager, auditLog *services.AdminAuditLog) *CommandHandler {
	return &CommandHandler{tenants: tenants, commands: commands, audit: auditLog}
}

// Create 단말기 명령 생성
// @Summary 단말기 명령 생성
// @Description 카탈로그에 등록된 명령을 검증한 뒤 대기 상태로 저장합니다. 단말기의 다음 getrequest에 전달됩니다
// @Tags 관리자 - 명령
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Param serialNumber path string true "단말기 시리얼 번호"
// @Param request body models.CreateCommandRequest true "명령 이름과 파라미터"
// @Success 201 {object} models.APIResponse{data=models.Command} "생성 성공"
// @Failure 400 {object} models.APIResponse "카탈로그에 없는 명령 또는 파라미터 오류"
// @Failure 401 {object} models.APIResponse "인증 필요"
// @Failure 404 {object} models.APIResponse "테넌트 또는 단말기 없음"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/devices/{serialNumber}/commands [post]
func (h *CommandHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	sn := mux.Vars(r)["serialNumber"]

	var req models.CreateCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Command name is required", nil))
		return
	}

	cmd, err := h.commands.Create(r.Context(), tenant.ID, sn, req.Name, req.Params)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCommand):
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(models.ErrorResponse("Invalid command", err))
		case errors.Is(err, services.ErrDeviceNotFound):
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.ErrorResponse("Device not found", nil))
		default:
			logger.WithFields(map[string]interface{}{
				"tenant_id":     tenant.ID,
				"serial_number": sn,
				"name":          req.Name,
				"error":         err.Error(),
			}).Error("Failed to create command")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(models.ErrorResponse("Failed to create command", err))
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.SuccessResponse("Command created successfully", cmd))
	audit(r, h.audit, tenant.ID, models.AdminActionCreateCommand, cmd.Name+" -> "+sn+" ("+cmd.ID+")")
}

// List 단말기 명령 목록 조회
// @Summary 단말기 명령 목록 조회
// @Description 중앙 사본 기준으로 단말기 명령을 최신순으로 조회합니다
// @Tags 관리자 - 명령
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param businessCode path string true "사업자 코드"
// @Param serialNumber path string true "단말기 시리얼 번호"
// @Param status query string false "상태 필터 (PENDING, SENT, EXECUTED, FAILED)"
// @Param limit query int false "최대 개수 (기본 100, 최대 500)"
// @Success 200 {object} models.APIResponse{data=[]models.Command} "조회 성공"
// @Failure 401 {object} models.APIResponse "인증 필요"
// @Failure 404 {object} models.APIResponse "테넌트 없음"
// @Failure 500 {object} models.APIResponse "서버 에러"
// @Router /api/admin/tenants/{businessCode}/devices/{serialNumber}/commands [get]
func (h *CommandHandler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFromPath(w, r, h.tenants)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	cmds, err := h.commands.List(r.Context(), services.CommandFilter{
		TenantID:     tenant.ID,
		SerialNumber: mux.Vars(r)["serialNumber"],
		Status:       strings.ToUpper(r.URL.Query().Get("status")),
		Limit:        limit,
	})
	if err != nil {
		logger.Error("Failed to query commands: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to query commands", err))
		return
	}

	json.NewEncoder(w).Encode(models.ListResponse("Commands retrieved", cmds, len(cmds), limit))
}

// Catalog 명령 카탈로그 조회
// @Summary 명령 카탈로그 조회
// @Description 생성 가능한 명령 이름과 파라미터 규칙을 조회합니다
// @Tags 관리자 - 명령
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse "조회 성공"
// @Router /api/admin/commands/catalog [get]
func (h *CommandHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	catalog := h.commands.Catalog()
	specs := make([]services.CommandSpec, 0)
	for _, name := range catalog.Names() {
		if spec, err := catalog.Lookup(name); err == nil {
			specs = append(specs, spec)
		}
	}
	json.NewEncoder(w).Encode(models.SuccessResponse("Command catalog", specs))
}
