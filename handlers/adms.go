package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"admsserver/adms"
	"admsserver/database"
	"admsserver/logger"
	"admsserver/metrics"
	"admsserver/models"
	"admsserver/services"
)

// maxUploadBytes는 cdata/devicecmd 본문의 최대 크기입니다.
const maxUploadBytes = 16 << 20

// TenantLookup은 URL의 사업자 코드로 테넌트를 찾습니다.
type TenantLookup interface {
	ByBusinessCode(ctx context.Context, code string) (*models.Tenant, error)
}

// ADMSHandler는 단말기 푸시 프로토콜 엔드포인트(/iclock/{businessCode}/{endpoint})입니다.
// 모든 응답은 HTTP 200 text/plain이며 실패는 "Error Occurred"로만 알립니다.
type ADMSHandler struct {
	tenants  TenantLookup
	devices  services.DeviceRepository
	limiter  *services.RateLimiter
	commands *services.CommandManager
	ingestor *services.Ingestor
}

// NewADMSHandler는 ADMSHandler를 생성합니다.
func NewADMSHandler(tenants TenantLookup, devices services.DeviceRepository, limiter *services.RateLimiter, commands *services.CommandManager, ingestor *services.Ingestor) *ADMSHandler {
	return &ADMSHandler{
		tenants:  tenants,
		devices:  devices,
		limiter:  limiter,
		commands: commands,
		ingestor: ingestor,
	}
}

// Handle 단말기 요청 처리
// @Summary 단말기 프로토콜 (ADMS)
// @Description 출퇴근 단말기의 cdata / devicecmd / getrequest 요청을 처리합니다. 응답은 항상 200 text/plain입니다
// @Tags 단말기 프로토콜
// @Accept plain
// @Produce plain
// @Param businessCode path string true "사업자 코드"
// @Param endpoint path string true "cdata, devicecmd, getrequest (.aspx/.php 허용)"
// @Param SN query string true "단말기 시리얼 번호"
// @Param table query string false "업로드 테이블 (cdata POST)"
// @Param Stamp query string false "전송 스탬프 (cdata POST)"
// @Success 200 {string} string "OK 또는 설정/명령 블록, 실패 시 Error Occurred"
// @Router /iclock/{businessCode}/{endpoint} [get]
// @Router /iclock/{businessCode}/{endpoint} [post]
func (h *ADMSHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	vars := mux.Vars(r)
	sn := r.URL.Query().Get("SN")

	endpoint, err := adms.NormalizeEndpoint(vars["endpoint"])
	label := endpoint
	if err != nil {
		label = "unknown"
	} else {
		var reply []byte
		reply, err = h.serve(r, endpoint, vars["businessCode"], sn)
		if err == nil {
			h.reply(w, reply)
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = adms.KindOf(err).String()
		logFailure(r, sn, "Device request failed", err)
		h.reply(w, adms.Frame(adms.ReplyError))
	}

	metrics.ProtocolRequestsTotal.WithLabelValues(label, r.Method, outcome).Inc()
	metrics.ProtocolDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}

func (h *ADMSHandler) reply(w http.ResponseWriter, framed []byte) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write(framed)
}

// logFailure는 오류 종류에 맞는 레벨로 단말기 요청 실패를 남깁니다.
func logFailure(r *http.Request, sn, message string, err error) {
	vars := mux.Vars(r)
	kind := adms.KindOf(err)
	logger.WithFields(map[string]interface{}{
		"request_id":    r.Context().Value("request_id"),
		"business_code": vars["businessCode"],
		"endpoint":      vars["endpoint"],
		"method":        r.Method,
		"serial_number": sn,
		"kind":          kind.String(),
		"error":         err.Error(),
	}).Log(kind.LogLevel(), "%s", message)
}

// serve는 검증, 테넌트/단말기 확인, 속도 제한 후 엔드포인트별로 프레임된 응답을 만듭니다.
func (h *ADMSHandler) serve(r *http.Request, endpoint, businessCode, sn string) ([]byte, error) {
	ctx := r.Context()
	if err := adms.ValidateSN(sn); err != nil {
		return nil, err
	}

	tenant, err := h.tenants.ByBusinessCode(ctx, businessCode)
	if errors.Is(err, database.ErrTenantNotFound) {
		return nil, adms.NewError(adms.KindNotFound, "tenant "+businessCode, err)
	}
	if err != nil {
		return nil, adms.NewError(adms.KindStorage, "tenant lookup", err)
	}

	if err := h.limiter.Allow(ctx, tenant.ID, sn); err != nil {
		return nil, adms.NewError(adms.KindRateLimited, "rate limit", err)
	}

	device, err := h.devices.Resolve(ctx, tenant.ID, models.DeviceKeySerialNumber, sn)
	if errors.Is(err, services.ErrDeviceNotFound) {
		return nil, adms.NewError(adms.KindNotFound, "device "+sn, err)
	}
	if err != nil {
		return nil, adms.NewError(adms.KindStorage, "device lookup", err)
	}
	if !device.Usable() {
		return nil, adms.NewError(adms.KindNotFound, "device "+sn, fmt.Errorf("device not approved or inactive"))
	}

	switch {
	case endpoint == adms.EndpointCData && r.Method == http.MethodGet:
		return adms.Frame(adms.SettingsBlock(device.SerialNumber, device.Settings)), nil

	case endpoint == adms.EndpointCData && r.Method == http.MethodPost:
		body, err := readBody(r)
		if err != nil {
			return nil, err
		}
		q := r.URL.Query()
		if _, err := h.ingestor.Submit(ctx, device, q.Get("table"), q.Get("Stamp"), body); err != nil {
			return nil, adms.NewError(adms.KindStorage, "enqueue upload", err)
		}
		return adms.Frame(adms.ReplyOK), nil

	case endpoint == adms.EndpointDeviceCmd && r.Method == http.MethodPost:
		// 단말기는 결과 보고를 재시도하지 않으므로 처리 결과와 무관하게 OK로 답한다
		if err := h.recordResult(r, device); err != nil {
			logFailure(r, sn, "Device command result not recorded", err)
		}
		return adms.Frame(adms.ReplyOK), nil

	case endpoint == adms.EndpointGetRequest && r.Method == http.MethodGet:
		cmds, err := h.commands.Deliver(ctx, tenant.ID, device.SerialNumber)
		if err != nil {
			return nil, adms.NewError(adms.KindStorage, "pending commands", err)
		}
		return adms.CommandList(cmds), nil
	}
	return nil, adms.NewError(adms.KindProtocol, r.Method+" "+endpoint, errors.New("method not allowed"))
}

func (h *ADMSHandler) recordResult(r *http.Request, device *models.Device) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if err := h.commands.HandleResult(r.Context(), device, body); err != nil {
		var perr *adms.Error
		if errors.As(err, &perr) {
			return err
		}
		return adms.NewError(adms.KindStorage, "devicecmd", err)
	}
	return nil
}

var errBodyTooLarge = errors.New("body too large")

// readBody는 maxUploadBytes를 넘는 본문을 잘라 쓰지 않고 거부합니다.
func readBody(r *http.Request) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		return "", adms.NewError(adms.KindProtocol, "read body", err)
	}
	if len(raw) > maxUploadBytes {
		return "", adms.NewError(adms.KindValidation, "read body", errBodyTooLarge)
	}
	return string(raw), nil
}
