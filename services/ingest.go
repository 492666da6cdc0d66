package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admsserver/adms"
	"admsserver/cache"
	"admsserver/dal"
	"admsserver/logger"
	"admsserver/metrics"
	"admsserver/models"
	"admsserver/query"
	"admsserver/queue"
	"admsserver/utils"
)

// 업로드 적재 작업
const (
	JobIngest   = "adms.ingest"
	QueueIngest = "ingest"
)

// IngestJob은 cdata POST 한 건의 원본입니다.
type IngestJob struct {
	TenantID     int64  `json:"tenant_id"`
	SerialNumber string `json:"serial_number"`
	Table        string `json:"table"`
	Stamp        string `json:"stamp"`
	Body         string `json:"body"`
	ReceivedAt   string `json:"received_at"`
}

// Ingestor는 업로드를 중복 제거 후 작업 큐에 넣고, 작업에서 테넌트 DB에 적재합니다.
type Ingestor struct {
	dbs      *TenantDatabases
	devices  DeviceRepository
	store    cache.Store
	jobs     queue.Enqueuer
	activity *ActivityLogger
	dedupTTL time.Duration
}

// NewIngestor는 Ingestor를 생성합니다.
func NewIngestor(dbs *TenantDatabases, devices DeviceRepository, store cache.Store, jobs queue.Enqueuer, activity *ActivityLogger, dedupTTL time.Duration) *Ingestor {
	return &Ingestor{
		dbs:      dbs,
		devices:  devices,
		store:    store,
		jobs:     jobs,
		activity: activity,
		dedupTTL: dedupTTL,
	}
}

func ingestLockKey(tenantID int64, serialNumber, fingerprint string) string {
	return "adms:ingest:" + strconv.FormatInt(tenantID, 10) + ":" + serialNumber + ":" + fingerprint
}

// Submit은 같은 테이블/스탬프/본문의 업로드를 TTL 동안 한 번만 큐에 넣습니다.
// queued가 false이면 중복으로 버려진 것입니다.
func (i *Ingestor) Submit(ctx context.Context, device *models.Device, table, stamp, body string) (bool, error) {
	table = strings.ToUpper(strings.TrimSpace(table))
	key := ingestLockKey(device.TenantID, device.SerialNumber, utils.PayloadFingerprint(table, stamp, body))

	acquired, err := i.store.Lock(ctx, key, i.dedupTTL)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"serial_number": device.SerialNumber,
			"error":         err.Error(),
		}).Warn("Ingest dedup lock unavailable")
		acquired = true
	}
	if !acquired {
		metrics.UploadsTotal.WithLabelValues(table, "duplicate").Inc()
		logger.WithFields(map[string]interface{}{
			"tenant_id":     device.TenantID,
			"serial_number": device.SerialNumber,
			"table":         table,
			"stamp":         stamp,
		}).Info("Duplicate upload ignored")
		return false, nil
	}

	job := IngestJob{
		TenantID:     device.TenantID,
		SerialNumber: device.SerialNumber,
		Table:        table,
		Stamp:        stamp,
		Body:         body,
		ReceivedAt:   utils.NowDB(),
	}
	if err := i.jobs.Enqueue(ctx, JobIngest, job, QueueIngest); err != nil {
		_ = i.store.Unlock(ctx, key)
		metrics.UploadsTotal.WithLabelValues(table, "error").Inc()
		return false, err
	}
	metrics.UploadsTotal.WithLabelValues(table, "queued").Inc()
	return true, nil
}

// HandleIngest는 적재 작업 핸들러입니다. 출퇴근 기록은 중복을 무시하고,
// 사용자와 템플릿은 단말기 기준 키로 upsert합니다.
func (i *Ingestor) HandleIngest(ctx context.Context, payload []byte) error {
	var job IngestJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("decode ingest job: %w", err)
	}

	up := adms.ParseUpload(job.SerialNumber, job.Table, job.Body)
	db, _, err := i.dbs.Open(ctx, job.TenantID)
	if err != nil {
		return err
	}

	stored, err := i.persist(ctx, db, up)
	if err != nil {
		return err
	}

	if setting := adms.StampSetting(job.Table); setting != "" && job.Stamp != "" {
		if err := i.devices.RecordTransfer(ctx, job.TenantID, job.SerialNumber, map[string]string{setting: job.Stamp}); err != nil {
			logger.WithFields(map[string]interface{}{
				"serial_number": job.SerialNumber,
				"table":         job.Table,
				"error":         err.Error(),
			}).Warn("Failed to record transfer stamp")
		}
	}

	metrics.IngestedRecordsTotal.WithLabelValues(job.Table).Add(float64(stored))
	details := fmt.Sprintf("%s: %d records stored, %d skipped", job.Table, stored, up.Skipped)
	if up.Operations > 0 {
		details += fmt.Sprintf(", %d operation entries", up.Operations)
	}
	i.activity.Log(ctx, job.TenantID, job.SerialNumber, models.DeviceActionDataUploaded, details)

	logger.WithFields(map[string]interface{}{
		"tenant_id":     job.TenantID,
		"serial_number": job.SerialNumber,
		"table":         job.Table,
		"stored":        stored,
		"skipped":       up.Skipped,
	}).Info("Upload ingested")
	return nil
}

func (i *Ingestor) persist(ctx context.Context, db *dal.DB, up adms.Upload) (int64, error) {
	now := utils.NowDB()
	var total int64

	if len(up.Attendance) > 0 {
		rows := make([]query.Row, 0, len(up.Attendance))
		for _, a := range up.Attendance {
			rows = append(rows, query.Row{
				"device_sn":     a.DeviceSN,
				"employee_code": a.EmployeeCode,
				"punch_time":    a.PunchTime,
				"status":        a.Status,
				"verify_type":   a.VerifyType,
				"work_code":     a.WorkCode,
				"created_at":    now,
			})
		}
		n, err := db.BulkInsert(ctx, "attendance_logs", rows, true)
		if err != nil {
			return total, err
		}
		total += n
	}

	if len(up.Users) > 0 {
		rows := make([]query.Row, 0, len(up.Users))
		for _, u := range up.Users {
			rows = append(rows, query.Row{
				"device_sn":   u.DeviceSN,
				"pin":         u.PIN,
				"name":        u.Name,
				"privilege":   u.Privilege,
				"password":    u.Password,
				"card":        u.Card,
				"group_no":    u.GroupNo,
				"timezones":   u.TimeZones,
				"verify_mode": u.VerifyMode,
				"created_at":  now,
				"updated_at":  now,
			})
		}
		n, err := upsertChunks(ctx, db, "device_users", []string{"device_sn", "pin"},
			[]string{"name", "privilege", "password", "card", "group_no", "timezones", "verify_mode", "updated_at"}, rows)
		if err != nil {
			return total, err
		}
		total += n
	}

	if len(up.Templates) > 0 {
		rows := make([]query.Row, 0, len(up.Templates))
		for _, t := range up.Templates {
			rows = append(rows, query.Row{
				"device_sn":     t.DeviceSN,
				"pin":           t.PIN,
				"finger_index":  t.FingerIndex,
				"template_type": t.TemplateType,
				"size":          t.Size,
				"valid":         t.Valid,
				"template":      t.Template,
				"created_at":    now,
				"updated_at":    now,
			})
		}
		n, err := upsertChunks(ctx, db, "biometric_templates", []string{"device_sn", "pin", "template_type", "finger_index"},
			[]string{"size", "valid", "template", "updated_at"}, rows)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func upsertChunks(ctx context.Context, db *dal.DB, table string, keys, cols []string, rows []query.Row) (int64, error) {
	var total int64
	for start := 0; start < len(rows); start += dal.BulkChunkSize {
		end := start + dal.BulkChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := db.Upsert(ctx, query.Upsert(table, keys, cols, rows[start:end]...))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
