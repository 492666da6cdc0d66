package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"admsserver/adms"
	"admsserver/cache"
	"admsserver/database"
	"admsserver/logger"
	"admsserver/metrics"
	"admsserver/models"
	"admsserver/queue"
	"admsserver/utils"
)

// 명령 상태 전파 작업
const (
	JobCommandStatus = "command.status"
	QueueCommands    = "commands"
)

// ResponseExpired는 만료 처리된 명령의 응답 값입니다.
const ResponseExpired = "expired"

// CommandOptions는 명령 수명 주기 설정입니다.
type CommandOptions struct {
	TTL                  time.Duration
	PendingTTL           time.Duration
	MaxPerRequest        int
	DeviceInfoMinPayload int
}

// statusJob은 한 번의 상태 전이를 지정한 저장소들에 반영하는 작업입니다.
type statusJob struct {
	TenantID     int64        `json:"tenant_id"`
	SerialNumber string       `json:"serial_number"`
	CommandIDs   []string     `json:"command_ids"`
	Stores       []string     `json:"stores"`
	Update       StatusUpdate `json:"update"`
}

// CommandManager는 명령 생성, 전달, 결과 반영과 만료/재조정을 담당합니다.
type CommandManager struct {
	catalog  *CommandCatalog
	devices  DeviceRepository
	central  *CentralCommandStore
	tenant   CommandStore
	both     CommandStore
	tenants  *database.TenantResolver
	store    cache.Store
	jobs     queue.Enqueuer
	activity *ActivityLogger
	opts     CommandOptions
}

// NewCommandManager는 CommandManager를 생성합니다.
func NewCommandManager(
	catalog *CommandCatalog,
	devices DeviceRepository,
	central *CentralCommandStore,
	tenant CommandStore,
	tenants *database.TenantResolver,
	store cache.Store,
	jobs queue.Enqueuer,
	activity *ActivityLogger,
	opts CommandOptions,
) *CommandManager {
	if opts.MaxPerRequest <= 0 {
		opts.MaxPerRequest = 10
	}
	return &CommandManager{
		catalog:  catalog,
		devices:  devices,
		central:  central,
		tenant:   tenant,
		both:     NewCompositeCommandStore(central, tenant),
		tenants:  tenants,
		store:    store,
		jobs:     jobs,
		activity: activity,
		opts:     opts,
	}
}

// Catalog는 명령 카탈로그를 반환합니다.
func (m *CommandManager) Catalog() *CommandCatalog {
	return m.catalog
}

func pendingKey(tenantID int64, serialNumber string) string {
	return "adms:pending:" + strconv.FormatInt(tenantID, 10) + ":" + serialNumber
}

func (m *CommandManager) forgetPending(ctx context.Context, tenantID int64, serialNumber string) {
	if err := m.store.Forget(ctx, pendingKey(tenantID, serialNumber)); err != nil {
		logger.WithFields(map[string]interface{}{
			"tenant_id":     tenantID,
			"serial_number": serialNumber,
			"error":         err.Error(),
		}).Warn("Failed to invalidate pending commands cache")
	}
}

// Create는 명령을 검증하고 중앙/테넌트 저장소에 기록합니다.
func (m *CommandManager) Create(ctx context.Context, tenantID int64, serialNumber, name string, params models.CommandParams) (*models.Command, error) {
	spec, err := m.catalog.Validate(name, params)
	if err != nil {
		return nil, err
	}
	device, err := m.devices.Resolve(ctx, tenantID, models.DeviceKeySerialNumber, serialNumber)
	if err != nil {
		return nil, err
	}
	id, err := utils.NewCommandID()
	if err != nil {
		return nil, err
	}

	now := utils.Now()
	cmd := models.Command{
		ID:           id,
		TenantID:     tenantID,
		DeviceID:     device.DeviceID,
		SerialNumber: device.SerialNumber,
		Name:         spec.Name,
		Command:      spec.Command,
		Params:       params,
		Status:       models.CommandStatusPending,
		CreatedAt:    utils.FormatDateTimeForDB(now),
		UpdatedAt:    utils.FormatDateTimeForDB(now),
	}
	if m.opts.TTL > 0 {
		cmd.ExpiresAt = utils.FormatDateTimeForDB(now.Add(m.opts.TTL))
	}

	err = m.both.Save(ctx, cmd)
	m.forgetPending(ctx, tenantID, device.SerialNumber)
	if err != nil {
		return nil, err
	}

	metrics.CommandsCreatedTotal.WithLabelValues(spec.Name).Inc()
	logger.WithFields(map[string]interface{}{
		"tenant_id":     tenantID,
		"serial_number": device.SerialNumber,
		"command_id":    cmd.ID,
		"name":          cmd.Name,
	}).Info("Command created")
	return &cmd, nil
}

// Pending은 전달 대기 중인 명령을 생성 순으로 반환합니다. 결과는 짧게 캐시됩니다.
func (m *CommandManager) Pending(ctx context.Context, tenantID int64, serialNumber string) ([]models.Command, error) {
	return cache.RememberJSON(ctx, m.store, pendingKey(tenantID, serialNumber), m.opts.PendingTTL,
		func(ctx context.Context) ([]models.Command, error) {
			return m.tenant.Pending(ctx, tenantID, serialNumber, utils.NowDB())
		})
}

// Deliver는 getrequest 응답에 실을 명령을 최대 MaxPerRequest개 꺼냅니다.
// 남은 명령은 캐시에 다시 쓰고, SENT 전이는 작업으로 처리합니다.
func (m *CommandManager) Deliver(ctx context.Context, tenantID int64, serialNumber string) ([]models.Command, error) {
	cached, err := m.Pending(ctx, tenantID, serialNumber)
	if err != nil {
		return nil, err
	}

	now := utils.NowDB()
	live := make([]models.Command, 0, len(cached))
	for _, c := range cached {
		if c.ExpiresAt == "" || c.ExpiresAt > now {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return nil, nil
	}

	n := m.opts.MaxPerRequest
	if n > len(live) {
		n = len(live)
	}
	delivered, rest := live[:n], live[n:]

	if err := cache.PutJSON(ctx, m.store, pendingKey(tenantID, serialNumber), rest, m.opts.PendingTTL); err != nil {
		logger.WithFields(map[string]interface{}{
			"tenant_id":     tenantID,
			"serial_number": serialNumber,
			"error":         err.Error(),
		}).Warn("Failed to write back pending commands")
	}

	ids := make([]string, len(delivered))
	for i, c := range delivered {
		ids[i] = c.ID
	}
	job := statusJob{
		TenantID:     tenantID,
		SerialNumber: serialNumber,
		CommandIDs:   ids,
		Stores:       []string{StoreCentral, StoreTenant},
		Update:       StatusUpdate{Status: models.CommandStatusSent, At: now},
	}
	if err := m.jobs.Enqueue(ctx, JobCommandStatus, job, QueueCommands); err != nil {
		logger.WithFields(map[string]interface{}{
			"tenant_id":     tenantID,
			"serial_number": serialNumber,
			"count":         len(ids),
			"error":         err.Error(),
		}).Error("Failed to enqueue SENT transition")
	}
	return delivered, nil
}

// HandleStatusJob은 상태 전파 작업 핸들러입니다. 저장소 쓰기 후 대기 캐시를 무효화합니다.
func (m *CommandManager) HandleStatusJob(ctx context.Context, payload []byte) error {
	var job statusJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("decode status job: %w", err)
	}

	var errs []error
	for _, name := range job.Stores {
		store, err := m.storeByName(name)
		if err != nil {
			return err
		}
		for _, id := range job.CommandIDs {
			changed, err := store.UpdateStatus(ctx, job.TenantID, id, job.Update)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", name, id, err))
				continue
			}
			if changed && name == StoreCentral {
				metrics.CommandTransitionsTotal.WithLabelValues(job.Update.Status).Inc()
			}
		}
	}
	if job.SerialNumber != "" {
		m.forgetPending(ctx, job.TenantID, job.SerialNumber)
	}
	return errors.Join(errs...)
}

func (m *CommandManager) storeByName(name string) (CommandStore, error) {
	switch name {
	case StoreCentral:
		return m.central, nil
	case StoreTenant:
		return m.tenant, nil
	}
	return nil, fmt.Errorf("unknown command store %q", name)
}

// HandleResult는 devicecmd 보고를 반영합니다. 중앙 사본은 즉시, 테넌트 사본은 작업으로 갱신합니다.
// 반환 코드가 음수이면 FAILED입니다.
func (m *CommandManager) HandleResult(ctx context.Context, device *models.Device, body string) error {
	res, err := adms.ParseDeviceCmd(body)
	if err != nil {
		return err
	}

	cmd, err := m.central.Get(ctx, device.TenantID, res.CommandID)
	if errors.Is(err, ErrCommandNotFound) {
		logger.WithFields(map[string]interface{}{
			"tenant_id":     device.TenantID,
			"serial_number": device.SerialNumber,
			"command_id":    res.CommandID,
		}).Warn("Result reported for unknown command")
		return nil
	}
	if err != nil {
		return adms.NewError(adms.KindStorage, "load command", err)
	}
	if cmd.SerialNumber != device.SerialNumber {
		logger.WithFields(map[string]interface{}{
			"tenant_id":     device.TenantID,
			"serial_number": device.SerialNumber,
			"owner":         cmd.SerialNumber,
			"command_id":    res.CommandID,
		}).Warn("Result reported by a device that does not own the command")
		return nil
	}

	status := models.CommandStatusExecuted
	action := models.DeviceActionCommandExecuted
	if res.ReturnCode < 0 {
		status = models.CommandStatusFailed
		action = models.DeviceActionCommandFailed
	}
	response := res.Raw
	code := res.ReturnCode
	update := StatusUpdate{Status: status, Response: &response, ReturnCode: &code, At: utils.NowDB()}

	changed, err := m.central.UpdateStatus(ctx, device.TenantID, cmd.ID, update)
	if err != nil {
		return adms.NewError(adms.KindStorage, "update command", err)
	}
	if changed {
		metrics.CommandTransitionsTotal.WithLabelValues(status).Inc()
	}

	job := statusJob{
		TenantID:     device.TenantID,
		SerialNumber: device.SerialNumber,
		CommandIDs:   []string{cmd.ID},
		Stores:       []string{StoreTenant},
		Update:       update,
	}
	if err := m.jobs.Enqueue(ctx, JobCommandStatus, job, QueueCommands); err != nil {
		metrics.StoreDivergenceTotal.WithLabelValues(StoreTenant).Inc()
		logger.WithFields(map[string]interface{}{
			"tenant_id":  device.TenantID,
			"command_id": cmd.ID,
			"error":      err.Error(),
		}).Error("Failed to enqueue tenant status propagation")
	}

	if len(body) > m.opts.DeviceInfoMinPayload {
		if info, ok := adms.DeviceInfo(res.Fields); ok {
			if err := m.devices.UpdateDeviceInfo(ctx, device.TenantID, device.SerialNumber, info); err != nil {
				logger.WithFields(map[string]interface{}{
					"serial_number": device.SerialNumber,
					"error":         err.Error(),
				}).Error("Failed to update device info")
			} else {
				m.activity.Log(ctx, device.TenantID, device.SerialNumber, models.DeviceActionInfoUpdated,
					fmt.Sprintf("mac=%s ip=%s", info.MACAddress, info.IPAddress))
			}
		}
	}

	if changed {
		m.activity.Log(ctx, device.TenantID, device.SerialNumber, action,
			fmt.Sprintf("%s (%s) return=%d", cmd.Name, cmd.ID, code))
	}
	return nil
}

// ExpireStale은 만료 시각이 지난 PENDING 명령을 FAILED로 표시합니다.
func (m *CommandManager) ExpireStale(ctx context.Context, limit int) (int, error) {
	now := utils.NowDB()
	expired, err := m.central.Expired(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	response := ResponseExpired
	update := StatusUpdate{
		Status:   models.CommandStatusFailed,
		Response: &response,
		At:       now,
		From:     []string{models.CommandStatusPending},
	}

	type deviceKey struct {
		tenantID     int64
		serialNumber string
	}
	byDevice := make(map[deviceKey][]string)
	count := 0
	for _, cmd := range expired {
		changed, err := m.central.UpdateStatus(ctx, cmd.TenantID, cmd.ID, update)
		if err != nil {
			return count, err
		}
		if !changed {
			continue
		}
		count++
		k := deviceKey{cmd.TenantID, cmd.SerialNumber}
		byDevice[k] = append(byDevice[k], cmd.ID)
	}

	for k, ids := range byDevice {
		job := statusJob{
			TenantID:     k.tenantID,
			SerialNumber: k.serialNumber,
			CommandIDs:   ids,
			Stores:       []string{StoreTenant},
			Update:       update,
		}
		if err := m.jobs.Enqueue(ctx, JobCommandStatus, job, QueueCommands); err != nil {
			logger.WithFields(map[string]interface{}{
				"tenant_id": k.tenantID,
				"count":     len(ids),
				"error":     err.Error(),
			}).Error("Failed to enqueue expiry propagation")
		}
		m.forgetPending(ctx, k.tenantID, k.serialNumber)
	}
	if count > 0 {
		metrics.CommandTransitionsTotal.WithLabelValues(models.CommandStatusFailed).Add(float64(count))
		logger.WithFields(map[string]interface{}{"count": count}).Info("Expired pending commands")
	}
	return count, nil
}

func updateFromCommand(cmd models.Command) StatusUpdate {
	u := StatusUpdate{Status: cmd.Status, At: cmd.UpdatedAt}
	switch {
	case cmd.Status == models.CommandStatusSent:
		if cmd.SentAt != "" {
			u.At = cmd.SentAt
		}
	case models.IsTerminalCommandStatus(cmd.Status):
		response := cmd.Response
		u.Response = &response
		u.ReturnCode = cmd.ReturnCode
		if cmd.ExecutedAt != "" {
			u.At = cmd.ExecutedAt
		}
	}
	return u
}

// Reconcile은 since 이후 생성된 명령의 두 사본을 비교하여 뒤처진 쪽을 앞선 상태로 맞춥니다.
// 한쪽에만 있는 명령은 다른 쪽에 저장합니다. 맞춘 명령 수를 반환합니다.
func (m *CommandManager) Reconcile(ctx context.Context, tenantID int64, since string) (int, error) {
	centralCmds, err := m.central.Recent(ctx, tenantID, since)
	if err != nil {
		return 0, err
	}
	tenantCmds, err := m.tenant.Recent(ctx, tenantID, since)
	if err != nil {
		return 0, err
	}
	tenantByID := make(map[string]models.Command, len(tenantCmds))
	for _, c := range tenantCmds {
		tenantByID[c.ID] = c
	}

	repaired := 0
	push := func(store CommandStore, cmd models.Command) error {
		if cmd.Status == models.CommandStatusPending {
			return nil
		}
		_, err := store.UpdateStatus(ctx, tenantID, cmd.ID, updateFromCommand(cmd))
		return err
	}

	for _, c := range centralCmds {
		t, ok := tenantByID[c.ID]
		delete(tenantByID, c.ID)
		switch {
		case !ok:
			if err := m.tenant.Save(ctx, c); err != nil {
				return repaired, err
			}
			if err := push(m.tenant, c); err != nil {
				return repaired, err
			}
		case models.CommandStatusRank(c.Status) > models.CommandStatusRank(t.Status):
			if err := push(m.tenant, c); err != nil {
				return repaired, err
			}
		case models.CommandStatusRank(t.Status) > models.CommandStatusRank(c.Status):
			if err := push(m.central, t); err != nil {
				return repaired, err
			}
		default:
			continue
		}
		repaired++
		m.forgetPending(ctx, tenantID, c.SerialNumber)
	}

	for _, t := range tenantByID {
		t.TenantID = tenantID
		if err := m.central.Save(ctx, t); err != nil {
			return repaired, err
		}
		if err := push(m.central, t); err != nil {
			return repaired, err
		}
		repaired++
	}

	if repaired > 0 {
		metrics.StoreDivergenceTotal.WithLabelValues("reconciled").Add(float64(repaired))
		logger.WithFields(map[string]interface{}{
			"tenant_id": tenantID,
			"count":     repaired,
		}).Warn("Reconciled diverged commands")
	}
	return repaired, nil
}

// ReconcileAll은 모든 활성 테넌트에 대해 Reconcile을 실행합니다.
func (m *CommandManager) ReconcileAll(ctx context.Context, window time.Duration) (int, error) {
	tenants, err := m.tenants.Active(ctx)
	if err != nil {
		return 0, err
	}
	since := utils.FormatDateTimeForDB(utils.Now().Add(-window))
	total := 0
	var errs []error
	for _, t := range tenants {
		n, err := m.Reconcile(ctx, t.ID, since)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("tenant %d: %w", t.ID, err))
		}
	}
	return total, errors.Join(errs...)
}

// List는 중앙 사본 기준 명령 목록입니다.
func (m *CommandManager) List(ctx context.Context, f CommandFilter) ([]models.Command, error) {
	return m.central.List(ctx, f)
}

// Get은 중앙 사본에서 명령 하나를 조회합니다.
func (m *CommandManager) Get(ctx context.Context, tenantID int64, id string) (*models.Command, error) {
	return m.central.Get(ctx, tenantID, id)
}
