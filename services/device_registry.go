package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"admsserver/cache"
	"admsserver/dal"
	"admsserver/logger"
	"admsserver/metrics"
	"admsserver/models"
	"admsserver/query"
	"admsserver/utils"
)

// ErrDeviceNotFound는 테넌트에 해당 단말기가 없을 때 반환됩니다.
var ErrDeviceNotFound = errors.New("device not found")

const deviceSnapshotKey = "adms:device_snapshot"

// DeviceRepository는 단말기 조회와 프로토콜 응답에 따른 단말기 갱신을 담당합니다.
type DeviceRepository interface {
	Resolve(ctx context.Context, tenantID int64, keyType, value string) (*models.Device, error)
	Invalidate(ctx context.Context) error
	UpdateDeviceInfo(ctx context.Context, tenantID int64, serialNumber string, info models.DeviceInfoUpdate) error
	RecordTransfer(ctx context.Context, tenantID int64, serialNumber string, stamps map[string]string) error
}

// DeviceRegistry는 중앙 devices 테이블 전체를 공유 캐시에 스냅샷으로 두고,
// 인스턴스마다 그 스냅샷으로 만든 인덱스를 주기적으로 갱신합니다.
type DeviceRegistry struct {
	central *dal.DB
	store   cache.Store
	ttl     time.Duration
	refresh time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	index    map[string]*models.Device
	loadedAt time.Time
}

var _ DeviceRepository = (*DeviceRegistry)(nil)

// NewDeviceRegistry는 DeviceRegistry를 생성합니다.
// ttl은 공유 스냅샷 수명, refresh는 로컬 인덱스 갱신 주기입니다.
func NewDeviceRegistry(central *dal.DB, store cache.Store, ttl, refresh time.Duration) *DeviceRegistry {
	return &DeviceRegistry{
		central: central,
		store:   store,
		ttl:     ttl,
		refresh: refresh,
		now:     time.Now,
	}
}

func indexKey(tenantID int64, keyType, value string) string {
	return strconv.FormatInt(tenantID, 10) + "|" + keyType + "|" + value
}

// Resolve는 device_id 또는 serial_number로 단말기를 찾습니다.
// 두 키 모두 같은 레코드를 가리킵니다.
func (r *DeviceRegistry) Resolve(ctx context.Context, tenantID int64, keyType, value string) (*models.Device, error) {
	switch keyType {
	case models.DeviceKeyDeviceID, models.DeviceKeySerialNumber:
	default:
		return nil, fmt.Errorf("unsupported device key type %q", keyType)
	}
	if value == "" {
		return nil, ErrDeviceNotFound
	}

	index, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := index[indexKey(tenantID, keyType, value)]
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("device", "miss").Inc()
		return nil, ErrDeviceNotFound
	}
	metrics.CacheLookupsTotal.WithLabelValues("device", "hit").Inc()
	cp := *d
	return &cp, nil
}

func (r *DeviceRegistry) current(ctx context.Context) (map[string]*models.Device, error) {
	r.mu.RLock()
	index, loadedAt := r.index, r.loadedAt
	r.mu.RUnlock()
	if index != nil && r.now().Sub(loadedAt) < r.refresh {
		return index, nil
	}

	devices, err := cache.RememberJSON(ctx, r.store, deviceSnapshotKey, r.ttl, r.loadDevices)
	if err != nil {
		return nil, fmt.Errorf("load device snapshot: %w", err)
	}
	index = buildDeviceIndex(devices)

	r.mu.Lock()
	r.index = index
	r.loadedAt = r.now()
	r.mu.Unlock()
	return index, nil
}

func (r *DeviceRegistry) loadDevices(ctx context.Context) ([]models.Device, error) {
	recs, err := r.central.Fetch(ctx, query.Select("devices",
		"id", "tenant_id", "device_id", "serial_number", "name", "is_approved", "is_active",
		"settings", "last_sync_at", "mac_address", "ip_address", "device_info", "created_at", "updated_at",
	).OrderBy("id", false))
	if err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(recs))
	for _, rec := range recs {
		devices = append(devices, deviceFromRecord(rec))
	}
	logger.WithFields(map[string]interface{}{"count": len(devices)}).Info("Device snapshot rebuilt")
	return devices, nil
}

func deviceFromRecord(rec dal.Record) models.Device {
	d := models.Device{
		ID:           rec.Int64("id"),
		TenantID:     rec.Int64("tenant_id"),
		DeviceID:     rec.String("device_id"),
		SerialNumber: rec.String("serial_number"),
		Name:         rec.String("name"),
		IsApproved:   rec.Bool("is_approved"),
		IsActive:     rec.Bool("is_active"),
		LastSyncAt:   rec.String("last_sync_at"),
		MACAddress:   rec.String("mac_address"),
		IPAddress:    rec.String("ip_address"),
		DeviceInfo:   rec.String("device_info"),
		CreatedAt:    rec.String("created_at"),
		UpdatedAt:    rec.String("updated_at"),
	}
	d.Settings = decodeSettings(d.SerialNumber, rec.String("settings"))
	return d
}

// decodeSettings는 숫자나 불리언 값이 섞인 설정 JSON도 문자열 맵으로 읽습니다.
func decodeSettings(serialNumber, raw string) models.DeviceSettings {
	settings := models.DeviceSettings{}
	if raw == "" {
		return settings
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		logger.WithFields(map[string]interface{}{
			"serial_number": serialNumber,
			"error":         err.Error(),
		}).Warn("Ignoring malformed device settings")
		return settings
	}
	for k, v := range values {
		switch t := v.(type) {
		case nil:
		case string:
			settings[k] = t
		case float64:
			settings[k] = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			settings[k] = fmt.Sprint(t)
		}
	}
	return settings
}

// buildDeviceIndex는 두 키를 모두 등록합니다. 다른 레코드와 키가 겹치는
// 레코드는 어느 쪽도 인덱스에 넣지 않습니다.
func buildDeviceIndex(devices []models.Device) map[string]*models.Device {
	owners := make(map[string]int, len(devices)*2)
	keysOf := func(d *models.Device) []string {
		keys := []string{indexKey(d.TenantID, models.DeviceKeySerialNumber, d.SerialNumber)}
		if d.DeviceID != "" {
			keys = append(keys, indexKey(d.TenantID, models.DeviceKeyDeviceID, d.DeviceID))
		}
		return keys
	}
	for i := range devices {
		for _, k := range keysOf(&devices[i]) {
			owners[k]++
		}
	}

	index := make(map[string]*models.Device, len(devices)*2)
	for i := range devices {
		d := &devices[i]
		keys := keysOf(d)
		collides := false
		for _, k := range keys {
			if owners[k] > 1 {
				collides = true
				break
			}
		}
		if collides {
			logger.WithFields(map[string]interface{}{
				"tenant_id":     d.TenantID,
				"device_id":     d.DeviceID,
				"serial_number": d.SerialNumber,
			}).Error("Device key collision, excluded from registry")
			continue
		}
		for _, k := range keys {
			index[k] = d
		}
	}
	return index
}

// Invalidate는 공유 스냅샷과 로컬 인덱스를 모두 버립니다.
func (r *DeviceRegistry) Invalidate(ctx context.Context) error {
	r.mu.Lock()
	r.index = nil
	r.mu.Unlock()
	return r.store.Forget(ctx, deviceSnapshotKey)
}

// UpdateDeviceInfo는 devicecmd 응답의 MAC/IP와 정보 블록을 저장합니다.
// 캐시는 TTL로 갱신됩니다.
func (r *DeviceRegistry) UpdateDeviceInfo(ctx context.Context, tenantID int64, serialNumber string, info models.DeviceInfoUpdate) error {
	blob, err := json.Marshal(info.Info)
	if err != nil {
		return err
	}
	set := query.Row{
		"device_info": string(blob),
		"updated_at":  utils.NowDB(),
	}
	if info.MACAddress != "" {
		set["mac_address"] = info.MACAddress
	}
	if info.IPAddress != "" {
		set["ip_address"] = info.IPAddress
	}
	_, err = r.central.Update(ctx, query.Update("devices", set).Where(
		query.Eq("tenant_id", tenantID),
		query.Eq("serial_number", serialNumber),
	))
	return err
}

// RecordTransfer는 업로드된 테이블의 전송 스탬프와 마지막 동기화 시각을 저장합니다.
func (r *DeviceRegistry) RecordTransfer(ctx context.Context, tenantID int64, serialNumber string, stamps map[string]string) error {
	return r.central.WithTx(ctx, func(tx *dal.DB) error {
		rec, err := tx.First(ctx, query.Select("devices", "id", "settings").Where(
			query.Eq("tenant_id", tenantID),
			query.Eq("serial_number", serialNumber),
		))
		if err != nil {
			if errors.Is(err, dal.ErrNotFound) {
				return ErrDeviceNotFound
			}
			return err
		}

		settings := decodeSettings(serialNumber, rec.String("settings"))
		for k, v := range stamps {
			if v != "" {
				settings[k] = v
			}
		}
		raw, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		now := utils.NowDB()
		_, err = tx.Update(ctx, query.Update("devices", query.Row{
			"settings":     string(raw),
			"last_sync_at": now,
			"updated_at":   now,
		}).Where(query.Eq("id", rec.Int64("id"))))
		return err
	})
}

// Register는 승인된 단말기를 등록합니다.
func (r *DeviceRegistry) Register(ctx context.Context, d models.Device) (models.Device, error) {
	if d.Settings == nil {
		d.Settings = models.DeviceSettings{}
	}
	raw, err := json.Marshal(d.Settings)
	if err != nil {
		return models.Device{}, err
	}
	now := utils.NowDB()
	id, err := r.central.Insert(ctx, "devices", query.Row{
		"tenant_id":     d.TenantID,
		"device_id":     d.DeviceID,
		"serial_number": d.SerialNumber,
		"name":          d.Name,
		"is_approved":   boolInt(d.IsApproved),
		"is_active":     boolInt(d.IsActive),
		"settings":      string(raw),
		"created_at":    now,
		"updated_at":    now,
	})
	if err != nil {
		return models.Device{}, err
	}
	if id == 0 {
		return models.Device{}, fmt.Errorf("device %s already registered", d.SerialNumber)
	}
	d.ID = id
	d.CreatedAt = now
	d.UpdatedAt = now
	if err := r.Invalidate(ctx); err != nil {
		logger.Warn("Failed to invalidate device snapshot: %v", err)
	}
	return d, nil
}

// List는 테넌트의 단말기를 DB에서 직접 조회합니다.
func (r *DeviceRegistry) List(ctx context.Context, tenantID int64) ([]models.Device, error) {
	recs, err := r.central.Fetch(ctx, query.Select("devices",
		"id", "tenant_id", "device_id", "serial_number", "name", "is_approved", "is_active",
		"settings", "last_sync_at", "mac_address", "ip_address", "device_info", "created_at", "updated_at",
	).Where(query.Eq("tenant_id", tenantID)).OrderBy("id", false))
	if err != nil {
		return nil, err
	}
	devices := make([]models.Device, 0, len(recs))
	for _, rec := range recs {
		devices = append(devices, deviceFromRecord(rec))
	}
	return devices, nil
}

// SetStatus는 승인/활성 상태를 바꾸고 스냅샷을 무효화합니다.
func (r *DeviceRegistry) SetStatus(ctx context.Context, tenantID int64, serialNumber string, approved, active bool) error {
	n, err := r.central.Update(ctx, query.Update("devices", query.Row{
		"is_approved": boolInt(approved),
		"is_active":   boolInt(active),
		"updated_at":  utils.NowDB(),
	}).Where(query.Eq("tenant_id", tenantID), query.Eq("serial_number", serialNumber)))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return r.Invalidate(ctx)
}

// Remove는 단말기를 소프트 삭제합니다.
func (r *DeviceRegistry) Remove(ctx context.Context, tenantID int64, serialNumber string) error {
	n, err := r.central.Delete(ctx, query.Delete("devices").Where(
		query.Eq("tenant_id", tenantID),
		query.Eq("serial_number", serialNumber),
	))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return r.Invalidate(ctx)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
