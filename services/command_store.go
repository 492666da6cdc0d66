package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"admsserver/dal"
	"admsserver/logger"
	"admsserver/metrics"
	"admsserver/models"
	"admsserver/query"
)

// ErrCommandNotFound는 명령이 존재하지 않을 때 반환됩니다.
var ErrCommandNotFound = errors.New("command not found")

// 저장소 이름 (상태 전파 작업과 메트릭 라벨에 사용)
const (
	StoreCentral = "central"
	StoreTenant  = "tenant"
)

// StatusUpdate는 명령 상태 전이 한 번의 내용입니다.
type StatusUpdate struct {
	Status     string  `json:"status"`
	Response   *string `json:"response,omitempty"`
	ReturnCode *int    `json:"return_code,omitempty"`
	At         string  `json:"at"`

	// From은 전이 가능한 이전 상태를 좁힙니다. 비어 있으면 PENDING과 SENT입니다.
	From []string `json:"from,omitempty"`
}

// CommandStore는 명령 사본 하나를 보관하는 저장소입니다.
// UpdateStatus는 상태를 되돌리지 않으며, 실제로 바뀌었는지를 반환합니다.
type CommandStore interface {
	Name() string
	Save(ctx context.Context, cmd models.Command) error
	UpdateStatus(ctx context.Context, tenantID int64, id string, u StatusUpdate) (bool, error)
	Get(ctx context.Context, tenantID int64, id string) (*models.Command, error)
	Pending(ctx context.Context, tenantID int64, serialNumber, now string) ([]models.Command, error)
	Recent(ctx context.Context, tenantID int64, since string) ([]models.Command, error)
}

// guardStatuses는 u가 덮어쓸 수 있는 현재 상태 목록입니다. 순위가 낮은 상태만 포함합니다.
func guardStatuses(u StatusUpdate) []any {
	rank := models.CommandStatusRank(u.Status)
	from := u.From
	if len(from) == 0 {
		from = []string{models.CommandStatusPending, models.CommandStatusSent}
	}
	out := make([]any, 0, len(from))
	for _, s := range from {
		if models.CommandStatusRank(s) >= 0 && models.CommandStatusRank(s) < rank {
			out = append(out, s)
		}
	}
	return out
}

func statusSet(u StatusUpdate) (query.Row, error) {
	if models.CommandStatusRank(u.Status) <= 0 {
		return nil, fmt.Errorf("invalid status transition to %q", u.Status)
	}
	if len(guardStatuses(u)) == 0 {
		return nil, fmt.Errorf("no status can move to %q", u.Status)
	}
	set := query.Row{"status": u.Status, "updated_at": u.At}
	switch u.Status {
	case models.CommandStatusSent:
		set["sent_at"] = u.At
	default:
		set["executed_at"] = u.At
		if u.Response != nil {
			set["response"] = *u.Response
		}
		if u.ReturnCode != nil {
			set["return_code"] = *u.ReturnCode
		}
	}
	return set, nil
}

func encodeParams(p models.CommandParams) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func commandFromRecord(rec dal.Record, idColumn string) models.Command {
	cmd := models.Command{
		ID:           rec.String(idColumn),
		TenantID:     rec.Int64("tenant_id"),
		DeviceID:     rec.String("device_id"),
		SerialNumber: rec.String("serial_number"),
		Name:         rec.String("name"),
		Command:      rec.String("command"),
		Status:       rec.String("status"),
		Response:     rec.String("response"),
		CreatedAt:    rec.String("created_at"),
		UpdatedAt:    rec.String("updated_at"),
		SentAt:       rec.String("sent_at"),
		ExecutedAt:   rec.String("executed_at"),
		ExpiresAt:    rec.String("expires_at"),
	}
	if !rec.IsNull("return_code") {
		code := int(rec.Int64("return_code"))
		cmd.ReturnCode = &code
	}
	if raw := rec.String("params"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cmd.Params); err != nil {
			logger.WithFields(map[string]interface{}{
				"command_id": cmd.ID,
				"error":      err.Error(),
			}).Warn("Stored command params are unreadable")
		}
	}
	return cmd
}

var commandColumns = []string{
	"device_id", "serial_number", "name", "command", "params", "status", "response", "return_code",
	"created_at", "updated_at", "sent_at", "executed_at", "expires_at",
}

func columnsWith(first ...string) []string {
	return append(first, commandColumns...)
}

func notExpired(now string) query.Predicate {
	return query.Or(query.IsNull("expires_at"), query.Gt("expires_at", now))
}

// CentralCommandStore는 중앙 디렉터리의 명령 사본입니다.
type CentralCommandStore struct {
	db *dal.DB
}

var _ CommandStore = (*CentralCommandStore)(nil)

// NewCentralCommandStore는 CentralCommandStore를 생성합니다.
func NewCentralCommandStore(db *dal.DB) *CentralCommandStore {
	return &CentralCommandStore{db: db}
}

func (s *CentralCommandStore) Name() string { return StoreCentral }

// Save는 ID 기준으로 upsert합니다. 상태는 덮어쓰지 않습니다.
func (s *CentralCommandStore) Save(ctx context.Context, cmd models.Command) error {
	params, err := encodeParams(cmd.Params)
	if err != nil {
		return err
	}
	row := query.Row{
		"id":            cmd.ID,
		"tenant_id":     cmd.TenantID,
		"device_id":     cmd.DeviceID,
		"serial_number": cmd.SerialNumber,
		"name":          cmd.Name,
		"command":       cmd.Command,
		"params":        params,
		"status":        cmd.Status,
		"created_at":    cmd.CreatedAt,
		"updated_at":    cmd.UpdatedAt,
		"expires_at":    dal.NullableString(cmd.ExpiresAt),
	}
	return s.db.WithTx(ctx, func(tx *dal.DB) error {
		_, err := tx.Upsert(ctx, query.Upsert("device_commands",
			[]string{"id"},
			[]string{"name", "command", "params", "expires_at", "updated_at"},
			row))
		return err
	})
}

func (s *CentralCommandStore) UpdateStatus(ctx context.Context, tenantID int64, id string, u StatusUpdate) (bool, error) {
	set, err := statusSet(u)
	if err != nil {
		return false, err
	}
	n, err := s.db.Update(ctx, query.Update("device_commands", set).Where(
		query.Eq("id", id),
		query.Eq("tenant_id", tenantID),
		query.In("status", guardStatuses(u)...),
	))
	return n > 0, err
}

func (s *CentralCommandStore) Get(ctx context.Context, tenantID int64, id string) (*models.Command, error) {
	rec, err := s.db.First(ctx, query.Select("device_commands", columnsWith("id", "tenant_id")...).Where(
		query.Eq("id", id),
		query.Eq("tenant_id", tenantID),
	))
	if errors.Is(err, dal.ErrNotFound) {
		return nil, ErrCommandNotFound
	}
	if err != nil {
		return nil, err
	}
	cmd := commandFromRecord(rec, "id")
	return &cmd, nil
}

func (s *CentralCommandStore) Pending(ctx context.Context, tenantID int64, serialNumber, now string) ([]models.Command, error) {
	return s.fetch(ctx, query.Select("device_commands", columnsWith("id", "tenant_id")...).Where(
		query.Eq("tenant_id", tenantID),
		query.Eq("serial_number", serialNumber),
		query.Eq("status", models.CommandStatusPending),
		notExpired(now),
	).OrderBy("created_at", false).OrderBy("id", false))
}

func (s *CentralCommandStore) Recent(ctx context.Context, tenantID int64, since string) ([]models.Command, error) {
	return s.fetch(ctx, query.Select("device_commands", columnsWith("id", "tenant_id")...).Where(
		query.Eq("tenant_id", tenantID),
		query.Gte("created_at", since),
	).OrderBy("created_at", false))
}

// CommandFilter는 관리자 명령 목록 조회 조건입니다.
type CommandFilter struct {
	TenantID     int64
	SerialNumber string
	Status       string
	Limit        int
}

// List는 관리자 화면용 명령 목록을 최신순으로 반환합니다.
func (s *CentralCommandStore) List(ctx context.Context, f CommandFilter) ([]models.Command, error) {
	q := query.Select("device_commands", columnsWith("id", "tenant_id")...).Where(query.Eq("tenant_id", f.TenantID))
	if f.SerialNumber != "" {
		q.Where(query.Eq("serial_number", f.SerialNumber))
	}
	if f.Status != "" {
		q.Where(query.Eq("status", f.Status))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.fetch(ctx, q.OrderBy("created_at", true).OrderBy("id", true).Limit(limit))
}

// Expired는 만료 시각이 지난 PENDING 명령을 모든 테넌트에서 찾습니다.
func (s *CentralCommandStore) Expired(ctx context.Context, now string, limit int) ([]models.Command, error) {
	return s.fetch(ctx, query.Select("device_commands", columnsWith("id", "tenant_id")...).Where(
		query.Eq("status", models.CommandStatusPending),
		query.NotNull("expires_at"),
		query.Lte("expires_at", now),
	).OrderBy("expires_at", false).Limit(limit))
}

func (s *CentralCommandStore) fetch(ctx context.Context, q *query.Statement) ([]models.Command, error) {
	recs, err := s.db.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.Command, 0, len(recs))
	for _, rec := range recs {
		out = append(out, commandFromRecord(rec, "id"))
	}
	return out, nil
}

// TenantCommandStore는 테넌트 DB의 명령 사본입니다. params와 response는 암호화됩니다.
type TenantCommandStore struct {
	dbs *TenantDatabases
}

var _ CommandStore = (*TenantCommandStore)(nil)

// NewTenantCommandStore는 TenantCommandStore를 생성합니다.
func NewTenantCommandStore(dbs *TenantDatabases) *TenantCommandStore {
	return &TenantCommandStore{dbs: dbs}
}

func (s *TenantCommandStore) Name() string { return StoreTenant }

// Save는 command_id 기준으로 upsert합니다. 상태는 덮어쓰지 않습니다.
func (s *TenantCommandStore) Save(ctx context.Context, cmd models.Command) error {
	db, _, err := s.dbs.Open(ctx, cmd.TenantID)
	if err != nil {
		return err
	}
	params, err := encodeParams(cmd.Params)
	if err != nil {
		return err
	}
	row := query.Row{
		"command_id":    cmd.ID,
		"device_id":     cmd.DeviceID,
		"serial_number": cmd.SerialNumber,
		"name":          cmd.Name,
		"command":       cmd.Command,
		"params":        params,
		"status":        cmd.Status,
		"created_at":    cmd.CreatedAt,
		"updated_at":    cmd.UpdatedAt,
		"expires_at":    dal.NullableString(cmd.ExpiresAt),
	}
	return db.WithTx(ctx, func(tx *dal.DB) error {
		_, err := tx.Upsert(ctx, query.Upsert("device_commands",
			[]string{"command_id"},
			[]string{"name", "command", "params", "expires_at", "updated_at"},
			row))
		return err
	})
}

func (s *TenantCommandStore) UpdateStatus(ctx context.Context, tenantID int64, id string, u StatusUpdate) (bool, error) {
	set, err := statusSet(u)
	if err != nil {
		return false, err
	}
	db, _, err := s.dbs.Open(ctx, tenantID)
	if err != nil {
		return false, err
	}
	n, err := db.Update(ctx, query.Update("device_commands", set).Where(
		query.Eq("command_id", id),
		query.In("status", guardStatuses(u)...),
	))
	return n > 0, err
}

func (s *TenantCommandStore) Get(ctx context.Context, tenantID int64, id string) (*models.Command, error) {
	db, _, err := s.dbs.Open(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rec, err := db.First(ctx, query.Select("device_commands", columnsWith("command_id")...).Where(query.Eq("command_id", id)))
	if errors.Is(err, dal.ErrNotFound) {
		return nil, ErrCommandNotFound
	}
	if err != nil {
		return nil, err
	}
	cmd := commandFromRecord(rec, "command_id")
	cmd.TenantID = tenantID
	return &cmd, nil
}

func (s *TenantCommandStore) Pending(ctx context.Context, tenantID int64, serialNumber, now string) ([]models.Command, error) {
	return s.fetch(ctx, tenantID, query.Select("device_commands", columnsWith("command_id")...).Where(
		query.Eq("serial_number", serialNumber),
		query.Eq("status", models.CommandStatusPending),
		notExpired(now),
	).OrderBy("created_at", false).OrderBy("id", false))
}

func (s *TenantCommandStore) Recent(ctx context.Context, tenantID int64, since string) ([]models.Command, error) {
	return s.fetch(ctx, tenantID, query.Select("device_commands", columnsWith("command_id")...).Where(
		query.Gte("created_at", since),
	).OrderBy("created_at", false))
}

func (s *TenantCommandStore) fetch(ctx context.Context, tenantID int64, q *query.Statement) ([]models.Command, error) {
	db, _, err := s.dbs.Open(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	recs, err := db.Fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]models.Command, 0, len(recs))
	for _, rec := range recs {
		cmd := commandFromRecord(rec, "command_id")
		cmd.TenantID = tenantID
		out = append(out, cmd)
	}
	return out, nil
}

// CompositeCommandStore는 중앙 사본을 먼저, 테넌트 사본을 다음에 기록합니다.
// 두 저장소 사이의 트랜잭션은 없으므로 한쪽만 실패하면 에러 로그와 함께 반환하고
// 정합성은 재조정 작업이 맞춥니다.
type CompositeCommandStore struct {
	primary   CommandStore
	secondary CommandStore
}

var _ CommandStore = (*CompositeCommandStore)(nil)

// NewCompositeCommandStore는 CompositeCommandStore를 생성합니다.
func NewCompositeCommandStore(primary, secondary CommandStore) *CompositeCommandStore {
	return &CompositeCommandStore{primary: primary, secondary: secondary}
}

func (s *CompositeCommandStore) Name() string {
	return s.primary.Name() + "+" + s.secondary.Name()
}

func (s *CompositeCommandStore) diverged(op string, tenantID int64, id string, store CommandStore, err error) {
	metrics.StoreDivergenceTotal.WithLabelValues(store.Name()).Inc()
	logger.WithFields(map[string]interface{}{
		"op":         op,
		"tenant_id":  tenantID,
		"command_id": id,
		"store":      store.Name(),
		"error":      err.Error(),
	}).Error("Command stores diverged")
}

func (s *CompositeCommandStore) Save(ctx context.Context, cmd models.Command) error {
	if err := s.primary.Save(ctx, cmd); err != nil {
		return fmt.Errorf("%s save: %w", s.primary.Name(), err)
	}
	if err := s.secondary.Save(ctx, cmd); err != nil {
		s.diverged("save", cmd.TenantID, cmd.ID, s.secondary, err)
		return fmt.Errorf("%s save: %w", s.secondary.Name(), err)
	}
	return nil
}

func (s *CompositeCommandStore) UpdateStatus(ctx context.Context, tenantID int64, id string, u StatusUpdate) (bool, error) {
	changed, err := s.primary.UpdateStatus(ctx, tenantID, id, u)
	if err != nil {
		return false, fmt.Errorf("%s update: %w", s.primary.Name(), err)
	}
	secondary, err := s.secondary.UpdateStatus(ctx, tenantID, id, u)
	if err != nil {
		s.diverged("update_status", tenantID, id, s.secondary, err)
		return changed, fmt.Errorf("%s update: %w", s.secondary.Name(), err)
	}
	return changed || secondary, nil
}

func (s *CompositeCommandStore) Get(ctx context.Context, tenantID int64, id string) (*models.Command, error) {
	return s.primary.Get(ctx, tenantID, id)
}

func (s *CompositeCommandStore) Pending(ctx context.Context, tenantID int64, serialNumber, now string) ([]models.Command, error) {
	return s.secondary.Pending(ctx, tenantID, serialNumber, now)
}

func (s *CompositeCommandStore) Recent(ctx context.Context, tenantID int64, since string) ([]models.Command, error) {
	return s.primary.Recent(ctx, tenantID, since)
}
