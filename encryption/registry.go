package encryption

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"admsserver/cache"
	"admsserver/dal"
	"admsserver/database"
	"admsserver/logger"
	"admsserver/query"
)

var (
	ErrKeyNotFound = errors.New("encryption key not found")
	ErrKeyInUse    = errors.New("encryption key is active or still referenced by rows")
)

// KeyRepository serves per-tenant key snapshots. Invalidate is called by
// the sites that change keys or the encrypted column registry.
type KeyRepository interface {
	Keyring(ctx context.Context, tenantID int64, conn *database.Conn) (*TenantKeyring, error)
	Invalidate(ctx context.Context, tenantID int64) error
}

type snapshotKey struct {
	Version string `json:"version"`
	Key     []byte `json:"key"`
}

// keySnapshot is the cached view of one tenant's keys and encrypted columns.
type keySnapshot struct {
	Active  string              `json:"active"`
	Keys    []snapshotKey       `json:"keys"`
	Columns map[string][]string `json:"columns"`
}

// KeyRegistry builds keyrings from cached snapshots.
type KeyRegistry struct {
	store cache.Store
	codec *Codec
	ttl   time.Duration
}

var _ KeyRepository = (*KeyRegistry)(nil)

// NewKeyRegistry creates a registry. ttl is only a backstop; snapshots are
// invalidated explicitly on every key change.
func NewKeyRegistry(store cache.Store, codec *Codec, ttl time.Duration) *KeyRegistry {
	return &KeyRegistry{store: store, codec: codec, ttl: ttl}
}

// Codec returns the codec keyrings encrypt with.
func (r *KeyRegistry) Codec() *Codec {
	return r.codec
}

func snapshotKeyName(tenantID int64) string {
	return "adms:keys:" + strconv.FormatInt(tenantID, 10)
}

// Keyring returns the tenant's current keyring.
func (r *KeyRegistry) Keyring(ctx context.Context, tenantID int64, conn *database.Conn) (*TenantKeyring, error) {
	snap, err := cache.RememberJSON(ctx, r.store, snapshotKeyName(tenantID), r.ttl, func(ctx context.Context) (keySnapshot, error) {
		return loadSnapshot(ctx, conn)
	})
	if err != nil {
		return nil, fmt.Errorf("load key snapshot for tenant %d: %w", tenantID, err)
	}
	return newTenantKeyring(r.codec, snap), nil
}

// Invalidate drops the cached snapshot of a tenant.
func (r *KeyRegistry) Invalidate(ctx context.Context, tenantID int64) error {
	logger.WithFields(map[string]interface{}{"tenant_id": tenantID}).Debug("Key snapshot invalidated")
	return r.store.Forget(ctx, snapshotKeyName(tenantID))
}

func loadSnapshot(ctx context.Context, conn *database.Conn) (keySnapshot, error) {
	db := dal.New(conn, nil)
	snap := keySnapshot{Columns: map[string][]string{}}

	keys, err := db.Fetch(ctx, query.Select("encryption_keys", "version", "key_material", "is_active").OrderBy("id", false))
	if err != nil {
		return snap, err
	}
	for _, rec := range keys {
		snap.Keys = append(snap.Keys, snapshotKey{Version: rec.String("version"), Key: rec.Bytes("key_material")})
		if rec.Bool("is_active") {
			snap.Active = rec.String("version")
		}
	}

	cols, err := db.Fetch(ctx, query.Select("encrypted_columns", "table_name", "column_name").OrderBy("column_name", false))
	if err != nil {
		return snap, err
	}
	for _, rec := range cols {
		table := rec.String("table_name")
		snap.Columns[table] = append(snap.Columns[table], rec.String("column_name"))
	}
	return snap, nil
}

// TenantKeyring is one tenant's keys and encrypted column map. It
// implements the rewrite keyring of the query package.
type TenantKeyring struct {
	codec   *Codec
	active  string
	order   []string
	keys    map[string][]byte
	columns map[string][]string
}

var _ dal.Keyring = (*TenantKeyring)(nil)

func newTenantKeyring(codec *Codec, snap keySnapshot) *TenantKeyring {
	kr := &TenantKeyring{
		codec:   codec,
		active:  snap.Active,
		keys:    make(map[string][]byte, len(snap.Keys)),
		columns: snap.Columns,
	}
	for _, k := range snap.Keys {
		kr.order = append(kr.order, k.Version)
		kr.keys[k.Version] = k.Key
	}
	for table := range kr.columns {
		sort.Strings(kr.columns[table])
	}
	return kr
}

// EncryptedColumns returns the encrypted columns of table.
func (k *TenantKeyring) EncryptedColumns(table string) []string {
	return k.columns[table]
}

// Tables returns the tables that have encrypted columns, sorted.
func (k *TenantKeyring) Tables() []string {
	out := make([]string, 0, len(k.columns))
	for table, cols := range k.columns {
		if len(cols) > 0 {
			out = append(out, table)
		}
	}
	sort.Strings(out)
	return out
}

// ActiveVersion returns the active key version, or "".
func (k *TenantKeyring) ActiveVersion() string {
	return k.active
}

// Versions returns every known key version, oldest first.
func (k *TenantKeyring) Versions() []string {
	return append([]string(nil), k.order...)
}

// Key returns the raw key of version.
func (k *TenantKeyring) Key(version string) ([]byte, bool) {
	key, ok := k.keys[version]
	return key, ok
}

// Seal encrypts plaintext with the active key. Failures are logged and
// produce a nil ciphertext.
func (k *TenantKeyring) Seal(plaintext string) ([]byte, string) {
	key, ok := k.keys[k.active]
	if !ok {
		logger.Warn("Field encryption skipped: no active key")
		return nil, ""
	}
	ct, err := k.codec.Encrypt(key, plaintext)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"version": k.active,
			"error":   err.Error(),
		}).Warn("Field encryption failed")
		return nil, ""
	}
	return ct, k.codec.Hash(key, plaintext)
}

// SearchHashes hashes plaintext under every key version so rows written
// before a rotation still match.
func (k *TenantKeyring) SearchHashes(plaintext string) []string {
	out := make([]string, 0, len(k.order))
	for _, v := range k.order {
		out = append(out, k.codec.Hash(k.keys[v], plaintext))
	}
	return out
}

// Keys returns every version with its key.
func (k *TenantKeyring) Keys() []query.VersionKey {
	out := make([]query.VersionKey, 0, len(k.order))
	for _, v := range k.order {
		out = append(out, query.VersionKey{Version: v, Key: k.keys[v]})
	}
	return out
}

// Legacy reports whether values use the fixed zero IV.
func (k *TenantKeyring) Legacy() bool {
	return k.codec.Legacy()
}

// Open decrypts data written under version.
func (k *TenantKeyring) Open(version string, data []byte) (string, error) {
	key, ok := k.keys[version]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, version)
	}
	return k.codec.Decrypt(key, data)
}
