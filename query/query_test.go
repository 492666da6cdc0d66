package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeyring struct {
	columns map[string][]string
	active  string
	keys    []VersionKey
	legacy  bool
}

func (f *fakeKeyring) EncryptedColumns(table string) []string { return f.columns[table] }
func (f *fakeKeyring) ActiveVersion() string                  { return f.active }
func (f *fakeKeyring) Keys() []VersionKey                     { return f.keys }
func (f *fakeKeyring) Legacy() bool                           { return f.legacy }

func (f *fakeKeyring) Seal(plaintext string) ([]byte, string) {
	return []byte("enc:" + plaintext), "h:" + f.active + ":" + plaintext
}

func (f *fakeKeyring) SearchHashes(plaintext string) []string {
	out := make([]string, 0, len(f.keys))
	for _, k := range f.keys {
		out = append(out, "h:"+k.Version+":"+plaintext)
	}
	return out
}

func newKeyring() *fakeKeyring {
	return &fakeKeyring{
		columns: map[string][]string{"device_users": {"name", "card"}},
		active:  "v2_bbbb",
		keys: []VersionKey{
			{Version: "v1_aaaa", Key: []byte("k1")},
			{Version: "v2_bbbb", Key: []byte("k2")},
		},
	}
}

func softDeletable(table string) bool { return table != "attendance_logs" }

func build(t *testing.T, d Dialect, s *Statement, kr Keyring) Compiled {
	t.Helper()
	scoped := ScopeSoftDeletes(s, softDeletable)
	rewritten, err := Encrypt(scoped, kr)
	require.NoError(t, err)
	out, err := Compile(d, rewritten)
	require.NoError(t, err)
	return out
}

func TestCompileSelectWithSoftDeleteScope(t *testing.T) {
	s := Select("devices", "id", "serial_number").
		Where(Eq("tenant_id", 7), In("status", "a", "b")).
		OrderBy("id", false).
		Limit(10).
		Offset(5)

	out := build(t, SQLite{}, s, nil)
	assert.Equal(t,
		`SELECT "id", "serial_number" FROM "devices" WHERE "tenant_id" = ? AND "status" IN (?, ?) AND "deleted_at" IS NULL ORDER BY "id" ASC LIMIT 10 OFFSET 5`,
		out.SQL)
	assert.Equal(t, []any{7, "a", "b"}, out.Args)
}

func TestIncludeDeletedSkipsScope(t *testing.T) {
	out := build(t, MySQL{}, Select("devices", "id").Where(Eq("id", 1)).WithDeleted(), nil)
	assert.Equal(t, "SELECT `id` FROM `devices` WHERE `id` = ?", out.SQL)
}

func TestJoinScopeLandsInOnClause(t *testing.T) {
	s := Select("devices", "d.id", "t.name").As("d").
		LeftJoin("tenants", "t", ColEq("t.id", "d.tenant_id"))

	out := build(t, SQLite{}, s, nil)
	assert.Equal(t,
		`SELECT "d"."id", "t"."name" FROM "devices" "d" LEFT JOIN "tenants" "t" ON "t"."id" = "d"."tenant_id" AND "t"."deleted_at" IS NULL WHERE "d"."deleted_at" IS NULL`,
		out.SQL)
	assert.Empty(t, out.Args)
}

func TestOrGroup(t *testing.T) {
	s := Select("device_commands", "id").Where(
		Eq("status", "PENDING"),
		Or(IsNull("expires_at"), Gt("expires_at", "2024-01-01 00:00:00")),
	).WithDeleted()

	out := build(t, SQLite{}, s, nil)
	assert.Equal(t,
		`SELECT "id" FROM "device_commands" WHERE "status" = ? AND ("expires_at" IS NULL OR "expires_at" > ?)`,
		out.SQL)
	assert.Equal(t, []any{"PENDING", "2024-01-01 00:00:00"}, out.Args)
}

func TestEncryptedSelectDecryptsByRowVersion(t *testing.T) {
	kr := newKeyring()
	s := Select("device_users", "id", "name").WithDeleted()

	out := build(t, SQLite{}, s, kr)
	assert.Equal(t,
		`SELECT "id", CASE "version" WHEN ? THEN adms_decrypt("name", ?) WHEN ? THEN adms_decrypt("name", ?) END AS "name" FROM "device_users"`,
		out.SQL)
	assert.Equal(t, []any{"v1_aaaa", []byte("k1"), "v2_bbbb", []byte("k2")}, out.Args)
}

func TestMySQLDecryptExpression(t *testing.T) {
	kr := newKeyring()
	kr.keys = kr.keys[:1]
	out := build(t, MySQL{}, Select("device_users", "card").WithDeleted(), kr)
	assert.Equal(t,
		"SELECT CASE `version` WHEN ? THEN CAST(AES_DECRYPT(SUBSTRING(`card`, 17), ?, SUBSTRING(`card`, 1, 16)) AS CHAR) END AS `card` FROM `device_users`",
		out.SQL)

	kr.legacy = true
	out = build(t, MySQL{}, Select("device_users", "card").WithDeleted(), kr)
	assert.Contains(t, out.SQL, "AES_DECRYPT(`card`, ?, UNHEX(REPEAT('00', 16)))")
}

func TestEqualityOnEncryptedColumnUsesHashes(t *testing.T) {
	kr := newKeyring()
	s := Select("device_users", "id").Where(Eq("name", "alice")).WithDeleted()

	out := build(t, SQLite{}, s, kr)
	assert.Equal(t, `SELECT "id" FROM "device_users" WHERE "name_hash" IN (?, ?)`, out.SQL)
	assert.Equal(t, []any{"h:v1_aaaa:alice", "h:v2_bbbb:alice"}, out.Args)

	s = Select("device_users", "id").Where(Ne("name", "bob")).WithDeleted()
	out = build(t, SQLite{}, s, kr)
	assert.Equal(t, `SELECT "id" FROM "device_users" WHERE "name_hash" NOT IN (?, ?)`, out.SQL)
}

func TestRangeOnEncryptedColumnDecryptsInPredicate(t *testing.T) {
	kr := newKeyring()
	kr.keys = kr.keys[1:]
	s := Select("device_users", "id").Where(Like("card", "12%")).WithDeleted()

	out := build(t, SQLite{}, s, kr)
	assert.Equal(t,
		`SELECT "id" FROM "device_users" WHERE CASE "version" WHEN ? THEN adms_decrypt("card", ?) END LIKE ?`,
		out.SQL)
	assert.Equal(t, []any{"v2_bbbb", []byte("k2"), "12%"}, out.Args)
}

func TestWildcardOnEncryptedTableIsRejected(t *testing.T) {
	kr := newKeyring()
	_, err := Encrypt(Select("device_users"), kr)
	assert.ErrorIs(t, err, ErrWildcardEncrypted)

	_, err = Encrypt(Select("device_users", "*"), kr)
	assert.ErrorIs(t, err, ErrWildcardEncrypted)

	_, err = Encrypt(Select("attendance_logs"), kr)
	assert.NoError(t, err)
}

func TestInsertSealsColumnsAndTagsVersion(t *testing.T) {
	kr := newKeyring()
	s := Insert("device_users", Row{"id": "u1", "name": "alice", "card": nil, "pin": "1"})

	out := build(t, SQLite{}, s, kr)
	assert.Equal(t,
		`INSERT INTO "device_users" ("card", "card_hash", "id", "name", "name_hash", "pin", "version") VALUES (?, ?, ?, ?, ?, ?, ?)`,
		out.SQL)
	assert.Equal(t, []any{nil, nil, "u1", []byte("enc:alice"), "h:v2_bbbb:alice", "1", "v2_bbbb"}, out.Args)
}

func TestInsertWithoutActiveKeyFails(t *testing.T) {
	kr := newKeyring()
	kr.active = ""
	_, err := Encrypt(Insert("device_users", Row{"name": "x"}), kr)
	assert.ErrorIs(t, err, ErrNoActiveKey)
}

func TestBulkInsertIgnore(t *testing.T) {
	s := Insert("attendance_logs",
		Row{"device_sn": "A", "punch_time": "t1"},
		Row{"device_sn": "A", "punch_time": "t2"},
	).IgnoreDupes()

	out := build(t, MySQL{}, s, nil)
	assert.Equal(t, "INSERT IGNORE INTO `attendance_logs` (`device_sn`, `punch_time`) VALUES (?, ?), (?, ?)", out.SQL)
	assert.Len(t, out.Args, 4)

	out = build(t, SQLite{}, s, nil)
	assert.Equal(t, `INSERT OR IGNORE INTO "attendance_logs" ("device_sn", "punch_time") VALUES (?, ?), (?, ?)`, out.SQL)
}

func TestUpsertRevivesAndUpdatesHashes(t *testing.T) {
	kr := newKeyring()
	s := Upsert("device_users", []string{"device_sn", "pin"}, []string{"name"},
		Row{"device_sn": "A", "pin": "1", "name": "alice"})

	out := build(t, SQLite{}, s, kr)
	assert.Equal(t,
		`INSERT INTO "device_users" ("deleted_at", "device_sn", "name", "name_hash", "pin", "version") VALUES (?, ?, ?, ?, ?, ?)`+
			` ON CONFLICT ("device_sn", "pin") DO UPDATE SET "name" = excluded."name", "deleted_at" = excluded."deleted_at", "name_hash" = excluded."name_hash", "version" = excluded."version"`,
		out.SQL)

	out = build(t, MySQL{}, s, kr)
	assert.Contains(t, out.SQL, "ON DUPLICATE KEY UPDATE `name` = VALUES(`name`), `deleted_at` = VALUES(`deleted_at`)")
}

func TestUpdateAndSoftDelete(t *testing.T) {
	kr := newKeyring()
	s := Update("device_users", Row{"card": "99"}).Where(Eq("id", "u1"))

	out := build(t, SQLite{}, s, kr)
	assert.Equal(t,
		`UPDATE "device_users" SET "card" = ?, "card_hash" = ?, "version" = ? WHERE "id" = ? AND "deleted_at" IS NULL`,
		out.SQL)
	assert.Equal(t, []any{[]byte("enc:99"), "h:v2_bbbb:99", "v2_bbbb", "u1"}, out.Args)

	out = build(t, SQLite{}, SoftDelete("devices", "now").Where(Eq("id", 3)), nil)
	assert.Equal(t, `UPDATE "devices" SET "deleted_at" = ? WHERE "id" = ? AND "deleted_at" IS NULL`, out.SQL)
	assert.Equal(t, []any{"now", 3}, out.Args)
}

func TestUnscopedWritesAreRejected(t *testing.T) {
	_, err := Compile(SQLite{}, Delete("devices"))
	assert.ErrorIs(t, err, ErrUnscopedWrite)

	_, err = Compile(SQLite{}, Update("devices", Row{"a": 1}))
	assert.ErrorIs(t, err, ErrUnscopedWrite)

	_, err = Compile(SQLite{}, Update("devices", Row{}).Where(Eq("id", 1)))
	assert.ErrorIs(t, err, ErrEmptySet)

	_, err = Compile(SQLite{}, Insert("devices"))
	assert.ErrorIs(t, err, ErrNoRows)
}

func TestEmptyInList(t *testing.T) {
	out := build(t, SQLite{}, Select("devices", "id").Where(In("id")).WithDeleted(), nil)
	assert.Equal(t, `SELECT "id" FROM "devices" WHERE 1 = 0`, out.SQL)
}

func TestStagesDoNotMutateInput(t *testing.T) {
	kr := newKeyring()
	row := Row{"name": "alice"}
	s := Insert("device_users", row)
	_, err := Encrypt(ScopeSoftDeletes(s, softDeletable), kr)
	require.NoError(t, err)
	assert.Equal(t, Row{"name": "alice"}, row)
}
