package query

import (
	"fmt"
	"strings"
)

// Dialect renders the parts of a statement that differ between backends.
type Dialect interface {
	Name() string
	Quote(ident string) string
	// DecryptExpr returns an expression decrypting column with the key bound
	// to the single placeholder it contains.
	DecryptExpr(column string, legacy bool) string
	InsertIgnore() string
	UpsertClause(conflictKeys, updateColumns []string) string
}

// MySQL targets MySQL 5.7+/8.x. Random-IV decryption requires the session
// variable block_encryption_mode to be aes-256-cbc.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (MySQL) DecryptExpr(column string, legacy bool) string {
	if legacy {
		return fmt.Sprintf("CAST(AES_DECRYPT(%s, ?, UNHEX(REPEAT('00', 16))) AS CHAR)", column)
	}
	return fmt.Sprintf("CAST(AES_DECRYPT(SUBSTRING(%s, 17), ?, SUBSTRING(%s, 1, 16)) AS CHAR)", column, column)
}

func (MySQL) InsertIgnore() string { return "INSERT IGNORE INTO" }

func (d MySQL) UpsertClause(conflictKeys, updateColumns []string) string {
	if len(updateColumns) == 0 {
		if len(conflictKeys) == 0 {
			return ""
		}
		k := d.Quote(conflictKeys[0])
		return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", k, k)
	}
	parts := make([]string, len(updateColumns))
	for i, c := range updateColumns {
		q := d.Quote(c)
		parts[i] = fmt.Sprintf("%s = VALUES(%s)", q, q)
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(parts, ", ")
}

// SQLite targets modernc.org/sqlite with the adms_decrypt functions
// registered by the encryption package.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (SQLite) DecryptExpr(column string, legacy bool) string {
	if legacy {
		return fmt.Sprintf("adms_decrypt_legacy(%s, ?)", column)
	}
	return fmt.Sprintf("adms_decrypt(%s, ?)", column)
}

func (SQLite) InsertIgnore() string { return "INSERT OR IGNORE INTO" }

func (d SQLite) UpsertClause(conflictKeys, updateColumns []string) string {
	keys := make([]string, len(conflictKeys))
	for i, k := range conflictKeys {
		keys[i] = d.Quote(k)
	}
	target := ""
	if len(keys) > 0 {
		target = " (" + strings.Join(keys, ", ") + ")"
	}
	if len(updateColumns) == 0 {
		return " ON CONFLICT" + target + " DO NOTHING"
	}
	parts := make([]string, len(updateColumns))
	for i, c := range updateColumns {
		q := d.Quote(c)
		parts[i] = fmt.Sprintf("%s = excluded.%s", q, q)
	}
	return " ON CONFLICT" + target + " DO UPDATE SET " + strings.Join(parts, ", ")
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return MySQL{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}
