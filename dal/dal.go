// Package dal is the data-access layer every central and tenant read or write
// goes through. Statements are scoped to live rows, rewritten for field
// encryption, compiled for the connection's dialect and executed with
// deadlock retries.
package dal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"admsserver/database"
	"admsserver/logger"
	"admsserver/query"
	"admsserver/utils"
)

// BulkChunkSize is the number of rows per statement in BulkInsert.
const BulkChunkSize = 500

var (
	ErrNotFound      = errors.New("record not found")
	ErrUndecryptable = errors.New("row cannot be decrypted with its recorded key version")
)

// Keyring is the tenant encryption state plus Go-side decryption, needed
// when rows are re-encrypted.
type Keyring interface {
	query.Keyring
	Open(version string, data []byte) (string, error)
}

// Result reports the outcome of a write.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// DB runs statements against one connection. A nil keyring disables the
// encryption rewrite, which is the case for the central directory.
type DB struct {
	conn  *database.Conn
	ex    Executor
	kr    Keyring
	retry database.RetryPolicy
	inTx  bool
}

// New returns a DB over conn.
func New(conn *database.Conn, kr Keyring) *DB {
	return &DB{conn: conn, ex: conn.DB, kr: kr, retry: database.DefaultRetryPolicy}
}

// Conn returns the underlying connection.
func (db *DB) Conn() *database.Conn {
	return db.conn
}

// Keyring returns the keyring used for rewriting, or nil.
func (db *DB) Keyring() Keyring {
	return db.kr
}

func (db *DB) keyring() query.Keyring {
	if db.kr == nil {
		return nil
	}
	return db.kr
}

func (db *DB) prepare(s *query.Statement) (query.Compiled, error) {
	scoped := query.ScopeSoftDeletes(s, database.SoftDeletable)
	rewritten, err := query.Encrypt(scoped, db.keyring())
	if err != nil {
		return query.Compiled{}, err
	}
	return query.Compile(db.conn.Dialect, rewritten)
}

// run retries deadlocks outside transactions. Inside a transaction the
// whole transaction is retried by WithTx instead.
func (db *DB) run(ctx context.Context, fn func() error) error {
	if db.inTx {
		return fn()
	}
	return database.WithRetry(ctx, db.retry, fn)
}

func storageError(s *query.Statement, err error) error {
	logger.WithFields(map[string]interface{}{
		"table": s.Table,
		"op":    s.Kind.String(),
		"error": err.Error(),
	}).Error("Storage operation failed")
	return fmt.Errorf("%s %s: %w", s.Kind, s.Table, err)
}

// Fetch returns every row matched by a select.
func (db *DB) Fetch(ctx context.Context, s *query.Statement) ([]Record, error) {
	c, err := db.prepare(s)
	if err != nil {
		return nil, err
	}

	var out []Record
	err = db.run(ctx, func() error {
		rows, err := db.ex.QueryContext(ctx, c.SQL, c.Args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanRecords(rows)
		return err
	})
	if err != nil {
		return nil, storageError(s, err)
	}
	return out, nil
}

// First returns the first matching row or ErrNotFound.
func (db *DB) First(ctx context.Context, s *query.Statement) (Record, error) {
	recs, err := db.Fetch(ctx, s.Clone().Limit(1))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// Count runs a query.Count statement.
func (db *DB) Count(ctx context.Context, s *query.Statement) (int64, error) {
	c, err := db.prepare(s)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.run(ctx, func() error {
		return db.ex.QueryRowContext(ctx, c.SQL, c.Args...).Scan(&n)
	})
	if err != nil {
		return 0, storageError(s, err)
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(Record, len(cols))
		for i, col := range cols {
			rec[col] = vals[i]
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// write executes a write. Duplicate-key and foreign-key violations are
// reported as a zero result.
func (db *DB) write(ctx context.Context, s *query.Statement) (Result, error) {
	c, err := db.prepare(s)
	if err != nil {
		return Result{}, err
	}

	var res sql.Result
	err = db.run(ctx, func() error {
		var err error
		res, err = db.ex.ExecContext(ctx, c.SQL, c.Args...)
		return err
	})
	if err != nil {
		if database.IsBenign(err) {
			logger.WithFields(map[string]interface{}{
				"table": s.Table,
				"op":    s.Kind.String(),
				"error": err.Error(),
			}).Info("Write conflict ignored")
			return Result{}, nil
		}
		return Result{}, storageError(s, err)
	}

	var out Result
	out.RowsAffected, _ = res.RowsAffected()
	if s.Kind == query.KindInsert || s.Kind == query.KindUpsert {
		out.LastInsertID, _ = res.LastInsertId()
	}
	return out, nil
}

// Insert inserts one row and returns its id.
func (db *DB) Insert(ctx context.Context, table string, row query.Row) (int64, error) {
	res, err := db.write(ctx, query.Insert(table, row))
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

// BulkInsert inserts rows in chunks. Every row must carry the same columns.
func (db *DB) BulkInsert(ctx context.Context, table string, rows []query.Row, ignoreDupes bool) (int64, error) {
	var total int64
	for start := 0; start < len(rows); start += BulkChunkSize {
		end := start + BulkChunkSize
		if end > len(rows) {
			end = len(rows)
		}
		stmt := query.Insert(table, rows[start:end]...)
		if ignoreDupes {
			stmt.IgnoreDupes()
		}
		res, err := db.write(ctx, stmt)
		if err != nil {
			return total, err
		}
		total += res.RowsAffected
	}
	return total, nil
}

// Update applies an update. Rows still on an older key version are first
// re-encrypted when the update rewrites only some of the encrypted columns.
func (db *DB) Update(ctx context.Context, s *query.Statement) (int64, error) {
	if err := db.realign(ctx, s.Table, s.Set, s.Filters); err != nil {
		return 0, err
	}
	res, err := db.write(ctx, s)
	return res.RowsAffected, err
}

// Upsert inserts or updates rows by their conflict keys. Soft-deleted rows
// are revived.
func (db *DB) Upsert(ctx context.Context, s *query.Statement) (int64, error) {
	for _, row := range s.Rows {
		updated := query.Row{}
		for _, c := range s.UpdateColumns {
			updated[c] = row[c]
		}
		filters := make([]query.Predicate, 0, len(s.ConflictKeys))
		for _, k := range s.ConflictKeys {
			filters = append(filters, query.Eq(k, row[k]))
		}
		if err := db.realign(ctx, s.Table, updated, filters); err != nil {
			return 0, err
		}
	}
	res, err := db.write(ctx, s)
	return res.RowsAffected, err
}

// Delete removes matching rows. Tables with soft deletes are soft-deleted
// instead.
func (db *DB) Delete(ctx context.Context, s *query.Statement) (int64, error) {
	if database.SoftDeletable(s.Table) {
		soft := s.Clone()
		soft.Kind = query.KindSoftDelete
		soft.DeletedAt = utils.NowDB()
		return db.SoftDelete(ctx, soft)
	}
	res, err := db.write(ctx, s)
	return res.RowsAffected, err
}

// SoftDelete marks matching rows deleted.
func (db *DB) SoftDelete(ctx context.Context, s *query.Statement) (int64, error) {
	res, err := db.write(ctx, s)
	return res.RowsAffected, err
}

// WithTx runs fn in a transaction, retrying the whole transaction on
// deadlock. Nested calls reuse the outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(tx *DB) error) error {
	if db.inTx {
		return fn(db)
	}
	return database.WithRetry(ctx, db.retry, func() error {
		sqlTx, err := db.conn.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		tx := &DB{conn: db.conn, ex: sqlTx, kr: db.kr, retry: db.retry, inTx: true}
		if err := fn(tx); err != nil {
			_ = sqlTx.Rollback()
			return err
		}
		return sqlTx.Commit()
	})
}

func (db *DB) realign(ctx context.Context, table string, set query.Row, filters []query.Predicate) error {
	if db.kr == nil || db.kr.ActiveVersion() == "" {
		return nil
	}
	enc := db.kr.EncryptedColumns(table)
	touched := query.TouchedColumns(set, enc)
	if len(touched) == 0 || len(touched) == len(enc) {
		return nil
	}
	_, err := db.Reencrypt(ctx, table, filters, false)
	return err
}

// Reencrypt moves every matching row that is not on the active key version
// onto it: each encrypted column is decrypted with the key of the row's
// recorded version and sealed again with the active key. The rewrite of a
// row is guarded by its old version so concurrent writers are not undone.
// Any row that cannot be decrypted fails the call with ErrUndecryptable.
func (db *DB) Reencrypt(ctx context.Context, table string, filters []query.Predicate, includeDeleted bool) (int, error) {
	if db.kr == nil || db.kr.ActiveVersion() == "" {
		return 0, query.ErrNoActiveKey
	}
	enc := db.kr.EncryptedColumns(table)
	if len(enc) == 0 {
		return 0, nil
	}
	active := db.kr.ActiveVersion()

	sel := query.Select(table, "id", query.VersionColumn)
	for _, c := range enc {
		q := db.conn.Dialect.Quote(c)
		sel.Item(query.Raw{SQL: q + " AS " + q})
	}
	sel.Where(filters...).Where(query.Ne(query.VersionColumn, active)).OrderBy("id", false)
	if includeDeleted {
		sel.WithDeleted()
	}

	recs, err := db.Fetch(ctx, sel)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, rec := range recs {
		id := rec.Int64("id")
		from := rec.String(query.VersionColumn)

		set := query.Row{query.VersionColumn: active}
		for _, c := range enc {
			data := rec.Bytes(c)
			if data == nil {
				continue
			}
			plain, err := db.kr.Open(from, data)
			if err != nil {
				return moved, fmt.Errorf("%w: %s id %d: %v", ErrUndecryptable, table, id, err)
			}
			set[c] = plain
		}

		upd := query.Update(table, set).Where(query.Eq("id", id), query.Eq(query.VersionColumn, from))
		if includeDeleted {
			upd.WithDeleted()
		}
		res, err := db.write(ctx, upd)
		if err != nil {
			return moved, err
		}
		moved += int(res.RowsAffected)
	}
	return moved, nil
}
