package query

import (
	"errors"
	"fmt"
)

const (
	// VersionColumn records which key version encrypted a row.
	VersionColumn = "version"
	// HashSuffix names the searchable hash sibling of an encrypted column.
	HashSuffix = "_hash"
)

var (
	ErrWildcardEncrypted = errors.New("query: wildcard select on a table with encrypted columns")
	ErrNoActiveKey       = errors.New("query: write to encrypted table without an active key")
)

// VersionKey pairs a key version with its raw key material.
type VersionKey struct {
	Version string
	Key     []byte
}

// Keyring is the per-tenant view of encryption state the rewrite needs.
type Keyring interface {
	EncryptedColumns(table string) []string
	ActiveVersion() string
	// Seal encrypts with the active key and returns the ciphertext and its
	// search hash. Both are empty when encryption fails.
	Seal(plaintext string) ([]byte, string)
	// SearchHashes hashes plaintext under every known key version.
	SearchHashes(plaintext string) []string
	Keys() []VersionKey
	Legacy() bool
}

// HashColumn returns the hash sibling name of an encrypted column.
func HashColumn(column string) string {
	return column + HashSuffix
}

// Encrypt rewrites s so that encrypted columns are decrypted on read,
// searched by hash on equality, and sealed on write.
func Encrypt(s *Statement, kr Keyring) (*Statement, error) {
	out := s.Clone()
	if kr == nil {
		return out, nil
	}
	rw := rewriter{kr: kr, stmt: out}

	switch out.Kind {
	case KindSelect:
		if err := rw.items(); err != nil {
			return nil, err
		}
		for i := range out.Joins {
			out.Joins[i].On = rw.predicates(out.Joins[i].On)
		}
		out.Filters = rw.predicates(out.Filters)
		for i, o := range out.Orders {
			out.Orders[i].Expr = rw.expr(o.Expr)
		}
	case KindInsert, KindUpsert:
		enc := kr.EncryptedColumns(out.Table)
		if len(enc) == 0 {
			return out, nil
		}
		if kr.ActiveVersion() == "" {
			return nil, ErrNoActiveKey
		}
		for _, r := range out.Rows {
			rw.seal(r, enc)
			r[VersionColumn] = kr.ActiveVersion()
		}
		if out.Kind == KindUpsert {
			out.UpdateColumns = rw.upsertColumns(out.UpdateColumns, enc)
		}
	case KindUpdate:
		enc := kr.EncryptedColumns(out.Table)
		if touches(out.Set, enc) {
			if kr.ActiveVersion() == "" {
				return nil, ErrNoActiveKey
			}
			rw.seal(out.Set, enc)
			out.Set[VersionColumn] = kr.ActiveVersion()
		}
		out.Filters = rw.predicates(out.Filters)
	case KindDelete, KindSoftDelete:
		out.Filters = rw.predicates(out.Filters)
	}
	return out, nil
}

// TouchedColumns reports which encrypted columns a row writes.
func TouchedColumns(r Row, encrypted []string) []string {
	var out []string
	for _, c := range encrypted {
		if _, ok := r[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

func touches(r Row, encrypted []string) bool {
	return len(TouchedColumns(r, encrypted)) > 0
}

type rewriter struct {
	kr   Keyring
	stmt *Statement
}

func (rw rewriter) encrypted(c Column) bool {
	table := rw.stmt.tableFor(c.Qualifier)
	if table == "" {
		return false
	}
	return containsString(rw.kr.EncryptedColumns(table), c.Name)
}

func (rw rewriter) decrypt(c Column) Decrypt {
	return Decrypt{Column: c, Keys: rw.kr.Keys(), Legacy: rw.kr.Legacy()}
}

func (rw rewriter) items() error {
	if len(rw.stmt.Items) == 0 {
		if len(rw.kr.EncryptedColumns(rw.stmt.Table)) > 0 {
			return ErrWildcardEncrypted
		}
		for _, j := range rw.stmt.Joins {
			if len(rw.kr.EncryptedColumns(j.Table)) > 0 {
				return ErrWildcardEncrypted
			}
		}
		return nil
	}
	for i, it := range rw.stmt.Items {
		col, ok := it.(Column)
		if !ok {
			continue
		}
		if col.Name == "*" {
			table := rw.stmt.tableFor(col.Qualifier)
			if len(rw.kr.EncryptedColumns(table)) > 0 {
				return ErrWildcardEncrypted
			}
			continue
		}
		if rw.encrypted(col) {
			if col.As == "" {
				col.As = col.Name
			}
			rw.stmt.Items[i] = rw.decrypt(col)
		}
	}
	return nil
}

func (rw rewriter) expr(e Expr) Expr {
	if col, ok := e.(Column); ok && rw.encrypted(col) {
		return rw.decrypt(col)
	}
	return e
}

func (rw rewriter) predicates(ps []Predicate) []Predicate {
	out := make([]Predicate, len(ps))
	for i, p := range ps {
		out[i] = rw.predicate(p)
	}
	return out
}

func (rw rewriter) predicate(p Predicate) Predicate {
	if len(p.Any) > 0 {
		p.Any = rw.predicates(p.Any)
		return p
	}
	col, ok := p.Left.(Column)
	if !ok || !rw.encrypted(col) {
		if p.Right != nil {
			p.Right = rw.expr(p.Right)
		}
		return p
	}
	if p.Right != nil {
		p.Left = rw.decrypt(col)
		p.Right = rw.expr(p.Right)
		return p
	}

	switch p.Op {
	case OpIsNull, OpNotNull:
		return p
	case OpEq, OpIn, OpNe, OpNotIn:
		op := OpIn
		if p.Op == OpNe || p.Op == OpNotIn {
			op = OpNotIn
		}
		var hashes []any
		for _, v := range p.Values {
			plain, ok := plaintext(v)
			if !ok {
				continue
			}
			for _, h := range rw.kr.SearchHashes(plain) {
				hashes = append(hashes, h)
			}
		}
		return Predicate{
			Left:   Column{Qualifier: col.Qualifier, Name: HashColumn(col.Name)},
			Op:     op,
			Values: hashes,
		}
	default:
		p.Left = rw.decrypt(col)
		return p
	}
}

func (rw rewriter) seal(r Row, encrypted []string) {
	for _, c := range encrypted {
		v, ok := r[c]
		if !ok {
			continue
		}
		plain, ok := plaintext(v)
		if !ok {
			r[c] = nil
			r[HashColumn(c)] = nil
			continue
		}
		ct, hash := rw.kr.Seal(plain)
		if ct == nil {
			r[c] = nil
			r[HashColumn(c)] = nil
			continue
		}
		r[c] = ct
		r[HashColumn(c)] = hash
	}
}

func (rw rewriter) upsertColumns(cols, encrypted []string) []string {
	out := append([]string(nil), cols...)
	sealed := false
	for _, c := range cols {
		if containsString(encrypted, c) {
			sealed = true
			if h := HashColumn(c); !containsString(out, h) {
				out = append(out, h)
			}
		}
	}
	if sealed && !containsString(out, VersionColumn) {
		out = append(out, VersionColumn)
	}
	return out
}

func plaintext(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return fmt.Sprint(t), true
	}
}
