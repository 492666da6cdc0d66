// Package query describes database operations as data and compiles them to
// dialect-specific SQL. Encryption and soft-delete handling are separate
// rewrite stages applied to a Statement before Compile.
package query

import (
	"sort"
	"strings"
)

// Kind identifies the statement variant.
type Kind int

const (
	KindSelect Kind = iota
	KindInsert
	KindUpdate
	KindUpsert
	KindDelete
	KindSoftDelete
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "select"
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindUpsert:
		return "upsert"
	case KindDelete:
		return "delete"
	case KindSoftDelete:
		return "soft_delete"
	default:
		return "unknown"
	}
}

// Row maps column names to values for inserts and updates.
type Row map[string]any

// Columns returns the row's column names in sorted order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func (r Row) clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Expr is anything that can appear as a select item, predicate operand or
// ordering term.
type Expr interface {
	expr()
}

// Column references a column, optionally qualified by a table alias.
type Column struct {
	Qualifier string
	Name      string
	As        string
}

// Decrypt is produced by the encryption stage: the column's plaintext,
// decrypted with the key matching the row's version.
type Decrypt struct {
	Column Column
	Keys   []VersionKey
	Legacy bool
}

// Raw is an SQL fragment passed through verbatim.
type Raw struct {
	SQL  string
	Args []any
}

func (Column) expr()  {}
func (Decrypt) expr() {}
func (Raw) expr()     {}

// C parses "alias.name" or "name" into a Column.
func C(ref string) Column {
	if i := strings.IndexByte(ref, '.'); i > 0 {
		return Column{Qualifier: ref[:i], Name: ref[i+1:]}
	}
	return Column{Name: ref}
}

// Op is a comparison operator.
type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "<>"
	OpLt      Op = "<"
	OpLte     Op = "<="
	OpGt      Op = ">"
	OpGte     Op = ">="
	OpLike    Op = "LIKE"
	OpIn      Op = "IN"
	OpNotIn   Op = "NOT IN"
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
)

// Predicate is a single condition, or an OR-group when Any is set.
// Right, when set, compares against another expression instead of Values.
type Predicate struct {
	Left   Expr
	Op     Op
	Values []any
	Right  Expr
	Any    []Predicate
}

func Eq(col string, v any) Predicate   { return Predicate{Left: C(col), Op: OpEq, Values: []any{v}} }
func Ne(col string, v any) Predicate   { return Predicate{Left: C(col), Op: OpNe, Values: []any{v}} }
func Lt(col string, v any) Predicate   { return Predicate{Left: C(col), Op: OpLt, Values: []any{v}} }
func Lte(col string, v any) Predicate  { return Predicate{Left: C(col), Op: OpLte, Values: []any{v}} }
func Gt(col string, v any) Predicate   { return Predicate{Left: C(col), Op: OpGt, Values: []any{v}} }
func Gte(col string, v any) Predicate  { return Predicate{Left: C(col), Op: OpGte, Values: []any{v}} }
func Like(col string, v any) Predicate { return Predicate{Left: C(col), Op: OpLike, Values: []any{v}} }

func In(col string, vs ...any) Predicate    { return Predicate{Left: C(col), Op: OpIn, Values: vs} }
func NotIn(col string, vs ...any) Predicate { return Predicate{Left: C(col), Op: OpNotIn, Values: vs} }
func IsNull(col string) Predicate           { return Predicate{Left: C(col), Op: OpIsNull} }
func NotNull(col string) Predicate          { return Predicate{Left: C(col), Op: OpNotNull} }

// ColEq compares two columns, typically in a join condition.
func ColEq(left, right string) Predicate {
	return Predicate{Left: C(left), Op: OpEq, Right: C(right)}
}

// Or groups predicates with OR.
func Or(ps ...Predicate) Predicate {
	return Predicate{Any: ps}
}

// Join is a LEFT or INNER join against another table.
type Join struct {
	Inner bool
	Table string
	Alias string
	On    []Predicate
}

func (j Join) qualifier() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// Order is an ORDER BY term.
type Order struct {
	Expr Expr
	Desc bool
}

// Statement is a declarative read or write against one table.
type Statement struct {
	Kind  Kind
	Table string
	Alias string

	Items   []Expr
	Joins   []Join
	Filters []Predicate
	Orders  []Order
	LimitN  int
	OffsetN int

	Rows             []Row
	Set              Row
	ConflictKeys     []string
	UpdateColumns    []string
	IgnoreDuplicates bool

	IncludeDeleted bool
	DeletedAt      any
}

// Select starts a select over the given columns. No columns means "*".
func Select(table string, columns ...string) *Statement {
	s := &Statement{Kind: KindSelect, Table: table}
	for _, c := range columns {
		s.Items = append(s.Items, C(c))
	}
	return s
}

// Count starts a COUNT(*) select.
func Count(table string) *Statement {
	return &Statement{Kind: KindSelect, Table: table, Items: []Expr{Raw{SQL: "COUNT(*)"}}}
}

// Insert starts an insert of one or more rows.
func Insert(table string, rows ...Row) *Statement {
	return &Statement{Kind: KindInsert, Table: table, Rows: rows}
}

// Upsert inserts rows, updating updateColumns when conflictKeys collide.
func Upsert(table string, conflictKeys []string, updateColumns []string, rows ...Row) *Statement {
	return &Statement{
		Kind:          KindUpsert,
		Table:         table,
		Rows:          rows,
		ConflictKeys:  conflictKeys,
		UpdateColumns: updateColumns,
	}
}

// Update starts an update setting the given values.
func Update(table string, set Row) *Statement {
	return &Statement{Kind: KindUpdate, Table: table, Set: set}
}

// Delete starts a hard delete.
func Delete(table string) *Statement {
	return &Statement{Kind: KindDelete, Table: table}
}

// SoftDelete marks matching rows deleted at the given timestamp.
func SoftDelete(table string, deletedAt any) *Statement {
	return &Statement{Kind: KindSoftDelete, Table: table, DeletedAt: deletedAt}
}

func (s *Statement) As(alias string) *Statement {
	s.Alias = alias
	return s
}

// Columns appends select items, accepting "alias.col" references.
func (s *Statement) Columns(columns ...string) *Statement {
	for _, c := range columns {
		s.Items = append(s.Items, C(c))
	}
	return s
}

// Item appends an arbitrary select expression.
func (s *Statement) Item(e Expr) *Statement {
	s.Items = append(s.Items, e)
	return s
}

func (s *Statement) LeftJoin(table, alias string, on ...Predicate) *Statement {
	s.Joins = append(s.Joins, Join{Table: table, Alias: alias, On: on})
	return s
}

func (s *Statement) InnerJoin(table, alias string, on ...Predicate) *Statement {
	s.Joins = append(s.Joins, Join{Inner: true, Table: table, Alias: alias, On: on})
	return s
}

func (s *Statement) Where(ps ...Predicate) *Statement {
	s.Filters = append(s.Filters, ps...)
	return s
}

func (s *Statement) OrderBy(col string, desc bool) *Statement {
	s.Orders = append(s.Orders, Order{Expr: C(col), Desc: desc})
	return s
}

func (s *Statement) Limit(n int) *Statement {
	s.LimitN = n
	return s
}

func (s *Statement) Offset(n int) *Statement {
	s.OffsetN = n
	return s
}

// WithDeleted disables the soft-delete scope.
func (s *Statement) WithDeleted() *Statement {
	s.IncludeDeleted = true
	return s
}

// IgnoreDupes turns an insert into an insert-or-ignore.
func (s *Statement) IgnoreDupes() *Statement {
	s.IgnoreDuplicates = true
	return s
}

func (s *Statement) qualifier() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Table
}

// tableFor maps a column qualifier to the table it refers to.
func (s *Statement) tableFor(qualifier string) string {
	if qualifier == "" || qualifier == s.Alias || qualifier == s.Table {
		return s.Table
	}
	for _, j := range s.Joins {
		if qualifier == j.qualifier() {
			return j.Table
		}
	}
	return ""
}

// Clone returns a copy whose slices and rows can be modified independently.
func (s *Statement) Clone() *Statement {
	c := *s
	c.Items = append([]Expr(nil), s.Items...)
	c.Joins = make([]Join, len(s.Joins))
	for i, j := range s.Joins {
		j.On = append([]Predicate(nil), j.On...)
		c.Joins[i] = j
	}
	c.Filters = append([]Predicate(nil), s.Filters...)
	c.Orders = append([]Order(nil), s.Orders...)
	c.Rows = make([]Row, len(s.Rows))
	for i, r := range s.Rows {
		c.Rows[i] = r.clone()
	}
	c.Set = s.Set.clone()
	c.ConflictKeys = append([]string(nil), s.ConflictKeys...)
	c.UpdateColumns = append([]string(nil), s.UpdateColumns...)
	return &c
}
