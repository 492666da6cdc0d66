package query

import (
	"errors"
	"fmt"
	"strings"
)

// Compiled is a ready-to-run SQL string with its positional arguments.
type Compiled struct {
	SQL  string
	Args []any
}

var (
	ErrNoRows        = errors.New("query: insert without rows")
	ErrEmptySet      = errors.New("query: update without values")
	ErrUnscopedWrite = errors.New("query: update or delete without filters")
)

type compiler struct {
	d    Dialect
	buf  strings.Builder
	args []any
}

// Compile renders s for dialect d. Updates and deletes must carry at least
// one filter.
func Compile(d Dialect, s *Statement) (Compiled, error) {
	c := &compiler{d: d}
	var err error
	switch s.Kind {
	case KindSelect:
		err = c.selectStmt(s)
	case KindInsert, KindUpsert:
		err = c.insertStmt(s)
	case KindUpdate:
		err = c.updateStmt(s, s.Set)
	case KindSoftDelete:
		err = c.updateStmt(s, Row{SoftDeleteColumn: s.DeletedAt})
	case KindDelete:
		err = c.deleteStmt(s)
	default:
		err = fmt.Errorf("query: unknown statement kind %d", s.Kind)
	}
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{SQL: c.buf.String(), Args: c.args}, nil
}

func (c *compiler) write(parts ...string) {
	for _, p := range parts {
		c.buf.WriteString(p)
	}
}

func (c *compiler) table(s *Statement) string {
	t := c.d.Quote(s.Table)
	if s.Alias != "" {
		t += " " + c.d.Quote(s.Alias)
	}
	return t
}

func (c *compiler) column(col Column) string {
	if col.Name == "*" {
		if col.Qualifier != "" {
			return c.d.Quote(col.Qualifier) + ".*"
		}
		return "*"
	}
	name := c.d.Quote(col.Name)
	if col.Qualifier != "" {
		name = c.d.Quote(col.Qualifier) + "." + name
	}
	return name
}

func (c *compiler) expr(e Expr, alias bool) {
	switch t := e.(type) {
	case Column:
		c.write(c.column(t))
		if alias && t.As != "" && t.As != t.Name {
			c.write(" AS ", c.d.Quote(t.As))
		}
	case Decrypt:
		if len(t.Keys) == 0 {
			c.write("NULL")
		} else {
			version := c.column(Column{Qualifier: t.Column.Qualifier, Name: VersionColumn})
			c.write("CASE ", version)
			target := c.column(Column{Qualifier: t.Column.Qualifier, Name: t.Column.Name})
			for _, k := range t.Keys {
				c.write(" WHEN ? THEN ", c.d.DecryptExpr(target, t.Legacy))
				c.args = append(c.args, k.Version, k.Key)
			}
			c.write(" END")
		}
		if alias && t.Column.As != "" {
			c.write(" AS ", c.d.Quote(t.Column.As))
		}
	case Raw:
		c.write(t.SQL)
		c.args = append(c.args, t.Args...)
	}
}

func (c *compiler) predicate(p Predicate) {
	if len(p.Any) > 0 {
		c.write("(")
		for i, sub := range p.Any {
			if i > 0 {
				c.write(" OR ")
			}
			c.predicate(sub)
		}
		c.write(")")
		return
	}

	switch p.Op {
	case OpIsNull, OpNotNull:
		c.expr(p.Left, false)
		c.write(" ", string(p.Op))
	case OpIn, OpNotIn:
		if len(p.Values) == 0 {
			if p.Op == OpIn {
				c.write("1 = 0")
			} else {
				c.write("1 = 1")
			}
			return
		}
		c.expr(p.Left, false)
		c.write(" ", string(p.Op), " (", placeholders(len(p.Values)), ")")
		c.args = append(c.args, p.Values...)
	default:
		c.expr(p.Left, false)
		c.write(" ", string(p.Op), " ")
		if p.Right != nil {
			c.expr(p.Right, false)
			return
		}
		c.write("?")
		if len(p.Values) > 0 {
			c.args = append(c.args, p.Values[0])
		} else {
			c.args = append(c.args, nil)
		}
	}
}

func (c *compiler) where(ps []Predicate) {
	if len(ps) == 0 {
		return
	}
	c.write(" WHERE ")
	c.conjunction(ps)
}

func (c *compiler) conjunction(ps []Predicate) {
	for i, p := range ps {
		if i > 0 {
			c.write(" AND ")
		}
		c.predicate(p)
	}
}

func (c *compiler) selectStmt(s *Statement) error {
	c.write("SELECT ")
	if len(s.Items) == 0 {
		c.write("*")
	}
	for i, it := range s.Items {
		if i > 0 {
			c.write(", ")
		}
		c.expr(it, true)
	}
	c.write(" FROM ", c.table(s))

	for _, j := range s.Joins {
		kind := " LEFT JOIN "
		if j.Inner {
			kind = " INNER JOIN "
		}
		c.write(kind, c.d.Quote(j.Table))
		if j.Alias != "" {
			c.write(" ", c.d.Quote(j.Alias))
		}
		if len(j.On) > 0 {
			c.write(" ON ")
			c.conjunction(j.On)
		}
	}

	c.where(s.Filters)

	if len(s.Orders) > 0 {
		c.write(" ORDER BY ")
		for i, o := range s.Orders {
			if i > 0 {
				c.write(", ")
			}
			c.expr(o.Expr, false)
			if o.Desc {
				c.write(" DESC")
			} else {
				c.write(" ASC")
			}
		}
	}
	if s.LimitN > 0 {
		c.write(fmt.Sprintf(" LIMIT %d", s.LimitN))
		if s.OffsetN > 0 {
			c.write(fmt.Sprintf(" OFFSET %d", s.OffsetN))
		}
	}
	return nil
}

func (c *compiler) insertStmt(s *Statement) error {
	if len(s.Rows) == 0 {
		return ErrNoRows
	}
	cols := s.Rows[0].Columns()

	verb := "INSERT INTO"
	if s.IgnoreDuplicates && s.Kind == KindInsert {
		verb = c.d.InsertIgnore()
	}
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = c.d.Quote(col)
	}
	c.write(verb, " ", c.d.Quote(s.Table), " (", strings.Join(quoted, ", "), ") VALUES ")

	rowPH := "(" + placeholders(len(cols)) + ")"
	for i, r := range s.Rows {
		if i > 0 {
			c.write(", ")
		}
		c.write(rowPH)
		for _, col := range cols {
			c.args = append(c.args, r[col])
		}
	}

	if s.Kind == KindUpsert {
		c.write(c.d.UpsertClause(s.ConflictKeys, s.UpdateColumns))
	}
	return nil
}

func (c *compiler) updateStmt(s *Statement, set Row) error {
	if len(set) == 0 {
		return ErrEmptySet
	}
	if len(s.Filters) == 0 {
		return ErrUnscopedWrite
	}
	c.write("UPDATE ", c.d.Quote(s.Table), " SET ")
	for i, col := range set.Columns() {
		if i > 0 {
			c.write(", ")
		}
		c.write(c.d.Quote(col), " = ?")
		c.args = append(c.args, set[col])
	}
	c.where(s.Filters)
	return nil
}

func (c *compiler) deleteStmt(s *Statement) error {
	if len(s.Filters) == 0 {
		return ErrUnscopedWrite
	}
	c.write("DELETE FROM ", c.d.Quote(s.Table))
	c.where(s.Filters)
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
