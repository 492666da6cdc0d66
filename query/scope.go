package query

// SoftDeleteColumn is the marker column for soft-deletable tables.
const SoftDeleteColumn = "deleted_at"

// ScopeSoftDeletes adds the deleted_at filters a statement needs for tables
// where softDeletable reports true. Upserts clear the marker so a conflicting
// deleted row is revived. Statements with IncludeDeleted are only revived,
// never filtered.
func ScopeSoftDeletes(s *Statement, softDeletable func(table string) bool) *Statement {
	out := s.Clone()
	if softDeletable == nil {
		return out
	}

	switch out.Kind {
	case KindUpsert:
		if softDeletable(out.Table) {
			for _, r := range out.Rows {
				r[SoftDeleteColumn] = nil
			}
			if !containsString(out.UpdateColumns, SoftDeleteColumn) {
				out.UpdateColumns = append(out.UpdateColumns, SoftDeleteColumn)
			}
		}
		return out
	case KindInsert:
		return out
	}

	if out.IncludeDeleted {
		return out
	}

	if softDeletable(out.Table) {
		qual := ""
		if out.Kind == KindSelect && len(out.Joins) > 0 {
			qual = out.qualifier()
		}
		out.Filters = append(out.Filters, Predicate{Left: Column{Qualifier: qual, Name: SoftDeleteColumn}, Op: OpIsNull})
	}

	if out.Kind == KindSelect {
		for i, j := range out.Joins {
			if softDeletable(j.Table) {
				out.Joins[i].On = append(out.Joins[i].On, Predicate{
					Left: Column{Qualifier: j.qualifier(), Name: SoftDeleteColumn},
					Op:   OpIsNull,
				})
			}
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
