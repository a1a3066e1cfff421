package constraint

import "strings"

type join struct {
	table string
	alias string
	on    string
}

// Builder accumulates the joined tables and AND'd predicates of one query.
type Builder struct {
	tables []join
	seen   map[string]bool
	where  []string
	args   []any
}

func newBuilder(table, alias string) *Builder {
	return &Builder{
		tables: []join{{table: table, alias: alias}},
		seen:   map[string]bool{alias: true},
	}
}

// Join adds an inner join unless alias is already present.
func (b *Builder) Join(table, alias, on string) {
	if b.seen[alias] {
		return
	}
	b.seen[alias] = true
	b.tables = append(b.tables, join{table: table, alias: alias, on: on})
}

func (b *Builder) Has(alias string) bool { return b.seen[alias] }

// Where adds one predicate. Placeholders are written as "?".
func (b *Builder) Where(fragment string, args ...any) {
	b.where = append(b.where, "("+fragment+")")
	b.args = append(b.args, args...)
}

// WhereIn adds "column IN (...)" for values.
func (b *Builder) WhereIn(column string, values []any) {
	b.Where(inList(column, len(values)), values...)
}

func inList(column string, n int) string {
	if n == 1 {
		return column + " = ?"
	}
	return column + " IN (" + placeholders(n) + ")"
}

// WhereAny ORs fragments that share one argument each.
func (b *Builder) WhereAny(fragments []string, args []any) {
	b.Where(strings.Join(fragments, " OR "), args...)
}

func (b *Builder) query() Query {
	var from strings.Builder
	for i, t := range b.tables {
		if i > 0 {
			from.WriteString(" INNER JOIN ")
		}
		from.WriteString(t.table)
		from.WriteString(" ")
		from.WriteString(t.alias)
		if t.on != "" {
			from.WriteString(" ON ")
			from.WriteString(t.on)
		}
	}
	args := make([]any, len(b.args))
	copy(args, b.args)
	return Query{
		From:  from.String(),
		Where: strings.Join(b.where, " AND "),
		Args:  args,
	}
}

// Query is a resolved constraint set. Where is empty when nothing filters.
type Query struct {
	From  string
	Where string
	Args  []any
}

// WhereClause returns the predicate prefixed by WHERE, or "".
func (q Query) WhereClause() string {
	if q.Where == "" {
		return ""
	}
	return " WHERE " + q.Where
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
