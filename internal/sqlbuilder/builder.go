// Package sqlbuilder renders parameterized SQL statements for the SQLite and
// PostgreSQL dialects from ordered column lists.
package sqlbuilder

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect selects placeholder style and function names.
type Dialect string

// Supported dialects.
const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// ParseDialect returns the Dialect named by s.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case SQLite, Postgres:
		return d, nil
	case "sqlite3":
		return SQLite, nil
	case "postgresql", "pgx":
		return Postgres, nil
	}
	return "", fmt.Errorf("sqlbuilder: unknown dialect %q", s)
}

var (
	// ErrNoColumns is returned for an insert or update without columns.
	ErrNoColumns = errors.New("sqlbuilder: no columns")
	// ErrOperatorValue is returned when an Operator is used where a value is expected.
	ErrOperatorValue = errors.New("sqlbuilder: operator not allowed here")
)

// Statement is the rendered SQL text and its parameters in placeholder order.
type Statement struct {
	SQL  string
	Args []any
}

// Query describes a select.
type Query struct {
	// From lists tables or views; more than one is an implicit cross join.
	From []string
	// Columns defaults to "*".
	Columns []string
	Where   Columns
	OrderBy []string
	// Limit is ignored when zero.
	Limit int
}

// Builder renders statements for one dialect.
type Builder struct {
	Dialect Dialect
}

// New returns a Builder for d.
func New(d Dialect) Builder {
	return Builder{Dialect: d}
}

type params struct {
	d    Dialect
	args []any
}

func (p *params) bind(v any) string {
	p.args = append(p.args, v)
	if p.d == Postgres {
		return "$" + strconv.Itoa(len(p.args))
	}
	return "?"
}

// value renders an assignment value.
func (p *params) value(v Value) (string, error) {
	switch v := v.(type) {
	case Literal:
		return p.bind(v.V), nil
	case Raw:
		return v.text(p.d), nil
	case nil:
		return p.bind(nil), nil
	default:
		return "", ErrOperatorValue
	}
}

func (p *params) predicate(c Column) (string, error) {
	op, operand := OpEquals, c.Value
	if o, ok := c.Value.(Operator); ok {
		op, operand = o.Op, o.Operand
	}
	rhs, err := p.value(operand)
	if err != nil {
		return "", fmt.Errorf("sqlbuilder: predicate on %s: %w", c.Name, err)
	}
	return quote(c.Name) + " " + op.sql(p.d) + " " + rhs, nil
}

func (p *params) where(cols Columns) (string, error) {
	if len(cols) == 0 {
		return "", nil
	}
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		s, err := p.predicate(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func (o Op) sql(d Dialect) string {
	switch o {
	case OpLike:
		if d == Postgres {
			return "ILIKE"
		}
		return "LIKE"
	case OpGreaterThan:
		return ">"
	case OpLessThan:
		return "<"
	case OpGreaterOrEqual:
		return ">="
	case OpLessOrEqual:
		return "<="
	default:
		return "="
	}
}

// Insert renders INSERT INTO table (cols) VALUES (...).
func (b Builder) Insert(table string, fields Columns) (Statement, error) {
	if len(fields) == 0 {
		return Statement{}, fmt.Errorf("insert into %s: %w", table, ErrNoColumns)
	}
	p := &params{d: b.Dialect}
	names := make([]string, 0, len(fields))
	vals := make([]string, 0, len(fields))
	for _, f := range fields {
		v, err := p.value(f.Value)
		if err != nil {
			return Statement{}, fmt.Errorf("insert into %s: column %s: %w", table, f.Name, err)
		}
		names = append(names, quote(f.Name))
		vals = append(vals, v)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(names, ", "), strings.Join(vals, ", "))
	return Statement{SQL: sql, Args: p.args}, nil
}

// Select renders a SELECT for q.
func (b Builder) Select(q Query) (Statement, error) {
	if len(q.From) == 0 {
		return Statement{}, errors.New("sqlbuilder: select without source")
	}
	p := &params{d: b.Dialect}
	cols := "*"
	if len(q.Columns) > 0 {
		cols = quoteList(q.Columns)
	}
	where, err := p.where(q.Where)
	if err != nil {
		return Statement{}, err
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(quoteList(q.From))
	sb.WriteString(where)
	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(q.OrderBy, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(q.Limit))
	}
	return Statement{SQL: sb.String(), Args: p.args}, nil
}

// Update renders UPDATE table SET ... WHERE ...
func (b Builder) Update(table string, fields, where Columns) (Statement, error) {
	if len(fields) == 0 {
		return Statement{}, fmt.Errorf("update %s: %w", table, ErrNoColumns)
	}
	p := &params{d: b.Dialect}
	sets := make([]string, 0, len(fields))
	for _, f := range fields {
		v, err := p.value(f.Value)
		if err != nil {
			return Statement{}, fmt.Errorf("update %s: column %s: %w", table, f.Name, err)
		}
		sets = append(sets, quote(f.Name)+" = "+v)
	}
	w, err := p.where(where)
	if err != nil {
		return Statement{}, err
	}
	sql := "UPDATE " + quote(table) + " SET " + strings.Join(sets, ", ") + w
	return Statement{SQL: sql, Args: p.args}, nil
}

// Delete renders DELETE FROM table WHERE ...
func (b Builder) Delete(table string, where Columns) (Statement, error) {
	p := &params{d: b.Dialect}
	w, err := p.where(where)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "DELETE FROM " + quote(table) + w, Args: p.args}, nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// quote double-quotes plain and dotted identifiers and leaves anything else alone.
func quote(name string) string {
	if !identRe.MatchString(name) {
		return name
	}
	parts := strings.Split(name, ".")
	for i, part := range parts {
		parts[i] = `"` + part + `"`
	}
	return strings.Join(parts, ".")
}

func quoteList(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quote(n)
	}
	return strings.Join(out, ", ")
}
