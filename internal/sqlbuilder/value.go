package sqlbuilder

// Value is the right-hand side of a column assignment or predicate.
// It is one of Literal, Operator or Raw.
type Value interface {
	isValue()
}

// Literal is bound as a statement parameter.
type Literal struct {
	V any
}

// Operator compares a column against Operand with Op.
type Operator struct {
	Op      Op
	Operand Value
}

// Raw is spliced into the statement text verbatim and binds no parameter.
type Raw struct {
	Text string
	// ByDialect overrides Text for individual dialects.
	ByDialect map[Dialect]string
}

func (Literal) isValue()  {}
func (Operator) isValue() {}
func (Raw) isValue()      {}

func (r Raw) text(d Dialect) string {
	if s, ok := r.ByDialect[d]; ok {
		return s
	}
	return r.Text
}

// Op is a comparison operator.
type Op int

// Comparison operators.
const (
	OpEquals Op = iota
	OpLike
	OpGreaterThan
	OpLessThan
	OpGreaterOrEqual
	OpLessOrEqual
)

// Now is the current time as computed by the database.
func Now() Raw {
	return Raw{ByDialect: map[Dialect]string{
		SQLite:   "datetime('now')",
		Postgres: "now()",
	}}
}

// Expr wraps a pre-built SQL expression, such as the other side of a join.
func Expr(text string) Raw {
	return Raw{Text: text}
}

// Like matches v case-insensitively.
func Like(v any) Operator { return Operator{Op: OpLike, Operand: wrap(v)} }

// Gt matches rows where the column is greater than v.
func Gt(v any) Operator { return Operator{Op: OpGreaterThan, Operand: wrap(v)} }

// Lt matches rows where the column is less than v.
func Lt(v any) Operator { return Operator{Op: OpLessThan, Operand: wrap(v)} }

// Gte matches rows where the column is greater than or equal to v.
func Gte(v any) Operator { return Operator{Op: OpGreaterOrEqual, Operand: wrap(v)} }

// Lte matches rows where the column is less than or equal to v.
func Lte(v any) Operator { return Operator{Op: OpLessOrEqual, Operand: wrap(v)} }

// Column pairs a column name with a value or predicate.
type Column struct {
	Name  string
	Value Value
}

// Columns is an ordered list of columns. Order determines parameter order.
type Columns []Column

// Col builds a Column. Anything that is not already a Value becomes a Literal.
func Col(name string, v any) Column {
	return Column{Name: name, Value: wrap(v)}
}

func wrap(v any) Value {
	if val, ok := v.(Value); ok {
		return val
	}
	return Literal{V: v}
}
