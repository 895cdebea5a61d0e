package store

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

// Row is one result row keyed by column name.
type Row map[string]any

// String returns col as a string; NULL is "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// Int64 returns col as an integer; NULL and non-numeric values are 0.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	}
	return 0
}

// timeLayouts are the text forms SQLite hands back for timestamp columns it
// could not type, e.g. through expressions.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Time returns col as a time in UTC; NULL and unparsable values are zero.
func (r Row) Time(col string) time.Time {
	var s string
	switch v := r[col].(type) {
	case time.Time:
		return v.UTC()
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return time.Time{}
	}
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Rows is a cursor over a select result.
type Rows struct {
	rows *sql.Rows
	cols []string
	cur  Row
	err  error
}

// Next advances to the next row.
func (r *Rows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}
	vals := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = storeErr("scan", err)
		return false
	}
	row := make(Row, len(r.cols))
	for i, c := range r.cols {
		row[c] = vals[i]
	}
	r.cur = row
	return true
}

// Row returns the current row.
func (r *Rows) Row() Row {
	return r.cur
}

// Err returns the first error met while iterating.
func (r *Rows) Err() error {
	if r.err != nil {
		return r.err
	}
	if err := r.rows.Err(); err != nil {
		return storeErr("rows", err)
	}
	return nil
}

// Close releases the cursor.
func (r *Rows) Close() error {
	return r.rows.Close()
}

// collect drains rows through fn and closes them.
func collect[T any](rows *Rows, fn func(Row) T) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		out = append(out, fn(rows.Row()))
	}
	return out, rows.Err()
}
