// Package pgfake provides in-memory stand-ins for the database gateway and
// pgx result rows.
package pgfake

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Rows is a pgx.Rows over fixed values addressed by column name.
type Rows struct {
	columns []string
	data    [][]any
	pos     int
	closed  bool
	err     error
}

var _ pgx.Rows = (*Rows)(nil)

// NewRows returns rows with the given column names and values.
func NewRows(columns []string, data ...[]any) *Rows {
	return &Rows{columns: columns, data: data, pos: -1}
}

// ErrRows returns rows that fail with err once iterated.
func ErrRows(err error) *Rows {
	return &Rows{pos: -1, err: err}
}

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Err() error { return r.err }

func (r *Rows) CommandTag() pgconn.CommandTag { return pgconn.NewCommandTag("SELECT") }

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	fields := make([]pgconn.FieldDescription, len(r.columns))
	for i, name := range r.columns {
		fields[i] = pgconn.FieldDescription{Name: name}
	}
	return fields
}

func (r *Rows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	r.pos++
	if r.pos >= len(r.data) {
		r.closed = true
		return false
	}
	return true
}

// Scan assigns the current row to dest. Values convert between numeric kinds
// and between string kinds; nil leaves the zero value.
func (r *Rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return errors.New("pgfake: scan without current row")
	}
	row := r.data[r.pos]
	if len(dest) != len(row) {
		return fmt.Errorf("pgfake: scan %d destinations into %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			return fmt.Errorf("pgfake: column %q: %w", r.columns[i], err)
		}
	}
	return nil
}

func (r *Rows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.data) {
		return nil, errors.New("pgfake: no current row")
	}
	return append([]any(nil), r.data[r.pos]...), nil
}

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }

func assign(dest, src any) error {
	target := reflect.ValueOf(dest)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return errors.New("destination is not a pointer")
	}
	elem := target.Elem()
	if src == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	value := reflect.ValueOf(src)
	switch {
	case value.Type().AssignableTo(elem.Type()):
		elem.Set(value)
	case isNumeric(value.Kind()) && isNumeric(elem.Kind()):
		elem.Set(value.Convert(elem.Type()))
	case value.Kind() == reflect.String && elem.Kind() == reflect.String:
		elem.SetString(value.String())
	default:
		return fmt.Errorf("cannot assign %T to %s", src, elem.Type())
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
