package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the scalar held by a Value.
type ValueKind int

const (
	// KindNull is an absent value. Written as SQL NULL.
	KindNull ValueKind = iota
	// KindString is a text value.
	KindString
	// KindNumber is a numeric value.
	KindNumber
)

// String returns the name of the kind.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	default:
		return "null"
	}
}

// Value is a tagged scalar: string, number or null.
type Value struct {
	kind ValueKind
	str  string
	num  float64
}

// Null returns the null Value.
func Null() Value { return Value{} }

// String returns a text Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric Value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Kind returns the tag of v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns v as text. Numbers are formatted without trailing zeros; null is "".
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Float returns v as a number. Text is parsed; unparsable text and null report ok=false.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// SQLValue returns the driver argument for v: nil, string or float64.
func (v Value) SQLValue() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	default:
		return nil
	}
}

// FromDriver converts a value scanned from database/sql into a Value.
// Integer and decimal types become numbers, byte slices and strings become
// text, times are rendered as RFC 3339 text and nil becomes null.
func FromDriver(src interface{}) Value {
	switch v := src.(type) {
	case nil:
		return Null()
	case string:
		return String(v)
	case []byte:
		return String(string(v))
	case int64:
		return Number(float64(v))
	case int32:
		return Number(float64(v))
	case int:
		return Number(float64(v))
	case float64:
		return Number(v)
	case float32:
		return Number(float64(v))
	case bool:
		if v {
			return Number(1)
		}
		return Number(0)
	case time.Time:
		return String(v.Format(time.RFC3339))
	default:
		return String(fmt.Sprint(v))
	}
}

// Row is an ordered mapping from column name to Value.
// Column names are normalized to lower case so lookups are case-insensitive.
type Row struct {
	columns []string
	values  map[string]Value
}

// NewRow creates an empty Row.
func NewRow() *Row {
	return &Row{values: make(map[string]Value)}
}

// Set assigns a value to a column, appending the column if it is new.
func (r *Row) Set(column string, v Value) *Row {
	key := normalizeColumn(column)
	if _, ok := r.values[key]; !ok {
		r.columns = append(r.columns, key)
	}
	r.values[key] = v
	return r
}

// Get returns the value of a column and whether the column is present.
func (r *Row) Get(column string) (Value, bool) {
	v, ok := r.values[normalizeColumn(column)]
	return v, ok
}

// Columns returns the column names in insertion order.
func (r *Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Len returns the number of columns.
func (r *Row) Len() int { return len(r.columns) }

// Project returns the driver arguments for the given columns in order.
// Missing columns are coalesced to NULL.
func (r *Row) Project(columns []string) []interface{} {
	out := make([]interface{}, len(columns))
	for i, c := range columns {
		if v, ok := r.Get(c); ok {
			out[i] = v.SQLValue()
		}
	}
	return out
}

func normalizeColumn(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
