package db

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DateLayout is the canonical calendar-date rendering.
const DateLayout = "2006-01-02"

// Row is one result row keyed by column name. Integers are widened to
// int64, dates are ISO calendar-date strings and timestamps are RFC 3339.
type Row map[string]interface{}

func columnTypes(fields []pgconn.FieldDescription) map[string]uint32 {
	types := make(map[string]uint32, len(fields))
	for _, f := range fields {
		types[f.Name] = f.DataTypeOID
	}
	return types
}

func normalizeRow(m map[string]interface{}, types map[string]uint32) Row {
	row := make(Row, len(m))
	for col, v := range m {
		row[col] = normalizeValue(v, types[col])
	}
	return row
}

func normalizeValue(v interface{}, oid uint32) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		if oid == pgtype.DateOID {
			return t.Format(DateLayout)
		}
		return t.UTC().Format(time.RFC3339Nano)
	case pgtype.Date:
		if !t.Valid {
			return nil
		}
		if t.InfinityModifier != pgtype.Finite {
			return t.InfinityModifier.String()
		}
		return t.Time.Format(DateLayout)
	case pgtype.Timestamp:
		if !t.Valid {
			return nil
		}
		return t.Time.UTC().Format(time.RFC3339Nano)
	case pgtype.Timestamptz:
		if !t.Valid {
			return nil
		}
		return t.Time.UTC().Format(time.RFC3339Nano)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float32:
		return float64(t)
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return v
	}
}

// String returns the column as a string; missing and NULL become "".
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// StringPtr returns nil for a missing or NULL column.
func (r Row) StringPtr(col string) *string {
	if r[col] == nil {
		return nil
	}
	s := r.String(col)
	return &s
}

// Int64 returns the column as an int64; missing, NULL and non-numeric
// values become 0.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		if v > math.MaxInt64 || v < math.MinInt64 {
			return 0
		}
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Float64 returns the column as a float64.
func (r Row) Float64(col string) float64 {
	switch v := r[col].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}
