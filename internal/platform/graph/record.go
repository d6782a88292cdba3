package graph

import (
	"strconv"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Record is one result record keyed by the names in the RETURN clause.
type Record map[string]interface{}

func toRecord(r *neo4j.Record) Record {
	rec := make(Record, len(r.Keys))
	for i, key := range r.Keys {
		rec[key] = flatten(r.Values[i])
	}
	return rec
}

// flatten replaces graph entities by their property maps and renders
// temporal values as ISO strings.
func flatten(v interface{}) interface{} {
	switch t := v.(type) {
	case neo4j.Node:
		return flattenMap(t.Props)
	case neo4j.Relationship:
		return flattenMap(t.Props)
	case neo4j.Date:
		return t.Time().Format("2006-01-02")
	case neo4j.LocalDateTime:
		return t.Time().Format("2006-01-02T15:04:05")
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = flatten(e)
		}
		return out
	case map[string]interface{}:
		return flattenMap(t)
	default:
		return v
	}
}

func flattenMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = flatten(v)
	}
	return out
}

// Props returns the flattened node or relationship stored under key, or
// nil when the key is absent or null (an unmatched OPTIONAL MATCH).
func (r Record) Props(key string) Props {
	m, ok := r[key].(map[string]interface{})
	if !ok {
		return nil
	}
	return Props(m)
}

// Props is the property map of a flattened node or relationship.
type Props map[string]interface{}

// String returns the property as a string; missing and null become "".
func (p Props) String(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Int64 returns the property as an int64. Numeric strings are parsed since
// older writers stored identifiers as text.
func (p Props) Int64(key string) int64 {
	switch v := p[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Float64 returns the property as a float64.
func (p Props) Float64(key string) float64 {
	switch v := p[key].(type) {
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
