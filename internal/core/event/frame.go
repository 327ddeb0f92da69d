package event

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Row is one record of a tabular batch. Cell values are whatever the source
// produced: string, float64, bool, time.Time, or nil for a missing value.
type Row map[string]interface{}

// Frame is the tabular batch representation shared by the standardisation
// pipeline and the master-aggregation builder. Columns preserves input order;
// Rows hold cells keyed by column name.
type Frame struct {
	Columns []string
	Rows    []Row
}

// NewFrame builds a frame from a column list and row maps.
func NewFrame(columns []string, rows []Row) Frame {
	return Frame{Columns: columns, Rows: rows}
}

// Clone returns a deep copy of the frame. Pipeline steps operate on clones so
// the caller's batch is never mutated.
func (f Frame) Clone() Frame {
	out := Frame{
		Columns: append([]string(nil), f.Columns...),
		Rows:    make([]Row, len(f.Rows)),
	}
	for i, row := range f.Rows {
		cp := make(Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// HasColumn reports whether the frame carries the named column.
func (f Frame) HasColumn(name string) bool {
	for _, c := range f.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// timeLayouts are tried in order when coercing heterogeneous input into a
// timestamp. Date-only forms come last so datetimes win on prefix matches.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2006-01-02",
	"02/01/2006",
}

// CoerceTime converts a heterogeneous cell value into a timestamp.
// Missing or empty values return (nil, true). Unparsable values return
// (nil, false) so callers can decide between tolerant and strict handling.
func CoerceTime(v interface{}) (*time.Time, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case time.Time:
		if val.IsZero() {
			return nil, true
		}
		t := val.UTC()
		return &t, true
	case *time.Time:
		if val == nil || val.IsZero() {
			return nil, true
		}
		t := val.UTC()
		return &t, true
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, true
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t, true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

// CoerceString converts a cell value to its trimmed string form.
// Missing values and empty strings come back as "".
func CoerceString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(val)
	case float64:
		// JSON decoding hands every number over as float64; render integral
		// values without a trailing fraction.
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}
