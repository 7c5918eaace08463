package plcdriver

import (
	"math"
	"time"

	"github.com/yatesdr/plcio/logix"
)

// isValid reproduces the original collector's value-validity predicate:
// booleans are always valid; nil is never valid; NaN and +/-Inf are never
// valid; any other finite number is valid, including exactly zero.
func isValid(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return true
	case float32:
		f := float64(val)
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	case float64:
		return !math.IsNaN(val) && !math.IsInf(val, 0)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

// toFloat64 converts a decoded tag value to the float64 the local buffer and
// cloud store both store observations as. Booleans become 1.0/0.0, the same
// representation Python's bool-as-int gets when it lands in a numeric column.
func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

// valuesToObservations converts a batch of read results into Observations,
// discarding any tag that failed to read or whose decoded value doesn't pass
// isValid. Every Observation carries the same timestamp.
func valuesToObservations(values []*logix.TagValue, at time.Time) []Observation {
	out := make([]Observation, 0, len(values))
	for _, v := range values {
		if v == nil || v.Error != nil {
			continue
		}
		goVal := v.GoValue()
		if !isValid(goVal) {
			continue
		}
		f, ok := toFloat64(goVal)
		if !ok {
			continue
		}
		out = append(out, Observation{Name: v.Name, Value: f, Time: at})
	}
	return out
}
