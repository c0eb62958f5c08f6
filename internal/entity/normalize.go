package entity

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Phase is where an entity is in its lifecycle of values
type Phase int

const (
	// PhaseUnknown: no value has ever been derived, or the value was cleared
	PhaseUnknown Phase = iota
	// PhaseStale: the value comes from an earlier snapshot
	PhaseStale
	// PhaseFresh: the value was derived from the current snapshot
	PhaseFresh
)

func (p Phase) String() string {
	switch p {
	case PhaseStale:
		return "stale"
	case PhaseFresh:
		return "fresh"
	default:
		return "unknown"
	}
}

// Result is the outcome of one derivation
type Result struct {
	Value     any
	LastKnown any
	Phase     Phase
}

// Derive computes an entity's value from a snapshot. It is pure: the same
// inputs always produce the same result.
//
//   - no snapshot: nil, regardless of PreserveValue
//   - raw value absent: the last known value with PreserveValue, nil otherwise
//   - anything else: the normalized raw value, which becomes the last known one
func Derive[T any](desc Description[T], snapshot T, present bool, lastKnown any) Result {
	if !present {
		return Result{LastKnown: lastKnown, Phase: PhaseUnknown}
	}

	value := Normalize(desc, desc.raw(snapshot))
	if value == nil {
		if desc.PreserveValue && lastKnown != nil {
			return Result{Value: lastKnown, LastKnown: lastKnown, Phase: PhaseStale}
		}
		return Result{LastKnown: lastKnown, Phase: PhaseUnknown}
	}

	return Result{Value: value, LastKnown: value, Phase: PhaseFresh}
}

// naive timestamp layouts; values in these forms are taken as UTC
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Normalize converts a raw value into its canonical representation for the
// description's kind. Values that cannot be represented become nil.
func Normalize[T any](desc Description[T], raw any) any {
	raw = deref(raw)
	if raw == nil {
		return nil
	}

	switch desc.Kind {
	case KindTimestamp:
		return normalizeTimestamp(raw)
	case KindDate:
		return normalizeDate(raw)
	case KindEnum:
		s, ok := raw.(string)
		if !ok {
			s = fmt.Sprint(raw)
		}
		for _, opt := range desc.Options {
			if opt == s {
				return s
			}
		}
		return nil
	case KindBinary:
		b, ok := raw.(bool)
		if !ok {
			return nil
		}
		return b
	case KindText:
		s, ok := raw.(string)
		if !ok {
			s = fmt.Sprint(raw)
		}
		return Truncate(s, MaxTextLength)
	default:
		return normalizeNumber(raw, desc.precision())
	}
}

// MaxTextLength is the longest text state Home Assistant accepts
const MaxTextLength = 255

// Truncate shortens s to at most max bytes without splitting a rune
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size != 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}

// unsignedNumber keeps values beyond int range as floats instead of wrapping
func unsignedNumber(v uint64, precision int) any {
	if v > math.MaxInt64 {
		return roundFloat(float64(v), precision)
	}
	return int(v)
}

// deref unwraps optional snapshot fields; a nil pointer is an absent value
func deref(raw any) any {
	if raw == nil {
		return nil
	}
	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Pointer {
		return raw
	}
	if rv.IsNil() {
		return nil
	}
	return rv.Elem().Interface()
}

func normalizeNumber(raw any, precision int) any {
	switch v := raw.(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint:
		return unsignedNumber(uint64(v), precision)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return unsignedNumber(v, precision)
	case float32:
		return roundFloat(float64(v), precision)
	case float64:
		return roundFloat(v, precision)
	case decimal.Decimal:
		return roundDecimal(v, precision)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return roundFloat(f, precision)
	default:
		return nil
	}
}

// roundFloat rounds the shortest decimal form of f half away from zero, so
// 23.15 becomes 23.2 rather than suffering binary representation error
func roundFloat(f float64, precision int) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return roundDecimal(decimal.NewFromFloat(f), precision)
}

var (
	maxIntDecimal = decimal.NewFromInt(math.MaxInt64)
	minIntDecimal = decimal.NewFromInt(math.MinInt64)
)

// roundDecimal demotes integral results that fit an int to int
func roundDecimal(d decimal.Decimal, precision int) any {
	rounded := d.Round(int32(precision))
	if rounded.IsInteger() && !rounded.GreaterThan(maxIntDecimal) && !rounded.LessThan(minIntDecimal) {
		return int(rounded.IntPart())
	}
	return rounded.InexactFloat64()
}

func normalizeTimestamp(raw any) any {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return v
	case string:
		if v == "" {
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		for _, layout := range naiveLayouts {
			if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
				return t
			}
		}
		return nil
	default:
		return nil
	}
}

func normalizeDate(raw any) any {
	switch v := raw.(type) {
	case time.Time:
		if v.IsZero() {
			return nil
		}
		return v.Format(time.DateOnly)
	case string:
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return nil
		}
		return t.Format(time.DateOnly)
	default:
		return nil
	}
}

// FormatState renders a normalized value as a published state string
func FormatState(v any) string {
	switch val := v.(type) {
	case nil:
		return StateUnknown
	case bool:
		if val {
			return StateOn
		}
		return StateOff
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.Format(time.RFC3339)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
