// Package entity derives typed, user-visible values from coordinator snapshots
// and tracks per-entity staleness.
package entity

// Platform names used to build entity IDs
const (
	PlatformSensor       = "sensor"
	PlatformBinarySensor = "binary_sensor"
)

// Published state strings for the absent cases
const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
	StateOn          = "on"
	StateOff         = "off"
)

// Kind selects how a raw value is normalized and rendered
type Kind int

const (
	KindNumeric Kind = iota
	KindText
	KindTimestamp
	KindDate
	KindEnum
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindText:
		return "text"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	case KindEnum:
		return "enum"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Category mirrors the entity category of the platform
type Category string

const (
	CategoryNone       Category = ""
	CategoryConfig     Category = "config"
	CategoryDiagnostic Category = "diagnostic"
)

// DefaultPrecision is the number of decimals kept for floats when a
// description does not say otherwise
const DefaultPrecision = 1

// Description is the static, per-entity-kind definition of how to turn a
// snapshot of type T into a value.
type Description[T any] struct {
	Key         string
	Name        string
	Kind        Kind
	Unit        string
	DeviceClass string
	StateClass  string
	Icon        string
	Category    Category

	// Precision is the number of decimals kept for floats; nil means DefaultPrecision
	Precision *int

	// Options lists the allowed values for KindEnum
	Options []string

	// ValueFn computes the value. When nil, Field is used as a plain accessor.
	ValueFn func(T) any
	Field   func(T) any

	AttributesFn func(T) map[string]any

	// PreserveValue keeps the last known value when the snapshot lacks one
	PreserveValue    bool
	EnabledByDefault bool
}

// Digits returns a precision pointer for use in descriptions
func Digits(n int) *int {
	return &n
}

// Platform returns the platform the description publishes under
func (d Description[T]) Platform() string {
	if d.Kind == KindBinary {
		return PlatformBinarySensor
	}
	return PlatformSensor
}

func (d Description[T]) precision() int {
	if d.Precision == nil {
		return DefaultPrecision
	}
	return *d.Precision
}

func (d Description[T]) raw(snapshot T) any {
	switch {
	case d.ValueFn != nil:
		return d.ValueFn(snapshot)
	case d.Field != nil:
		return d.Field(snapshot)
	default:
		return nil
	}
}

// Override adjusts descriptions from configuration
type Override struct {
	PreserveValue *bool
	Enabled       *bool
}

// ApplyOverride returns a copy of d with o applied
func ApplyOverride[T any](d Description[T], o Override) Description[T] {
	if o.PreserveValue != nil {
		d.PreserveValue = *o.PreserveValue
	}
	if o.Enabled != nil {
		d.EnabledByDefault = *o.Enabled
	}
	return d
}
