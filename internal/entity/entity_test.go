package entity

import (
	"math"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type daily struct {
	Steps     *int
	Weight    *float64
	LastSync  string
	Readiness string
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

var stepsDesc = Description[daily]{
	Key:           "total_steps",
	Name:          "Total steps",
	Kind:          KindNumeric,
	Unit:          "steps",
	Field:         func(d daily) any { return d.Steps },
	PreserveValue: true,
}

// fakeSource stands in for a coordinator
type fakeSource struct {
	mu        sync.Mutex
	data      daily
	present   bool
	success   bool
	listeners map[int]func()
	next      int
}

func newFakeSource() *fakeSource {
	return &fakeSource{listeners: make(map[int]func())}
}

func (f *fakeSource) Data() (daily, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.present
}

func (f *fakeSource) LastUpdateSuccess() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.success
}

func (f *fakeSource) AddListener(fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeSource) succeed(d daily) {
	f.mu.Lock()
	f.data, f.present, f.success = d, true, true
	f.mu.Unlock()
	f.fire()
}

func (f *fakeSource) fail() {
	f.mu.Lock()
	f.success = false
	f.mu.Unlock()
	f.fire()
}

func (f *fakeSource) fire() {
	f.mu.Lock()
	fns := make([]func(), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func TestDerive_Rules(t *testing.T) {
	noPreserve := stepsDesc
	noPreserve.PreserveValue = false

	tests := []struct {
		name      string
		desc      Description[daily]
		snapshot  daily
		present   bool
		lastKnown any
		want      any
		wantLast  any
		wantPhase Phase
	}{
		{
			name:      "no snapshot ignores preserve",
			desc:      stepsDesc,
			present:   false,
			lastKnown: 500,
			want:      nil,
			wantLast:  500,
			wantPhase: PhaseUnknown,
		},
		{
			name:      "fresh value replaces last known",
			desc:      stepsDesc,
			snapshot:  daily{Steps: intPtr(812)},
			present:   true,
			lastKnown: 500,
			want:      812,
			wantLast:  812,
			wantPhase: PhaseFresh,
		},
		{
			name:      "missing value with preserve keeps last known",
			desc:      stepsDesc,
			snapshot:  daily{},
			present:   true,
			lastKnown: 500,
			want:      500,
			wantLast:  500,
			wantPhase: PhaseStale,
		},
		{
			name:      "missing value without preserve clears",
			desc:      noPreserve,
			snapshot:  daily{},
			present:   true,
			lastKnown: 500,
			want:      nil,
			wantLast:  500,
			wantPhase: PhaseUnknown,
		},
		{
			name:      "missing value with preserve but nothing known",
			desc:      stepsDesc,
			snapshot:  daily{},
			present:   true,
			want:      nil,
			wantPhase: PhaseUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Derive(tt.desc, tt.snapshot, tt.present, tt.lastKnown)
			assert.Equal(t, tt.want, res.Value)
			assert.Equal(t, tt.wantLast, res.LastKnown)
			assert.Equal(t, tt.wantPhase, res.Phase)

			// Pure: same inputs, same outputs
			assert.Equal(t, res, Derive(tt.desc, tt.snapshot, tt.present, tt.lastKnown))
		})
	}
}

func TestDerive_ValueFnTakesPrecedence(t *testing.T) {
	desc := Description[daily]{
		Key:       "weight",
		Kind:      KindNumeric,
		Precision: Digits(2),
		Field:     func(d daily) any { return 0 },
		ValueFn: func(d daily) any {
			if d.Weight == nil {
				return nil
			}
			return *d.Weight / 1000
		},
	}

	res := Derive(desc, daily{Weight: floatPtr(81234)}, true, nil)
	assert.Equal(t, 81.23, res.Value)
}

func TestNormalize_Numbers(t *testing.T) {
	desc := Description[daily]{Kind: KindNumeric}

	tests := []struct {
		name string
		raw  any
		want any
	}{
		{"integer passes", 42, 42},
		{"int64 becomes int", int64(7), 7},
		{"integral after rounding demotes", 23.04, 23},
		{"half rounds away from zero", 23.15, 23.2},
		{"plain float", 1.26, 1.3},
		{"negative", -0.25, -0.3},
		{"numeric string", "19.96", 20},
		{"decimal", decimal.RequireFromString("0.1234"), 0.1},
		{"garbage string", "n/a", nil},
		{"unsupported type", []int{1}, nil},
		{"nil pointer", (*int)(nil), nil},
		{"pointer", intPtr(3), 3},
		{"uint64 in range", uint64(9), 9},
		{"uint64 beyond int range stays float", uint64(math.MaxUint64), float64(math.MaxUint64)},
		{"huge integral float stays float", 1e20, 1e20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(desc, tt.raw))
		})
	}
}

func TestNormalize_Precision(t *testing.T) {
	desc := Description[daily]{Kind: KindNumeric, Precision: Digits(4)}
	assert.Equal(t, 0.1234, Normalize(desc, 0.12344))

	desc.Precision = Digits(0)
	assert.Equal(t, 3, Normalize(desc, 2.5))
}

func TestNormalize_Timestamps(t *testing.T) {
	desc := Description[daily]{Kind: KindTimestamp}

	// Naive timestamps are UTC, never local time
	got := Normalize(desc, "2025-06-01T07:45:10.0")
	require.IsType(t, time.Time{}, got)
	assert.Equal(t, time.Date(2025, 6, 1, 7, 45, 10, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.(time.Time).Location())

	got = Normalize(desc, "2025-06-01 07:45:10")
	assert.Equal(t, time.Date(2025, 6, 1, 7, 45, 10, 0, time.UTC), got)

	aware := Normalize(desc, "2025-06-01T09:45:10+02:00").(time.Time)
	assert.True(t, aware.Equal(time.Date(2025, 6, 1, 7, 45, 10, 0, time.UTC)))

	assert.Nil(t, Normalize(desc, ""))
	assert.Nil(t, Normalize(desc, "yesterday"))
	assert.Nil(t, Normalize(desc, time.Time{}))
}

func TestNormalize_OtherKinds(t *testing.T) {
	enum := Description[daily]{Kind: KindEnum, Options: []string{"follicular", "luteal"}}
	assert.Equal(t, "luteal", Normalize(enum, "luteal"))
	assert.Nil(t, Normalize(enum, "unknown_phase"))

	date := Description[daily]{Kind: KindDate}
	assert.Equal(t, "2025-06-10", Normalize(date, time.Date(2025, 6, 10, 22, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-06-10", Normalize(date, "2025-06-10"))
	assert.Nil(t, Normalize(date, "10/06/2025"))

	binary := Description[daily]{Kind: KindBinary}
	assert.Equal(t, true, Normalize(binary, true))
	assert.Nil(t, Normalize(binary, "yes"))

	text := Description[daily]{Kind: KindText}
	assert.Equal(t, "12", Normalize(text, 12))

	long := Normalize(text, strings.Repeat("é", 200)).(string)
	assert.True(t, utf8.ValidString(long))
	assert.Equal(t, 254, len(long))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "Shavuot", 255, "Shavuot"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"two byte rune split", "aé", 2, "a"},
		{"three byte rune split", "ab€", 4, "ab"},
		{"rune boundary", "ab€", 5, "ab€"},
		{"four byte rune split", "🕯🕯", 6, "🕯"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.in, tt.max))
		})
	}
}

func TestFormatState(t *testing.T) {
	assert.Equal(t, StateUnknown, FormatState(nil))
	assert.Equal(t, "23", FormatState(23))
	assert.Equal(t, "23.2", FormatState(23.2))
	assert.Equal(t, StateOn, FormatState(true))
	assert.Equal(t, "2025-06-01T07:45:10Z", FormatState(time.Date(2025, 6, 1, 7, 45, 10, 0, time.UTC)))
}

// A failed refresh makes the entity unavailable but keeps its value; a later
// success without the field clears it when preserve is off.
func TestSensor_PreservedValueThroughFailure(t *testing.T) {
	src := newFakeSource()
	desc := stepsDesc
	desc.PreserveValue = false
	s := NewSensor("garmin_connect", desc, src)
	s.Attach()
	defer s.Detach()

	assert.Equal(t, PhaseUnknown, s.Phase())
	assert.Equal(t, StateUnavailable, s.State())

	src.succeed(daily{Steps: intPtr(500)})
	assert.True(t, s.Available())
	assert.Equal(t, 500, s.Value())
	assert.Equal(t, "500", s.State())

	src.fail()
	assert.False(t, s.Available())
	assert.Equal(t, 500, s.Value())
	assert.Equal(t, StateUnavailable, s.State())

	src.succeed(daily{})
	assert.True(t, s.Available())
	assert.Nil(t, s.Value())
	assert.Equal(t, StateUnknown, s.State())
	assert.Equal(t, PhaseUnknown, s.Phase())
}

func TestSensor_PreserveKeepsStaleValue(t *testing.T) {
	src := newFakeSource()
	s := NewSensor("garmin_connect", stepsDesc, src)
	s.Attach()

	src.succeed(daily{Steps: intPtr(500)})
	src.succeed(daily{})

	assert.Equal(t, 500, s.Value())
	assert.Equal(t, PhaseStale, s.Phase())
	assert.Equal(t, "500", s.State())
}

func TestSensor_SeedFromRestore(t *testing.T) {
	src := newFakeSource()
	s := NewSensor("garmin_connect", stepsDesc, src)
	s.Seed("1200")
	s.Attach()

	// No snapshot yet: the restored value is kept
	assert.Equal(t, 1200, s.Value())
	assert.Equal(t, PhaseStale, s.Phase())

	// First snapshot lacks the field: restored value is preserved
	src.succeed(daily{})
	assert.Equal(t, 1200, s.Value())

	src.succeed(daily{Steps: intPtr(1300)})
	assert.Equal(t, 1300, s.Value())
	assert.Equal(t, PhaseFresh, s.Phase())
}

func TestSensor_SeedIgnoredWithoutPreserve(t *testing.T) {
	desc := stepsDesc
	desc.PreserveValue = false
	s := NewSensor("garmin_connect", desc, newFakeSource())
	s.Seed(1200)
	assert.Nil(t, s.Value())
}

func TestSensor_IDsAndSubscribers(t *testing.T) {
	src := newFakeSource()
	s := NewSensor("Garmin Connect", stepsDesc, src)

	assert.Equal(t, "Garmin Connect_total_steps", s.UniqueID())
	assert.Equal(t, "sensor.garmin_connect_total_steps", s.EntityID())

	var seen []string
	unsub := s.Subscribe(func(e Entity) { seen = append(seen, e.State()) })
	s.Attach()
	src.succeed(daily{Steps: intPtr(1)})
	unsub()
	src.succeed(daily{Steps: intPtr(2)})

	assert.Equal(t, []string{StateUnavailable, "1"}, seen)

	s.Detach()
	src.mu.Lock()
	assert.Empty(t, src.listeners)
	src.mu.Unlock()
}

func TestSensor_Attributes(t *testing.T) {
	desc := stepsDesc
	desc.AttributesFn = func(d daily) map[string]any {
		return map[string]any{"last_synced": d.LastSync}
	}
	src := newFakeSource()
	s := NewSensor("garmin_connect", desc, src)
	s.Attach()
	src.succeed(daily{Steps: intPtr(1), LastSync: "2025-06-01T07:00:00"})

	attrs := s.Attributes()
	assert.Equal(t, "2025-06-01T07:00:00", attrs["last_synced"])

	snap := s.Snapshot()
	assert.Equal(t, "sensor.garmin_connect_total_steps", snap.EntityID)
	assert.Equal(t, "fresh", snap.Phase)
	assert.Equal(t, "steps", snap.Unit)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "omie_spot_price_es", Slugify("OMIE  spot-price (ES)"))
	assert.Equal(t, "a_b", Slugify("__a__b__"))
}

func TestApplyOverride(t *testing.T) {
	off := false
	d := ApplyOverride(stepsDesc, Override{PreserveValue: &off})
	assert.False(t, d.PreserveValue)
	assert.True(t, stepsDesc.PreserveValue)
}

func TestDescription_Platform(t *testing.T) {
	assert.Equal(t, PlatformBinarySensor, Description[daily]{Kind: KindBinary}.Platform())
	assert.Equal(t, PlatformSensor, stepsDesc.Platform())
}
