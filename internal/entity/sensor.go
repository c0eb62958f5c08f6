package entity

import (
	"strings"
	"sync"
	"time"
	"unicode"
)

// Source is the coordinator side of a sensor
type Source[T any] interface {
	Data() (T, bool)
	LastUpdateSuccess() bool
	AddListener(fn func()) func()
}

// Entity is the type-erased view of a sensor used by publishers and the API
type Entity interface {
	UniqueID() string
	EntityID() string
	Key() string
	Name() string
	Kind() Kind
	Unit() string
	DeviceClass() string
	Icon() string
	Category() Category
	EnabledByDefault() bool

	Available() bool
	Value() any
	Phase() Phase
	State() string
	Attributes() map[string]any
	Snapshot() State

	Seed(value any)
	Attach()
	Detach()
	Subscribe(fn func(Entity)) func()
}

// State is a serializable view of an entity at one point in time
type State struct {
	EntityID    string         `json:"entity_id"`
	UniqueID    string         `json:"unique_id"`
	State       string         `json:"state"`
	Available   bool           `json:"available"`
	Phase       string         `json:"phase"`
	Unit        string         `json:"unit_of_measurement,omitempty"`
	DeviceClass string         `json:"device_class,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
}

// Sensor binds a description to a coordinator and re-derives its value on
// every coordinator notification.
type Sensor[T any] struct {
	desc     Description[T]
	source   Source[T]
	uniqueID string
	entityID string
	now      func() time.Time

	mu          sync.RWMutex
	value       any
	lastKnown   any
	phase       Phase
	attrs       map[string]any
	lastChanged time.Time
	detach      func()
	subs        map[int]func(Entity)
	nextSub     int
}

// NewSensor creates a sensor. prefix scopes the unique and entity IDs to one
// integration entry, e.g. "garmin_connect".
func NewSensor[T any](prefix string, desc Description[T], source Source[T]) *Sensor[T] {
	uid := prefix + "_" + desc.Key
	return &Sensor[T]{
		desc:     desc,
		source:   source,
		uniqueID: uid,
		entityID: desc.Platform() + "." + Slugify(uid),
		now:      time.Now,
		subs:     make(map[int]func(Entity)),
	}
}

func (s *Sensor[T]) UniqueID() string       { return s.uniqueID }
func (s *Sensor[T]) EntityID() string       { return s.entityID }
func (s *Sensor[T]) Key() string            { return s.desc.Key }
func (s *Sensor[T]) Name() string           { return s.desc.Name }
func (s *Sensor[T]) Kind() Kind             { return s.desc.Kind }
func (s *Sensor[T]) Unit() string           { return s.desc.Unit }
func (s *Sensor[T]) DeviceClass() string    { return s.desc.DeviceClass }
func (s *Sensor[T]) Icon() string           { return s.desc.Icon }
func (s *Sensor[T]) Category() Category     { return s.desc.Category }
func (s *Sensor[T]) EnabledByDefault() bool { return s.desc.EnabledByDefault }

// Available is true only while the coordinator's last refresh succeeded
func (s *Sensor[T]) Available() bool {
	return s.source.LastUpdateSuccess()
}

// Value returns the derived value. It survives a failed refresh even though
// the entity is then reported unavailable.
func (s *Sensor[T]) Value() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Phase returns the current lifecycle phase
func (s *Sensor[T]) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// State renders the published state string
func (s *Sensor[T]) State() string {
	if !s.Available() {
		return StateUnavailable
	}
	return FormatState(s.Value())
}

// Attributes returns a copy of the extra attributes of the last snapshot
func (s *Sensor[T]) Attributes() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.attrs == nil {
		return nil
	}
	out := make(map[string]any, len(s.attrs))
	for k, v := range s.attrs {
		out[k] = v
	}
	return out
}

// Snapshot returns a serializable view of the entity
func (s *Sensor[T]) Snapshot() State {
	s.mu.RLock()
	changed := s.lastChanged
	phase := s.phase
	s.mu.RUnlock()

	return State{
		EntityID:    s.entityID,
		UniqueID:    s.uniqueID,
		State:       s.State(),
		Available:   s.Available(),
		Phase:       phase.String(),
		Unit:        s.desc.Unit,
		DeviceClass: s.desc.DeviceClass,
		Attributes:  s.Attributes(),
		LastChanged: changed,
	}
}

// Seed restores a previously persisted value before the first derivation.
// It only has an effect for descriptions that preserve their value.
func (s *Sensor[T]) Seed(value any) {
	if value == nil || !s.desc.PreserveValue {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseUnknown {
		return
	}
	s.lastKnown = Normalize(s.desc, value)
	s.value = s.lastKnown
	if s.value != nil {
		s.phase = PhaseStale
	}
}

// Attach subscribes to the coordinator and derives the initial value
func (s *Sensor[T]) Attach() {
	s.mu.Lock()
	if s.detach != nil {
		s.mu.Unlock()
		return
	}
	s.detach = s.source.AddListener(s.handleUpdate)
	s.mu.Unlock()

	s.handleUpdate()
}

// Detach unsubscribes from the coordinator
func (s *Sensor[T]) Detach() {
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()

	if detach != nil {
		detach()
	}
}

// Subscribe registers fn to be called after every re-derivation
func (s *Sensor[T]) Subscribe(fn func(Entity)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Sensor[T]) handleUpdate() {
	snapshot, present := s.source.Data()

	s.mu.Lock()
	// With no snapshot at all a seeded value stays visible
	if !present && s.phase == PhaseStale {
		s.mu.Unlock()
		s.publish()
		return
	}

	res := Derive(s.desc, snapshot, present, s.lastKnown)
	if res.Value != s.value || res.Phase != s.phase {
		s.lastChanged = s.now()
	}
	s.value = res.Value
	s.lastKnown = res.LastKnown
	s.phase = res.Phase
	if present && s.desc.AttributesFn != nil {
		s.attrs = s.desc.AttributesFn(snapshot)
	}
	s.mu.Unlock()

	s.publish()
}

func (s *Sensor[T]) publish() {
	s.mu.RLock()
	subs := make([]func(Entity), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(s)
	}
}

// Slugify lowercases s and replaces everything but letters and digits with
// single underscores
func Slugify(s string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

var _ Entity = (*Sensor[struct{}])(nil)
