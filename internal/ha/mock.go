package ha

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ServiceCall records a service call for testing
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
	Time    time.Time
}

// MockClient implements HAClient in memory. Helper service calls update the
// stored state the way Home Assistant would.
type MockClient struct {
	states   map[string]*State
	statesMu sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	serviceCalls []ServiceCall
	callErr      error
	callsMu      sync.Mutex
}

// NewMockClient creates a connected mock client
func NewMockClient() *MockClient {
	return &MockClient{
		states:    make(map[string]*State),
		connected: true,
	}
}

// SetConnected simulates a connection change
func (m *MockClient) SetConnected(v bool) {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	m.connected = v
}

// IsConnected implements HAClient
func (m *MockClient) IsConnected() bool {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	return m.connected
}

// SetState sets an entity state as if it existed in Home Assistant
func (m *MockClient) SetState(entityID, state string) {
	m.statesMu.Lock()
	defer m.statesMu.Unlock()
	m.states[entityID] = &State{
		EntityID:    entityID,
		State:       state,
		Attributes:  map[string]interface{}{},
		LastChanged: time.Now(),
		LastUpdated: time.Now(),
	}
}

// GetState returns the stored state or nil
func (m *MockClient) GetState(entityID string) *State {
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()
	return m.states[entityID]
}

// GetAllStates implements HAClient
func (m *MockClient) GetAllStates(ctx context.Context) ([]*State, error) {
	if !m.IsConnected() {
		return nil, ErrNotConnected
	}
	m.statesMu.RLock()
	defer m.statesMu.RUnlock()
	out := make([]*State, 0, len(m.states))
	for _, s := range m.states {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

// FailCalls makes every following service call return err (nil to reset)
func (m *MockClient) FailCalls(err error) {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.callErr = err
}

// CallService implements HAClient
func (m *MockClient) CallService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	if !m.IsConnected() {
		return ErrNotConnected
	}

	m.callsMu.Lock()
	if m.callErr != nil {
		err := m.callErr
		m.callsMu.Unlock()
		return err
	}
	m.serviceCalls = append(m.serviceCalls, ServiceCall{
		Domain:  domain,
		Service: service,
		Data:    data,
		Time:    time.Now(),
	})
	m.callsMu.Unlock()

	entityID, _ := data["entity_id"].(string)
	if !strings.HasPrefix(entityID, domain+".") {
		return fmt.Errorf("entity %q is not in domain %s", entityID, domain)
	}
	switch service {
	case "turn_on":
		m.SetState(entityID, "on")
	case "turn_off":
		m.SetState(entityID, "off")
	case "set_value":
		m.SetState(entityID, fmt.Sprint(data["value"]))
	}
	return nil
}

// GetServiceCalls returns all recorded service calls
func (m *MockClient) GetServiceCalls() []ServiceCall {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	return append([]ServiceCall(nil), m.serviceCalls...)
}

// ClearServiceCalls forgets the recorded service calls
func (m *MockClient) ClearServiceCalls() {
	m.callsMu.Lock()
	defer m.callsMu.Unlock()
	m.serviceCalls = nil
}

var _ HAClient = (*MockClient)(nil)
