// Package hatest provides a fake Home Assistant WebSocket server for tests.
// It speaks the auth handshake, get_states and call_service, and applies
// helper service calls to its state table.
package hatest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *connWrapper) write(v interface{}) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.WriteJSON(v)
}

// EntityState is a Home Assistant entity state
type EntityState struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
}

// ServiceCall records a service call for verification
type ServiceCall struct {
	Timestamp   time.Time
	Domain      string
	Service     string
	ServiceData map[string]interface{}
}

// EntityID returns the target entity of the call
func (c ServiceCall) EntityID() string {
	id, _ := c.ServiceData["entity_id"].(string)
	return id
}

type message struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *resultError    `json:"error,omitempty"`
	Version string          `json:"ha_version,omitempty"`
}

type resultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type request struct {
	ID          int                    `json:"id"`
	Type        string                 `json:"type"`
	AccessToken string                 `json:"access_token,omitempty"`
	Domain      string                 `json:"domain,omitempty"`
	Service     string                 `json:"service,omitempty"`
	ServiceData map[string]interface{} `json:"service_data,omitempty"`
}

// Server simulates a Home Assistant WebSocket API
type Server struct {
	srv   *httptest.Server
	token string

	statesMu sync.RWMutex
	states   map[string]*EntityState

	connsMu     sync.Mutex
	connections []*connWrapper
	accepted    int

	callsMu      sync.Mutex
	serviceCalls []ServiceCall
}

// NewServer starts a fake server accepting token
func NewServer(token string) *Server {
	s := &Server{
		token:  token,
		states: make(map[string]*EntityState),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	return s
}

// URL returns the WebSocket URL of the server
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/websocket"
}

// Close drops every connection and stops the server
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

// DropConnections closes every open connection, as a Home Assistant restart would
func (s *Server) DropConnections() {
	s.connsMu.Lock()
	conns := s.connections
	s.connections = nil
	s.connsMu.Unlock()

	for _, w := range conns {
		w.conn.Close()
	}
}

// Accepted returns the number of authenticated connections so far
func (s *Server) Accepted() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return s.accepted
}

// SetState sets an entity state
func (s *Server) SetState(entityID, state string) {
	s.statesMu.Lock()
	defer s.statesMu.Unlock()

	now := time.Now()
	attrs := map[string]interface{}{}
	if old, ok := s.states[entityID]; ok {
		attrs = old.Attributes
	}
	s.states[entityID] = &EntityState{
		EntityID:    entityID,
		State:       state,
		Attributes:  attrs,
		LastChanged: now,
		LastUpdated: now,
	}
}

// GetState retrieves a state, nil when the entity does not exist
func (s *Server) GetState(entityID string) *EntityState {
	s.statesMu.RLock()
	defer s.statesMu.RUnlock()
	if st, ok := s.states[entityID]; ok {
		cp := *st
		return &cp
	}
	return nil
}

// StateOf returns the state string of an entity, "" when it does not exist
func (s *Server) StateOf(entityID string) string {
	if st := s.GetState(entityID); st != nil {
		return st.State
	}
	return ""
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	wrapper := &connWrapper{conn: conn}
	defer func() {
		s.connsMu.Lock()
		for i, c := range s.connections {
			if c == wrapper {
				s.connections = append(s.connections[:i], s.connections[i+1:]...)
				break
			}
		}
		s.connsMu.Unlock()
		conn.Close()
	}()

	wrapper.write(message{Type: "auth_required", Version: "2025.6.0"})

	var auth request
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth.Type != "auth" || auth.AccessToken != s.token {
		wrapper.write(message{Type: "auth_invalid"})
		return
	}

	s.connsMu.Lock()
	s.connections = append(s.connections, wrapper)
	s.accepted++
	s.connsMu.Unlock()
	wrapper.write(message{Type: "auth_ok", Version: "2025.6.0"})

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		switch req.Type {
		case "get_states":
			s.handleGetStates(wrapper, req)
		case "call_service":
			s.handleCallService(wrapper, req)
		default:
			success := false
			wrapper.write(message{
				ID:      req.ID,
				Type:    "result",
				Success: &success,
				Error:   &resultError{Code: "unknown_command", Message: "Unknown command."},
			})
		}
	}
}

func (s *Server) handleGetStates(wrapper *connWrapper, req request) {
	s.statesMu.RLock()
	states := make([]*EntityState, 0, len(s.states))
	for _, st := range s.states {
		states = append(states, st)
	}
	data, _ := json.Marshal(states)
	s.statesMu.RUnlock()

	success := true
	wrapper.write(message{ID: req.ID, Type: "result", Success: &success, Result: data})
}

// handleCallService applies helper services. Calls against entities that do
// not exist fail like they do in Home Assistant.
func (s *Server) handleCallService(wrapper *connWrapper, req request) {
	s.callsMu.Lock()
	s.serviceCalls = append(s.serviceCalls, ServiceCall{
		Timestamp:   time.Now(),
		Domain:      req.Domain,
		Service:     req.Service,
		ServiceData: req.ServiceData,
	})
	s.callsMu.Unlock()

	call := ServiceCall{Domain: req.Domain, Service: req.Service, ServiceData: req.ServiceData}
	entityID := call.EntityID()
	if s.GetState(entityID) == nil {
		success := false
		wrapper.write(message{
			ID:      req.ID,
			Type:    "result",
			Success: &success,
			Error:   &resultError{Code: "not_found", Message: fmt.Sprintf("Entity %s not found", entityID)},
		})
		return
	}

	switch req.Domain {
	case "input_boolean":
		newState := "off"
		if req.Service == "turn_on" {
			newState = "on"
		}
		s.SetState(entityID, newState)
	case "input_number":
		if value, ok := req.ServiceData["value"].(float64); ok {
			s.SetState(entityID, strconv.FormatFloat(value, 'f', 1, 64))
		}
	case "input_text":
		if value, ok := req.ServiceData["value"].(string); ok {
			s.SetState(entityID, value)
		}
	}

	success := true
	wrapper.write(message{ID: req.ID, Type: "result", Success: &success})
}

// ServiceCalls returns all service calls since the last clear
func (s *Server) ServiceCalls() []ServiceCall {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	return append([]ServiceCall(nil), s.serviceCalls...)
}

// ClearServiceCalls resets the service call log
func (s *Server) ClearServiceCalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	s.serviceCalls = nil
}

// FindServiceCall returns the most recent call matching domain, service and
// entity; an empty entityID matches any entity
func (s *Server) FindServiceCall(domain, service, entityID string) *ServiceCall {
	calls := s.ServiceCalls()
	for i := len(calls) - 1; i >= 0; i-- {
		call := calls[i]
		if call.Domain != domain || call.Service != service {
			continue
		}
		if entityID == "" || call.EntityID() == entityID {
			return &call
		}
	}
	return nil
}

// CountServiceCalls counts the calls of one service
func (s *Server) CountServiceCalls(domain, service string) int {
	count := 0
	for _, call := range s.ServiceCalls() {
		if call.Domain == domain && call.Service == service {
			count++
		}
	}
	return count
}
