package session

import (
	"fmt"
	"sync"

	psdp "github.com/pion/sdp/v3"
	"github.com/sirupsen/logrus"

	"github.com/bluenviron/rtpaac/pkg/factory"
	"github.com/bluenviron/rtpaac/pkg/metrics"
)

type sessionKey struct {
	payloadType uint8
	direction   Direction
}

// Manager keeps at most one session for each payload type and direction.
type Manager struct {
	// codec registry.
	Registry *factory.Registry

	// logger (optional).
	// It defaults to the standard logger.
	Log logrus.FieldLogger

	// metrics (optional).
	Metrics *metrics.Metrics

	mutex    sync.Mutex
	sessions map[sessionKey]*Session
}

// Open creates a session.
// Fields of the configuration that are not provided are filled with the ones of the manager.
func (m *Manager) Open(conf Config) (*Session, error) {
	if conf.Format == nil {
		return nil, fmt.Errorf("Format not provided")
	}
	if conf.Registry == nil {
		conf.Registry = m.Registry
	}
	if conf.Log == nil {
		conf.Log = m.Log
	}
	if conf.Metrics == nil {
		conf.Metrics = m.Metrics
	}

	key := sessionKey{
		payloadType: conf.Format.PayloadTyp,
		direction:   conf.Direction,
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.sessions == nil {
		m.sessions = make(map[sessionKey]*Session)
	}

	if existing, ok := m.sessions[key]; ok && !existing.IsClosed() {
		return nil, fmt.Errorf("a %v session with payload type %d already exists",
			conf.Direction, conf.Format.PayloadTyp)
	}

	s, err := New(conf)
	if err != nil {
		return nil, err
	}

	m.sessions[key] = s
	return s, nil
}

// Accept negotiates a media description offered by a remote party, creates
// a session with the selected format and returns the media description of the answer.
// The Format field of the configuration is filled with the selected format.
func (m *Manager) Accept(
	offer *psdp.MediaDescription,
	port int,
	conf Config,
) (*Session, *psdp.MediaDescription, error) {
	if m.Registry == nil {
		return nil, nil, fmt.Errorf("Registry not provided")
	}

	answer, f, err := m.Registry.Negotiator().Answer(offer, port)
	if err != nil {
		return nil, nil, err
	}

	conf.Format = f

	s, err := m.Open(conf)
	if err != nil {
		return nil, nil, err
	}

	return s, answer, nil
}

// Get returns the session with the given payload type and direction.
func (m *Manager) Get(payloadType uint8, direction Direction) (*Session, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, ok := m.sessions[sessionKey{payloadType: payloadType, direction: direction}]
	if !ok || s.IsClosed() {
		return nil, false
	}
	return s, true
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	n := 0
	for _, s := range m.sessions {
		if !s.IsClosed() {
			n++
		}
	}
	return n
}

// Close closes a session and removes it from the manager.
func (m *Manager) Close(s *Session) error {
	m.mutex.Lock()
	key := sessionKey{payloadType: s.Format().PayloadTyp, direction: s.Direction()}
	if m.sessions[key] == s {
		delete(m.sessions, key)
	}
	m.mutex.Unlock()

	return s.Close()
}

// CloseAll closes all sessions.
func (m *Manager) CloseAll() {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = nil
	m.mutex.Unlock()

	for _, s := range sessions {
		if !s.IsClosed() {
			s.Close() //nolint:errcheck
		}
	}
}
