// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/undercover/network"
	"golang.org/x/time/rate"
)

// Session 是一条连接在服务端的状态。PlayerID/RoomCode 在加入房间后绑定
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	playerID   string
	roomCode   string
	lastActive time.Time
	limiter    *rate.Limiter
	mutex      sync.RWMutex
}

// NewSession creates a session with a fresh uuid and an action limiter.
func NewSession(conn network.Connection, perSecond float64, burst int) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (s *Session) GetID() string {
	return s.ID
}

// Bind records which player and room this connection acts for.
func (s *Session) Bind(playerID, roomCode string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.playerID = playerID
	s.roomCode = roomCode
}

func (s *Session) Unbind() {
	s.Bind("", "")
}

// Binding returns the bound player and room, empty when unbound.
func (s *Session) Binding() (playerID, roomCode string) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.playerID, s.roomCode
}

// Allow 消耗一个令牌；超出速率时返回 false
func (s *Session) Allow() bool {
	return s.limiter.Allow()
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Send(event string, ack uint64, data any) error {
	return s.Conn.Send(event, ack, data)
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}

// GetByRoom returns the sessions currently bound to roomCode.
func (m *Manager) GetByRoom(roomCode string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if _, code := session.Binding(); code == roomCode {
			result = append(result, session)
		}
	}
	return result
}
