package room

import (
	crand "crypto/rand"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/undercover/models"
	"github.com/wfunc/undercover/words"
)

// --- 房间管理器 ---

// Manager 管理所有房间：创建时登记，房间清空时移除
type Manager struct {
	rooms    map[string]*Room
	catalog  *words.Catalog
	observer Observer
	newRand  func() *rand.Rand
	now      func() time.Time
	versions atomic.Uint64
	mutex    sync.RWMutex
}

type Option func(*Manager)

func WithCatalog(c *words.Catalog) Option {
	return func(m *Manager) { m.catalog = c }
}

func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// WithRand overrides the per-room random source, mainly for tests.
func WithRand(fn func() *rand.Rand) Option {
	return func(m *Manager) { m.newRand = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(m *Manager) { m.now = fn }
}

func seededRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewChaCha8(seed))
}

// NewRoomManager 创建一个新的房间管理器
func NewRoomManager(opts ...Option) *Manager {
	m := &Manager{
		rooms:   make(map[string]*Room),
		catalog: words.Default(),
		newRand: seededRand,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateRoom registers a room under code with host as its only player. An
// empty code gets a fresh one generated.
func (m *Manager) CreateRoom(code string, host models.Player, settings models.Settings) (*Room, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if code == "" {
		for {
			code = GenerateCode()
			if _, exists := m.rooms[code]; !exists {
				break
			}
		}
	} else if _, exists := m.rooms[code]; exists {
		return nil, ErrRoomCodeConflict
	}

	room := newRoom(code, host, settings, m.catalog, m.newRand(), m.now, &m.versions, m.observer)
	m.rooms[code] = room
	return room, nil
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(code string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[code]
	return room, exists
}

// Release removes r if it is still the room registered under its code. A
// newer room that reused the code is left alone.
func (m *Manager) Release(r *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if cur, exists := m.rooms[r.code]; exists && cur == r {
		delete(m.rooms, r.code)
	}
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

func (m *Manager) all() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// ListRooms is the lobby view, sorted by code.
func (m *Manager) ListRooms() []models.RoomSummary {
	rooms := m.all()
	out := make([]models.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Sweep destroys rooms where nobody is connected and nothing happened for
// idleTimeout. It returns the removed codes.
func (m *Manager) Sweep(idleTimeout time.Duration) []string {
	cutoff := m.now().Add(-idleTimeout)

	var removed []string
	for _, r := range m.all() {
		if r.closeIfIdle(cutoff) {
			m.Release(r)
			removed = append(removed, r.code)
		}
	}
	sort.Strings(removed)
	return removed
}
