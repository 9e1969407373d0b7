package persistence

import (
	"context"
	"sync"

	"github.com/wfunc/undercover/models"
)

const defaultMemoryCapacity = 500

// Memory keeps the most recent records in a ring. Used when no database is
// configured and in tests.
type Memory struct {
	records []models.GameRecord
	next    int
	full    bool
	mutex   sync.RWMutex
}

func NewMemory(capacity int) *Memory {
	if capacity < 1 {
		capacity = defaultMemoryCapacity
	}
	return &Memory{records: make([]models.GameRecord, capacity)}
}

func (m *Memory) SaveGameRecord(_ context.Context, record models.GameRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.records[m.next] = record
	m.next = (m.next + 1) % len(m.records)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

func (m *Memory) RecentGames(_ context.Context, limit int) ([]models.GameRecord, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	size := m.next
	if m.full {
		size = len(m.records)
	}
	limit = min(limit, size)

	out := make([]models.GameRecord, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.records)) % len(m.records)
		out = append(out, m.records[idx])
	}
	return out, nil
}

func (m *Memory) WinCounts(_ context.Context) (map[models.Winner]int64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	size := m.next
	if m.full {
		size = len(m.records)
	}
	out := make(map[models.Winner]int64)
	for _, r := range m.records[:size] {
		out[r.Winner]++
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
