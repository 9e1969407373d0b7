// room/room.go
package room

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/undercover/models"
	"github.com/wfunc/undercover/state"
	"github.com/wfunc/undercover/words"
)

// Room 是游戏房间的核心结构。所有读写都在 mu 内完成（单写者），
// 外部只能拿到 Snapshot 的深拷贝。
type Room struct {
	code     string
	settings models.Settings
	players  []*models.Player // 按加入顺序，决定发言顺序
	machine  *state.BaseStateMachine
	ledger   *Ledger

	round          int
	civilianWord   string
	undercoverWord string
	customPair     *words.Pair
	winner         models.Winner

	catalog   *words.Catalog
	rng       *rand.Rand
	now       func() time.Time
	closed    bool
	versions  *atomic.Uint64 // 管理器共享的计数器，房间号复用后版本号也不会倒退
	version   uint64
	createdAt time.Time
	updatedAt time.Time

	mu sync.Mutex
}

func newRoom(code string, host models.Player, settings models.Settings, catalog *words.Catalog, rng *rand.Rand, now func() time.Time, versions *atomic.Uint64, observer Observer) *Room {
	r := &Room{
		code:     code,
		settings: settings,
		ledger:   newLedger(),
		round:    -1,
		versions: versions,
		version:  versions.Add(1),
		catalog:  catalog,
		rng:      rng,
		now:      now,
	}
	r.createdAt = now()
	r.updatedAt = r.createdAt

	r.machine = state.NewGameMachine(func() models.Mode { return r.settings.Mode })
	if observer != nil {
		r.machine.OnChange(func(from, to models.Phase) {
			observer.PhaseChanged(code, from, to)
		})
	}

	host.IsHost = true
	host.Connected = host.SessionID != ""
	host.ClearRole()
	r.players = append(r.players, &host)
	return r
}

// GetID 返回房间号
func (r *Room) GetID() string {
	return r.code
}

// Phase returns the current phase.
func (r *Room) Phase() models.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.GetCurrentState()
}

// Snapshot returns a deep copy of the full room state, secrets included.
func (r *Room) Snapshot() *models.RoomState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() *models.RoomState {
	s := &models.RoomState{
		Code:           r.code,
		Players:        make([]models.Player, 0, len(r.players)),
		Phase:          r.machine.GetCurrentState(),
		Round:          r.round,
		CivilianWord:   r.civilianWord,
		UndercoverWord: r.undercoverWord,
		Settings:       r.settings,
		Winner:         r.winner,
		Version:        r.version,
		UpdatedAt:      r.updatedAt,
	}
	for _, p := range r.players {
		s.Players = append(s.Players, *p)
	}
	s.Descriptions, s.Votes = r.ledger.snapshot()
	return s
}

// Summary is the lobby-listing projection of the room.
func (r *Room) Summary() models.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	sum := models.RoomSummary{
		Code:           r.code,
		AvailableSlots: max(r.settings.MaxPlayers-len(r.players), 0),
		Players:        len(r.players),
		Phase:          r.machine.GetCurrentState(),
		Mode:           r.settings.Mode,
		Locked:         r.settings.Password != "",
	}
	if host := r.host(); host != nil {
		sum.HostName = host.Name
	}
	return sum
}

// closeIfIdle reports whether nobody is connected and nothing happened since
// cutoff. An idle room is closed on the spot so late joins see it as gone.
func (r *Room) closeIfIdle(cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return true
	}
	for _, p := range r.players {
		if p.Connected {
			return false
		}
	}
	if r.updatedAt.After(cutoff) {
		return false
	}
	r.closed = true
	return true
}

// --- 内部工具，调用方须持有 mu ---

// touch 记录一次修改：版本号单调递增
func (r *Room) touch() {
	r.updatedAt = r.now()
	r.version = r.versions.Add(1)
}

// emit attaches the state the mutation left behind, taken before the lock
// is released.
func (r *Room) emit(o Outcome) Outcome {
	o.State = r.snapshotLocked()
	return o
}

func (r *Room) find(id string) *models.Player {
	for _, p := range r.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) indexOf(id string) int {
	for i, p := range r.players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (r *Room) host() *models.Player {
	for _, p := range r.players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

func (r *Room) wordSetter() *models.Player {
	for _, p := range r.players {
		if p.IsWordSetter {
			return p
		}
	}
	return nil
}

func (r *Room) activePlayers() []*models.Player {
	var active []*models.Player
	for _, p := range r.players {
		if p.Active() {
			active = append(active, p)
		}
	}
	return active
}

func (r *Room) phase() models.Phase {
	return r.machine.GetCurrentState()
}

// changePhase panics on a transition the phase graph does not allow: the
// guards in front of every mutation make that a bug, not a user error.
func (r *Room) changePhase(to models.Phase) {
	from := r.machine.GetCurrentState()
	if err := r.machine.ChangeState(to); err != nil {
		panic(fmt.Sprintf("room %s: %s -> %s: %v", r.code, from, to, err))
	}
}
