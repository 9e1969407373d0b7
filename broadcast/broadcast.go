// broadcast/broadcast.go
package broadcast

import (
	"sync"

	"github.com/wfunc/undercover/logger"
	"github.com/wfunc/undercover/models"
	"github.com/wfunc/undercover/room"
	"github.com/wfunc/undercover/session"
)

// EventRoomsUpdated 推送给大厅中（未进入房间）的连接
const EventRoomsUpdated = "rooms-updated"

// Push 是房间事件推送的载荷，Room 已按接收者过滤
type Push struct {
	Room    models.RoomView `json:"room"`
	Outcome room.Outcome    `json:"outcome"`
}

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(state *models.RoomState, outcome room.Outcome) int
	BroadcastToLobby(rooms []models.RoomSummary) int
	Forget(code string)
}

// roomFeed 串行化同一房间的推送，并记住已推送的最新状态
type roomFeed struct {
	mu     sync.Mutex
	latest *models.RoomState
}

// 基于会话的广播器：每个在线玩家收到自己的视图
type RoomBroadcaster struct {
	sessionManager *session.Manager

	mu    sync.Mutex
	feeds map[string]*roomFeed
}

func NewRoomBroadcaster(sessionManager *session.Manager) *RoomBroadcaster {
	return &RoomBroadcaster{
		sessionManager: sessionManager,
		feeds:          make(map[string]*roomFeed),
	}
}

func (b *RoomBroadcaster) feed(code string) *roomFeed {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, ok := b.feeds[code]
	if !ok {
		f = &roomFeed{}
		b.feeds[code] = f
	}
	return f
}

// Forget drops the push history of a room that no longer exists.
func (b *RoomBroadcaster) Forget(code string) {
	b.mu.Lock()
	delete(b.feeds, code)
	b.mu.Unlock()
}

// BroadcastToRoom sends every connected player their own projection of
// state. It returns how many sends succeeded.
//
// Pushes of one room go out one at a time and their Version never goes
// down: an outcome that lost the race to a newer one is delivered with the
// newer state instead of its own.
func (b *RoomBroadcaster) BroadcastToRoom(state *models.RoomState, outcome room.Outcome) int {
	f := b.feed(state.Code)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest != nil && f.latest.Version > state.Version {
		state = f.latest
	} else {
		f.latest = state
	}
	if outcome.Destroyed {
		defer b.Forget(state.Code)
	}

	sent := 0
	for _, p := range state.Players {
		if !p.Connected || p.SessionID == "" {
			continue
		}
		s, ok := b.sessionManager.Get(p.SessionID)
		if !ok {
			continue
		}
		// 会话已离开或改绑到别处
		if playerID, code := s.Binding(); playerID != p.ID || code != state.Code {
			continue
		}
		push := Push{Room: models.ProjectRoom(state, p.ID), Outcome: outcome}
		if err := s.Send(string(outcome.Event), 0, push); err != nil {
			// 发送失败由读循环发现并断开
			logger.Log.Debugw("push failed", "room", state.Code, "player", p.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// BroadcastToLobby sends the room list to connections not bound to a room.
func (b *RoomBroadcaster) BroadcastToLobby(rooms []models.RoomSummary) int {
	sent := 0
	for _, s := range b.sessionManager.All() {
		if _, code := s.Binding(); code != "" {
			continue
		}
		if err := s.Send(EventRoomsUpdated, 0, rooms); err != nil {
			continue
		}
		sent++
	}
	return sent
}
