package room

import (
	"crypto/subtle"

	"github.com/wfunc/undercover/models"
)

// Join 添加一个玩家到房间，只允许在等待阶段加入
func (r *Room) Join(p models.Player, password string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{}, ErrRoomNotFound
	}
	if r.find(p.ID) != nil {
		return Outcome{}, ErrPlayerExists
	}
	if len(r.players) >= r.settings.MaxPlayers {
		return Outcome{}, ErrRoomFull
	}
	if r.settings.Password != "" && subtle.ConstantTimeCompare([]byte(r.settings.Password), []byte(password)) != 1 {
		return Outcome{}, ErrInvalidPassword
	}
	if r.phase() != models.PhaseWaiting {
		return Outcome{}, ErrGameAlreadyStarted
	}

	p.IsHost = false
	p.Connected = p.SessionID != ""
	p.ClearRole()
	r.players = append(r.players, &p)
	r.touch()
	return r.emit(Outcome{Event: EventPlayerJoined, PlayerID: p.ID}), nil
}

// Rejoin rebinds the transport session of a known player. Nothing else about
// the player changes, so calling it again with the same id is harmless.
func (r *Room) Rejoin(playerID, sessionID string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{}, ErrRoomNotFound
	}
	p := r.find(playerID)
	if p == nil {
		return Outcome{}, ErrUnknownPlayer
	}
	p.SessionID = sessionID
	p.Connected = sessionID != ""
	r.touch()
	return r.emit(Outcome{Event: EventPlayerRejoined, PlayerID: playerID}), nil
}

// Detach marks a player offline after a transport drop. The player keeps
// their seat; a session that was already replaced by a rejoin is ignored.
func (r *Room) Detach(playerID, sessionID string) (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.find(playerID)
	if r.closed || p == nil || p.SessionID != sessionID {
		return Outcome{}, false
	}
	p.SessionID = ""
	p.Connected = false
	r.touch()
	return r.emit(Outcome{Event: EventPlayerDisconnected, PlayerID: playerID}), true
}

// Leave 从房间移除一个玩家。
//
// An emptied room is closed and reported as Destroyed; the caller releases
// it from the Manager. A departing host hands the flag to the first player
// left. An active player leaving mid-game has their ballot, and every ballot
// naming them, retracted; then the game advances as if they had just acted.
// Word-setters hold no turn or vote, so they never trigger that advance.
func (r *Room) Leave(playerID string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{}, ErrRoomNotFound
	}
	idx := r.indexOf(playerID)
	if idx < 0 {
		return Outcome{}, ErrUnknownPlayer
	}
	gone := r.players[idx]
	r.players = append(r.players[:idx], r.players[idx+1:]...)
	r.touch()

	o := Outcome{PlayerID: playerID}
	if len(r.players) == 0 {
		r.closed = true
		o.Event = EventPlayerLeft
		o.Destroyed = true
		return r.emit(o), nil
	}

	if gone.IsHost {
		r.players[0].IsHost = true
		o.NewHost = r.players[0].ID
	}

	phase := r.phase()
	if gone.IsWordSetter && phase == models.PhaseWaiting {
		r.clearCustomPair()
	}

	if gone.Active() && (phase == models.PhaseDescription || phase == models.PhaseVoting) {
		r.ledger.RetractVotes(r.round, playerID)
		if !r.checkWinner(&o) {
			r.advance(&o)
		}
	}

	o.settle(EventPlayerLeft)
	return r.emit(o), nil
}
