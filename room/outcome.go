package room

import "github.com/wfunc/undercover/models"

// Event names what an action changed; the gateway pushes it to clients.
type Event string

const (
	EventRoomCreated          Event = "room-created"
	EventPlayerJoined         Event = "player-joined"
	EventPlayerRejoined       Event = "player-rejoined"
	EventPlayerLeft           Event = "player-left"
	EventPlayerDisconnected   Event = "player-disconnected"
	EventGameStarted          Event = "game-started"
	EventDescriptionSubmitted Event = "description-submitted"
	EventVoteCast             Event = "vote-cast"
	EventVoteConflict         Event = "vote-conflict"
	EventPlayerEliminated     Event = "player-eliminated"
	EventGameEnded            Event = "game-ended"
	EventGameReset            Event = "game-reset"
	EventWordSetterChanged    Event = "word-setter-changed"
	EventWordSet              Event = "word-set"
)

// Conflict 平票信息：无人出局，本轮重新投票
type Conflict struct {
	PlayerIDs []string       `json:"playerIds"`
	Names     []string       `json:"names"`
	Count     int            `json:"count"`
	Counts    map[string]int `json:"counts"`
}

// Outcome describes the effect of one action on a room.
type Outcome struct {
	Event      Event         `json:"event"`
	PlayerID   string        `json:"playerId,omitempty"`
	NewHost    string        `json:"newHost,omitempty"`
	RoundEnd   bool          `json:"roundEnd,omitempty"`
	VoteDone   bool          `json:"voteDone,omitempty"`
	Eliminated string        `json:"eliminated,omitempty"`
	Conflict   *Conflict     `json:"conflict,omitempty"`
	Winner     models.Winner `json:"winner,omitempty"`
	Destroyed  bool          `json:"destroyed,omitempty"`

	// State is the room as the action left it, snapshotted under the same
	// lock, so its Version orders outcomes of one room.
	State *models.RoomState `json:"-"`
}

// settle picks the most significant event once the status advance is done.
func (o *Outcome) settle(fallback Event) {
	switch {
	case o.Winner != models.WinnerNone:
		o.Event = EventGameEnded
	case o.Conflict != nil:
		o.Event = EventVoteConflict
	case o.Eliminated != "":
		o.Event = EventPlayerEliminated
	default:
		o.Event = fallback
	}
}
