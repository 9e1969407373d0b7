// models/models.go
package models

import (
	"time"
)

// RoundLedger maps round index -> player id -> value (description text or vote target).
type RoundLedger map[int]map[string]string

// Clone returns a deep copy.
func (l RoundLedger) Clone() RoundLedger {
	out := make(RoundLedger, len(l))
	for round, entries := range l {
		m := make(map[string]string, len(entries))
		for k, v := range entries {
			m[k] = v
		}
		out[round] = m
	}
	return out
}

// RoomState 房间状态快照（深拷贝），包含所有秘密字段，只在服务端内部流转
type RoomState struct {
	Code           string      `json:"code"`
	Players        []Player    `json:"players"`
	Phase          Phase       `json:"phase"`
	Round          int         `json:"round"`
	CivilianWord   string      `json:"civilianWord"`
	UndercoverWord string      `json:"undercoverWord"`
	Settings       Settings    `json:"settings"`
	Winner         Winner      `json:"winner"`
	Descriptions   RoundLedger `json:"descriptions"`
	Votes          RoundLedger `json:"votes"`
	Version        uint64      `json:"version"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Player returns the player with the given id.
func (s *RoomState) Player(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// RoomSummary 大厅列表项
type RoomSummary struct {
	Code           string `json:"code"`
	HostName       string `json:"hostName"`
	AvailableSlots int    `json:"availableSlots"`
	Players        int    `json:"players"`
	Phase          Phase  `json:"phase"`
	Mode           Mode   `json:"mode"`
	Locked         bool   `json:"locked"`
}

// GameRecord 对局记录，游戏结束时归档
type GameRecord struct {
	RoomCode       string          `json:"room_code"`
	Mode           Mode            `json:"mode"`
	CivilianWord   string          `json:"civilian_word"`
	UndercoverWord string          `json:"undercover_word"`
	Winner         Winner          `json:"winner"`
	Rounds         int             `json:"rounds"`
	Players        []PlayerOutcome `json:"players"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// PlayerOutcome 玩家在一局中的结果
type PlayerOutcome struct {
	PlayerID   string `json:"player_id"`
	Name       string `json:"name"`
	Undercover bool   `json:"undercover"`
	WordSetter bool   `json:"word_setter"`
	Eliminated bool   `json:"eliminated"`
	Won        bool   `json:"won"`
}

// NewGameRecord builds the archive entry for a room that reached results.
func NewGameRecord(s *RoomState) GameRecord {
	rec := GameRecord{
		RoomCode:       s.Code,
		Mode:           s.Settings.Mode,
		CivilianWord:   s.CivilianWord,
		UndercoverWord: s.UndercoverWord,
		Winner:         s.Winner,
		Rounds:         s.Round + 1,
		Players:        make([]PlayerOutcome, 0, len(s.Players)),
		FinishedAt:     s.UpdatedAt,
	}
	for _, p := range s.Players {
		won := false
		if !p.IsWordSetter {
			won = (p.IsUndercover && s.Winner == WinnerUndercover) || (!p.IsUndercover && s.Winner == WinnerCivilian)
		}
		rec.Players = append(rec.Players, PlayerOutcome{
			PlayerID:   p.ID,
			Name:       p.Name,
			Undercover: p.IsUndercover,
			WordSetter: p.IsWordSetter,
			Eliminated: p.IsEliminated,
			Won:        won,
		})
	}
	return rec
}
