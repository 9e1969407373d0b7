package models

// Phase 房间所处的游戏阶段
type Phase string

const (
	PhaseWaiting     Phase = "waiting"
	PhaseDescription Phase = "description"
	PhaseVoting      Phase = "voting"
	PhaseResults     Phase = "results"
)

// Mode decides whether descriptions are collected by the server (online)
// or spoken aloud at the table (offline, vote-only rounds).
type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

type Winner string

const (
	WinnerNone       Winner = ""
	WinnerCivilian   Winner = "civilian"
	WinnerUndercover Winner = "undercover"
)

// Settings 房间配置，创建时确定
type Settings struct {
	MaxPlayers      int    `json:"maxPlayers"`
	UndercoverCount int    `json:"undercoverCount"`
	Password        string `json:"-"`
	Mode            Mode   `json:"mode"`
}

// Player 房间中的玩家。ID 由客户端生成，断线重连后保持不变。
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsHost    bool   `json:"isHost"`
	SessionID string `json:"-"`
	Connected bool   `json:"connected"`

	IsUndercover bool   `json:"isUndercover"`
	Word         string `json:"word"`
	IsEliminated bool   `json:"isEliminated"`
	InTurn       bool   `json:"inTurn"`
	IsWordSetter bool   `json:"isWordSetter"`
}

// Active reports whether the player still occupies a turn and a vote.
func (p *Player) Active() bool {
	return !p.IsEliminated && !p.IsWordSetter
}

// ClearRole drops everything dealt by a game. The word-setter flag is
// cleared too, since a reset returns the room to a blank lobby.
func (p *Player) ClearRole() {
	p.IsUndercover = false
	p.Word = ""
	p.IsEliminated = false
	p.InTurn = false
	p.IsWordSetter = false
}
