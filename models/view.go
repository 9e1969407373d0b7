package models

// PlayerView is the broadcast-safe shape of a Player. Word and IsUndercover
// are only filled for the viewing player; the session reference never leaves.
type PlayerView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsHost       bool   `json:"isHost"`
	Connected    bool   `json:"connected"`
	IsUndercover *bool  `json:"isUndercover,omitempty"`
	Word         string `json:"word,omitempty"`
	IsEliminated bool   `json:"isEliminated"`
	InTurn       bool   `json:"inTurn"`
	IsWordSetter bool   `json:"isWordSetter"`
	HasDescribed bool   `json:"hasDescribed"`
	HasVoted     bool   `json:"hasVoted"`
}

// RoomView is what one recipient is allowed to see of a room.
type RoomView struct {
	Code            string       `json:"code"`
	Version         uint64       `json:"version"`
	Viewer          string       `json:"viewer"`
	Players         []PlayerView `json:"players"`
	Phase           Phase        `json:"phase"`
	Round           int          `json:"round"`
	MaxPlayers      int          `json:"maxPlayers"`
	UndercoverCount int          `json:"undercoverCount"`
	Mode            Mode         `json:"mode"`
	Locked          bool         `json:"locked"`
	Winner          Winner       `json:"winner,omitempty"`
	CivilianWord    string       `json:"civilianWord,omitempty"`
	UndercoverWord  string       `json:"undercoverWord,omitempty"`
	Descriptions    RoundLedger  `json:"descriptions"`
	Votes           RoundLedger  `json:"votes"`
}

// ProjectPlayers strips secrets of everyone but viewerID. An empty viewerID
// yields a fully anonymous list.
func ProjectPlayers(players []Player, viewerID string) []PlayerView {
	views := make([]PlayerView, 0, len(players))
	for _, p := range players {
		v := PlayerView{
			ID:           p.ID,
			Name:         p.Name,
			IsHost:       p.IsHost,
			Connected:    p.Connected,
			IsEliminated: p.IsEliminated,
			InTurn:       p.InTurn,
			IsWordSetter: p.IsWordSetter,
		}
		if viewerID != "" && p.ID == viewerID {
			undercover := p.IsUndercover
			v.IsUndercover = &undercover
			v.Word = p.Word
		}
		views = append(views, v)
	}
	return views
}

// ProjectRoom builds the view of s for viewerID.
//
// Descriptions are public. Votes of the round still being voted stay hidden
// (only HasVoted is shown) until the round resolves. The room's word pair is
// visible to the word-setter, and to everyone once the game has ended.
func ProjectRoom(s *RoomState, viewerID string) RoomView {
	view := RoomView{
		Code:            s.Code,
		Version:         s.Version,
		Viewer:          viewerID,
		Players:         ProjectPlayers(s.Players, viewerID),
		Phase:           s.Phase,
		Round:           s.Round,
		MaxPlayers:      s.Settings.MaxPlayers,
		UndercoverCount: s.Settings.UndercoverCount,
		Mode:            s.Settings.Mode,
		Locked:          s.Settings.Password != "",
		Winner:          s.Winner,
		Descriptions:    s.Descriptions.Clone(),
		Votes:           make(RoundLedger),
	}

	for i := range view.Players {
		id := view.Players[i].ID
		_, view.Players[i].HasDescribed = s.Descriptions[s.Round][id]
		_, view.Players[i].HasVoted = s.Votes[s.Round][id]
	}

	for round, votes := range s.Votes.Clone() {
		if round < s.Round || s.Phase == PhaseResults {
			view.Votes[round] = votes
		}
	}

	viewer, ok := s.Player(viewerID)
	if s.Phase == PhaseResults || (ok && viewer.IsWordSetter) {
		view.CivilianWord = s.CivilianWord
		view.UndercoverWord = s.UndercoverWord
	}
	return view
}
