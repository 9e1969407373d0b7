package room

import (
	"github.com/wfunc/undercover/models"
	"github.com/wfunc/undercover/tally"
	"github.com/wfunc/undercover/words"
)

// StartGame deals words and roles. Only the host may start, and only from
// the waiting phase.
func (r *Room) StartGame(actorID string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{}, ErrRoomNotFound
	}
	actor := r.find(actorID)
	if actor == nil {
		return Outcome{}, ErrUnknownPlayer
	}
	if r.phase() != models.PhaseWaiting {
		return Outcome{}, ErrGameAlreadyStarted
	}
	if !actor.IsHost {
		return Outcome{}, ErrNotHost
	}

	setter := r.wordSetter()
	if setter != nil && r.customPair == nil {
		return Outcome{}, ErrWordNotSet
	}

	eligible := make([]*models.Player, 0, len(r.players))
	for _, p := range r.players {
		if !p.IsWordSetter {
			eligible = append(eligible, p)
		}
	}
	undercovers := r.settings.UndercoverCount
	if len(eligible) < 3 || len(eligible) < 2*undercovers+1 {
		return Outcome{}, ErrNotEnoughPlayers
	}

	var pair words.Pair
	if setter != nil {
		pair = *r.customPair
	} else {
		pair = r.catalog.Pick(r.rng)
	}

	// Fisher–Yates on a copy; roster order itself stays the turn order.
	shuffled := append([]*models.Player(nil), eligible...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := r.rng.IntN(i + 1)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	for i, p := range shuffled {
		p.IsUndercover = i < undercovers
		p.Word = pair.Civilian
		if p.IsUndercover {
			p.Word = pair.Undercover
		}
		p.IsEliminated = false
		p.InTurn = false
	}
	if setter != nil {
		setter.IsUndercover = false
		setter.Word = ""
		setter.IsEliminated = false
		setter.InTurn = false
	}

	r.civilianWord = pair.Civilian
	r.undercoverWord = pair.Undercover
	r.winner = models.WinnerNone
	r.round = 0
	r.ledger.Reset()

	if r.settings.Mode == models.ModeOffline {
		r.changePhase(models.PhaseVoting)
	} else {
		r.changePhase(models.PhaseDescription)
		r.assignTurn()
	}
	r.touch()
	return r.emit(Outcome{Event: EventGameStarted, PlayerID: actorID}), nil
}

// SubmitDescription records the in-turn player's description and passes the
// turn on. The last description of a round opens the vote.
func (r *Room) SubmitDescription(playerID, text string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{}, ErrRoomNotFound
	}
	p := r.find(playerID)
	if p == nil {
		return Outcome{}, ErrUnknownPlayer
	}
	if r.phase() != models.PhaseDescription {
		return Outcome{}, ErrInvalidPhase
	}
	if !p.Active() || !p.InTurn {
		return Outcome{}, ErrNotYourTurn
	}

	r.ledger.Describe(r.round, playerID, text)
	o := Outcome{PlayerID: playerID}
	r.advance(&o)
	o.settle(EventDescriptionSubmitted)
	r.touch()
	return r.emit(o), nil
}

// CastVote records voterID's ballot for the current round, replacing an
// earlier one. The ballot completing the round is tallied immediately.
func (r *Room) CastVote(voterID, targetID string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{}, ErrRoomNotFound
	}
	voter := r.find(voterID)
	if voter == nil {
		return Outcome{}, ErrUnknownPlayer
	}
	if r.phase() != models.PhaseVoting {
		return Outcome{}, ErrInvalidPhase
	}
	if !voter.Active() {
		return Outcome{}, ErrNotYourTurn
	}
	target := r.find(targetID)
	if target == nil || !target.Active() || target == voter {
		return Outcome{}, ErrInvalidTarget
	}

	r.ledger.Vote(r.round, voterID, targetID)
	o := Outcome{PlayerID: voterID}
	r.advance(&o)
	o.settle(EventVoteCast)
	r.touch()
	return r.emit(o), nil
}

// ResetGame returns the room to the lobby from any phase, keeping the roster
// and the host.
func (r *Room) ResetGame(actorID string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{}, ErrRoomNotFound
	}
	actor := r.find(actorID)
	if actor == nil {
		return Outcome{}, ErrUnknownPlayer
	}
	if !actor.IsHost {
		return Outcome{}, ErrNotHost
	}

	for _, p := range r.players {
		p.ClearRole()
	}
	r.round = -1
	r.civilianWord = ""
	r.undercoverWord = ""
	r.customPair = nil
	r.winner = models.WinnerNone
	r.ledger.Reset()
	r.changePhase(models.PhaseWaiting)
	r.touch()
	return r.emit(Outcome{Event: EventGameReset, PlayerID: actorID}), nil
}

// ToggleWordSetter flips targetID's word-setter flag. The host may toggle
// anyone; other players only themselves. At most one setter exists, and
// clearing the flag discards the pair they chose.
func (r *Room) ToggleWordSetter(actorID, targetID string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{}, ErrRoomNotFound
	}
	actor := r.find(actorID)
	target := r.find(targetID)
	if actor == nil || target == nil {
		return Outcome{}, ErrUnknownPlayer
	}
	if r.phase() != models.PhaseWaiting {
		return Outcome{}, ErrInvalidPhase
	}
	if actor != target && !actor.IsHost {
		return Outcome{}, ErrNotHost
	}

	if target.IsWordSetter {
		target.IsWordSetter = false
		r.clearCustomPair()
	} else {
		if r.wordSetter() != nil {
			return Outcome{}, ErrWordSetterConflict
		}
		target.IsWordSetter = true
	}
	r.touch()
	return r.emit(Outcome{Event: EventWordSetterChanged, PlayerID: targetID}), nil
}

// SetWord stores the word-setter's pair, bypassing the catalog.
func (r *Room) SetWord(actorID, civilian, undercover string) (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Outcome{}, ErrRoomNotFound
	}
	if r.find(actorID) == nil {
		return Outcome{}, ErrUnknownPlayer
	}
	if r.phase() != models.PhaseWaiting {
		return Outcome{}, ErrInvalidPhase
	}
	setter := r.wordSetter()
	if setter == nil {
		return Outcome{}, ErrNoWordSetter
	}
	if setter.ID != actorID {
		return Outcome{}, ErrNotWordSetter
	}
	pair, err := words.Custom(civilian, undercover)
	if err != nil {
		return Outcome{}, err
	}

	r.customPair = &pair
	r.civilianWord = pair.Civilian
	r.undercoverWord = pair.Undercover
	r.touch()
	return r.emit(Outcome{Event: EventWordSet, PlayerID: actorID}), nil
}

// --- 状态推进，调用方须持有 mu ---

func (r *Room) clearCustomPair() {
	r.customPair = nil
	r.civilianWord = ""
	r.undercoverWord = ""
}

// nextSpeaker is the first active player, in roster order, without a
// description this round.
func (r *Room) nextSpeaker() *models.Player {
	for _, p := range r.players {
		if p.Active() && !r.ledger.HasDescribed(r.round, p.ID) {
			return p
		}
	}
	return nil
}

// assignTurn gives the turn to nextSpeaker and takes it from everyone else.
func (r *Room) assignTurn() *models.Player {
	next := r.nextSpeaker()
	for _, p := range r.players {
		p.InTurn = p == next
	}
	return next
}

// advance moves the game forward after an action or a departure.
func (r *Room) advance(o *Outcome) {
	switch r.phase() {
	case models.PhaseDescription:
		if r.assignTurn() == nil {
			o.RoundEnd = true
			r.changePhase(models.PhaseVoting)
		}
	case models.PhaseVoting:
		r.resolveVotes(o)
	}
}

// resolveVotes tallies the round once every active player has voted.
func (r *Room) resolveVotes(o *Outcome) {
	active := r.activePlayers()
	voters := make(map[string]bool, len(active))
	order := make([]string, 0, len(active))
	for _, p := range active {
		voters[p.ID] = true
		order = append(order, p.ID)
	}

	ballots := r.ledger.Votes(r.round, voters)
	if len(ballots) < len(active) {
		return
	}
	o.VoteDone = true

	res := tally.Count(ballots, order)
	if res.Conflict() {
		names := make([]string, 0, len(res.Tied))
		for _, id := range res.Tied {
			names = append(names, r.find(id).Name)
		}
		o.Conflict = &Conflict{PlayerIDs: res.Tied, Names: names, Count: res.Max, Counts: res.Counts}
		r.ledger.ClearVotes(r.round)
		return
	}

	target := r.find(res.Target)
	if target == nil || !target.Active() {
		panic("room " + r.code + ": tally picked a player who cannot be eliminated: " + res.Target)
	}
	target.IsEliminated = true
	target.InTurn = false
	o.Eliminated = target.ID

	if r.checkWinner(o) {
		return
	}

	r.round++
	if r.settings.Mode == models.ModeOffline {
		r.changePhase(models.PhaseVoting)
		return
	}
	r.changePhase(models.PhaseDescription)
	r.assignTurn()
}

// checkWinner ends the game when no undercover is left, or when undercovers
// are at least as many as civilians.
func (r *Room) checkWinner(o *Outcome) bool {
	undercovers, civilians := 0, 0
	for _, p := range r.activePlayers() {
		if p.IsUndercover {
			undercovers++
		} else {
			civilians++
		}
	}

	switch {
	case undercovers == 0:
		r.winner = models.WinnerCivilian
	case undercovers >= civilians:
		r.winner = models.WinnerUndercover
	default:
		return false
	}

	for _, p := range r.players {
		p.InTurn = false
	}
	r.changePhase(models.PhaseResults)
	o.Winner = r.winner
	r.touch()
	return true
}
