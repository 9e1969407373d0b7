package room

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/undercover/models"
)

// forceRoles overrides the dealt roles so a test can script the outcome.
func forceRoles(r *Room, undercoverIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	undercover := make(map[string]bool, len(undercoverIDs))
	for _, id := range undercoverIDs {
		undercover[id] = true
	}
	for _, p := range r.players {
		if p.IsWordSetter {
			continue
		}
		p.IsUndercover = undercover[p.ID]
		p.Word = r.civilianWord
		if p.IsUndercover {
			p.Word = r.undercoverWord
		}
	}
}

func startScripted(t *testing.T, r *Room, undercoverIDs ...string) {
	t.Helper()
	host := r.Snapshot().Players[0].ID
	_, err := r.StartGame(host)
	require.NoError(t, err)
	forceRoles(r, undercoverIDs...)
}

func inTurn(s *models.RoomState) []string {
	var ids []string
	for _, p := range s.Players {
		if p.InTurn {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// describeAll lets every remaining speaker describe until the vote opens.
func describeAll(t *testing.T, r *Room) {
	t.Helper()
	for r.Phase() == models.PhaseDescription {
		speakers := inTurn(r.Snapshot())
		require.Len(t, speakers, 1)
		_, err := r.SubmitDescription(speakers[0], "about "+speakers[0])
		require.NoError(t, err)
	}
}

func vote(t *testing.T, r *Room, voter, target string) Outcome {
	t.Helper()
	o, err := r.CastVote(voter, target)
	require.NoError(t, err)
	return o
}

func TestStartGame_DealsRoles(t *testing.T) {
	settings := onlineSettings()
	settings.UndercoverCount = 2
	room := newTestRoom(t, newTestManager(t), settings, "a", "b", "c", "d", "e")

	o, err := room.StartGame("a")
	require.NoError(t, err)
	assert.Equal(t, EventGameStarted, o.Event)

	s := room.Snapshot()
	assert.Equal(t, models.PhaseDescription, s.Phase)
	assert.Equal(t, 0, s.Round)
	assert.Equal(t, "Cat", s.CivilianWord)
	assert.Equal(t, "Dog", s.UndercoverWord)

	undercovers := 0
	for _, p := range s.Players {
		if p.IsUndercover {
			undercovers++
			assert.Equal(t, "Dog", p.Word)
		} else {
			assert.Equal(t, "Cat", p.Word)
		}
		assert.False(t, p.IsEliminated)
	}
	assert.Equal(t, 2, undercovers)
	assert.Equal(t, []string{"a"}, inTurn(s))
}

func TestStartGame_Rejections(t *testing.T) {
	manager := newTestManager(t)

	small := newTestRoom(t, manager, onlineSettings(), "a", "b")
	_, err := small.StartGame("a")
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	settings := onlineSettings()
	settings.UndercoverCount = 2
	r, err := manager.CreateRoom("ROOM02", newPlayer("a"), settings)
	require.NoError(t, err)
	for _, id := range []string{"b", "c", "d"} {
		_, err := r.Join(newPlayer(id), "")
		require.NoError(t, err)
	}
	_, err = r.StartGame("a")
	assert.ErrorIs(t, err, ErrNotEnoughPlayers, "two undercovers need five players")

	_, err = r.StartGame("b")
	assert.ErrorIs(t, err, ErrNotHost)
	_, err = r.StartGame("ghost")
	assert.ErrorIs(t, err, ErrUnknownPlayer)

	_, err = r.Join(newPlayer("e"), "")
	require.NoError(t, err)
	_, err = r.StartGame("a")
	require.NoError(t, err)
	_, err = r.StartGame("a")
	assert.ErrorIs(t, err, ErrGameAlreadyStarted)
}

func TestStartGame_ShuffleReachesEveryPlayer(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d")

	const games = 200
	counts := make(map[string]int)
	for i := 0; i < games; i++ {
		_, err := room.StartGame("a")
		require.NoError(t, err)
		for _, p := range room.Snapshot().Players {
			if p.IsUndercover {
				counts[p.ID]++
			}
		}
		_, err = room.ResetGame("a")
		require.NoError(t, err)
	}

	total := 0
	for _, id := range []string{"a", "b", "c", "d"} {
		assert.Positive(t, counts[id], "player %s never drew the undercover word", id)
		total += counts[id]
	}
	assert.Equal(t, games, total)
}

func TestSubmitDescription_RoundOpensVote(t *testing.T) {
	rec := &phaseRecorder{}
	room := newTestRoom(t, newTestManager(t, WithObserver(rec)), onlineSettings(), "a", "b", "c")
	startScripted(t, room, "c")

	_, err := room.SubmitDescription("b", "too early")
	assert.ErrorIs(t, err, ErrNotYourTurn)

	o, err := room.SubmitDescription("a", "furry")
	require.NoError(t, err)
	assert.Equal(t, EventDescriptionSubmitted, o.Event)
	assert.False(t, o.RoundEnd)
	assert.Equal(t, []string{"b"}, inTurn(room.Snapshot()))

	_, err = room.SubmitDescription("b", "four legs")
	require.NoError(t, err)
	o, err = room.SubmitDescription("c", "pet")
	require.NoError(t, err)
	assert.True(t, o.RoundEnd)

	s := room.Snapshot()
	assert.Equal(t, models.PhaseVoting, s.Phase)
	assert.Empty(t, inTurn(s))
	assert.Equal(t, map[string]string{"a": "furry", "b": "four legs", "c": "pet"}, s.Descriptions[0])

	_, err = room.SubmitDescription("a", "again")
	assert.ErrorIs(t, err, ErrInvalidPhase)

	assert.Equal(t, []string{"waiting>description", "description>voting"}, rec.transitions)
}

func TestCastVote_Validation(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d")
	startScripted(t, room, "d")

	_, err := room.CastVote("a", "b")
	assert.ErrorIs(t, err, ErrInvalidPhase)

	describeAll(t, room)
	before := room.Snapshot()

	_, err = room.CastVote("a", "a")
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = room.CastVote("a", "ghost")
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = room.CastVote("ghost", "a")
	assert.ErrorIs(t, err, ErrUnknownPlayer)
	assert.Equal(t, before, room.Snapshot(), "rejected actions must not change the room")

	vote(t, room, "a", "b")
	o := vote(t, room, "a", "c")
	assert.Equal(t, EventVoteCast, o.Event)
	assert.False(t, o.VoteDone)
	assert.Equal(t, map[string]string{"a": "c"}, room.Snapshot().Votes[0])
}

func TestCastVote_TieStartsRevote(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c")
	startScripted(t, room, "c")
	describeAll(t, room)

	vote(t, room, "a", "b")
	vote(t, room, "b", "c")
	o := vote(t, room, "c", "a")

	assert.Equal(t, EventVoteConflict, o.Event)
	assert.True(t, o.VoteDone)
	require.NotNil(t, o.Conflict)
	assert.Equal(t, []string{"a", "b", "c"}, o.Conflict.PlayerIDs)
	assert.Equal(t, []string{"A", "B", "C"}, o.Conflict.Names)
	assert.Equal(t, 1, o.Conflict.Count)
	assert.Empty(t, o.Eliminated)

	s := room.Snapshot()
	assert.Equal(t, models.PhaseVoting, s.Phase)
	assert.Equal(t, 0, s.Round)
	assert.Empty(t, s.Votes[0])
	for _, p := range s.Players {
		assert.False(t, p.IsEliminated)
	}

	vote(t, room, "a", "c")
	vote(t, room, "b", "c")
	o = vote(t, room, "c", "a")
	assert.Equal(t, EventGameEnded, o.Event)
	assert.Equal(t, "c", o.Eliminated)
	assert.Equal(t, models.WinnerCivilian, o.Winner)
}

func TestCastVote_CivilianWin(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d")
	startScripted(t, room, "d")
	describeAll(t, room)

	vote(t, room, "a", "d")
	vote(t, room, "b", "d")
	vote(t, room, "c", "d")
	o := vote(t, room, "d", "a")

	assert.Equal(t, EventGameEnded, o.Event)
	assert.Equal(t, "d", o.Eliminated)
	assert.Equal(t, models.WinnerCivilian, o.Winner)

	s := room.Snapshot()
	assert.Equal(t, models.PhaseResults, s.Phase)
	assert.Equal(t, models.WinnerCivilian, s.Winner)
	assert.Empty(t, inTurn(s))

	_, err := room.CastVote("a", "b")
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestCastVote_EliminationStartsNextRound(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d")
	startScripted(t, room, "d")
	describeAll(t, room)

	vote(t, room, "b", "a")
	vote(t, room, "c", "a")
	vote(t, room, "d", "a")
	o := vote(t, room, "a", "b")

	assert.Equal(t, EventPlayerEliminated, o.Event)
	assert.Equal(t, "a", o.Eliminated)
	assert.Equal(t, models.WinnerNone, o.Winner)

	s := room.Snapshot()
	assert.Equal(t, models.PhaseDescription, s.Phase)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, []string{"b"}, inTurn(s))

	_, err := room.SubmitDescription("a", "ghost talk")
	assert.ErrorIs(t, err, ErrNotYourTurn)

	describeAll(t, room)
	_, err = room.CastVote("a", "b")
	assert.ErrorIs(t, err, ErrNotYourTurn, "eliminated players cannot vote")
	_, err = room.CastVote("b", "a")
	assert.ErrorIs(t, err, ErrInvalidTarget, "eliminated players cannot be voted for")
}

func TestCastVote_UndercoverWin(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c")
	startScripted(t, room, "c")
	describeAll(t, room)

	vote(t, room, "a", "b")
	vote(t, room, "c", "b")
	o := vote(t, room, "b", "a")

	assert.Equal(t, "b", o.Eliminated)
	assert.Equal(t, models.WinnerUndercover, o.Winner)
	assert.Equal(t, models.PhaseResults, room.Phase())
}

func TestLeave_DropsLeaversBallot(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d", "e")
	startScripted(t, room, "e")
	describeAll(t, room)

	vote(t, room, "a", "e")
	vote(t, room, "b", "e")
	vote(t, room, "c", "a")
	vote(t, room, "d", "a")

	o, err := room.Leave("d")
	require.NoError(t, err)
	assert.Equal(t, EventPlayerLeft, o.Event)
	assert.False(t, o.VoteDone)

	// 若 d 的票仍被计入，这里会是 2:2 平票
	o = vote(t, room, "e", "c")
	assert.Equal(t, "e", o.Eliminated)
	assert.Equal(t, models.WinnerCivilian, o.Winner)
}

func TestLeave_CompletesVote(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d", "e")
	startScripted(t, room, "e")
	describeAll(t, room)

	vote(t, room, "a", "e")
	vote(t, room, "b", "e")
	vote(t, room, "c", "e")
	vote(t, room, "e", "a")

	o, err := room.Leave("d")
	require.NoError(t, err)
	assert.True(t, o.VoteDone)
	assert.Equal(t, EventGameEnded, o.Event)
	assert.Equal(t, "e", o.Eliminated)
	assert.Equal(t, models.WinnerCivilian, o.Winner)
	assert.Equal(t, models.PhaseResults, room.Phase())
}

func TestLeave_DropsBallotsNamingLeaver(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d", "e")
	startScripted(t, room, "e")
	describeAll(t, room)

	vote(t, room, "a", "d")
	vote(t, room, "b", "d")
	vote(t, room, "c", "e")

	_, err := room.Leave("d")
	require.NoError(t, err)

	s := room.Snapshot()
	assert.Equal(t, models.PhaseVoting, s.Phase)
	assert.Equal(t, map[string]string{"c": "e"}, s.Votes[0])
}

func TestLeave_InTurnPlayerPassesTurn(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d")
	startScripted(t, room, "d")

	o, err := room.Leave("a")
	require.NoError(t, err)
	assert.Equal(t, "b", o.NewHost)
	assert.False(t, o.RoundEnd)

	s := room.Snapshot()
	assert.Equal(t, models.PhaseDescription, s.Phase)
	assert.Equal(t, []string{"b"}, inTurn(s))
}

func TestLeave_LastSpeakerEndsRound(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d")
	startScripted(t, room, "a")

	for _, id := range []string{"a", "b", "c"} {
		_, err := room.SubmitDescription(id, "hint")
		require.NoError(t, err)
	}
	o, err := room.Leave("d")
	require.NoError(t, err)
	assert.True(t, o.RoundEnd)

	s := room.Snapshot()
	assert.Equal(t, models.PhaseVoting, s.Phase)
	assert.Empty(t, inTurn(s))
}

func TestLeave_LastUndercoverEndsGame(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c")
	startScripted(t, room, "c")

	o, err := room.Leave("c")
	require.NoError(t, err)
	assert.Equal(t, EventGameEnded, o.Event)
	assert.Equal(t, models.WinnerCivilian, o.Winner)
	assert.Equal(t, models.PhaseResults, room.Phase())
}

func TestResetGame(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c")
	startScripted(t, room, "c")
	_, err := room.Leave("c")
	require.NoError(t, err)
	_, err = room.Join(newPlayer("c"), "")
	assert.ErrorIs(t, err, ErrGameAlreadyStarted)

	_, err = room.ResetGame("b")
	assert.ErrorIs(t, err, ErrNotHost)

	o, err := room.ResetGame("a")
	require.NoError(t, err)
	assert.Equal(t, EventGameReset, o.Event)

	s := room.Snapshot()
	assert.Equal(t, models.PhaseWaiting, s.Phase)
	assert.Equal(t, -1, s.Round)
	assert.Empty(t, s.CivilianWord)
	assert.Empty(t, s.UndercoverWord)
	assert.Equal(t, models.WinnerNone, s.Winner)
	assert.Empty(t, s.Descriptions)
	assert.Empty(t, s.Votes)
	require.Len(t, s.Players, 2)
	assert.True(t, s.Players[0].IsHost)
	for _, p := range s.Players {
		assert.Empty(t, p.Word)
		assert.False(t, p.IsUndercover)
		assert.False(t, p.IsEliminated)
		assert.False(t, p.InTurn)
	}

	_, err = room.Join(newPlayer("c"), "")
	require.NoError(t, err)
	_, err = room.StartGame("a")
	require.NoError(t, err)
}

func TestWordSetter_Flow(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d")

	_, err := room.SetWord("b", "Sun", "Moon")
	assert.ErrorIs(t, err, ErrNoWordSetter)
	_, err = room.ToggleWordSetter("c", "b")
	assert.ErrorIs(t, err, ErrNotHost)

	o, err := room.ToggleWordSetter("a", "b")
	require.NoError(t, err)
	assert.Equal(t, EventWordSetterChanged, o.Event)

	_, err = room.ToggleWordSetter("c", "c")
	assert.ErrorIs(t, err, ErrWordSetterConflict)
	_, err = room.StartGame("a")
	assert.ErrorIs(t, err, ErrWordNotSet)
	_, err = room.SetWord("a", "Sun", "Moon")
	assert.ErrorIs(t, err, ErrNotWordSetter)
	_, err = room.SetWord("b", "Sun", " sun ")
	assert.ErrorIs(t, err, ErrInvalidWordPair)

	_, err = room.SetWord("b", " Sun ", "Moon")
	require.NoError(t, err)
	s := room.Snapshot()
	assert.Equal(t, "Sun", s.CivilianWord)
	assert.Equal(t, "Moon", s.UndercoverWord)

	_, err = room.StartGame("a")
	require.NoError(t, err)

	s = room.Snapshot()
	undercovers := 0
	for _, p := range s.Players {
		if p.ID == "b" {
			assert.True(t, p.IsWordSetter)
			assert.Empty(t, p.Word)
			assert.False(t, p.IsUndercover)
			continue
		}
		if p.IsUndercover {
			undercovers++
			assert.Equal(t, "Moon", p.Word)
		} else {
			assert.Equal(t, "Sun", p.Word)
		}
	}
	assert.Equal(t, 1, undercovers)
	assert.Equal(t, []string{"a"}, inTurn(s))

	_, err = room.ToggleWordSetter("a", "c")
	assert.ErrorIs(t, err, ErrInvalidPhase)

	// 出题人离开不影响对局进度
	before := room.Snapshot()
	o, err = room.Leave("b")
	require.NoError(t, err)
	assert.Equal(t, EventPlayerLeft, o.Event)
	after := room.Snapshot()
	assert.Equal(t, before.Phase, after.Phase)
	assert.Equal(t, before.Round, after.Round)
	assert.Equal(t, inTurn(before), inTurn(after))
}

func TestWordSetter_ClearingDropsPair(t *testing.T) {
	room := newTestRoom(t, newTestManager(t), onlineSettings(), "a", "b", "c", "d")

	_, err := room.ToggleWordSetter("b", "b")
	require.NoError(t, err)
	_, err = room.SetWord("b", "Sun", "Moon")
	require.NoError(t, err)
	_, err = room.ToggleWordSetter("b", "b")
	require.NoError(t, err)

	s := room.Snapshot()
	assert.Empty(t, s.CivilianWord)
	assert.Empty(t, s.UndercoverWord)

	_, err = room.ToggleWordSetter("a", "c")
	require.NoError(t, err)
	_, err = room.SetWord("c", "Tea", "Coffee")
	require.NoError(t, err)
	_, err = room.Leave("c")
	require.NoError(t, err)

	s = room.Snapshot()
	assert.Empty(t, s.CivilianWord)
	_, err = room.StartGame("a")
	require.NoError(t, err)
	assert.Equal(t, "Cat", room.Snapshot().CivilianWord, "catalog pair after the setter left")
}

func TestOfflineMode(t *testing.T) {
	settings := onlineSettings()
	settings.Mode = models.ModeOffline
	room := newTestRoom(t, newTestManager(t), settings, "a", "b", "c", "d")
	startScripted(t, room, "d")

	s := room.Snapshot()
	assert.Equal(t, models.PhaseVoting, s.Phase)
	assert.Empty(t, inTurn(s))
	_, err := room.SubmitDescription("a", "hint")
	assert.ErrorIs(t, err, ErrInvalidPhase)

	vote(t, room, "b", "a")
	vote(t, room, "c", "a")
	vote(t, room, "d", "a")
	o := vote(t, room, "a", "b")
	assert.Equal(t, "a", o.Eliminated)

	s = room.Snapshot()
	assert.Equal(t, models.PhaseVoting, s.Phase)
	assert.Equal(t, 1, s.Round)
	assert.Empty(t, inTurn(s))

	vote(t, room, "b", "d")
	vote(t, room, "c", "d")
	o = vote(t, room, "d", "b")
	assert.Equal(t, models.WinnerCivilian, o.Winner)
}

func TestCastVote_ConcurrentBallotsResolveOnce(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	room := newTestRoom(t, newTestManager(t), onlineSettings(), ids...)
	startScripted(t, room, "h")
	describeAll(t, room)

	var resolved atomic.Int32
	var wg sync.WaitGroup
	for _, id := range ids {
		target := "h"
		if id == "h" {
			target = "a"
		}
		wg.Add(1)
		go func(voter, target string) {
			defer wg.Done()
			o, err := room.CastVote(voter, target)
			if err != nil {
				t.Error(fmt.Errorf("vote %s: %w", voter, err))
				return
			}
			if o.VoteDone {
				resolved.Add(1)
			}
		}(id, target)
	}
	wg.Wait()

	assert.EqualValues(t, 1, resolved.Load())
	s := room.Snapshot()
	assert.Equal(t, models.PhaseResults, s.Phase)
	assert.Equal(t, models.WinnerCivilian, s.Winner)
}

func TestCheckWinner_RecordsFinalState(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC)}
	room := newTestRoom(t, newTestManager(t, WithClock(clock.Now)), onlineSettings(), "a", "b", "c")
	startScripted(t, room, "c")
	describeAll(t, room)

	vote(t, room, "a", "c")
	vote(t, room, "b", "c")
	clock.Advance(time.Minute)
	o := vote(t, room, "c", "a")

	require.NotNil(t, o.State)
	assert.Equal(t, models.PhaseResults, o.State.Phase)
	assert.Equal(t, models.WinnerCivilian, o.State.Winner)
	assert.Equal(t, clock.Now(), o.State.UpdatedAt)
	assert.Equal(t, room.Snapshot().Version, o.State.Version)

	_, err := room.ResetGame("a")
	require.NoError(t, err)
	assert.Equal(t, models.WinnerCivilian, o.State.Winner, "final state is a copy")
}
