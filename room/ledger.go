package room

import "github.com/wfunc/undercover/models"

// Ledger 按轮次记录描述与投票，懒创建，只在重置时清空
type Ledger struct {
	descriptions models.RoundLedger
	votes        models.RoundLedger
}

func newLedger() *Ledger {
	return &Ledger{
		descriptions: make(models.RoundLedger),
		votes:        make(models.RoundLedger),
	}
}

func entry(l models.RoundLedger, round int) map[string]string {
	m, ok := l[round]
	if !ok {
		m = make(map[string]string)
		l[round] = m
	}
	return m
}

func (l *Ledger) Describe(round int, playerID, text string) {
	entry(l.descriptions, round)[playerID] = text
}

func (l *Ledger) HasDescribed(round int, playerID string) bool {
	_, ok := l.descriptions[round][playerID]
	return ok
}

// Vote records or overwrites voterID's ballot.
func (l *Ledger) Vote(round int, voterID, targetID string) {
	entry(l.votes, round)[voterID] = targetID
}

// Votes returns a copy of the ballots cast by the given voters in round.
func (l *Ledger) Votes(round int, voters map[string]bool) map[string]string {
	out := make(map[string]string)
	for voter, target := range l.votes[round] {
		if voters[voter] {
			out[voter] = target
		}
	}
	return out
}

// RetractVotes drops playerID's own ballot and every ballot aimed at them,
// returning how many were removed.
func (l *Ledger) RetractVotes(round int, playerID string) int {
	n := 0
	for voter, target := range l.votes[round] {
		if voter == playerID || target == playerID {
			delete(l.votes[round], voter)
			n++
		}
	}
	return n
}

// ClearVotes empties round's ballots so the vote can be repeated.
func (l *Ledger) ClearVotes(round int) {
	delete(l.votes, round)
}

func (l *Ledger) Reset() {
	l.descriptions = make(models.RoundLedger)
	l.votes = make(models.RoundLedger)
}

func (l *Ledger) snapshot() (descriptions, votes models.RoundLedger) {
	return l.descriptions.Clone(), l.votes.Clone()
}
