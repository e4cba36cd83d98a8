package game

import (
	"errors"
	"fmt"
	"sort"

	"github.com/susu3304/dailytap/internal/geoscore"
)

var (
	// ErrDuplicateGuess means a second guess was recorded for one location,
	// which only happens when progression is broken.
	ErrDuplicateGuess    = errors.New("location already has a guess")
	ErrInvalidMultiplier = errors.New("multiplier must be at least 1")
)

// Ledger holds the guesses of a game and their running total.
type Ledger struct {
	guesses map[int]Guess
	total   int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{guesses: make(map[int]Guess)}
}

// LedgerFrom rebuilds a ledger from stored guesses. The stored total is
// ignored and recomputed.
func LedgerFrom(guesses map[int]Guess) *Ledger {
	l := NewLedger()
	for id, g := range guesses {
		g.LocationID = id
		l.guesses[id] = g
		l.total += g.Score
	}
	return l
}

// Record stores g and returns it with its final score filled in.
// The final score is BaseScore * Multiplier.
func (l *Ledger) Record(g Guess) (Guess, error) {
	if _, ok := l.guesses[g.LocationID]; ok {
		return Guess{}, fmt.Errorf("location %d: %w", g.LocationID, ErrDuplicateGuess)
	}
	if g.Multiplier < 1 {
		return Guess{}, fmt.Errorf("location %d: %w (got %d)", g.LocationID, ErrInvalidMultiplier, g.Multiplier)
	}
	if g.BaseScore < 0 {
		g.BaseScore = 0
	}
	if g.BaseScore > geoscore.MaxScore {
		g.BaseScore = geoscore.MaxScore
	}
	if g.Distance < 0 {
		g.Distance = 0
	}
	g.Score = g.BaseScore * g.Multiplier

	l.guesses[g.LocationID] = g
	l.total += g.Score
	return g, nil
}

// Has reports whether id has a guess.
func (l *Ledger) Has(id int) bool {
	_, ok := l.guesses[id]
	return ok
}

// Get returns the guess for id.
func (l *Ledger) Get(id int) (Guess, bool) {
	g, ok := l.guesses[id]
	return g, ok
}

// Total is the sum of every final score.
func (l *Ledger) Total() int {
	return l.total
}

// Len is the number of recorded guesses.
func (l *Ledger) Len() int {
	return len(l.guesses)
}

// Guesses returns a copy of the recorded guesses keyed by location id.
func (l *Ledger) Guesses() map[int]Guess {
	out := make(map[int]Guess, len(l.guesses))
	for id, g := range l.guesses {
		out[id] = g
	}
	return out
}

// Reconcile drops guesses whose location id is not in valid, recomputes the
// total and returns the dropped ids in ascending order.
func (l *Ledger) Reconcile(valid map[int]struct{}) []int {
	var dropped []int
	for id := range l.guesses {
		if _, ok := valid[id]; !ok {
			dropped = append(dropped, id)
			delete(l.guesses, id)
		}
	}
	sort.Ints(dropped)

	l.total = 0
	for _, g := range l.guesses {
		l.total += g.Score
	}
	return dropped
}
