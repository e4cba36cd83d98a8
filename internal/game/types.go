package game

import (
	"github.com/susu3304/dailytap/internal/locations"
)

// Guess is the scored answer for one location. It is never changed once recorded.
type Guess struct {
	LocationID int     `json:"locationId"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Distance   float64 `json:"distance"`
	BaseScore  int     `json:"baseScore"`
	Multiplier int     `json:"multiplier"`
	Score      int     `json:"score"`
}

// State is the persisted game state for one player and one day.
// CurrentLocationIndex is derived from Guesses and the day's location order.
type State struct {
	CurrentLocationIndex int           `json:"currentLocationIndex"`
	Guesses              map[int]Guess `json:"guesses"`
	TotalScore           int           `json:"totalScore"`
}

// NewState returns the empty state a day starts with.
func NewState() State {
	return State{Guesses: make(map[int]Guess)}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{
		CurrentLocationIndex: s.CurrentLocationIndex,
		TotalScore:           s.TotalScore,
		Guesses:              make(map[int]Guess, len(s.Guesses)),
	}
	for id, g := range s.Guesses {
		out.Guesses[id] = g
	}
	return out
}

// FirstUnguessed returns the position of the first location in locs without a
// guess, or len(locs) when every location has one.
func FirstUnguessed(locs []locations.Location, guessed func(id int) bool) int {
	return nextUnguessed(locs, 0, guessed)
}

// nextUnguessed scans forward from position from, skipping guessed locations.
func nextUnguessed(locs []locations.Location, from int, guessed func(id int) bool) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(locs); i++ {
		if !guessed(locs[i].ID) {
			return i
		}
	}
	return len(locs)
}
