// Package telemetry carries game events to optional analytics sinks.
// The game works the same with no sink at all.
package telemetry

import (
	"github.com/rs/zerolog"
)

// EventType names a game event.
type EventType string

const (
	EventGuessSubmitted EventType = "guess_submitted"
	EventGameCompleted  EventType = "game_completed"
	EventShareRequested EventType = "share_requested"
)

// Event is a single analytics record. Fields that do not apply to a type are zero.
type Event struct {
	Type         EventType
	PlayerID     string
	Date         string
	LocationID   int
	LocationName string
	DistanceM    int
	Score        int
	TotalScore   int
	Completed    int
	Message      string
}

// Sink consumes events. Emit must not block the caller for long: the game
// engine calls it while holding its lock.
type Sink interface {
	Emit(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(Event) {}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Emit(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// Logger writes events as structured log lines.
type Logger struct {
	Log zerolog.Logger
}

func (l Logger) Emit(ev Event) {
	e := l.Log.Info().
		Str("event", string(ev.Type)).
		Str("player", ev.PlayerID).
		Str("date", ev.Date)
	switch ev.Type {
	case EventGuessSubmitted:
		e = e.Int("location_id", ev.LocationID).
			Str("location_name", ev.LocationName).
			Int("distance_meters", ev.DistanceM).
			Int("score", ev.Score)
	case EventGameCompleted:
		e = e.Int("score", ev.TotalScore).Int("locations_completed", ev.Completed)
	case EventShareRequested:
		e = e.Int("score", ev.TotalScore)
	}
	e.Msg("telemetry")
}

// WithPlayer stamps every event passing through with a player id and date
// before handing it on.
func WithPlayer(next Sink, playerID, date string) Sink {
	if next == nil {
		return Nop{}
	}
	return stamped{next: next, playerID: playerID, date: date}
}

type stamped struct {
	next     Sink
	playerID string
	date     string
}

func (s stamped) Emit(ev Event) {
	if ev.PlayerID == "" {
		ev.PlayerID = s.playerID
	}
	if ev.Date == "" {
		ev.Date = s.date
	}
	s.next.Emit(ev)
}
