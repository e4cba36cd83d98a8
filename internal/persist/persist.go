// Package persist saves one game state per calendar day in a kv.Store.
//
// A Store is bound to the day it was created for and keeps writing under
// game_YYYY-MM-DD for that day even after the clock moves on. Other days are
// pruned whenever state is loaded, so at most one record exists per store.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/susu3304/dailytap/internal/daily"
	"github.com/susu3304/dailytap/internal/game"
	"github.com/susu3304/dailytap/internal/kv"
)

// KeyPrefix starts every daily game key.
const KeyPrefix = "game_"

type Store struct {
	kv   kv.Store
	date string
	dev  bool
	log   zerolog.Logger
}

type Option func(*Store)

// WithDevMode makes Save a no-op and Load always start fresh.
func WithDevMode(dev bool) Option {
	return func(s *Store) { s.dev = dev }
}

// WithDate binds the store to date instead of the clock's current day.
func WithDate(date string) Option {
	return func(s *Store) { s.date = date }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New returns a Store for the day clock is on now.
func New(store kv.Store, clock daily.Clock, opts ...Option) *Store {
	s := &Store{kv: store, date: clock.Key(), log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Date is the YYYY-MM-DD day the store reads and writes.
func (s *Store) Date() string {
	return s.date
}

// Key returns the key of the store's day.
func (s *Store) Key() string {
	return KeyFor(s.date)
}

// KeyFor returns the key for a YYYY-MM-DD date.
func KeyFor(date string) string {
	return KeyPrefix + date
}

// Save replaces the day's record with st.
func (s *Store) Save(ctx context.Context, st game.State) error {
	if s.dev {
		return nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode game state: %w", err)
	}
	if err := s.kv.Set(ctx, s.Key(), string(raw)); err != nil {
		return fmt.Errorf("save game state: %w", err)
	}
	return nil
}

// Load prunes other days and returns the day's state. Anything missing or
// unreadable yields a fresh state.
func (s *Store) Load(ctx context.Context) game.State {
	if n, err := s.PruneStale(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to prune old game state")
	} else if n > 0 {
		s.log.Info().Int("removed", n).Msg("cleaned up old game state entries")
	}

	if s.dev {
		return game.NewState()
	}

	key := s.Key()
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return game.NewState()
	}
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to read game state, starting fresh")
		return game.NewState()
	}

	st, err := Decode([]byte(raw))
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to parse game state, starting fresh")
		return game.NewState()
	}
	s.log.Debug().
		Str("key", key).
		Int("current_index", st.CurrentLocationIndex).
		Int("guesses", len(st.Guesses)).
		Int("total_score", st.TotalScore).
		Msg("loaded game state")
	return st
}

// PruneStale removes every daily key except the store's own.
func (s *Store) PruneStale(ctx context.Context) (int, error) {
	keys, err := s.kv.ListKeys(ctx, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list game keys: %w", err)
	}
	today := s.Key()
	removed := 0
	for _, k := range keys {
		if k == today {
			continue
		}
		if err := s.kv.Remove(ctx, k); err != nil {
			return removed, fmt.Errorf("remove %s: %w", k, err)
		}
		removed++
	}
	return removed, nil
}

type record struct {
	CurrentLocationIndex *int                   `json:"currentLocationIndex"`
	Guesses              map[string]storedGuess `json:"guesses"`
	TotalScore           int                    `json:"totalScore"`
}

type storedGuess struct {
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	LatLng     *latLng  `json:"latlng"`
	Distance   float64  `json:"distance"`
	BaseScore  *int     `json:"baseScore"`
	Multiplier *int     `json:"multiplier"`
	Score      int      `json:"score"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Decode parses a stored record, including the older layout that nested the
// tap under "latlng" and had no multiplier.
func Decode(raw []byte) (game.State, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return game.State{}, err
	}

	st := game.NewState()
	st.TotalScore = rec.TotalScore
	if rec.CurrentLocationIndex != nil {
		st.CurrentLocationIndex = *rec.CurrentLocationIndex
	}
	for k, sg := range rec.Guesses {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return game.State{}, fmt.Errorf("guess key %q: %w", k, err)
		}
		st.Guesses[id] = sg.toGuess(id)
	}
	return st, nil
}

func (sg storedGuess) toGuess(id int) game.Guess {
	g := game.Guess{
		LocationID: id,
		Distance:   sg.Distance,
		Score:      sg.Score,
	}
	switch {
	case sg.Lat != nil && sg.Lng != nil:
		g.Lat, g.Lng = *sg.Lat, *sg.Lng
	case sg.LatLng != nil:
		g.Lat, g.Lng = sg.LatLng.Lat, sg.LatLng.Lng
	}

	g.BaseScore = sg.Score
	if sg.BaseScore != nil {
		g.BaseScore = *sg.BaseScore
	}
	g.Multiplier = 1
	switch {
	case sg.Multiplier != nil && *sg.Multiplier >= 1:
		g.Multiplier = *sg.Multiplier
	case g.BaseScore > 0 && sg.Score%g.BaseScore == 0:
		g.Multiplier = sg.Score / g.BaseScore
	}
	return g
}
