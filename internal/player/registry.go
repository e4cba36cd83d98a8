// Package player keeps one game engine per player for the current day and
// rolls them over when the day changes.
package player

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/susu3304/dailytap/internal/daily"
	"github.com/susu3304/dailytap/internal/game"
	"github.com/susu3304/dailytap/internal/kv"
	"github.com/susu3304/dailytap/internal/locations"
	"github.com/susu3304/dailytap/internal/persist"
	"github.com/susu3304/dailytap/internal/telemetry"
	"github.com/susu3304/dailytap/internal/timer"
)

// Catalog picks the locations for a date.
type Catalog interface {
	ForDate(date string) (locations.Set, bool)
}

// Player is one player's game for the day.
type Player struct {
	ID     string
	Engine *game.Engine

	store     atomic.Pointer[persist.Store]
	date      atomic.Value // string
	set       atomic.Value // locations.Set
	lastShare atomic.Value // string
	sink      telemetry.Sink
}

// MarkShared records msg as the player's latest share text and reports
// whether it differs from the previous one. The text carries the date and
// every guess, so it changes at most once per guess each day.
func (p *Player) MarkShared(msg string) bool {
	return p.lastShare.Swap(msg) != msg
}

// Store is the persistence for the day the engine is playing.
func (p *Player) Store() *persist.Store {
	return p.store.Load()
}

// Date is the YYYY-MM-DD day the engine is playing.
func (p *Player) Date() string {
	d, _ := p.date.Load().(string)
	return d
}

// Set is the location set the engine is playing.
func (p *Player) Set() locations.Set {
	s, _ := p.set.Load().(locations.Set)
	return s
}

// Emit stamps the player and day on engine events.
func (p *Player) Emit(ev telemetry.Event) {
	ev.PlayerID = p.ID
	ev.Date = p.Date()
	p.sink.Emit(ev)
}

type Registry struct {
	mu      sync.Mutex
	players map[string]*Player

	store   kv.Store
	catalog Catalog
	clock   daily.Clock
	cfg     game.Config
	dev     bool
	sched   timer.Scheduler
	sink    telemetry.Sink
	log     zerolog.Logger
}

type Option func(*Registry)

func WithDevMode(dev bool) Option {
	return func(r *Registry) { r.dev = dev }
}

// WithScheduler drives every engine's transition delays.
func WithScheduler(s timer.Scheduler) Option {
	return func(r *Registry) { r.sched = s }
}

func WithSink(s telemetry.Sink) Option {
	return func(r *Registry) { r.sink = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates an empty registry. A nil catalog always plays the
// built-in fallback set.
func NewRegistry(store kv.Store, catalog Catalog, clock daily.Clock, cfg game.Config, opts ...Option) *Registry {
	r := &Registry{
		players: make(map[string]*Player),
		store:   store,
		catalog: catalog,
		clock:   clock,
		cfg:     cfg,
		sched:   timer.Real{},
		sink:    telemetry.Nop{},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Clock is the clock deciding the current day.
func (r *Registry) Clock() daily.Clock {
	return r.clock
}

// Today returns today's location set.
func (r *Registry) Today() locations.Set {
	return r.setFor(r.clock.Key())
}

func (r *Registry) setFor(date string) locations.Set {
	if r.catalog != nil {
		if set, ok := r.catalog.ForDate(date); ok && len(set.Locations) > 0 {
			return set
		}
	}
	return locations.Set{Date: date, Locations: locations.Fallback()}
}

// Get returns the player's game for today, loading saved state on first use
// and resetting it when the day has changed.
func (r *Registry) Get(ctx context.Context, id string) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := r.clock.Key()
	if p, ok := r.players[id]; ok {
		if p.Date() != today {
			if err := r.rolloverLocked(ctx, p, today); err != nil {
				return nil, err
			}
		}
		return p, nil
	}

	set := r.setFor(today)
	logger := r.log.With().Str("player", id).Logger()
	store := r.newStore(id, today, logger)
	p := &Player{ID: id, sink: r.sink}
	p.store.Store(store)
	p.date.Store(today)
	p.set.Store(set)

	engine, err := game.New(r.cfg, set.Locations,
		game.WithScheduler(r.sched),
		game.WithSaver(store),
		game.WithSink(p),
		game.WithLogger(logger),
		game.WithReadyFunc(func(rd game.Ready) {
			logger.Debug().Int("index", rd.Index).Bool("complete", rd.Complete).Msg("location ready")
		}),
	)
	if err != nil {
		return nil, err
	}
	p.Engine = engine
	if dropped := engine.Restore(store.Load(ctx)); len(dropped) > 0 {
		logger.Info().Ints("dropped", dropped).Msg("saved guesses did not match today's locations")
	}

	r.players[id] = p
	return p, nil
}

// newStore binds a player's persistence to date.
func (r *Registry) newStore(id, date string, logger zerolog.Logger) *persist.Store {
	return persist.New(kv.WithPrefix(r.store, kv.PlayerPrefix(id)), r.clock,
		persist.WithDate(date), persist.WithDevMode(r.dev), persist.WithLogger(logger))
}

// rolloverLocked moves p onto today. The old day's store stays with the old
// engine state until Reset swaps both, so a transition still finishing from
// yesterday never writes under today's key.
func (r *Registry) rolloverLocked(ctx context.Context, p *Player, today string) error {
	p.Engine.Stop()

	set := r.setFor(today)
	store := r.newStore(p.ID, today, r.log.With().Str("player", p.ID).Logger())
	if _, err := p.Engine.Reset(set.Locations, store.Load(ctx), game.WithSaver(store)); err != nil {
		return err
	}
	p.store.Store(store)
	p.date.Store(today)
	p.set.Store(set)
	r.log.Info().Str("player", p.ID).Str("date", today).Msg("started a new day")
	return nil
}

// Rollover moves every player still on an earlier day to today and returns
// how many were reset.
func (r *Registry) Rollover(ctx context.Context) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := r.clock.Key()
	n := 0
	for _, p := range r.players {
		if p.Date() == today {
			continue
		}
		if err := r.rolloverLocked(ctx, p, today); err != nil {
			r.log.Error().Err(err).Str("player", p.ID).Msg("failed to roll over player")
			continue
		}
		n++
	}
	return n
}

// IDs lists the loaded players.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops every engine's pending transitions.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.players {
		p.Engine.Stop()
	}
}
