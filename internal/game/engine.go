// Package game implements the daily game: scoring guesses, recording them in
// a ledger and stepping through the day's locations in order.
//
// Each guess starts a two-phase transition. After AdvanceDelay the engine
// moves to the next unguessed location; after RevealDelay the next location
// is announced as ready. The transition guard stays up for the whole span, so
// taps that arrive during the animation are dropped rather than queued and
// can never skip a location.
package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/susu3304/dailytap/internal/geoscore"
	"github.com/susu3304/dailytap/internal/locations"
	"github.com/susu3304/dailytap/internal/telemetry"
	"github.com/susu3304/dailytap/internal/timer"
)

var (
	ErrNoLocations        = errors.New("no locations loaded")
	ErrDuplicateLocation  = errors.New("duplicate location id")
	ErrInvalidCoordinates = errors.New("coordinates must be finite numbers")
)

const (
	DefaultAdvanceDelay = 500 * time.Millisecond
	DefaultRevealDelay  = 2100 * time.Millisecond
)

// Config tunes scoring and transition timing.
type Config struct {
	MaxDistance  float64
	Exponent     float64
	Multipliers  Multipliers
	AdvanceDelay time.Duration
	RevealDelay  time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		MaxDistance:  geoscore.MaxDistance,
		Exponent:     geoscore.DefaultExponent,
		Multipliers:  DefaultMultipliers(),
		AdvanceDelay: DefaultAdvanceDelay,
		RevealDelay:  DefaultRevealDelay,
	}
}

// Saver persists the state after every mutation.
type Saver interface {
	Save(ctx context.Context, st State) error
}

// Outcome says what a submission did.
type Outcome int

const (
	// OutcomeIgnored: a transition was running, the call was dropped.
	OutcomeIgnored Outcome = iota
	// OutcomeComplete: every location already has a guess.
	OutcomeComplete
	// OutcomeNoop: nothing to advance past.
	OutcomeNoop
	// OutcomeGuessed: a new guess was recorded.
	OutcomeGuessed
	// OutcomeAdvanced: progression skipped past already-guessed locations.
	OutcomeAdvanced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeComplete:
		return "complete"
	case OutcomeNoop:
		return "noop"
	case OutcomeGuessed:
		return "guessed"
	case OutcomeAdvanced:
		return "advanced"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result describes a SubmitGuess or AdvanceIfAlreadyGuessed call.
type Result struct {
	Outcome  Outcome
	Guess    Guess
	Location locations.Location
	Index    int
}

// Ready is announced when a transition finishes.
type Ready struct {
	Index    int
	Location locations.Location
	Complete bool
}

// View is a consistent snapshot for rendering.
type View struct {
	Index         int
	Current       *locations.Location
	Complete      bool
	Transitioning bool
	TotalScore    int
	Guesses       map[int]Guess
	Locations     []locations.Location
}

// Option customises an Engine.
type Option func(*Engine)

// WithScheduler sets the scheduler driving transition delays.
func WithScheduler(s timer.Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithSaver persists state after every mutation.
func WithSaver(s Saver) Option {
	return func(e *Engine) { e.saver = s }
}

// WithSink sends telemetry events to s.
func WithSink(s telemetry.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithReadyFunc is called when a transition completes. It runs with the
// engine locked and must not call back into the engine.
func WithReadyFunc(f func(Ready)) Option {
	return func(e *Engine) { e.onReady = f }
}

// Engine owns one player's game for one day.
type Engine struct {
	mu   sync.Mutex
	cfg  Config
	locs []locations.Location

	ledger *Ledger
	index  int

	// transition guard
	transitioning bool
	advanceTimer  timer.Handle
	revealTimer   timer.Handle
	generation    uint64

	sched   timer.Scheduler
	saver   Saver
	sink    telemetry.Sink
	onReady func(Ready)
	log     zerolog.Logger
}

// New creates an engine over locs with a fresh state. Locations must be
// loaded first: an empty list is rejected.
func New(cfg Config, locs []locations.Location, opts ...Option) (*Engine, error) {
	if err := validateLocations(locs); err != nil {
		return nil, err
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = geoscore.MaxDistance
	}
	if cfg.Exponent <= 0 {
		cfg.Exponent = geoscore.DefaultExponent
	}
	if cfg.Multipliers == nil {
		cfg.Multipliers = DefaultMultipliers()
	}
	if err := cfg.Multipliers.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		locs:   cloneLocations(locs),
		ledger: NewLedger(),
		sched:  timer.Real{},
		sink:   telemetry.Nop{},
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func validateLocations(locs []locations.Location) error {
	if len(locs) == 0 {
		return ErrNoLocations
	}
	seen := make(map[int]struct{}, len(locs))
	for _, l := range locs {
		if _, ok := seen[l.ID]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateLocation, l.ID)
		}
		seen[l.ID] = struct{}{}
	}
	return nil
}

// SubmitGuess scores a tap for the current location.
func (e *Engine) SubmitGuess(lat, lng float64) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.transitioning {
		return Result{Outcome: OutcomeIgnored, Index: e.index}, nil
	}
	if e.index >= len(e.locs) {
		return Result{Outcome: OutcomeComplete, Index: e.index}, nil
	}
	loc := e.locs[e.index]
	if e.ledger.Has(loc.ID) {
		// Recovered state can point at a location that already has a guess.
		return e.advanceLocked(), nil
	}
	if !finite(lat) || !finite(lng) {
		return Result{Outcome: OutcomeNoop, Index: e.index}, ErrInvalidCoordinates
	}

	distance := geoscore.DistanceMeters(loc.Lat, loc.Lng, lat, lng)
	g, err := e.ledger.Record(Guess{
		LocationID: loc.ID,
		Lat:        lat,
		Lng:        lng,
		Distance:   distance,
		BaseScore:  geoscore.Score(distance, e.cfg.MaxDistance, e.cfg.Exponent),
		Multiplier: e.cfg.Multipliers.For(e.index),
	})
	if err != nil {
		e.log.Error().Err(err).Int("location_id", loc.ID).Int("index", e.index).Msg("refusing to record guess")
		return Result{Outcome: OutcomeNoop, Index: e.index}, err
	}

	e.persistLocked()
	e.sink.Emit(telemetry.Event{
		Type:         telemetry.EventGuessSubmitted,
		LocationID:   loc.ID,
		LocationName: loc.Name,
		DistanceM:    int(math.Round(distance)),
		Score:        g.Score,
		TotalScore:   e.ledger.Total(),
	})
	e.log.Debug().
		Int("location_id", loc.ID).
		Float64("distance", distance).
		Int("base_score", g.BaseScore).
		Int("score", g.Score).
		Msg("guess recorded")

	gen := e.beginTransitionLocked()
	e.advanceTimer = e.sched.AfterFunc(e.cfg.AdvanceDelay, e.continuation(gen, e.advancePhaseLocked))

	return Result{Outcome: OutcomeGuessed, Guess: g, Location: loc, Index: e.index}, nil
}

// AdvanceIfAlreadyGuessed moves past the current location when it already
// has a guess, without recording anything.
func (e *Engine) AdvanceIfAlreadyGuessed() Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.transitioning {
		return Result{Outcome: OutcomeIgnored, Index: e.index}
	}
	if e.index >= len(e.locs) {
		return Result{Outcome: OutcomeComplete, Index: e.index}
	}
	if !e.ledger.Has(e.locs[e.index].ID) {
		return Result{Outcome: OutcomeNoop, Index: e.index}
	}
	return e.advanceLocked()
}

func (e *Engine) advanceLocked() Result {
	gen := e.beginTransitionLocked()

	e.index = nextUnguessed(e.locs, e.index, e.ledger.Has)
	e.persistLocked()

	res := Result{Outcome: OutcomeAdvanced, Index: e.index}
	if e.index >= len(e.locs) {
		e.completeLocked()
		return res
	}
	res.Location = e.locs[e.index]
	e.revealTimer = e.sched.AfterFunc(e.cfg.RevealDelay, e.continuation(gen, e.revealPhaseLocked))
	return res
}

// beginTransitionLocked raises the guard and supersedes any pending
// continuation. It returns the generation new callbacks must carry.
func (e *Engine) beginTransitionLocked() uint64 {
	e.stopTimersLocked()
	e.generation++
	e.transitioning = true
	return e.generation
}

func (e *Engine) stopTimersLocked() {
	if e.advanceTimer != nil {
		e.advanceTimer.Stop()
		e.advanceTimer = nil
	}
	if e.revealTimer != nil {
		e.revealTimer.Stop()
		e.revealTimer = nil
	}
}

// continuation wraps a phase so it runs locked and only if no reset or newer
// transition happened since it was scheduled.
func (e *Engine) continuation(gen uint64, phase func()) func() {
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.generation != gen {
			return
		}
		phase()
	}
}

func (e *Engine) advancePhaseLocked() {
	e.advanceTimer = nil
	e.index = nextUnguessed(e.locs, e.index, e.ledger.Has)
	e.persistLocked()

	if e.index >= len(e.locs) {
		e.completeLocked()
		return
	}
	e.revealTimer = e.sched.AfterFunc(e.cfg.RevealDelay, e.continuation(e.generation, e.revealPhaseLocked))
}

func (e *Engine) revealPhaseLocked() {
	e.revealTimer = nil
	e.persistLocked()
	e.transitioning = false
	if e.onReady != nil {
		e.onReady(Ready{Index: e.index, Location: e.locs[e.index]})
	}
}

func (e *Engine) completeLocked() {
	e.transitioning = false
	e.sink.Emit(telemetry.Event{
		Type:       telemetry.EventGameCompleted,
		TotalScore: e.ledger.Total(),
		Completed:  e.ledger.Len(),
	})
	e.log.Info().Int("total_score", e.ledger.Total()).Msg("game complete")
	if e.onReady != nil {
		e.onReady(Ready{Index: e.index, Complete: true})
	}
}

func (e *Engine) persistLocked() {
	if e.saver == nil {
		return
	}
	if err := e.saver.Save(context.Background(), e.snapshotLocked()); err != nil {
		e.log.Warn().Err(err).Msg("failed to save game state")
	}
}

// Restore installs a previously saved state, dropping guesses for locations
// that are not in today's list and recomputing the total and current index.
// Any running transition is cancelled. It returns the dropped location ids.
func (e *Engine) Restore(st State) []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.installLocked(st)
}

// Reset replaces the location list and state, e.g. at day rollover. Pending
// continuations are cancelled so a half-finished transition never persists.
// Options such as WithSaver are applied under the same lock, so no save can
// reach the old saver with the new state or the new saver with the old one.
func (e *Engine) Reset(locs []locations.Location, st State, opts ...Option) ([]int, error) {
	if err := validateLocations(locs); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
	for _, opt := range opts {
		opt(e)
	}
	e.locs = cloneLocations(locs)
	return e.installLocked(st), nil
}

func (e *Engine) installLocked(st State) []int {
	e.cancelLocked()

	e.ledger = LedgerFrom(st.Guesses)
	dropped := e.ledger.Reconcile(locations.IDs(e.locs))
	if len(dropped) > 0 {
		e.log.Debug().Ints("dropped", dropped).Msg("dropped guesses for unknown locations")
	}
	e.index = FirstUnguessed(e.locs, e.ledger.Has)
	e.persistLocked()
	return dropped
}

// Stop cancels any pending continuation and releases the guard.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked()
}

func (e *Engine) cancelLocked() {
	e.stopTimersLocked()
	e.generation++
	e.transitioning = false
}

// CurrentLocation returns the location awaiting a guess.
func (e *Engine) CurrentLocation() (locations.Location, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index >= len(e.locs) {
		return locations.Location{}, false
	}
	return e.locs[e.index], true
}

// CurrentIndex is the position of the current location, or the number of
// locations once the game is complete.
func (e *Engine) CurrentIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

// GuessFor returns the guess recorded for location id.
func (e *Engine) GuessFor(id int) (Guess, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Get(id)
}

func (e *Engine) TotalScore() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Total()
}

func (e *Engine) IsComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index >= len(e.locs)
}

func (e *Engine) IsTransitioning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transitioning
}

// Locations returns a copy of the day's locations in play order.
func (e *Engine) Locations() []locations.Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneLocations(e.locs)
}

// Snapshot returns a copy of the persisted state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() State {
	return State{
		CurrentLocationIndex: e.index,
		Guesses:              e.ledger.Guesses(),
		TotalScore:           e.ledger.Total(),
	}
}

// View returns everything a client needs to render the game in one snapshot.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{
		Index:         e.index,
		Complete:      e.index >= len(e.locs),
		Transitioning: e.transitioning,
		TotalScore:    e.ledger.Total(),
		Guesses:       e.ledger.Guesses(),
		Locations:     cloneLocations(e.locs),
	}
	if !v.Complete {
		cur := e.locs[e.index]
		v.Current = &cur
	}
	return v
}

func cloneLocations(locs []locations.Location) []locations.Location {
	out := make([]locations.Location, len(locs))
	copy(out, locs)
	return out
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
