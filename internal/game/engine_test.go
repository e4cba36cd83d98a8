package game

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/susu3304/dailytap/internal/geoscore"
	"github.com/susu3304/dailytap/internal/locations"
	"github.com/susu3304/dailytap/internal/telemetry"
	"github.com/susu3304/dailytap/internal/timer"
)

type recordingSaver struct {
	mu     sync.Mutex
	states []State
	err    error
}

func (s *recordingSaver) Save(_ context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st.Clone())
	return s.err
}

func (s *recordingSaver) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *recordingSaver) last() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[len(s.states)-1]
}

type recordingSink struct {
	events []telemetry.Event
}

func (r *recordingSink) Emit(ev telemetry.Event) { r.events = append(r.events, ev) }

func (r *recordingSink) count(t telemetry.EventType) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func testLocations(n int) []locations.Location {
	locs := make([]locations.Location, n)
	for i := range locs {
		locs[i] = locations.Location{
			ID:   i,
			Name: "Stop " + string(rune('A'+i)),
			Lat:  39.90 + float64(i)*0.01,
			Lng:  -75.20 + float64(i)*0.01,
		}
	}
	return locs
}

// north returns the point the given distance due north of loc.
func north(loc locations.Location, meters float64) (float64, float64) {
	return loc.Lat + meters/geoscore.EarthRadiusMeters*180/math.Pi, loc.Lng
}

func newTestEngine(t *testing.T, locs []locations.Location, opts ...Option) (*Engine, *timer.Manual) {
	t.Helper()
	clock := timer.NewManual()
	opts = append([]Option{WithScheduler(clock)}, opts...)
	e, err := New(DefaultConfig(), locs, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e, clock
}

func TestNewRejectsBadLocations(t *testing.T) {
	if _, err := New(DefaultConfig(), nil); !errors.Is(err, ErrNoLocations) {
		t.Errorf("New(nil) error = %v, want ErrNoLocations", err)
	}
	locs := testLocations(2)
	locs[1].ID = 0
	if _, err := New(DefaultConfig(), locs); !errors.Is(err, ErrDuplicateLocation) {
		t.Errorf("New(duplicate ids) error = %v, want ErrDuplicateLocation", err)
	}
	cfg := DefaultConfig()
	cfg.Multipliers = Multipliers{2: 0}
	if _, err := New(cfg, testLocations(2)); !errors.Is(err, ErrInvalidMultiplier) {
		t.Errorf("New(bad multipliers) error = %v", err)
	}
}

func TestSequentialProgression(t *testing.T) {
	locs := testLocations(5)
	var ready []Ready
	e, clock := newTestEngine(t, locs, WithReadyFunc(func(r Ready) { ready = append(ready, r) }))

	for i, loc := range locs {
		if got := e.CurrentIndex(); got != i {
			t.Fatalf("CurrentIndex() = %d, want %d", got, i)
		}
		res, err := e.SubmitGuess(loc.Lat, loc.Lng)
		if err != nil {
			t.Fatalf("SubmitGuess(%d) error = %v", i, err)
		}
		if res.Outcome != OutcomeGuessed || res.Location.ID != loc.ID {
			t.Fatalf("SubmitGuess(%d) = %+v", i, res)
		}
		if !e.IsTransitioning() {
			t.Fatalf("guard not raised after guess %d", i)
		}
		// Index only moves after the advance delay.
		if got := e.CurrentIndex(); got != i {
			t.Fatalf("index moved before advance delay: %d", got)
		}

		clock.Advance(DefaultAdvanceDelay)
		if got := e.CurrentIndex(); got != i+1 {
			t.Fatalf("after advance delay index = %d, want %d", got, i+1)
		}
		clock.Advance(DefaultRevealDelay)
		if e.IsTransitioning() {
			t.Fatalf("guard still raised after reveal of %d", i+1)
		}
	}

	if !e.IsComplete() {
		t.Fatal("game should be complete")
	}
	// 100 * (1 + 1 + 2 + 3 + 3)
	if got := e.TotalScore(); got != 1000 {
		t.Errorf("TotalScore() = %d, want 1000", got)
	}
	if len(ready) != 5 {
		t.Fatalf("ready announcements = %d, want 5", len(ready))
	}
	for i := 0; i < 4; i++ {
		if ready[i].Index != i+1 || ready[i].Complete {
			t.Errorf("ready[%d] = %+v", i, ready[i])
		}
	}
	if !ready[4].Complete {
		t.Errorf("last ready should mark completion: %+v", ready[4])
	}
	if _, ok := e.CurrentLocation(); ok {
		t.Error("CurrentLocation() should be empty once complete")
	}
	res, err := e.SubmitGuess(0, 0)
	if err != nil || res.Outcome != OutcomeComplete {
		t.Errorf("SubmitGuess after completion = %+v, %v", res, err)
	}
}

func TestScoringExample(t *testing.T) {
	locs := testLocations(3)
	e, clock := newTestEngine(t, locs)

	distances := []float64{0, 1000, 8000}
	for i, d := range distances {
		lat, lng := north(locs[i], d)
		if _, err := e.SubmitGuess(lat, lng); err != nil {
			t.Fatalf("SubmitGuess() error = %v", err)
		}
		clock.Settle()
	}

	want := []struct{ base, mult, score int }{
		{100, 1, 100},
		{74, 1, 74},
		{0, 2, 0},
	}
	for i, w := range want {
		g, ok := e.GuessFor(i)
		if !ok {
			t.Fatalf("no guess for %d", i)
		}
		if g.BaseScore != w.base || g.Multiplier != w.mult || g.Score != w.score {
			t.Errorf("guess %d = %+v, want base %d mult %d score %d", i, g, w.base, w.mult, w.score)
		}
		if math.Abs(g.Distance-distances[i]) > 0.01 {
			t.Errorf("guess %d distance = %v, want %v", i, g.Distance, distances[i])
		}
	}
	if got := e.TotalScore(); got != 174 {
		t.Errorf("TotalScore() = %d, want 174", got)
	}
}

func TestGuardDropsTapsDuringTransition(t *testing.T) {
	locs := testLocations(3)
	saver := &recordingSaver{}
	e, clock := newTestEngine(t, locs, WithSaver(saver))

	if _, err := e.SubmitGuess(locs[0].Lat, locs[0].Lng); err != nil {
		t.Fatal(err)
	}
	saves := saver.count()

	// A burst of taps during the animation: none may record or move on.
	for i := 0; i < 5; i++ {
		res, err := e.SubmitGuess(locs[1].Lat, locs[1].Lng)
		if err != nil || res.Outcome != OutcomeIgnored {
			t.Fatalf("tap %d during transition = %+v, %v", i, res, err)
		}
		if res := e.AdvanceIfAlreadyGuessed(); res.Outcome != OutcomeIgnored {
			t.Fatalf("advance during transition = %+v", res)
		}
	}
	clock.Advance(DefaultAdvanceDelay)
	if res, _ := e.SubmitGuess(locs[1].Lat, locs[1].Lng); res.Outcome != OutcomeIgnored {
		t.Fatalf("tap between phases = %+v", res)
	}
	if saver.count() != saves+1 {
		t.Errorf("saves = %d, want %d (one for the advance)", saver.count(), saves+1)
	}

	clock.Advance(DefaultRevealDelay)
	if _, ok := e.GuessFor(1); ok {
		t.Fatal("dropped tap was recorded")
	}
	if got := e.CurrentIndex(); got != 1 {
		t.Fatalf("CurrentIndex() = %d, want 1", got)
	}
	res, err := e.SubmitGuess(locs[1].Lat, locs[1].Lng)
	if err != nil || res.Outcome != OutcomeGuessed {
		t.Fatalf("tap after reveal = %+v, %v", res, err)
	}
}

func TestSkipsLocationsThatAlreadyHaveGuesses(t *testing.T) {
	locs := testLocations(4)
	e, clock := newTestEngine(t, locs)

	st := NewState()
	st.Guesses[1] = Guess{LocationID: 1, BaseScore: 60, Multiplier: 1, Score: 60}
	st.Guesses[2] = Guess{LocationID: 2, BaseScore: 30, Multiplier: 2, Score: 60}
	st.CurrentLocationIndex = 3
	e.Restore(st)

	if got := e.CurrentIndex(); got != 0 {
		t.Fatalf("restored index = %d, want first unguessed 0", got)
	}
	if got := e.TotalScore(); got != 120 {
		t.Fatalf("restored total = %d, want 120", got)
	}

	e.SubmitGuess(locs[0].Lat, locs[0].Lng)
	clock.Advance(DefaultAdvanceDelay)
	if got := e.CurrentIndex(); got != 3 {
		t.Fatalf("index after guess = %d, want 3", got)
	}
	clock.Settle()

	e.SubmitGuess(locs[3].Lat, locs[3].Lng)
	clock.Settle()
	if !e.IsComplete() {
		t.Fatal("game should be complete")
	}
	// 120 restored + 100 + 100*3
	if got := e.TotalScore(); got != 520 {
		t.Errorf("TotalScore() = %d, want 520", got)
	}
}

func TestAdvanceIfAlreadyGuessed(t *testing.T) {
	locs := testLocations(2)
	e, clock := newTestEngine(t, locs)

	if res := e.AdvanceIfAlreadyGuessed(); res.Outcome != OutcomeNoop || res.Index != 0 {
		t.Fatalf("advance on unguessed location = %+v", res)
	}
	if e.IsTransitioning() {
		t.Fatal("noop advance raised the guard")
	}

	st := NewState()
	st.Guesses[0] = Guess{LocationID: 0, BaseScore: 10, Multiplier: 1, Score: 10}
	st.Guesses[1] = Guess{LocationID: 1, BaseScore: 10, Multiplier: 1, Score: 10}
	e.Restore(st)
	if res := e.AdvanceIfAlreadyGuessed(); res.Outcome != OutcomeComplete {
		t.Fatalf("advance when complete = %+v", res)
	}
	if clock.Pending() != 0 {
		t.Errorf("pending continuations = %d, want 0", clock.Pending())
	}
}

func TestResetSwapsSaver(t *testing.T) {
	locs := testLocations(3)
	old, next := &recordingSaver{}, &recordingSaver{}
	e, clock := newTestEngine(t, locs, WithSaver(old))

	e.SubmitGuess(locs[0].Lat, locs[0].Lng)
	oldSaves := old.count()

	if _, err := e.Reset(locs, NewState(), WithSaver(next)); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	clock.Settle()

	if old.count() != oldSaves {
		t.Errorf("old saver got %d saves after reset", old.count()-oldSaves)
	}
	if next.count() != 1 {
		t.Fatalf("new saver saves = %d, want 1", next.count())
	}
	if st := next.last(); len(st.Guesses) != 0 || st.TotalScore != 0 {
		t.Errorf("new saver got %+v, want a fresh state", st)
	}
}

func TestResetCancelsPendingTransition(t *testing.T) {
	locs := testLocations(3)
	saver := &recordingSaver{}
	e, clock := newTestEngine(t, locs, WithSaver(saver))

	e.SubmitGuess(locs[0].Lat, locs[0].Lng)
	if clock.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", clock.Pending())
	}

	next := testLocations(2)
	for i := range next {
		next[i].ID += 10
	}
	if _, err := e.Reset(next, NewState()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	saves := saver.count()
	clock.Settle()

	if saver.count() != saves {
		t.Errorf("stale continuation saved after reset")
	}
	if e.IsTransitioning() {
		t.Error("guard still raised after reset")
	}
	if got := e.CurrentIndex(); got != 0 {
		t.Errorf("CurrentIndex() = %d, want 0", got)
	}
	if got := e.TotalScore(); got != 0 {
		t.Errorf("TotalScore() = %d, want 0", got)
	}
	cur, _ := e.CurrentLocation()
	if cur.ID != 10 {
		t.Errorf("current location = %d, want 10", cur.ID)
	}

	if _, err := e.Reset(nil, NewState()); !errors.Is(err, ErrNoLocations) {
		t.Errorf("Reset(nil) error = %v", err)
	}
}

func TestStaleContinuationIsInert(t *testing.T) {
	locs := testLocations(2)
	e, clock := newTestEngine(t, locs)

	e.SubmitGuess(locs[0].Lat, locs[0].Lng)
	e.Stop()
	clock.Settle()

	if got := e.CurrentIndex(); got != 0 {
		t.Errorf("stopped transition still advanced to %d", got)
	}
	// With the guard released the player can move on by hand.
	if res := e.AdvanceIfAlreadyGuessed(); res.Outcome != OutcomeAdvanced || res.Index != 1 {
		t.Fatalf("AdvanceIfAlreadyGuessed() = %+v", res)
	}
	if !e.IsTransitioning() {
		t.Fatal("advance should run the reveal phase")
	}
	clock.Advance(DefaultRevealDelay)
	if e.IsTransitioning() {
		t.Error("guard not released after reveal")
	}
}

func TestRestoreDropsUnknownLocations(t *testing.T) {
	locs := []locations.Location{
		{ID: 0, Name: "A", Lat: 39.95, Lng: -75.15},
		{ID: 2, Name: "C", Lat: 39.96, Lng: -75.16},
	}
	e, _ := newTestEngine(t, locs)

	st := NewState()
	st.Guesses[0] = Guess{LocationID: 0, BaseScore: 100, Multiplier: 1, Score: 100}
	st.Guesses[1] = Guess{LocationID: 1, BaseScore: 50, Multiplier: 1, Score: 50}
	st.Guesses[2] = Guess{LocationID: 2, BaseScore: 20, Multiplier: 1, Score: 20}
	st.TotalScore = 170

	dropped := e.Restore(st)
	if !reflect.DeepEqual(dropped, []int{1}) {
		t.Errorf("dropped = %v, want [1]", dropped)
	}
	snap := e.Snapshot()
	if len(snap.Guesses) != 2 || snap.TotalScore != 120 {
		t.Errorf("snapshot = %+v, want 2 guesses totalling 120", snap)
	}
	if !e.IsComplete() || snap.CurrentLocationIndex != 2 {
		t.Errorf("index = %d, want complete at 2", snap.CurrentLocationIndex)
	}
}

func TestSubmitGuessRejectsNonFiniteCoordinates(t *testing.T) {
	locs := testLocations(2)
	e, clock := newTestEngine(t, locs)

	for _, c := range [][2]float64{{math.NaN(), 0}, {0, math.Inf(1)}} {
		if _, err := e.SubmitGuess(c[0], c[1]); !errors.Is(err, ErrInvalidCoordinates) {
			t.Errorf("SubmitGuess(%v) error = %v", c, err)
		}
	}
	if e.IsTransitioning() || clock.Pending() != 0 {
		t.Error("rejected guess started a transition")
	}
	// Out of range but finite coordinates are scored normally.
	res, err := e.SubmitGuess(120, 400)
	if err != nil || res.Guess.BaseScore != 0 {
		t.Errorf("SubmitGuess(120, 400) = %+v, %v", res, err)
	}
}

func TestTelemetryAndPersistence(t *testing.T) {
	locs := testLocations(2)
	sink := &recordingSink{}
	saver := &recordingSaver{err: errors.New("disk full")}
	e, clock := newTestEngine(t, locs, WithSink(sink), WithSaver(saver))

	for _, loc := range locs {
		if _, err := e.SubmitGuess(loc.Lat, loc.Lng); err != nil {
			t.Fatalf("SubmitGuess() error = %v", err)
		}
		clock.Settle()
	}

	if got := sink.count(telemetry.EventGuessSubmitted); got != 2 {
		t.Errorf("guess events = %d, want 2", got)
	}
	if got := sink.count(telemetry.EventGameCompleted); got != 1 {
		t.Errorf("completion events = %d, want 1", got)
	}
	last := sink.events[len(sink.events)-1]
	if last.TotalScore != 200 || last.Completed != 2 {
		t.Errorf("completion event = %+v", last)
	}

	// Save failures are logged, never surfaced.
	st := saver.last()
	if st.TotalScore != 200 || st.CurrentLocationIndex != 2 || len(st.Guesses) != 2 {
		t.Errorf("last saved state = %+v", st)
	}
}

func TestView(t *testing.T) {
	locs := testLocations(2)
	e, _ := newTestEngine(t, locs)
	e.SubmitGuess(locs[0].Lat, locs[0].Lng)

	v := e.View()
	if !v.Transitioning || v.Complete || v.Current == nil || v.Current.ID != 0 {
		t.Errorf("View() = %+v", v)
	}
	if v.TotalScore != 100 || len(v.Guesses) != 1 || len(v.Locations) != 2 {
		t.Errorf("View() = %+v", v)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := map[Outcome]string{
		OutcomeIgnored:  "ignored",
		OutcomeComplete: "complete",
		OutcomeNoop:     "noop",
		OutcomeGuessed:  "guessed",
		OutcomeAdvanced: "advanced",
	}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(o), got, want)
		}
	}
}
