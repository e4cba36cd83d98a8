package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/susu3304/dailytap/internal/daily"
	"github.com/susu3304/dailytap/internal/game"
	"github.com/susu3304/dailytap/internal/geoscore"
	"github.com/susu3304/dailytap/internal/geourl"
	"github.com/susu3304/dailytap/internal/locations"
	"github.com/susu3304/dailytap/internal/player"
	"github.com/susu3304/dailytap/internal/share"
	"github.com/susu3304/dailytap/internal/telemetry"
)

type guessView struct {
	game.Guess
	DistanceText string `json:"distanceText"`
	Emoji        string `json:"emoji"`
}

func newGuessView(g game.Guess) guessView {
	return guessView{
		Guess:        g,
		DistanceText: geoscore.FormatDistance(g.Distance),
		Emoji:        share.Emoji(g.BaseScore),
	}
}

type gameResponse struct {
	PlayerID             string               `json:"playerId"`
	Date                 string               `json:"date"`
	DisplayDate          string               `json:"displayDate"`
	DateSpecific         bool                 `json:"dateSpecific"`
	CurrentLocationIndex int                  `json:"currentLocationIndex"`
	CurrentLocation      *locations.Location  `json:"currentLocation"`
	Complete             bool                 `json:"complete"`
	Transitioning        bool                 `json:"transitioning"`
	TotalScore           int                  `json:"totalScore"`
	Guesses              map[int]guessView    `json:"guesses"`
	Locations            []locations.Location `json:"locations"`
}

func newGameResponse(p *player.Player) gameResponse {
	v := p.Engine.View()
	guesses := make(map[int]guessView, len(v.Guesses))
	for id, g := range v.Guesses {
		guesses[id] = newGuessView(g)
	}
	return gameResponse{
		PlayerID:             p.ID,
		Date:                 p.Date(),
		DisplayDate:          daily.DisplayDate(p.Date()),
		DateSpecific:         p.Set().DateSpecific,
		CurrentLocationIndex: v.Index,
		CurrentLocation:      v.Current,
		Complete:             v.Complete,
		Transitioning:        v.Transitioning,
		TotalScore:           v.TotalScore,
		Guesses:              guesses,
		Locations:            v.Locations,
	}
}

type moveResponse struct {
	Outcome  game.Outcome        `json:"outcome"`
	Guess    *guessView          `json:"guess,omitempty"`
	Location *locations.Location `json:"location,omitempty"`
	Game     gameResponse        `json:"game"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	type result struct {
		Status string `json:"status"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]result, len(a.checks))
	status := http.StatusOK
	for name, p := range a.checks {
		if err := p.Ping(ctx); err != nil {
			a.log.Error().Err(err).Str("name", name).Msg("health check failed")
			checks[name] = result{Status: "error"}
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = result{Status: "ok"}
	}

	writeJSON(w, status, map[string]interface{}{
		"status": http.StatusText(status),
		"checks": checks,
	})
}

func (a *API) handleLocations(w http.ResponseWriter, r *http.Request) {
	set := a.players.Today()
	writeJSON(w, http.StatusOK, struct {
		locations.Set
		DisplayDate string `json:"displayDate"`
	}{set, daily.DisplayDate(set.Date)})
}

// currentPlayer resolves the authenticated player's game. It writes the error
// response itself and returns nil on failure.
func (a *API) currentPlayer(w http.ResponseWriter, r *http.Request) *player.Player {
	claims := claimsFrom(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing claims")
		return nil
	}
	p, err := a.players.Get(r.Context(), claims.PlayerID)
	if err != nil {
		a.log.Error().Err(err).Str("player", claims.PlayerID).Msg("failed to load game")
		writeError(w, http.StatusInternalServerError, "failed to load game")
		return nil
	}
	return p
}

func (a *API) handleGame(w http.ResponseWriter, r *http.Request) {
	p := a.currentPlayer(w, r)
	if p == nil {
		return
	}
	writeJSON(w, http.StatusOK, newGameResponse(p))
}

func (a *API) handleGuess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
		URL string   `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var lat, lng float64
	switch {
	case req.URL != "":
		var err error
		lat, lng, err = a.resolver.Extract(r.Context(), req.URL)
		if errors.Is(err, geourl.ErrHostNotAllowed) {
			writeError(w, http.StatusUnprocessableEntity, "only map links are supported")
			return
		}
		if err != nil {
			a.log.Debug().Err(err).Str("url", req.URL).Msg("could not resolve map link")
			writeError(w, http.StatusUnprocessableEntity, "no coordinates found in link")
			return
		}
	case req.Lat != nil && req.Lng != nil:
		lat, lng = *req.Lat, *req.Lng
	default:
		writeError(w, http.StatusBadRequest, "lat and lng, or url, are required")
		return
	}

	p := a.currentPlayer(w, r)
	if p == nil {
		return
	}

	res, err := p.Engine.SubmitGuess(lat, lng)
	switch {
	case errors.Is(err, game.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	resp := moveResponse{Outcome: res.Outcome, Game: newGameResponse(p)}
	if res.Outcome == game.OutcomeGuessed {
		gv := newGuessView(res.Guess)
		loc := res.Location
		resp.Guess = &gv
		resp.Location = &loc
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleAdvance(w http.ResponseWriter, r *http.Request) {
	p := a.currentPlayer(w, r)
	if p == nil {
		return
	}
	res := p.Engine.AdvanceIfAlreadyGuessed()
	writeJSON(w, http.StatusOK, moveResponse{Outcome: res.Outcome, Game: newGameResponse(p)})
}

func (a *API) handleShare(w http.ResponseWriter, r *http.Request) {
	p := a.currentPlayer(w, r)
	if p == nil {
		return
	}
	v := p.Engine.View()
	msg := a.share.Format(v.Guesses, v.Locations, v.TotalScore)

	// Repeated requests for the same text are not reported again.
	if p.MarkShared(msg) {
		telemetry.WithPlayer(a.sink, p.ID, p.Date()).Emit(telemetry.Event{
			Type:       telemetry.EventShareRequested,
			TotalScore: v.TotalScore,
			Completed:  len(v.Guesses),
			Message:    msg,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  msg,
		"complete": v.Complete,
	})
}
