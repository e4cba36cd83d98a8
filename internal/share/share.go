// Package share builds the plain-text score summary players paste elsewhere.
package share

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/susu3304/dailytap/internal/daily"
	"github.com/susu3304/dailytap/internal/game"
	"github.com/susu3304/dailytap/internal/locations"
)

// DefaultSite heads the message when no site is configured.
const DefaultSite = "dailytap.app"

// Formatter renders share messages. Now defaults to time.Now.
type Formatter struct {
	Site string
	Now  func() time.Time
}

// Format returns
//
//	<site>  <Month D>
//	<base><emoji> <base><emoji> ...
//	Final score: <total>
//
// with one token per guessed location in ascending id order. Tokens show the
// base score, before multipliers.
func (f Formatter) Format(guesses map[int]game.Guess, locs []locations.Location, total int) string {
	site := f.Site
	if site == "" {
		site = DefaultSite
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	ids := make([]int, 0, len(locs))
	for _, l := range locs {
		ids = append(ids, l.ID)
	}
	sort.Ints(ids)

	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		g, ok := guesses[id]
		if !ok {
			continue
		}
		tokens = append(tokens, fmt.Sprintf("%d%s", g.BaseScore, Emoji(g.BaseScore)))
	}

	return fmt.Sprintf("%s  %s\n%s\nFinal score: %d",
		site, daily.ShareDate(now()), strings.Join(tokens, " "), total)
}

type tier struct {
	min   int
	emoji string
}

// tiers is ordered from the highest threshold down.
var tiers = []tier{
	{100, "🎯"},
	{95, "🏅"},
	{90, "🏆"},
	{85, "🎉"},
	{80, "✨"},
	{75, "😁"},
	{70, "🤗"},
	{60, "🙂"},
	{50, "🫣"},
	{40, "😶"},
	{30, "😐"},
	{20, "😕"},
	{10, "😢"},
	{1, "💀"},
	{0, "😭"},
}

// Emoji maps a base score to its tier. Scores outside [0, 100] are clamped.
func Emoji(score int) string {
	if score > 100 {
		score = 100
	}
	for _, t := range tiers {
		if score >= t.min {
			return t.emoji
		}
	}
	return tiers[len(tiers)-1].emoji
}
