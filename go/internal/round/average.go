package round

import (
	"github.com/shopspring/decimal"

	"github.com/mcdev12/scrumscope/go/internal/models"
)

// estimatePlaces is the number of fractional digits kept in an estimate.
const estimatePlaces = 1

// Estimate is the mean of the numeric votes of a round.
type Estimate struct {
	Value decimal.Decimal
	// Votes is how many numeric votes went into Value.
	Votes int
}

// String formats the estimate with one fractional digit, e.g. "6.5" or "5.0".
func (e Estimate) String() string {
	return e.Value.StringFixed(estimatePlaces)
}

// ParseVote returns the numeric value of a card. Tokens such as "?", "∞",
// "XS" or "☕" are not numeric.
func ParseVote(card string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(card)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Average computes the mean over the players' numeric votes. ok is false when
// no player holds a numeric vote.
func Average(players []models.Player) (est Estimate, ok bool) {
	sum := decimal.Zero
	n := 0
	for _, p := range players {
		if !p.HasVoted || p.CurrentVote == nil {
			continue
		}
		v, numeric := ParseVote(*p.CurrentVote)
		if !numeric {
			continue
		}
		sum = sum.Add(v)
		n++
	}
	if n == 0 {
		return Estimate{}, false
	}
	mean := sum.DivRound(decimal.NewFromInt(int64(n)), estimatePlaces)
	return Estimate{Value: mean, Votes: n}, true
}

// Tally counts how many of the players have voted.
type Tally struct {
	Voted int `json:"voted"`
	Total int `json:"total"`
}

// Count tallies the roster.
func Count(players []models.Player) Tally {
	t := Tally{Total: len(players)}
	for _, p := range players {
		if p.HasVoted {
			t.Voted++
		}
	}
	return t
}

// AllVoted reports whether every player has voted. An empty roster never has.
func AllVoted(players []models.Player) bool {
	t := Count(players)
	return t.Total > 0 && t.Voted == t.Total
}
