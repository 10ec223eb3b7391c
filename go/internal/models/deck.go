package models

import (
	"fmt"
	"sort"
)

// Tokens accepted in every deck. Neither contributes to an average.
const (
	CardUnknown  = "?"
	CardInfinity = "∞"
)

// DefaultDeckID is used when a room does not name a deck.
const DefaultDeckID = "fibonacci"

// Deck is the set of card values players choose from.
type Deck struct {
	ID    string   `json:"id" yaml:"id"`
	Name  string   `json:"name" yaml:"name"`
	Cards []string `json:"cards" yaml:"cards"`
}

// Contains reports whether value is a playable card of d.
func (d Deck) Contains(value string) bool {
	if value == CardUnknown || value == CardInfinity {
		return true
	}
	for _, c := range d.Cards {
		if c == value {
			return true
		}
	}
	return false
}

// BuiltinDecks returns the decks available without configuration.
func BuiltinDecks() []Deck {
	return []Deck{
		{
			ID:    "fibonacci",
			Name:  "Fibonacci",
			Cards: []string{"0", "1", "2", "3", "5", "8", "13", "21", "34", "55", "89", CardUnknown, CardInfinity, "☕"},
		},
		{
			ID:    "tshirt",
			Name:  "T-Shirt Sizes",
			Cards: []string{"XS", "S", "M", "L", "XL", "XXL", CardUnknown},
		},
		{
			ID:    "power",
			Name:  "Power of 2",
			Cards: []string{"1", "2", "4", "8", "16", "32", CardUnknown, CardInfinity},
		},
	}
}

// DeckSet resolves deck ids to decks.
type DeckSet struct {
	decks map[string]Deck
}

// NewDeckSet builds a DeckSet from the builtin decks plus extra.
// Extra decks replace builtins with the same id.
func NewDeckSet(extra ...Deck) (*DeckSet, error) {
	ds := &DeckSet{decks: make(map[string]Deck)}
	for _, d := range BuiltinDecks() {
		ds.decks[d.ID] = d
	}
	for _, d := range extra {
		if d.ID == "" {
			return nil, fmt.Errorf("deck %q: id is required", d.Name)
		}
		if len(d.Cards) == 0 {
			return nil, fmt.Errorf("deck %q: at least one card is required", d.ID)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		ds.decks[d.ID] = d
	}
	return ds, nil
}

// Get returns the deck for id, falling back to the default deck.
func (ds *DeckSet) Get(id string) Deck {
	if d, ok := ds.decks[id]; ok {
		return d
	}
	return ds.decks[DefaultDeckID]
}

// Has reports whether id names a known deck.
func (ds *DeckSet) Has(id string) bool {
	_, ok := ds.decks[id]
	return ok
}

// All returns every deck sorted by id.
func (ds *DeckSet) All() []Deck {
	out := make([]Deck, 0, len(ds.decks))
	for _, d := range ds.decks {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
