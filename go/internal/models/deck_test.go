package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeckContains(t *testing.T) {
	deck := Deck{ID: "tiny", Cards: []string{"1", "2"}}

	assert.True(t, deck.Contains("1"))
	assert.True(t, deck.Contains(CardUnknown))
	assert.True(t, deck.Contains(CardInfinity))
	assert.False(t, deck.Contains("3"))
}

func TestNewDeckSet(t *testing.T) {
	ds, err := NewDeckSet(Deck{ID: "hours", Cards: []string{"1", "4", "8"}})
	require.NoError(t, err)

	assert.True(t, ds.Has("hours"))
	assert.Equal(t, "hours", ds.Get("hours").Name)
	assert.Equal(t, DefaultDeckID, ds.Get("missing").ID)
	assert.Len(t, ds.All(), len(BuiltinDecks())+1)

	_, err = NewDeckSet(Deck{ID: "empty"})
	assert.Error(t, err)
	_, err = NewDeckSet(Deck{Name: "no id", Cards: []string{"1"}})
	assert.Error(t, err)
}

func TestCharacterByID(t *testing.T) {
	c, ok := CharacterByID("mage")
	require.True(t, ok)
	assert.Equal(t, "Mage", c.Name)
	assert.Equal(t, "https://api.dicebear.com/7.x/avataaars/svg?seed=mage", c.AvatarURL)

	_, ok = CharacterByID("necromancer")
	assert.False(t, ok)
}
