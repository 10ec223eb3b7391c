package models

import "fmt"

const avatarURLFormat = "https://api.dicebear.com/7.x/avataaars/svg?seed=%s"

// User is an authenticated identity. ID is stable across rooms.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url"`
}

// AvatarURL returns the generated avatar for seed.
func AvatarURL(seed string) string {
	return fmt.Sprintf(avatarURLFormat, seed)
}

// Character is a preset identity a player can pick inside a room.
type Character struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

var characters = []Character{
	newCharacter("warrior", "Warrior"),
	newCharacter("mage", "Mage"),
	newCharacter("rogue", "Rogue"),
	newCharacter("healer", "Healer"),
	newCharacter("ranger", "Ranger"),
	newCharacter("paladin", "Paladin"),
	newCharacter("druid", "Druid"),
	newCharacter("bard", "Bard"),
}

func newCharacter(id, name string) Character {
	return Character{ID: id, Name: name, AvatarURL: AvatarURL(id)}
}

// Characters returns the preset characters.
func Characters() []Character {
	out := make([]Character, len(characters))
	copy(out, characters)
	return out
}

// CharacterByID looks up a preset character.
func CharacterByID(id string) (Character, bool) {
	for _, c := range characters {
		if c.ID == id {
			return c, true
		}
	}
	return Character{}, false
}
