// internal/games/spades/cards_test.go
package spades

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agraham02/family-games/internal/models"
)

func TestBuildDeckStandard(t *testing.T) {
	deck := buildDeck(settings{})
	assert.Len(t, deck, 52)
}

func TestBuildDeckJokersDropsRedAndBlackDeuces(t *testing.T) {
	deck := buildDeck(settings{Jokers: true})
	assert.Len(t, deck, 52, "two jokers in, two of hearts and clubs out")

	for _, c := range deck {
		if c.Rank == "2" {
			assert.NotEqual(t, models.SuitHearts, c.Suit)
			assert.NotEqual(t, models.SuitClubs, c.Suit)
		}
	}
	jokers := 0
	for _, c := range deck {
		if c.IsJoker() {
			jokers++
		}
	}
	assert.Equal(t, 2, jokers)
}

func TestBeatsFollowsLedSuit(t *testing.T) {
	st := settings{}
	// Higher card of the led suit wins.
	assert.True(t, beats(card("H", "K"), card("H", "5"), "H", st))
	// Off-suit cards never win without trump.
	assert.False(t, beats(card("D", "A"), card("H", "5"), "H", st))
	// Any trump beats any non-trump.
	assert.True(t, beats(card("S", "2"), card("H", "A"), "H", st))
	assert.False(t, beats(card("H", "A"), card("S", "2"), "H", st))
	// Trump against trump compares rank.
	assert.True(t, beats(card("S", "Q"), card("S", "J"), "D", st))
}

func TestBeatsJokerOrdering(t *testing.T) {
	st := settings{Jokers: true, DeuceHigh: true}
	big := card(models.SuitBigJoker, models.RankJoker)
	lil := card(models.SuitLilJoker, models.RankJoker)
	deuce := card("S", "2")
	ace := card("S", "A")

	assert.True(t, beats(big, lil, "S", st))
	assert.False(t, beats(lil, big, "S", st))
	assert.True(t, beats(lil, deuce, "S", st))
	assert.True(t, beats(deuce, ace, "S", st), "deuce of spades outranks the ace when deuce-high is on")
	assert.False(t, beats(deuce, ace, "S", settings{}), "plain deuce stays low")
}

func TestEffectiveSuitMapsJokersToSpades(t *testing.T) {
	assert.Equal(t, models.SuitSpades, effectiveSuit(card(models.SuitBigJoker, models.RankJoker)))
	assert.Equal(t, models.SuitHearts, effectiveSuit(card("H", "9")))
}

func TestRemoveCard(t *testing.T) {
	hand := []models.Card{card("H", "5"), card("D", "9"), card("H", "5")}
	out, ok := removeCard(hand, card("H", "5"))
	assert.True(t, ok)
	assert.Len(t, out, 2, "removes exactly one copy")

	_, ok = removeCard(out, card("C", "A"))
	assert.False(t, ok)
}

func TestHoldsSuitCountsJokersAsSpades(t *testing.T) {
	hand := []models.Card{card(models.SuitLilJoker, models.RankJoker), card("H", "4")}
	assert.True(t, holdsSuit(hand, models.SuitSpades))
	assert.False(t, holdsSuit(hand, models.SuitDiamonds))
}
