// internal/games/spades/cards.go
package spades

import (
	"fmt"

	"github.com/agraham02/family-games/internal/games"
	"github.com/agraham02/family-games/internal/models"
)

var standardRanks = []string{"2", "3", "4", "5", "6", "7", "8", "9", "T", "J", "Q", "K", "A"}

var baseRankValue = map[string]int{
	"2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7, "8": 8,
	"9": 9, "T": 10, "J": 11, "Q": 12, "K": 13, "A": 14,
}

// Trump values above the ace of spades (14). The deuce-high rule slots the
// two of spades between the ace and the jokers.
const (
	deuceHighValue = 16
	lilJokerValue  = 17
	bigJokerValue  = 18
)

// buildDeck assembles the deck per settings. With jokers enabled, the two of
// hearts and two of clubs are removed so four hands stay at 13 cards.
func buildDeck(st settings) []models.Card {
	deck := make([]models.Card, 0, 54)
	for _, suit := range []string{models.SuitSpades, models.SuitHearts, models.SuitDiamonds, models.SuitClubs} {
		for _, rank := range standardRanks {
			if st.Jokers && rank == "2" && (suit == models.SuitHearts || suit == models.SuitClubs) {
				continue
			}
			deck = append(deck, models.Card{Suit: suit, Rank: rank})
		}
	}
	if st.Jokers {
		deck = append(deck,
			models.Card{Suit: models.SuitBigJoker, Rank: models.RankJoker},
			models.Card{Suit: models.SuitLilJoker, Rank: models.RankJoker},
		)
	}
	return deck
}

// shuffleDeck shuffles in place using the injected shuffler.
func shuffleDeck(deck []models.Card, rng games.Shuffler) {
	rng.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
}

// trumpValue ranks a trump card within the trump suit. Non-trump cards
// return 0.
func trumpValue(c models.Card, st settings) int {
	if !c.IsSpade() {
		return 0
	}
	switch c.Suit {
	case models.SuitBigJoker:
		return bigJokerValue
	case models.SuitLilJoker:
		return lilJokerValue
	}
	if st.DeuceHigh && c.Rank == "2" {
		return deuceHighValue
	}
	return baseRankValue[c.Rank]
}

// effectiveSuit maps jokers onto spades for follow/lead purposes.
func effectiveSuit(c models.Card) string {
	if c.IsJoker() {
		return models.SuitSpades
	}
	return c.Suit
}

// beats reports whether challenger wins against the current trick winner,
// given the suit that led the trick.
func beats(challenger, winner models.Card, ledSuit string, st settings) bool {
	cTrump, wTrump := challenger.IsSpade(), winner.IsSpade()
	switch {
	case cTrump && !wTrump:
		return true
	case !cTrump && wTrump:
		return false
	case cTrump && wTrump:
		return trumpValue(challenger, st) > trumpValue(winner, st)
	default:
		if effectiveSuit(challenger) != ledSuit {
			return false
		}
		return baseRankValue[challenger.Rank] > baseRankValue[winner.Rank]
	}
}

// parseCard pulls a card out of an action payload.
func parseCard(payload map[string]interface{}) (models.Card, error) {
	suit, _ := payload["suit"].(string)
	rank, _ := payload["rank"].(string)
	if suit == "" || rank == "" {
		return models.Card{}, fmt.Errorf("payload missing suit or rank")
	}
	return models.Card{Suit: suit, Rank: rank}, nil
}

// removeCard deletes one matching card from a hand, reporting success.
func removeCard(hand []models.Card, c models.Card) ([]models.Card, bool) {
	for i, hc := range hand {
		if hc == c {
			return append(hand[:i:i], hand[i+1:]...), true
		}
	}
	return hand, false
}

// holdsSuit reports whether the hand contains any card of the effective suit.
func holdsSuit(hand []models.Card, suit string) bool {
	for _, c := range hand {
		if effectiveSuit(c) == suit {
			return true
		}
	}
	return false
}

// allSpades reports whether the hand is nothing but trump.
func allSpades(hand []models.Card) bool {
	for _, c := range hand {
		if !c.IsSpade() {
			return false
		}
	}
	return len(hand) > 0
}
