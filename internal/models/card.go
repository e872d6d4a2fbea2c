package models

// Suit letters follow the convention used on the wire: S, H, D, C for the
// standard suits, plus R (big joker) and B (little joker).
const (
	SuitSpades   = "S"
	SuitHearts   = "H"
	SuitDiamonds = "D"
	SuitClubs    = "C"
	SuitBigJoker = "R"
	SuitLilJoker = "B"
)

// RankJoker is the rank carried by both joker cards.
const RankJoker = "O"

// Card is a playing card. Jokers carry suit R or B with rank O.
type Card struct {
	Suit string `json:"suit"`
	Rank string `json:"rank"`
}

// IsJoker reports whether the card is one of the two jokers.
func (c Card) IsJoker() bool {
	return c.Rank == RankJoker
}

// IsSpade reports whether the card counts as trump in Spades. Jokers are
// always trump.
func (c Card) IsSpade() bool {
	return c.Suit == SuitSpades || c.IsJoker()
}
