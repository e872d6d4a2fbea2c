// internal/games/spades/spades.go
package spades

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/agraham02/family-games/internal/games"
	"github.com/agraham02/family-games/internal/models"
)

// GameType is the registry identifier for this module.
const GameType = "spades"

// Phases of a Spades session. Dealing happens synchronously inside
// Initialize/StartNextRound, so the first observable phase is bidding.
const (
	PhaseBidding      = "bidding"
	PhasePlaying      = "playing"
	PhaseRoundSummary = "round_summary"
	PhaseGameOver     = "game_over"
)

// Action types accepted by ApplyAction.
const (
	ActionBid      = "bid"
	ActionPlayCard = "play_card"
	ActionBlindNil = "declare_blind_nil"
)

// Event types emitted in StepResults.
const (
	EventPrivateHand     = "private_hand"
	EventBidPlaced       = "bid_placed"
	EventBiddingComplete = "bidding_complete"
	EventCardPlayed      = "card_played"
	EventSpadesBroken    = "spades_broken"
	EventTrickResult     = "trick_result"
	EventRoundSummary    = "round_summary"
	EventGameOver        = "game_over"
	EventPlayerForfeited = "player_forfeited"
)

const (
	playersRequired = 4
	tricksPerRound  = 13
	bagThreshold    = 10
	nilBonus        = 100
	blindNilBonus   = 200
)

type settings struct {
	WinTarget     int
	RoundLimit    int
	BagsPenalty   int
	AllowNil      bool
	AllowBlindNil bool
	Jokers        bool
	DeuceHigh     bool
}

func defaultSettings() settings {
	return settings{
		WinTarget:   500,
		RoundLimit:  15,
		BagsPenalty: 100,
		AllowNil:    true,
	}
}

type bid struct {
	Value int  `json:"value"`
	Nil   bool `json:"nil"`
	Blind bool `json:"blind"`
	Auto  bool `json:"auto"`
}

type play struct {
	Player uuid.UUID   `json:"player"`
	Card   models.Card `json:"card"`
}

// session is the full Spades game state. Only the Engine touches it; the
// orchestrator sees the Envelope and Snapshot views.
type session struct {
	phase       string
	players     []uuid.UUID   // play order, teams interleaved
	teams       [][]uuid.UUID // two teams of two
	teamOf      map[uuid.UUID]int
	st          settings
	round       int
	dealerIndex int
	turnIndex   int

	hands    map[uuid.UUID][]models.Card
	revealed map[uuid.UUID]bool
	bids     map[uuid.UUID]*bid

	trick        []play
	tricksWon    map[uuid.UUID]int
	spadesBroken bool

	scores      []int // cumulative per team
	bags        []int // cumulative per team
	roundDeltas []int // last scored round, per team

	forfeited map[uuid.UUID]bool

	winnerTeams []int
	tie         bool
}

func (s *session) Envelope() games.Envelope {
	return games.Envelope{
		Phase:            s.phase,
		PlayOrder:        append([]uuid.UUID(nil), s.players...),
		CurrentTurnIndex: s.turnIndex,
	}
}

func (s *session) Snapshot(viewer uuid.UUID) map[string]interface{} {
	bids := make(map[string]interface{}, len(s.bids))
	for pid, b := range s.bids {
		bids[pid.String()] = b
	}
	tricks := make(map[string]int, len(s.tricksWon))
	for pid, n := range s.tricksWon {
		tricks[pid.String()] = n
	}
	snap := map[string]interface{}{
		"phase":        s.phase,
		"round":        s.round,
		"playOrder":    s.players,
		"currentTurn":  s.players[s.turnIndex].String(),
		"bids":         bids,
		"trick":        s.trick,
		"tricksWon":    tricks,
		"spadesBroken": s.spadesBroken,
		"scores":       s.scores,
		"bags":         s.bags,
	}
	if s.revealed[viewer] {
		snap["hand"] = sortedHand(s.hands[viewer])
	}
	return snap
}

func sortedHand(hand []models.Card) []models.Card {
	out := append([]models.Card(nil), hand...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Suit != out[j].Suit {
			return out[i].Suit < out[j].Suit
		}
		return baseRankValue[out[i].Rank] < baseRankValue[out[j].Rank]
	})
	return out
}

// Engine is the Spades rule engine. It is stateless; all game state lives in
// the session values it produces.
type Engine struct{}

func New() *Engine { return &Engine{} }

func (e *Engine) Meta() games.Metadata {
	return games.Metadata{
		Type:        GameType,
		DisplayName: "Spades",
		Description: "Trick-taking partnership game with bidding, bags, and nil bids.",
		MinPlayers:  playersRequired,
		MaxPlayers:  playersRequired,
		Teams:       &games.TeamRequirement{NumTeams: 2, PlayersPerTeam: 2},
		Enabled:     true,
	}
}

func (e *Engine) SettingsSchema() (map[string]interface{}, map[string]interface{}) {
	schema := map[string]interface{}{
		"winTarget":     map[string]interface{}{"type": "integer", "min": 100, "max": 1000, "label": "Winning score"},
		"roundLimit":    map[string]interface{}{"type": "integer", "min": 1, "max": 50, "label": "Maximum rounds"},
		"bagsPenalty":   map[string]interface{}{"type": "integer", "min": 0, "max": 200, "label": "Penalty per 10 bags"},
		"allowNil":      map[string]interface{}{"type": "boolean", "label": "Allow nil bids"},
		"allowBlindNil": map[string]interface{}{"type": "boolean", "label": "Allow blind nil bids"},
		"jokers":        map[string]interface{}{"type": "boolean", "label": "Play with jokers"},
		"deuceHigh":     map[string]interface{}{"type": "boolean", "label": "Deuce of spades high"},
	}
	def := defaultSettings()
	defaults := map[string]interface{}{
		"winTarget":     def.WinTarget,
		"roundLimit":    def.RoundLimit,
		"bagsPenalty":   def.BagsPenalty,
		"allowNil":      def.AllowNil,
		"allowBlindNil": def.AllowBlindNil,
		"jokers":        def.Jokers,
		"deuceHigh":     def.DeuceHigh,
	}
	return schema, defaults
}

func parseSettings(raw map[string]interface{}) (settings, error) {
	st := defaultSettings()
	readInt := func(key string, dst *int, minVal, maxVal int) error {
		val, ok := raw[key]
		if !ok || val == nil {
			return nil
		}
		var n int
		switch v := val.(type) {
		case float64:
			n = int(v)
		case int:
			n = v
		default:
			return fmt.Errorf("setting %s must be a number", key)
		}
		if n < minVal || n > maxVal {
			return fmt.Errorf("setting %s out of range [%d, %d]", key, minVal, maxVal)
		}
		*dst = n
		return nil
	}
	readBool := func(key string, dst *bool) error {
		val, ok := raw[key]
		if !ok || val == nil {
			return nil
		}
		b, ok := val.(bool)
		if !ok {
			return fmt.Errorf("setting %s must be a boolean", key)
		}
		*dst = b
		return nil
	}

	if err := readInt("winTarget", &st.WinTarget, 100, 1000); err != nil {
		return st, err
	}
	if err := readInt("roundLimit", &st.RoundLimit, 1, 50); err != nil {
		return st, err
	}
	if err := readInt("bagsPenalty", &st.BagsPenalty, 0, 200); err != nil {
		return st, err
	}
	if err := readBool("allowNil", &st.AllowNil); err != nil {
		return st, err
	}
	if err := readBool("allowBlindNil", &st.AllowBlindNil); err != nil {
		return st, err
	}
	if err := readBool("jokers", &st.Jokers); err != nil {
		return st, err
	}
	if err := readBool("deuceHigh", &st.DeuceHigh); err != nil {
		return st, err
	}
	return st, nil
}

// Initialize deals the first round. Play order interleaves the two teams so
// partners sit across from each other.
func (e *Engine) Initialize(players []uuid.UUID, teams [][]uuid.UUID, raw map[string]interface{}, rng games.Shuffler) (games.Session, error) {
	if len(players) != playersRequired {
		return nil, fmt.Errorf("spades requires exactly %d players, got %d", playersRequired, len(players))
	}
	if len(teams) != 2 || len(teams[0]) != 2 || len(teams[1]) != 2 {
		return nil, fmt.Errorf("spades requires 2 teams of 2")
	}
	st, err := parseSettings(raw)
	if err != nil {
		return nil, err
	}

	teamOf := make(map[uuid.UUID]int, playersRequired)
	for ti, team := range teams {
		for _, pid := range team {
			teamOf[pid] = ti
		}
	}
	for _, pid := range players {
		if _, ok := teamOf[pid]; !ok {
			return nil, fmt.Errorf("player %s not assigned to a team", pid)
		}
	}

	order := []uuid.UUID{teams[0][0], teams[1][0], teams[0][1], teams[1][1]}
	s := &session{
		players:   order,
		teams:     [][]uuid.UUID{append([]uuid.UUID(nil), teams[0]...), append([]uuid.UUID(nil), teams[1]...)},
		teamOf:    teamOf,
		st:        st,
		scores:    make([]int, 2),
		bags:      make([]int, 2),
		forfeited: make(map[uuid.UUID]bool),
	}
	s.deal(rng)
	return s, nil
}

// deal starts a fresh round: new hands, bids cleared, bidding opens left of
// the dealer. Hands stay hidden until each player's bid turn so blind nil
// declarations can land first.
func (s *session) deal(rng games.Shuffler) {
	s.round++
	deck := buildDeck(s.st)
	shuffleDeck(deck, rng)

	s.hands = make(map[uuid.UUID][]models.Card, playersRequired)
	s.revealed = make(map[uuid.UUID]bool, playersRequired)
	s.bids = make(map[uuid.UUID]*bid, playersRequired)
	s.tricksWon = make(map[uuid.UUID]int, playersRequired)
	s.trick = nil
	s.spadesBroken = false
	s.roundDeltas = nil

	for i, pid := range s.players {
		s.hands[pid] = append([]models.Card(nil), deck[i*tricksPerRound:(i+1)*tricksPerRound]...)
	}

	s.phase = PhaseBidding
	s.turnIndex = (s.dealerIndex + 1) % playersRequired
	s.revealCurrentBidder()
}

// revealCurrentBidder reveals the hand of the player whose bid turn it is,
// unless they pre-declared blind nil. Forfeited players auto-bid zero.
func (s *session) revealCurrentBidder() {
	pid := s.players[s.turnIndex]
	if b := s.bids[pid]; b == nil || !b.Blind {
		s.revealed[pid] = true
	}
}

func (s *session) currentPlayer() uuid.UUID {
	return s.players[s.turnIndex]
}

func (e *Engine) TurnExempt(gs games.Session, actionType string) bool {
	s, ok := gs.(*session)
	if !ok {
		return false
	}
	// Blind nil must land before the bid turn reveals the hand, so it is the
	// one out-of-turn action.
	return actionType == ActionBlindNil && s.phase == PhaseBidding
}

func (e *Engine) ApplyAction(gs games.Session, playerID uuid.UUID, action models.GameAction) (*games.StepResult, error) {
	s, ok := gs.(*session)
	if !ok {
		return nil, fmt.Errorf("session is not a spades session")
	}
	switch action.ActionType {
	case ActionBlindNil:
		return s.applyBlindNil(playerID)
	case ActionBid:
		return s.applyBid(playerID, action.Payload)
	case ActionPlayCard:
		return s.applyPlayCard(playerID, action.Payload)
	default:
		return nil, games.Illegal("unknown_action", "action %q is not a spades action", action.ActionType)
	}
}

func (s *session) applyBlindNil(playerID uuid.UUID) (*games.StepResult, error) {
	if s.phase != PhaseBidding {
		return nil, games.Illegal("wrong_phase", "blind nil only during bidding")
	}
	if !s.st.AllowBlindNil {
		return nil, games.Illegal("blind_nil_disabled", "blind nil is disabled in this game")
	}
	if s.revealed[playerID] {
		return nil, games.Illegal("hand_revealed", "blind nil must be declared before seeing the hand")
	}
	if s.bids[playerID] != nil {
		return nil, games.Illegal("already_bid", "bid already placed")
	}
	s.bids[playerID] = &bid{Nil: true, Blind: true}
	res := &games.StepResult{Events: []games.Event{{
		Type:    EventBidPlaced,
		Payload: map[string]interface{}{"player": playerID.String(), "nil": true, "blind": true},
	}}}
	s.advanceBidding(res)
	return res, nil
}

func (s *session) applyBid(playerID uuid.UUID, payload map[string]interface{}) (*games.StepResult, error) {
	if s.phase != PhaseBidding {
		return nil, games.Illegal("wrong_phase", "bidding is over")
	}
	if s.bids[playerID] != nil {
		return nil, games.Illegal("already_bid", "bid already placed")
	}

	b := &bid{}
	if isNil, _ := payload["nil"].(bool); isNil {
		if !s.st.AllowNil {
			return nil, games.Illegal("nil_disabled", "nil bids are disabled in this game")
		}
		b.Nil = true
	} else {
		val, ok := payload["value"].(float64)
		if !ok {
			if iv, iok := payload["value"].(int); iok {
				val, ok = float64(iv), true
			}
		}
		if !ok {
			return nil, games.Illegal("bad_bid", "bid payload missing value")
		}
		if val < 0 || val > tricksPerRound {
			return nil, games.Illegal("bad_bid", "bid must be between 0 and %d", tricksPerRound)
		}
		b.Value = int(val)
	}

	s.bids[playerID] = b
	s.revealed[playerID] = true
	res := &games.StepResult{Events: []games.Event{{
		Type:    EventBidPlaced,
		Payload: map[string]interface{}{"player": playerID.String(), "value": b.Value, "nil": b.Nil},
	}}}
	s.advanceBidding(res)
	return res, nil
}

// advanceBidding moves the bid turn past players who already have a bid
// (blind nils, forfeits) and transitions to playing once all four are in.
func (s *session) advanceBidding(res *games.StepResult) {
	for range s.players {
		next := -1
		for i := 0; i < playersRequired; i++ {
			idx := (s.turnIndex + i) % playersRequired
			if s.bids[s.players[idx]] == nil {
				next = idx
				break
			}
		}
		if next == -1 {
			s.startPlaying(res)
			return
		}
		s.turnIndex = next
		pid := s.players[next]
		if s.forfeited[pid] {
			s.bids[pid] = &bid{Value: 0, Auto: true}
			res.Events = append(res.Events, games.Event{
				Type:    EventBidPlaced,
				Payload: map[string]interface{}{"player": pid.String(), "value": 0, "auto": true},
			})
			continue
		}
		s.revealCurrentBidder()
		return
	}
}

// startPlaying transitions to trick play. All hands are revealed now,
// including blind-nil hands.
func (s *session) startPlaying(res *games.StepResult) {
	s.phase = PhasePlaying
	for _, pid := range s.players {
		s.revealed[pid] = true
	}
	s.turnIndex = (s.dealerIndex + 1) % playersRequired
	res.Events = append(res.Events, games.Event{Type: EventBiddingComplete, Payload: map[string]interface{}{
		"leader": s.currentPlayer().String(),
	}})
	s.autoPlayForfeited(res)
}

// checkLegal enforces the lead/follow rules without mutating state.
func (s *session) checkLegal(playerID uuid.UUID, card models.Card) error {
	hand := s.hands[playerID]
	held := false
	for _, hc := range hand {
		if hc == card {
			held = true
			break
		}
	}
	if !held {
		return games.Illegal("card_not_held", "card %s%s is not in hand", card.Rank, card.Suit)
	}

	if len(s.trick) == 0 {
		if card.IsSpade() && !s.spadesBroken && !allSpades(hand) {
			return games.Illegal("spades_not_broken", "cannot lead a spade before spades are broken")
		}
		return nil
	}

	led := effectiveSuit(s.trick[0].Card)
	if effectiveSuit(card) != led && holdsSuit(hand, led) {
		return games.Illegal("must_follow_suit", "must follow %s", led)
	}
	return nil
}

func (s *session) applyPlayCard(playerID uuid.UUID, payload map[string]interface{}) (*games.StepResult, error) {
	if s.phase != PhasePlaying {
		return nil, games.Illegal("wrong_phase", "not in the playing phase")
	}
	card, err := parseCard(payload)
	if err != nil {
		return nil, games.Illegal("bad_card", "%v", err)
	}
	if err := s.checkLegal(playerID, card); err != nil {
		return nil, err
	}

	res := &games.StepResult{}
	s.commitPlay(playerID, card, res)
	s.autoPlayForfeited(res)
	return res, nil
}

// commitPlay applies an already-validated card play and resolves the trick
// when it fills.
func (s *session) commitPlay(playerID uuid.UUID, card models.Card, res *games.StepResult) {
	s.hands[playerID], _ = removeCard(s.hands[playerID], card)
	s.trick = append(s.trick, play{Player: playerID, Card: card})
	res.Events = append(res.Events, games.Event{
		Type:    EventCardPlayed,
		Payload: map[string]interface{}{"player": playerID.String(), "card": card},
	})

	if card.IsSpade() && !s.spadesBroken {
		s.spadesBroken = true
		res.Events = append(res.Events, games.Event{Type: EventSpadesBroken})
	}

	if len(s.trick) < playersRequired {
		s.turnIndex = (s.turnIndex + 1) % playersRequired
		return
	}
	s.resolveTrick(res)
}

// resolveTrick scores a full trick, hands the lead to the winner, and closes
// the round after the thirteenth trick.
func (s *session) resolveTrick(res *games.StepResult) {
	ledSuit := effectiveSuit(s.trick[0].Card)
	winner := s.trick[0]
	for _, p := range s.trick[1:] {
		if beats(p.Card, winner.Card, ledSuit, s.st) {
			winner = p
		}
	}
	s.tricksWon[winner.Player]++
	res.Events = append(res.Events, games.Event{
		Type: EventTrickResult,
		Payload: map[string]interface{}{
			"winner": winner.Player.String(),
			"trick":  s.trick,
		},
	})
	s.trick = nil

	for i, pid := range s.players {
		if pid == winner.Player {
			s.turnIndex = i
			break
		}
	}

	if len(s.hands[s.players[0]]) == 0 {
		s.finishRound(res)
	}
}

// autoPlayForfeited plays out turns for forfeited players: lowest legal card
// each time the turn reaches one.
func (s *session) autoPlayForfeited(res *games.StepResult) {
	for s.phase == PhasePlaying && s.forfeited[s.currentPlayer()] {
		pid := s.currentPlayer()
		card, ok := s.lowestLegalCard(pid)
		if !ok {
			return
		}
		s.commitPlay(pid, card, res)
	}
}

// lowestLegalCard picks the cheapest card that passes checkLegal, preferring
// non-trump so forfeited seats bleed minimal value.
func (s *session) lowestLegalCard(playerID uuid.UUID) (models.Card, bool) {
	hand := sortedHand(s.hands[playerID])
	var fallback *models.Card
	for i := range hand {
		c := hand[i]
		if s.checkLegal(playerID, c) != nil {
			continue
		}
		if !c.IsSpade() {
			return c, true
		}
		if fallback == nil {
			fallback = &hand[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return models.Card{}, false
}

func (e *Engine) Forfeit(gs games.Session, playerID uuid.UUID) (*games.StepResult, error) {
	s, ok := gs.(*session)
	if !ok {
		return nil, fmt.Errorf("session is not a spades session")
	}
	if s.forfeited[playerID] {
		return &games.StepResult{}, nil
	}
	s.forfeited[playerID] = true
	res := &games.StepResult{Events: []games.Event{{
		Type:    EventPlayerForfeited,
		Payload: map[string]interface{}{"player": playerID.String()},
	}}}

	if s.phase == PhaseBidding && s.currentPlayer() == playerID {
		s.advanceBidding(res)
	}
	s.autoPlayForfeited(res)
	res.RoundOver = s.phase == PhaseRoundSummary || s.phase == PhaseGameOver
	res.GameOver = s.phase == PhaseGameOver
	return res, nil
}

func (e *Engine) StartNextRound(gs games.Session, rng games.Shuffler) (*games.StepResult, error) {
	s, ok := gs.(*session)
	if !ok {
		return nil, fmt.Errorf("session is not a spades session")
	}
	if s.phase != PhaseRoundSummary {
		return nil, fmt.Errorf("cannot start next round from phase %s", s.phase)
	}
	s.dealerIndex = (s.dealerIndex + 1) % playersRequired
	s.deal(rng)
	res := &games.StepResult{}
	s.advanceBidding(res)
	return res, nil
}

func (e *Engine) ComputeScores(gs games.Session) games.ScoreReport {
	s, ok := gs.(*session)
	if !ok {
		return games.ScoreReport{}
	}
	report := games.ScoreReport{Tie: s.tie}
	for ti, team := range s.teams {
		report.Teams = append(report.Teams, games.TeamScore{
			TeamIndex: ti,
			Players:   append([]uuid.UUID(nil), team...),
			Score:     s.scores[ti],
			Bags:      s.bags[ti],
		})
	}
	report.PlayerScores = make(map[uuid.UUID]int, len(s.players))
	for _, pid := range s.players {
		report.PlayerScores[pid] = s.scores[s.teamOf[pid]]
	}
	if s.phase == PhaseGameOver {
		report.WinnerTeams = append([]int(nil), s.winnerTeams...)
	}
	return report
}

// DealHandEvents builds the private hand events for every revealed hand.
// The orchestrator broadcasts these after Initialize and round restarts.
func (e *Engine) DealHandEvents(gs games.Session) []games.Event {
	s, ok := gs.(*session)
	if !ok {
		return nil
	}
	var events []games.Event
	for _, pid := range s.players {
		if !s.revealed[pid] {
			continue
		}
		events = append(events, games.Event{
			Type:    EventPrivateHand,
			To:      pid,
			Payload: map[string]interface{}{"hand": sortedHand(s.hands[pid])},
		})
	}
	return events
}
