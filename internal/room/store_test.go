// internal/room/store_test.go
package room

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agraham02/family-games/internal/apperr"
	"github.com/agraham02/family-games/internal/games"
)

func newTestStore() *Store {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewStore(logger)
}

func TestCreateRoomGeneratesCode(t *testing.T) {
	s := newTestStore()
	r, leader, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), r.Code)
	assert.Equal(t, StateLobby, r.State)
	assert.Equal(t, "Alice's Room", r.Name)
	assert.Equal(t, leader.ID, r.LeaderID)
	assert.True(t, leader.Connected)
	assert.Equal(t, DefaultMaxPlayers, r.Settings.MaxPlayers)
	assert.Equal(t, DefaultPauseTimeout, r.Settings.PauseTimeoutSeconds)
}

func TestCreateRoomRejectsBadNames(t *testing.T) {
	s := newTestStore()
	_, _, err := s.CreateRoom("Fun Room", " ")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	_, _, err = s.CreateRoom("Fun Room", "a")
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "single-rune names are too short")
}

func TestJoinByCodeCaseInsensitive(t *testing.T) {
	s := newTestStore()
	r, _, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)

	joined, bob, err := s.JoinRoom(strings.ToLower(r.Code), "Bob", uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, r.ID, joined.ID)
	assert.Len(t, joined.Users, 2)
	assert.NotEqual(t, bob.ID, joined.LeaderID, "joiner does not take leadership")
}

func TestJoinUnknownCode(t *testing.T) {
	s := newTestStore()
	_, _, err := s.JoinRoom("ZZZZZZ", "Bob", uuid.Nil)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, _, err = s.JoinRoom("short", "Bob", uuid.Nil)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "malformed codes are rejected before lookup")
}

func TestJoinFullRoom(t *testing.T) {
	s := newTestStore()
	r, leader, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)
	require.NoError(t, s.UpdateSettings(r.ID, leader.ID, Settings{
		MaxPlayers:          2,
		PauseTimeoutSeconds: DefaultPauseTimeout,
	}))

	_, _, err = s.JoinRoom(r.Code, "Bob", uuid.Nil)
	require.NoError(t, err)
	_, _, err = s.JoinRoom(r.Code, "Cara", uuid.Nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestJoinMidGameConflictsButRejoinWorks(t *testing.T) {
	s := newTestStore()
	r, _, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)
	_, bob, err := s.JoinRoom(r.Code, "Bob", uuid.Nil)
	require.NoError(t, err)

	r.Mu.Lock()
	r.State = StateInGame
	bobSeat := r.MemberUnsafe(bob.ID)
	bobSeat.Connected = false
	r.Mu.Unlock()

	_, _, err = s.JoinRoom(r.Code, "Cara", uuid.Nil)
	assert.True(t, apperr.Is(err, apperr.KindConflict), "no new members mid-game")

	_, back, err := s.JoinRoom(r.Code, "Bob", bob.ID)
	require.NoError(t, err, "existing seats rejoin even mid-game")
	assert.Equal(t, bob.ID, back.ID)
	assert.True(t, back.Connected)
}

func TestLeaveTransfersLeadership(t *testing.T) {
	s := newTestStore()
	r, alice, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)
	_, bob, err := s.JoinRoom(r.Code, "Bob", uuid.Nil)
	require.NoError(t, err)
	_, _, err = s.JoinRoom(r.Code, "Cara", uuid.Nil)
	require.NoError(t, err)

	require.NoError(t, s.LeaveRoom(r.ID, alice.ID))

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Equal(t, bob.ID, r.LeaderID, "oldest remaining member becomes leader")
	assert.Nil(t, r.MemberUnsafe(alice.ID))
}

func TestEmptyRoomSweptAfterGrace(t *testing.T) {
	s := newTestStore()
	r, alice, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)
	require.NoError(t, s.LeaveRoom(r.ID, alice.ID))

	assert.Equal(t, 0, s.CleanupEmpty(time.Now()), "grace period keeps the room")
	assert.Equal(t, 1, s.CleanupEmpty(time.Now().Add(EmptyRoomGracePeriod+time.Second)))

	_, err = s.GetRoom(r.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, _, err = s.CreateRoom("", "Dana")
	require.NoError(t, err, "freed codes are reusable")
}

func TestKickIsLeaderOnlyAndPermanent(t *testing.T) {
	s := newTestStore()
	r, alice, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)
	_, bob, err := s.JoinRoom(r.Code, "Bob", uuid.Nil)
	require.NoError(t, err)

	err = s.KickUser(r.ID, alice.ID, bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	err = s.KickUser(r.ID, alice.ID, alice.ID)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "leader cannot kick themselves")

	require.NoError(t, s.KickUser(r.ID, bob.ID, alice.ID))

	_, _, err = s.JoinRoom(r.Code, "Bob", bob.ID)
	assert.True(t, apperr.Is(err, apperr.KindForbidden), "kicked users cannot rejoin their seat")
}

func TestSelectGameTypeResetsTeams(t *testing.T) {
	s := newTestStore()
	r, alice, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)
	_, bob, err := s.JoinRoom(r.Code, "Bob", uuid.Nil)
	require.NoError(t, err)

	err = s.SelectGameType(r.ID, bob.ID, "spades")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	require.NoError(t, s.AssignTeams(r.ID, [][]uuid.UUID{{alice.ID}, {bob.ID}}, nil))
	require.NoError(t, s.SelectGameType(r.ID, alice.ID, "spades"))

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Equal(t, "spades", r.SelectedGameType)
	assert.Nil(t, r.Teams, "changing the game clears team assignments")
}

func TestAssignTeamsValidation(t *testing.T) {
	s := newTestStore()
	r, alice, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)
	_, bob, err := s.JoinRoom(r.Code, "Bob", uuid.Nil)
	require.NoError(t, err)

	req := &games.TeamRequirement{NumTeams: 2, PlayersPerTeam: 2}

	// Duplicate member across teams.
	err = s.AssignTeams(r.ID, [][]uuid.UUID{{alice.ID, bob.ID}, {bob.ID, uuid.Nil}}, req)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	// Non-member in a slot.
	err = s.AssignTeams(r.ID, [][]uuid.UUID{{alice.ID, uuid.New()}, {bob.ID, uuid.Nil}}, req)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	// Wrong shape for the requirement.
	err = s.AssignTeams(r.ID, [][]uuid.UUID{{alice.ID}, {bob.ID}, {}}, req)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))

	// Partial assignment with empty slots is fine before the game starts.
	err = s.AssignTeams(r.ID, [][]uuid.UUID{{alice.ID, uuid.Nil}, {bob.ID, uuid.Nil}}, req)
	assert.NoError(t, err)

	r.Mu.Lock()
	teams := r.Teams
	r.Mu.Unlock()
	require.Len(t, teams, 2)
	assert.Equal(t, alice.ID, teams[0][0])
}

func TestUpdateSettingsBounds(t *testing.T) {
	s := newTestStore()
	r, alice, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)

	err = s.UpdateSettings(r.ID, alice.ID, Settings{MaxPlayers: 0, PauseTimeoutSeconds: 120})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "maxPlayers below member count")

	err = s.UpdateSettings(r.ID, alice.ID, Settings{MaxPlayers: 4, PauseTimeoutSeconds: 5})
	assert.True(t, apperr.Is(err, apperr.KindBadRequest), "pause timeout out of range")

	err = s.UpdateSettings(r.ID, alice.ID, Settings{MaxPlayers: 4, PauseTimeoutSeconds: 300, IsPrivate: true})
	require.NoError(t, err)

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Equal(t, 300, r.Settings.PauseTimeoutSeconds)
	assert.True(t, r.Settings.IsPrivate)
}

func TestSetReadyAndAllReady(t *testing.T) {
	s := newTestStore()
	r, alice, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)
	_, bob, err := s.JoinRoom(r.Code, "Bob", uuid.Nil)
	require.NoError(t, err)

	require.NoError(t, s.SetReady(r.ID, alice.ID, true))

	r.Mu.Lock()
	assert.False(t, r.AllReadyUnsafe())
	r.Mu.Unlock()

	require.NoError(t, s.SetReady(r.ID, bob.ID, true))

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.True(t, r.AllReadyUnsafe())
}

func TestGameSettingsPersistPerType(t *testing.T) {
	s := newTestStore()
	r, alice, err := s.CreateRoom("", "Alice")
	require.NoError(t, err)

	require.NoError(t, s.SetGameSettings(r.ID, alice.ID, "spades", map[string]interface{}{
		"winTarget": float64(300),
	}))
	require.NoError(t, s.SelectGameType(r.ID, alice.ID, "dominoes"))
	require.NoError(t, s.SelectGameType(r.ID, alice.ID, "spades"))

	r.Mu.Lock()
	defer r.Mu.Unlock()
	assert.Equal(t, float64(300), r.GameSettings["spades"]["winTarget"], "settings survive switching games")
}
