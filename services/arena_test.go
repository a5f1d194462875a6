package services

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArena(t *testing.T, ids ...string) (*Arena, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	a := NewArena(clock, 8, 3)
	for _, id := range ids {
		require.NoError(t, a.Promote(PlayerInfo{ExternalUserID: id, DisplayName: "Player " + id, Handle: id}))
	}
	return a, clock
}

func TestArenaCapacity(t *testing.T) {
	a, _ := newTestArena(t)
	for i := 1; i <= 8; i++ {
		require.NoError(t, a.Promote(PlayerInfo{ExternalUserID: fmt.Sprintf("p%d", i)}))
	}
	assert.ErrorIs(t, a.Promote(PlayerInfo{ExternalUserID: "p9"}), ErrArenaFull)
	assert.ErrorIs(t, a.Promote(PlayerInfo{ExternalUserID: "p1"}), ErrAlreadyInArena)
	assert.ErrorIs(t, a.Promote(PlayerInfo{ExternalUserID: UnknownExternalID}), ErrNotEligible)
	assert.Equal(t, 8, a.Count())
}

func TestArenaRoundPhases(t *testing.T) {
	a, clock := newTestArena(t, "a", "b", "c")

	round, err := a.StartRound(RoundQualifying, 180*time.Second, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, round.Number)
	assert.Equal(t, PhaseActive, round.Phase)

	a.CreditScore("a", 30)
	a.CreditScore("b", 20)
	a.CreditScore("c", 10)

	clock.Advance(179 * time.Second)
	assert.Empty(t, a.Tick())

	clock.Advance(2 * time.Second)
	changes := a.Tick()
	require.Len(t, changes, 1)
	assert.Equal(t, PhaseGrace, changes[0].To)

	// grace still accepts score
	assert.True(t, a.CreditScore("c", 1))

	clock.Advance(5 * time.Second)
	changes = a.Tick()
	require.Len(t, changes, 1)
	assert.Equal(t, PhaseEnded, changes[0].To)
	assert.False(t, changes[0].Round.ForcedEnd)
	assert.Equal(t, []string{"b", "c"}, changes[0].Eliminated)
	assert.False(t, a.CreditScore("a", 5))

	_, err = a.StartRound(RoundQualifying, time.Minute, 0)
	assert.ErrorIs(t, err, ErrRoundInProgress)
}

func TestArenaLateTickEndsInOneStep(t *testing.T) {
	a, clock := newTestArena(t, "a", "b")
	_, err := a.StartRound(RoundFinal, 10*time.Second, 5*time.Second)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	changes := a.Tick()
	require.Len(t, changes, 2)
	assert.Equal(t, PhaseGrace, changes[0].To)
	assert.Equal(t, PhaseEnded, changes[1].To)
}

func TestArenaStartWhileLive(t *testing.T) {
	a, _ := newTestArena(t, "a")
	_, err := a.StartRound(RoundQualifying, time.Minute, 0)
	require.NoError(t, err)
	_, err = a.StartRound(RoundQualifying, time.Minute, 0)
	assert.ErrorIs(t, err, ErrRoundActive)
	_, err = a.ResetRound(false)
	assert.ErrorIs(t, err, ErrRoundInProgress)
}

func TestArenaScoreOnlyWhileLive(t *testing.T) {
	a, _ := newTestArena(t, "a")
	assert.False(t, a.CreditScore("a", 10))
	_, err := a.StartRound(RoundQualifying, time.Minute, 0)
	require.NoError(t, err)
	assert.True(t, a.CreditScore("a", 10))
	assert.False(t, a.CreditScore("ghost", 10))

	_, err = a.EndRound()
	require.NoError(t, err)
	assert.False(t, a.CreditScore("a", 10))
	p, _ := a.Player("a")
	assert.Equal(t, int64(10), p.Score)
}

func TestArenaDangerZone(t *testing.T) {
	a, _ := newTestArena(t, "p1", "p2", "p3", "p4", "p5")
	_, err := a.StartRound(RoundQualifying, time.Minute, 0)
	require.NoError(t, err)
	for i, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		a.CreditScore(id, int64(50-10*i))
	}
	assert.Equal(t, []string{"p3", "p4", "p5"}, a.DangerZone())

	require.NoError(t, a.GrantImmunity("p4"))
	assert.Equal(t, []string{"p2", "p3", "p5"}, a.DangerZone())

	// a marked leader is in danger on top of the bottom slots
	blocked, err := a.MarkForElimination("p1")
	require.NoError(t, err)
	assert.False(t, blocked)
	assert.Contains(t, a.DangerZone(), "p1")

	blocked, err = a.MarkForElimination("p4")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestArenaDangerZoneLeavesOneAlive(t *testing.T) {
	a, _ := newTestArena(t, "a", "b")
	_, err := a.StartRound(RoundQualifying, time.Minute, 0)
	require.NoError(t, err)
	a.CreditScore("a", 2)
	a.CreditScore("b", 1)
	assert.Equal(t, []string{"b"}, a.DangerZone())
}

func TestArenaReversal(t *testing.T) {
	a, _ := newTestArena(t, "hi", "lo")
	_, err := a.StartRound(RoundQualifying, time.Minute, 0)
	require.NoError(t, err)
	a.CreditScore("hi", 100)
	a.CreditScore("lo", 1)

	assert.Equal(t, "hi", a.Snapshot().Standings[0].ExternalUserID)
	assert.True(t, a.ToggleReversal())
	snap := a.Snapshot()
	assert.Equal(t, "lo", snap.Standings[0].ExternalUserID)
	assert.Equal(t, []string{"hi"}, snap.Danger)
}

func TestArenaDecisiveOncePerRound(t *testing.T) {
	a, _ := newTestArena(t, "a", "b", "c")
	_, err := a.StartRound(RoundFinal, time.Minute, 0)
	require.NoError(t, err)

	marked, err := a.ApplyDecisive("b")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, marked)
	assert.ElementsMatch(t, []string{"a", "c"}, a.DangerZone())

	_, err = a.ApplyDecisive("a")
	assert.ErrorIs(t, err, ErrTwistUsedThisRound)

	_, err = a.EndRound()
	require.NoError(t, err)
	_, err = a.ResetRound(false)
	require.NoError(t, err)
	assert.False(t, a.DecisiveUsed())
}

func TestArenaResetRound(t *testing.T) {
	a, _ := newTestArena(t, "a", "b")
	_, err := a.StartRound(RoundQualifying, time.Minute, 0)
	require.NoError(t, err)
	a.CreditScore("a", 10)
	_, err = a.MarkForElimination("b")
	require.NoError(t, err)
	_, err = a.EndRound()
	require.NoError(t, err)

	released, err := a.ResetRound(false)
	require.NoError(t, err)
	assert.Empty(t, released)
	p, _ := a.Player("a")
	assert.Zero(t, p.Score)
	pb, _ := a.Player("b")
	assert.False(t, pb.Effects.Marked)
	assert.Equal(t, PhaseIdle, a.Round().Phase)

	released, err = a.ResetRound(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, released)
	assert.Zero(t, a.Count())
}

func TestArenaRandomUnprotected(t *testing.T) {
	a, _ := newTestArena(t, "caster", "shielded", "open")
	require.NoError(t, a.GrantImmunity("shielded"))
	rng := rand.New(rand.NewPCG(7, 7))
	for range 20 {
		id, ok := a.RandomUnprotected(rng, "caster")
		require.True(t, ok)
		assert.Equal(t, "open", id)
	}
	require.NoError(t, a.GrantImmunity("open"))
	_, ok := a.RandomUnprotected(rng, "caster")
	assert.False(t, ok)
}

func TestArenaFind(t *testing.T) {
	a, _ := newTestArena(t, "u42")
	id, ok := a.Find("@u42")
	assert.True(t, ok)
	assert.Equal(t, "u42", id)
	id, ok = a.Find("player U42")
	assert.True(t, ok)
	assert.Equal(t, "u42", id)
	_, ok = a.Find("@nobody")
	assert.False(t, ok)
}
