package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTwistRequiresInventory(t *testing.T) {
	f := newTestSession(t)
	f.seat(t, "a", "b")
	f.live(t)

	res, err := f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "moneygun", Target: "@b"})
	assert.ErrorIs(t, err, ErrNoInventory)
	assert.False(t, res.Consumed)
	p, _ := f.s.Arena.Player("b")
	assert.False(t, p.Effects.Marked)
}

func TestTwistMarksTargetAndConsumes(t *testing.T) {
	f := newTestSession(t)
	f.seat(t, "a", "b")
	f.live(t)
	_, err := f.s.GrantTwist(f.ctx, "a", "Money Gun", 2)
	require.NoError(t, err)

	res, err := f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "mg", Target: "@b"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.True(t, res.Consumed)
	assert.Equal(t, 1, res.Remaining)
	p, _ := f.s.Arena.Player("b")
	assert.True(t, p.Effects.Marked)
	assert.NotEmpty(t, f.notes.logs(LogTwist))
}

func TestTwistBlockedByImmunityStillConsumes(t *testing.T) {
	f := newTestSession(t)
	f.seat(t, "a", "b")
	f.live(t)
	_, err := f.s.GrantTwist(f.ctx, "a", "moneygun", 1)
	require.NoError(t, err)
	_, err = f.s.GrantTwist(f.ctx, "b", "immune", 1)
	require.NoError(t, err)

	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "b", Twist: "shield"})
	require.NoError(t, err)

	res, err := f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "moneygun", Target: "b"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeBlocked, res.Outcome)
	assert.True(t, res.Consumed)
	assert.Zero(t, res.Remaining)
	p, _ := f.s.Arena.Player("b")
	assert.False(t, p.Effects.Marked)
}

func TestTwistValidationLeavesInventory(t *testing.T) {
	f := newTestSession(t)
	f.seat(t, "a", "b")
	f.live(t)
	_, err := f.s.GrantTwist(f.ctx, "a", "moneygun", 1)
	require.NoError(t, err)

	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "moneygun"})
	assert.ErrorIs(t, err, ErrTargetRequired)
	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "moneygun", Target: "@a"})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "moneygun", Target: "@zed"})
	assert.ErrorIs(t, err, ErrTargetNotInArena)
	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "confetti", Target: "@b"})
	assert.ErrorIs(t, err, ErrUnknownTwist)
	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "outsider", Twist: "moneygun", Target: "@b"})
	assert.ErrorIs(t, err, ErrNotInArena)

	n, err := f.s.Twists.Quantity(f.ctx, "a", TwistMoneyGun)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTwistDecisiveOncePerRound(t *testing.T) {
	f := newTestSession(t)
	f.seat(t, "a", "b", "c")
	_, err := f.s.StartRound(f.ctx, RoundFinal)
	require.NoError(t, err)
	_, err = f.s.GrantTwist(f.ctx, "a", "diamond_pistol", 1)
	require.NoError(t, err)
	_, err = f.s.GrantTwist(f.ctx, "b", "diamond_pistol", 1)
	require.NoError(t, err)

	res, err := f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "dp", Target: "@a"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, res.Marked)

	res, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "b", Twist: "diamond pistol", Target: "@b"})
	assert.ErrorIs(t, err, ErrTwistUsedThisRound)
	assert.Equal(t, OutcomeLocked, res.Outcome)
	assert.True(t, res.Consumed)

	pa, _ := f.s.Arena.Player("a")
	assert.True(t, pa.Effects.SurvivorLock)
	assert.ElementsMatch(t, []string{"b", "c"}, f.s.Arena.DangerZone())
}

func TestTwistBypassSkipsInventory(t *testing.T) {
	f := newTestSession(t)
	f.seat(t, "a", "b")
	f.live(t)
	res, err := f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "galaxy", Bypass: true})
	require.NoError(t, err)
	assert.False(t, res.Consumed)
	assert.True(t, f.s.Arena.Round().Reversed)
}

func TestTwistBombWithoutEligibleTarget(t *testing.T) {
	f := newTestSession(t)
	f.seat(t, "a", "b")
	f.live(t)
	_, err := f.s.GrantTwist(f.ctx, "a", "bomb", 1)
	require.NoError(t, err)
	require.NoError(t, f.s.Arena.GrantImmunity("b"))

	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "bomb"})
	assert.ErrorIs(t, err, ErrNoEligibleTarget)
	n, err := f.s.Twists.Quantity(f.ctx, "a", TwistBomb)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, f.s.Arena.ClearImmunity("b"))
	res, err := f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "bomb"})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Target)
}

func TestTwistBreakerAndHeal(t *testing.T) {
	f := newTestSession(t)
	f.seat(t, "a", "b")
	f.live(t)
	require.NoError(t, f.s.Arena.GrantImmunity("b"))

	_, err := f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "hammer", Target: "@b", Bypass: true})
	require.NoError(t, err)
	p, _ := f.s.Arena.Player("b")
	assert.False(t, p.Effects.Immune)
	assert.True(t, p.Effects.ImmuneBroken)

	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "moneygun", Target: "@b", Bypass: true})
	require.NoError(t, err)
	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "b", Twist: "heal", Target: "@b", Bypass: true})
	require.NoError(t, err)
	p, _ = f.s.Arena.Player("b")
	assert.False(t, p.Effects.Marked)
	assert.False(t, p.Effects.ImmuneBroken)
}

func TestLookupTwistAliases(t *testing.T) {
	for _, in := range []string{"Diamond-Pistol", "DIAMOND PISTOL", "dp", "diamond_pistol"} {
		def, ok := LookupTwist(in)
		require.True(t, ok, in)
		assert.Equal(t, TwistDiamondPistol, def.Kind)
	}
	_, ok := LookupTwist("join")
	assert.False(t, ok)
}

func TestTwistRejectedOutsideLiveRound(t *testing.T) {
	f := newTestSession(t)
	f.seat(t, "a", "b", "c", "d")
	_, err := f.s.GrantTwist(f.ctx, "a", "diamond_pistol", 1)
	require.NoError(t, err)
	_, err = f.s.GrantTwist(f.ctx, "b", "diamond_pistol", 1)
	require.NoError(t, err)

	res, err := f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "dp", Target: "@a"})
	assert.ErrorIs(t, err, ErrRoundNotLive)
	assert.False(t, res.Consumed)
	n, err := f.s.Twists.Quantity(f.ctx, "a", TwistDiamondPistol)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.s.StartRound(f.ctx, RoundFinal)
	require.NoError(t, err)
	assert.False(t, f.s.Arena.DecisiveUsed())
	for _, id := range []string{"a", "b", "c", "d"} {
		p, _ := f.s.Arena.Player(id)
		assert.False(t, p.Effects.Marked, id)
		assert.False(t, p.Effects.SurvivorLock, id)
	}

	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "dp", Target: "@a"})
	require.NoError(t, err)
	res, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "b", Twist: "dp", Target: "@b"})
	assert.ErrorIs(t, err, ErrTwistUsedThisRound)
	assert.Equal(t, OutcomeLocked, res.Outcome)

	_, err = f.s.EndRound(f.ctx)
	require.NoError(t, err)
	_, err = f.s.UseTwist(f.ctx, UseRequest{Caster: "a", Twist: "galaxy", Bypass: true})
	assert.ErrorIs(t, err, ErrRoundNotLive)
}
