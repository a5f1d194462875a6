// services/arena.go
package services

import (
	"math/rand/v2"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Phase is the round lifecycle: idle → active → grace → ended → idle.
type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
	PhaseGrace  Phase = "grace"
	PhaseEnded  Phase = "ended"
)

// Live reports whether scores and eliminations are still in play.
func (p Phase) Live() bool { return p == PhaseActive || p == PhaseGrace }

// Effects are the status flags a player can carry.
type Effects struct {
	Immune       bool `json:"immune"`
	Marked       bool `json:"marked"`
	SurvivorLock bool `json:"survivor_lock"`
	ImmuneBroken bool `json:"immune_broken"`
	Booster      bool `json:"booster"`
}

func (e Effects) names() []string {
	var out []string
	if e.Immune {
		out = append(out, "immune")
	}
	if e.Marked {
		out = append(out, "marked")
	}
	if e.SurvivorLock {
		out = append(out, "survivor_lock")
	}
	if e.ImmuneBroken {
		out = append(out, "immune_broken")
	}
	if e.Booster {
		out = append(out, "booster")
	}
	return out
}

// ArenaPlayer is a viewer holding one of the arena slots.
type ArenaPlayer struct {
	ExternalUserID string
	DisplayName    string
	Handle         string
	Score          int64
	JoinedAt       time.Time
	Effects        Effects
	Eliminated     bool
}

// Round is the current competitive session.
type Round struct {
	Number       int           `json:"number"`
	Kind         RoundKind     `json:"kind"`
	Phase        Phase         `json:"phase"`
	StartedAt    time.Time     `json:"started_at"`
	EndedAt      time.Time     `json:"ended_at"`
	Duration     time.Duration `json:"duration"`
	Grace        time.Duration `json:"grace"`
	DecisiveUsed bool          `json:"decisive_used"`
	Reversed     bool          `json:"reversed"`
	ForcedEnd    bool          `json:"forced_end"`
}

// Standing is one ranked line of the arena board.
type Standing struct {
	Rank           int      `json:"rank"`
	ExternalUserID string   `json:"external_user_id"`
	DisplayName    string   `json:"display_name"`
	Handle         string   `json:"handle"`
	Score          int64    `json:"score"`
	Status         string   `json:"status"` // alive|danger|eliminated
	Effects        []string `json:"effects"`
}

// ArenaSnapshot is what displays render.
type ArenaSnapshot struct {
	Round     Round      `json:"round"`
	Remaining int64      `json:"remaining_seconds"`
	Capacity  int        `json:"capacity"`
	Standings []Standing `json:"standings"`
	Danger    []string   `json:"danger"`
}

// PhaseChange records one timer- or admin-driven transition.
type PhaseChange struct {
	From       Phase
	To         Phase
	Round      Round
	Eliminated []string // set when To == PhaseEnded
}

// Arena is the in-memory, single-writer round state. All methods are safe for
// concurrent use; callers that need several calls to be atomic hold the session lock.
type Arena struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	capacity   int
	dangerSize int
	players    map[string]*ArenaPlayer
	round      Round
	danger     []string
}

func NewArena(clock clockwork.Clock, capacity, dangerSize int) *Arena {
	return &Arena{
		clock:      clock,
		capacity:   capacity,
		dangerSize: dangerSize,
		players:    make(map[string]*ArenaPlayer),
		round:      Round{Phase: PhaseIdle},
	}
}

// Configure applies capacity and danger-zone size changes. Existing players are kept
// even when the new capacity is lower.
func (a *Arena) Configure(capacity, dangerSize int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capacity = capacity
	a.dangerSize = dangerSize
	a.refreshDangerLocked()
}

// PlayerInfo is the identity a promotion needs.
type PlayerInfo struct {
	ExternalUserID string
	DisplayName    string
	Handle         string
	Booster        bool
}

// Promote seats a viewer with score 0.
func (a *Arena) Promote(info PlayerInfo) error {
	if IsUnknownID(info.ExternalUserID) {
		return ErrNotEligible
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.players[info.ExternalUserID]; ok {
		return ErrAlreadyInArena
	}
	if len(a.players) >= a.capacity {
		return ErrArenaFull
	}
	a.players[info.ExternalUserID] = &ArenaPlayer{
		ExternalUserID: info.ExternalUserID,
		DisplayName:    info.DisplayName,
		Handle:         info.Handle,
		JoinedAt:       a.clock.Now(),
		Effects:        Effects{Booster: info.Booster},
	}
	a.refreshDangerLocked()
	return nil
}

// Remove drops a player unconditionally; reports whether one was seated.
func (a *Arena) Remove(externalID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.players[externalID]; !ok {
		return false
	}
	delete(a.players, externalID)
	a.refreshDangerLocked()
	return true
}

// Has reports whether the viewer holds a slot, eliminated or not.
func (a *Arena) Has(externalID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.players[externalID]
	return ok
}

// Player returns a copy of one player.
func (a *Arena) Player(externalID string) (ArenaPlayer, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.players[externalID]
	if !ok {
		return ArenaPlayer{}, false
	}
	return *p, true
}

// Find resolves a chat reference (@handle, display name or external id) to a player id.
func (a *Arena) Find(ref string) (string, bool) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "@")
	if ref == "" {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.players[ref]; ok {
		return ref, true
	}
	for _, p := range a.sortedLocked() {
		if strings.EqualFold(p.Handle, ref) || strings.EqualFold(p.DisplayName, ref) {
			return p.ExternalUserID, true
		}
	}
	return "", false
}

// CreditScore adds to a live player's score while the round is active or in grace.
// Gift credit is always positive; only twist effects pass negative amounts.
func (a *Arena) CreditScore(externalID string, amount int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.players[externalID]
	if !ok || p.Eliminated || !a.round.Phase.Live() || amount == 0 {
		return false
	}
	p.Score += amount
	a.refreshDangerLocked()
	return true
}

// StartRound moves idle → active.
func (a *Arena) StartRound(kind RoundKind, duration, grace time.Duration) (Round, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.round.Phase {
	case PhaseActive, PhaseGrace:
		return a.round, ErrRoundActive
	case PhaseEnded:
		return a.round, ErrRoundInProgress
	}
	for _, p := range a.players {
		p.Score = 0
		p.Effects.Marked = false
		p.Effects.SurvivorLock = false
	}
	a.round = Round{
		Number:    a.round.Number + 1,
		Kind:      kind,
		Phase:     PhaseActive,
		StartedAt: a.clock.Now(),
		Duration:  duration,
		Grace:     grace,
	}
	a.refreshDangerLocked()
	return a.round, nil
}

// Tick advances active → grace → ended by elapsed time. A late tick may return both
// transitions at once.
func (a *Arena) Tick() []PhaseChange {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.round.Phase.Live() {
		return nil
	}
	elapsed := a.clock.Since(a.round.StartedAt)
	var changes []PhaseChange
	if a.round.Phase == PhaseActive && elapsed >= a.round.Duration {
		a.round.Phase = PhaseGrace
		changes = append(changes, PhaseChange{From: PhaseActive, To: PhaseGrace, Round: a.round})
	}
	if a.round.Phase == PhaseGrace && elapsed >= a.round.Duration+a.round.Grace {
		changes = append(changes, a.endLocked(false))
	}
	if len(changes) > 0 {
		a.refreshDangerLocked()
	}
	return changes
}

// EndRound forces ended immediately, skipping any remaining grace.
func (a *Arena) EndRound() (PhaseChange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.round.Phase.Live() {
		return PhaseChange{}, ErrRoundNotLive
	}
	change := a.endLocked(true)
	a.refreshDangerLocked()
	return change, nil
}

// endLocked finalizes the danger zone into eliminations.
func (a *Arena) endLocked(forced bool) PhaseChange {
	from := a.round.Phase
	a.refreshDangerLocked()
	eliminated := slices.Clone(a.danger)
	for _, id := range eliminated {
		if p, ok := a.players[id]; ok {
			p.Eliminated = true
		}
	}
	a.round.Phase = PhaseEnded
	a.round.EndedAt = a.clock.Now()
	a.round.ForcedEnd = forced
	return PhaseChange{From: from, To: PhaseEnded, Round: a.round, Eliminated: eliminated}
}

// ResetRound returns to idle, clearing scores, round-scoped effects, the decisive lock
// and the reversal flag. With clearRoster every player is released and returned.
func (a *Arena) ResetRound(clearRoster bool) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.round.Phase.Live() {
		return nil, ErrRoundInProgress
	}
	var released []string
	for id, p := range a.players {
		if clearRoster {
			released = append(released, id)
			delete(a.players, id)
			continue
		}
		p.Score = 0
		p.Effects.Marked = false
		p.Effects.SurvivorLock = false
	}
	sort.Strings(released)
	a.round.Phase = PhaseIdle
	a.round.DecisiveUsed = false
	a.round.Reversed = false
	a.round.ForcedEnd = false
	a.danger = nil
	return released, nil
}

// Eliminated lists players tagged eliminated.
func (a *Arena) Eliminated() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, p := range a.sortedLocked() {
		if p.Eliminated {
			out = append(out, p.ExternalUserID)
		}
	}
	return out
}

// Round returns a copy of the current round.
func (a *Arena) Round() Round {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.round
}

// Count is the number of occupied slots.
func (a *Arena) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.players)
}

// DangerZone returns the current elimination candidates, lowest ranked last.
func (a *Arena) DangerZone() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.danger)
}

// RefreshDanger recomputes the danger zone and reports whether it changed.
func (a *Arena) RefreshDanger() ([]string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	before := a.danger
	a.refreshDangerLocked()
	return slices.Clone(a.danger), !slices.Equal(before, a.danger)
}

// Snapshot renders the ranked board.
func (a *Arena) Snapshot() ArenaSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	inDanger := make(map[string]bool, len(a.danger))
	for _, id := range a.danger {
		inDanger[id] = true
	}
	ranked := a.sortedLocked()
	standings := make([]Standing, len(ranked))
	for i, p := range ranked {
		status := "alive"
		switch {
		case p.Eliminated:
			status = "eliminated"
		case inDanger[p.ExternalUserID]:
			status = "danger"
		}
		standings[i] = Standing{
			Rank:           i + 1,
			ExternalUserID: p.ExternalUserID,
			DisplayName:    p.DisplayName,
			Handle:         p.Handle,
			Score:          p.Score,
			Status:         status,
			Effects:        p.Effects.names(),
		}
	}

	var remaining int64
	if a.round.Phase == PhaseActive {
		if left := a.round.Duration - a.clock.Since(a.round.StartedAt); left > 0 {
			remaining = int64(left.Round(time.Second) / time.Second)
		}
	}
	return ArenaSnapshot{
		Round:     a.round,
		Remaining: remaining,
		Capacity:  a.capacity,
		Standings: standings,
		Danger:    slices.Clone(a.danger),
	}
}

// --- twist effect primitives ---

// MarkForElimination tags a target unless it is immune; blocked reports the immunity.
func (a *Arena) MarkForElimination(targetID string) (blocked bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.players[targetID]
	if !ok {
		return false, ErrTargetNotInArena
	}
	if p.Effects.Immune {
		return true, nil
	}
	p.Effects.Marked = true
	a.refreshDangerLocked()
	return false, nil
}

// GrantImmunity protects a player until a breaker consumes it.
func (a *Arena) GrantImmunity(targetID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.players[targetID]
	if !ok {
		return ErrTargetNotInArena
	}
	p.Effects.Immune = true
	p.Effects.ImmuneBroken = false
	a.refreshDangerLocked()
	return nil
}

// ClearImmunity removes immunity without tagging it broken.
func (a *Arena) ClearImmunity(targetID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.players[targetID]
	if !ok {
		return ErrTargetNotInArena
	}
	p.Effects.Immune = false
	a.refreshDangerLocked()
	return nil
}

// BreakImmunity consumes a target's immunity; reports whether there was any.
func (a *Arena) BreakImmunity(targetID string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.players[targetID]
	if !ok {
		return false, ErrTargetNotInArena
	}
	had := p.Effects.Immune
	p.Effects.Immune = false
	p.Effects.ImmuneBroken = true
	a.refreshDangerLocked()
	return had, nil
}

// Heal clears marked and immune-broken and restores an eliminated player to alive.
func (a *Arena) Heal(targetID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.players[targetID]
	if !ok {
		return ErrTargetNotInArena
	}
	p.Effects.Marked = false
	p.Effects.ImmuneBroken = false
	p.Eliminated = false
	a.refreshDangerLocked()
	return nil
}

// ToggleReversal flips the ranking order and returns the new state.
func (a *Arena) ToggleReversal() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.round.Reversed = !a.round.Reversed
	a.refreshDangerLocked()
	return a.round.Reversed
}

// DecisiveUsed reports the once-per-round lock.
func (a *Arena) DecisiveUsed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.round.DecisiveUsed
}

// ApplyDecisive sets the round lock, shields the survivor and marks everyone else.
// Returns the ids that were marked.
func (a *Arena) ApplyDecisive(survivorID string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.round.DecisiveUsed {
		return nil, ErrTwistUsedThisRound
	}
	survivor, ok := a.players[survivorID]
	if !ok {
		return nil, ErrTargetNotInArena
	}
	a.round.DecisiveUsed = true
	survivor.Effects.Immune = true
	survivor.Effects.SurvivorLock = true
	survivor.Effects.Marked = false
	var marked []string
	for _, p := range a.sortedLocked() {
		if p.ExternalUserID == survivorID || p.Eliminated {
			continue
		}
		p.Effects.Marked = true
		marked = append(marked, p.ExternalUserID)
	}
	a.refreshDangerLocked()
	return marked, nil
}

// RandomUnprotected picks uniformly among live, non-immune players other than exclude.
func (a *Arena) RandomUnprotected(rng *rand.Rand, exclude string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var pool []string
	for _, p := range a.sortedLocked() {
		if p.ExternalUserID == exclude || p.Effects.Immune || p.Eliminated {
			continue
		}
		pool = append(pool, p.ExternalUserID)
	}
	if len(pool) == 0 {
		return "", false
	}
	return pool[rng.IntN(len(pool))], true
}

// ConfirmEliminations removes every player tagged eliminated and returns them.
func (a *Arena) ConfirmEliminations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, p := range a.sortedLocked() {
		if p.Eliminated {
			out = append(out, p.ExternalUserID)
			delete(a.players, p.ExternalUserID)
		}
	}
	a.refreshDangerLocked()
	return out
}

// sortedLocked ranks players: score desc (asc when reversed), then seat time, then id.
func (a *Arena) sortedLocked() []*ArenaPlayer {
	out := make([]*ArenaPlayer, 0, len(a.players))
	for _, p := range a.players {
		out = append(out, p)
	}
	reversed := a.round.Reversed
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			if reversed {
				return out[i].Score < out[j].Score
			}
			return out[i].Score > out[j].Score
		}
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ExternalUserID < out[j].ExternalUserID
	})
	return out
}

// refreshDangerLocked recomputes the danger zone. Outside a live round it is empty.
// Marked players are always in it; after a decisive twist only they are. Otherwise
// the bottom DangerZoneSize unprotected players join them, always leaving at least
// one live player out of the zone.
func (a *Arena) refreshDangerLocked() {
	if !a.round.Phase.Live() {
		a.danger = nil
		return
	}
	ranked := a.sortedLocked()
	in := make(map[string]bool)
	alive := 0
	for _, p := range ranked {
		if p.Eliminated {
			continue
		}
		alive++
		if p.Effects.Marked {
			in[p.ExternalUserID] = true
		}
	}

	if !a.round.DecisiveUsed {
		size := min(a.dangerSize, alive-1)
		for i := len(ranked) - 1; i >= 0 && size > 0; i-- {
			p := ranked[i]
			if p.Eliminated || p.Effects.Immune || p.Effects.SurvivorLock {
				continue
			}
			if !in[p.ExternalUserID] {
				in[p.ExternalUserID] = true
			}
			size--
		}
	}

	danger := make([]string, 0, len(in))
	for _, p := range ranked {
		if in[p.ExternalUserID] {
			danger = append(danger, p.ExternalUserID)
		}
	}
	a.danger = danger
}
