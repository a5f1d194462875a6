// services/session.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"live-arena-system/models"

	"github.com/jonboulle/clockwork"
	"gorm.io/gorm"
)

// Round lifecycle markers.
const (
	MarkerStart = "start"
	MarkerGrace = "grace"
	MarkerEnd   = "end"
)

const (
	defaultInboxSize      = 256
	defaultEnqueueTimeout = 2 * time.Second
)

// Session owns the live game: one arena, one queue, one stream session. Every
// mutation (inbound event, timer tick, admin command) runs under mu, so an event is
// processed to completion before the next one starts.
type Session struct {
	mu sync.Mutex

	settingsMu sync.RWMutex
	settings   Settings

	DB       *gorm.DB
	Clock    clockwork.Clock
	Identity *IdentityService
	Ledger   *LedgerService
	Queue    *QueueService
	Arena    *Arena
	Twists   *TwistService
	Dedup    *DedupSet
	Notifier Notifier

	dispatcher *Dispatcher
	inbox      chan models.LiveEvent

	EnqueueTimeout time.Duration

	active     bool
	startedAt  time.Time
	lastDanger []string
}

// NewSession wires the core components over db.
func NewSession(db *gorm.DB, clock clockwork.Clock, settings Settings, notifier Notifier, rng *rand.Rand) (*Session, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = Fanout{}
	}
	if rng == nil {
		seed := uint64(clock.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	s := &Session{
		settings:       settings,
		DB:             db,
		Clock:          clock,
		Notifier:       notifier,
		inbox:          make(chan models.LiveEvent, defaultInboxSize),
		EnqueueTimeout: defaultEnqueueTimeout,
	}
	s.Identity = NewIdentityService(db)
	s.Ledger = NewLedgerService(db, s.Identity, clock, func() int64 { return s.Settings().DailyPointCap })
	s.Queue = NewQueueService(db, s.Ledger, clock, func() QueueRules {
		st := s.Settings()
		return QueueRules{
			CostPerBoostSlot:   st.CostPerBoostSlot,
			MaxBoostPerCommand: st.MaxBoostPerCommand,
			VIPWeight:          st.VIPWeight,
		}
	})
	s.Arena = NewArena(clock, settings.ArenaCapacity, settings.DangerZoneSize)
	s.Twists = NewTwistService(db, s.Arena, rng)
	s.Dedup = NewDedupSet(clock, settings.DedupWindow)
	s.dispatcher = &Dispatcher{s: s}
	return s, nil
}

// Migrate creates or updates the tables the session persists to.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Viewer{},
		&models.TwistInventory{},
		&models.PointsEntry{},
		&models.QueueEntry{},
		&models.RoundRecord{},
		&models.EventLogLine{},
	)
}

// Settings returns a copy of the current rules.
func (s *Session) Settings() Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	st := s.settings
	return st
}

// UpdateSettings applies fn to a copy of the rules and swaps it in if it validates.
func (s *Session) UpdateSettings(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.Settings()
	next.TwistGifts = cloneGifts(next.TwistGifts)
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.Settings(), err
	}
	s.settingsMu.Lock()
	s.settings = next
	s.settingsMu.Unlock()

	s.Arena.Configure(next.ArenaCapacity, next.DangerZoneSize)
	s.Dedup.SetWindow(next.DedupWindow)
	log.Printf("[SESSION] ⚙️  Settings updated")
	return next, nil
}

func cloneGifts(in map[string]TwistGrant) map[string]TwistGrant {
	out := make(map[string]TwistGrant, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Active reports whether a stream session is running.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// StartSession resets stream-scoped state: stream and round diamonds, twist
// inventories, the queue and the arena.
func (s *Session) StartSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Arena.Round().Phase.Live() {
		s.endRoundLocked(ctx)
	}
	released, err := s.Arena.ResetRound(true)
	if err != nil {
		return err
	}
	if err := s.Ledger.ResetSessionCurrency(ctx); err != nil {
		return fmt.Errorf("reset session currency: %w", err)
	}
	if err := s.Twists.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear inventories: %w", err)
	}
	if err := s.Queue.Clear(ctx); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	s.active = true
	s.startedAt = s.Clock.Now()
	log.Printf("[SESSION] ▶️  Session started (%d players released)", len(released))
	s.emitArena(ctx)
	s.emitQueue(ctx)
	return nil
}

// StopSession force-ends any live round and stops accepting events.
func (s *Session) StopSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return ErrSessionInactive
	}
	if s.Arena.Round().Phase.Live() {
		s.endRoundLocked(ctx)
	}
	s.active = false
	log.Printf("[SESSION] ⏹️  Session stopped after %s", s.Clock.Since(s.startedAt).Round(time.Second))
	return nil
}

// Submit enqueues an inbound event for the single consumer. When the inbox is full it
// waits up to EnqueueTimeout and then drops the event.
func (s *Session) Submit(ctx context.Context, ev models.LiveEvent) error {
	select {
	case s.inbox <- ev:
		return nil
	default:
	}
	timer := s.Clock.NewTimer(s.EnqueueTimeout)
	defer timer.Stop()
	select {
	case s.inbox <- ev:
		return nil
	case <-timer.Chan():
		log.Printf("[DISPATCH] ⚠️ Inbox full, dropping %s event %s", ev.Kind(), ev.MessageID())
		return ErrInboxFull
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the inbox until ctx is done, one event at a time.
func (s *Session) Run(ctx context.Context) {
	log.Println("🔁 Event loop started")
	for {
		select {
		case <-ctx.Done():
			log.Println("⏹️ Event loop stopped")
			return
		case ev := <-s.inbox:
			if _, err := s.Process(ctx, ev); err != nil && !errors.Is(err, ErrDuplicateEvent) {
				log.Printf("[DISPATCH] ❌ %s event %s: %v", ev.Kind(), ev.MessageID(), err)
			}
		}
	}
}

// Process handles one event synchronously. Duplicates inside the dedup window and
// events outside a session are dropped.
func (s *Session) Process(ctx context.Context, ev models.LiveEvent) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		log.Printf("[DISPATCH] Dropping %s event %s: no active session", ev.Kind(), ev.MessageID())
		return Outcome{}, ErrSessionInactive
	}
	if s.Dedup.Seen(ev.MessageID()) {
		log.Printf("[DISPATCH] Dropping duplicate %s event %s", ev.Kind(), ev.MessageID())
		return Outcome{}, ErrDuplicateEvent
	}
	return s.dispatcher.Dispatch(ctx, ev)
}

// Tick drives the round timer. It runs on its own schedule, independent of events.
func (s *Session) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Arena.Round().Phase.Live() {
		return
	}
	for _, ch := range s.Arena.Tick() {
		switch ch.To {
		case PhaseGrace:
			s.emitRound(ctx, RoundMarker{Marker: MarkerGrace, Number: ch.Round.Number, Kind: ch.Round.Kind, Duration: ch.Round.Grace, Round: ch.Round})
		case PhaseEnded:
			s.finishRoundLocked(ctx, ch)
		}
	}
	s.emitDangerIfChanged(ctx)
	s.emitArena(ctx)
}

// StartRound begins a round of kind. A round left in ended is reset first.
func (s *Session) StartRound(ctx context.Context, kind RoundKind) (Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Arena.Round().Phase == PhaseEnded {
		if _, err := s.resetRoundLocked(ctx, false); err != nil {
			return Round{}, err
		}
	}
	st := s.Settings()
	round, err := s.Arena.StartRound(kind, st.Duration(kind), st.GracePeriod)
	if err != nil {
		return round, err
	}
	if err := s.DB.WithContext(ctx).Model(&models.Viewer{}).
		Where("round_diamonds <> 0").Update("round_diamonds", 0).Error; err != nil {
		log.Printf("[ROUND] ⚠️ resetting round diamonds: %v", err)
	}
	log.Printf("[ROUND] 🏁 Round #%d (%s) started for %s", round.Number, kind, round.Duration)
	s.emitRound(ctx, RoundMarker{Marker: MarkerStart, Number: round.Number, Kind: kind, Duration: round.Duration, Round: round})
	s.emitDangerIfChanged(ctx)
	s.emitArena(ctx)
	return round, nil
}

// EndRound forces the live round to ended, skipping grace.
func (s *Session) EndRound(ctx context.Context) (PhaseChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Arena.Round().Phase.Live() {
		return PhaseChange{}, ErrRoundNotLive
	}
	ch := s.endRoundLocked(ctx)
	s.emitArena(ctx)
	return ch, nil
}

func (s *Session) endRoundLocked(ctx context.Context) PhaseChange {
	ch, err := s.Arena.EndRound()
	if err != nil {
		return PhaseChange{}
	}
	s.finishRoundLocked(ctx, ch)
	return ch
}

// finishRoundLocked publishes the end marker and applies the elimination policy.
func (s *Session) finishRoundLocked(ctx context.Context, ch PhaseChange) {
	snap := s.Arena.Snapshot()
	s.emitRound(ctx, RoundMarker{
		Marker:     MarkerEnd,
		Number:     ch.Round.Number,
		Kind:       ch.Round.Kind,
		Duration:   ch.Round.Duration,
		Forced:     ch.Round.ForcedEnd,
		Eliminated: ch.Eliminated,
		Standings:  snap.Standings,
		Round:      ch.Round,
	})
	for _, id := range ch.Eliminated {
		s.emitLog(ctx, LogElim, id, fmt.Sprintf("☠️ %s was eliminated", s.displayName(id)))
	}
	if s.Settings().Policy(ch.Round.Kind) == EliminateRemove {
		for _, id := range ch.Eliminated {
			s.removePlayerLocked(ctx, id)
		}
	}
}

// ResetRound returns the arena to idle. clearRoster releases every player.
func (s *Session) ResetRound(ctx context.Context, clearRoster bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	released, err := s.resetRoundLocked(ctx, clearRoster)
	if err != nil {
		return nil, err
	}
	s.emitArena(ctx)
	return released, nil
}

func (s *Session) resetRoundLocked(ctx context.Context, clearRoster bool) ([]string, error) {
	released, err := s.Arena.ResetRound(clearRoster)
	if err != nil {
		return nil, err
	}
	for _, id := range released {
		if err := s.Ledger.ResetRoundCurrency(ctx, id); err != nil {
			log.Printf("[ARENA] ⚠️ resetting round diamonds for %s: %v", id, err)
		}
	}
	return released, nil
}

// Promote seats a viewer, taking them out of the queue.
func (s *Session) Promote(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promoteLocked(ctx, externalID)
}

// PromoteNext seats whoever tops the queue snapshot and returns their id.
func (s *Session) PromoteNext(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ranks, err := s.Queue.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if len(ranks) == 0 {
		return "", ErrNotQueued
	}
	id := ranks[0].ExternalUserID
	return id, s.promoteLocked(ctx, id)
}

func (s *Session) promoteLocked(ctx context.Context, externalID string) error {
	if IsUnknownID(externalID) {
		return ErrNotEligible
	}
	v, err := s.Identity.Lookup(ctx, externalID)
	if errors.Is(err, ErrUnknownViewer) {
		return ErrNotEligible
	}
	if err != nil {
		return err
	}
	if s.Arena.Has(externalID) {
		return ErrAlreadyInArena
	}
	if s.Arena.Count() >= s.Settings().ArenaCapacity {
		return ErrArenaFull
	}
	entry, err := s.Queue.Remove(ctx, externalID)
	if err != nil {
		return err
	}
	info := PlayerInfo{ExternalUserID: externalID, DisplayName: v.DisplayName, Handle: v.Handle}
	if entry != nil && entry.BoostCount > 0 {
		info.Booster = true
	}
	if err := s.Arena.Promote(info); err != nil {
		return err
	}
	s.emitLog(ctx, LogQueue, externalID, fmt.Sprintf("🎟️ %s entered the arena", v.DisplayName))
	s.emitDangerIfChanged(ctx)
	s.emitArena(ctx)
	if entry != nil {
		s.emitQueue(ctx)
	}
	return nil
}

// RemovePlayer frees a slot and zeroes the player's round diamonds.
func (s *Session) RemovePlayer(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.removePlayerLocked(ctx, externalID) {
		return ErrNotInArena
	}
	s.emitArena(ctx)
	return nil
}

func (s *Session) removePlayerLocked(ctx context.Context, externalID string) bool {
	if !s.Arena.Remove(externalID) {
		return false
	}
	if err := s.Ledger.ResetRoundCurrency(ctx, externalID); err != nil {
		log.Printf("[ARENA] ⚠️ resetting round diamonds for %s: %v", externalID, err)
	}
	log.Printf("[ARENA] %s left the arena", externalID)
	s.emitDangerIfChanged(ctx)
	return true
}

// ConfirmEliminations removes everyone tagged eliminated.
func (s *Session) ConfirmEliminations(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.Arena.ConfirmEliminations()
	for _, id := range out {
		if err := s.Ledger.ResetRoundCurrency(ctx, id); err != nil {
			log.Printf("[ARENA] ⚠️ resetting round diamonds for %s: %v", id, err)
		}
	}
	if len(out) > 0 {
		s.emitArena(ctx)
	}
	return out
}

// QueueAdd puts a viewer in the queue without the fan requirement.
func (s *Session) QueueAdd(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Identity.Resolve(ctx, externalID, "", ""); err != nil {
		return err
	}
	return s.joinQueueLocked(ctx, externalID)
}

func (s *Session) joinQueueLocked(ctx context.Context, externalID string) error {
	if IsUnknownID(externalID) {
		return ErrNotEligible
	}
	if s.Arena.Has(externalID) {
		return ErrAlreadyInArena
	}
	if err := s.Queue.Join(ctx, externalID); err != nil {
		return err
	}
	s.emitLog(ctx, LogQueue, externalID, fmt.Sprintf("➕ %s joined the queue", s.displayName(externalID)))
	s.emitQueue(ctx)
	return nil
}

// QueueRemove takes a viewer out of the queue with the same refund as leaving.
func (s *Session) QueueRemove(ctx context.Context, externalID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaveQueueLocked(ctx, externalID)
}

func (s *Session) leaveQueueLocked(ctx context.Context, externalID string) (int64, error) {
	queued, err := s.Queue.Contains(ctx, externalID)
	if err != nil {
		return 0, err
	}
	if !queued {
		return 0, ErrNotQueued
	}
	refund, err := s.Queue.Leave(ctx, externalID)
	if err != nil {
		return 0, err
	}
	msg := fmt.Sprintf("➖ %s left the queue", s.displayName(externalID))
	if refund > 0 {
		msg += fmt.Sprintf(" (refund %d BP)", refund)
	}
	s.emitLog(ctx, LogQueue, externalID, msg)
	s.emitQueue(ctx)
	return refund, nil
}

// Demote sends an arena player back to the end of the queue.
func (s *Session) Demote(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Arena.Has(externalID) {
		return ErrNotInArena
	}
	// Queue first: a blocked viewer keeps the seat.
	if err := s.Queue.Join(ctx, externalID); err != nil {
		return err
	}
	s.removePlayerLocked(ctx, externalID)
	s.emitArena(ctx)
	s.emitLog(ctx, LogQueue, externalID, fmt.Sprintf("➕ %s joined the queue", s.displayName(externalID)))
	s.emitQueue(ctx)
	return nil
}

// GrantTwist adds twist charges to a viewer.
func (s *Session) GrantTwist(ctx context.Context, externalID, twist string, qty int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := LookupTwist(twist)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTwist, twist)
	}
	if _, err := s.Identity.Resolve(ctx, externalID, "", ""); err != nil {
		return 0, err
	}
	return s.grantTwistLocked(ctx, externalID, def, qty)
}

func (s *Session) grantTwistLocked(ctx context.Context, externalID string, def TwistDefinition, qty int) (int, error) {
	if qty < 1 {
		qty = 1
	}
	total, err := s.Twists.Grant(ctx, externalID, def.Kind, qty)
	if err != nil {
		return 0, err
	}
	s.emitInventory(ctx, InventoryChange{ExternalUserID: externalID, Kind: def.Kind, Delta: qty, Quantity: total})
	s.emitLog(ctx, LogTwist, externalID, fmt.Sprintf("🎁 %s got %d× %s", s.displayName(externalID), qty, def.Label))
	return total, nil
}

// UseTwist fires a twist; Bypass skips inventory (admin override).
func (s *Session) UseTwist(ctx context.Context, req UseRequest) (TwistResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useTwistLocked(ctx, req)
}

func (s *Session) useTwistLocked(ctx context.Context, req UseRequest) (TwistResult, error) {
	res, err := s.Twists.Use(ctx, req)
	if res.Consumed {
		s.emitInventory(ctx, InventoryChange{ExternalUserID: req.Caster, Kind: res.Kind, Delta: -1, Quantity: res.Remaining})
	}
	if res.Message != "" {
		s.emitLog(ctx, LogTwist, req.Caster, res.Message)
	}
	if err == nil {
		s.emitDangerIfChanged(ctx)
		s.emitArena(ctx)
	}
	return res, err
}

// SetFan sets or clears the fan flag; until is optional.
func (s *Session) SetFan(ctx context.Context, externalID string, fan bool, until *time.Time) error {
	return s.setMembership(ctx, externalID, map[string]any{"is_fan": fan, "fan_expires_at": until})
}

// SetVIP sets or clears the VIP flag; until is optional.
func (s *Session) SetVIP(ctx context.Context, externalID string, vip bool, until *time.Time) error {
	return s.setMembership(ctx, externalID, map[string]any{"is_vip": vip, "vip_expires_at": until})
}

// SetQueueBlock blocks or unblocks a viewer from joining the queue.
func (s *Session) SetQueueBlock(ctx context.Context, externalID string, blocked bool) error {
	return s.setMembership(ctx, externalID, map[string]any{"queue_blocked": blocked})
}

func (s *Session) setMembership(ctx context.Context, externalID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Identity.Resolve(ctx, externalID, "", ""); err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Model(&models.Viewer{}).
		Where("external_id = ?", externalID).Updates(fields).Error; err != nil {
		return fmt.Errorf("update membership for %s: %w", externalID, err)
	}
	s.emitQueue(ctx)
	return nil
}

// MembershipUpdate is a fan/VIP record pushed by the membership service.
type MembershipUpdate struct {
	ExternalID   string
	Nickname     string
	Handle       string
	IsFan        bool
	FanExpiresAt *time.Time
	IsVIP        bool
	VIPExpiresAt *time.Time
}

// ApplyMembership resolves the viewer and overwrites its fan and VIP flags. It takes
// the session lock so it never interleaves with an event touching the same viewer.
func (s *Session) ApplyMembership(ctx context.Context, m MembershipUpdate) error {
	if IsUnknownID(m.ExternalID) {
		return fmt.Errorf("%w: missing external id", ErrUnknownViewer)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Identity.Resolve(ctx, m.ExternalID, m.Nickname, m.Handle); err != nil {
		return err
	}
	if err := s.DB.WithContext(ctx).Model(&models.Viewer{}).
		Where("external_id = ?", m.ExternalID).
		Updates(map[string]any{
			"is_fan":         m.IsFan,
			"fan_expires_at": m.FanExpiresAt,
			"is_vip":         m.IsVIP,
			"vip_expires_at": m.VIPExpiresAt,
		}).Error; err != nil {
		return fmt.Errorf("update membership for %s: %w", m.ExternalID, err)
	}
	return nil
}

// SweepExpiredMemberships clears fan and VIP flags whose expiry has passed.
func (s *Session) SweepExpiredMemberships(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Clock.Now().UTC()
	db := s.DB.WithContext(ctx)
	fans := db.Model(&models.Viewer{}).
		Where("is_fan = ? AND fan_expires_at IS NOT NULL AND fan_expires_at <= ?", true, now).
		Updates(map[string]any{"is_fan": false, "fan_expires_at": nil})
	if fans.Error != nil {
		return 0, fmt.Errorf("expire fans: %w", fans.Error)
	}
	vips := db.Model(&models.Viewer{}).
		Where("is_vip = ? AND vip_expires_at IS NOT NULL AND vip_expires_at <= ?", true, now).
		Updates(map[string]any{"is_vip": false, "vip_expires_at": nil})
	if vips.Error != nil {
		return fans.RowsAffected, fmt.Errorf("expire vips: %w", vips.Error)
	}
	if n := fans.RowsAffected + vips.RowsAffected; n > 0 {
		s.emitQueue(ctx)
		return n, nil
	}
	return 0, nil
}

// ArenaSnapshot returns the current board.
func (s *Session) ArenaSnapshot() ArenaSnapshot {
	return s.Arena.Snapshot()
}

// QueueSnapshot returns the ranked queue.
func (s *Session) QueueSnapshot(ctx context.Context) ([]QueueRank, error) {
	return s.Queue.Snapshot(ctx)
}

// --- notifications ---

func (s *Session) notify(ctx context.Context, n Notification) {
	n.At = s.Clock.Now()
	s.Notifier.Notify(ctx, n)
}

func (s *Session) emitLog(ctx context.Context, t LogType, externalID, msg string) {
	s.notify(ctx, Notification{Kind: NotifyLog, Log: &LogLine{
		Type:           t,
		ExternalUserID: externalID,
		Message:        msg,
		RoundNumber:    s.Arena.Round().Number,
	}})
}

func (s *Session) emitArena(ctx context.Context) {
	snap := s.Arena.Snapshot()
	s.notify(ctx, Notification{Kind: NotifyArena, Arena: &snap})
}

func (s *Session) emitQueue(ctx context.Context) {
	ranks, err := s.Queue.Snapshot(ctx)
	if err != nil {
		log.Printf("[QUEUE] ❌ snapshot failed: %v", err)
		return
	}
	s.notify(ctx, Notification{Kind: NotifyQueue, Queue: ranks})
}

func (s *Session) emitInventory(ctx context.Context, ch InventoryChange) {
	s.notify(ctx, Notification{Kind: NotifyInventory, Inventory: &ch})
}

func (s *Session) emitRound(ctx context.Context, m RoundMarker) {
	s.notify(ctx, Notification{Kind: NotifyRound, Round: &m})
}

// emitDangerIfChanged recomputes the danger zone and logs it when membership moves.
func (s *Session) emitDangerIfChanged(ctx context.Context) {
	danger, _ := s.Arena.RefreshDanger()
	if slices.Equal(danger, s.lastDanger) {
		return
	}
	s.lastDanger = danger
	if len(danger) == 0 {
		return
	}
	names := make([]string, len(danger))
	for i, id := range danger {
		names[i] = s.displayName(id)
	}
	s.emitLog(ctx, LogElim, "", fmt.Sprintf("⚠️ Danger zone: %v", names))
}

func (s *Session) displayName(externalID string) string {
	if p, ok := s.Arena.Player(externalID); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	var v models.Viewer
	if err := s.DB.Select("display_name").Where("external_id = ?", externalID).First(&v).Error; err == nil {
		return v.DisplayName
	}
	return externalID
}
