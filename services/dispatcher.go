// services/dispatcher.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"live-arena-system/models"

	"gorm.io/gorm"
)

// Outcome is what a dispatched event produced. Reply is a short, viewer-safe line
// for chat; it never carries internal error text.
type Outcome struct {
	Reply    string
	Diamonds int64
	Points   int64
	Scored   bool
	Twist    *TwistResult
}

// Dispatcher routes normalized feed events to the core components. It always runs
// under the session lock.
type Dispatcher struct {
	s *Session
}

// Dispatch routes one event by kind.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.LiveEvent) (Outcome, error) {
	switch e := ev.(type) {
	case *models.GiftEvent:
		return d.OnGift(ctx, e)
	case models.GiftEvent:
		return d.OnGift(ctx, &e)
	case *models.ChatEvent:
		return d.OnChat(ctx, e)
	case models.ChatEvent:
		return d.OnChat(ctx, &e)
	case *models.MemberEvent:
		return d.OnMember(ctx, e)
	case models.MemberEvent:
		return d.OnMember(ctx, &e)
	default:
		return Outcome{}, fmt.Errorf("unsupported event %T", ev)
	}
}

// giftDiamonds is the diamond value a gift credits now. Streak gifts credit once, on
// the closing event; non-positive values credit nothing.
func giftDiamonds(e *models.GiftEvent) (diamonds int64, count int) {
	if e.UnitValue <= 0 {
		return 0, 0
	}
	if e.Streakable {
		if !e.RepeatEnd {
			return 0, 0
		}
		count = max(e.RepeatCount, 1)
		return e.UnitValue * int64(count), count
	}
	return e.UnitValue, 1
}

// OnGift credits currency, points, arena score and twist charges for one gift.
func (d *Dispatcher) OnGift(ctx context.Context, e *models.GiftEvent) (Outcome, error) {
	s := d.s
	st := s.Settings()

	diamonds, count := giftDiamonds(e)
	if diamonds <= 0 {
		return Outcome{}, nil
	}

	sender, err := s.Identity.Resolve(ctx, e.From.ExternalID, e.From.Nickname, e.From.Handle)
	if err != nil {
		return Outcome{}, err
	}
	d.noteFanClub(ctx, sender, e.From.FanClubLevel)
	out := Outcome{Diamonds: diamonds}

	if !IsUnknownID(sender.ExternalID) {
		for _, b := range []Bucket{BucketRound, BucketStream, BucketAllTime} {
			if err := s.Ledger.AddCurrency(ctx, sender.ExternalID, diamonds, b); err != nil {
				return out, err
			}
		}
		points := st.GiftPoints(diamonds)
		if out.Points, err = s.Ledger.AddPoints(ctx, sender.ExternalID, points, "gift"); err != nil {
			return out, err
		}
	}

	scoreTo := sender.ExternalID
	if e.ReceiverID != "" && e.ReceiverID != st.HostID {
		receiver, err := s.Identity.Resolve(ctx, e.ReceiverID, "", "")
		if err != nil {
			return out, err
		}
		scoreTo = receiver.ExternalID
	}
	if out.Scored = s.Arena.CreditScore(scoreTo, diamonds); out.Scored {
		s.emitDangerIfChanged(ctx)
		s.emitArena(ctx)
	}

	giftName := e.GiftName
	if count > 1 {
		giftName = fmt.Sprintf("%d× %s", count, e.GiftName)
	}
	s.emitLog(ctx, LogGift, sender.ExternalID, fmt.Sprintf("🎁 %s sent %s (%d 💎)", sender.DisplayName, giftName, diamonds))

	if grant, ok := st.TwistGifts[foldName(e.GiftName)]; ok && !IsUnknownID(sender.ExternalID) {
		def, ok := LookupTwist(string(grant.Kind))
		if !ok {
			log.Printf("[DISPATCH] ⚠️ gift %q maps to unknown twist %s", e.GiftName, grant.Kind)
			return out, nil
		}
		if _, err := s.grantTwistLocked(ctx, sender.ExternalID, def, grant.Quantity*count); err != nil {
			return out, err
		}
	}
	return out, nil
}

// OnChat handles commands; anything else earns the chat bonus.
func (d *Dispatcher) OnChat(ctx context.Context, e *models.ChatEvent) (Outcome, error) {
	s := d.s
	st := s.Settings()

	viewer, err := s.Identity.Resolve(ctx, e.From.ExternalID, e.From.Nickname, e.From.Handle)
	if err != nil {
		return Outcome{}, err
	}
	if IsUnknownID(viewer.ExternalID) {
		return Outcome{}, nil
	}
	d.noteFanClub(ctx, viewer, e.From.FanClubLevel)

	text := strings.TrimSpace(e.Text)
	if !strings.HasPrefix(text, st.CommandPrefix) {
		points, err := s.Ledger.AddPoints(ctx, viewer.ExternalID, st.ChatBonus, "chat")
		return Outcome{Points: points}, err
	}

	fields := strings.Fields(strings.TrimPrefix(text, st.CommandPrefix))
	if len(fields) == 0 {
		return Outcome{}, nil
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "join":
		return d.join(ctx, viewer)
	case "leave":
		refund, err := s.leaveQueueLocked(ctx, viewer.ExternalID)
		if err != nil {
			return Outcome{Reply: viewerReply(viewer.DisplayName, err)}, err
		}
		return Outcome{Reply: fmt.Sprintf("%s left the queue (refund %d BP)", viewer.DisplayName, refund)}, nil
	case "boost":
		return d.boost(ctx, viewer, args)
	}

	def, ok := LookupTwist(cmd)
	if !ok {
		return Outcome{}, nil
	}
	req := UseRequest{Caster: viewer.ExternalID, Twist: string(def.Kind)}
	if len(args) > 0 {
		req.Target = args[0]
	}
	res, err := s.useTwistLocked(ctx, req)
	out := Outcome{Twist: &res, Reply: res.Message}
	if err != nil {
		out.Reply = viewerReply(viewer.DisplayName, err)
	}
	return out, err
}

func (d *Dispatcher) join(ctx context.Context, v *models.Viewer) (Outcome, error) {
	s := d.s
	if !v.FanActive(s.Clock.Now()) {
		return Outcome{Reply: viewerReply(v.DisplayName, ErrNotFan)}, ErrNotFan
	}
	if err := s.joinQueueLocked(ctx, v.ExternalID); err != nil {
		return Outcome{Reply: viewerReply(v.DisplayName, err)}, err
	}
	return Outcome{Reply: fmt.Sprintf("%s joined the queue", v.DisplayName)}, nil
}

func (d *Dispatcher) boost(ctx context.Context, v *models.Viewer, args []string) (Outcome, error) {
	s := d.s
	slots := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(strings.TrimPrefix(args[0], "+"))
		if err != nil {
			return Outcome{Reply: viewerReply(v.DisplayName, ErrMalformedCommand)}, ErrMalformedCommand
		}
		slots = n
	}
	applied, err := s.Queue.Boost(ctx, v.ExternalID, slots)
	if err != nil {
		return Outcome{Reply: viewerReply(v.DisplayName, err)}, err
	}
	s.emitLog(ctx, LogBooster, v.ExternalID, fmt.Sprintf("🚀 %s boosted +%d", v.DisplayName, applied))
	s.emitQueue(ctx)
	return Outcome{Reply: fmt.Sprintf("%s boosted +%d", v.DisplayName, applied)}, nil
}

// OnMember records joins; the join bonus goes to anyone who enters the room.
func (d *Dispatcher) OnMember(ctx context.Context, e *models.MemberEvent) (Outcome, error) {
	s := d.s
	viewer, err := s.Identity.Resolve(ctx, e.From.ExternalID, e.From.Nickname, e.From.Handle)
	if err != nil {
		return Outcome{}, err
	}
	if IsUnknownID(viewer.ExternalID) || e.Action != models.MemberJoined {
		return Outcome{}, nil
	}
	d.noteFanClub(ctx, viewer, e.From.FanClubLevel)
	points, err := s.Ledger.AddPoints(ctx, viewer.ExternalID, s.Settings().JoinBonus, "join")
	if err != nil {
		return Outcome{}, err
	}
	s.emitLog(ctx, LogJoin, viewer.ExternalID, fmt.Sprintf("👋 %s joined", viewer.DisplayName))
	return Outcome{Points: points}, nil
}

// noteFanClub marks a viewer as fan when the platform reports a fan-club level.
func (d *Dispatcher) noteFanClub(ctx context.Context, v *models.Viewer, level int) {
	if level <= 0 || IsUnknownID(v.ExternalID) || v.FanActive(d.s.Clock.Now()) {
		return
	}
	err := d.s.DB.WithContext(ctx).Model(&models.Viewer{}).
		Where("external_id = ?", v.ExternalID).
		Updates(map[string]any{"is_fan": true, "fan_expires_at": gorm.Expr("NULL")}).Error
	if err != nil {
		log.Printf("[DISPATCH] ⚠️ marking %s as fan: %v", v.ExternalID, err)
		return
	}
	v.IsFan = true
	v.FanExpiresAt = nil
}

// viewerReply turns a rejection into a chat line.
func viewerReply(name string, err error) string {
	switch {
	case errors.Is(err, ErrNotFan):
		return fmt.Sprintf("%s, only fans can join the queue", name)
	case errors.Is(err, ErrAlreadyQueued):
		return fmt.Sprintf("%s, you are already in the queue", name)
	case errors.Is(err, ErrAlreadyInArena):
		return fmt.Sprintf("%s, you are already in the arena", name)
	case errors.Is(err, ErrQueueBlocked):
		return fmt.Sprintf("%s, you can't join the queue right now", name)
	case errors.Is(err, ErrNotQueued):
		return fmt.Sprintf("%s, join the queue first", name)
	case errors.Is(err, ErrInsufficientFunds):
		return fmt.Sprintf("%s, not enough points", name)
	case errors.Is(err, ErrMalformedCommand):
		return fmt.Sprintf("%s, boost takes a number of slots", name)
	case errors.Is(err, ErrNotInArena):
		return fmt.Sprintf("%s, twists can only be used from the arena", name)
	case errors.Is(err, ErrNoInventory):
		return fmt.Sprintf("%s, you have no charges of that twist", name)
	case errors.Is(err, ErrTargetRequired):
		return fmt.Sprintf("%s, pick a target with @name", name)
	case errors.Is(err, ErrTargetNotInArena):
		return fmt.Sprintf("%s, that player is not in the arena", name)
	case errors.Is(err, ErrInvalidTarget):
		return fmt.Sprintf("%s, you can't target yourself with that", name)
	case errors.Is(err, ErrNoEligibleTarget):
		return fmt.Sprintf("%s, no one can be hit right now", name)
	case errors.Is(err, ErrRoundNotLive):
		return fmt.Sprintf("%s, twists only work during a round", name)
	case errors.Is(err, ErrTwistUsedThisRound):
		return fmt.Sprintf("%s, that twist was already used this round", name)
	default:
		return ""
	}
}
