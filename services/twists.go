// services/twists.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"

	"live-arena-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TwistOutcome is how a resolved use ended.
type TwistOutcome string

const (
	OutcomeApplied TwistOutcome = "applied"
	OutcomeBlocked TwistOutcome = "blocked"
	OutcomeLocked  TwistOutcome = "locked"
)

// UseRequest is one attempt to fire a twist.
type UseRequest struct {
	Caster string
	Twist  string // kind or alias
	Target string // external id, @handle or display name; optional
	// Bypass skips the inventory check and charge (admin override).
	Bypass bool
}

// TwistResult describes a resolved attempt. Consumed is true whenever a charge was
// spent, including blocked and locked attempts.
type TwistResult struct {
	Kind      TwistKind    `json:"kind"`
	Caster    string       `json:"caster"`
	Target    string       `json:"target,omitempty"`
	Outcome   TwistOutcome `json:"outcome"`
	Message   string       `json:"message"`
	Consumed  bool         `json:"consumed"`
	Remaining int          `json:"remaining"`
	Marked    []string     `json:"marked,omitempty"`
}

// TwistService owns twist inventories and resolves twists against the arena.
type TwistService struct {
	DB    *gorm.DB
	Arena *Arena
	Rand  *rand.Rand
}

func NewTwistService(db *gorm.DB, arena *Arena, rng *rand.Rand) *TwistService {
	return &TwistService{DB: db, Arena: arena, Rand: rng}
}

// Grant adds charges; there is no cap. Returns the new quantity.
func (s *TwistService) Grant(ctx context.Context, externalID string, kind TwistKind, qty int) (int, error) {
	if qty < 1 {
		qty = 1
	}
	if _, ok := twistByKind[kind]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTwist, kind)
	}
	db := s.DB.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}, {Name: "kind"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":   gorm.Expr("twist_inventories.quantity + ?", qty),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&models.TwistInventory{
		ID:             uuid.NewString(),
		ExternalUserID: externalID,
		Kind:           string(kind),
		Quantity:       qty,
	}).Error
	if err != nil {
		return 0, fmt.Errorf("grant %d×%s to %s: %w", qty, kind, externalID, err)
	}
	log.Printf("[TWIST] 🎁 %s received %d×%s", externalID, qty, kind)
	return s.Quantity(ctx, externalID, kind)
}

// Quantity returns the viewer's charges of one kind.
func (s *TwistService) Quantity(ctx context.Context, externalID string, kind TwistKind) (int, error) {
	var inv models.TwistInventory
	err := s.DB.WithContext(ctx).Where("external_user_id = ? AND kind = ?", externalID, string(kind)).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load %s inventory for %s: %w", kind, externalID, err)
	}
	return inv.Quantity, nil
}

// Inventory returns every non-zero count the viewer holds.
func (s *TwistService) Inventory(ctx context.Context, externalID string) (map[string]int, error) {
	var rows []models.TwistInventory
	if err := s.DB.WithContext(ctx).Where("external_user_id = ? AND quantity > 0", externalID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load inventory for %s: %w", externalID, err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Kind] = r.Quantity
	}
	return out, nil
}

// consume decrements exactly one charge, or fails with ErrNoInventory.
func (s *TwistService) consume(ctx context.Context, externalID string, kind TwistKind) error {
	res := s.DB.WithContext(ctx).Model(&models.TwistInventory{}).
		Where("external_user_id = ? AND kind = ? AND quantity > 0", externalID, string(kind)).
		Update("quantity", gorm.Expr("quantity - 1"))
	if res.Error != nil {
		return fmt.Errorf("consume %s for %s: %w", kind, externalID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoInventory
	}
	return nil
}

// ClearAll wipes every inventory; inventories are session-scoped.
func (s *TwistService) ClearAll(ctx context.Context) error {
	return s.DB.WithContext(ctx).Where("quantity <> 0").Delete(&models.TwistInventory{}).Error
}

// Use resolves one twist attempt.
//
// Twists only fire while a round is live. Validation failures (unknown twist, no live
// round, caster not seated, bad target, no charges, no eligible random target) change
// nothing. Once validation passes the charge is spent,
// and it stays spent even if the effect is then blocked by immunity or by the
// once-per-round lock: the attempt consumes the action.
func (s *TwistService) Use(ctx context.Context, req UseRequest) (TwistResult, error) {
	def, ok := LookupTwist(req.Twist)
	if !ok {
		return TwistResult{}, fmt.Errorf("%w: %q", ErrUnknownTwist, req.Twist)
	}
	res := TwistResult{Kind: def.Kind, Caster: req.Caster}

	if !s.Arena.Round().Phase.Live() {
		return res, ErrRoundNotLive
	}
	if !s.Arena.Has(req.Caster) {
		return res, ErrNotInArena
	}

	target, err := s.resolveTarget(def, req)
	if err != nil {
		return res, err
	}
	res.Target = target

	if !req.Bypass {
		if err := s.consume(ctx, req.Caster, def.Kind); err != nil {
			return res, err
		}
		res.Consumed = true
		if res.Remaining, err = s.Quantity(ctx, req.Caster, def.Kind); err != nil {
			log.Printf("[TWIST] ⚠️ reading remaining %s for %s: %v", def.Kind, req.Caster, err)
		}
	}

	if def.OncePerRound && s.Arena.DecisiveUsed() {
		res.Outcome = OutcomeLocked
		res.Message = fmt.Sprintf("%s was already used this round", def.Label)
		return res, ErrTwistUsedThisRound
	}

	if err := s.apply(def, &res); err != nil {
		return res, err
	}
	log.Printf("[TWIST] %s %s by %s → %s (%s)", def.Kind, res.Outcome, req.Caster, res.Target, res.Message)
	return res, nil
}

func (s *TwistService) resolveTarget(def TwistDefinition, req UseRequest) (string, error) {
	if def.SelfTarget {
		return req.Caster, nil
	}
	var target string
	if strings.TrimSpace(req.Target) != "" {
		id, ok := s.Arena.Find(req.Target)
		if !ok {
			return "", ErrTargetNotInArena
		}
		target = id
	}
	switch {
	case target == "" && def.RequiresTarget:
		return "", ErrTargetRequired
	case target == "" && def.RandomTarget:
		id, ok := s.Arena.RandomUnprotected(s.Rand, req.Caster)
		if !ok {
			return "", ErrNoEligibleTarget
		}
		target = id
	}
	if target == req.Caster && (def.Class == ClassOffense || def.Class == ClassBreaker) {
		return "", ErrInvalidTarget
	}
	return target, nil
}

func (s *TwistService) apply(def TwistDefinition, res *TwistResult) error {
	caster := s.name(res.Caster)
	target := s.name(res.Target)
	res.Outcome = OutcomeApplied

	switch def.Class {
	case ClassOffense:
		blocked, err := s.Arena.MarkForElimination(res.Target)
		if err != nil {
			return err
		}
		if blocked {
			res.Outcome = OutcomeBlocked
			res.Message = fmt.Sprintf("🛡️ %s blocked %s's %s", target, caster, def.Label)
			return nil
		}
		res.Message = fmt.Sprintf("💥 %s hit %s with %s: marked for elimination", caster, target, def.Label)
	case ClassDefense:
		if err := s.Arena.GrantImmunity(res.Target); err != nil {
			return err
		}
		res.Message = fmt.Sprintf("🛡️ %s is now immune", target)
	case ClassHeal:
		if err := s.Arena.Heal(res.Target); err != nil {
			return err
		}
		res.Message = fmt.Sprintf("💚 %s healed %s", caster, target)
	case ClassBreaker:
		had, err := s.Arena.BreakImmunity(res.Target)
		if err != nil {
			return err
		}
		if had {
			res.Message = fmt.Sprintf("🔨 %s broke %s's immunity", caster, target)
		} else {
			res.Message = fmt.Sprintf("🔨 %s swung at %s, who had no immunity", caster, target)
		}
	case ClassReversal:
		if s.Arena.ToggleReversal() {
			res.Message = fmt.Sprintf("🌌 %s flipped the ranking: lowest score now leads", caster)
		} else {
			res.Message = fmt.Sprintf("🌌 %s restored the normal ranking", caster)
		}
	case ClassDecisive:
		marked, err := s.Arena.ApplyDecisive(res.Target)
		if errors.Is(err, ErrTwistUsedThisRound) {
			res.Outcome = OutcomeLocked
			res.Message = fmt.Sprintf("%s was already used this round", def.Label)
			return err
		}
		if err != nil {
			return err
		}
		res.Marked = marked
		res.Message = fmt.Sprintf("💎 %s fired the %s: only %s survives", caster, def.Label, target)
	default:
		return fmt.Errorf("%w: no effect for class %s", ErrUnknownTwist, def.Class)
	}
	return nil
}

func (s *TwistService) name(externalID string) string {
	if p, ok := s.Arena.Player(externalID); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return externalID
}
