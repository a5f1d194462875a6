// services/settings.go
package services

import (
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// RoundKind is the competitive stage of a round.
type RoundKind string

const (
	RoundQualifying RoundKind = "qualifying"
	RoundSemifinal  RoundKind = "semifinal"
	RoundFinal      RoundKind = "final"
)

// ParseRoundKind accepts the three round kinds, case-insensitively.
func ParseRoundKind(s string) (RoundKind, error) {
	switch RoundKind(strings.ToLower(strings.TrimSpace(s))) {
	case RoundQualifying, "":
		return RoundQualifying, nil
	case RoundSemifinal:
		return RoundSemifinal, nil
	case RoundFinal:
		return RoundFinal, nil
	}
	return "", fmt.Errorf("unknown round kind %q", s)
}

// EliminationPolicy decides what happens to eliminated players when a round ends.
type EliminationPolicy string

const (
	// EliminateRemove drops eliminated players from the roster at round end.
	EliminateRemove EliminationPolicy = "remove"
	// EliminateTag keeps them tagged until ConfirmEliminations or a roster reset.
	EliminateTag EliminationPolicy = "tag"
)

// TwistGrant maps a gift onto twist charges.
type TwistGrant struct {
	Kind     TwistKind
	Quantity int
}

// Settings are the tunable game rules. Adjusted at runtime through Session.UpdateSettings.
type Settings struct {
	QualifyingDuration time.Duration
	SemifinalDuration  time.Duration
	FinalDuration      time.Duration
	GracePeriod        time.Duration

	ArenaCapacity  int
	DangerZoneSize int

	DailyPointCap      int64
	CostPerBoostSlot   int64
	MaxBoostPerCommand int
	VIPWeight          int

	// BP credited per 100 diamonds; 20 is a 0.2 conversion rate.
	PointsPercent int64
	ChatBonus     int64
	JoinBonus     int64

	CommandPrefix string
	DedupWindow   time.Duration
	HostID        string

	QualifyingPolicy EliminationPolicy
	FinalPolicy      EliminationPolicy

	// Gift name (case-insensitive) -> twist charges granted per gift.
	TwistGifts map[string]TwistGrant
}

// DefaultSettings returns the stock rule set.
func DefaultSettings() Settings {
	return Settings{
		QualifyingDuration: 180 * time.Second,
		SemifinalDuration:  240 * time.Second,
		FinalDuration:      300 * time.Second,
		GracePeriod:        5 * time.Second,
		ArenaCapacity:      8,
		DangerZoneSize:     3,
		DailyPointCap:      1000,
		CostPerBoostSlot:   50,
		MaxBoostPerCommand: 5,
		VIPWeight:          1000,
		PointsPercent:      20,
		ChatBonus:          1,
		JoinBonus:          2,
		CommandPrefix:      "!",
		DedupWindow:        60 * time.Second,
		QualifyingPolicy:   EliminateRemove,
		FinalPolicy:        EliminateTag,
		TwistGifts: map[string]TwistGrant{
			"money gun":      {Kind: TwistMoneyGun, Quantity: 1},
			"galaxy":         {Kind: TwistGalaxy, Quantity: 1},
			"diamond pistol": {Kind: TwistDiamondPistol, Quantity: 1},
			"bomb":           {Kind: TwistBomb, Quantity: 1},
			"shield":         {Kind: TwistImmune, Quantity: 1},
			"heart me":       {Kind: TwistHeal, Quantity: 1},
			"hammer":         {Kind: TwistBreaker, Quantity: 1},
		},
	}
}

// Duration returns the configured length of a round of the given kind.
func (s Settings) Duration(kind RoundKind) time.Duration {
	switch kind {
	case RoundFinal:
		return s.FinalDuration
	case RoundSemifinal:
		return s.SemifinalDuration
	default:
		return s.QualifyingDuration
	}
}

// Policy returns the elimination policy for a round kind. Finals keep their roster.
func (s Settings) Policy(kind RoundKind) EliminationPolicy {
	if kind == RoundFinal {
		return s.FinalPolicy
	}
	return s.QualifyingPolicy
}

// GiftPoints converts diamonds to BP, rounding down.
func (s Settings) GiftPoints(diamonds int64) int64 {
	if diamonds <= 0 || s.PointsPercent <= 0 {
		return 0
	}
	return diamonds * s.PointsPercent / 100
}

// Validate rejects settings that would break the game's invariants.
func (s Settings) Validate() error {
	switch {
	case s.QualifyingDuration <= 0 || s.SemifinalDuration <= 0 || s.FinalDuration <= 0:
		return fmt.Errorf("%w: round durations must be positive", ErrInvalidSettings)
	case s.GracePeriod < 0:
		return fmt.Errorf("%w: grace period must not be negative", ErrInvalidSettings)
	case s.ArenaCapacity < 1 || s.ArenaCapacity > 8:
		return fmt.Errorf("%w: arena capacity must be between 1 and 8", ErrInvalidSettings)
	case s.DangerZoneSize < 0:
		return fmt.Errorf("%w: danger zone size must not be negative", ErrInvalidSettings)
	case s.DailyPointCap < 0 || s.CostPerBoostSlot < 0:
		return fmt.Errorf("%w: point cap and boost cost must not be negative", ErrInvalidSettings)
	case s.MaxBoostPerCommand < 1:
		return fmt.Errorf("%w: max boost per command must be at least 1", ErrInvalidSettings)
	case s.PointsPercent < 0:
		return fmt.Errorf("%w: diamond conversion must not be negative", ErrInvalidSettings)
	case s.CommandPrefix == "":
		return fmt.Errorf("%w: command prefix is required", ErrInvalidSettings)
	case s.DedupWindow <= 0:
		return fmt.Errorf("%w: dedup window must be positive", ErrInvalidSettings)
	}
	for _, p := range []EliminationPolicy{s.QualifyingPolicy, s.FinalPolicy} {
		if p != EliminateRemove && p != EliminateTag {
			return fmt.Errorf("%w: unknown elimination policy %q", ErrInvalidSettings, p)
		}
	}
	return nil
}

// LoadSettingsFromEnv starts from DefaultSettings and applies environment overrides.
func LoadSettingsFromEnv() (Settings, error) {
	s := DefaultSettings()

	envSeconds("ROUND_QUALIFYING_SECONDS", &s.QualifyingDuration)
	envSeconds("ROUND_SEMIFINAL_SECONDS", &s.SemifinalDuration)
	envSeconds("ROUND_FINAL_SECONDS", &s.FinalDuration)
	envSeconds("ROUND_GRACE_SECONDS", &s.GracePeriod)
	envSeconds("DEDUP_WINDOW_SECONDS", &s.DedupWindow)
	envInt("ARENA_CAPACITY", &s.ArenaCapacity)
	envInt("DANGER_ZONE_SIZE", &s.DangerZoneSize)
	envInt("MAX_BOOST_PER_COMMAND", &s.MaxBoostPerCommand)
	envInt("VIP_WEIGHT", &s.VIPWeight)
	envInt64("DAILY_POINT_CAP", &s.DailyPointCap)
	envInt64("COST_PER_BOOST", &s.CostPerBoostSlot)
	envInt64("CHAT_BONUS", &s.ChatBonus)
	envInt64("JOIN_BONUS", &s.JoinBonus)

	if v := os.Getenv("DIAMOND_TO_POINTS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return s, fmt.Errorf("DIAMOND_TO_POINTS: %w", err)
		}
		s.PointsPercent = int64(math.Round(f * 100))
	}
	if v := os.Getenv("COMMAND_PREFIX"); v != "" {
		s.CommandPrefix = v
	}
	s.HostID = os.Getenv("HOST_EXTERNAL_ID")
	if v := os.Getenv("QUALIFYING_ELIMINATION_POLICY"); v != "" {
		s.QualifyingPolicy = EliminationPolicy(strings.ToLower(v))
	}
	if v := os.Getenv("FINAL_ELIMINATION_POLICY"); v != "" {
		s.FinalPolicy = EliminationPolicy(strings.ToLower(v))
	}
	if v := os.Getenv("TWIST_GIFTS"); v != "" {
		gifts, err := ParseTwistGifts(v)
		if err != nil {
			return s, fmt.Errorf("TWIST_GIFTS: %w", err)
		}
		s.TwistGifts = gifts
	}

	return s, s.Validate()
}

// ParseTwistGifts parses "Money Gun=moneygun:1,Galaxy=galaxy" into a gift map.
// Twist names go through the alias table; quantity defaults to 1.
func ParseTwistGifts(raw string) (map[string]TwistGrant, error) {
	out := make(map[string]TwistGrant)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, rule, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("missing '=' in %q", pair)
		}
		alias, qtyStr, hasQty := strings.Cut(rule, ":")
		def, ok := LookupTwist(alias)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTwist, alias)
		}
		qty := 1
		if hasQty {
			n, err := strconv.Atoi(strings.TrimSpace(qtyStr))
			if err != nil || n < 1 {
				return nil, fmt.Errorf("bad quantity in %q", pair)
			}
			qty = n
		}
		out[foldName(name)] = TwistGrant{Kind: def.Kind, Quantity: qty}
	}
	return out, nil
}

func envSeconds(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("⚠️  Ignoring %s=%q: %v", key, v, err)
			return
		}
		*dst = time.Duration(n) * time.Second
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("⚠️  Ignoring %s=%q: %v", key, v, err)
			return
		}
		*dst = n
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Printf("⚠️  Ignoring %s=%q: %v", key, v, err)
			return
		}
		*dst = n
	}
}
