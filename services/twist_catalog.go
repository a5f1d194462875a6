package services

import (
	"strings"

	"golang.org/x/text/cases"
)

// TwistKind is the canonical name of a special action.
type TwistKind string

const (
	TwistMoneyGun      TwistKind = "moneygun"
	TwistBomb          TwistKind = "bomb"
	TwistImmune        TwistKind = "immune"
	TwistHeal          TwistKind = "heal"
	TwistGalaxy        TwistKind = "galaxy"
	TwistDiamondPistol TwistKind = "diamond_pistol"
	TwistBreaker       TwistKind = "breaker"
)

// TwistClass groups twists by how they resolve against the arena.
type TwistClass string

const (
	ClassOffense  TwistClass = "offense"
	ClassDefense  TwistClass = "defense"
	ClassHeal     TwistClass = "heal"
	ClassReversal TwistClass = "reversal"
	ClassDecisive TwistClass = "decisive"
	ClassBreaker  TwistClass = "breaker"
)

// TwistDefinition describes one twist kind.
type TwistDefinition struct {
	Kind           TwistKind
	Label          string
	Class          TwistClass
	RequiresTarget bool
	// SelfTarget applies the effect to the caster; any supplied target is ignored.
	SelfTarget bool
	// RandomTarget picks an unprotected player when no target is supplied.
	RandomTarget bool
	OncePerRound bool
	Aliases      []string
}

var twistCatalog = []TwistDefinition{
	{Kind: TwistMoneyGun, Label: "Money Gun", Class: ClassOffense, RequiresTarget: true,
		Aliases: []string{"moneygun", "money gun", "mg", "gun"}},
	{Kind: TwistBomb, Label: "Bomb", Class: ClassOffense, RandomTarget: true,
		Aliases: []string{"bomb", "bomba", "boom"}},
	{Kind: TwistImmune, Label: "Immune", Class: ClassDefense, SelfTarget: true,
		Aliases: []string{"immune", "immunity", "shield", "inmune"}},
	{Kind: TwistHeal, Label: "Heal", Class: ClassHeal, RequiresTarget: true,
		Aliases: []string{"heal", "revive", "cure"}},
	{Kind: TwistGalaxy, Label: "Galaxy", Class: ClassReversal,
		Aliases: []string{"galaxy", "galaxia", "reverse", "flip"}},
	{Kind: TwistDiamondPistol, Label: "Diamond Pistol", Class: ClassDecisive, RequiresTarget: true, OncePerRound: true,
		Aliases: []string{"diamond_pistol", "diamond pistol", "diamondpistol", "pistol", "dp"}},
	{Kind: TwistBreaker, Label: "Breaker", Class: ClassBreaker, RequiresTarget: true,
		Aliases: []string{"breaker", "break", "hammer"}},
}

var (
	twistByKind = make(map[TwistKind]TwistDefinition, len(twistCatalog))
	twistAlias  = make(map[string]TwistKind)
)

func init() {
	for _, def := range twistCatalog {
		twistByKind[def.Kind] = def
		twistAlias[aliasKey(string(def.Kind))] = def.Kind
		for _, a := range def.Aliases {
			twistAlias[aliasKey(a)] = def.Kind
		}
	}
}

// LookupTwist resolves a canonical kind or any alias, case-insensitively.
func LookupTwist(input string) (TwistDefinition, bool) {
	kind, ok := twistAlias[aliasKey(input)]
	if !ok {
		return TwistDefinition{}, false
	}
	return twistByKind[kind], true
}

// TwistDefinitions lists the catalog in display order.
func TwistDefinitions() []TwistDefinition {
	out := make([]TwistDefinition, len(twistCatalog))
	copy(out, twistCatalog)
	return out
}

// aliasKey folds case and drops separators so "Diamond-Pistol" == "diamond_pistol".
func aliasKey(s string) string {
	s = cases.Fold().String(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '.':
			return -1
		}
		return r
	}, s)
}

// foldName folds case and collapses whitespace in gift names.
func foldName(s string) string {
	return strings.Join(strings.Fields(cases.Fold().String(s)), " ")
}
