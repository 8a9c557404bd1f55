// Package priority orders the members of a duplicate group so the most
// preferred unit comes first.
//
// Two rule blocks are applied in the configured order. The ID block ranks
// units by the position of their creationid, then their changeid, in
// ordered preference lists; a value missing from a list ranks after any
// listed value. The date block prefers the later changedate, then the later
// creationdate, each only when enabled; a missing date ranks below a present
// one. Every rule is a total preorder, so their lexicographic combination is
// one too. Units no rule separates keep their input order.
package priority

import (
	"fmt"
	"slices"
	"strings"

	"github.com/minios-linux/tmxdedup/tmx"
)

// RuleOrder selects which rule block is applied first.
type RuleOrder string

const (
	IDsFirst   RuleOrder = "idsFirst"
	DatesFirst RuleOrder = "datesFirst"
)

// RuleOrders lists the accepted orders in display order.
var RuleOrders = []RuleOrder{IDsFirst, DatesFirst}

// ParseRuleOrder accepts "idsFirst"/"ids" and "datesFirst"/"dates".
func ParseRuleOrder(s string) (RuleOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idsfirst", "ids":
		return IDsFirst, nil
	case "datesfirst", "dates":
		return DatesFirst, nil
	}
	return "", fmt.Errorf("unknown rule order %q (want idsFirst or datesFirst)", s)
}

// Config is a priority policy.
type Config struct {
	// CreationIDs and ChangeIDs are preference lists, most preferred first.
	CreationIDs []string
	ChangeIDs   []string

	PreferNewerChangeDate   bool
	PreferNewerCreationDate bool

	RuleOrder RuleOrder
}

// DefaultConfig applies no rule: every comparison is a tie.
func DefaultConfig() Config {
	return Config{RuleOrder: IDsFirst}
}

// Validate reports an unknown rule order.
func (c Config) Validate() error {
	_, err := ParseRuleOrder(string(c.RuleOrder))
	return err
}

// Result is the outcome of a comparison.
type Result int

const (
	AWins Result = -1
	Tie   Result = 0
	BWins Result = 1
)

func (r Result) String() string {
	switch r {
	case AWins:
		return "a-wins"
	case BWins:
		return "b-wins"
	}
	return "tie"
}

// Rule names reported by Explain.
const (
	RuleCreationID   = "creationid"
	RuleChangeID     = "changeid"
	RuleChangeDate   = "changedate"
	RuleCreationDate = "creationdate"
)

// Compare decides which of two units the policy prefers.
func Compare(a, b *tmx.Unit, cfg Config) Result {
	r, _ := Explain(a, b, cfg)
	return r
}

// Explain is Compare that also names the rule that decided. The rule is
// empty for a tie.
func Explain(a, b *tmx.Unit, cfg Config) (Result, string) {
	blocks := [][]rule{idRules(cfg), dateRules(cfg)}
	if cfg.RuleOrder == DatesFirst {
		blocks[0], blocks[1] = blocks[1], blocks[0]
	}
	for _, block := range blocks {
		for _, r := range block {
			if res := r.cmp(a, b); res != Tie {
				return res, r.name
			}
		}
	}
	return Tie, ""
}

// SortStable orders items from most to least preferred. Items the policy
// cannot separate keep their relative order, so the first-encountered unit
// wins a full tie.
func SortStable[T any](items []T, unit func(T) *tmx.Unit, cfg Config) {
	slices.SortStableFunc(items, func(x, y T) int {
		return int(Compare(unit(x), unit(y), cfg))
	})
}

// ---------------------------------------------------------------------------
// Rules
// ---------------------------------------------------------------------------

type rule struct {
	name string
	cmp  func(a, b *tmx.Unit) Result
}

func idRules(cfg Config) []rule {
	var rules []rule
	if len(cfg.CreationIDs) > 0 {
		rules = append(rules, rule{RuleCreationID, func(a, b *tmx.Unit) Result {
			return compareRank(cfg.CreationIDs, a.CreationID, b.CreationID)
		}})
	}
	if len(cfg.ChangeIDs) > 0 {
		rules = append(rules, rule{RuleChangeID, func(a, b *tmx.Unit) Result {
			return compareRank(cfg.ChangeIDs, a.ChangeID, b.ChangeID)
		}})
	}
	return rules
}

func dateRules(cfg Config) []rule {
	var rules []rule
	if cfg.PreferNewerChangeDate {
		rules = append(rules, rule{RuleChangeDate, func(a, b *tmx.Unit) Result {
			return compareNewer(a.ChangeDate, b.ChangeDate)
		}})
	}
	if cfg.PreferNewerCreationDate {
		rules = append(rules, rule{RuleCreationDate, func(a, b *tmx.Unit) Result {
			return compareNewer(a.CreationDate, b.CreationDate)
		}})
	}
	return rules
}

// compareRank prefers the value listed earlier; an unlisted value loses to a
// listed one.
func compareRank(prefs []string, a, b string) Result {
	ai, bi := slices.Index(prefs, a), slices.Index(prefs, b)
	switch {
	case ai == bi:
		return Tie
	case ai == -1:
		return BWins
	case bi == -1:
		return AWins
	case ai < bi:
		return AWins
	}
	return BWins
}

// compareNewer prefers the lexicographically greater TMX timestamp, which is
// the later one for well-formed YYYYMMDDTHHMMSSZ values.
func compareNewer(a, b string) Result {
	switch {
	case a == b:
		return Tie
	case a > b:
		return AWins
	}
	return BWins
}
