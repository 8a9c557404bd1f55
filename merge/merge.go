// Package merge resolves duplicate groups into keep/delete decisions and
// filters a document accordingly.
//
// A unit may sit in several groups. When its decisions disagree, delete
// wins: a unit survives only if every group it belongs to keeps it. This
// makes a second pass over the output find nothing to remove.
package merge

import (
	"fmt"

	"github.com/minios-linux/tmxdedup/dedup"
	"github.com/minios-linux/tmxdedup/diag"
	"github.com/minios-linux/tmxdedup/priority"
	"github.com/minios-linux/tmxdedup/tmx"
)

// Decision is the reviewable outcome for one member of a duplicate group.
type Decision struct {
	// Position is the unit's 1-based place in the document body; 0 when
	// unknown (e.g. a hand-written override).
	Position int `json:"position,omitempty"`
	// Key is the ID of the group the decision belongs to.
	Key string `json:"key,omitempty"`

	SourceText   string       `json:"sourceText"`
	TargetText   string       `json:"targetText"`
	CreationID   string       `json:"creationId"`
	ChangeID     string       `json:"changeId"`
	CreationDate string       `json:"creationDate"`
	ChangeDate   string       `json:"changeDate"`
	Status       dedup.Status `json:"status"`

	// Rule names the priority rule that ranked the group's winner above this
	// member; empty for the winner and for members that lost on input order.
	Rule string `json:"rule,omitempty"`
}

type tuple struct {
	source, target, creationID, changeID string
}

func (d Decision) tuple() tuple {
	return tuple{d.SourceText, d.TargetText, d.CreationID, d.ChangeID}
}

// Stats counts units before and after filtering.
type Stats struct {
	OriginalCount     int `json:"originalCount"`
	UniqueCount       int `json:"uniqueCount"`
	DuplicatesRemoved int `json:"duplicatesRemoved"`
}

func (s Stats) String() string {
	return fmt.Sprintf("%d original, %d unique, %d removed", s.OriginalCount, s.UniqueCount, s.DuplicatesRemoved)
}

// Options bundles everything analysis needs.
type Options struct {
	Match    dedup.Options
	Priority priority.Config
	// SourceLang and TargetLang are language prefixes. Empty values are
	// filled from the document by ResolveLanguages.
	SourceLang string
	TargetLang string
}

// DefaultOptions returns the default match options and an empty priority
// policy.
func DefaultOptions() Options {
	return Options{Match: dedup.DefaultOptions(), Priority: priority.DefaultConfig()}
}

// Validate checks the enumerations of both option sets.
func (o Options) Validate() error {
	if err := o.Match.Validate(); err != nil {
		return err
	}
	return o.Priority.Validate()
}

// ResolveLanguages fills empty language prefixes from the document header
// and, failing that, from its first valid unit.
func (o Options) ResolveLanguages(doc *tmx.Document) (Options, error) {
	if o.SourceLang != "" && o.TargetLang != "" {
		return o, nil
	}
	src, tgt := tmx.Languages(doc)
	if o.SourceLang == "" {
		o.SourceLang = src
	}
	if o.TargetLang == "" {
		o.TargetLang = tgt
	}
	if o.SourceLang == "" || o.TargetLang == "" {
		return o, fmt.Errorf("cannot determine source and target languages (source=%q, target=%q)", o.SourceLang, o.TargetLang)
	}
	return o, nil
}

// ---------------------------------------------------------------------------
// Analysis
// ---------------------------------------------------------------------------

// Analysis is the result of grouping and resolving a document.
type Analysis struct {
	// Groups holds the duplicate groups (two or more members), resolved.
	Groups    []*dedup.Group
	Decisions []Decision
	// Units is the number of units offered; Skipped how many were invalid or
	// lacked a source/target variant.
	Units       int
	Skipped     int
	Diagnostics diag.List
}

// Analyze groups every unit of doc and resolves the groups.
func Analyze(doc *tmx.Document, opts Options) (*Analysis, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts, err := opts.ResolveLanguages(doc)
	if err != nil {
		return nil, err
	}
	g := dedup.NewGrouper(opts.Match, opts.SourceLang, opts.TargetLang)
	for i, u := range doc.Units {
		g.Add(i, u)
	}
	return Collect(g, opts.Priority), nil
}

// Collect resolves the duplicate groups accumulated by g.
func Collect(g *dedup.Grouper, cfg priority.Config) *Analysis {
	groups := g.Duplicates()
	Resolve(groups, cfg)
	units, skipped := g.Counts()
	return &Analysis{
		Groups:      groups,
		Decisions:   Decisions(groups, cfg),
		Units:       units,
		Skipped:     skipped,
		Diagnostics: g.Diagnostics(),
	}
}

// Resolve orders every group with more than one member by the priority
// policy, marks the first member keep and the rest delete. Singletons are
// left untouched.
func Resolve(groups []*dedup.Group, cfg priority.Config) {
	for _, grp := range groups {
		if !grp.IsDuplicate() {
			continue
		}
		priority.SortStable(grp.Members, func(m *dedup.Member) *tmx.Unit { return m.Unit }, cfg)
		for i, m := range grp.Members {
			if i == 0 {
				m.Status = dedup.Keep
			} else {
				m.Status = dedup.Delete
			}
		}
	}
}

// Decisions flattens resolved duplicate groups into decision records, group
// by group in member order.
func Decisions(groups []*dedup.Group, cfg priority.Config) []Decision {
	var out []Decision
	for _, grp := range groups {
		if !grp.IsDuplicate() {
			continue
		}
		winner := grp.Members[0].Unit
		for _, m := range grp.Members {
			d := Decision{
				Position:     m.Index + 1,
				Key:          grp.ID(),
				SourceText:   m.SourceText,
				TargetText:   m.TargetText,
				CreationID:   m.Unit.CreationID,
				ChangeID:     m.Unit.ChangeID,
				CreationDate: m.Unit.CreationDate,
				ChangeDate:   m.Unit.ChangeDate,
				Status:       m.Status,
			}
			if m.Status == dedup.Delete {
				_, d.Rule = priority.Explain(winner, m.Unit, cfg)
			}
			out = append(out, d)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Overrides
// ---------------------------------------------------------------------------

// ApplyOverrides replaces the status of decisions matched by an override.
// An override matches decisions with the same source/target/creationid/
// changeid tuple; a non-zero Position and a non-empty Key narrow the match
// further. It returns the number of decisions changed and the overrides that
// matched nothing.
func ApplyOverrides(decisions []Decision, overrides []Decision) (changed int, unmatched []Decision) {
	for _, o := range overrides {
		hit := false
		for i := range decisions {
			d := &decisions[i]
			if !overrideMatches(o, *d) {
				continue
			}
			hit = true
			if d.Status != o.Status {
				d.Status = o.Status
				changed++
			}
		}
		if !hit {
			unmatched = append(unmatched, o)
		}
	}
	return changed, unmatched
}

func overrideMatches(o, d Decision) bool {
	if o.tuple() != d.tuple() {
		return false
	}
	if o.Position != 0 && o.Position != d.Position {
		return false
	}
	if o.Key != "" && o.Key != d.Key {
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Finalize
// ---------------------------------------------------------------------------

// Finalize returns a copy of doc without the units a delete decision
// resolves to. A decision with a Position applies to that unit only if the
// unit still carries the decision's tuple; one without a Position applies to
// every unit with the tuple. Units without a matching delete decision are
// kept, including invalid ones.
func Finalize(doc *tmx.Document, decisions []Decision, sourceLang, targetLang string) (*tmx.Document, Stats) {
	byPosition := make(map[int][]tuple)
	byTuple := make(map[tuple]bool)
	for _, d := range decisions {
		if d.Status != dedup.Delete {
			continue
		}
		if d.Position > 0 {
			byPosition[d.Position] = append(byPosition[d.Position], d.tuple())
		} else {
			byTuple[d.tuple()] = true
		}
	}

	out := &tmx.Document{Version: doc.Version, Header: doc.Header.Clone()}
	for i, u := range doc.Units {
		if !deleted(u, i+1, byPosition, byTuple, sourceLang, targetLang) {
			out.Units = append(out.Units, u.Clone())
		}
	}

	stats := Stats{OriginalCount: len(doc.Units), UniqueCount: len(out.Units)}
	stats.DuplicatesRemoved = stats.OriginalCount - stats.UniqueCount
	return out, stats
}

func deleted(u *tmx.Unit, pos int, byPosition map[int][]tuple, byTuple map[tuple]bool, sourceLang, targetLang string) bool {
	if !u.Valid() {
		return false
	}
	source, ok := u.Text(sourceLang)
	if !ok {
		return false
	}
	target, ok := u.Text(targetLang)
	if !ok {
		return false
	}
	t := tuple{source, target, u.CreationID, u.ChangeID}
	if byTuple[t] {
		return true
	}
	for _, pt := range byPosition[pos] {
		if pt == t {
			return true
		}
	}
	return false
}
