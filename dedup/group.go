package dedup

import (
	"fmt"

	"github.com/minios-linux/tmxdedup/diag"
	"github.com/minios-linux/tmxdedup/tmx"
)

// Status is the review decision for one member of a duplicate group.
type Status string

const (
	Keep   Status = "keep"
	Delete Status = "delete"
)

// ParseStatus parses "keep" or "delete".
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case Keep, Delete:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q (want keep or delete)", s)
}

// Member is a unit placed in a group.
type Member struct {
	// Index is the unit's 0-based position in the document body.
	Index int
	Unit  *tmx.Unit
	// SourceText and TargetText are the trimmed, unnormalized segments.
	SourceText string
	TargetText string
	Tags       []string
	Status     Status
}

// Group is a set of units sharing a match key and compatible inline tags.
// A unit whose tags are incompatible with the group's first member is left
// out of that key's group; it still joins the groups of its other keys.
type Group struct {
	Key     string
	Members []*Member
}

// ID names the group in reports.
func (g *Group) ID() string { return g.Key }

// IsDuplicate reports whether the group has more than one member.
func (g *Group) IsDuplicate() bool { return len(g.Members) > 1 }

// Kept returns the members marked keep.
func (g *Group) Kept() []*Member {
	var out []*Member
	for _, m := range g.Members {
		if m.Status == Keep {
			out = append(out, m)
		}
	}
	return out
}

// Grouper builds the duplicate-group table one unit at a time. It is not
// safe for concurrent use.
type Grouper struct {
	gen        *Generator
	sourceLang string
	targetLang string

	byKey  map[string]*Group
	groups []*Group
	diags  diag.List

	seen, skipped int
}

// NewGrouper returns a grouper that picks source and target segments by the
// given language prefixes (case-insensitive, "en" matches "en-CA").
func NewGrouper(opts Options, sourceLang, targetLang string) *Grouper {
	return &Grouper{
		gen:        NewGenerator(opts),
		sourceLang: sourceLang,
		targetLang: targetLang,
		byKey:      make(map[string]*Group),
	}
}

// Add places the unit at body index idx into every group matching one of
// its keys. A unit that breaks the two-variant rule or lacks a source or
// target variant is skipped with a warning; Add then returns false.
func (g *Grouper) Add(idx int, u *tmx.Unit) bool {
	g.seen++
	if err := u.Validate(idx + 1); err != nil {
		g.skipped++
		g.diags.Warnf(diag.CodeInvalidUnit, "skipping %v", err)
		return false
	}

	source, ok := u.Text(g.sourceLang)
	if !ok {
		g.skipped++
		g.diags.Warnf(diag.CodeMissingVariant, "skipping translation unit %d: no %q variant", idx+1, g.sourceLang)
		return false
	}
	target, ok := u.Text(g.targetLang)
	if !ok {
		g.skipped++
		g.diags.Warnf(diag.CodeMissingVariant, "skipping translation unit %d: no %q variant", idx+1, g.targetLang)
		return false
	}

	segs := make([]string, len(u.Variants))
	for i, v := range u.Variants {
		segs[i] = v.Seg
	}
	tags := ExtractTags(segs...)

	for _, key := range g.gen.Keys(source, target) {
		m := &Member{Index: idx, Unit: u, SourceText: source, TargetText: target, Tags: tags, Status: Keep}
		g.place(key, m)
	}
	return true
}

// place appends m to the group of key, opening it when m is the first
// member. A member whose tags do not match the first member's is excluded
// from this key only.
func (g *Grouper) place(key string, m *Member) {
	grp, ok := g.byKey[key]
	if !ok {
		grp = &Group{Key: key, Members: []*Member{m}}
		g.byKey[key] = grp
		g.groups = append(g.groups, grp)
		return
	}
	if !TagsCompatible(m.Tags, grp.Members[0].Tags, g.gen.opts.TagStrictness) {
		g.diags.Infof(diag.CodeTagMismatch, "translation unit %d left out of group %q: inline tags differ", m.Index+1, key)
		return
	}
	grp.Members = append(grp.Members, m)
}

// Groups returns every group in creation order, singletons included.
func (g *Grouper) Groups() []*Group { return g.groups }

// Duplicates returns the groups with more than one member, in creation order.
func (g *Grouper) Duplicates() []*Group {
	var out []*Group
	for _, grp := range g.groups {
		if grp.IsDuplicate() {
			out = append(out, grp)
		}
	}
	return out
}

// Lookup returns the group for a match key, or nil.
func (g *Grouper) Lookup(key string) *Group { return g.byKey[key] }

// Diagnostics returns the warnings collected for skipped units and the
// notes for tag mismatches.
func (g *Grouper) Diagnostics() diag.List { return g.diags }

// Counts returns how many units were offered and how many were skipped.
func (g *Grouper) Counts() (seen, skipped int) { return g.seen, g.skipped }

// Generator exposes the key generator used by the grouper.
func (g *Grouper) Generator() *Generator { return g.gen }
