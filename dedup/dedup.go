// Package dedup derives normalized match keys from translation units and
// collects units sharing a key into duplicate groups.
//
// A unit produces one key per normalized variant of its text, so it may be
// reviewed under more than one candidate grouping. This favours recall: a
// unit that only matches another after punctuation is stripped still lands
// next to it.
package dedup

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// MatchMode selects which text fields form a match key.
type MatchMode string

const (
	// SourceEqual keys on the source text.
	SourceEqual MatchMode = "sourceEqual"
	// TargetEqual keys on the target text.
	TargetEqual MatchMode = "targetEqual"
	// BothEqual keys on "source|target".
	BothEqual MatchMode = "bothEqual"
)

// MatchModes lists the accepted modes in display order.
var MatchModes = []MatchMode{SourceEqual, TargetEqual, BothEqual}

// ParseMatchMode accepts the canonical names plus the short forms
// "source", "target", "both" and the plural "sourcesEqual"/"targetsEqual".
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sourceequal", "sourcesequal", "source", "sources":
		return SourceEqual, nil
	case "targetequal", "targetsequal", "target", "targets":
		return TargetEqual, nil
	case "bothequal", "both":
		return BothEqual, nil
	}
	return "", fmt.Errorf("unknown match mode %q (want sourceEqual, targetEqual or bothEqual)", s)
}

// TagStrictness selects how inline tags of two candidates must agree.
type TagStrictness string

const (
	// Permissive requires the same number of tags.
	Permissive TagStrictness = "permissive"
	// Medium also requires the same open/close/self-closing shape per position.
	Medium TagStrictness = "medium"
	// Strict requires identical tag sequences.
	Strict TagStrictness = "strict"
)

// TagStrictnesses lists the accepted levels in display order.
var TagStrictnesses = []TagStrictness{Permissive, Medium, Strict}

// ParseTagStrictness parses a strictness level name.
func ParseTagStrictness(s string) (TagStrictness, error) {
	switch TagStrictness(strings.ToLower(strings.TrimSpace(s))) {
	case Permissive:
		return Permissive, nil
	case Medium:
		return Medium, nil
	case Strict:
		return Strict, nil
	}
	return "", fmt.Errorf("unknown tag strictness %q (want permissive, medium or strict)", s)
}

// Options controls key generation and tag compatibility.
type Options struct {
	MatchMode         MatchMode
	CaseSensitive     bool
	IgnorePunctuation bool
	IgnoreWhitespace  bool
	TagStrictness     TagStrictness
	// NormalizeUnicode applies NFC before any other transform so that
	// precomposed and decomposed spellings produce the same key.
	NormalizeUnicode bool
}

// DefaultOptions returns source matching, case-insensitive, whitespace
// collapsing and permissive tag checks.
func DefaultOptions() Options {
	return Options{
		MatchMode:        SourceEqual,
		IgnoreWhitespace: true,
		TagStrictness:    Permissive,
	}
}

// Validate reports unknown enumeration values.
func (o Options) Validate() error {
	if _, err := ParseMatchMode(string(o.MatchMode)); err != nil {
		return err
	}
	if _, err := ParseTagStrictness(string(o.TagStrictness)); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Key generation
// ---------------------------------------------------------------------------

// KeySeparator joins source and target variants in BothEqual keys.
const KeySeparator = "|"

// Generator produces normalized variants and match keys. It holds a case
// folder and is not safe for concurrent use.
type Generator struct {
	opts Options
	fold cases.Caser
}

// NewGenerator returns a generator for opts.
func NewGenerator(opts Options) *Generator {
	return &Generator{opts: opts, fold: cases.Fold()}
}

// Options returns the options the generator was built with.
func (g *Generator) Options() Options { return g.opts }

var punctuationRemover = strings.NewReplacer(
	".", "", ",", "", "!", "", "?", "", ";", "", ":", "",
)

// Variations returns the distinct normalized forms of text, in order:
// the base form (case-folded unless case-sensitive), the whitespace-collapsed
// form, the punctuation-stripped form and the form with both transforms.
// Forms that are disabled or identical to an earlier one are omitted.
func (g *Generator) Variations(text string) []string {
	base := text
	if g.opts.NormalizeUnicode {
		base = norm.NFC.String(base)
	}
	if !g.opts.CaseSensitive {
		base = g.fold.String(base)
	}

	out := []string{base}
	add := func(s string) {
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	if g.opts.IgnoreWhitespace {
		add(collapseWhitespace(base))
	}
	if g.opts.IgnorePunctuation {
		stripped := punctuationRemover.Replace(base)
		add(stripped)
		if g.opts.IgnoreWhitespace {
			add(collapseWhitespace(stripped))
		}
	}
	return out
}

// Keys builds the distinct match keys for a source/target pair under the
// configured match mode.
func (g *Generator) Keys(source, target string) []string {
	switch g.opts.MatchMode {
	case TargetEqual:
		return g.Variations(target)
	case BothEqual:
		sources := g.Variations(source)
		targets := g.Variations(target)
		keys := make([]string, 0, len(sources)*len(targets))
		seen := make(map[string]bool, cap(keys))
		for _, s := range sources {
			for _, t := range targets {
				k := s + KeySeparator + t
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
		}
		return keys
	default:
		return g.Variations(source)
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ---------------------------------------------------------------------------
// Inline tags
// ---------------------------------------------------------------------------

var reTag = regexp.MustCompile(`<[^>]+>`)

// ExtractTags returns every angle-bracket tag found in the given segments, in
// order.
func ExtractTags(segments ...string) []string {
	var tags []string
	for _, s := range segments {
		tags = append(tags, reTag.FindAllString(s, -1)...)
	}
	return tags
}

type tagShape struct {
	closing     bool
	selfClosing bool
}

func shapeOf(tag string) tagShape {
	return tagShape{
		closing:     strings.HasPrefix(tag, "</"),
		selfClosing: strings.HasSuffix(tag, "/>"),
	}
}

// TagsCompatible reports whether two tag sequences agree at the given
// strictness. Each level is an equivalence relation.
func TagsCompatible(a, b []string, strictness TagStrictness) bool {
	if len(a) != len(b) {
		return false
	}
	switch strictness {
	case Medium:
		for i := range a {
			if shapeOf(a[i]) != shapeOf(b[i]) {
				return false
			}
		}
	case Strict:
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
	}
	return true
}
