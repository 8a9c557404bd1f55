// Package langmeta resolves TMX language tags to display metadata (native
// and English names, emoji flags) and implements the prefix matching used
// to pick source and target variants.
package langmeta

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Meta describes language display metadata.
type Meta struct {
	Tag     string
	Name    string // native name, "Deutsch"
	English string // "German"
	Flag    string
}

// Label renders "Flag Name (tag)", leaving out what is unknown.
func (m Meta) Label() string {
	var b strings.Builder
	if m.Flag != "" {
		b.WriteString(m.Flag + " ")
	}
	b.WriteString(m.Name)
	if m.Tag != "" && m.Tag != m.Name {
		b.WriteString(" (" + m.Tag + ")")
	}
	return b.String()
}

// Canonicalize normalizes separators and case: "pt_br" -> "pt-BR".
// Tags that do not parse are only trimmed and re-cased per subtag.
func Canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	if tag, err := language.Parse(normalized); err == nil {
		return tag.String()
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		parts[1] = strings.ToUpper(parts[1])
	}
	return strings.Join(parts, "-")
}

// Base returns the primary language subtag: "fr-CA" -> "fr".
func Base(lang string) string {
	base, _, _ := strings.Cut(Canonicalize(lang), "-")
	return base
}

// Matches reports whether tag starts with prefix, ignoring case and
// treating "_" like "-". An empty prefix matches nothing.
func Matches(tag, prefix string) bool {
	if prefix == "" {
		return false
	}
	norm := func(s string) string { return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-")) }
	return strings.HasPrefix(norm(tag), norm(prefix))
}

// Resolve returns best-effort metadata for a language tag. Unknown tags
// are passed through as their own name without a flag.
func Resolve(lang string) Meta {
	canonical := Canonicalize(lang)
	m := Meta{Tag: canonical, Name: lang}
	tag, err := language.Parse(canonical)
	if err != nil {
		return m
	}

	if name := display.Self.Name(tag); name != "" {
		m.Name = name
	}
	m.English = display.English.Tags().Name(tag)
	if m.English == "" {
		m.English = lang
	}
	m.Flag = flag(tag)
	return m
}

// flag builds the regional-indicator pair for the tag's region, guessing the
// most likely region for bare languages ("fr" -> FR).
func flag(tag language.Tag) string {
	region, conf := tag.Region()
	if conf == language.No {
		return ""
	}
	code := region.String()
	if len(code) != 2 || code == "ZZ" || !region.IsCountry() {
		return ""
	}
	var b strings.Builder
	for _, r := range code {
		b.WriteRune(0x1F1E6 + (r - 'A'))
	}
	return b.String()
}
