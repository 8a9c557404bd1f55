package tmx

import (
	"strings"
)

// DefaultDeclaredEncoding is the encoding label written into the XML
// declaration unless WriteOptions overrides it. It is written regardless of
// the bytes the document is eventually encoded to.
const DefaultDeclaredEncoding = "utf-16"

// DefaultVersion is written when a document carries no version attribute.
const DefaultVersion = "1.4"

// WriteOptions controls Serialize.
type WriteOptions struct {
	// DeclaredEncoding is the encoding="…" label of the XML declaration.
	// Empty means DefaultDeclaredEncoding.
	DeclaredEncoding string
}

var (
	headerAttrOrder = []string{
		"creationtool", "creationtoolversion", "segtype", "adminlang",
		"creationid", "srclang", "o-tmf", "datatype",
	}
	unitAttrOrder = []string{"changedate", "creationdate", "creationid", "changeid"}
)

// Serialize renders the document as TMX text.
//
// Layout is fixed: an XML declaration and DOCTYPE line, an unindented
// <header> and <body>, units at two spaces, unit properties and variants at
// four, variant properties and segments at six. Header and unit attributes
// are written in a canonical order with empty values omitted; other
// attributes follow in the order they were read. The output has no trailing
// newline.
func Serialize(doc *Document, opts WriteOptions) string {
	declared := opts.DeclaredEncoding
	if declared == "" {
		declared = DefaultDeclaredEncoding
	}
	version := doc.Version
	if version == "" {
		version = DefaultVersion
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="` + escape(declared) + "\"?>\n")
	b.WriteString("<!DOCTYPE tmx SYSTEM \"tmx14.dtd\">\n")
	b.WriteString(`<tmx version="` + escape(version) + "\">\n")

	writeHeader(&b, &doc.Header)

	b.WriteString("<body>\n")
	for _, u := range doc.Units {
		writeUnit(&b, u)
	}
	b.WriteString("</body>\n")
	b.WriteString("</tmx>")
	return b.String()
}

func writeHeader(b *strings.Builder, h *Header) {
	values := map[string]string{
		"creationtool":        h.CreationTool,
		"creationtoolversion": h.CreationToolVersion,
		"segtype":             h.SegType,
		"adminlang":           h.AdminLang,
		"creationid":          h.CreationID,
		"srclang":             h.SrcLang,
		"o-tmf":               h.OTMF,
		"datatype":            h.DataType,
	}
	b.WriteString("<header")
	writeAttrs(b, headerAttrOrder, values, h.Extra)
	b.WriteString(">\n")
	writeNotes(b, h.Notes, "  ")
	writeProps(b, h.Props, "  ", false)
	b.WriteString("</header>\n")
}

func writeUnit(b *strings.Builder, u *Unit) {
	values := map[string]string{
		"changedate":   u.ChangeDate,
		"creationdate": u.CreationDate,
		"creationid":   u.CreationID,
		"changeid":     u.ChangeID,
	}
	b.WriteString("  <tu")
	writeAttrs(b, unitAttrOrder, values, u.Extra)
	b.WriteString(">\n")
	writeNotes(b, u.Notes, "    ")
	writeProps(b, u.Props, "    ", true)

	for i := range u.Variants {
		v := &u.Variants[i]
		b.WriteString(`    <tuv xml:lang="` + escape(v.Lang) + `"`)
		writeExtra(b, v.Extra)
		b.WriteString(">\n")
		writeNotes(b, v.Notes, "      ")
		writeProps(b, v.Props, "      ", true)
		b.WriteString("      <seg>" + segContent(v) + "</seg>\n")
		b.WriteString("    </tuv>\n")
	}
	b.WriteString("  </tu>\n")
}

func writeAttrs(b *strings.Builder, order []string, values map[string]string, extra []Attr) {
	for _, name := range order {
		if v := values[name]; v != "" {
			b.WriteString(" " + name + `="` + escape(v) + `"`)
		}
	}
	writeExtra(b, extra)
}

func writeExtra(b *strings.Builder, extra []Attr) {
	for _, a := range extra {
		b.WriteString(" " + a.Name + `="` + escape(a.Value) + `"`)
	}
}

func writeNotes(b *strings.Builder, notes []string, indent string) {
	for _, n := range notes {
		b.WriteString(indent + "<note>" + escape(n) + "</note>\n")
	}
}

// writeProps writes <prop> elements. With wrap set, the value of an
// x-context-* property is wrapped in a literal, escaped <seg>…</seg>.
func writeProps(b *strings.Builder, props []Property, indent string, wrap bool) {
	for _, p := range props {
		b.WriteString(indent + `<prop type="` + escape(p.Type) + `"`)
		writeExtra(b, p.Extra)
		b.WriteString(">")
		if wrap && p.IsContext() {
			b.WriteString("&lt;seg&gt;" + escape(p.Text) + "&lt;/seg&gt;")
		} else {
			b.WriteString(escape(p.Text))
		}
		b.WriteString("</prop>\n")
	}
}

// segContent returns the inner XML of a segment. A segment read with inline
// elements and left unchanged is written back verbatim.
func segContent(v *Variant) string {
	if v.raw != "" && v.Seg == v.rawFor {
		return v.raw
	}
	return escape(v.Seg)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// escape replaces & < > " ' with their predefined entities.
func escape(s string) string {
	return xmlEscaper.Replace(s)
}
