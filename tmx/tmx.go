// Package tmx implements reading and writing of TMX (Translation Memory
// eXchange) documents.
//
// The model keeps the parts of a document that carry meaning for
// deduplication (header, translation units, variants, properties, notes) as
// explicit structs. Attributes outside the canonical lists are kept in
// document order so they survive a parse/serialize cycle.
package tmx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minios-linux/tmxdedup/diag"
	"github.com/minios-linux/tmxdedup/langmeta"
)

const xmlNamespace = "http://www.w3.org/XML/1998/namespace"

// ---------------------------------------------------------------------------
// Data model
// ---------------------------------------------------------------------------

// Attr is an attribute outside an element's canonical list. Name is the
// qualified name as written (e.g. "tuid", "xml:lang", "o-encoding").
type Attr struct {
	Name  string
	Value string
}

// Property is a <prop> element.
type Property struct {
	Type  string
	Text  string
	Extra []Attr
}

// IsContext reports whether the property uses the x-context-* convention.
// On units and variants its value is written wrapped in a literal <seg>…</seg>.
func (p Property) IsContext() bool {
	return strings.HasPrefix(p.Type, "x-context-")
}

// Header is the <header> element.
type Header struct {
	CreationTool        string
	CreationToolVersion string
	SegType             string
	AdminLang           string
	CreationID          string
	SrcLang             string
	OTMF                string
	DataType            string

	Extra []Attr
	Notes []string
	Props []Property
}

// Prop returns the text of the first header property of the given type.
func (h *Header) Prop(typ string) (string, bool) {
	for _, p := range h.Props {
		if p.Type == typ {
			return p.Text, true
		}
	}
	return "", false
}

// Variant is a <tuv> element: one language's segment.
type Variant struct {
	Lang string
	// Seg is the segment text with entities decoded. Inline elements such as
	// <bpt> or <ph/> appear as their raw tag text.
	Seg string

	Extra []Attr
	Notes []string
	Props []Property

	// raw holds the original inner XML of a segment that contained inline
	// elements; it is written back as long as Seg still equals rawFor.
	raw    string
	rawFor string
}

// HasMarkup reports whether the segment contained inline elements when parsed.
func (v *Variant) HasMarkup() bool { return v.raw != "" }

// Unit is a <tu> element.
type Unit struct {
	CreationID   string
	ChangeID     string
	CreationDate string
	ChangeDate   string

	Extra    []Attr
	Notes    []string
	Props    []Property
	Variants []Variant
}

// Document is a parsed TMX file.
type Document struct {
	// Version is the <tmx version="…"> attribute.
	Version string
	Header  Header
	// Units are the body's translation units in document order.
	Units []*Unit
}

// Clone returns a deep copy of the header.
func (h Header) Clone() Header {
	h.Extra = append([]Attr(nil), h.Extra...)
	h.Notes = append([]string(nil), h.Notes...)
	h.Props = cloneProps(h.Props)
	return h
}

// Clone returns a deep copy of the unit.
func (u *Unit) Clone() *Unit {
	c := *u
	c.Extra = append([]Attr(nil), u.Extra...)
	c.Notes = append([]string(nil), u.Notes...)
	c.Props = cloneProps(u.Props)
	c.Variants = make([]Variant, len(u.Variants))
	for i, v := range u.Variants {
		v.Extra = append([]Attr(nil), v.Extra...)
		v.Notes = append([]string(nil), v.Notes...)
		v.Props = cloneProps(v.Props)
		c.Variants[i] = v
	}
	return &c
}

func cloneProps(props []Property) []Property {
	if props == nil {
		return nil
	}
	out := make([]Property, len(props))
	for i, p := range props {
		p.Extra = append([]Attr(nil), p.Extra...)
		out[i] = p
	}
	return out
}

// Text returns the trimmed segment of the first variant whose language tag
// starts with langPrefix (case-insensitive, "en" matches "en-CA"). ok is
// false when no such variant exists or its segment is blank.
func (u *Unit) Text(langPrefix string) (text string, ok bool) {
	for i := range u.Variants {
		v := &u.Variants[i]
		if !langmeta.Matches(v.Lang, langPrefix) {
			continue
		}
		text = strings.TrimSpace(v.Seg)
		return text, text != ""
	}
	return "", false
}

// Valid reports whether the unit has exactly two variants, each with a
// language tag and a non-blank segment.
func (u *Unit) Valid() bool { return u.invalidReason() == "" }

func (u *Unit) invalidReason() string {
	if len(u.Variants) != 2 {
		return fmt.Sprintf("expected 2 variants, found %d", len(u.Variants))
	}
	for i, v := range u.Variants {
		if v.Lang == "" {
			return fmt.Sprintf("variant %d has no language tag", i+1)
		}
		if strings.TrimSpace(v.Seg) == "" {
			return fmt.Sprintf("variant %d (%s) has an empty segment", i+1, v.Lang)
		}
	}
	return ""
}

// Validate returns an *InvalidUnitError tagged with position when the unit
// breaks the two-variant rule.
func (u *Unit) Validate(position int) error {
	if reason := u.invalidReason(); reason != "" {
		return &InvalidUnitError{Position: position, Reason: reason}
	}
	return nil
}

// ValidateUnit validates the unit at index i using its 1-based position.
func (d *Document) ValidateUnit(i int) error {
	return d.Units[i].Validate(i + 1)
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// StructureError reports a document that lacks the tmx/header/body/tu shape.
type StructureError struct {
	Reason string
	Err    error
}

func (e *StructureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid TMX: %s: %v", e.Reason, e.Err)
	}
	return "invalid TMX: " + e.Reason
}

func (e *StructureError) Unwrap() error { return e.Err }

// InvalidUnitError reports a translation unit that cannot take part in
// analysis. It is recoverable: the unit is skipped.
type InvalidUnitError struct {
	Position int
	Reason   string
}

func (e *InvalidUnitError) Error() string {
	return fmt.Sprintf("translation unit %d: %s", e.Position, e.Reason)
}

// ---------------------------------------------------------------------------
// Parsing
// ---------------------------------------------------------------------------

// Parse parses decoded TMX text. The XML declaration's encoding label is
// ignored because the text has already been decoded.
func Parse(text string) (*Document, diag.List, error) {
	p := &parser{
		text: text,
		dec:  xml.NewDecoder(strings.NewReader(text)),
	}
	p.dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	doc, err := p.parse()
	if err != nil {
		return nil, p.diags, err
	}
	return doc, p.diags, nil
}

type parser struct {
	text  string
	dec   *xml.Decoder
	diags diag.List
}

func (p *parser) token() (xml.Token, error) {
	tok, err := p.dec.Token()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &StructureError{Reason: "malformed XML", Err: err}
	}
	return tok, err
}

func (p *parser) parse() (*Document, error) {
	var doc *Document
	var seenHeader, seenBody bool

	for {
		tok, err := p.token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch {
		case doc == nil && start.Name.Local == "tmx":
			doc = &Document{Version: attrValue(start, "version")}
		case doc == nil:
			return nil, &StructureError{Reason: "missing root element <tmx>"}
		case start.Name.Local == "header":
			seenHeader = true
			if err := p.parseHeader(start, &doc.Header); err != nil {
				return nil, err
			}
		case start.Name.Local == "body":
			seenBody = true
			if err := p.parseBody(doc); err != nil {
				return nil, err
			}
		default:
			p.diags.Infof(diag.CodeUnsupportedElement, "ignored <%s> element", start.Name.Local)
			if err := p.dec.Skip(); err != nil {
				return nil, &StructureError{Reason: "malformed XML", Err: err}
			}
		}
	}

	switch {
	case doc == nil:
		return nil, &StructureError{Reason: "missing root element <tmx>"}
	case !seenHeader:
		return nil, &StructureError{Reason: "missing header"}
	case !seenBody || len(doc.Units) == 0:
		return nil, &StructureError{Reason: "missing translation units"}
	}
	return doc, nil
}

func (p *parser) parseHeader(start xml.StartElement, h *Header) error {
	for _, a := range start.Attr {
		switch attrName(a) {
		case "creationtool":
			h.CreationTool = a.Value
		case "creationtoolversion":
			h.CreationToolVersion = a.Value
		case "segtype":
			h.SegType = a.Value
		case "adminlang":
			h.AdminLang = a.Value
		case "creationid":
			h.CreationID = a.Value
		case "srclang":
			h.SrcLang = a.Value
		case "o-tmf":
			h.OTMF = a.Value
		case "datatype":
			h.DataType = a.Value
		default:
			h.Extra = p.appendExtra(h.Extra, a, "header")
		}
	}

	return p.children("header", func(child xml.StartElement) error {
		switch child.Name.Local {
		case "prop":
			prop, err := p.parseProp(child, false)
			if err != nil {
				return err
			}
			h.Props = append(h.Props, prop)
		case "note":
			note, err := p.readText()
			if err != nil {
				return err
			}
			h.Notes = append(h.Notes, note)
		default:
			return p.skip(child, "header")
		}
		return nil
	})
}

func (p *parser) parseBody(doc *Document) error {
	return p.children("body", func(child xml.StartElement) error {
		if child.Name.Local != "tu" {
			return p.skip(child, "body")
		}
		u, err := p.parseUnit(child)
		if err != nil {
			return err
		}
		doc.Units = append(doc.Units, u)
		return nil
	})
}

func (p *parser) parseUnit(start xml.StartElement) (*Unit, error) {
	u := &Unit{}
	for _, a := range start.Attr {
		switch attrName(a) {
		case "creationid":
			u.CreationID = a.Value
		case "changeid":
			u.ChangeID = a.Value
		case "creationdate":
			u.CreationDate = a.Value
		case "changedate":
			u.ChangeDate = a.Value
		default:
			u.Extra = p.appendExtra(u.Extra, a, "tu")
		}
	}

	err := p.children("tu", func(child xml.StartElement) error {
		switch child.Name.Local {
		case "tuv":
			v, err := p.parseVariant(child)
			if err != nil {
				return err
			}
			u.Variants = append(u.Variants, v)
		case "prop":
			prop, err := p.parseProp(child, true)
			if err != nil {
				return err
			}
			u.Props = append(u.Props, prop)
		case "note":
			note, err := p.readText()
			if err != nil {
				return err
			}
			u.Notes = append(u.Notes, note)
		default:
			return p.skip(child, "tu")
		}
		return nil
	})
	return u, err
}

func (p *parser) parseVariant(start xml.StartElement) (Variant, error) {
	var v Variant
	var legacyLang string
	for _, a := range start.Attr {
		switch attrName(a) {
		case "xml:lang":
			v.Lang = a.Value
		case "lang":
			legacyLang = a.Value
		default:
			v.Extra = p.appendExtra(v.Extra, a, "tuv")
		}
	}
	if v.Lang == "" {
		v.Lang = legacyLang
	}

	err := p.children("tuv", func(child xml.StartElement) error {
		switch child.Name.Local {
		case "seg":
			return p.parseSeg(&v)
		case "prop":
			prop, err := p.parseProp(child, true)
			if err != nil {
				return err
			}
			v.Props = append(v.Props, prop)
		case "note":
			note, err := p.readText()
			if err != nil {
				return err
			}
			v.Notes = append(v.Notes, note)
		default:
			return p.skip(child, "tuv")
		}
		return nil
	})
	return v, err
}

// parseSeg reads the content of an opened <seg>. Character data is decoded;
// inline elements are copied as the exact tag text found in the input, so a
// self-closing <ph/> stays self-closing.
func (p *parser) parseSeg(v *Variant) error {
	var b strings.Builder
	innerStart := p.dec.InputOffset()
	markup := false
	depth := 1

	for depth > 0 {
		before := p.dec.InputOffset()
		tok, err := p.token()
		if err != nil {
			return segError(err)
		}
		after := p.dec.InputOffset()

		switch t := tok.(type) {
		case xml.CharData:
			b.Write(t)
		case xml.StartElement:
			depth++
			markup = true
			b.WriteString(p.text[before:after])
		case xml.EndElement:
			depth--
			if depth == 0 {
				if markup {
					v.raw = p.text[innerStart:before]
				}
				break
			}
			// A self-closing tag yields an EndElement that consumes no input.
			if after > before {
				b.WriteString(p.text[before:after])
			}
		}
	}

	v.Seg = b.String()
	if markup {
		v.rawFor = v.Seg
	}
	return nil
}

// parseProp reads a <prop>. Context properties of units and variants lose
// their <seg> wrapper when unwrap is set; header properties are kept as read.
func (p *parser) parseProp(start xml.StartElement, unwrap bool) (Property, error) {
	var prop Property
	for _, a := range start.Attr {
		if attrName(a) == "type" {
			prop.Type = a.Value
			continue
		}
		prop.Extra = p.appendExtra(prop.Extra, a, "prop")
	}
	text, err := p.readText()
	if err != nil {
		return prop, err
	}
	if unwrap && prop.IsContext() {
		text = unwrapContext(text)
	}
	prop.Text = text
	return prop, nil
}

// unwrapContext removes the literal <seg>…</seg> wrapper that x-context-*
// properties carry in files written by this package and by the tools that use
// the convention, so the wrapper is not doubled on the next write.
func unwrapContext(s string) string {
	if strings.HasPrefix(s, "<seg>") && strings.HasSuffix(s, "</seg>") && len(s) >= len("<seg></seg>") {
		return s[len("<seg>") : len(s)-len("</seg>")]
	}
	return s
}

// readText returns the character data of the element just opened, skipping
// any nested markup.
func (p *parser) readText() (string, error) {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := p.token()
		if err != nil {
			return "", segError(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if depth == 1 {
				b.Write(t)
			}
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return b.String(), nil
}

// children walks the direct child elements of the element named parent until
// its end tag, calling fn for each. fn must consume the child completely.
func (p *parser) children(parent string, fn func(xml.StartElement) error) error {
	for {
		tok, err := p.token()
		if err != nil {
			return segError(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if err := fn(t); err != nil {
				return err
			}
		case xml.EndElement:
			if t.Name.Local == parent {
				return nil
			}
		}
	}
}

func (p *parser) skip(el xml.StartElement, parent string) error {
	p.diags.Infof(diag.CodeUnsupportedElement, "ignored <%s> inside <%s>", el.Name.Local, parent)
	if err := p.dec.Skip(); err != nil {
		return &StructureError{Reason: "malformed XML", Err: err}
	}
	return nil
}

func (p *parser) appendExtra(extra []Attr, a xml.Attr, element string) []Attr {
	name := attrName(a)
	if name == "" {
		p.diags.Infof(diag.CodeUnsupportedElement,
			"dropped namespaced attribute %s on <%s>", a.Name.Local, element)
		return extra
	}
	return append(extra, Attr{Name: name, Value: a.Value})
}

// attrName returns the qualified name of an attribute as it can be written
// back. Attributes in a namespace other than xml: resolve to a URL in
// encoding/xml and cannot be reproduced; they yield "".
func attrName(a xml.Attr) string {
	switch a.Name.Space {
	case "":
		return a.Name.Local
	case xmlNamespace, "xml":
		return "xml:" + a.Name.Local
	case "xmlns":
		return "xmlns:" + a.Name.Local
	}
	if strings.ContainsAny(a.Name.Space, ":/") {
		return ""
	}
	return a.Name.Space + ":" + a.Name.Local
}

func attrValue(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if attrName(a) == name {
			return a.Value
		}
	}
	return ""
}

// segError converts an unexpected end of input inside an element into a
// StructureError.
func segError(err error) error {
	if errors.Is(err, io.EOF) {
		return &StructureError{Reason: "unexpected end of document", Err: io.ErrUnexpectedEOF}
	}
	return err
}
