package tmx

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/tmxdedup/diag"
)

const inputTMX = `<?xml version="1.0" encoding="utf-16"?>
<!DOCTYPE tmx SYSTEM "tmx14.dtd">
<tmx version="1.4">
<header creationtool="Tool" creationtoolversion="1.0" segtype="sentence" o-tmf="x" adminlang="en-US" srclang="en-CA" datatype="PlainText" creationid="admin">
  <prop type="targetlang">fr-CA</prop>
</header>
<body>
  <tu creationid="alice" changeid="bob" creationdate="20230101T000000Z" changedate="20230201T000000Z" tuid="7">
    <prop type="x-context-pre">&lt;seg&gt;Before &amp; after&lt;/seg&gt;</prop>
    <tuv xml:lang="en-CA">
      <seg>Hello &amp; <ph x="1"/>world.</seg>
    </tuv>
    <tuv xml:lang="fr-CA">
      <prop type="x-note">Ça va</prop>
      <seg>Bonjour "le" monde.</seg>
    </tuv>
  </tu>
</body>
</tmx>`

const expectedTMX = `<?xml version="1.0" encoding="utf-16"?>
<!DOCTYPE tmx SYSTEM "tmx14.dtd">
<tmx version="1.4">
<header creationtool="Tool" creationtoolversion="1.0" segtype="sentence" adminlang="en-US" creationid="admin" srclang="en-CA" o-tmf="x" datatype="PlainText">
  <prop type="targetlang">fr-CA</prop>
</header>
<body>
  <tu changedate="20230201T000000Z" creationdate="20230101T000000Z" creationid="alice" changeid="bob" tuid="7">
    <prop type="x-context-pre">&lt;seg&gt;Before &amp; after&lt;/seg&gt;</prop>
    <tuv xml:lang="en-CA">
      <seg>Hello &amp; <ph x="1"/>world.</seg>
    </tuv>
    <tuv xml:lang="fr-CA">
      <prop type="x-note">Ça va</prop>
      <seg>Bonjour &quot;le&quot; monde.</seg>
    </tuv>
  </tu>
</body>
</tmx>`

// ---------------------------------------------------------------------------
// Parse
// ---------------------------------------------------------------------------

func TestParse(t *testing.T) {
	doc, diags, err := Parse(inputTMX)
	require.NoError(t, err)
	assert.Empty(t, diags)

	assert.Equal(t, "1.4", doc.Version)
	assert.Equal(t, "Tool", doc.Header.CreationTool)
	assert.Equal(t, "en-CA", doc.Header.SrcLang)
	target, ok := doc.Header.Prop("targetlang")
	assert.True(t, ok)
	assert.Equal(t, "fr-CA", target)

	require.Len(t, doc.Units, 1, "a single <tu> must still be a sequence")
	u := doc.Units[0]
	assert.Equal(t, "alice", u.CreationID)
	assert.Equal(t, "bob", u.ChangeID)
	assert.Equal(t, "20230101T000000Z", u.CreationDate)
	assert.Equal(t, "20230201T000000Z", u.ChangeDate)
	assert.Equal(t, []Attr{{Name: "tuid", Value: "7"}}, u.Extra)

	require.Len(t, u.Props, 1)
	assert.Equal(t, "Before & after", u.Props[0].Text, "x-context wrapper is removed on read")

	require.Len(t, u.Variants, 2)
	assert.Equal(t, "en-CA", u.Variants[0].Lang)
	assert.Equal(t, `Hello & <ph x="1"/>world.`, u.Variants[0].Seg)
	assert.True(t, u.Variants[0].HasMarkup())
	assert.False(t, u.Variants[1].HasMarkup())
	require.Len(t, u.Variants[1].Props, 1)
	assert.Equal(t, "Ça va", u.Variants[1].Props[0].Text)
}

func TestParseStructureErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"empty", "", "missing root element <tmx>"},
		{"wrong root", `<xliff version="1.2"/>`, "missing root element <tmx>"},
		{"no header", `<tmx version="1.4"><body><tu/></body></tmx>`, "missing header"},
		{"no body", `<tmx version="1.4"><header/></tmx>`, "missing translation units"},
		{"empty body", `<tmx version="1.4"><header/><body></body></tmx>`, "missing translation units"},
		{"malformed", `<tmx version="1.4"><header></tmx>`, "malformed XML"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(tt.input)
			var se *StructureError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.reason, se.Reason)
		})
	}
}

func TestParseUnsupportedElements(t *testing.T) {
	in := `<tmx version="1.4"><header srclang="en"><ude name="x"/></header>` +
		`<body><foo/><tu><tuv lang="en"><seg>a</seg></tuv><tuv xml:lang="fr"><seg>b</seg></tuv></tu></body></tmx>`
	doc, diags, err := Parse(in)
	require.NoError(t, err)
	assert.Equal(t, 2, diags.Count(diag.CodeUnsupportedElement))
	require.Len(t, doc.Units, 1)
	assert.Equal(t, "en", doc.Units[0].Variants[0].Lang, "TMX 1.1 lang attribute is accepted")
}

func TestParseNotes(t *testing.T) {
	in := `<tmx version="1.4"><header/><body><tu><note>check</note>` +
		`<tuv xml:lang="en"><seg>a</seg></tuv><tuv xml:lang="fr"><seg>b</seg></tuv></tu></body></tmx>`
	doc, _, err := Parse(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"check"}, doc.Units[0].Notes)
	assert.Contains(t, Serialize(doc, WriteOptions{}), "    <note>check</note>\n")
}

// ---------------------------------------------------------------------------
// Serialize
// ---------------------------------------------------------------------------

func TestSerialize(t *testing.T) {
	doc, _, err := Parse(inputTMX)
	require.NoError(t, err)

	out := Serialize(doc, WriteOptions{})
	assert.Equal(t, expectedTMX, out)
	assert.False(t, strings.HasSuffix(out, "\n"))

	again, _, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, out, Serialize(again, WriteOptions{}), "output must be stable across cycles")
}

func TestSerializeDeclaredEncoding(t *testing.T) {
	doc, _, err := Parse(inputTMX)
	require.NoError(t, err)
	out := Serialize(doc, WriteOptions{DeclaredEncoding: "utf-8"})
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="utf-8"?>`+"\n"))
}

func TestSerializeEditedMarkupSegment(t *testing.T) {
	doc, _, err := Parse(inputTMX)
	require.NoError(t, err)
	doc.Units[0].Variants[0].Seg = "a < b"
	out := Serialize(doc, WriteOptions{})
	assert.Contains(t, out, "<seg>a &lt; b</seg>")
}

func TestSerializeEscaping(t *testing.T) {
	doc := &Document{
		Header: Header{SrcLang: "en", Props: []Property{{Type: "x-context-post", Text: `<b>"x"</b>`}}},
		Units: []*Unit{{
			CreationID: "o'neil",
			Variants: []Variant{
				{Lang: "en", Seg: `Fish & "chips" <tag>`},
				{Lang: "fr", Seg: "Poisson's"},
			},
		}},
	}
	out := Serialize(doc, WriteOptions{})
	assert.Contains(t, out, `<tmx version="1.4">`)
	assert.Contains(t, out, `<prop type="x-context-post">&lt;b&gt;&quot;x&quot;&lt;/b&gt;</prop>`)
	assert.Contains(t, out, `<tu creationid="o&apos;neil">`)
	assert.Contains(t, out, `<seg>Fish &amp; &quot;chips&quot; &lt;tag&gt;</seg>`)
	assert.Contains(t, out, `<seg>Poisson&apos;s</seg>`)
}

func TestSerializeContextPropsWrappedOnUnitsOnly(t *testing.T) {
	doc := &Document{
		Header: Header{SrcLang: "en", Props: []Property{{Type: "x-context-pre", Text: "header"}}},
		Units: []*Unit{{
			Props: []Property{{Type: "x-context-pre", Text: "unit"}},
			Variants: []Variant{
				{Lang: "en", Seg: "a", Props: []Property{{Type: "x-context-post", Text: "variant"}}},
				{Lang: "fr", Seg: "b"},
			},
		}},
	}
	out := Serialize(doc, WriteOptions{})
	assert.Contains(t, out, "  <prop type=\"x-context-pre\">header</prop>\n")
	assert.Contains(t, out, "    <prop type=\"x-context-pre\">&lt;seg&gt;unit&lt;/seg&gt;</prop>\n")
	assert.Contains(t, out, "      <prop type=\"x-context-post\">&lt;seg&gt;variant&lt;/seg&gt;</prop>\n")

	parsed, _, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, "header", parsed.Header.Props[0].Text)
	assert.Equal(t, "unit", parsed.Units[0].Props[0].Text)
	assert.Equal(t, "variant", parsed.Units[0].Variants[0].Props[0].Text)
}

// ---------------------------------------------------------------------------
// Units
// ---------------------------------------------------------------------------

func TestUnitText(t *testing.T) {
	u := &Unit{Variants: []Variant{
		{Lang: "EN-ca", Seg: "  Hello  "},
		{Lang: "fr-CA", Seg: "   "},
	}}
	text, ok := u.Text("en")
	assert.True(t, ok)
	assert.Equal(t, "Hello", text)

	_, ok = u.Text("fr")
	assert.False(t, ok, "blank segment counts as missing")
	_, ok = u.Text("de")
	assert.False(t, ok)
}

func TestValidateUnit(t *testing.T) {
	doc := &Document{Units: []*Unit{
		{Variants: []Variant{{Lang: "en", Seg: "a"}, {Lang: "fr", Seg: "b"}}},
		{Variants: []Variant{{Lang: "en", Seg: "a"}}},
		{Variants: []Variant{{Lang: "en", Seg: "a"}, {Lang: "", Seg: "b"}}},
		{Variants: []Variant{{Lang: "en", Seg: "a"}, {Lang: "fr", Seg: " \n"}}},
		{Variants: []Variant{{Lang: "en", Seg: "a"}, {Lang: "fr", Seg: "b"}, {Lang: "de", Seg: "c"}}},
	}}

	assert.NoError(t, doc.ValidateUnit(0))
	for i := 1; i < len(doc.Units); i++ {
		err := doc.ValidateUnit(i)
		var iu *InvalidUnitError
		require.True(t, errors.As(err, &iu), "unit %d", i)
		assert.Equal(t, i+1, iu.Position)
		assert.False(t, doc.Units[i].Valid())
	}
}

func TestClone(t *testing.T) {
	doc, _, err := Parse(inputTMX)
	require.NoError(t, err)
	c := doc.Units[0].Clone()
	c.Variants[0].Seg = "changed"
	c.Props[0].Text = "changed"
	assert.NotEqual(t, "changed", doc.Units[0].Variants[0].Seg)
	assert.NotEqual(t, "changed", doc.Units[0].Props[0].Text)
}

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

func TestExtractMetadata(t *testing.T) {
	in := `<tmx version="1.4"><header creationtool="CAT" srclang="en-US"><prop type="targetlang">de-DE</prop></header><body>
<tu creationid="a" changeid="x"><tuv xml:lang="en-US"><seg>1</seg></tuv><tuv xml:lang="de-DE"><seg>1</seg></tuv></tu>
<tu creationid="b" changeid="x"><tuv xml:lang="en-US"><seg>2</seg></tuv><tuv xml:lang="de-DE"><seg>2</seg></tuv></tu>
<tu creationid="a"><tuv xml:lang="en-US"><seg>3</seg></tuv></tu>
</body></tmx>`
	doc, _, err := Parse(in)
	require.NoError(t, err)

	md := ExtractMetadata(doc)
	assert.Equal(t, "en-US", md.SourceLanguage)
	assert.Equal(t, "de-DE", md.TargetLanguage)
	assert.Equal(t, "CAT", md.CreationTool)
	assert.Equal(t, []string{"a", "b"}, md.CreationIDs)
	assert.Equal(t, []string{"x"}, md.ChangeIDs)
	assert.Equal(t, 3, md.TotalUnits)
	assert.Equal(t, 2, md.ValidUnits)
}

func TestLanguages(t *testing.T) {
	unit := func(a, b string) *Unit {
		return &Unit{Variants: []Variant{{Lang: a, Seg: "x"}, {Lang: b, Seg: "y"}}}
	}

	doc := &Document{Header: Header{SrcLang: "en"}, Units: []*Unit{unit("fr", "en-GB")}}
	src, tgt := Languages(doc)
	assert.Equal(t, "en", src)
	assert.Equal(t, "fr", tgt)

	doc = &Document{Units: []*Unit{{}, unit("en-CA", "fr-CA")}}
	src, tgt = Languages(doc)
	assert.Equal(t, "en-CA", src)
	assert.Equal(t, "fr-CA", tgt)

	doc = &Document{Header: Header{Props: []Property{{Type: "targetlang", Text: "fr"}}}, Units: []*Unit{unit("fr-FR", "ja")}}
	src, tgt = Languages(doc)
	assert.Equal(t, "ja", src)
	assert.Equal(t, "fr", tgt)
}
