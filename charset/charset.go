// Package charset detects the byte encoding of a TMX document and performs
// lossless decode/encode round trips.
//
// Detection order:
//   - a byte order mark at offset 0 (UTF-16LE FF FE, UTF-16BE FE FF, UTF-8 EF BB BF)
//   - the encoding="..." attribute of the XML declaration in the first 500 bytes
//   - a zero-byte distribution heuristic over the first 8192 bytes
//   - UTF-8
//
// When a byte order mark and the declaration disagree the mark wins and an
// encoding-mismatch warning is reported.
package charset

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/minios-linux/tmxdedup/diag"
)

// Canonical encoding names.
const (
	UTF8    = "utf-8"
	UTF16LE = "utf-16le"
	UTF16BE = "utf-16be"
	// UTF16 is the endianness-neutral label found in XML declarations.
	UTF16 = "utf-16"
)

// Byte order marks recognised at offset 0.
var (
	BOMUTF16LE = []byte{0xFF, 0xFE}
	BOMUTF16BE = []byte{0xFE, 0xFF}
	BOMUTF8    = []byte{0xEF, 0xBB, 0xBF}
)

const (
	declarationSample = 500
	heuristicSample   = 8192
)

// Info describes how a document was encoded. It is produced once by Detect and
// consumed by both Decode and Encode so the output keeps the input's byte
// order mark.
type Info struct {
	// Name is the canonical encoding name used to decode and encode.
	Name string `json:"encoding"`
	// HasBOM reports whether the input started with a byte order mark.
	HasBOM bool `json:"has_bom"`
	// BOM holds the exact signature bytes that were read.
	BOM []byte `json:"bom,omitempty"`
	// Declared is the lowercased encoding label of the XML declaration, if any.
	Declared string `json:"declared,omitempty"`
}

func (i Info) String() string {
	declared := i.Declared
	if declared == "" {
		declared = "none"
	}
	return fmt.Sprintf("%s (bom=%t, declared=%s)", i.Name, i.HasBOM, declared)
}

// DecodeError reports content that cannot be decoded under the detected encoding.
type DecodeError struct {
	Encoding string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding content as %s: %v", e.Encoding, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports text that cannot be written in the target encoding.
type EncodeError struct {
	Encoding string
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding content as %s: %v", e.Encoding, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ErrEmptyContent is wrapped by DecodeError when non-empty input decodes to nothing.
var ErrEmptyContent = errors.New("decoded content is empty")

// ---------------------------------------------------------------------------
// Detection
// ---------------------------------------------------------------------------

var reXMLEncoding = regexp.MustCompile(`(?i)<\?xml[^>]+encoding=["']([^"']+)["'][^>]*\?>`)

// Options tunes detection of BOM-less input.
type Options struct {
	// PhysicalByteOrder reads the zero-byte heuristic by where the zero high
	// byte of a Latin UTF-16 code unit actually falls: zeros at odd offsets
	// mean little-endian. By default mostly-zero even offsets are classified
	// as UTF-16LE and mostly-zero odd offsets as UTF-16BE.
	PhysicalByteOrder bool
}

// Detect inspects data with the default Options.
func Detect(data []byte) (Info, diag.List) {
	return DetectWith(data, Options{})
}

// DetectWith inspects data and reports its encoding. Detection never fails;
// the returned diagnostics carry the BOM/declaration mismatch warning.
func DetectWith(data []byte, opts Options) (Info, diag.List) {
	var diags diag.List

	bomName, bom := sniffBOM(data)
	declared := declaredEncoding(data, bomName, len(bom))

	switch {
	case bom != nil:
		info := Info{Name: bomName, HasBOM: true, BOM: append([]byte(nil), bom...), Declared: declared}
		if declared != "" && !Compatible(bomName, declared) {
			diags.Warnf(diag.CodeEncodingMismatch,
				"byte order mark says %s but XML declaration says %s; using %s", bomName, declared, bomName)
		}
		return info, diags

	case declared != "":
		name := Normalize(declared)
		if name == UTF16 {
			name = guessUTF16(data, opts)
		}
		return Info{Name: name, Declared: declared}, diags
	}

	return Info{Name: analyzeContent(data, opts)}, diags
}

func sniffBOM(data []byte) (string, []byte) {
	switch {
	case bytes.HasPrefix(data, BOMUTF8):
		return UTF8, BOMUTF8
	case bytes.HasPrefix(data, BOMUTF16LE):
		return UTF16LE, BOMUTF16LE
	case bytes.HasPrefix(data, BOMUTF16BE):
		return UTF16BE, BOMUTF16BE
	}
	return "", nil
}

// declaredEncoding decodes the head of the document with the BOM's encoding
// (UTF-8 without one) and extracts the XML declaration's encoding label.
func declaredEncoding(data []byte, bomName string, bomLen int) string {
	end := len(data)
	if end > declarationSample {
		end = declarationSample
	}
	sample := data[bomLen:end]

	var head string
	switch bomName {
	case UTF16LE, UTF16BE:
		sample = sample[:len(sample)&^1]
		enc, _ := lookup(bomName)
		decoded, err := enc.NewDecoder().Bytes(sample)
		if err != nil {
			return ""
		}
		head = string(decoded)
	default:
		head = string(sample)
	}

	m := reXMLEncoding.FindStringSubmatch(head)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// analyzeContent classifies BOM-less input by where its zero bytes fall. A
// side qualifies when more than 30% of its bytes are zero and it has at least
// three times the zeros of the other side. See Options for which side maps to
// which byte order.
func analyzeContent(data []byte, opts Options) string {
	if name := zeroByteHeuristic(data, opts); name != "" {
		return name
	}
	return UTF8
}

func zeroByteHeuristic(data []byte, opts Options) string {
	if len(data) < 4 {
		return ""
	}
	n := len(data)
	if n > heuristicSample {
		n = heuristicSample
	}

	var evenZeros, oddZeros int
	for i := 0; i < n-1; i += 2 {
		if data[i] == 0 {
			evenZeros++
		}
		if data[i+1] == 0 {
			oddZeros++
		}
	}

	half := float64(n) / 2
	evenRatio := float64(evenZeros) / half
	oddRatio := float64(oddZeros) / half

	evenSide, oddSide := UTF16LE, UTF16BE
	if opts.PhysicalByteOrder {
		evenSide, oddSide = UTF16BE, UTF16LE
	}
	switch {
	case evenRatio > 0.3 && evenRatio >= oddRatio*3:
		return evenSide
	case oddRatio > 0.3 && oddRatio >= evenRatio*3:
		return oddSide
	}
	return ""
}

// guessUTF16 resolves a BOM-less document declared as plain "utf-16". The
// declaration was found by reading the head as 8-bit text, so unless the
// zero-byte pattern says otherwise the bytes are UTF-8; serialised output
// carries that label whatever it is encoded in.
func guessUTF16(data []byte, opts Options) string {
	if name := zeroByteHeuristic(data, opts); name != "" {
		return name
	}
	return UTF8
}

// ---------------------------------------------------------------------------
// Names
// ---------------------------------------------------------------------------

var encodingAliases = map[string]string{
	"utf8":        UTF8,
	"utf16":       UTF16,
	"utf16le":     UTF16LE,
	"utf16be":     UTF16BE,
	"usascii":     "ascii",
	"ascii":       "ascii",
	"iso88591":    "iso-8859-1",
	"latin1":      "iso-8859-1",
	"cp1252":      "windows-1252",
	"windows1252": "windows-1252",
}

var reNonAlnum = regexp.MustCompile(`[^a-z0-9]`)

// Normalize maps common spellings of an encoding label to a canonical name.
// Unknown labels are returned lowercased.
func Normalize(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := encodingAliases[reNonAlnum.ReplaceAllString(lower, "")]; ok {
		return canonical
	}
	return lower
}

// Compatible reports whether a BOM encoding and a declared label agree. The
// endianness-neutral "utf-16" label agrees with either UTF-16 mark.
func Compatible(bomEncoding, declared string) bool {
	b, d := Normalize(bomEncoding), Normalize(declared)
	if b == d {
		return true
	}
	return d == UTF16 && (b == UTF16LE || b == UTF16BE)
}

func lookup(name string) (encoding.Encoding, error) {
	switch Normalize(name) {
	case UTF8, "ascii":
		return unicode.UTF8, nil
	case UTF16LE, UTF16:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
	return enc, nil
}

func isUnicode(name string) bool {
	switch Normalize(name) {
	case UTF8, UTF16, UTF16LE, UTF16BE, "ascii":
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Decode / encode
// ---------------------------------------------------------------------------

// Decode strips the byte order mark recorded in info and decodes the rest.
// Empty input decodes to an empty string; non-empty input that decodes to
// nothing is a DecodeError.
func Decode(data []byte, info Info) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	content := data
	if info.HasBOM && bytes.HasPrefix(data, info.BOM) {
		content = data[len(info.BOM):]
	}
	if len(content) == 0 {
		return "", &DecodeError{Encoding: info.Name, Err: ErrEmptyContent}
	}

	enc, err := lookup(info.Name)
	if err != nil {
		return "", &DecodeError{Encoding: info.Name, Err: err}
	}
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return "", &DecodeError{Encoding: info.Name, Err: err}
	}
	if len(decoded) == 0 {
		return "", &DecodeError{Encoding: info.Name, Err: ErrEmptyContent}
	}
	return string(decoded), nil
}

// Encode writes text in info's encoding and prepends the original byte order
// mark, byte for byte, when the input had one. UTF-16 output is produced per
// code point (surrogate pairs included). Runes that a legacy charset cannot
// represent are written as numeric character references.
func Encode(text string, info Info) ([]byte, error) {
	enc, err := lookup(info.Name)
	if err != nil {
		return nil, &EncodeError{Encoding: info.Name, Err: err}
	}

	encoder := enc.NewEncoder()
	if !isUnicode(info.Name) {
		encoder = encoding.HTMLEscapeUnsupported(encoder)
	}
	body, err := encoder.Bytes([]byte(text))
	if err != nil {
		return nil, &EncodeError{Encoding: info.Name, Err: err}
	}

	if !info.HasBOM || len(info.BOM) == 0 {
		return body, nil
	}
	out := make([]byte, 0, len(info.BOM)+len(body))
	out = append(out, info.BOM...)
	return append(out, body...), nil
}
