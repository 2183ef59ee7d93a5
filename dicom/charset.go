// Copyright 2018 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dicom

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const defaultCharacterSetTerm = "ISO_IR 100"

// isUTF8PassthroughTerm reports the defined terms whose bytes need no transcoding at
// all: ASCII and UTF-8 itself. ISO 2022 IR 6 is ASCII too, but only until an escape
// sequence designates another set, so it is deliberately not listed here.
func isUTF8PassthroughTerm(term string) bool {
	return term == "ISO_IR 6" || term == "ISO_IR 192"
}

// Code element registers of the ISO 2022 model. DICOM only ever designates into G0
// (invoked over 0x21-0x7E) and G1 (invoked over 0xA1-0xFE).
const (
	g0Register = iota
	g1Register
)

// codeElement is one designatable code element of a DICOM character set: the escape
// sequence that designates it (the bytes following ESC), the register it lands in, how
// many bytes one codepoint consumes, and the byte(s)-to-rune decode.
type codeElement struct {
	escape   []byte
	register int
	width    int
	decode   func([]byte) rune
}

// charsetDefinition describes one SpecificCharacterSet defined term: the G0/G1 code
// elements it designates (for the ISO-2022-style sets, which is all single-byte
// repertoires plus the code-extension multi-byte ones), or, for the standalone
// multi-byte repertoires (UTF-8, GB18030, GBK), the html label naming a whole-value
// decoder instead.
type charsetDefinition struct {
	g0, g1          *codeElement
	standaloneLabel string
}

func decodeASCII(b []byte) rune {
	if b[0] < 0x80 {
		return rune(b[0])
	}
	return utf8.RuneError
}

// decodeRomaji is JIS X 0201's left half: ASCII with yen at 0x5C and overline at 0x7E.
func decodeRomaji(b []byte) rune {
	switch b[0] {
	case 0x5C:
		return 0x00A5
	case 0x7E:
		return 0x203E
	}
	return decodeASCII(b)
}

// decodeKatakana is JIS X 0201's right half: halfwidth katakana over 0xA1-0xDF.
func decodeKatakana(b []byte) rune {
	if b[0] >= 0xA1 && b[0] <= 0xDF {
		return 0xFF61 + rune(b[0]) - 0xA1
	}
	return utf8.RuneError
}

// decodeVia runs raw through enc's decoder and returns the first resulting rune. Used
// for the multi-byte code elements, whose character tables (JIS X 0208/0212, KS X 1001,
// GB 2312) come from x/text rather than being transcribed here.
func decodeVia(enc encoding.Encoding, raw []byte) rune {
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil || len(decoded) == 0 {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRune(decoded)
	return r
}

// decodeJISX0208 decodes one JIS X 0208 kuten pair (designated to G0, so 7-bit bytes)
// by wrapping it in the ISO-2022-JP framing x/text's decoder understands.
func decodeJISX0208(b []byte) rune {
	return decodeVia(japanese.ISO2022JP, []byte{0x1B, 0x24, 0x42, b[0] & 0x7F, b[1] & 0x7F})
}

func decodeJISX0212(b []byte) rune {
	return decodeVia(japanese.ISO2022JP, []byte{0x1B, 0x24, 0x28, 0x44, b[0] & 0x7F, b[1] & 0x7F})
}

// decodeKSX1001 decodes one KS X 1001 pair. The element is designated to G1, so the
// data bytes arrive with their high bits set, which is exactly EUC-KR's GR encoding.
func decodeKSX1001(b []byte) rune {
	return decodeVia(korean.EUCKR, []byte{b[0] | 0x80, b[1] | 0x80})
}

// decodeGB2312 decodes one GB 2312 pair; with high bits set the pair is EUC-CN, which
// GBK decodes as a superset.
func decodeGB2312(b []byte) rune {
	return decodeVia(simplifiedchinese.GBK, []byte{b[0] | 0x80, b[1] | 0x80})
}

// charmapG1Element builds the G1 code element of a single-byte repertoire: escape
// ESC 02/13 <final> per its ISO-IR registration, decoding each byte through cm.
func charmapG1Element(escapeFinal byte, cm *charmap.Charmap) *codeElement {
	return &codeElement{
		escape:   []byte{0x2D, escapeFinal},
		register: g1Register,
		width:    1,
		decode:   func(b []byte) rune { return cm.DecodeByte(b[0]) },
	}
}

// The code elements shared across defined terms. Escape sequences are the ISO-IR
// registered designations DICOM PS3.3 C.12.1.1.2 lists for each term.
var (
	asciiElement    = &codeElement{escape: []byte{0x28, 0x42}, register: g0Register, width: 1, decode: decodeASCII}
	romajiElement   = &codeElement{escape: []byte{0x28, 0x4A}, register: g0Register, width: 1, decode: decodeRomaji}
	katakanaElement = &codeElement{escape: []byte{0x29, 0x49}, register: g1Register, width: 1, decode: decodeKatakana}

	jisX0208Element = &codeElement{escape: []byte{0x24, 0x42}, register: g0Register, width: 2, decode: decodeJISX0208}
	jisX0212Element = &codeElement{escape: []byte{0x24, 0x28, 0x44}, register: g0Register, width: 2, decode: decodeJISX0212}
	ksX1001Element  = &codeElement{escape: []byte{0x24, 0x29, 0x43}, register: g1Register, width: 2, decode: decodeKSX1001}
	gb2312Element   = &codeElement{escape: []byte{0x24, 0x29, 0x41}, register: g1Register, width: 2, decode: decodeGB2312}

	// latin1Element decodes through Windows-1252 rather than strict ISO 8859-1: the
	// 0x80-0x9F range is unassigned in 8859-1 but carries punctuation real-world
	// Western files actually use, the same forgiving reading browsers apply.
	latin1Element   = charmapG1Element(0x41, charmap.Windows1252)
	latin2Element   = charmapG1Element(0x42, charmap.ISO8859_2)
	latin3Element   = charmapG1Element(0x43, charmap.ISO8859_3)
	latin4Element   = charmapG1Element(0x44, charmap.ISO8859_4)
	cyrillicElement = charmapG1Element(0x4C, charmap.ISO8859_5)
	arabicElement   = charmapG1Element(0x47, charmap.ISO8859_6)
	greekElement    = charmapG1Element(0x46, charmap.ISO8859_7)
	hebrewElement   = charmapG1Element(0x48, charmap.ISO8859_8)
	latin5Element   = charmapG1Element(0x4D, charmap.ISO8859_9)
	latin9Element   = charmapG1Element(0x62, charmap.ISO8859_15)
	thaiElement     = charmapG1Element(0x54, charmap.Windows874)
)

// charsetDefinitions maps every supported SpecificCharacterSet defined term
// (http://dicom.nema.org/medical/dicom/current/output/chtml/part02/sect_D.6.2.html) to
// its code elements. The "ISO 2022 …" variants designate the same elements as their
// plain counterparts; the difference is only whether escape sequences are permitted in
// the data, which this decoder tolerates either way.
var charsetDefinitions = map[string]charsetDefinition{
	"ISO_IR 6":   {g0: asciiElement},
	"ISO_IR 100": {g0: asciiElement, g1: latin1Element},
	"ISO_IR 101": {g0: asciiElement, g1: latin2Element},
	"ISO_IR 109": {g0: asciiElement, g1: latin3Element},
	"ISO_IR 110": {g0: asciiElement, g1: latin4Element},
	"ISO_IR 144": {g0: asciiElement, g1: cyrillicElement},
	"ISO_IR 127": {g0: asciiElement, g1: arabicElement},
	"ISO_IR 126": {g0: asciiElement, g1: greekElement},
	"ISO_IR 138": {g0: asciiElement, g1: hebrewElement},
	"ISO_IR 148": {g0: asciiElement, g1: latin5Element},
	"ISO_IR 203": {g0: asciiElement, g1: latin9Element},
	"ISO_IR 13":  {g0: romajiElement, g1: katakanaElement},
	"ISO_IR 166": {g0: asciiElement, g1: thaiElement},

	"ISO 2022 IR 6":   {g0: asciiElement},
	"ISO 2022 IR 100": {g0: asciiElement, g1: latin1Element},
	"ISO 2022 IR 101": {g0: asciiElement, g1: latin2Element},
	"ISO 2022 IR 109": {g0: asciiElement, g1: latin3Element},
	"ISO 2022 IR 110": {g0: asciiElement, g1: latin4Element},
	"ISO 2022 IR 144": {g0: asciiElement, g1: cyrillicElement},
	"ISO 2022 IR 127": {g0: asciiElement, g1: arabicElement},
	"ISO 2022 IR 126": {g0: asciiElement, g1: greekElement},
	"ISO 2022 IR 138": {g0: asciiElement, g1: hebrewElement},
	"ISO 2022 IR 148": {g0: asciiElement, g1: latin5Element},
	"ISO 2022 IR 203": {g0: asciiElement, g1: latin9Element},
	"ISO 2022 IR 13":  {g0: romajiElement, g1: katakanaElement},
	"ISO 2022 IR 166": {g0: asciiElement, g1: thaiElement},
	"ISO 2022 IR 87":  {g0: jisX0208Element},
	"ISO 2022 IR 159": {g0: jisX0212Element},
	"ISO 2022 IR 149": {g1: ksX1001Element},
	"ISO 2022 IR 58":  {g1: gb2312Element},

	"ISO_IR 192": {standaloneLabel: "utf-8"},
	"GB18030":    {standaloneLabel: "gb18030"},
	"GBK":        {standaloneLabel: "gbk"},
}

// canonicalTermByKey resolves a defined term after canonicalization: upper-cased with
// spaces, dashes, and underscores removed, so "iso_ir 100", "ISO-IR 100", and
// "ISO_IR 100" all name the same repertoire.
var canonicalTermByKey = buildCanonicalTermIndex()

func buildCanonicalTermIndex() map[string]string {
	index := make(map[string]string, len(charsetDefinitions))
	for term := range charsetDefinitions {
		index[canonicalTermKey(term)] = term
	}
	return index
}

func canonicalTermKey(term string) string {
	var b strings.Builder
	for i := 0; i < len(term); i++ {
		c := term[i]
		switch {
		case c == ' ' || c == '-' || c == '_':
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isExtensionTerm(term string) bool { return strings.HasPrefix(term, "ISO 2022 ") }

// normalizeSpecificCharacterSetTerms applies the SpecificCharacterSet parsing rules to
// the raw backslash-split values of (0008,0005): trim and canonicalize each value,
// resolve the empty-first-value defaults, reject a list that mixes a non-extension
// charset with code-extension charsets (or names more than one non-extension charset),
// and append ISO 2022 IR 6 when only other extension charsets are listed.
func normalizeSpecificCharacterSetTerms(values []string) ([]string, error) {
	terms := make([]string, len(values))
	for i, v := range values {
		terms[i] = strings.TrimSpace(v)
	}
	if len(terms) == 0 || (len(terms) == 1 && terms[0] == "") {
		return []string{"ISO_IR 6"}, nil
	}
	if terms[0] == "" {
		terms[0] = "ISO 2022 IR 6"
	}

	invalid := func(details string) error {
		return newError(SpecificCharacterSetInvalid, nil, 0,
			fmt.Sprintf("specific character set %q: %s", strings.Join(values, `\`), details))
	}

	extensions := 0
	hasISO20226 := false
	for i, term := range terms {
		canonical, ok := canonicalTermByKey[canonicalTermKey(term)]
		if !ok {
			return nil, invalid(fmt.Sprintf("defined term not found: %q", term))
		}
		terms[i] = canonical
		if isExtensionTerm(canonical) {
			extensions++
			if canonical == "ISO 2022 IR 6" {
				hasISO20226 = true
			}
		}
	}

	if extensions != 0 && extensions != len(terms) {
		return nil, invalid("mixes a non-extension charset with ISO 2022 code extensions")
	}
	if extensions == 0 && len(terms) != 1 {
		return nil, invalid("multiple charsets require ISO 2022 code extensions")
	}
	if extensions != 0 && !hasISO20226 {
		terms = append(terms, "ISO 2022 IR 6")
	}
	return terms, nil
}

// lookupStandaloneEncoding resolves the html label of a standalone multi-byte
// repertoire (GB18030, GBK) to its x/text encoding.
func lookupStandaloneEncoding(label string) (encoding.Encoding, error) {
	if enc, err := htmlindex.Get(label); err == nil {
		return enc, nil
	}
	enc, _ := charset.Lookup(label)
	if enc == nil {
		return nil, newError(SpecificCharacterSetInvalid, nil, 0,
			fmt.Sprintf("missing encoding for label %q", label))
	}
	return enc, nil
}

// stringType selects which delimiter codepoints reset the decoder's designated code
// elements back to their defaults mid-value.
type stringType int

const (
	// singleValueString: only the control characters reset.
	singleValueString stringType = iota
	// multiValueString: backslash additionally resets (it separates values).
	multiValueString
	// personNameString: backslash, plus "^" and "=" (component and component-group
	// separators), additionally reset.
	personNameString
)

// CharacterSetDecoder decodes the textual value of an encoded string VR
// (http://dicom.nema.org/medical/dicom/current/output/html/part03.html#sect_C.12.1.1.2)
// to UTF-8, using the (possibly multi-valued) SpecificCharacterSet (0008,0005) in force
// for the data set the value belongs to.
//
// For the ISO-2022-style repertoires (every single-byte set and the code-extension
// multi-byte sets) it runs the standard's G0/G1 model directly: the registers are
// seeded from the first listed charset, escape sequences in the data re-designate
// them, and the delimiter codepoints of the value's string type reset them to the
// seeds. The standalone multi-byte repertoires (UTF-8, GB18030, GBK) have no escape
// model and decode as a whole.
type CharacterSetDecoder struct {
	terms []string

	defaultG0 *codeElement
	defaultG1 *codeElement
	elements  []*codeElement

	standalone encoding.Encoding // GB18030/GBK whole-value decoder; nil otherwise
}

// DefaultCharacterSetDecoder is the decoder in force when a data set carries no
// SpecificCharacterSet element: ISO-IR 100 (Latin-1), the forgiving default for P10
// files that omit (0008,0005) yet carry 8-bit Western European bytes.
func DefaultCharacterSetDecoder() *CharacterSetDecoder {
	def := charsetDefinitions[defaultCharacterSetTerm]
	return &CharacterSetDecoder{
		terms:     []string{defaultCharacterSetTerm},
		defaultG0: def.g0,
		defaultG1: def.g1,
		elements:  []*codeElement{def.g0, def.g1},
	}
}

// NewCharacterSetDecoder builds a decoder from the raw backslash-split values of a
// SpecificCharacterSet element, normalized and validated by
// normalizeSpecificCharacterSetTerms. The first term seeds the G0/G1 registers; every
// listed term contributes its escape-designatable code elements.
func NewCharacterSetDecoder(values []string) (*CharacterSetDecoder, error) {
	terms, err := normalizeSpecificCharacterSetTerms(values)
	if err != nil {
		return nil, err
	}

	d := &CharacterSetDecoder{terms: terms}
	first := charsetDefinitions[terms[0]]
	if first.standaloneLabel != "" {
		if first.standaloneLabel != "utf-8" {
			if d.standalone, err = lookupStandaloneEncoding(first.standaloneLabel); err != nil {
				return nil, err
			}
		}
		return d, nil
	}

	d.defaultG0, d.defaultG1 = first.g0, first.g1
	for _, term := range terms {
		def := charsetDefinitions[term]
		for _, elem := range []*codeElement{def.g0, def.g1} {
			if elem != nil && !containsElement(d.elements, elem) {
				d.elements = append(d.elements, elem)
			}
		}
	}
	return d, nil
}

func containsElement(elements []*codeElement, elem *codeElement) bool {
	for _, e := range elements {
		if e == elem {
			return true
		}
	}
	return false
}

// DecodeSingleValue decodes a single-valued string, in which a backslash is ordinary
// data and resets no code element. P10ReadContext does not call it: it decodes every
// encoded string VR other than PN with DecodeMultiValue.
func (d *CharacterSetDecoder) DecodeSingleValue(s string) string {
	return d.decode(s, singleValueString)
}

// DecodeMultiValue decodes a backslash-delimited multi-valued string; each backslash
// resets the designated code elements, confining escape sequences to the value in
// which they appear (PS3.5 6.1.2.5.3).
func (d *CharacterSetDecoder) DecodeMultiValue(s string) string {
	return d.decode(s, multiValueString)
}

// DecodePersonName decodes a Person Name (PN) value; the "^" and "=" separators reset
// the designated code elements in addition to backslash, per PS3.5 6.2.1.2.
func (d *CharacterSetDecoder) DecodePersonName(s string) string {
	return d.decode(s, personNameString)
}

// IsUTF8Compatible reports whether values decoded by d need no transcoding at all: the
// character set is exactly ISO_IR 6 or ISO_IR 192. A P10ReadContext uses this to decide
// whether a string-VR value must be materialized in full before it can be emitted.
// ISO 2022 IR 6 does not qualify: its bytes are ASCII only until an escape sequence
// designates another character set.
func (d *CharacterSetDecoder) IsUTF8Compatible() bool {
	return len(d.terms) == 1 && isUTF8PassthroughTerm(d.terms[0])
}

func (d *CharacterSetDecoder) decode(s string, mode stringType) string {
	if len(d.terms) == 1 && d.terms[0] == "ISO_IR 192" {
		return s
	}
	if d.standalone != nil {
		decoded, err := d.standalone.NewDecoder().String(s)
		if err != nil {
			// A value that doesn't actually match its declared character set is left
			// as-is rather than failing the whole decode.
			return s
		}
		return decoded
	}

	g0, g1 := d.defaultG0, d.defaultG1
	out := make([]rune, 0, len(s))
	for i := 0; i < len(s); {
		if s[i] == 0x1B {
			if elem, n := d.matchEscape(s[i+1:]); elem != nil {
				if elem.register == g0Register {
					g0 = elem
				} else {
					g1 = elem
				}
				i += 1 + n
			} else {
				i += 1 + skipUnknownEscape(s[i+1:])
			}
			continue
		}

		elem := g0
		if s[i] >= 0x80 && g1 != nil {
			elem = g1
		}
		if elem == nil {
			elem = asciiElement
		}

		// JIS X 0201 romaji renders 0x5C as yen, but in a multi-valued string (or
		// person name) the byte is still the value separator; the backslash-permitting
		// reading wins there.
		if s[i] == 0x5C && elem == romajiElement && mode != singleValueString {
			out = append(out, '\\')
			i++
			g0, g1 = d.defaultG0, d.defaultG1
			continue
		}

		var r rune
		if i+elem.width > len(s) {
			r = utf8.RuneError
			i = len(s)
		} else {
			r = elem.decode([]byte(s[i : i+elem.width]))
			i += elem.width
		}
		out = append(out, r)

		if isResetDelimiter(r, mode) {
			g0, g1 = d.defaultG0, d.defaultG1
		}
	}
	return string(out)
}

// matchEscape finds the longest code-element escape sequence of any listed charset at
// the start of rest (the bytes following an ESC), returning it and its length.
func (d *CharacterSetDecoder) matchEscape(rest string) (*codeElement, int) {
	var best *codeElement
	bestLen := 0
	for _, elem := range d.elements {
		n := len(elem.escape)
		if n > bestLen && len(rest) >= n && rest[:n] == string(elem.escape) {
			best, bestLen = elem, n
		}
	}
	return best, bestLen
}

// skipUnknownEscape measures an unrecognized escape sequence so it can be skipped:
// any run of intermediate bytes (0x20-0x2F) followed by one final byte.
func skipUnknownEscape(rest string) int {
	n := 0
	for n < len(rest) && rest[n] >= 0x20 && rest[n] <= 0x2F {
		n++
	}
	if n < len(rest) {
		n++
	}
	return n
}

// isResetDelimiter reports whether r resets the designated code elements for the given
// string type: the format control characters always, backslash for multi-valued
// strings and person names, and the PN component separators for person names.
func isResetDelimiter(r rune, mode stringType) bool {
	switch r {
	case 0x09, 0x0A, 0x0C, 0x0D:
		return true
	case '\\':
		return mode != singleValueString
	case '=', '^':
		return mode == personNameString
	}
	return false
}

// sanitizeNonEncoded replaces any byte with its high bit set with '?' (0x3F), the
// fallback PS3.5 6.1.2.3 Note 2 prescribes for the non-encoded string VRs when they are
// not ASCII-clean, since those VRs are defined over the default character repertoire
// regardless of SpecificCharacterSet.
func sanitizeNonEncoded(s string) string {
	needsSanitize := false
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			needsSanitize = true
			break
		}
	}
	if !needsSanitize {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		if c >= 0x80 {
			b[i] = '?'
		}
	}
	return string(b)
}
