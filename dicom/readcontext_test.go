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
	"bytes"
	"compress/flate"
	"encoding/binary"
	"math/rand"
	"testing"
)

// catBytes concatenates byte slices, for building wire fixtures inline.
func catBytes(bs ...[]byte) []byte {
	var out []byte
	for _, b := range bs {
		out = append(out, b...)
	}
	return out
}

func u16le(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u16be(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32be(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func tagLE(tag Tag) []byte { return catBytes(u16le(tag.Group()), u16le(tag.Element())) }
func tagBE(tag Tag) []byte { return catBytes(u16be(tag.Group()), u16be(tag.Element())) }

// explicitHeaderU16LE builds an 8-byte Explicit VR Little Endian header for a VR whose
// length class is U16 (tag(4) vr(2) length(2)).
func explicitHeaderU16LE(tag Tag, vr string, length uint16) []byte {
	return catBytes(tagLE(tag), []byte(vr), u16le(length))
}

// explicitHeaderU32LE builds a 12-byte Explicit VR Little Endian header for a VR whose
// length class is U32 (tag(4) vr(2) reserved(2) length(4)).
func explicitHeaderU32LE(tag Tag, vr string, length uint32) []byte {
	return catBytes(tagLE(tag), []byte(vr), []byte{0, 0}, u32le(length))
}

func explicitHeaderU16BE(tag Tag, vr string, length uint16) []byte {
	return catBytes(tagBE(tag), []byte(vr), u16be(length))
}

func implicitHeaderLE(tag Tag, length uint32) []byte {
	return catBytes(tagLE(tag), u32le(length))
}

func dicmPreambleAndMagic() []byte {
	return catBytes(make([]byte, 128), []byte("DICM"))
}

func readAllParts(t *testing.T, ctx *P10ReadContext, stream *ByteStream, wire []byte) []Part {
	t.Helper()
	if err := stream.Write(wire, true); err != nil {
		t.Fatalf("Write: %v", err)
	}
	parts, err := ctx.ReadParts()
	if err != nil {
		t.Fatalf("ReadParts: %v", err)
	}
	return parts
}

func newTestContext(t *testing.T) (*P10ReadContext, *ByteStream) {
	t.Helper()
	stream := NewByteStream()
	ctx, err := NewP10ReadContext(stream, DefaultConfig())
	if err != nil {
		t.Fatalf("NewP10ReadContext: %v", err)
	}
	return ctx, stream
}

func findPart[T Part](t *testing.T, parts []Part) T {
	t.Helper()
	for _, p := range parts {
		if v, ok := p.(T); ok {
			return v
		}
	}
	t.Fatalf("no part of requested type found among %d parts", len(parts))
	var zero T
	return zero
}

// TestReadContextMinimalFileScenario covers the smallest well-formed file: a preamble, a
// minimal File Meta Information group naming Explicit VR Little Endian, and a single
// PatientName element.
func TestReadContextMinimalFileScenario(t *testing.T) {
	fmiBody := catBytes(
		explicitHeaderU16LE(TransferSyntaxUIDTag, "UI", uint16(len(ExplicitVRLittleEndianUID))),
		[]byte(ExplicitVRLittleEndianUID),
	)
	fmi := catBytes(
		explicitHeaderU16LE(FileMetaInformationGroupLengthTag, "UL", 4),
		u32le(uint32(len(fmiBody))),
		fmiBody,
	)
	dataSet := explicitHeaderU16LE(PatientNameTag, "PN", 6)
	dataSet = catBytes(dataSet, []byte("DOE^J "))

	wire := catBytes(dicmPreambleAndMagic(), fmi, dataSet)

	ctx, stream := newTestContext(t)
	parts := readAllParts(t, ctx, stream, wire)

	preamble := findPart[FilePreambleAndDICMPrefixPart](t, parts)
	for _, b := range preamble.Preamble {
		if b != 0 {
			t.Fatalf("expected zero preamble, got %v", preamble.Preamble)
		}
	}

	fmiPart := findPart[FileMetaInformationPart](t, parts)
	if fmiPart.TransferSyntax != TransferSyntaxUID(ExplicitVRLittleEndianUID) {
		t.Fatalf("got transfer syntax %v, want %v", fmiPart.TransferSyntax, ExplicitVRLittleEndianUID)
	}

	header := findPart[DataElementHeaderPart](t, parts)
	if header.Tag != PatientNameTag || header.VR != PNVR {
		t.Fatalf("got header %+v, want PatientName/PN", header)
	}
	if n, ok := header.Length.Defined(); !ok || n != 6 {
		t.Fatalf("got length %v, want Defined(6)", header.Length)
	}

	value := findPart[DataElementValueBytesPart](t, parts)
	if !bytes.Equal(value.Bytes, []byte("DOE^J ")) || !value.Final {
		t.Fatalf("got value %q final=%v, want %q final=true", value.Bytes, value.Final, "DOE^J ")
	}

	last := parts[len(parts)-1]
	if _, ok := last.(EndPart); !ok {
		t.Fatalf("got final part %T, want EndPart", last)
	}
}

// TestReadContextImplicitVRUndefinedLengthSequence covers an undefined-length
// sequence containing one undefined-length item, closed by explicit delimiters, under
// Implicit VR Little Endian.
func TestReadContextImplicitVRUndefinedLengthSequence(t *testing.T) {
	item := catBytes(
		implicitHeaderLE(ValueTypeTag, 9),
		[]byte("CONTAINS "),
		implicitHeaderLE(ItemDelimitationTag, 0),
	)
	sequence := catBytes(
		implicitHeaderLE(RequestAttributesSequenceTag, UndefinedLength),
		implicitHeaderLE(ItemTag, UndefinedLength),
		item,
		implicitHeaderLE(SequenceDelimitationTag, 0),
	)

	stream := NewByteStream()
	ctx, err := NewP10ReadContext(stream, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx.action = actionReadDataElementHeader // skip preamble/FMI: exercise the data set FSM directly
	ctx.ts = implicitVRLittleEndian

	parts := readAllParts(t, ctx, stream, sequence)

	start := findPart[SequenceStartPart](t, parts)
	if start.Tag != RequestAttributesSequenceTag {
		t.Fatalf("got sequence tag %v, want %v", start.Tag, RequestAttributesSequenceTag)
	}

	itemStart := findPart[SequenceItemStartPart](t, parts)
	if len(itemStart.Path) == 0 {
		t.Fatal("expected non-empty item path")
	}
	if itemStart.Path[len(itemStart.Path)-1].Index != 0 {
		t.Fatalf("got item index %d, want 0", itemStart.Path[len(itemStart.Path)-1].Index)
	}

	var opens, closes int
	for _, p := range parts {
		switch p.(type) {
		case SequenceStartPart, SequenceItemStartPart:
			opens++
		case SequenceDelimiterPart, SequenceItemDelimiterPart:
			closes++
		}
	}
	if opens != closes {
		t.Fatalf("unbalanced open/close parts: %d opens, %d closes", opens, closes)
	}
}

// TestReadContextBigEndianSwap checks that Explicit VR Big Endian values are always
// re-emitted little endian.
func TestReadContextBigEndianSwap(t *testing.T) {
	wire := explicitHeaderU16BE(RowsTagForTest, "US", 2)
	wire = catBytes(wire, u16be(0x0200))

	stream := NewByteStream()
	ctx, err := NewP10ReadContext(stream, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx.action = actionReadDataElementHeader
	ctx.ts = explicitVRBigEndian

	parts := readAllParts(t, ctx, stream, wire)
	value := findPart[DataElementValueBytesPart](t, parts)
	if !bytes.Equal(value.Bytes, []byte{0x00, 0x02}) {
		t.Fatalf("got %x, want 0002 (little endian)", value.Bytes)
	}
}

// RowsTagForTest is (0028,0010) Rows, a registered US tag used to drive the big-endian
// swap test without depending on registry entries the codec itself doesn't need.
var RowsTagForTest = NewTag(0x0028, 0x0010)

// TestReadContextCharacterSetTranscoding: a non-default SpecificCharacterSet
// rewrites its own value to ISO_IR 192 and causes later PN values to be transcoded to
// UTF-8.
func TestReadContextCharacterSetTranscoding(t *testing.T) {
	charsetElem := catBytes(
		implicitHeaderLE(SpecificCharacterSetTag, 10),
		[]byte("ISO_IR 100"),
	)
	nameElem := catBytes(
		implicitHeaderLE(PatientNameTag, 4),
		[]byte{0xC4, 0x6F, 0x65, 0x20},
	)
	wire := catBytes(charsetElem, nameElem)

	stream := NewByteStream()
	ctx, err := NewP10ReadContext(stream, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx.action = actionReadDataElementHeader
	ctx.ts = implicitVRLittleEndian

	parts := readAllParts(t, ctx, stream, wire)

	var sawRewrittenCharset, sawTranscodedName bool
	for i, p := range parts {
		if v, ok := p.(DataElementValueBytesPart); ok {
			if v.Tag == SpecificCharacterSetTag && string(v.Bytes) == "ISO_IR 192" {
				sawRewrittenCharset = true
			}
			if v.Tag == PatientNameTag {
				if !bytes.Equal(v.Bytes, []byte{0xC3, 0x84, 0x6F, 0x65}) {
					t.Fatalf("part %d: got PN bytes %x, want c3 84 6f 65 (UTF-8 Äoe)", i, v.Bytes)
				}
				sawTranscodedName = true
			}
		}
	}
	if !sawRewrittenCharset {
		t.Fatal("expected SpecificCharacterSet value to be rewritten to ISO_IR 192")
	}
	if !sawTranscodedName {
		t.Fatal("expected a transcoded PatientName value")
	}
}

// TestReadContextCP246ForcesImplicitVR: a UN element of undefined length is
// reinterpreted as a sequence whose contents are parsed Implicit VR Little Endian even
// though the surrounding data set is Explicit VR.
func TestReadContextCP246ForcesImplicitVR(t *testing.T) {
	privateTag := NewTag(0x0041, 0x1010)
	innerTag := NewTag(0x0041, 0x1011)

	item := catBytes(
		implicitHeaderLE(innerTag, 4),
		[]byte("ABCD"),
		implicitHeaderLE(ItemDelimitationTag, 0),
	)
	wire := catBytes(
		explicitHeaderU32LE(privateTag, "UN", UndefinedLength),
		implicitHeaderLE(ItemTag, UndefinedLength),
		item,
		implicitHeaderLE(SequenceDelimitationTag, 0),
	)

	stream := NewByteStream()
	ctx, err := NewP10ReadContext(stream, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx.action = actionReadDataElementHeader
	ctx.ts = explicitVRLittleEndian

	parts := readAllParts(t, ctx, stream, wire)

	start := findPart[SequenceStartPart](t, parts)
	if start.Tag != privateTag {
		t.Fatalf("got sequence tag %v, want %v", start.Tag, privateTag)
	}

	header := findPart[DataElementHeaderPart](t, parts)
	if header.Tag != innerTag {
		t.Fatalf("got inner header tag %v, want %v (decoded as Implicit VR)", header.Tag, innerTag)
	}
}

// TestReadContextEncapsulatedPixelDataWithBOT covers encapsulated PixelData
// carrying an empty Basic Offset Table followed by two fragments.
func TestReadContextEncapsulatedPixelDataWithBOT(t *testing.T) {
	frag1 := []byte{0x01, 0x02, 0x03, 0x04}
	frag2 := []byte{0x05, 0x06}
	wire := catBytes(
		explicitHeaderU32LE(PixelDataTag, "OB", UndefinedLength),
		implicitHeaderLE(ItemTag, 0), // empty Basic Offset Table
		implicitHeaderLE(ItemTag, uint32(len(frag1))),
		frag1,
		implicitHeaderLE(ItemTag, uint32(len(frag2))),
		frag2,
		implicitHeaderLE(SequenceDelimitationTag, 0),
	)

	stream := NewByteStream()
	ctx, err := NewP10ReadContext(stream, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx.action = actionReadDataElementHeader
	ctx.ts = explicitVRLittleEndian

	parts := readAllParts(t, ctx, stream, wire)

	var items []PixelDataItemPart
	for _, p := range parts {
		if v, ok := p.(PixelDataItemPart); ok {
			items = append(items, v)
		}
	}
	if len(items) != 3 {
		t.Fatalf("got %d pixel data items, want 3 (BOT + 2 fragments)", len(items))
	}
	if !items[0].IsBasicOffsetTable || len(items[0].Bytes) != 0 {
		t.Fatalf("got item 0 %+v, want empty Basic Offset Table", items[0])
	}
	if !bytes.Equal(items[1].Bytes, frag1) || !bytes.Equal(items[2].Bytes, frag2) {
		t.Fatalf("got fragments %x / %x, want %x / %x", items[1].Bytes, items[2].Bytes, frag1, frag2)
	}

	if _, ok := parts[len(parts)-1].(EndPart); !ok {
		t.Fatalf("got final part %T, want EndPart", parts[len(parts)-1])
	}
}

// TestReadContextEncapsulatedPixelDataChunked covers a fragment larger than
// Config.MaxPartSize: the reader must split it across several PixelDataItemParts (only
// the last one Final), and a DataSetBuilder fed that sequence must reassemble the whole
// fragment rather than treating each chunk as its own item.
func TestReadContextEncapsulatedPixelDataChunked(t *testing.T) {
	frag := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A}
	wire := catBytes(
		explicitHeaderU32LE(PixelDataTag, "OB", UndefinedLength),
		implicitHeaderLE(ItemTag, 0), // empty Basic Offset Table
		implicitHeaderLE(ItemTag, uint32(len(frag))),
		frag,
		implicitHeaderLE(SequenceDelimitationTag, 0),
	)

	stream := NewByteStream()
	config := DefaultConfig()
	config.MaxPartSize = 8
	config.MaxStringSize = 8
	ctx, err := NewP10ReadContext(stream, config)
	if err != nil {
		t.Fatal(err)
	}
	ctx.action = actionReadDataElementHeader
	ctx.ts = explicitVRLittleEndian

	parts := readAllParts(t, ctx, stream, wire)

	var fragmentParts []PixelDataItemPart
	for _, p := range parts {
		if v, ok := p.(PixelDataItemPart); ok && !v.IsBasicOffsetTable {
			fragmentParts = append(fragmentParts, v)
		}
	}
	if len(fragmentParts) < 2 {
		t.Fatalf("got %d fragment parts, want at least 2 (chunked by MaxPartSize)", len(fragmentParts))
	}
	for i, p := range fragmentParts {
		if i < len(fragmentParts)-1 && p.Final {
			t.Fatalf("fragment chunk %d marked Final, want only the last chunk marked", i)
		}
	}
	if !fragmentParts[len(fragmentParts)-1].Final {
		t.Fatalf("last fragment chunk not marked Final")
	}

	builder := NewDataSetBuilder()
	for _, p := range parts {
		if err := builder.AddPart(p); err != nil {
			t.Fatalf("AddPart(%#v): %v", p, err)
		}
	}
	ds := builder.DataSet()
	v, ok := ds.Get(PixelDataTag)
	if !ok || v.EncapsulatedPixelData == nil {
		t.Fatalf("PixelData not stored: %+v", v)
	}
	if len(v.EncapsulatedPixelData.Fragments) != 1 {
		t.Fatalf("got %d fragments, want 1 reassembled fragment", len(v.EncapsulatedPixelData.Fragments))
	}
	if !bytes.Equal(v.EncapsulatedPixelData.Fragments[0], frag) {
		t.Fatalf("reassembled fragment = %x, want %x", v.EncapsulatedPixelData.Fragments[0], frag)
	}
}

// TestReadContextJitteredWrites is the jittered-read property: the resulting part
// stream from a well-formed file must not depend on how its bytes were chunked across
// Write calls.
func TestReadContextJitteredWrites(t *testing.T) {
	fmiBody := catBytes(
		explicitHeaderU16LE(TransferSyntaxUIDTag, "UI", uint16(len(ImplicitVRLittleEndianUID))),
		[]byte(ImplicitVRLittleEndianUID),
	)
	fmi := catBytes(
		explicitHeaderU16LE(FileMetaInformationGroupLengthTag, "UL", 4),
		u32le(uint32(len(fmiBody))),
		fmiBody,
	)
	body := catBytes(implicitHeaderLE(PatientNameTag, 8), []byte("SMITH^A "))
	wire := catBytes(dicmPreambleAndMagic(), fmi, body)

	reference := collectPartsWholeWrite(t, wire)

	chunkSizeSets := [][]int{{15}, {1}, {3, 7, 21, 2}}
	for _, sizes := range chunkSizeSets {
		got := collectPartsJittered(t, wire, sizes, 2)
		if len(got) != len(reference) {
			t.Fatalf("chunk sizes %v: got %d parts, want %d", sizes, len(got), len(reference))
		}
		for i := range got {
			if !samePartShape(got[i], reference[i]) {
				t.Fatalf("chunk sizes %v: part %d differs: got %#v, want %#v", sizes, i, got[i], reference[i])
			}
		}
	}
}

func collectPartsWholeWrite(t *testing.T, wire []byte) []Part {
	t.Helper()
	ctx, stream := newTestContext(t)
	return readAllParts(t, ctx, stream, wire)
}

func collectPartsJittered(t *testing.T, wire []byte, chunkSizes []int, seed int64) []Part {
	t.Helper()
	ctx, stream := newTestContext(t)

	var all []Part
	pos := 0
	ci := 0
	rnd := rand.New(rand.NewSource(seed))
	for pos < len(wire) {
		n := chunkSizes[ci%len(chunkSizes)]
		if len(chunkSizes) == 1 && chunkSizes[0] == 1 {
			n = 1
		} else if n <= 0 {
			n = 1 + rnd.Intn(8)
		}
		ci++
		if pos+n > len(wire) {
			n = len(wire) - pos
		}
		done := pos+n == len(wire)
		if err := stream.Write(wire[pos:pos+n], done); err != nil {
			t.Fatalf("Write: %v", err)
		}
		pos += n

		parts, err := ctx.ReadParts()
		if err != nil {
			t.Fatalf("ReadParts: %v", err)
		}
		all = append(all, parts...)
	}
	return all
}

// samePartShape compares the fields tests in this file care about, ignoring Path (a slice,
// so not comparable with ==) to keep the
// comparison focused on the wire-visible content the jittered-read property is about.
func samePartShape(a, b Part) bool {
	switch av := a.(type) {
	case DataElementHeaderPart:
		bv, ok := b.(DataElementHeaderPart)
		return ok && av.Tag == bv.Tag && av.VR == bv.VR && av.Length == bv.Length
	case DataElementValueBytesPart:
		bv, ok := b.(DataElementValueBytesPart)
		return ok && av.Tag == bv.Tag && bytes.Equal(av.Bytes, bv.Bytes) && av.Final == bv.Final
	case FileMetaInformationPart:
		bv, ok := b.(FileMetaInformationPart)
		return ok && av.TransferSyntax == bv.TransferSyntax
	default:
		return sameType(a, b)
	}
}

// TestReadContextMinimalFileStripsGroupLengthAndNormalizesUID checks the File Meta
// Information part's contents: the group length element is stripped and (0002,0010)
// carries the resolved transfer syntax UID in normalized, even-padded form.
func TestReadContextMinimalFileStripsGroupLengthAndNormalizesUID(t *testing.T) {
	fmiBody := catBytes(
		explicitHeaderU16LE(TransferSyntaxUIDTag, "UI", uint16(len(ExplicitVRLittleEndianUID))),
		[]byte(ExplicitVRLittleEndianUID),
	)
	fmi := catBytes(
		explicitHeaderU16LE(FileMetaInformationGroupLengthTag, "UL", 4),
		u32le(uint32(len(fmiBody))),
		fmiBody,
	)
	wire := catBytes(dicmPreambleAndMagic(), fmi)

	ctx, stream := newTestContext(t)
	parts := readAllParts(t, ctx, stream, wire)

	fmiPart := findPart[FileMetaInformationPart](t, parts)
	if _, ok := fmiPart.MetaInformation.Get(FileMetaInformationGroupLengthTag); ok {
		t.Error("group length element should be stripped from the emitted File Meta Information")
	}
	uid, ok := fmiPart.MetaInformation.Get(TransferSyntaxUIDTag)
	if !ok || uid.Binary == nil {
		t.Fatalf("TransferSyntaxUID missing from File Meta Information: %+v", uid)
	}
	want := append([]byte(ExplicitVRLittleEndianUID), 0x00) // padded to even length
	if !bytes.Equal(uid.Binary.Bytes, want) {
		t.Errorf("TransferSyntaxUID bytes = %q, want %q", uid.Binary.Bytes, want)
	}
}

// TestReadContextToleratesMissingPreamble: a stream that begins directly with data
// elements (no preamble, no DICM magic) decodes from offset 0 under the fallback
// transfer syntax, with a zero preamble reported.
func TestReadContextToleratesMissingPreamble(t *testing.T) {
	wire := catBytes(implicitHeaderLE(PatientNameTag, 6), []byte("DOE^J "))

	ctx, stream := newTestContext(t)
	parts := readAllParts(t, ctx, stream, wire)

	preamble := findPart[FilePreambleAndDICMPrefixPart](t, parts)
	for _, b := range preamble.Preamble {
		if b != 0 {
			t.Fatal("expected a zero preamble for a DICM-less stream")
		}
	}
	fmiPart := findPart[FileMetaInformationPart](t, parts)
	if fmiPart.TransferSyntax != TransferSyntaxUID(ImplicitVRLittleEndianUID) {
		t.Fatalf("got transfer syntax %v, want the fallback %v", fmiPart.TransferSyntax, ImplicitVRLittleEndianUID)
	}
	value := findPart[DataElementValueBytesPart](t, parts)
	if !bytes.Equal(value.Bytes, []byte("DOE^J ")) {
		t.Fatalf("got value %q, want %q", value.Bytes, "DOE^J ")
	}
}

// TestReadContextDeflatedTransferSyntax inflates everything after File Meta Information
// when the transfer syntax is Deflated Explicit VR Little Endian.
func TestReadContextDeflatedTransferSyntax(t *testing.T) {
	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		t.Fatal(err)
	}
	body := catBytes(explicitHeaderU16LE(PatientNameTag, "PN", 6), []byte("DOE^J "))
	if _, err := w.Write(body); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	fmiBody := catBytes(
		explicitHeaderU16LE(TransferSyntaxUIDTag, "UI", uint16(len(DeflatedExplicitVRLittleEndianUID)+1)),
		[]byte(DeflatedExplicitVRLittleEndianUID), []byte{0x00},
	)
	fmi := catBytes(
		explicitHeaderU16LE(FileMetaInformationGroupLengthTag, "UL", 4),
		u32le(uint32(len(fmiBody))),
		fmiBody,
	)
	wire := catBytes(dicmPreambleAndMagic(), fmi, compressed.Bytes())

	ctx, stream := newTestContext(t)
	parts := readAllParts(t, ctx, stream, wire)

	header := findPart[DataElementHeaderPart](t, parts)
	if header.Tag != PatientNameTag {
		t.Fatalf("got header tag %v, want PatientName (decoded from the inflated stream)", header.Tag)
	}
	value := findPart[DataElementValueBytesPart](t, parts)
	if !bytes.Equal(value.Bytes, []byte("DOE^J ")) {
		t.Fatalf("got value %q, want %q", value.Bytes, "DOE^J ")
	}
	if _, ok := parts[len(parts)-1].(EndPart); !ok {
		t.Fatalf("got final part %T, want EndPart", parts[len(parts)-1])
	}
}

func TestReadContextRejectsUnsupportedTransferSyntax(t *testing.T) {
	fmiBody := catBytes(
		explicitHeaderU16LE(TransferSyntaxUIDTag, "UI", 8),
		[]byte("1.2.3.4\x00"),
	)
	fmi := catBytes(
		explicitHeaderU16LE(FileMetaInformationGroupLengthTag, "UL", 4),
		u32le(uint32(len(fmiBody))),
		fmiBody,
	)
	wire := catBytes(dicmPreambleAndMagic(), fmi)

	ctx, stream := newTestContext(t)
	if err := stream.Write(wire, true); err != nil {
		t.Fatal(err)
	}
	_, err := ctx.ReadParts()
	if err == nil {
		t.Fatal("expected TransferSyntaxNotSupported")
	}
	if e, ok := err.(*Error); !ok || e.Kind != TransferSyntaxNotSupported {
		t.Fatalf("got %v, want TransferSyntaxNotSupported", err)
	}
}

func TestReadContextRejectsMetaInformationTagInDataSet(t *testing.T) {
	wire := catBytes(
		explicitHeaderU16LE(TransferSyntaxUIDTag, "UI", 2),
		[]byte("1\x00"),
	)

	stream := NewByteStream()
	ctx, err := NewP10ReadContext(stream, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx.action = actionReadDataElementHeader
	ctx.ts = explicitVRLittleEndian

	if err := stream.Write(wire, true); err != nil {
		t.Fatal(err)
	}
	_, err = ctx.ReadParts()
	if err == nil {
		t.Fatal("expected DataInvalid for a group-2 tag outside File Meta Information")
	}
	if e, ok := err.(*Error); !ok || e.Kind != DataInvalid {
		t.Fatalf("got %v, want DataInvalid", err)
	}
}

// TestReadContextSequenceDepthLimit: a nesting exactly at the configured cap succeeds;
// one level deeper reports MaximumExceeded.
func TestReadContextSequenceDepthLimit(t *testing.T) {
	nested := func(depth int) []byte {
		var wire []byte
		for i := 0; i < depth; i++ {
			wire = catBytes(wire,
				implicitHeaderLE(RequestAttributesSequenceTag, UndefinedLength),
				implicitHeaderLE(ItemTag, UndefinedLength),
			)
		}
		for i := 0; i < depth; i++ {
			wire = catBytes(wire,
				implicitHeaderLE(ItemDelimitationTag, 0),
				implicitHeaderLE(SequenceDelimitationTag, 0),
			)
		}
		return wire
	}

	run := func(depth int) error {
		stream := NewByteStream()
		config := DefaultConfig()
		config.MaxSequenceDepth = 3
		ctx, err := NewP10ReadContext(stream, config)
		if err != nil {
			t.Fatal(err)
		}
		ctx.action = actionReadDataElementHeader
		ctx.ts = implicitVRLittleEndian
		if err := stream.Write(nested(depth), true); err != nil {
			t.Fatal(err)
		}
		_, err = ctx.ReadParts()
		return err
	}

	if err := run(3); err != nil {
		t.Fatalf("nesting at the cap should succeed, got %v", err)
	}
	err := run(4)
	if err == nil {
		t.Fatal("nesting one deeper than the cap should fail")
	}
	if e, ok := err.(*Error); !ok || e.Kind != MaximumExceeded {
		t.Fatalf("got %v, want MaximumExceeded", err)
	}
}

func TestReadContextMaterializedStringExceedsMaxStringSize(t *testing.T) {
	big := bytes.Repeat([]byte{'A'}, 24)
	wire := catBytes(implicitHeaderLE(PatientNameTag, uint32(len(big))), big)

	stream := NewByteStream()
	config := DefaultConfig()
	config.MaxPartSize = 16
	config.MaxStringSize = 16
	ctx, err := NewP10ReadContext(stream, config)
	if err != nil {
		t.Fatal(err)
	}
	ctx.action = actionReadDataElementHeader
	ctx.ts = implicitVRLittleEndian

	if err := stream.Write(wire, true); err != nil {
		t.Fatal(err)
	}
	_, err = ctx.ReadParts()
	if err == nil {
		t.Fatal("expected MaximumExceeded for an oversized materialized string")
	}
	if e, ok := err.(*Error); !ok || e.Kind != MaximumExceeded {
		t.Fatalf("got %v, want MaximumExceeded", err)
	}
}

// TestReadContextSwallowsGroupLengthAndTrailingPadding: group length elements and
// DataSetTrailingPadding are consumed without any Part being emitted.
func TestReadContextSwallowsGroupLengthAndTrailingPadding(t *testing.T) {
	wire := catBytes(
		implicitHeaderLE(NewTag(0x0008, 0x0000), 4), u32le(10), // group length
		implicitHeaderLE(PatientNameTag, 6), []byte("DOE^J "),
		implicitHeaderLE(DataSetTrailingPaddingTag, 4), []byte{0, 0, 0, 0},
	)

	stream := NewByteStream()
	ctx, err := NewP10ReadContext(stream, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx.action = actionReadDataElementHeader
	ctx.ts = implicitVRLittleEndian

	parts := readAllParts(t, ctx, stream, wire)
	for _, p := range parts {
		switch v := p.(type) {
		case DataElementHeaderPart:
			if v.Tag != PatientNameTag {
				t.Errorf("unexpected header for %v; group length and padding should be swallowed", v.Tag)
			}
		case DataElementValueBytesPart:
			if v.Tag != PatientNameTag {
				t.Errorf("unexpected value bytes for %v", v.Tag)
			}
		}
	}
}

// TestReadContextIgnoresRogueSequenceDelimiter: a sequence delimiter at the root is
// skipped, matching how this reader tolerates files written by sloppy encoders.
func TestReadContextIgnoresRogueSequenceDelimiter(t *testing.T) {
	wire := catBytes(
		implicitHeaderLE(SequenceDelimitationTag, 0),
		implicitHeaderLE(PatientNameTag, 6), []byte("DOE^J "),
	)

	stream := NewByteStream()
	ctx, err := NewP10ReadContext(stream, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx.action = actionReadDataElementHeader
	ctx.ts = implicitVRLittleEndian

	parts := readAllParts(t, ctx, stream, wire)
	for _, p := range parts {
		if _, ok := p.(SequenceDelimiterPart); ok {
			t.Fatal("rogue sequence delimiter should be silently skipped, not emitted")
		}
	}
	header := findPart[DataElementHeaderPart](t, parts)
	if header.Tag != PatientNameTag {
		t.Fatalf("got %v, want PatientName after the skipped delimiter", header.Tag)
	}
}

func sameType(a, b Part) bool {
	switch a.(type) {
	case FilePreambleAndDICMPrefixPart:
		_, ok := b.(FilePreambleAndDICMPrefixPart)
		return ok
	case SequenceStartPart:
		_, ok := b.(SequenceStartPart)
		return ok
	case SequenceDelimiterPart:
		_, ok := b.(SequenceDelimiterPart)
		return ok
	case SequenceItemStartPart:
		_, ok := b.(SequenceItemStartPart)
		return ok
	case SequenceItemDelimiterPart:
		_, ok := b.(SequenceItemDelimiterPart)
		return ok
	case PixelDataItemPart:
		_, ok := b.(PixelDataItemPart)
		return ok
	case EndPart:
		_, ok := b.(EndPart)
		return ok
	}
	return false
}
