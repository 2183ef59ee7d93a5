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
	"encoding/binary"
	"fmt"
)

// nextAction is the P10ReadContext's current position in the master state machine: a
// DICM stream is read as a strict sequence of phases, each of which may take several
// ReadParts calls (and several Write calls on the underlying ByteStream) to get
// through.
type nextAction int

const (
	actionReadFilePreambleAndDICMPrefix nextAction = iota
	actionReadFileMetaInformation
	actionReadDataElementHeader
	actionReadDataElementValueBytes
	actionReadPixelDataItem
	actionDone
)

// P10ReadContext is the master streaming state machine that turns a ByteStream of P10
// bytes into a sequence of Parts. Construct one with NewP10ReadContext and drive it by
// alternating ByteStream.Write (when the caller has more bytes) with ReadParts (to pull
// whatever Parts those bytes make available).
type P10ReadContext struct {
	config Config
	stream *ByteStream
	loc    *Location

	action nextAction

	ts    transferSyntax
	tsUID string

	fmiBuilder     *DataSetBuilder
	fmiGroupLength int64 // byte offset at which FileMetaInformation ends; -1 if unknown
	fmiStartsAt    int64
	fmiDone        bool

	pendingHeader         *dataElementHeader
	pendingRemaining      uint32
	pendingMaterialized   []byte
	pendingIsMaterialized bool

	pixelItemIndex     int
	pixelItemRemaining uint32
}

// NewP10ReadContext returns a P10ReadContext reading from stream, validating config
// first. MaxPartSize is rounded down to a multiple of 8 so a chunk boundary never
// splits a VR's multi-byte numeric words, and the stream's single-read cap is derived
// from the configured limits.
func NewP10ReadContext(stream *ByteStream, config Config) (*P10ReadContext, error) {
	config.MaxPartSize -= config.MaxPartSize % 8
	if err := config.Validate(); err != nil {
		return nil, err
	}

	maxRead := config.MaxPartSize
	if config.MaxStringSize > maxRead {
		maxRead = config.MaxStringSize
	}
	if maxRead < preambleAndMagicLength {
		maxRead = preambleAndMagicLength
	}
	stream.setMaxReadSize(maxRead)

	return &P10ReadContext{
		config: config,
		stream: stream,
		loc:    NewLocation(),
		action: actionReadFilePreambleAndDICMPrefix,
	}, nil
}

// ReadParts pulls as many Parts as the bytes written to the underlying ByteStream so far
// allow, stopping (with a nil error) once satisfying the next Part would require bytes
// not yet written. Call Write on the ByteStream and call ReadParts again to continue.
// A non-nil, non-DataRequired error is a terminal failure: the stream is malformed and
// no further progress can be made.
func (ctx *P10ReadContext) ReadParts() ([]Part, error) {
	var parts []Part
	for {
		part, err := ctx.step()
		if err != nil {
			if IsDataRequired(err) {
				return parts, nil
			}
			return parts, err
		}
		if part != nil {
			parts = append(parts, part)
		}
		if ctx.action == actionDone {
			return parts, nil
		}
	}
}

// step advances the state machine by at most one Part. It snapshots the stream's read
// cursor first and rolls back to it on DataRequired, so a decode that spans several
// reads (a 12-byte explicit VR header, a header plus its materialized value) restarts
// cleanly once more bytes are written, no matter how the caller chunks its writes.
// Every action mutates context/location state only after its final stream read, which
// is what makes the rollback sufficient.
func (ctx *P10ReadContext) step() (Part, error) {
	pos := ctx.stream.position()
	part, err := ctx.dispatch()
	if err != nil && IsDataRequired(err) {
		ctx.stream.restore(pos)
	}
	return part, err
}

func (ctx *P10ReadContext) dispatch() (Part, error) {
	switch ctx.action {
	case actionReadFilePreambleAndDICMPrefix:
		return ctx.readPreamble()
	case actionReadFileMetaInformation:
		return ctx.readFileMetaInformationElement()
	case actionReadDataElementHeader:
		return ctx.readNextHeader()
	case actionReadDataElementValueBytes:
		return ctx.readValueBytesChunk()
	case actionReadPixelDataItem:
		return ctx.readPixelDataItemChunk()
	default:
		return nil, nil
	}
}

// preambleAndMagicLength is the 128-byte preamble plus the 4-byte "DICM" magic.
const preambleAndMagicLength = 132

// readPreamble looks for the optional 128-byte preamble and "DICM" magic. A stream too
// short to hold them, or holding other bytes where the magic would be, is tolerated: a
// zero preamble is reported, nothing is consumed, and decoding restarts from offset 0
// (such files begin directly with data elements).
func (ctx *P10ReadContext) readPreamble() (Part, error) {
	part := FilePreambleAndDICMPrefixPart{}

	b, err := ctx.stream.Peek(preambleAndMagicLength)
	switch {
	case err == nil && string(b[128:preambleAndMagicLength]) == "DICM":
		copy(part.Preamble[:], b[:128])
		if err := ctx.stream.Skip(preambleAndMagicLength); err != nil {
			return nil, err
		}
	case err != nil && IsDataRequired(err):
		return nil, err
	case err != nil && errorKind(err) != DataEndedUnexpectedly:
		return nil, err
	}

	ctx.action = actionReadFileMetaInformation
	ctx.fmiBuilder = NewDataSetBuilder()
	ctx.fmiGroupLength = -1
	ctx.fmiStartsAt = ctx.stream.BytesRead()
	return part, nil
}

func errorKind(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ErrorKind(-1)
}

// readFileMetaInformationElement reads one File Meta Information data element (always
// Explicit VR Little Endian, per PS3.10 7.1) and feeds it to ctx.fmiBuilder, or, once the
// group is exhausted, resolves the transfer syntax and emits FileMetaInformationPart.
func (ctx *P10ReadContext) readFileMetaInformationElement() (Part, error) {
	if ctx.fmiDone {
		return ctx.finishFileMetaInformation()
	}

	if ctx.fmiGroupLength >= 0 && ctx.stream.BytesRead() >= ctx.fmiGroupLength {
		ctx.fmiDone = true
		return ctx.finishFileMetaInformation()
	}

	// Fallback termination (no group length element seen): peek the next tag's group
	// without consuming it; a non-0002 group, or a clean end of stream, means the File
	// Meta Information group has ended.
	if ctx.fmiGroupLength < 0 {
		peeked, err := ctx.stream.Peek(2)
		if err != nil {
			if IsDataRequired(err) || errorKind(err) != DataEndedUnexpectedly {
				return nil, err
			}
			ctx.fmiDone = true
			return ctx.finishFileMetaInformation()
		}
		group := explicitVRLittleEndian.ByteOrder.Uint16(peeked)
		if group != 0x0002 {
			ctx.fmiDone = true
			return ctx.finishFileMetaInformation()
		}
	}

	header, err := readDataElementHeader(ctx.stream, explicitVRLittleEndian, rootLocation{})
	if err != nil {
		return nil, err
	}
	if !header.Tag.IsMetaInformation() {
		return nil, newError(DataInvalid, nil, ctx.stream.BytesRead(),
			fmt.Sprintf("non File Meta Information tag %v found inside File Meta Information group", header.Tag))
	}
	if header.VR == SQVR {
		return nil, newError(DataInvalid, nil, ctx.stream.BytesRead(),
			fmt.Sprintf("sequence %v not permitted inside File Meta Information", header.Tag))
	}
	n, ok := header.Length.Defined()
	if !ok {
		return nil, newError(DataInvalid, nil, ctx.stream.BytesRead(), "File Meta Information element with undefined length")
	}
	value, err := ctx.stream.Read(int(n))
	if err != nil {
		return nil, err
	}

	if header.Tag == FileMetaInformationGroupLengthTag {
		ctx.fmiGroupLength = ctx.stream.BytesRead() + int64(explicitVRLittleEndian.ByteOrder.Uint32(value))
	}
	if limit := int64(ctx.config.MaxPartSize); ctx.stream.BytesRead()-ctx.fmiStartsAt > limit ||
		(ctx.fmiGroupLength >= 0 && ctx.fmiGroupLength-ctx.fmiStartsAt > limit) {
		return nil, newError(MaximumExceeded, nil, ctx.stream.BytesRead(),
			fmt.Sprintf("File Meta Information exceeds max part size %d", ctx.config.MaxPartSize))
	}
	if header.Tag == TransferSyntaxUIDTag {
		ctx.tsUID = trimUITrailingPad(value)
	}

	if err := ctx.fmiBuilder.AddPart(DataElementHeaderPart{Tag: header.Tag, VR: header.VR, Length: header.Length}); err != nil {
		return nil, err
	}
	if err := ctx.fmiBuilder.AddPart(DataElementValueBytesPart{Tag: header.Tag, VR: header.VR, Bytes: value, Final: true}); err != nil {
		return nil, err
	}
	return nil, nil
}

// finishFileMetaInformation resolves the transfer syntax and emits the accumulated File
// Meta Information, with the group length element stripped and the resolved transfer
// syntax UID stored under (0002,0010) in normalized (trimmed, fallback-applied) form.
func (ctx *P10ReadContext) finishFileMetaInformation() (Part, error) {
	fmiDataSet := ctx.fmiBuilder.ForceEnd()

	if ctx.tsUID == "" {
		ctx.tsUID = ctx.config.FallbackTransferSyntaxUID
	}
	if !isTransferSyntaxSupported(ctx.tsUID) {
		return nil, newError(TransferSyntaxNotSupported, nil, ctx.stream.BytesRead(), ctx.tsUID)
	}
	ctx.ts = lookupTransferSyntax(ctx.tsUID)
	if ctx.ts.IsDeflated {
		if err := ctx.stream.StartZlibInflate(); err != nil {
			return nil, err
		}
	}

	fmiDataSet.Delete(FileMetaInformationGroupLengthTag)
	uid := []byte(ctx.tsUID)
	if len(uid)%2 != 0 {
		uid = append(uid, nullPad)
	}
	fmiDataSet.Set(TransferSyntaxUIDTag, DataElementValue{Binary: &BinaryValue{VR: UIVR, Bytes: uid}})

	ctx.action = actionReadDataElementHeader
	return FileMetaInformationPart{MetaInformation: fmiDataSet, TransferSyntax: TransferSyntaxUID(ctx.tsUID)}, nil
}

// rootLocation satisfies vrInferrer trivially: every File Meta Information element is
// Explicit VR, so its VR is always carried on the wire and inference is never needed.
type rootLocation struct{}

func (rootLocation) InferVR(tag Tag) (*VR, error) {
	return nil, newError(DataInvalid, nil, 0, fmt.Sprintf("cannot infer VR for %v in File Meta Information", tag))
}

func (ctx *P10ReadContext) readNextHeader() (Part, error) {
	if n := ctx.loc.PendingDelimiterParts(ctx.stream.BytesRead()); n > 0 {
		return ctx.loc.NextDelimiterPart(ctx.stream.BytesRead())
	}

	if ctx.loc.Depth() == 0 && ctx.stream.IsFullyConsumed() {
		ctx.action = actionDone
		return EndPart{}, nil
	}

	if ctx.loc.IsEncapsulatedPixelDataScope() {
		return ctx.readPixelDataItemHeader()
	}

	effectiveTS := ctx.ts
	if ctx.loc.IsImplicitVRForced() {
		effectiveTS = implicitVRLittleEndian
	}

	header, err := readDataElementHeader(ctx.stream, effectiveTS, ctx.loc)
	if err != nil {
		return nil, err
	}

	if header.Tag.IsMetaInformation() {
		return nil, newError(DataInvalid, ctx.loc.CurrentPath(), ctx.stream.BytesRead(),
			fmt.Sprintf("File Meta Information tag %v found in data set", header.Tag))
	}

	if header.Tag == DataSetTrailingPaddingTag || header.Tag.Element() == 0 {
		n, ok := header.Length.Defined()
		if !ok {
			return nil, newError(DataInvalid, ctx.loc.CurrentPath(), ctx.stream.BytesRead(), fmt.Sprintf("%v has undefined length", header.Tag))
		}
		if n > 0 {
			if _, err := ctx.stream.Read(int(n)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}

	switch header.Tag {
	case SequenceDelimitationTag:
		if !ctx.loc.InSequence() {
			// Some writers emit a stray sequence delimiter at the root; skip it rather
			// than failing files that are otherwise readable.
			return nil, nil
		}
		path := ctx.loc.CurrentPath()
		if err := ctx.loc.EndSequence(); err != nil {
			return nil, err
		}
		return SequenceDelimiterPart{Path: path}, nil

	case ItemDelimitationTag:
		path := ctx.loc.CurrentPath()
		if err := ctx.loc.EndItem(); err != nil {
			return nil, err
		}
		return SequenceItemDelimiterPart{Path: path}, nil

	case ItemTag:
		if err := ctx.loc.AddItem(header.Length, ctx.stream.BytesRead()); err != nil {
			return nil, err
		}
		return SequenceItemStartPart{Length: header.Length, Path: ctx.loc.CurrentPath()}, nil
	}

	isSequence := header.VR == SQVR
	isCP246UndefinedUN := header.VR == UNVR && !header.Length.IsDefined()
	isEncapsulatedPixelData := header.Tag == PixelDataTag && !header.Length.IsDefined()

	if isSequence || isCP246UndefinedUN {
		if ctx.loc.Depth() >= ctx.config.MaxSequenceDepth {
			return nil, newError(MaximumExceeded, ctx.loc.CurrentPath(), ctx.stream.BytesRead(), "max sequence depth exceeded")
		}
		ctx.loc.AddSequence(header.Tag, header.Length, ctx.stream.BytesRead(), isCP246UndefinedUN)
		return SequenceStartPart{Tag: header.Tag, VR: header.VR, Length: header.Length, Path: ctx.loc.CurrentPath()}, nil
	}

	if isEncapsulatedPixelData {
		ctx.loc.AddSequence(header.Tag, header.Length, ctx.stream.BytesRead(), false)
		ctx.loc.MarkEncapsulatedPixelData()
		ctx.pixelItemIndex = 0
		return SequenceStartPart{Tag: header.Tag, VR: header.VR, Length: header.Length, Path: ctx.loc.CurrentPath(), IsEncapsulated: true}, nil
	}

	if ctx.requiresMaterialization(header.Tag, header.VR) {
		return ctx.readMaterializedValue(header)
	}

	n, _ := header.Length.Defined()
	ctx.pendingHeader = &header
	ctx.pendingRemaining = n
	ctx.action = actionReadDataElementValueBytes
	return DataElementHeaderPart{Tag: header.Tag, VR: header.VR, Length: header.Length, Path: ctx.loc.CurrentPath()}, nil
}

// requiresMaterialization reports whether tag's value must be read and decoded in full
// before any Part for it is emitted: either because the value itself
// drives later decoding (a clarifying tag, or a private creator string) or because its
// VR is textual and the current scope's character set isn't already UTF-8 compatible.
func (ctx *P10ReadContext) requiresMaterialization(tag Tag, vr *VR) bool {
	if isClarifyingTag(tag) {
		return true
	}
	return vr.IsString && !ctx.loc.CharacterSetDecoder().IsUTF8Compatible()
}

func isClarifyingTag(tag Tag) bool {
	switch tag {
	case SpecificCharacterSetTag, BitsAllocatedTag, PixelRepresentationTag, WaveformBitsStoredTag, WaveformBitsAllocatedTag:
		return true
	}
	return tag.IsPrivateCreator()
}

// readMaterializedValue reads a materialization-required value in full (never chunked),
// decodes it, and withholds its DataElementHeaderPart until the bytes are in
// hand so the emitted length reflects the value's final, transcoded byte length.
func (ctx *P10ReadContext) readMaterializedValue(header dataElementHeader) (Part, error) {
	n, ok := header.Length.Defined()
	if !ok {
		return nil, newError(DataInvalid, ctx.loc.CurrentPath(), ctx.stream.BytesRead(),
			fmt.Sprintf("%v has undefined length but requires materialization", header.Tag))
	}
	if n > uint32(ctx.config.MaxStringSize) {
		return nil, newError(MaximumExceeded, ctx.loc.CurrentPath(), ctx.stream.BytesRead(),
			fmt.Sprintf("%v value of %d bytes exceeds max_string_size", header.Tag, n))
	}

	raw, err := ctx.stream.Read(int(n))
	if err != nil {
		return nil, err
	}

	value := swapBytes(raw, ctx.ts.ByteOrder, header.VR.EndianSwapWidth)
	if header.VR.IsString {
		value = ctx.decodeStringValue(&header, value)
	}
	ctx.noteClarifyingElement(&header, value)

	if header.Tag == SpecificCharacterSetTag {
		// Downstream consumers see already-transcoded UTF-8 string values, so the
		// character set element itself is rewritten to say so.
		value = []byte(utf8SpecificCharacterSet)
	}
	value = padToEven(value, header.VR)

	ctx.pendingHeader = &header
	ctx.pendingMaterialized = value
	ctx.pendingIsMaterialized = true
	ctx.action = actionReadDataElementValueBytes
	return DataElementHeaderPart{Tag: header.Tag, VR: header.VR, Length: LengthFromUint32(uint32(len(value))), Path: ctx.loc.CurrentPath()}, nil
}

// utf8SpecificCharacterSet is the defined term for UTF-8, stored in place of whatever
// SpecificCharacterSet a file declared once its string values have been transcoded.
const utf8SpecificCharacterSet = "ISO_IR 192"

// padToEven pads b to even length with the VR's padding byte; DICOM values always have
// even byte length and transcoding can produce an odd one.
func padToEven(b []byte, vr *VR) []byte {
	if len(b)%2 == 0 {
		return b
	}
	pad, ok := vr.Padding()
	if !ok {
		pad = nullPad
	}
	return append(b, pad)
}

func (ctx *P10ReadContext) readValueBytesChunk() (Part, error) {
	header := ctx.pendingHeader

	if ctx.pendingIsMaterialized {
		value := ctx.pendingMaterialized
		ctx.pendingMaterialized = nil
		ctx.pendingIsMaterialized = false
		ctx.pendingHeader = nil
		ctx.action = actionReadDataElementHeader
		return DataElementValueBytesPart{Tag: header.Tag, VR: header.VR, Bytes: value, Final: true}, nil
	}

	chunk := ctx.pendingRemaining
	if chunk > uint32(ctx.config.MaxPartSize) {
		chunk = uint32(ctx.config.MaxPartSize)
	}

	raw, err := ctx.stream.Read(int(chunk))
	if err != nil {
		return nil, err
	}
	ctx.pendingRemaining -= chunk
	final := ctx.pendingRemaining == 0

	value := swapBytes(raw, ctx.ts.ByteOrder, header.VR.EndianSwapWidth)

	if final {
		ctx.pendingHeader = nil
		ctx.action = actionReadDataElementHeader
	}

	return DataElementValueBytesPart{
		Tag: header.Tag, VR: header.VR, Bytes: value,
		BytesRemaining: ctx.pendingRemaining, Final: final,
	}, nil
}

// decodeStringValue applies SpecificCharacterSet decoding (for encoded string VRs) or
// the default-repertoire sanitize pass (for the other string VRs) to a value's bytes,
// once the value has been read in full. Trailing null and space padding is trimmed
// after decoding; padToEven restores a single padding byte if the result is odd.
func (ctx *P10ReadContext) decodeStringValue(header *dataElementHeader, value []byte) []byte {
	s := string(value)

	if header.VR.IsEncodedString {
		decoder := ctx.loc.CharacterSetDecoder()
		if header.VR == PNVR {
			s = decoder.DecodePersonName(s)
		} else {
			s = decoder.DecodeMultiValue(s)
		}
	} else if nonEncodedSanitizeVRs[header.VR] {
		s = sanitizeNonEncoded(s)
	}

	for len(s) > 0 && (s[len(s)-1] == 0x00 || s[len(s)-1] == 0x20) {
		s = s[:len(s)-1]
	}
	return []byte(s)
}

func (ctx *P10ReadContext) noteClarifyingElement(header *dataElementHeader, value []byte) {
	switch header.Tag {
	case SpecificCharacterSetTag, BitsAllocatedTag, PixelRepresentationTag, WaveformBitsStoredTag, WaveformBitsAllocatedTag:
	default:
		if !header.Tag.IsPrivateCreator() {
			return
		}
	}

	var strValues []string
	if header.VR.IsString {
		strValues = splitBackslash(string(value))
	}
	var u16 uint16
	hasU16 := false
	if len(value) >= 2 {
		u16 = nativeByteOrder.Uint16(value[:2])
		hasU16 = true
	}
	_ = ctx.loc.NoteClarifyingElement(header.Tag, strValues, u16, hasU16)
}

func (ctx *P10ReadContext) readPixelDataItemHeader() (Part, error) {
	tagBytes, err := ctx.stream.Read(4)
	if err != nil {
		return nil, err
	}
	tag := tagFromBytes(tagBytes, ctx.ts.ByteOrder)

	if tag == SequenceDelimitationTag {
		lengthBytes, err := ctx.stream.Read(4)
		if err != nil {
			return nil, err
		}
		_ = ctx.ts.ByteOrder.Uint32(lengthBytes)
		path := ctx.loc.CurrentPath()
		if err := ctx.loc.EndSequence(); err != nil {
			return nil, err
		}
		return SequenceDelimiterPart{Path: path}, nil
	}
	if tag != ItemTag {
		return nil, newError(DataInvalid, ctx.loc.CurrentPath(), ctx.stream.BytesRead(),
			fmt.Sprintf("expected item or sequence delimiter tag in encapsulated pixel data, got %v", tag))
	}

	lengthBytes, err := ctx.stream.Read(4)
	if err != nil {
		return nil, err
	}
	ctx.pixelItemRemaining = ctx.ts.ByteOrder.Uint32(lengthBytes)
	ctx.action = actionReadPixelDataItem
	return nil, nil
}

func (ctx *P10ReadContext) readPixelDataItemChunk() (Part, error) {
	n := ctx.pixelItemRemaining
	if max := uint32(ctx.config.MaxPartSize); n > max {
		n = max
	}
	b, err := ctx.stream.Read(int(n))
	if err != nil {
		return nil, err
	}
	ctx.pixelItemRemaining -= n

	index := ctx.pixelItemIndex
	isBOT := index == 0
	final := ctx.pixelItemRemaining == 0
	if final {
		ctx.pixelItemIndex++
		ctx.action = actionReadDataElementHeader
	}

	return PixelDataItemPart{Index: index, IsBasicOffsetTable: isBOT, Bytes: b, Final: final, Path: ctx.loc.CurrentPath()}, nil
}

// swapBytes endian-swaps raw, unit-width bytes at a time, converting from the transfer
// syntax's own byte order to nativeByteOrder (little endian). A width of 0 or 1 (no
// multi-byte words) or an already-little-endian order is a no-op.
func swapBytes(raw []byte, order binary.ByteOrder, width int) []byte {
	if width <= 1 || order == nativeByteOrder {
		return raw
	}
	out := make([]byte, len(raw))
	for i := 0; i+width <= len(raw); i += width {
		for j := 0; j < width; j++ {
			out[i+j] = raw[i+width-1-j]
		}
	}
	return out
}

func trimUITrailingPad(b []byte) string {
	s := string(b)
	for len(s) > 0 && (s[len(s)-1] == 0x00 || s[len(s)-1] == 0x20) {
		s = s[:len(s)-1]
	}
	return s
}
