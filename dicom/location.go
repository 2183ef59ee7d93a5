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
	"github.com/dicomstream/p10codec/internal/registry"
)

// scopeKind distinguishes the three nesting levels a Location stack can hold.
type scopeKind int

const (
	rootScope scopeKind = iota
	sequenceScope
	sequenceItemScope
)

// noEndOffset marks a scope of undefined length: it closes on its delimiter rather than
// on reaching a byte offset.
const noEndOffset = -1

// scope is one level of Location's nesting stack. Clarifying data elements
// (SpecificCharacterSet, BitsAllocated, PixelRepresentation, the Waveform bit-depth
// pair) are tracked per scope because a nested sequence item may redeclare them with a
// different value that should not leak back out once the item closes.
type scope struct {
	kind  scopeKind
	tag   Tag // the sequence's tag; zero for rootScope
	index int // this item's index within its parent sequence; meaningless elsewhere

	endsAt                  int64 // byte offset (ByteStream.BytesRead) at which this scope closes; noEndOffset if undefined
	forcedImplicitVR        bool  // CP-246: a UN element of undefined length forces Implicit VR LE for its contents
	isEncapsulatedPixelData bool  // sequenceScope only: PixelData's fragment stream rather than an item sequence

	characterSetDecoder   *CharacterSetDecoder
	bitsAllocated         *uint16
	pixelRepresentation   *uint16
	waveformBitsStored    *uint16
	waveformBitsAllocated *uint16

	// privateCreators maps a private block's element-number high byte to the creator
	// string that claimed it, per PS3.5 7.8.1.
	privateCreators map[byte]string

	itemCount int // sequenceScope only: number of items opened so far
}

// Location is the nesting state machine a P10ReadContext consults while streaming: which
// scope (root data set, a sequence, or a sequence item) is currently open, when that
// scope implicitly ends, which character set and pixel-layout elements are in force, and
// how an implicit-VR or ambiguous-VR tag's VR should be inferred.
type Location struct {
	stack []*scope
	path  DataSetPath
}

// NewLocation returns a Location positioned at the root data set.
func NewLocation() *Location {
	return &Location{
		stack: []*scope{{kind: rootScope, endsAt: noEndOffset, characterSetDecoder: DefaultCharacterSetDecoder()}},
	}
}

func (l *Location) top() *scope { return l.stack[len(l.stack)-1] }

// CurrentPath returns the DataSetPath of the scope currently open.
func (l *Location) CurrentPath() DataSetPath { return l.path }

// Depth returns the number of nested sequences currently open (the root scope doesn't
// count), the quantity a max_sequence_depth limit is compared against.
func (l *Location) Depth() int {
	depth := 0
	for _, s := range l.stack {
		if s.kind == sequenceScope {
			depth++
		}
	}
	return depth
}

// AddSequence pushes a sequence scope for tag, opened by a header of the given length at
// a body that starts at bodyOffset (ByteStream.BytesRead once the header itself has been
// consumed).
func (l *Location) AddSequence(tag Tag, length ValueLength, bodyOffset int64, forcedImplicitVR bool) {
	endsAt := int64(noEndOffset)
	if n, ok := length.Defined(); ok {
		endsAt = bodyOffset + int64(n)
	}
	parent := l.top()
	s := &scope{
		kind:                  sequenceScope,
		tag:                   tag,
		endsAt:                endsAt,
		forcedImplicitVR:      forcedImplicitVR || parent.forcedImplicitVR,
		characterSetDecoder:   parent.characterSetDecoder,
		bitsAllocated:         parent.bitsAllocated,
		pixelRepresentation:   parent.pixelRepresentation,
		waveformBitsStored:    parent.waveformBitsStored,
		waveformBitsAllocated: parent.waveformBitsAllocated,
	}
	l.stack = append(l.stack, s)
	l.path = l.path.push(dataElementEntry(tag))
}

// EndSequence pops the innermost sequence scope. It is an error to call this while a
// sequence item is still open, or when no sequence scope is open.
func (l *Location) EndSequence() error {
	if l.top().kind != sequenceScope {
		return newError(DataInvalid, l.path, 0, "EndSequence called while not directly inside a sequence")
	}
	l.stack = l.stack[:len(l.stack)-1]
	l.path = l.path.pop()
	return nil
}

// AddItem pushes a sequence item scope, opened by an item header of the given length at
// a body that starts at bodyOffset.
func (l *Location) AddItem(length ValueLength, bodyOffset int64) error {
	parent := l.top()
	if parent.kind != sequenceScope {
		return newError(DataInvalid, l.path, 0, "AddItem called while not directly inside a sequence")
	}
	endsAt := int64(noEndOffset)
	if n, ok := length.Defined(); ok {
		endsAt = bodyOffset + int64(n)
	}
	index := parent.itemCount
	parent.itemCount++
	s := &scope{
		kind:                  sequenceItemScope,
		index:                 index,
		endsAt:                endsAt,
		forcedImplicitVR:      parent.forcedImplicitVR,
		characterSetDecoder:   parent.characterSetDecoder,
		bitsAllocated:         parent.bitsAllocated,
		pixelRepresentation:   parent.pixelRepresentation,
		waveformBitsStored:    parent.waveformBitsStored,
		waveformBitsAllocated: parent.waveformBitsAllocated,
	}
	l.stack = append(l.stack, s)
	l.path = l.path.push(sequenceItemEntry(index))
	return nil
}

// EndItem pops the innermost sequence item scope.
func (l *Location) EndItem() error {
	if l.top().kind != sequenceItemScope {
		return newError(DataInvalid, l.path, 0, "EndItem called while not directly inside a sequence item")
	}
	l.stack = l.stack[:len(l.stack)-1]
	l.path = l.path.pop()
	return nil
}

// MarkEncapsulatedPixelData flags the innermost (just-pushed) sequence scope as
// PixelData's fragment stream rather than an ordinary item sequence: its children are
// raw fragments (PixelDataItemPart), never SequenceItemStartPart-delimited DataSets.
func (l *Location) MarkEncapsulatedPixelData() { l.top().isEncapsulatedPixelData = true }

// IsEncapsulatedPixelDataScope reports whether the current scope is PixelData's
// fragment stream.
func (l *Location) IsEncapsulatedPixelDataScope() bool {
	return l.top().kind == sequenceScope && l.top().isEncapsulatedPixelData
}

// InSequence reports whether the current scope is a sequence (so a sequence delimiter
// tag is legal here).
func (l *Location) InSequence() bool { return l.top().kind == sequenceScope }

// IsImplicitVRForced reports whether the current scope's contents must be parsed as
// Implicit VR Little Endian regardless of the data set's own transfer syntax: CP-246's
// rule for a UN element of undefined length that turns out to hold a sequence.
func (l *Location) IsImplicitVRForced() bool { return l.top().forcedImplicitVR }

// PendingDelimiterParts reports how many implicit (wire-absent) delimiter Parts should
// be emitted because offset has reached or passed the defined-length end of the
// innermost scope(s). Defined-length sequences and items never carry a delimiter tag on
// the wire, so P10ReadContext must synthesize SequenceDelimiterPart/
// SequenceItemDelimiterPart Parts once bytes consumed reach their declared end.
func (l *Location) PendingDelimiterParts(offset int64) int {
	n := 0
	for i := len(l.stack) - 1; i > 0; i-- {
		s := l.stack[i]
		if s.endsAt == noEndOffset || offset < s.endsAt {
			break
		}
		n++
	}
	return n
}

// NextDelimiterPart pops the innermost scope whose defined length has been reached and
// reports which delimiter Part corresponds to it. Callers should keep calling this (and
// emitting the Part it returns) until PendingDelimiterParts(offset) is 0.
func (l *Location) NextDelimiterPart(offset int64) (Part, error) {
	s := l.top()
	if s.endsAt == noEndOffset || offset < s.endsAt {
		return nil, newError(DataInvalid, l.path, offset, "NextDelimiterPart called with nothing pending")
	}
	path := l.path
	switch s.kind {
	case sequenceItemScope:
		if err := l.EndItem(); err != nil {
			return nil, err
		}
		return SequenceItemDelimiterPart{Path: path}, nil
	case sequenceScope:
		if err := l.EndSequence(); err != nil {
			return nil, err
		}
		return SequenceDelimiterPart{Path: path}, nil
	default:
		return nil, newError(DataInvalid, l.path, offset, "NextDelimiterPart called at root scope")
	}
}

// NoteClarifyingElement records the value of a data element that affects how later
// elements in the same scope are decoded: SpecificCharacterSet, BitsAllocated,
// PixelRepresentation, the Waveform bit-depth pair, and private creator identifiers.
// Elements other than these are ignored.
func (l *Location) NoteClarifyingElement(tag Tag, stringValues []string, uint16Value uint16, hasUint16 bool) error {
	s := l.top()
	switch tag {
	case SpecificCharacterSetTag:
		d, err := NewCharacterSetDecoder(stringValues)
		if err != nil {
			return err
		}
		s.characterSetDecoder = d
	case BitsAllocatedTag:
		if hasUint16 {
			s.bitsAllocated = &uint16Value
		}
	case PixelRepresentationTag:
		if hasUint16 {
			s.pixelRepresentation = &uint16Value
		}
	case WaveformBitsStoredTag:
		if hasUint16 {
			s.waveformBitsStored = &uint16Value
		}
	case WaveformBitsAllocatedTag:
		if hasUint16 {
			s.waveformBitsAllocated = &uint16Value
		}
	default:
		if tag.IsPrivateCreator() {
			if s.privateCreators == nil {
				s.privateCreators = map[byte]string{}
			}
			if len(stringValues) > 0 {
				s.privateCreators[byte(tag.Element())] = stringValues[0]
			}
		}
	}
	return nil
}

// CharacterSetDecoder returns the decoder currently in force for the scope's string VR
// values.
func (l *Location) CharacterSetDecoder() *CharacterSetDecoder { return l.top().characterSetDecoder }

// privateCreatorFor resolves the private creator string that owns tag's private block,
// if a PrivateCreator element for that block has been seen in scope.
func (l *Location) privateCreatorFor(tag Tag) string {
	if !tag.IsPrivate() {
		return ""
	}
	s := l.top()
	if s.privateCreators == nil {
		return ""
	}
	return s.privateCreators[byte(tag.Element()>>8)]
}

// ambiguousUSSSTags switch between US and SS by PixelRepresentation (PS3.5 annex A's
// ambiguous-VR elements), including LUTDescriptor and the three palette color LUT
// descriptors.
var ambiguousUSSSTags = map[Tag]bool{
	Tag(registry.ZeroVelocityPixelValue):    true,
	Tag(registry.MappedPixelValue):          true,
	Tag(registry.LUTDescriptor):             true,
	Tag(registry.RedPaletteLUTDescriptor):   true,
	Tag(registry.GreenPaletteLUTDescriptor): true,
	Tag(registry.BluePaletteLUTDescriptor):  true,
	Tag(registry.SmallestValidPixelValue):   true,
	Tag(registry.LargestValidPixelValue):    true,
	Tag(registry.SmallestImagePixelValue):   true,
	Tag(registry.LargestImagePixelValue):    true,
	Tag(registry.SmallestSeriesPixelValue):  true,
	Tag(registry.LargestSeriesPixelValue):   true,
	Tag(registry.PixelPaddingValue):         true,
	Tag(registry.PixelPaddingRangeLimit):    true,
	Tag(registry.RealWorldValueFirstMapped): true,
	Tag(registry.RealWorldValueLastMapped):  true,
	Tag(registry.HistogramFirstBinValue):    true,
	Tag(registry.HistogramLastBinValue):     true,
}

// InferVR resolves the VR of a tag that carries none on the wire (Implicit VR Little
// Endian, or Explicit VR's two-space VR tolerance), consulting the dictionary and the
// clarifying elements noted so far for tags whose VR is genuinely data-dependent.
func (l *Location) InferVR(tag Tag) (*VR, error) {
	s := l.top()

	switch {
	case tag == Tag(registry.PixelData):
		// PixelData's {OB,OW} ambiguity resolves to OW whenever VR must be inferred;
		// Undefined-length encapsulated PixelData is handled upstream of InferVR.
		return OWVR, nil
	case ambiguousUSSSTags[tag]:
		if s.pixelRepresentation != nil && *s.pixelRepresentation != 0 {
			return SSVR, nil
		}
		return USVR, nil
	case tag == Tag(registry.ChannelMinimumValue) || tag == Tag(registry.ChannelMaximumValue):
		if s.waveformBitsStored != nil {
			if *s.waveformBitsStored == 16 {
				return OWVR, nil
			}
			return OBVR, nil
		}
		return UNVR, nil
	case tag == Tag(registry.WaveformPaddingValue) || tag == Tag(registry.WaveformData):
		if s.waveformBitsAllocated != nil {
			if *s.waveformBitsAllocated == 16 {
				return OWVR, nil
			}
			return OBVR, nil
		}
		return UNVR, nil
	case tag == Tag(registry.LUTData):
		return OWVR, nil
	case registry.IsOverlayDataTag(registry.Tag(tag)):
		// Only valid on Implicit VR Little Endian; the caller only reaches InferVR for
		// an implicit-VR or two-space-VR tag, so no further transfer-syntax check is
		// needed here.
		return OWVR, nil
	}

	entry, ok := registry.Find(registry.Tag(tag), l.privateCreatorFor(tag))
	if !ok || len(entry.AllowedVRs) == 0 {
		return UNVR, nil
	}
	if len(entry.AllowedVRs) == 1 {
		return LookupVR(entry.AllowedVRs[0])
	}
	// Any other multi-VR tag not covered by a named rule above falls back to UN.
	return UNVR, nil
}
