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

	"github.com/dicomstream/p10codec/internal/registry"
)

// nativeByteOrder is the byte order BinaryValue.Bytes are normalized to during
// materialization (readValueBytesChunk and readMaterializedValue swap into this order
// from the transfer syntax's own ByteOrder). Every platform this codec targets is little endian, so this
// is simply little endian rather than a runtime host-order probe.
var nativeByteOrder = binary.LittleEndian

// builderFrameKind distinguishes the three kinds of open scope a DataSetBuilder tracks.
type builderFrameKind int

const (
	dataSetFrame               builderFrameKind = iota // root data set, or a sequence item's data set
	sequenceFrame                                      // an open sequence, accumulating items
	encapsulatedPixelDataFrame                         // an open encapsulated PixelData's fragment stream
)

type builderFrame struct {
	kind builderFrameKind
	tag  Tag // the element this frame will be stored under in its parent, once closed

	dataSet *DataSet                    // dataSetFrame
	items   []*DataSet                  // sequenceFrame
	pixels  *EncapsulatedPixelDataValue // encapsulatedPixelDataFrame
}

// DataSetBuilder consumes a Part stream (as emitted by P10ReadContext.ReadParts) and
// rematerializes it as an in-memory DataSet. It mirrors the nesting the Part stream
// implies with its own stack of RootDataSet/Sequence/SequenceItem/
// EncapsulatedPixelDataSequence frames, exactly paralleling Location on the read side.
type DataSetBuilder struct {
	stack []*builderFrame

	preamble        *[128]byte
	metaInformation *DataSet

	pendingHeader *dataElementHeader
	pendingBytes  []byte

	pendingPixelBytes []byte
	pendingPixelIsBOT bool

	done bool
}

// NewDataSetBuilder returns a builder positioned at an empty root data set.
func NewDataSetBuilder() *DataSetBuilder {
	return &DataSetBuilder{
		stack: []*builderFrame{{kind: dataSetFrame, dataSet: NewDataSet()}},
	}
}

func (b *DataSetBuilder) top() *builderFrame { return b.stack[len(b.stack)-1] }

// AddPart feeds one Part into the builder. Parts must arrive in the order
// P10ReadContext.ReadParts produces them; AddPart returns PartStreamInvalid if fed a Part
// that violates the nesting invariants (e.g. a SequenceDelimiterPart while not inside a
// sequence).
func (b *DataSetBuilder) AddPart(part Part) error {
	if b.done {
		return newError(PartStreamInvalid, nil, 0, "AddPart called after End")
	}

	switch p := part.(type) {
	case FilePreambleAndDICMPrefixPart:
		preamble := p.Preamble
		b.preamble = &preamble
		return nil

	case FileMetaInformationPart:
		b.metaInformation = p.MetaInformation
		return nil

	case DataElementHeaderPart:
		b.pendingHeader = &dataElementHeader{Tag: p.Tag, VR: p.VR, Length: p.Length}
		b.pendingBytes = nil
		return nil

	case DataElementValueBytesPart:
		if b.pendingHeader == nil || b.pendingHeader.Tag != p.Tag {
			return newError(PartStreamInvalid, nil, 0, "DataElementValueBytesPart with no matching header")
		}
		b.pendingBytes = append(b.pendingBytes, p.Bytes...)
		if p.Final {
			b.storeElement(b.pendingHeader.Tag, b.pendingHeader.VR, b.pendingBytes)
			b.pendingHeader = nil
			b.pendingBytes = nil
		}
		return nil

	case SequenceStartPart:
		if p.IsEncapsulated {
			b.stack = append(b.stack, &builderFrame{
				kind: encapsulatedPixelDataFrame, tag: p.Tag, pixels: &EncapsulatedPixelDataValue{},
			})
			return nil
		}
		b.stack = append(b.stack, &builderFrame{kind: sequenceFrame, tag: p.Tag})
		return nil

	case SequenceDelimiterPart:
		return b.closeSequence()

	case SequenceItemStartPart:
		if b.top().kind != sequenceFrame {
			return newError(PartStreamInvalid, p.Path, 0, "SequenceItemStartPart while not directly inside a sequence")
		}
		b.stack = append(b.stack, &builderFrame{kind: dataSetFrame, dataSet: NewDataSet()})
		return nil

	case SequenceItemDelimiterPart:
		return b.closeItem()

	case PixelDataItemPart:
		if b.top().kind != encapsulatedPixelDataFrame {
			return newError(PartStreamInvalid, p.Path, 0, "PixelDataItemPart while not inside encapsulated pixel data")
		}
		b.pendingPixelBytes = append(b.pendingPixelBytes, p.Bytes...)
		b.pendingPixelIsBOT = p.IsBasicOffsetTable
		if p.Final {
			if b.pendingPixelIsBOT {
				b.top().pixels.BasicOffsetTable = b.pendingPixelBytes
			} else {
				b.top().pixels.Fragments = append(b.top().pixels.Fragments, b.pendingPixelBytes)
			}
			b.pendingPixelBytes = nil
		}
		return nil

	case EndPart:
		if len(b.stack) != 1 {
			return newError(PartStreamInvalid, nil, 0, "EndPart received with open sequences or items remaining")
		}
		if err := b.validateOffsetTables(); err != nil {
			return err
		}
		b.done = true
		return nil
	}

	return newError(PartStreamInvalid, nil, 0, "unrecognized part type")
}

func (b *DataSetBuilder) closeSequence() error {
	frame := b.top()
	var value DataElementValue
	switch frame.kind {
	case sequenceFrame:
		value = DataElementValue{Sequence: &SequenceValue{Items: frame.items}}
	case encapsulatedPixelDataFrame:
		value = DataElementValue{EncapsulatedPixelData: frame.pixels}
	default:
		return newError(PartStreamInvalid, nil, 0, "SequenceDelimiterPart while not inside a sequence")
	}
	b.stack = b.stack[:len(b.stack)-1]
	b.top().dataSet.Set(frame.tag, value)
	return nil
}

func (b *DataSetBuilder) closeItem() error {
	frame := b.top()
	if frame.kind != dataSetFrame || len(b.stack) < 2 {
		return newError(PartStreamInvalid, nil, 0, "SequenceItemDelimiterPart while not inside a sequence item")
	}
	b.stack = b.stack[:len(b.stack)-1]
	parent := b.top()
	if parent.kind != sequenceFrame {
		return newError(PartStreamInvalid, nil, 0, "sequence item closed outside of a sequence")
	}
	parent.items = append(parent.items, frame.dataSet)
	return nil
}

func (b *DataSetBuilder) storeElement(tag Tag, vr *VR, bytes []byte) {
	if registry.IsLUTDescriptorTag(registry.Tag(tag)) && len(bytes) >= 6 {
		order := nativeByteOrder
		entries := order.Uint16(bytes[0:2])
		n := int(entries)
		if entries == 0 {
			n = 65536
		}
		// The outer two words are always unsigned; the middle word is signed only
		// when the element's resolved VR is SS.
		first := int32(order.Uint16(bytes[2:4]))
		if vr == SSVR {
			first = int32(int16(order.Uint16(bytes[2:4])))
		}
		b.top().dataSet.Set(tag, DataElementValue{LookupTableDescriptor: &LookupTableDescriptorValue{
			VR:              vr,
			NumberOfEntries: n,
			FirstInputValue: first,
			BitsPerEntry:    order.Uint16(bytes[4:6]),
		}})
		return
	}
	b.top().dataSet.Set(tag, DataElementValue{Binary: &BinaryValue{VR: vr, Bytes: bytes}})
}

// validateOffsetTables enforces the PS3.5 A.4 rule that an ExtendedOffsetTable element
// replaces the Basic Offset Table: when both carry data the file is ambiguous about
// fragment-to-frame assignment and is rejected.
func (b *DataSetBuilder) validateOffsetTables() error {
	ds := b.stack[0].dataSet
	if _, ok := ds.Get(ExtendedOffsetTableTag); !ok {
		return nil
	}
	pixelData, ok := ds.Get(PixelDataTag)
	if !ok || pixelData.EncapsulatedPixelData == nil {
		return nil
	}
	if len(pixelData.EncapsulatedPixelData.BasicOffsetTable) > 0 {
		return newError(DataInvalid, nil, 0,
			"extended offset table must not coexist with a non-empty basic offset table")
	}
	return nil
}

// ForceEnd closes every open sequence and sequence item frame in innermost-first order
// and returns the data set assembled so far, without requiring a well-formed EndPart.
// Used when a stream is abandoned partway through (e.g. the caller only wants the first
// few elements) and the builder's partial result is still useful.
func (b *DataSetBuilder) ForceEnd() *DataSet {
	for len(b.stack) > 1 {
		if b.top().kind == dataSetFrame {
			_ = b.closeItem()
		} else {
			_ = b.closeSequence()
		}
	}
	b.done = true
	return b.stack[0].dataSet
}

// DataSet returns the assembled data set. It is only meaningful once AddPart has been
// called with an EndPart (or ForceEnd has been called).
func (b *DataSetBuilder) DataSet() *DataSet { return b.stack[0].dataSet }

// Preamble returns the 128-byte file preamble, if a FilePreambleAndDICMPrefixPart was
// seen.
func (b *DataSetBuilder) Preamble() ([128]byte, bool) {
	if b.preamble == nil {
		return [128]byte{}, false
	}
	return *b.preamble, true
}

// MetaInformation returns the File Meta Information data set, if a
// FileMetaInformationPart was seen.
func (b *DataSetBuilder) MetaInformation() (*DataSet, bool) {
	return b.metaInformation, b.metaInformation != nil
}
