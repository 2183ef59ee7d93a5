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

// WriteParts serializes a DataSet into the same Part sequence P10ReadContext.ReadParts
// would produce for it, in ascending tag order. It is the inverse of DataSetBuilder: a
// DataSetBuilder fed the Parts WriteParts(ds) returns rematerializes a DataSet equal to
// ds.
//
// WriteParts does not itself emit FilePreambleAndDICMPrefixPart or
// FileMetaInformationPart; callers assemble those separately (they are handed File Meta
// Information values directly, not a data set traversal) before writing the Parts this
// function returns.
func WriteParts(ds *DataSet, path DataSetPath) []Part {
	var parts []Part
	ds.Each(func(tag Tag, v DataElementValue) {
		parts = append(parts, writeElement(tag, v, path)...)
	})
	parts = append(parts, EndPart{})
	return parts
}

func writeElement(tag Tag, v DataElementValue, path DataSetPath) []Part {
	elementPath := path.push(dataElementEntry(tag))

	switch {
	case v.Sequence != nil:
		return writeSequence(tag, v.Sequence, elementPath)
	case v.EncapsulatedPixelData != nil:
		return writeEncapsulatedPixelData(tag, v.EncapsulatedPixelData, elementPath)
	case v.LookupTableDescriptor != nil:
		return writeLookupTableDescriptor(tag, v.LookupTableDescriptor, elementPath)
	case v.Binary != nil:
		return writeBinary(tag, v.Binary, elementPath)
	default:
		return nil
	}
}

func writeBinary(tag Tag, v *BinaryValue, path DataSetPath) []Part {
	length := DefinedLength(uint32(len(v.Bytes)))
	return []Part{
		DataElementHeaderPart{Tag: tag, VR: v.VR, Length: length, Path: path},
		DataElementValueBytesPart{Tag: tag, VR: v.VR, Bytes: v.Bytes, Final: true},
	}
}

func writeLookupTableDescriptor(tag Tag, v *LookupTableDescriptorValue, path DataSetPath) []Part {
	vr := v.VR
	if vr == nil {
		vr = USVR
	}
	bytes := make([]byte, 6)
	entries := uint16(v.NumberOfEntries)
	if v.NumberOfEntries == 65536 {
		entries = 0
	}
	nativeByteOrder.PutUint16(bytes[0:2], entries)
	// uint16 truncation of the int32 re-encodes both the signed (SS) and unsigned (US)
	// interpretations of the middle word to the same two's-complement wire bytes.
	nativeByteOrder.PutUint16(bytes[2:4], uint16(v.FirstInputValue))
	nativeByteOrder.PutUint16(bytes[4:6], v.BitsPerEntry)
	return []Part{
		DataElementHeaderPart{Tag: tag, VR: vr, Length: DefinedLength(6), Path: path},
		DataElementValueBytesPart{Tag: tag, VR: vr, Bytes: bytes, Final: true},
	}
}

func writeSequence(tag Tag, v *SequenceValue, path DataSetPath) []Part {
	parts := []Part{
		SequenceStartPart{Tag: tag, VR: SQVR, Length: UndefinedValueLength, Path: path},
	}
	for i, item := range v.Items {
		itemPath := path.push(sequenceItemEntry(i))
		parts = append(parts, SequenceItemStartPart{Length: UndefinedValueLength, Path: itemPath})
		item.Each(func(itemTag Tag, itemValue DataElementValue) {
			parts = append(parts, writeElement(itemTag, itemValue, itemPath)...)
		})
		parts = append(parts, SequenceItemDelimiterPart{Path: itemPath})
	}
	parts = append(parts, SequenceDelimiterPart{Path: path})
	return parts
}

func writeEncapsulatedPixelData(tag Tag, v *EncapsulatedPixelDataValue, path DataSetPath) []Part {
	parts := []Part{
		SequenceStartPart{Tag: tag, VR: OBVR, Length: UndefinedValueLength, Path: path, IsEncapsulated: true},
		PixelDataItemPart{Index: 0, IsBasicOffsetTable: true, Bytes: v.BasicOffsetTable, Final: true, Path: path},
	}
	for i, fragment := range v.Fragments {
		parts = append(parts, PixelDataItemPart{Index: i + 1, Bytes: fragment, Final: true, Path: path})
	}
	parts = append(parts, SequenceDelimiterPart{Path: path})
	return parts
}

// WriteDataSetBytes serializes ds to raw P10 data set bytes (everything after File Meta
// Information) under the given transfer syntax, by driving WriteParts through a
// part-to-bytes encoder. Sequences and items are always written in undefined-length
// (delimited) form. Deflated transfer syntaxes are rejected: this package decodes but
// does not produce deflate streams.
func WriteDataSetBytes(ds *DataSet, tsUID string) ([]byte, error) {
	ts := lookupTransferSyntax(tsUID)
	if ts.IsDeflated {
		return nil, newError(DataInvalid, nil, 0, "writing a deflated transfer syntax is not supported")
	}

	var out []byte
	for _, part := range WriteParts(ds, nil) {
		b, err := encodePart(part, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// encodePart encodes one Part to its wire bytes. Value bytes arrive little endian (the
// Part stream contract) and are swapped back into the transfer syntax's own byte order
// on the way out.
func encodePart(part Part, ts transferSyntax) ([]byte, error) {
	switch p := part.(type) {
	case DataElementHeaderPart:
		return encodeHeader(p, ts), nil
	case DataElementValueBytesPart:
		bytes := p.Bytes
		if ts.ByteOrder == binary.BigEndian && p.VR != nil {
			bytes = swapBytes(bytes, ts.ByteOrder, p.VR.EndianSwapWidth)
		}
		return bytes, nil
	case SequenceStartPart:
		return encodeHeader(DataElementHeaderPart{Tag: p.Tag, VR: p.VR, Length: UndefinedValueLength}, ts), nil
	case SequenceItemStartPart:
		return encodeSentinel(ItemTag, UndefinedLength, ts), nil
	case SequenceItemDelimiterPart:
		return encodeSentinel(ItemDelimitationTag, 0, ts), nil
	case SequenceDelimiterPart:
		return encodeSentinel(SequenceDelimitationTag, 0, ts), nil
	case PixelDataItemPart:
		// WriteParts always emits whole (Final) fragments, so each PixelDataItemPart
		// carries the full item and its header length is simply len(Bytes).
		out := encodeSentinel(ItemTag, uint32(len(p.Bytes)), ts)
		return append(out, p.Bytes...), nil
	case EndPart:
		return nil, nil
	default:
		return nil, newError(DataInvalid, nil, 0, fmt.Sprintf("part type %T not supported by the writer", part))
	}
}

// encodeSentinel encodes one of the structural sentinel tags (Item, Item Delimitation,
// Sequence Delimitation), which always use the 8-byte implicit layout.
func encodeSentinel(tag Tag, length uint32, ts transferSyntax) []byte {
	out := make([]byte, 8)
	ts.ByteOrder.PutUint16(out[0:2], tag.Group())
	ts.ByteOrder.PutUint16(out[2:4], tag.Element())
	ts.ByteOrder.PutUint32(out[4:8], length)
	return out
}

func encodeHeader(p DataElementHeaderPart, ts transferSyntax) []byte {
	var out []byte
	tagBytes := make([]byte, 4)
	ts.ByteOrder.PutUint16(tagBytes[0:2], p.Tag.Group())
	ts.ByteOrder.PutUint16(tagBytes[2:4], p.Tag.Element())
	out = append(out, tagBytes...)

	if ts.Implicit() {
		lengthBytes := make([]byte, 4)
		ts.ByteOrder.PutUint32(lengthBytes, p.Length.ToUint32())
		return append(out, lengthBytes...)
	}

	out = append(out, p.VR.Name...)
	switch p.VR.LengthClass {
	case U16LengthClass:
		lengthBytes := make([]byte, 2)
		ts.ByteOrder.PutUint16(lengthBytes, uint16(p.Length.ToUint32()))
		out = append(out, lengthBytes...)
	case U32LengthClass:
		out = append(out, 0, 0) // reserved
		lengthBytes := make([]byte, 4)
		ts.ByteOrder.PutUint32(lengthBytes, p.Length.ToUint32())
		out = append(out, lengthBytes...)
	}
	return out
}
