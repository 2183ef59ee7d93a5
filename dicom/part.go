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

// Part is one emission of the streaming P10 read/write pipeline: P10ReadContext.ReadParts
// yields a sequence of Parts in the strict order a valid P10 byte stream implies, and
// WriteParts consumes the same sequence to serialize a DataSet back to bytes.
//
// Concrete Part variants are listed below; callers typically switch on the concrete type.
type Part interface {
	isPart()
}

// FilePreambleAndDICMPrefixPart carries the 128-byte file preamble and the following
// 4-byte "DICM" magic that opens every P10 stream.
type FilePreambleAndDICMPrefixPart struct {
	Preamble [128]byte
}

func (FilePreambleAndDICMPrefixPart) isPart() {}

// FileMetaInformationPart carries the fully-parsed File Meta Information group (0002,xxxx
// elements), always Explicit VR Little Endian regardless of the data set's own transfer
// syntax.
type FileMetaInformationPart struct {
	MetaInformation *DataSet
	TransferSyntax  TransferSyntaxUID
}

func (FileMetaInformationPart) isPart() {}

// TransferSyntaxUID is a resolved, supported transfer syntax UID string, carried
// alongside the raw File Meta Information so downstream consumers do not need to
// re-parse (0002,0010).
type TransferSyntaxUID string

// DataElementHeaderPart carries a data element's tag, VR, and value length, immediately
// preceding one or more DataElementValueBytesParts. Sequences and undefined-length UN
// elements get no header part; they open with a SequenceStartPart instead.
type DataElementHeaderPart struct {
	Tag    Tag
	VR     *VR
	Length ValueLength
	Path   DataSetPath
}

func (DataElementHeaderPart) isPart() {}

// DataElementValueBytesPart carries a chunk of a data element's value bytes, always in
// little-endian layout regardless of the source transfer syntax. A single data
// element's value may be split across multiple DataElementValueBytesParts;
// BytesRemaining counts the value bytes still to come after this chunk, and Final marks
// the chunk that completes the value (BytesRemaining == 0).
type DataElementValueBytesPart struct {
	Tag            Tag
	VR             *VR
	Bytes          []byte
	BytesRemaining uint32
	Final          bool
}

func (DataElementValueBytesPart) isPart() {}

// SequenceStartPart opens a sequence (SQ, or an undefined-length UN element that is
// reinterpreted as a sequence per DICOM CP-246).
type SequenceStartPart struct {
	Tag            Tag
	VR             *VR
	Length         ValueLength
	Path           DataSetPath
	IsEncapsulated bool // true for an encapsulated PixelData's fragment sequence
}

func (SequenceStartPart) isPart() {}

// SequenceDelimiterPart closes the innermost open sequence.
type SequenceDelimiterPart struct {
	Path DataSetPath
}

func (SequenceDelimiterPart) isPart() {}

// SequenceItemStartPart opens an item of the innermost open sequence.
type SequenceItemStartPart struct {
	Length ValueLength
	Path   DataSetPath
}

func (SequenceItemStartPart) isPart() {}

// SequenceItemDelimiterPart closes the innermost open sequence item.
type SequenceItemDelimiterPart struct {
	Path DataSetPath
}

func (SequenceItemDelimiterPart) isPart() {}

// PixelDataItemPart carries a chunk of one fragment of an encapsulated PixelData
// element: either the Basic Offset Table (Index 0, IsBasicOffsetTable true) or a
// compressed frame fragment. A single item's bytes may be split across multiple
// PixelDataItemParts when its length exceeds Config.MaxPartSize; Final marks the chunk
// that completes that item, mirroring DataElementValueBytesPart.
type PixelDataItemPart struct {
	Index              int
	IsBasicOffsetTable bool
	Bytes              []byte
	Final              bool
	Path               DataSetPath
}

func (PixelDataItemPart) isPart() {}

// EndPart is emitted exactly once, after the last Part of a complete, well-formed P10
// stream.
type EndPart struct{}

func (EndPart) isPart() {}
