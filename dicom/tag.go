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

	"github.com/dicomstream/p10codec/internal/registry"
)

// Tag is a unique identifier for a Data Element, composed of an ordered pair of
// 16-bit numbers called the group number and the element number as specified in
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_3.10.
//
// The most significant 16 bits are the group number; the least significant 16 bits are
// the element number.
type Tag uint32

// NewTag builds a Tag from its group and element components.
func NewTag(group, element uint16) Tag {
	return Tag(uint32(group)<<16 | uint32(element))
}

// Group returns the group number component of the Tag.
func (t Tag) Group() uint16 { return uint16(t >> 16) }

// Element returns the element number component of the Tag.
func (t Tag) Element() uint16 { return uint16(t) }

// IsPrivate reports whether the tag belongs to a private block (odd group number).
func (t Tag) IsPrivate() bool { return t.Group()%2 == 1 }

// IsPrivateCreator reports whether the tag identifies a private creator: a private tag
// whose element number falls in [0x10, 0xFF].
func (t Tag) IsPrivateCreator() bool {
	return t.IsPrivate() && t.Element() >= 0x10 && t.Element() <= 0xFF
}

// IsMetaInformation reports whether the tag belongs to group 0x0002, the File Meta
// Information group, which is always encoded Explicit VR Little Endian.
func (t Tag) IsMetaInformation() bool { return t.Group() == 0x0002 }

// String renders the tag in the canonical uppercase "(GGGG,EEEE)" form.
func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group(), t.Element())
}

func (t Tag) registryTag() registry.Tag { return registry.Tag(t) }

// Structural sentinel tags. Unlike ordinary data elements the first three carry no VR on
// the wire; they always use the 8-byte implicit header layout (tag + 32-bit length)
// regardless of the active transfer syntax's VR serialization. DataSetTrailingPaddingTag
// is an ordinary OB element and is decoded like one.
var (
	ItemTag                   = Tag(registry.Item)
	ItemDelimitationTag       = Tag(registry.ItemDelimitationItem)
	SequenceDelimitationTag   = Tag(registry.SequenceDelimitationItem)
	DataSetTrailingPaddingTag = Tag(registry.DataSetTrailingPadding)
)

// Well-known tags the codec consults by identity while decoding.
var (
	FileMetaInformationGroupLengthTag = Tag(registry.FileMetaInformationGroupLength)
	TransferSyntaxUIDTag              = Tag(registry.TransferSyntaxUID)
	SpecificCharacterSetTag           = Tag(registry.SpecificCharacterSet)
	PatientNameTag                    = Tag(registry.PatientName)
	RequestAttributesSequenceTag      = Tag(registry.RequestAttributesSequence)
	ValueTypeTag                      = Tag(registry.ValueType)
	BitsAllocatedTag                  = Tag(registry.BitsAllocated)
	PixelRepresentationTag            = Tag(registry.PixelRepresentation)
	WaveformBitsStoredTag             = Tag(registry.WaveformBitsStored)
	WaveformBitsAllocatedTag          = Tag(registry.WaveformBitsAllocated)
	PixelDataTag                      = Tag(registry.PixelData)
	ExtendedOffsetTableTag            = Tag(registry.ExtendedOffsetTable)
	ExtendedOffsetTableLengthsTag     = Tag(registry.ExtendedOffsetTableLens)
)
