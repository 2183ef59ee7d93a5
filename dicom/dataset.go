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

import "sort"

// DataElementValue is the materialized value of a data element, as rematerialized by
// DataSetBuilder from a Part stream. It is one of: Binary (the common case: a flat byte
// slice, for numeric and string VRs alike, since this package does not interpret the
// bytes of string VRs beyond the charset decoding done during the read),
// LookupTableDescriptor, EncapsulatedPixelData, or Sequence.
type DataElementValue struct {
	Binary                *BinaryValue
	LookupTableDescriptor *LookupTableDescriptorValue
	EncapsulatedPixelData *EncapsulatedPixelDataValue
	Sequence              *SequenceValue
}

// BinaryValue is a data element's value as raw, native-byte-order bytes, already
// endian-swapped to native order during materialization if its VR carries a
// multi-byte EndianSwapWidth. Encoded string VRs have had SpecificCharacterSet
// decoding applied and are stored as their UTF-8 bytes.
type BinaryValue struct {
	VR    *VR
	Bytes []byte
}

// LookupTableDescriptorValue is LUTDescriptor's three-value form: the defined number of
// entries in the table (whose on-the-wire 0 means 65536), the first input value mapped,
// and the LUT's output bit depth. The first and last words are always unsigned; the
// middle word is signed iff VR is SS (the element's US/SS ambiguity resolved by
// PixelRepresentation), so FirstInputValue may be negative only then.
type LookupTableDescriptorValue struct {
	VR              *VR
	NumberOfEntries int
	FirstInputValue int32
	BitsPerEntry    uint16
}

// EncapsulatedPixelDataValue is an encapsulated PixelData element's fragments, as
// emitted by PixelDataItemPart: BasicOffsetTable holds item 0 (possibly empty), and
// Fragments holds the frame fragments that follow it, in encoded order.
type EncapsulatedPixelDataValue struct {
	BasicOffsetTable []byte
	Fragments        [][]byte
}

// SequenceValue is a sequence's items, each a nested DataSet.
type SequenceValue struct {
	Items []*DataSet
}

// DataSet is an in-memory DICOM data set: data elements keyed by Tag, iterable in
// ascending tag order as PS3.5 requires a conformant data set to be encoded.
type DataSet struct {
	elements map[Tag]DataElementValue
}

// NewDataSet returns an empty DataSet.
func NewDataSet() *DataSet {
	return &DataSet{elements: map[Tag]DataElementValue{}}
}

// Set stores value under tag, replacing any previous value for that tag.
func (d *DataSet) Set(tag Tag, value DataElementValue) {
	if d.elements == nil {
		d.elements = map[Tag]DataElementValue{}
	}
	d.elements[tag] = value
}

// Get returns the value stored for tag, if any.
func (d *DataSet) Get(tag Tag) (DataElementValue, bool) {
	v, ok := d.elements[tag]
	return v, ok
}

// Delete removes the value stored for tag, if any.
func (d *DataSet) Delete(tag Tag) {
	delete(d.elements, tag)
}

// Len returns the number of data elements in the data set.
func (d *DataSet) Len() int { return len(d.elements) }

// Tags returns the data set's tags in ascending order.
func (d *DataSet) Tags() []Tag {
	tags := make([]Tag, 0, len(d.elements))
	for t := range d.elements {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Each calls fn once per data element, in ascending tag order.
func (d *DataSet) Each(fn func(tag Tag, value DataElementValue)) {
	for _, tag := range d.Tags() {
		fn(tag, d.elements[tag])
	}
}

// strings decodes a BinaryValue's bytes as a backslash-delimited list of values, the
// representation every string VR uses on the wire. Trailing padding (space or null,
// per the VR's own padding rule) is trimmed from the final value.
func (v *BinaryValue) strings() []string {
	s := string(v.Bytes)
	if pad, ok := v.VR.Padding(); ok && len(s) > 0 && s[len(s)-1] == pad {
		s = s[:len(s)-1]
	}
	if s == "" {
		return nil
	}
	return splitBackslash(s)
}

func splitBackslash(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
