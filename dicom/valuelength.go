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

import "strconv"

// UndefinedLength is the sentinel value, as specified in
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_7.1.1, that
// marks a data element's length field as undefined, requiring a delimiter to close it.
const UndefinedLength uint32 = 0xFFFFFFFF

// ValueLength is either a Defined byte count or Undefined, requiring a delimiter.
type ValueLength struct {
	defined bool
	value   uint32
}

// DefinedLength builds a defined ValueLength of n bytes. n must not equal
// UndefinedLength; callers that read n off the wire should use LengthFromUint32 instead,
// which performs that check.
func DefinedLength(n uint32) ValueLength {
	return ValueLength{defined: true, value: n}
}

// UndefinedValueLength is the Undefined ValueLength.
var UndefinedValueLength = ValueLength{defined: false}

// LengthFromUint32 converts a raw 32-bit length field into a ValueLength, yielding
// Undefined iff the input is exactly UndefinedLength.
func LengthFromUint32(raw uint32) ValueLength {
	if raw == UndefinedLength {
		return UndefinedValueLength
	}
	return ValueLength{defined: true, value: raw}
}

// IsDefined reports whether the length carries a concrete byte count.
func (l ValueLength) IsDefined() bool { return l.defined }

// Defined returns the concrete byte count and true, or (0, false) if Undefined.
func (l ValueLength) Defined() (uint32, bool) {
	return l.value, l.defined
}

// ToUint32 renders the ValueLength back to its wire encoding: the byte count if
// defined, or the UndefinedLength sentinel otherwise.
func (l ValueLength) ToUint32() uint32 {
	if !l.defined {
		return UndefinedLength
	}
	return l.value
}

func (l ValueLength) String() string {
	if !l.defined {
		return "Undefined"
	}
	return strconv.FormatUint(uint64(l.value), 10)
}
