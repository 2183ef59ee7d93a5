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

import "fmt"

// dataElementHeader is the decoded form of a data element's header bytes: its tag, VR,
// and declared value length.
type dataElementHeader struct {
	Tag    Tag
	VR     *VR
	Length ValueLength
}

// vrInferrer is implemented by *Location: the implicit-VR and two-space-VR header
// layouts don't carry a VR on the wire, so the header codec consults the nesting state
// machine to look one up by tag.
type vrInferrer interface {
	InferVR(tag Tag) (*VR, error)
}

// blankVRBytes is the two-space VR some writers emit instead of a real code, tolerated
// by inferring the VR from the tag; the length field layout follows the inferred VR.
var blankVRBytes = [2]byte{0x20, 0x20}

// readDataElementHeader decodes one data element header from s, consulting loc to infer
// a VR when the wire bytes don't carry one: Implicit VR Little Endian's fixed 8-byte
// layout, and Explicit VR's two-space VR tolerance.
func readDataElementHeader(s *ByteStream, ts transferSyntax, loc vrInferrer) (dataElementHeader, error) {
	tagBytes, err := s.Read(4)
	if err != nil {
		return dataElementHeader{}, err
	}
	tag := tagFromBytes(tagBytes, ts.ByteOrder)

	if isSentinelTag(tag) {
		lengthBytes, err := s.Read(4)
		if err != nil {
			return dataElementHeader{}, err
		}
		length := ts.ByteOrder.Uint32(lengthBytes)
		return dataElementHeader{Tag: tag, Length: LengthFromUint32(length)}, nil
	}

	if ts.Implicit() {
		return readImplicitVRHeader(s, ts, tag, loc)
	}
	return readExplicitVRHeader(s, ts, tag, loc)
}

func readImplicitVRHeader(s *ByteStream, ts transferSyntax, tag Tag, loc vrInferrer) (dataElementHeader, error) {
	lengthBytes, err := s.Read(4)
	if err != nil {
		return dataElementHeader{}, err
	}
	length := ts.ByteOrder.Uint32(lengthBytes)

	vr, err := loc.InferVR(tag)
	if err != nil {
		return dataElementHeader{}, err
	}
	return dataElementHeader{Tag: tag, VR: vr, Length: LengthFromUint32(length)}, nil
}

func readExplicitVRHeader(s *ByteStream, ts transferSyntax, tag Tag, loc vrInferrer) (dataElementHeader, error) {
	vrBytes, err := s.Read(2)
	if err != nil {
		return dataElementHeader{}, err
	}

	var vr *VR
	if [2]byte{vrBytes[0], vrBytes[1]} == blankVRBytes {
		// Tolerate writers that leave the VR field blank: fall back to inference, same
		// as Implicit VR would; the length field layout follows the inferred VR.
		vr, err = loc.InferVR(tag)
		if err != nil {
			return dataElementHeader{}, err
		}
	} else {
		vr, err = LookupVR(string(vrBytes))
		if err != nil {
			return dataElementHeader{}, wrapError(DataInvalid, nil, s.BytesRead(),
				fmt.Sprintf("tag %v has unrecognized VR bytes %q", tag, vrBytes), err)
		}
	}

	var length uint32
	switch vr.LengthClass {
	case U16LengthClass:
		lengthBytes, err := s.Read(2)
		if err != nil {
			return dataElementHeader{}, err
		}
		length = uint32(ts.ByteOrder.Uint16(lengthBytes))
	case U32LengthClass:
		if _, err := s.Read(2); err != nil { // reserved
			return dataElementHeader{}, err
		}
		lengthBytes, err := s.Read(4)
		if err != nil {
			return dataElementHeader{}, err
		}
		length = ts.ByteOrder.Uint32(lengthBytes)
	}

	return dataElementHeader{Tag: tag, VR: vr, Length: LengthFromUint32(length)}, nil
}

func tagFromBytes(b []byte, order interface{ Uint16([]byte) uint16 }) Tag {
	group := order.Uint16(b[0:2])
	element := order.Uint16(b[2:4])
	return NewTag(group, element)
}

func isSentinelTag(tag Tag) bool {
	return tag == ItemTag || tag == ItemDelimitationTag || tag == SequenceDelimitationTag
}
