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

import "testing"

func newDoneStream(t *testing.T, wire []byte) *ByteStream {
	t.Helper()
	s := NewByteStream()
	if err := s.Write(wire, true); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestReadHeaderImplicitVRLittleEndian(t *testing.T) {
	s := newDoneStream(t, implicitHeaderLE(PatientNameTag, 6))
	h, err := readDataElementHeader(s, implicitVRLittleEndian, NewLocation())
	if err != nil {
		t.Fatal(err)
	}
	if h.Tag != PatientNameTag || h.VR != PNVR {
		t.Fatalf("got %v/%v, want PatientName/PN (inferred)", h.Tag, h.VR)
	}
	if n, ok := h.Length.Defined(); !ok || n != 6 {
		t.Fatalf("got length %v, want Defined(6)", h.Length)
	}
}

func TestReadHeaderExplicitVRU16Length(t *testing.T) {
	s := newDoneStream(t, explicitHeaderU16LE(PatientNameTag, "PN", 10))
	h, err := readDataElementHeader(s, explicitVRLittleEndian, NewLocation())
	if err != nil {
		t.Fatal(err)
	}
	if h.VR != PNVR {
		t.Fatalf("got VR %v, want PN", h.VR)
	}
	if n, _ := h.Length.Defined(); n != 10 {
		t.Fatalf("got length %v, want 10", h.Length)
	}
	if s.BytesRead() != 8 {
		t.Fatalf("consumed %d bytes, want 8", s.BytesRead())
	}
}

func TestReadHeaderExplicitVRU32Length(t *testing.T) {
	s := newDoneStream(t, explicitHeaderU32LE(PixelDataTag, "OB", 0x12345))
	h, err := readDataElementHeader(s, explicitVRLittleEndian, NewLocation())
	if err != nil {
		t.Fatal(err)
	}
	if h.VR != OBVR {
		t.Fatalf("got VR %v, want OB", h.VR)
	}
	if n, _ := h.Length.Defined(); n != 0x12345 {
		t.Fatalf("got length %v, want 0x12345", h.Length)
	}
	if s.BytesRead() != 12 {
		t.Fatalf("consumed %d bytes, want 12", s.BytesRead())
	}
}

func TestReadHeaderExplicitVRBigEndian(t *testing.T) {
	s := newDoneStream(t, explicitHeaderU16BE(NewTag(0x0028, 0x0010), "US", 2))
	h, err := readDataElementHeader(s, explicitVRBigEndian, NewLocation())
	if err != nil {
		t.Fatal(err)
	}
	if h.Tag != NewTag(0x0028, 0x0010) || h.VR != USVR {
		t.Fatalf("got %v/%v, want (0028,0010)/US", h.Tag, h.VR)
	}
	if n, _ := h.Length.Defined(); n != 2 {
		t.Fatalf("got length %v, want 2", h.Length)
	}
}

func TestReadHeaderTwoSpaceVRFallsBackToInference(t *testing.T) {
	wire := catBytes(tagLE(PatientNameTag), []byte{0x20, 0x20}, u16le(6))
	s := newDoneStream(t, wire)
	h, err := readDataElementHeader(s, explicitVRLittleEndian, NewLocation())
	if err != nil {
		t.Fatal(err)
	}
	if h.VR != PNVR {
		t.Fatalf("got VR %v, want PN (inferred for blank VR bytes)", h.VR)
	}
}

func TestReadHeaderRejectsUnknownVR(t *testing.T) {
	wire := catBytes(tagLE(PatientNameTag), []byte("ZZ"), u16le(0))
	s := newDoneStream(t, wire)
	if _, err := readDataElementHeader(s, explicitVRLittleEndian, NewLocation()); err == nil {
		t.Fatal("expected an error for VR code ZZ")
	}
}

func TestReadHeaderSentinelTagsHaveNoVR(t *testing.T) {
	for _, tag := range []Tag{ItemTag, ItemDelimitationTag, SequenceDelimitationTag} {
		s := newDoneStream(t, implicitHeaderLE(tag, 0))
		// Sentinels use the 8-byte implicit layout even on an Explicit VR transfer
		// syntax.
		h, err := readDataElementHeader(s, explicitVRLittleEndian, NewLocation())
		if err != nil {
			t.Fatalf("%v: %v", tag, err)
		}
		if h.VR != nil {
			t.Errorf("%v: got VR %v, want none", tag, h.VR)
		}
	}
}

func TestReadHeaderUndefinedLength(t *testing.T) {
	s := newDoneStream(t, implicitHeaderLE(RequestAttributesSequenceTag, UndefinedLength))
	h, err := readDataElementHeader(s, implicitVRLittleEndian, NewLocation())
	if err != nil {
		t.Fatal(err)
	}
	if h.Length.IsDefined() {
		t.Fatalf("got length %v, want Undefined", h.Length)
	}
}
