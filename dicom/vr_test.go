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

func TestLookupVR(t *testing.T) {
	vr, err := LookupVR("PN")
	if err != nil {
		t.Fatal(err)
	}
	if vr != PNVR {
		t.Fatalf("got %v, want PNVR", vr)
	}
	if _, err := LookupVR("XX"); err == nil {
		t.Fatal("expected an error for an unknown VR code")
	}
	if _, err := LookupVR("pn"); err == nil {
		t.Fatal("VR codes are case-sensitive uppercase")
	}
}

func TestVRLengthClasses(t *testing.T) {
	u32Class := []*VR{OBVR, ODVR, OFVR, OLVR, OVVR, OWVR, SQVR, SVVR, UCVR, UNVR, URVR, UTVR, UVVR}
	for _, vr := range u32Class {
		if vr.LengthClass != U32LengthClass {
			t.Errorf("%s: got U16 length class, want U32", vr.Name)
		}
	}
	for name, vr := range vrLookupMap {
		inU32 := false
		for _, u := range u32Class {
			if u == vr {
				inU32 = true
			}
		}
		if !inU32 && vr.LengthClass != U16LengthClass {
			t.Errorf("%s: got U32 length class, want U16", name)
		}
	}
}

func TestVREndianSwapWidths(t *testing.T) {
	widths := map[*VR]int{
		ATVR: 2, OWVR: 2, SSVR: 2, USVR: 2,
		FLVR: 4, OFVR: 4, OLVR: 4, SLVR: 4, ULVR: 4,
		FDVR: 8, ODVR: 8, OVVR: 8, SVVR: 8, UVVR: 8,
	}
	for vr, want := range widths {
		if vr.EndianSwapWidth != want {
			t.Errorf("%s: swap width %d, want %d", vr.Name, vr.EndianSwapWidth, want)
		}
	}
	for _, vr := range []*VR{OBVR, UNVR, SQVR, PNVR, CSVR, UIVR} {
		if vr.EndianSwapWidth != 0 {
			t.Errorf("%s: swap width %d, want 0", vr.Name, vr.EndianSwapWidth)
		}
	}
}

func TestVRPadding(t *testing.T) {
	if pad, ok := UIVR.Padding(); !ok || pad != 0x00 {
		t.Errorf("UI pads with null, got (%#x, %v)", pad, ok)
	}
	for _, vr := range []*VR{PNVR, CSVR, LOVR, SHVR, URVR} {
		if pad, ok := vr.Padding(); !ok || pad != 0x20 {
			t.Errorf("%s pads with space, got (%#x, %v)", vr.Name, pad, ok)
		}
	}
	if _, ok := OBVR.Padding(); ok {
		t.Error("OB has no padding byte")
	}
}

func TestVRStringClassification(t *testing.T) {
	for _, vr := range []*VR{PNVR, LOVR, SHVR, STVR, LTVR, UCVR, UTVR} {
		if !vr.IsString || !vr.IsEncodedString {
			t.Errorf("%s should be an encoded string VR", vr.Name)
		}
	}
	for _, vr := range []*VR{AEVR, CSVR, DAVR, UIVR, URVR} {
		if !vr.IsString || vr.IsEncodedString {
			t.Errorf("%s should be a string VR outside the encoded set", vr.Name)
		}
	}
	for _, vr := range []*VR{OBVR, USVR, SQVR, UNVR, FDVR} {
		if vr.IsString {
			t.Errorf("%s should not be a string VR", vr.Name)
		}
	}
}
