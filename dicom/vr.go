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

// LengthClass distinguishes the two explicit-VR header layouts: a 16-bit length field
// immediately after the 2-byte VR code, or 2 reserved bytes followed by a 32-bit length.
type LengthClass int

const (
	// U16LengthClass is the 8-byte explicit VR header: tag(4) vr(2) length(2).
	U16LengthClass LengthClass = iota
	// U32LengthClass is the 12-byte explicit VR header: tag(4) vr(2) reserved(2) length(4).
	U32LengthClass
)

// VR models a DICOM Value Representation
// http://dicom.nema.org/medical/dicom/current/output/html/part05.html#sect_6.2. Each VR
// carries the classification the codec needs to decode and re-serialize its values:
// which explicit-VR header layout it uses, its endian-swap unit width, its padding byte
// (if any), and whether its value is textual.
type VR struct {
	// Name is the 2-character VR code.
	Name string

	LengthClass LengthClass

	// EndianSwapWidth is the byte width of the unit big-endian transfer syntaxes must
	// swap (0 for VRs whose bytes are not numeric words).
	EndianSwapWidth int

	// IsString is true for VRs whose value is one or more backslash-delimited text
	// values rather than packed binary numbers.
	IsString bool

	// IsEncodedString is true for the subset of string VRs whose character repertoire
	// may be replaced by SpecificCharacterSet (PS3.5 §6.1.2.3).
	IsEncodedString bool

	hasPadding bool
	padding    byte
}

// Padding returns the VR's padding byte and whether it pads at all. VRs with an odd
// natural length are padded to even length with this byte.
func (v *VR) Padding() (byte, bool) { return v.padding, v.hasPadding }

var vrLookupMap = map[string]*VR{}

func newVR(name string, lengthClass LengthClass, swapWidth int, isString, isEncoded bool, padding byte, hasPadding bool) *VR {
	vr := &VR{
		Name:            name,
		LengthClass:     lengthClass,
		EndianSwapWidth: swapWidth,
		IsString:        isString,
		IsEncodedString: isEncoded,
		padding:         padding,
		hasPadding:      hasPadding,
	}
	vrLookupMap[name] = vr
	return vr
}

// LookupVR resolves a 2-character VR code to its catalog entry, rejecting codes outside
// the closed catalog below.
func LookupVR(name string) (*VR, error) {
	vr, ok := vrLookupMap[name]
	if !ok {
		return nil, fmt.Errorf("unknown vr code: %q", name)
	}
	return vr, nil
}

const (
	spacePad byte = 0x20
	nullPad  byte = 0x00
)

// The complete VR catalog of PS3.5 6.2.
var (
	AEVR = newVR("AE", U16LengthClass, 0, true, false, spacePad, true)
	ASVR = newVR("AS", U16LengthClass, 0, true, false, spacePad, true)
	ATVR = newVR("AT", U16LengthClass, 2, false, false, 0, false)
	CSVR = newVR("CS", U16LengthClass, 0, true, false, spacePad, true)
	DAVR = newVR("DA", U16LengthClass, 0, true, false, spacePad, true)
	DSVR = newVR("DS", U16LengthClass, 0, true, false, spacePad, true)
	DTVR = newVR("DT", U16LengthClass, 0, true, false, spacePad, true)
	FDVR = newVR("FD", U16LengthClass, 8, false, false, 0, false)
	FLVR = newVR("FL", U16LengthClass, 4, false, false, 0, false)
	ISVR = newVR("IS", U16LengthClass, 0, true, false, spacePad, true)
	LOVR = newVR("LO", U16LengthClass, 0, true, true, spacePad, true)
	LTVR = newVR("LT", U16LengthClass, 0, true, true, spacePad, true)
	OBVR = newVR("OB", U32LengthClass, 0, false, false, 0, false)
	ODVR = newVR("OD", U32LengthClass, 8, false, false, 0, false)
	OFVR = newVR("OF", U32LengthClass, 4, false, false, 0, false)
	OLVR = newVR("OL", U32LengthClass, 4, false, false, 0, false)
	OVVR = newVR("OV", U32LengthClass, 8, false, false, 0, false)
	OWVR = newVR("OW", U32LengthClass, 2, false, false, 0, false)
	PNVR = newVR("PN", U16LengthClass, 0, true, true, spacePad, true)
	SQVR = newVR("SQ", U32LengthClass, 0, false, false, 0, false)
	SHVR = newVR("SH", U16LengthClass, 0, true, true, spacePad, true)
	STVR = newVR("ST", U16LengthClass, 0, true, true, spacePad, true)
	SLVR = newVR("SL", U16LengthClass, 4, false, false, 0, false)
	SSVR = newVR("SS", U16LengthClass, 2, false, false, 0, false)
	SVVR = newVR("SV", U32LengthClass, 8, false, false, 0, false)
	TMVR = newVR("TM", U16LengthClass, 0, true, false, spacePad, true)
	UCVR = newVR("UC", U32LengthClass, 0, true, true, spacePad, true)
	UIVR = newVR("UI", U16LengthClass, 0, true, false, nullPad, true)
	ULVR = newVR("UL", U16LengthClass, 4, false, false, 0, false)
	UNVR = newVR("UN", U32LengthClass, 0, false, false, 0, false)
	URVR = newVR("UR", U32LengthClass, 0, true, false, spacePad, true)
	USVR = newVR("US", U16LengthClass, 2, false, false, 0, false)
	UTVR = newVR("UT", U32LengthClass, 0, true, true, spacePad, true)
	UVVR = newVR("UV", U32LengthClass, 8, false, false, 0, false)
)

// nonEncodedSanitizeVRs are the string VRs whose value is decoded under the default
// character repertoire regardless of SpecificCharacterSet: any byte with the high bit
// set is replaced with '?' (0x3F). PN is deliberately excluded: it is the primary
// consumer of per-component-group character set decoding, not a default-repertoire VR;
// see DESIGN.md.
var nonEncodedSanitizeVRs = map[*VR]bool{
	AEVR: true,
	ASVR: true,
	CSVR: true,
	DAVR: true,
	DSVR: true,
	DTVR: true,
	ISVR: true,
	TMVR: true,
	UIVR: true,
	URVR: true,
}
