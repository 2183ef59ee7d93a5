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

func TestLookupTransferSyntax(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want transferSyntax
	}{
		{"explicit vr little endian", ExplicitVRLittleEndianUID, explicitVRLittleEndian},
		{"implicit vr little endian", ImplicitVRLittleEndianUID, implicitVRLittleEndian},
		{"explicit vr big endian", ExplicitVRBigEndianUID, explicitVRBigEndian},
		{"deflated explicit vr little endian", DeflatedExplicitVRLittleEndianUID, deflatedExplicitVRLittleEndian},
		{"encapsulated uncompressed explicit vr little endian",
			EncapsulatedUncompressedExplicitVRLittleEndianUID, encapsulatedUncompressedExplicitVRLittleEndian},
		{"jpeg baseline", JPEGBaselineUID, encapsulatedExplicitVRLittleEndian},
		{"jpeg 2000", "1.2.840.10008.1.2.4.90", encapsulatedExplicitVRLittleEndian},
		{"mpeg2 main profile", "1.2.840.10008.1.2.4.100", encapsulatedExplicitVRLittleEndian},
		{"hevc main profile", "1.2.840.10008.1.2.4.107", encapsulatedExplicitVRLittleEndian},
		{"htj2k", "1.2.840.10008.1.2.4.201", encapsulatedExplicitVRLittleEndian},
		{"jpip referenced", "1.2.840.10008.1.2.4.204", explicitVRLittleEndian},
		{"jpip referenced deflate", "1.2.840.10008.1.2.4.205", deflatedExplicitVRLittleEndian},
		{"rle lossless", RLELosslessUID, encapsulatedExplicitVRLittleEndian},
		{"smpte st 2110-20", "1.2.840.10008.1.2.7.1", explicitVRLittleEndian},
		{"unknown falls back to explicit vr little endian per PS3.5 A.4", "1.2.3.4.5.6", explicitVRLittleEndian},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := lookupTransferSyntax(tc.in); got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestIsTransferSyntaxSupported(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"implicit vr little endian", ImplicitVRLittleEndianUID, true},
		{"rle lossless", RLELosslessUID, true},
		{"htj2k lossless", "1.2.840.10008.1.2.4.201", true},
		{"unknown uid", "1.2.3.4.5.6", false},
		{"empty uid", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransferSyntaxSupported(tc.in); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
