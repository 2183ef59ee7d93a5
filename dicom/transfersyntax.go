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

import "encoding/binary"

// list of transfer syntaxes obtained from
// http://dicom.nema.org/medical/dicom/current/output/html/part06.html#chapter_A
const (
	// ImplicitVRLittleEndianUID is the Implicit VR Little Endian UID.
	ImplicitVRLittleEndianUID = "1.2.840.10008.1.2"
	// ExplicitVRLittleEndianUID is the Explicit VR Little Endian UID.
	ExplicitVRLittleEndianUID = "1.2.840.10008.1.2.1"
	// EncapsulatedUncompressedExplicitVRLittleEndianUID wraps uncompressed pixel data in
	// encapsulated fragments while otherwise encoding as Explicit VR Little Endian.
	EncapsulatedUncompressedExplicitVRLittleEndianUID = "1.2.840.10008.1.2.1.98"
	// DeflatedExplicitVRLittleEndianUID is Explicit VR Little Endian with the data set
	// (everything after File Meta Information) deflate-compressed.
	DeflatedExplicitVRLittleEndianUID = "1.2.840.10008.1.2.1.99"
	// ExplicitVRBigEndianUID is the Explicit VR Big Endian UID, retired but still
	// encountered in legacy files.
	ExplicitVRBigEndianUID = "1.2.840.10008.1.2.2"
	// JPEGBaselineUID is the JPEG Baseline (Process 1) transfer syntax UID.
	JPEGBaselineUID = "1.2.840.10008.1.2.4.50"
	// RLELosslessUID is the RLE Lossless transfer syntax UID.
	RLELosslessUID = "1.2.840.10008.1.2.5"
)

// vrSerialization selects which data element header layout a transfer syntax uses on
// the wire: Implicit VR's fixed 8-byte header, or Explicit VR's VR-dependent layout.
type vrSerialization int

const (
	implicitVR vrSerialization = iota
	explicitVR
)

// transferSyntax is the tuple that governs how a data set's bytes are laid out: header
// serialization, byte order, whether the stream past File Meta Information is deflated,
// and whether its pixel data is encapsulated (fragmented, possibly compressed).
type transferSyntax struct {
	vrSerialization vrSerialization
	ByteOrder       binary.ByteOrder
	IsDeflated      bool
	IsEncapsulated  bool
}

// Implicit reports whether data element headers use the Implicit VR layout.
func (ts transferSyntax) Implicit() bool { return ts.vrSerialization == implicitVR }

var (
	implicitVRLittleEndian = transferSyntax{vrSerialization: implicitVR, ByteOrder: binary.LittleEndian}
	explicitVRLittleEndian = transferSyntax{vrSerialization: explicitVR, ByteOrder: binary.LittleEndian}
	explicitVRBigEndian    = transferSyntax{vrSerialization: explicitVR, ByteOrder: binary.BigEndian}

	deflatedExplicitVRLittleEndian = transferSyntax{
		vrSerialization: explicitVR, ByteOrder: binary.LittleEndian, IsDeflated: true,
	}
	encapsulatedUncompressedExplicitVRLittleEndian = transferSyntax{
		vrSerialization: explicitVR, ByteOrder: binary.LittleEndian, IsEncapsulated: true,
	}

	// encapsulatedExplicitVRLittleEndian is shared by every compressed transfer syntax
	// (JPEG, JPEG-LS, JPEG 2000, MPEG, HEVC, RLE, and the HTJ2K fragment-bearing
	// variants): their data elements are encoded Explicit VR Little Endian and only
	// PixelData is encapsulated.
	encapsulatedExplicitVRLittleEndian = transferSyntax{
		vrSerialization: explicitVR, ByteOrder: binary.LittleEndian, IsEncapsulated: true,
	}

	// jpipReferencedDeflate is the one HTJ2K/JPIP variant whose data set past File Meta
	// Information is deflated, the same as DeflatedExplicitVRLittleEndianUID; like the
	// non-deflated JPIP variant it carries no fragment stream of its own.
	jpipReferencedDeflate = deflatedExplicitVRLittleEndian
)

var transferSyntaxCatalog = buildTransferSyntaxCatalog()

func buildTransferSyntaxCatalog() map[string]transferSyntax {
	catalog := map[string]transferSyntax{
		ImplicitVRLittleEndianUID: implicitVRLittleEndian,
		ExplicitVRLittleEndianUID: explicitVRLittleEndian,
		ExplicitVRBigEndianUID:    explicitVRBigEndian,
		EncapsulatedUncompressedExplicitVRLittleEndianUID: encapsulatedUncompressedExplicitVRLittleEndian,
		DeflatedExplicitVRLittleEndianUID:                 deflatedExplicitVRLittleEndian,
		RLELosslessUID:                                     encapsulatedExplicitVRLittleEndian,
	}

	// JPEG / JPEG-LS / JPEG 2000 / MPEG / HEVC families: all encapsulated.
	for _, uid := range []string{
		"1.2.840.10008.1.2.4.50", "1.2.840.10008.1.2.4.51", "1.2.840.10008.1.2.4.57",
		"1.2.840.10008.1.2.4.70", "1.2.840.10008.1.2.4.80", "1.2.840.10008.1.2.4.81",
		"1.2.840.10008.1.2.4.90", "1.2.840.10008.1.2.4.91", "1.2.840.10008.1.2.4.92",
		"1.2.840.10008.1.2.4.93", "1.2.840.10008.1.2.4.100", "1.2.840.10008.1.2.4.101",
		"1.2.840.10008.1.2.4.102", "1.2.840.10008.1.2.4.103", "1.2.840.10008.1.2.4.104",
		"1.2.840.10008.1.2.4.105", "1.2.840.10008.1.2.4.106", "1.2.840.10008.1.2.4.107",
		"1.2.840.10008.1.2.4.108",
	} {
		catalog[uid] = encapsulatedExplicitVRLittleEndian
	}

	// High-Throughput JPEG 2000 / JPIP family.
	for _, uid := range []string{
		"1.2.840.10008.1.2.4.201", "1.2.840.10008.1.2.4.202", "1.2.840.10008.1.2.4.203",
	} {
		catalog[uid] = encapsulatedExplicitVRLittleEndian
	}
	catalog["1.2.840.10008.1.2.4.204"] = explicitVRLittleEndian // JPIP Referenced: no fragment stream
	catalog["1.2.840.10008.1.2.4.205"] = jpipReferencedDeflate

	// SMPTE ST 2110 variants: uncompressed, Explicit VR Little Endian.
	for _, uid := range []string{"1.2.840.10008.1.2.7.1", "1.2.840.10008.1.2.7.2", "1.2.840.10008.1.2.7.3"} {
		catalog[uid] = explicitVRLittleEndian
	}

	return catalog
}

// lookupTransferSyntax resolves a TransferSyntaxUID to its transferSyntax tuple.
// Per PS3.5 A.4, a UID outside the enumerated set falls back to Explicit VR Little
// Endian rather than failing outright; callers that must reject unsupported transfer
// syntaxes should consult isTransferSyntaxSupported first.
func lookupTransferSyntax(uid string) transferSyntax {
	if ts, ok := transferSyntaxCatalog[uid]; ok {
		return ts
	}
	return explicitVRLittleEndian
}

// isTransferSyntaxSupported reports whether uid names one of the enumerated transfer
// syntaxes, as opposed to lookupTransferSyntax's lenient PS3.5 A.4 fallback.
func isTransferSyntaxSupported(uid string) bool {
	_, ok := transferSyntaxCatalog[uid]
	return ok
}
