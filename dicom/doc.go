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

// Package dicom is a streaming codec for the DICOM Part 10 (P10) byte stream format used
// to exchange medical imaging objects
// [http://dicom.nema.org/medical/dicom/current/output/pdf/part10.pdf].
//
// The package is a push-driven state machine, not an io.Reader-backed parser: callers
// feed it bytes with ByteStream.Write and pull decoded Parts from P10ReadContext.ReadParts.
// This lets a caller drive the codec directly off a network socket, a chunked upload, or
// a file read in whatever increments are convenient, without the codec ever blocking on
// I/O itself.
//
// The low-level surface is the Part stream: DataElementHeader, DataElementValueBytes,
// SequenceStart/SequenceDelimiter, SequenceItemStart/SequenceItemDelimiter, PixelDataItem,
// and End. DataSetBuilder is a convenience collaborator that consumes a Part stream and
// rematerializes an in-memory DataSet; WriteParts is its inverse, turning a DataSet back
// into a Part stream for re-serialization.
package dicom
