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
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// defaultMaxReadSize caps a single peek/read request absent an explicit Config, guarding
// against a corrupt or adversarial length field driving an unbounded allocation.
const defaultMaxReadSize = 256 << 20 // 256 MiB

// ByteStream is a push-driven byte buffer: callers hand it bytes with Write as they
// arrive (from a socket, a file, anywhere), and P10ReadContext pulls from it with Peek
// and Read. Unlike an io.Reader, a ByteStream never blocks: a read that cannot yet be
// satisfied returns a DataRequired error, and the caller is expected to Write more bytes
// and retry.
type ByteStream struct {
	buf   []byte
	start int // buf[start:] is the unconsumed window

	done bool // Write was called with done=true; no more bytes are coming

	bytesRead   int64 // total bytes ever handed out via Read, raw or inflated
	maxReadSize int

	// Deflated transfer syntax support. DICOM's deflated
	// transfer syntaxes carry a raw DEFLATE stream with no zlib header, decoded here with
	// compress/flate rather than compress/zlib.
	//
	// compress/flate's Reader caches the first non-io.EOF error it sees from its
	// underlying io.Reader and replays that cached error on every later Read, with no way
	// to clear it and resume: it was built for a blocking io.Reader, not one that can
	// legitimately report "no bytes yet, but not done either." Driving it directly from a
	// ByteStream that returns exactly that "not yet" signal mid-stream would permanently
	// wedge the decompressor the first time a Write/Read interleaving left it short.
	//
	// Instead, inflate is a from-scratch, stateless recomputation every time more
	// inflated bytes are needed: deflateRaw retains every compressed byte seen since
	// StartZlibInflate, and refillFromInflater replays a brand new flate.Reader over it
	// whenever the buffered inflated output runs short, discarding the already-consumed
	// prefix of the result. This trades CPU (re-decoding from the start on every refill)
	// for correctness against a stream that arrives in arbitrarily small pieces.
	inflateActive    bool
	inflateExhausted bool // the compressed stream decoded cleanly to its end (no more output ever)
	deflateRaw       []byte
	inflatedBuf      []byte
	inflatedStart    int
}

// NewByteStream constructs an empty ByteStream with the default max read size.
func NewByteStream() *ByteStream {
	return &ByteStream{maxReadSize: defaultMaxReadSize}
}

// NewByteStreamWithMaxRead constructs an empty ByteStream that rejects any Peek/Read
// request larger than maxReadSize with ReadOversized.
func NewByteStreamWithMaxRead(maxReadSize int) *ByteStream {
	return &ByteStream{maxReadSize: maxReadSize}
}

// Write appends b to the stream's unconsumed bytes. done signals that no further bytes
// will ever be written; once done, a later Write returns WriteAfterCompletion.
func (s *ByteStream) Write(b []byte, done bool) error {
	if s.done {
		return newError(WriteAfterCompletion, nil, s.bytesRead, "ByteStream.Write called after stream was marked done")
	}
	if len(b) > 0 {
		if s.inflateActive {
			s.deflateRaw = append(s.deflateRaw, b...)
		} else {
			s.compact()
			s.buf = append(s.buf, b...)
		}
	}
	if done {
		s.done = true
	}
	return nil
}

// compact drops already-consumed bytes from the front of buf so the backing array does
// not grow without bound across a long-lived stream.
func (s *ByteStream) compact() {
	if s.start == 0 {
		return
	}
	s.buf = append(s.buf[:0], s.buf[s.start:]...)
	s.start = 0
}

func (s *ByteStream) unconsumed() []byte {
	if s.inflateActive {
		return s.inflatedBuf[s.inflatedStart:]
	}
	return s.buf[s.start:]
}

// consume drops the first n bytes of whichever window unconsumed() returns.
func (s *ByteStream) consume(n int) {
	if s.inflateActive {
		s.inflatedStart += n
		return
	}
	s.start += n
}

// checkReadSize rejects requests that exceed the configured cap before the stream even
// considers whether enough bytes are buffered.
func (s *ByteStream) checkReadSize(n int) error {
	if n > s.maxReadSize {
		return newError(ReadOversized, nil, s.bytesRead,
			fmt.Sprintf("requested %d bytes exceeds max read size %d", n, s.maxReadSize))
	}
	return nil
}

// Peek returns the next n bytes without consuming them. If fewer than n bytes are
// currently buffered, it returns DataRequired (recoverable: write more and retry) unless
// the stream is done (or, in inflate mode, the compressed stream has cleanly decoded to
// its end), in which case it returns DataEndedUnexpectedly.
func (s *ByteStream) Peek(n int) ([]byte, error) {
	if err := s.checkReadSize(n); err != nil {
		return nil, err
	}
	if err := s.refillFromInflater(n); err != nil {
		return nil, err
	}
	avail := s.unconsumed()
	if len(avail) >= n {
		return avail[:n], nil
	}
	if s.done || s.inflateExhausted {
		return nil, newError(DataEndedUnexpectedly, nil, s.bytesRead,
			fmt.Sprintf("need %d bytes, only %d available and stream is done", n, len(avail)))
	}
	return nil, newError(DataRequired, nil, s.bytesRead,
		fmt.Sprintf("need %d bytes, only %d available", n, len(avail)))
}

// Read consumes and returns the next n bytes, advancing bytesRead. Its availability
// rules mirror Peek's.
func (s *ByteStream) Read(n int) ([]byte, error) {
	b, err := s.Peek(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	s.consume(n)
	s.bytesRead += int64(n)
	return out, nil
}

// Skip consumes and discards the next n bytes.
func (s *ByteStream) Skip(n int) error {
	_, err := s.Read(n)
	return err
}

// streamPosition is a resumable snapshot of the stream's read cursor. P10ReadContext
// takes one before each decode step and restores it when the step fails with
// DataRequired, so a decode that consumed a few bytes before running dry re-runs from
// its start once more bytes arrive. Only cursor state is captured; buffered bytes are
// never discarded before the cursor passes them, so restoring is always safe within a
// single ReadParts call (no Write can interleave).
type streamPosition struct {
	start         int
	inflatedStart int
	bytesRead     int64
}

func (s *ByteStream) position() streamPosition {
	return streamPosition{start: s.start, inflatedStart: s.inflatedStart, bytesRead: s.bytesRead}
}

func (s *ByteStream) restore(p streamPosition) {
	s.start = p.start
	s.inflatedStart = p.inflatedStart
	s.bytesRead = p.bytesRead
}

// BytesRead returns the total number of bytes ever consumed via Read/Skip. The count is
// preserved across a StartZlibInflate transition: it counts raw wire bytes before
// inflate begins and inflated (decompressed data set) bytes after, since a defined
// length's end offset is always expressed in terms of the decompressed data set.
func (s *ByteStream) BytesRead() int64 { return s.bytesRead }

// IsFullyConsumed reports whether the stream is done and every written byte has been
// consumed: the terminal condition a P10ReadContext checks for to confirm a clean end of
// stream rather than a truncated one.
func (s *ByteStream) IsFullyConsumed() bool {
	if s.inflateActive {
		if len(s.inflatedBuf)-s.inflatedStart > 0 {
			return false
		}
		if !s.inflateExhausted {
			// The buffered output is drained but compressed bytes may still be waiting
			// to be decoded; materialize at least one more byte before deciding.
			_ = s.refillFromInflater(1)
		}
		return (s.done || s.inflateExhausted) && len(s.inflatedBuf)-s.inflatedStart == 0
	}
	return s.done && len(s.buf[s.start:]) == 0
}

// setMaxReadSize replaces the stream's read-request cap; NewP10ReadContext derives the
// cap from its Config rather than asking callers to size the stream themselves.
func (s *ByteStream) setMaxReadSize(n int) { s.maxReadSize = n }

// StartZlibInflate switches the stream into deflate-decompression mode: every byte
// consumed from this point on (Peek/Read) is inflated DEFLATE output decoded from the
// raw bytes written from here on (plus whatever raw bytes were already buffered and
// unconsumed at the moment of the call). Used once a Deflated Explicit VR Little Endian
// file meta group length has been consumed, per PS3.5 A.5.
func (s *ByteStream) StartZlibInflate() error {
	if s.inflateActive {
		return newError(DataInvalid, nil, s.bytesRead, "StartZlibInflate called twice")
	}
	s.inflateActive = true
	s.deflateRaw = append([]byte(nil), s.buf[s.start:]...)
	s.buf = nil
	s.start = 0
	return nil
}

// refillFromInflater ensures at least n bytes are buffered in inflatedBuf past
// inflatedStart, when inflate mode is active, by re-running a fresh flate.Reader over
// every raw byte seen so far and discarding the already-consumed prefix of its output.
//
// A fresh decompressor is used on every call (rather than resuming one held across
// calls) specifically to avoid compress/flate's sticky first-error behavior: its Read
// never gives the underlying reader a second chance once any non-io.EOF error has been
// observed, which a plain io.Reader adapter over this stream's "not enough bytes yet"
// condition would trigger permanently on the very first short read.
func (s *ByteStream) refillFromInflater(n int) error {
	if !s.inflateActive {
		return nil
	}
	target := s.inflatedStart + n
	if len(s.inflatedBuf) >= target {
		return nil
	}

	r := flate.NewReader(bytes.NewReader(s.deflateRaw))
	defer r.Close()

	out := make([]byte, 0, target)
	chunk := make([]byte, 4096)
	var readErr error
	for len(out) < target {
		nRead, err := r.Read(chunk)
		if nRead > 0 {
			out = append(out, chunk[:nRead]...)
		}
		if err != nil {
			readErr = err
			break
		}
	}
	s.inflatedBuf = out

	switch {
	case readErr == nil:
		return nil
	case readErr == io.EOF:
		// The compressed stream decoded cleanly to its end; there will never be more
		// output no matter how many more raw bytes arrive.
		s.inflateExhausted = true
		return nil
	case readErr == io.ErrUnexpectedEOF && !s.done:
		// deflateRaw doesn't yet hold the rest of the compressed stream; not an error,
		// just not enough bytes yet. Peek's own done/inflateExhausted-driven choice
		// between DataRequired and DataEndedUnexpectedly takes it from here.
		return nil
	default:
		return wrapError(DataInvalid, nil, s.bytesRead, "inflating deflated data set", readErr)
	}
}
