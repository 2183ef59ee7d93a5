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
	"fmt"

	"github.com/go-playground/validator/v10"
)

// defaultMaxSequenceDepth bounds how many sequences a P10ReadContext will follow into
// before reporting MaximumExceeded, guarding against a maliciously or accidentally
// self-referential nesting driving unbounded stack growth.
const defaultMaxSequenceDepth = 10000

var configValidate = validator.New()

// Config controls the resource limits and fallback behavior of a P10ReadContext.
// Validate (and NewP10ReadContext, which calls it) rejects a Config whose fields violate
// these constraints before any bytes are read.
type Config struct {
	// MaxPartSize caps the number of bytes a single DataElementValueBytesPart /
	// PixelDataItemPart may carry; larger values are split across multiple Parts.
	// NewP10ReadContext rounds it down to a multiple of 8 so a chunk boundary never
	// splits a VR's multi-byte numeric words.
	MaxPartSize int `validate:"required,gt=0"`

	// MaxStringSize caps how large a string-VR value this package will buffer in full
	// to apply SpecificCharacterSet decoding; ReadParts reports MaximumExceeded for a
	// value that must be buffered and is larger. Must be at least MaxPartSize.
	MaxStringSize int `validate:"required,gtefield=MaxPartSize"`

	// MaxSequenceDepth caps how many sequences deep ReadParts will follow before
	// reporting MaximumExceeded.
	MaxSequenceDepth int `validate:"required,gt=0"`

	// FallbackTransferSyntaxUID is used when File Meta Information is absent or its
	// TransferSyntaxUID element is missing, rather than treating that as fatal.
	FallbackTransferSyntaxUID string `validate:"required"`
}

// DefaultConfig returns the Config a P10ReadContext uses when none is supplied.
func DefaultConfig() Config {
	return Config{
		MaxPartSize:               1 << 20, // 1 MiB
		MaxStringSize:             1 << 20,
		MaxSequenceDepth:          defaultMaxSequenceDepth,
		FallbackTransferSyntaxUID: ImplicitVRLittleEndianUID,
	}
}

// validateMultipleOf8 checks the part of MaxPartSize's contract that validator's
// built-in tags don't express directly.
func (c Config) validateMultipleOf8() error {
	if c.MaxPartSize%8 != 0 {
		return fmt.Errorf("MaxPartSize (%d) must be a multiple of 8", c.MaxPartSize)
	}
	return nil
}

// Validate reports whether c is well-formed, per the field constraints documented above.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid Config: %v", err)
	}
	if err := c.validateMultipleOf8(); err != nil {
		return fmt.Errorf("invalid Config: %v", err)
	}
	if !isTransferSyntaxSupported(c.FallbackTransferSyntaxUID) {
		return fmt.Errorf("invalid Config: FallbackTransferSyntaxUID %q is not a supported transfer syntax",
			c.FallbackTransferSyntaxUID)
	}
	return nil
}
