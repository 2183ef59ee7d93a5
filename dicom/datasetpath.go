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
	"strings"
)

// PathEntryKind distinguishes the two kinds of DataSetPath entry.
type PathEntryKind int

const (
	// PathDataElement addresses a data element by tag.
	PathDataElement PathEntryKind = iota
	// PathSequenceItem addresses an item of a sequence by its zero-based index.
	PathSequenceItem
)

// PathEntry is one step of a DataSetPath: either a data element (by tag) or a sequence
// item (by index). A PathEntry of kind PathDataElement follows either the root or a
// PathSequenceItem; a PathEntry of kind PathSequenceItem follows only a PathDataElement
// of a sequence.
type PathEntry struct {
	Kind  PathEntryKind
	Tag   Tag
	Index int
}

func dataElementEntry(tag Tag) PathEntry {
	return PathEntry{Kind: PathDataElement, Tag: tag}
}

func sequenceItemEntry(index int) PathEntry {
	return PathEntry{Kind: PathSequenceItem, Index: index}
}

// DataSetPath is an ordered locator through a nested DataSet: a chain of data element
// tags and sequence item indices. The root (top-level data set) is the empty path.
type DataSetPath []PathEntry

// push returns a new DataSetPath with entry appended. DataSetPath values are never
// mutated in place so a Location stack can hand out path snapshots cheaply.
func (p DataSetPath) push(entry PathEntry) DataSetPath {
	next := make(DataSetPath, len(p)+1)
	copy(next, p)
	next[len(p)] = entry
	return next
}

func (p DataSetPath) pop() DataSetPath {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// String renders the path as "/"-joined hex tags and "[index]" sequence item markers,
// e.g. "(0040,0275)/[0]/(0040,A040)".
func (p DataSetPath) String() string {
	if len(p) == 0 {
		return "/"
	}
	parts := make([]string, len(p))
	for i, e := range p {
		switch e.Kind {
		case PathDataElement:
			parts[i] = e.Tag.String()
		case PathSequenceItem:
			parts[i] = fmt.Sprintf("[%d]", e.Index)
		}
	}
	return strings.Join(parts, "/")
}
