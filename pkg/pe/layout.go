// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package pe computes the virtual memory layout of sections appended to a
// PE stub binary and splices them in via an external tool.
package pe

import (
	"errors"
	"fmt"
	"os"
)

// Layout and reader failure kinds, matched with errors.Is.
var (
	ErrMissingFile  = errors.New("payload file missing")
	ErrBadAlignment = errors.New("bad section alignment")
	ErrParse        = errors.New("cannot parse stub section table")
	ErrOverlap      = errors.New("section ranges overlap")
)

// AlignPolicy selects how an address already sitting on an alignment
// boundary is rounded.
type AlignPolicy int

const (
	// RoundUpOrStay keeps an already-aligned address in place. This is what
	// objcopy and systemd's ukify do.
	RoundUpOrStay AlignPolicy = iota
	// StrictNextBoundary always advances to the next boundary, even when the
	// address is already aligned. This matches the legacy shell tooling,
	// which wastes up to one alignment unit per section.
	StrictNextBoundary
)

// String implements fmt.Stringer.
func (p AlignPolicy) String() string {
	switch p {
	case StrictNextBoundary:
		return "strict-next-boundary"
	default:
		return "round-up-or-stay"
	}
}

// ParseAlignPolicy parses the policy names accepted on the CLI.
func ParseAlignPolicy(s string) (AlignPolicy, error) {
	switch s {
	case "", "round-up-or-stay":
		return RoundUpOrStay, nil
	case "strict-next-boundary":
		return StrictNextBoundary, nil
	default:
		return RoundUpOrStay, fmt.Errorf("unknown align policy %q", s)
	}
}

// StubSection describes a section already present in the stub binary.
type StubSection struct {
	Name           string
	VirtualAddress uint64
	VirtualSize    uint64
}

// StubInfo is the section table and header fields of the stub binary
// relevant to the layout, as reported by a SectionTableReader.
type StubInfo struct {
	Sections         []StubSection
	SectionAlignment uint64
	ImageBase        uint64
}

// Payload is an on-disk blob to append as a named section. Size is filled
// by StatPayloads before the layout is computed.
type Payload struct {
	Name string
	Path string
	Size uint64
}

// PlannedSection is a payload with its assigned virtual address.
type PlannedSection struct {
	Name string
	Path string
	Size uint64
	VMA  uint64
}

// Plan is the ordered list of sections to splice into the stub.
type Plan []PlannedSection

// StatPayloads fills in the payload sizes from disk. Every path must exist
// and be a regular file.
func StatPayloads(payloads []Payload) ([]Payload, error) {
	out := make([]Payload, len(payloads))

	for i, p := range payloads {
		st, err := os.Stat(p.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: section %s: %s", ErrMissingFile, p.Name, p.Path)
		}

		if !st.Mode().IsRegular() {
			return nil, fmt.Errorf("%w: section %s: %s is not a regular file", ErrMissingFile, p.Name, p.Path)
		}

		out[i] = p
		out[i].Size = uint64(st.Size())
	}

	return out, nil
}

// Layout assigns a virtual address to every payload, appended after the
// stub's existing sections in the order given.
//
// Every address is a multiple of the stub's section alignment, addresses
// are strictly increasing, and no payload range intersects the stub's
// ranges or another payload's range. The computation is pure: payload
// sizes must already be filled in (see StatPayloads).
func Layout(stub StubInfo, payloads []Payload, policy AlignPolicy) (Plan, error) {
	align := stub.SectionAlignment
	if align == 0 || align&(align-1) != 0 {
		return nil, fmt.Errorf("%w: 0x%x is not a positive power of two", ErrBadAlignment, align)
	}

	// end of the last existing section, in VMA terms
	baseVMA := stub.ImageBase

	for _, s := range stub.Sections {
		if end := stub.ImageBase + s.VirtualAddress + s.VirtualSize; end > baseVMA {
			baseVMA = end
		}
	}

	baseVMA = alignUp(baseVMA, align, policy)

	plan := make(Plan, 0, len(payloads))

	for _, p := range payloads {
		plan = append(plan, PlannedSection{
			Name: p.Name,
			Path: p.Path,
			Size: p.Size,
			VMA:  baseVMA,
		})

		// an empty payload still occupies its own slot, otherwise the next
		// section would land on the same address
		end := baseVMA + p.Size
		if p.Size == 0 {
			end = baseVMA + 1
		}

		baseVMA = alignUp(end, align, policy)
	}

	if err := checkDisjoint(stub, plan); err != nil {
		return nil, err
	}

	return plan, nil
}

func alignUp(v, align uint64, policy AlignPolicy) uint64 {
	switch policy {
	case StrictNextBoundary:
		return (v &^ (align - 1)) + align
	default:
		return (v + align - 1) &^ (align - 1)
	}
}

// checkDisjoint verifies that no computed range intersects the stub's
// existing ranges or another computed range. A failure here means the
// layout arithmetic itself is broken, so it aborts the whole run rather
// than letting a corrupt image be assembled.
func checkDisjoint(stub StubInfo, plan Plan) error {
	type span struct {
		name       string
		start, end uint64
	}

	spans := make([]span, 0, len(stub.Sections)+len(plan))

	for _, s := range stub.Sections {
		spans = append(spans, span{
			name:  s.Name,
			start: stub.ImageBase + s.VirtualAddress,
			end:   stub.ImageBase + s.VirtualAddress + s.VirtualSize,
		})
	}

	for _, p := range plan {
		spans = append(spans, span{
			name:  p.Name,
			start: p.VMA,
			end:   p.VMA + p.Size,
		})
	}

	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]

			if a.start < b.end && b.start < a.end {
				return fmt.Errorf("%w: %s [0x%x, 0x%x) and %s [0x%x, 0x%x)",
					ErrOverlap, a.name, a.start, a.end, b.name, b.start, b.end)
			}
		}
	}

	return nil
}
