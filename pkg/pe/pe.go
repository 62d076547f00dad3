// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pe

import (
	"context"
	"debug/pe"
	"fmt"
	"os"
	"os/exec"
)

// SectionTableReader extracts the section table and header fields needed
// for the layout from a stub binary.
type SectionTableReader interface {
	ReadStub(path string) (StubInfo, error)
}

// SectionInserter splices the planned sections into a copy of the stub.
type SectionInserter interface {
	Insert(ctx context.Context, srcPath, dstPath string, plan Plan) error
}

// FileReader reads the section table from a PE file on disk.
type FileReader struct{}

// Verify interface.
var _ SectionTableReader = FileReader{}

// ReadStub implements SectionTableReader.
func (FileReader) ReadStub(path string) (StubInfo, error) {
	peFile, err := pe.Open(path)
	if err != nil {
		return StubInfo{}, fmt.Errorf("%w: %s: %v", ErrParse, path, err)
	}

	defer peFile.Close() //nolint:errcheck

	header, ok := peFile.OptionalHeader.(*pe.OptionalHeader64)
	if !ok {
		return StubInfo{}, fmt.Errorf("%w: %s: no PE32+ optional header", ErrParse, path)
	}

	if len(peFile.Sections) == 0 {
		return StubInfo{}, fmt.Errorf("%w: %s: empty section table", ErrParse, path)
	}

	info := StubInfo{
		Sections:         make([]StubSection, 0, len(peFile.Sections)),
		SectionAlignment: uint64(header.SectionAlignment),
		ImageBase:        header.ImageBase,
	}

	for _, s := range peFile.Sections {
		info.Sections = append(info.Sections, StubSection{
			Name:           s.Name,
			VirtualAddress: uint64(s.VirtualAddress),
			VirtualSize:    uint64(s.VirtualSize),
		})
	}

	return info, nil
}

// ObjcopyInserter appends sections with the objcopy binary.
type ObjcopyInserter struct {
	// Objcopy binary to use, "objcopy" if empty.
	Binary string
}

// Verify interface.
var _ SectionInserter = ObjcopyInserter{}

// Insert implements SectionInserter.
func (o ObjcopyInserter) Insert(ctx context.Context, srcPath, dstPath string, plan Plan) error {
	binary := o.Binary
	if binary == "" {
		binary = "objcopy"
	}

	cmd := exec.CommandContext(ctx, binary, insertArgs(srcPath, dstPath, plan)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return cmd.Run()
}

func insertArgs(srcPath, dstPath string, plan Plan) []string {
	args := make([]string, 0, 4*len(plan)+2)

	for _, section := range plan {
		args = append(args,
			"--add-section", fmt.Sprintf("%s=%s", section.Name, section.Path),
			"--change-section-vma", fmt.Sprintf("%s=0x%x", section.Name, section.VMA),
		)
	}

	return append(args, srcPath, dstPath)
}
