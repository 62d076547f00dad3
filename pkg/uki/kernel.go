// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package uki

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// bzImage boot protocol header fields.
// ref: https://www.kernel.org/doc/html/latest/arch/x86/boot.html
const (
	bootHeaderMagic       = 0x53726448 // "HdrS"
	bootHeaderMagicOffset = 0x202
	kernelVersionOffset   = 0x20e
	setupSectorShift      = 0x200
)

// DiscoverKernelVersion reads the kernel version string from a bzImage.
//
// The header stores a pointer to a NUL terminated banner like
// "6.5.0 (builder@host) #1 SMP ..."; the version is its first token.
func DiscoverKernelVersion(kernelPath string) (string, error) {
	f, err := os.Open(kernelPath)
	if err != nil {
		return "", err
	}

	defer f.Close() //nolint:errcheck

	header := make([]byte, 0x210)
	if _, err = f.ReadAt(header, 0); err != nil {
		return "", fmt.Errorf("failed to read bzImage header: %w", err)
	}

	if binary.LittleEndian.Uint32(header[bootHeaderMagicOffset:]) != bootHeaderMagic {
		return "", errors.New("not a bzImage: missing boot protocol magic")
	}

	versionPtr := binary.LittleEndian.Uint16(header[kernelVersionOffset:])
	if versionPtr == 0 {
		return "", errors.New("bzImage carries no version string")
	}

	// pointer is relative to the start of the setup code; the banner may sit
	// closer to the end of the file than our read window
	banner := make([]byte, 128)

	n, err := f.ReadAt(banner, int64(versionPtr)+setupSectorShift)
	if err != nil && !(errors.Is(err, io.EOF) && n > 0) {
		return "", fmt.Errorf("failed to read version string: %w", err)
	}

	banner = banner[:n]

	if i := bytes.IndexByte(banner, 0); i >= 0 {
		banner = banner[:i]
	}

	version, _, _ := strings.Cut(string(banner), " ")
	if version == "" {
		return "", errors.New("empty version string in bzImage")
	}

	return version, nil
}
