// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package uki creates the UKI file out of the sd-stub and other sections.
package uki

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kairos-io/go-ukigen/pkg/pe"
	"github.com/kairos-io/go-ukigen/pkg/pesign"
	"github.com/kairos-io/go-ukigen/pkg/types"
)

// Builder is a UKI file builder.
type Builder struct {
	// Source options.
	//
	// Arch of the UKI file.
	Arch string
	// Version of the OS.
	Version string
	// Path to the sd-stub.
	SdStubPath string
	// Path to the sd-boot.
	SdBootPath string
	// Path to the kernel image.
	KernelPath string
	// Path to the initrd image.
	InitrdPath string
	// Kernel cmdline.
	Cmdline string
	// Os-release file
	OsRelease string
	// Phases to measure for
	Phases []types.PhaseInfo

	// SecureBoot certificate and signer.
	SecureBootSigner *pesign.Signer
	// SecureBoot key
	SBKey string
	// SecureBoot cert
	SBCert string

	// PCR signer.
	PCRSigner types.RSAKey
	// Path to the PCR signing key
	PCRKey string

	Splash string

	// AlignPolicy used when laying out the appended sections.
	AlignPolicy pe.AlignPolicy

	// SectionReader parses the stub's section table, defaults to a debug/pe
	// backed reader.
	SectionReader pe.SectionTableReader
	// Inserter splices the sections into the stub, defaults to objcopy.
	Inserter pe.SectionInserter

	Logger *slog.Logger

	// Output options:
	//
	// Path to the signed sd-boot.
	OutSdBootPath string
	// Path to the output UKI file.
	OutUKIPath string

	// fields initialized during build
	sections        []types.UkiSection
	scratchDir      string
	unsignedUKIPath string
}

// Build the UKI file.
//
// Build process is as follows:
//   - sign the sd-boot EFI binary, and write it to the OutSdBootPath
//   - build ephemeral sections (uname, os-release), and other proposed sections
//   - measure sections, generate signature, and append to the list of sections
//   - compute the layout of the appended sections and assemble the final UKI
//     file starting from the sd-stub
func (builder *Builder) Build() error {
	var err error

	if builder.Logger == nil {
		builder.Logger = slog.Default()
	}

	if builder.SectionReader == nil {
		builder.SectionReader = pe.FileReader{}
	}

	if builder.Inserter == nil {
		builder.Inserter = pe.ObjcopyInserter{}
	}

	if builder.PCRSigner == nil && builder.PCRKey != "" {
		signer, err := pesign.NewPCRSigner(builder.PCRKey)
		if err != nil {
			return err
		}

		builder.PCRSigner = signer
	}

	// Try to generate a signer based on our given args.
	// If we have either a signer or key/cert, try to use first the signer as
	// we can use a custom signer passed in the struct, otherwise create a new
	// default signer with the key and cert.
	if builder.sbSignEnabled() && builder.SecureBootSigner == nil {
		sb, err := pesign.NewSecureBootSigner(builder.SBCert, builder.SBKey)
		if err != nil {
			return err
		}

		sbSigner, err := pesign.NewSigner(sb)
		if err != nil {
			return err
		}

		builder.SecureBootSigner = sbSigner
	}

	builder.scratchDir, err = os.MkdirTemp("", "ukigen")
	if err != nil {
		return err
	}

	defer func() {
		if e := os.RemoveAll(builder.scratchDir); e != nil {
			builder.Logger.Warn("failed to remove scratch dir", "error", e)
		}
	}()

	// Sign sd-boot if given and signing is enabled
	if builder.SdBootPath != "" && builder.sbSignEnabled() {
		builder.Logger.Info("Signing systemd-boot", "path", builder.SdBootPath)

		if err = builder.SecureBootSigner.Sign(builder.SdBootPath, builder.OutSdBootPath); err != nil {
			return fmt.Errorf("error signing sd-boot: %w", err)
		}

		builder.Logger.Info("Signed systemd-boot", "path", builder.OutSdBootPath)
	} else {
		builder.Logger.Info("Not signing systemd-boot")
	}

	builder.Logger.Info("Generating UKI sections")

	// generate and build list of all sections
	for _, generateSection := range []func() error{
		builder.generateOSRel,
		builder.generateCmdline,
		builder.generateSplash,
		builder.generateInitrd,
		builder.generateUname,
		builder.generateSBAT,
		builder.generatePCRPublicKey,
		// append kernel last to account for decompression
		builder.generateKernel,
		// measure sections last
		builder.generatePCRSig,
	} {
		if err = generateSection(); err != nil {
			return fmt.Errorf("error generating sections: %w", err)
		}
	}

	builder.Logger.Info("Generated UKI sections")

	builder.Logger.Info("Assembling UKI")

	if err = builder.assemble(); err != nil {
		return fmt.Errorf("error assembling UKI: %w", err)
	}

	builder.Logger.Info("Assembled UKI")

	// sign the UKI file if signing is enabled
	if builder.sbSignEnabled() {
		builder.Logger.Info("Signing UKI")

		if err = builder.SecureBootSigner.Sign(builder.unsignedUKIPath, builder.OutUKIPath); err != nil {
			return fmt.Errorf("error signing UKI: %w", err)
		}

		builder.Logger.Info("Signed UKI", "path", builder.OutUKIPath)

		return nil
	}

	// Move it to final place as we will remove the scratch dir
	outPath := strings.Replace(builder.OutUKIPath, "signed", "unsigned", -1)

	fileRead, err := os.ReadFile(builder.unsignedUKIPath)
	if err != nil {
		return err
	}

	if err = os.WriteFile(outPath, fileRead, 0o600); err != nil {
		return err
	}

	builder.Logger.Info("Unsigned UKI", "path", outPath)

	return nil
}

// sbSignEnabled let us know if we have to sign the sd-boot and uki final file
// Checks if we have a signer or a key/cert pair to sign
func (builder *Builder) sbSignEnabled() bool {
	return builder.SecureBootSigner != nil || (builder.SBKey != "" && builder.SBCert != "")
}

// pcrSignEnabled let us know if we have to sign the measurements
// Checks if we have a pcr signer or a pcrkey
func (builder *Builder) pcrSignEnabled() bool {
	return builder.PCRSigner != nil || builder.PCRKey != ""
}
