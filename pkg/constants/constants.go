// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package constants

import (
	"bytes"
	"strings"
	"text/template"
)

// Section is a name of a PE file section (UEFI binary).
type Section string

// String implements fmt.Stringer.
func (s Section) String() string {
	return string(s)
}

// Phase is the phase value extended to the PCR.
type Phase string

const (
	PEMTypeRSAPublic = "PUBLIC KEY"
	Name             = "Kairos"
	// UKIPCR is the PCR number where sections except `.pcrsig` are measured.
	UKIPCR            = 11
	OSReleaseTemplate = `NAME="{{ .Name }}"
ID={{ .ID }}
VERSION_ID={{ .Version }}
PRETTY_NAME="{{ .Name }} ({{ .Version }})"
`

	// Systemd-measure uses the following phases:
	// "enter-initrd", "enter-initrd:leave-initrd", "enter-initrd:leave-initrd:sysinit", "enter-initrd:leave-initrd:sysinit:ready"

	// EnterInitrd is the phase value extended to the PCR during the initrd.
	EnterInitrd Phase = "enter-initrd"
	// LeaveInitrd is the phase value extended to the PCR just before switching to the rootfs.
	LeaveInitrd Phase = "leave-initrd"
	// SysInit is the phase value extended to the PCR during the sysinit target.
	SysInit Phase = "sysinit"
	// Ready is the phase value extended to the PCR once the system is fully up.
	Ready Phase = "ready"

	// List of well-known section names.
	Linux   Section = ".linux"
	OSRel   Section = ".osrel"
	CMDLine Section = ".cmdline"
	Initrd  Section = ".initrd"
	Splash  Section = ".splash"
	DTB     Section = ".dtb"
	Uname   Section = ".uname"
	SBAT    Section = ".sbat"
	PCRSig  Section = ".pcrsig"
	PCRPKey Section = ".pcrpkey"
)

// OrderedSections returns the sections that are measured into PCR.
//
// Derived from https://github.com/systemd/systemd/blob/main/src/fundamental/tpm-pcr.h#L23-L36
// .pcrsig section is omitted here since that's what we are calulating here.
func OrderedSections() []Section {
	// DO NOT REARRANGE
	return []Section{
		Linux,
		OSRel,
		CMDLine,
		Initrd,
		Splash,
		DTB,
		Uname,
		SBAT,
		PCRPKey}
}

// AppendedSections returns the payload sections appended to the stub, in the
// order their virtual addresses are assigned.
func AppendedSections() []Section {
	// DO NOT REARRANGE
	return []Section{
		OSRel,
		CMDLine,
		Splash,
		Initrd,
		Linux}
}

// OSReleaseFor returns the contents of /etc/os-release for a given name and version.
func OSReleaseFor(name, version string) ([]byte, error) {
	data := struct {
		Name    string
		ID      string
		Version string
	}{
		Name:    name,
		ID:      strings.ToLower(name),
		Version: version,
	}

	tmpl, err := template.New("").Parse(OSReleaseTemplate)
	if err != nil {
		return nil, err
	}

	var writer bytes.Buffer

	err = tmpl.Execute(&writer, data)
	if err != nil {
		return nil, err
	}

	return writer.Bytes(), nil
}
