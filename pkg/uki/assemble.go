// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package uki

import (
	"context"
	"path/filepath"

	"github.com/kairos-io/go-ukigen/pkg/pe"
)

// assemble the final UKI file: compute the layout of the appended sections
// and hand it to the inserter. Nothing is written until the whole layout is
// validated.
func (builder *Builder) assemble() error {
	stub, err := builder.SectionReader.ReadStub(builder.SdStubPath)
	if err != nil {
		return err
	}

	payloads := make([]pe.Payload, 0, len(builder.sections))

	for _, section := range builder.sections {
		if !section.Append {
			continue
		}

		payloads = append(payloads, pe.Payload{
			Name: section.Name.String(),
			Path: section.Path,
		})
	}

	payloads, err = pe.StatPayloads(payloads)
	if err != nil {
		return err
	}

	plan, err := pe.Layout(stub, payloads, builder.AlignPolicy)
	if err != nil {
		return err
	}

	// record the assigned addresses back into the section list
	planned := map[string]pe.PlannedSection{}
	for _, section := range plan {
		planned[section.Name] = section
	}

	for i := range builder.sections {
		if section, ok := planned[builder.sections[i].Name.String()]; ok {
			builder.sections[i].Size = section.Size
			builder.sections[i].VMA = section.VMA

			builder.Logger.Debug("Planned section",
				"section", section.Name, "vma", section.VMA, "size", section.Size)
		}
	}

	builder.unsignedUKIPath = filepath.Join(builder.scratchDir, "uki.unsigned.efi")

	return builder.Inserter.Insert(context.Background(), builder.SdStubPath, builder.unsignedUKIPath, plan)
}
