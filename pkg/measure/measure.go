// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package measure contains Go implementation of 'systemd-measure' command.
//
// This implements TPM PCR emulation, UKI signature measurement, signing the measured values.
package measure

import (
	"log/slog"
	"os/exec"
	"regexp"

	"github.com/google/go-tpm/tpm2"

	"github.com/kairos-io/go-ukigen/pkg/constants"
	"github.com/kairos-io/go-ukigen/pkg/measure/pcr"
	"github.com/kairos-io/go-ukigen/pkg/types"
)

// SectionsData holds a map of Section to file path to the corresponding section.
type SectionsData map[constants.Section]string

// GenerateSignedPCR generates the PCR signed data for a given set of UKI file sections.
func GenerateSignedPCR(sectionsData SectionsData, phases []types.PhaseInfo, rsaKey types.RSAKey, PCR int, logger *slog.Logger) (*types.PCRData, error) {
	data := &types.PCRData{}
	logger.Debug("Generating PCR data", "sections", sectionsData)

	for _, algo := range []struct {
		alg            tpm2.TPMAlgID
		bankDataSetter *[]types.BankData
	}{
		{
			alg:            tpm2.TPMAlgSHA1,
			bankDataSetter: &data.SHA1,
		},
		{
			alg:            tpm2.TPMAlgSHA256,
			bankDataSetter: &data.SHA256,
		},
		{
			alg:            tpm2.TPMAlgSHA384,
			bankDataSetter: &data.SHA384,
		},
		{
			alg:            tpm2.TPMAlgSHA512,
			bankDataSetter: &data.SHA512,
		},
	} {
		bankData, err := pcr.CalculateBankData(PCR, algo.alg, sectionsData, phases, rsaKey, true)
		if err != nil {
			return nil, err
		}

		*algo.bankDataSetter = bankData
	}

	return data, nil
}

// GenerateMeasurements replays the measurements and logs the expected PCR
// values without signing them.
func GenerateMeasurements(sectionsData SectionsData, phases []types.PhaseInfo, PCR int, logger *slog.Logger) {
	logger.Debug("Generating measurements", "sections", sectionsData)

	for _, alg := range []tpm2.TPMAlgID{
		tpm2.TPMAlgSHA1,
		tpm2.TPMAlgSHA256,
		tpm2.TPMAlgSHA384,
		tpm2.TPMAlgSHA512,
	} {
		if _, err := pcr.CalculateBankData(PCR, alg, sectionsData, phases, nil, false); err != nil {
			logger.Error("Failed to calculate measurements", "alg", alg, "error", err)
		}
	}
}

// GenerateSignedPCRForBytes generates the PCR signed data for a given file
func GenerateSignedPCRForBytes(file string, rsaKey types.RSAKey, PCR int) (*types.PCRData, error) {
	data := &types.PCRData{}

	for _, algo := range []struct {
		alg            tpm2.TPMAlgID
		bankDataSetter *[]types.BankData
	}{
		{
			alg:            tpm2.TPMAlgSHA256,
			bankDataSetter: &data.SHA256,
		},
		{
			alg:            tpm2.TPMAlgSHA384,
			bankDataSetter: &data.SHA384,
		},
		{
			alg:            tpm2.TPMAlgSHA512,
			bankDataSetter: &data.SHA512,
		},
	} {
		bankData, err := pcr.CalculateBankDataForFile(PCR, algo.alg, file, rsaKey)
		if err != nil {
			return nil, err
		}

		*algo.bankDataSetter = bankData
	}

	return data, nil
}

// PrintSystemdMeasurements shells out to systemd-measure with the same
// inputs so the replayed values can be compared against the reference
// implementation. Debug aid only.
func PrintSystemdMeasurements(phase string, sectionsData SectionsData, privKey string) {
	args := []string{
		"--cmdline", sectionsData[constants.CMDLine],
		"--initrd", sectionsData[constants.Initrd],
		"--linux", sectionsData[constants.Linux],
		"--osrel", sectionsData[constants.OSRel],
		"--pcrpkey", sectionsData[constants.PCRPKey],
		"--sbat", sectionsData[constants.SBAT],
		"--uname", sectionsData[constants.Uname],
		"--splash", sectionsData[constants.Splash],
		"--phase", phase,
		"--private-key", privKey,
		"--bank", "SHA256",
		"--json=short"}

	cmd := exec.Command("/usr/lib/systemd/systemd-measure", append([]string{"calculate"}, args...)...)
	out, _ := cmd.CombinedOutput()
	r, _ := regexp.Compile(`hash":"([\w|\d].*)"`)
	match := r.Find(out)
	slog.Debug("measure output", "match", match, "phase", phase)
}
