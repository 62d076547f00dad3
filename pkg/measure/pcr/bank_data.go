// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pcr

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/go-tpm/tpm2"

	"github.com/kairos-io/go-ukigen/pkg/constants"
	"github.com/kairos-io/go-ukigen/pkg/types"
)

// CalculateBankData calculates the PCR bank data for a given set of UKI file sections.
//
// This mimics the process happening in the TPM when the UKI is being loaded.
func CalculateBankData(pcrNumber int, alg tpm2.TPMAlgID, sectionData map[constants.Section]string, phases []types.PhaseInfo, rsaKey types.RSAKey, sign bool) ([]types.BankData, error) {
	// get fingerprint of public key
	var pubKeyFingerprint [32]byte

	if sign && rsaKey == nil {
		return nil, errors.New("asked to sign the measurements but nil RSAKey passed")
	}

	if rsaKey != nil {
		pubKeyFingerprint = sha256.Sum256(x509.MarshalPKCS1PublicKey(rsaKey.PublicRSAKey()))
	}

	hashAlg, err := alg.Hash()
	if err != nil {
		return nil, err
	}

	pcrSelection, err := selection(alg, pcrNumber)
	if err != nil {
		return nil, err
	}

	hashData := NewDigest(hashAlg)

	for _, section := range constants.OrderedSections() {
		if file := sectionData[section]; file != "" {
			slog.Debug("Measuring section", "section", section, "alg", hashAlg.String())

			sectionD, err := os.ReadFile(file)
			if err != nil {
				return nil, err
			}

			// NULL terminated, thats why we adding the 0 at the end
			hashData.Extend(append([]byte(section), 0))
			hashData.Extend(sectionD)
		}
	}

	banks := make([]types.BankData, 0)

	for _, phaseInfo := range phases {
		slog.Debug("Doing phase", "phase", phaseInfo.Phase, "alg", hashAlg.String())

		// extend always
		hashData.Extend([]byte(phaseInfo.Phase))

		if !phaseInfo.CalculateSignature {
			continue
		}

		hash := hashData.Hash()
		slog.Debug("Expected Hash calculated", "hash", hex.EncodeToString(hash), "alg", hashAlg.String(), "phase", phaseInfo.Phase)

		if !sign {
			slog.Info(fmt.Sprintf("%s:%d:%s=%s", phaseInfo.Phase, pcrNumber, strings.ToLower(hashAlg.String()), hex.EncodeToString(hash)))
			continue
		}

		policyPCR, err := CalculatePolicy(hash, pcrSelection)
		if err != nil {
			return nil, err
		}

		sigData, err := Sign(policyPCR, hashAlg, rsaKey)
		if err != nil {
			return nil, err
		}

		slog.Debug("signed policy", "PKFP", hex.EncodeToString(pubKeyFingerprint[:]), "pol", sigData.Digest, "sig", sigData.SignatureBase64)

		banks = append(banks, types.BankData{
			PCRs: []int{pcrNumber},
			PKFP: hex.EncodeToString(pubKeyFingerprint[:]),
			Sig:  sigData.SignatureBase64,
			Pol:  sigData.Digest,
		})
	}

	return banks, nil
}

// CalculateBankDataForFile calculates the PCR bank data for a single file.
func CalculateBankDataForFile(pcrNumber int, alg tpm2.TPMAlgID, file string, rsaKey types.RSAKey) ([]types.BankData, error) {
	if rsaKey == nil {
		return nil, errors.New("nil RSAKey passed")
	}

	pubKeyFingerprint := sha256.Sum256(x509.MarshalPKCS1PublicKey(rsaKey.PublicRSAKey()))

	hashAlg, err := alg.Hash()
	if err != nil {
		return nil, err
	}

	pcrSelection, err := selection(alg, pcrNumber)
	if err != nil {
		return nil, err
	}

	fileData, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	hashData := NewDigest(hashAlg)
	hashData.Extend(fileData)

	policyPCR, err := CalculatePolicy(hashData.Hash(), pcrSelection)
	if err != nil {
		return nil, err
	}

	sigData, err := Sign(policyPCR, hashAlg, rsaKey)
	if err != nil {
		return nil, err
	}

	return []types.BankData{
		{
			PCRs: []int{pcrNumber},
			PKFP: hex.EncodeToString(pubKeyFingerprint[:]),
			Sig:  sigData.SignatureBase64,
			Pol:  sigData.Digest,
		},
	}, nil
}

func selection(alg tpm2.TPMAlgID, pcrNumber int) (tpm2.TPMLPCRSelection, error) {
	pcrSelector, err := CreateSelector([]int{pcrNumber})
	if err != nil {
		return tpm2.TPMLPCRSelection{}, fmt.Errorf("failed to create PCR selection: %v", err)
	}

	return tpm2.TPMLPCRSelection{
		PCRSelections: []tpm2.TPMSPCRSelection{
			{
				Hash:      alg,
				PCRSelect: pcrSelector,
			},
		},
	}, nil
}

// CreateSelector converts PCR  numbers into a bitmask.
func CreateSelector(pcrs []int) ([]byte, error) {
	// From https://trustedcomputinggroup.org/resource/pc-client-platform-tpm-profile-ptp-specification/
	// A conformant TPM SHALL allow an allocation of a minimum of 24 PCRs, 0-23, within all allocated banks

	const sizeOfPCRSelect = 3

	mask := make([]byte, sizeOfPCRSelect)

	for _, n := range pcrs {
		if n >= 8*sizeOfPCRSelect {
			return nil, fmt.Errorf("PCR index %d is out of range (exceeds maximum value %d)", n, 8*sizeOfPCRSelect-1)
		}

		mask[n>>3] |= 1 << (n & 0x7)
	}

	return mask, nil
}

// CalculatePolicy calculates the policy hash for a given PCR value and PCR selection.
func CalculatePolicy(pcrValue []byte, pcrSelection tpm2.TPMLPCRSelection) ([]byte, error) {
	calculator, err := tpm2.NewPolicyCalculator(tpm2.TPMAlgSHA256)
	if err != nil {
		return nil, err
	}

	calculator.Reset()
	pcrHash := sha256.Sum256(pcrValue)

	policy := tpm2.PolicyPCR{
		PcrDigest: tpm2.TPM2BDigest{
			Buffer: pcrHash[:],
		},
		Pcrs: pcrSelection,
	}

	if err := policy.Update(calculator); err != nil {
		return nil, err
	}

	return calculator.Hash().Digest, nil
}
