// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package keys

import (
	"crypto/sha256"
	"fmt"

	"github.com/foxboron/go-uefi/efi/signature"
	"github.com/foxboron/go-uefi/efi/util"
	"github.com/foxboron/go-uefi/efivar"
	"github.com/google/uuid"

	"github.com/kairos-io/go-ukigen/pkg/pesign"
)

// Entry is a UEFI database entry.
type Entry struct {
	Name     string
	Contents []byte
}

// Conventional sd-boot file names for auto-enrollment.
const (
	SignatureKeyAsset   = "db.auth"
	KeyExchangeKeyAsset = "KEK.auth"
	PlatformKeyAsset    = "PK.auth"
)

// Database generates a UEFI database to enroll the signing certificate.
//
// Each variable is an EFI signature list holding the enrolled certificate,
// wrapped in an authenticated-variable descriptor signed by the signer.
func Database(enrolledCertificate []byte, signer pesign.CertificateSigner) ([]Entry, error) {
	// derive UUID from enrolled certificate
	uuid := uuid.NewHash(sha256.New(), uuid.NameSpaceX500, enrolledCertificate, 4)

	efiGUID := util.StringToGUID(uuid.String())

	db := signature.NewSignatureDatabase()
	if err := db.Append(signature.CERT_X509_GUID, *efiGUID, enrolledCertificate); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, 3)

	for _, variable := range []struct {
		name  string
		efi   efivar.Efivar
		asset string
	}{
		{"db", efivar.Db, SignatureKeyAsset},
		{"KEK", efivar.KEK, KeyExchangeKeyAsset},
		{"PK", efivar.PK, PlatformKeyAsset},
	} {
		_, descriptor, err := signature.SignEFIVariable(variable.efi, db, signer.Signer(), signer.Certificate())
		if err != nil {
			return nil, fmt.Errorf("failed to sign %s: %w", variable.name, err)
		}

		entries = append(entries, Entry{
			Name:     variable.asset,
			Contents: descriptor.Bytes(),
		})
	}

	return entries, nil
}
