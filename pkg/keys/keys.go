// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package keys generates the SecureBoot key hierarchy and the
// auto-enrollment database.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

const (
	rsaBits  = 4096
	validity = 10 * 365 * 24 * time.Hour
)

// KeyPair is a generated signing key with its self-signed certificate.
type KeyPair struct {
	KeyPEM  []byte
	CertPEM []byte
	CertDER []byte
}

// Hierarchy is the three-tier SecureBoot key hierarchy.
//
// ref: https://blog.hansenpartnership.com/the-meaning-of-all-the-uefi-keys/
type Hierarchy struct {
	// PK is the Platform Key, the root of trust of the firmware.
	PK KeyPair
	// KEK is the Key Exchange Key, authorizing db/dbx updates.
	KEK KeyPair
	// Db is the Signature Database key, signing boot binaries.
	Db KeyPair
}

// GenerateHierarchy generates fresh PK, KEK and db keys for the given
// organization name.
func GenerateHierarchy(org string) (*Hierarchy, error) {
	hierarchy := &Hierarchy{}

	for _, tier := range []struct {
		name string
		pair *KeyPair
	}{
		{"Platform Key", &hierarchy.PK},
		{"Key Exchange Key", &hierarchy.KEK},
		{"Signature Database Key", &hierarchy.Db},
	} {
		pair, err := generateKeyPair(fmt.Sprintf("%s %s", org, tier.name))
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", tier.name, err)
		}

		*tier.pair = *pair
	}

	return hierarchy, nil
}

// Write stores the hierarchy under dir with the conventional file names
// (PK.key/PK.pem/PK.der and so on). Keys are written with mode 0600.
func (h *Hierarchy) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	for _, tier := range []struct {
		prefix string
		pair   KeyPair
	}{
		{"PK", h.PK},
		{"KEK", h.KEK},
		{"db", h.Db},
	} {
		if err := os.WriteFile(filepath.Join(dir, tier.prefix+".key"), tier.pair.KeyPEM, 0o600); err != nil {
			return err
		}

		if err := os.WriteFile(filepath.Join(dir, tier.prefix+".pem"), tier.pair.CertPEM, 0o600); err != nil {
			return err
		}

		if err := os.WriteFile(filepath.Join(dir, tier.prefix+".der"), tier.pair.CertDER, 0o600); err != nil {
			return err
		}
	}

	return nil
}

func generateKeyPair(commonName string) (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaBits)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	now := time.Now()

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: commonName,
		},
		NotBefore:             now,
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		CertDER: certDER,
	}, nil
}
