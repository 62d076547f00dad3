// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package pcr

import (
	"crypto"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"

	"github.com/kairos-io/go-ukigen/pkg/types"
)

// SignatureData returns the hashed signature digest and base64 encoded signature.
type SignatureData struct {
	Digest          string
	SignatureBase64 string
}

// Sign the digest with the key, as systemd-measure does it.
//
// The policy digest is hashed once more with the same algorithm before
// signing, so the TPM can verify the signature against the policy.
func Sign(digest []byte, hashAlg crypto.Hash, key types.RSAKey) (*SignatureData, error) {
	digestToHash := hashAlg.New()
	digestToHash.Write(digest)
	digestHashed := digestToHash.Sum(nil)

	// sign policy digest
	signedData, err := key.Sign(rand.Reader, digestHashed, hashAlg)
	if err != nil {
		return nil, err
	}

	return &SignatureData{
		Digest:          hex.EncodeToString(digest),
		SignatureBase64: base64.StdEncoding.EncodeToString(signedData),
	}, nil
}
