package pcr

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/google/go-tpm/tpm2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kairos-io/go-ukigen/pkg/constants"
	"github.com/kairos-io/go-ukigen/pkg/pesign"
	"github.com/kairos-io/go-ukigen/pkg/types"
)

func TestSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "PCR test Suite")
}

// Hashes precalculated manually and with other tools
// For the different ordered phases (enter-initrd, leave-initrd, sysinit and ready) for empty
// section data measured into PCR 11 with the SHA256 bank
var knownPCR11PolicyHashes = []string{
	"7c8486f61cc1d88a28d6ab87850bee07c467ce6311340219e43a7a6e6521e543",
	"7474e6080ddc5355c6087db4272c7d8a6871a7c83a54694369561253f08fd3f1",
	"8fac790c125cc6c82b372714c8ecf83784523c05c5b78b37b1aae05521b7ec3e",
	"53f5e6ee03093e2fb1ea9d1351952a33ce381ae93bef210abb764941be8d8ec6",
}

var _ = Describe("PCR tests", func() {
	var pcrsigner *pesign.PCRSigner
	var err error

	BeforeEach(func() {
		pcrsigner, err = pesign.NewPCRSigner("testdata/private.pem")
		Expect(err).ToNot(HaveOccurred())
	})

	Describe("CreateSelector", func() {
		It("sets the bit for the selected PCR", func() {
			mask, err := CreateSelector([]int{constants.UKIPCR})
			Expect(err).ToNot(HaveOccurred())
			Expect(mask).To(Equal([]byte{0x00, 0x08, 0x00}))
		})

		It("rejects out of range PCRs", func() {
			_, err := CreateSelector([]int{24})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Digest", func() {
		It("extends like a TPM PCR", func() {
			d := NewDigest(crypto.SHA256)
			Expect(d.Hash()).To(Equal(make([]byte, 32)))

			d.Extend([]byte("foo"))
			Expect(hex.EncodeToString(d.Hash())).To(
				Equal("424816d020cf3d793ac021da47379bdf608080a83eb9364a7fbe0bdfa87111d7"))
		})
	})

	Describe("CalculatePolicy", func() {
		It("calculates the known policy hashes for empty sections", func() {
			pcrSelection, err := selection(tpm2.TPMAlgSHA256, constants.UKIPCR)
			Expect(err).ToNot(HaveOccurred())

			hashData := NewDigest(crypto.SHA256)

			for i, phase := range types.OrderedPhases() {
				hashData.Extend([]byte(phase.Phase))

				policy, err := CalculatePolicy(hashData.Hash(), pcrSelection)
				Expect(err).ToNot(HaveOccurred())
				Expect(hex.EncodeToString(policy)).To(Equal(knownPCR11PolicyHashes[i]))
			}
		})
	})

	Describe("CalculateBankData", func() {
		It("produces a signed bank per phase with the known policies", func() {
			banks, err := CalculateBankData(constants.UKIPCR, tpm2.TPMAlgSHA256, nil, types.OrderedPhases(), pcrsigner, true)
			Expect(err).ToNot(HaveOccurred())
			Expect(banks).To(HaveLen(4))

			expectedPKFP := sha256.Sum256(x509.MarshalPKCS1PublicKey(pcrsigner.PublicRSAKey()))

			for i, bank := range banks {
				Expect(bank.PCRs).To(Equal([]int{constants.UKIPCR}))
				Expect(bank.PKFP).To(Equal(hex.EncodeToString(expectedPKFP[:])))
				Expect(bank.Pol).To(Equal(knownPCR11PolicyHashes[i]))

				// the signature must verify against the hashed policy digest
				sig, err := base64.StdEncoding.DecodeString(bank.Sig)
				Expect(err).ToNot(HaveOccurred())

				policy, err := hex.DecodeString(bank.Pol)
				Expect(err).ToNot(HaveOccurred())

				hashed := sha256.Sum256(policy)
				Expect(rsa.VerifyPKCS1v15(pcrsigner.PublicRSAKey(), crypto.SHA256, hashed[:], sig)).To(Succeed())
			}
		})

		It("refuses to sign without a key", func() {
			_, err := CalculateBankData(constants.UKIPCR, tpm2.TPMAlgSHA256, nil, types.OrderedPhases(), nil, true)
			Expect(err).To(HaveOccurred())
		})

		It("only measures when not signing", func() {
			banks, err := CalculateBankData(constants.UKIPCR, tpm2.TPMAlgSHA256, nil, types.OrderedPhases(), nil, false)
			Expect(err).ToNot(HaveOccurred())
			Expect(banks).To(BeEmpty())
		})
	})
})
