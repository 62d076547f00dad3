package keys

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	ginkgo "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kairos-io/go-ukigen/pkg/pesign"
)

func TestSuite(t *testing.T) {
	RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Keys test Suite")
}

var _ = ginkgo.Describe("Keys tests", func() {
	ginkgo.Describe("GenerateHierarchy", func() {
		var hierarchy *Hierarchy

		ginkgo.BeforeEach(func() {
			var err error
			hierarchy, err = GenerateHierarchy("Acme")
			Expect(err).ToNot(HaveOccurred())
		})

		ginkgo.It("generates three distinct self-signed certificates", func() {
			names := map[string]bool{}

			for _, pair := range []KeyPair{hierarchy.PK, hierarchy.KEK, hierarchy.Db} {
				block, _ := pem.Decode(pair.CertPEM)
				Expect(block).ToNot(BeNil())
				Expect(block.Bytes).To(Equal(pair.CertDER))

				cert, err := x509.ParseCertificate(block.Bytes)
				Expect(err).ToNot(HaveOccurred())
				Expect(cert.Subject.CommonName).To(HavePrefix("Acme "))
				Expect(cert.IsCA).To(BeTrue())

				names[cert.Subject.CommonName] = true

				keyBlock, _ := pem.Decode(pair.KeyPEM)
				Expect(keyBlock).ToNot(BeNil())
				_, err = x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
				Expect(err).ToNot(HaveOccurred())
			}

			Expect(names).To(HaveLen(3))
		})

		ginkgo.It("writes the conventional file layout", func() {
			tmpDir := ginkgo.GinkgoT().TempDir()

			Expect(hierarchy.Write(filepath.Join(tmpDir, "secureboot"))).ToNot(HaveOccurred())

			for _, name := range []string{
				"PK.key", "PK.pem", "PK.der",
				"KEK.key", "KEK.pem", "KEK.der",
				"db.key", "db.pem", "db.der",
			} {
				st, err := os.Stat(filepath.Join(tmpDir, "secureboot", name))
				Expect(err).ToNot(HaveOccurred())
				Expect(st.Size()).To(BeNumerically(">", 0))
			}
		})
	})

	ginkgo.Describe("Database", func() {
		ginkgo.It("produces the three signed enrollment files", func() {
			hierarchy, err := GenerateHierarchy("Acme")
			Expect(err).ToNot(HaveOccurred())

			tmpDir := ginkgo.GinkgoT().TempDir()
			Expect(hierarchy.Write(tmpDir)).ToNot(HaveOccurred())

			signer, err := pesign.NewSecureBootSigner(
				filepath.Join(tmpDir, "PK.pem"),
				filepath.Join(tmpDir, "PK.key"),
			)
			Expect(err).ToNot(HaveOccurred())

			entries, err := Database(hierarchy.Db.CertDER, signer)
			Expect(err).ToNot(HaveOccurred())
			Expect(entries).To(HaveLen(3))

			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				names = append(names, entry.Name)
				Expect(entry.Contents).ToNot(BeEmpty())
			}

			Expect(names).To(Equal([]string{"db.auth", "KEK.auth", "PK.auth"}))
		})
	})
})
