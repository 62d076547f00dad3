package uki

import (
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kairos-io/go-ukigen/pkg/constants"
)

func TestSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "UKI test Suite")
}

var _ = Describe("Section generation tests", func() {
	var builder *Builder
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		builder = &Builder{
			Version:    "v1.2.3",
			Cmdline:    "root=LABEL=BOOT quiet",
			InitrdPath: filepath.Join(tmpDir, "initrd"),
			KernelPath: filepath.Join(tmpDir, "vmlinuz"),
			Logger:     slog.Default(),
			scratchDir: tmpDir,
		}
	})

	It("generates an os-release when none is given", func() {
		Expect(builder.generateOSRel()).ToNot(HaveOccurred())
		Expect(builder.sections).To(HaveLen(1))
		Expect(builder.sections[0].Name).To(Equal(constants.OSRel))

		data, err := os.ReadFile(builder.sections[0].Path)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`NAME="Kairos"`))
		Expect(string(data)).To(ContainSubstring("VERSION_ID=v1.2.3"))
	})

	It("uses the os-release passed in", func() {
		path := filepath.Join(tmpDir, "os-release")
		Expect(os.WriteFile(path, []byte("NAME=custom\n"), 0o600)).ToNot(HaveOccurred())

		builder.OsRelease = path
		Expect(builder.generateOSRel()).ToNot(HaveOccurred())
		Expect(builder.sections[0].Path).To(Equal(path))
	})

	It("writes the cmdline to the scratch dir", func() {
		Expect(builder.generateCmdline()).ToNot(HaveOccurred())

		data, err := os.ReadFile(builder.sections[0].Path)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(Equal("root=LABEL=BOOT quiet"))
	})

	It("falls back to the bundled splash", func() {
		Expect(builder.generateSplash()).ToNot(HaveOccurred())

		data, err := os.ReadFile(builder.sections[0].Path)
		Expect(err).ToNot(HaveOccurred())
		Expect(data[:2]).To(Equal([]byte{'B', 'M'}))
	})

	It("keeps the appended payloads in the mandated order", func() {
		for _, generate := range []func() error{
			builder.generateOSRel,
			builder.generateCmdline,
			builder.generateSplash,
			builder.generateInitrd,
			builder.generateKernel,
		} {
			Expect(generate()).ToNot(HaveOccurred())
		}

		var appended []constants.Section
		for _, section := range builder.sections {
			if section.Append {
				appended = append(appended, section.Name)
			}
		}

		Expect(appended).To(Equal(constants.AppendedSections()))
	})
})

var _ = Describe("DiscoverKernelVersion tests", func() {
	var tmpDir string

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
	})

	// minimal bzImage: boot protocol magic plus a version banner
	writeBzImage := func(banner string, versionPtr uint16) string {
		image := make([]byte, 0x4000)
		binary.LittleEndian.PutUint32(image[0x202:], 0x53726448)
		binary.LittleEndian.PutUint16(image[0x20e:], versionPtr)
		copy(image[int(versionPtr)+0x200:], banner)

		path := filepath.Join(tmpDir, "vmlinuz")
		Expect(os.WriteFile(path, image, 0o600)).ToNot(HaveOccurred())

		return path
	}

	It("extracts the version from the banner", func() {
		path := writeBzImage("6.5.0-generic (builder@host) #1 SMP", 0x1000)

		version, err := DiscoverKernelVersion(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(version).To(Equal("6.5.0-generic"))
	})

	It("fails when the magic is missing", func() {
		path := filepath.Join(tmpDir, "random")
		Expect(os.WriteFile(path, make([]byte, 0x1000), 0o600)).ToNot(HaveOccurred())

		_, err := DiscoverKernelVersion(path)
		Expect(err).To(HaveOccurred())
	})

	It("fails when no version string is present", func() {
		path := writeBzImage("", 0)

		_, err := DiscoverKernelVersion(path)
		Expect(err).To(HaveOccurred())
	})

	It("reads a banner that ends at the end of the file", func() {
		banner := "6.5.0-generic (builder@host) #1 SMP"

		image := make([]byte, 0x1200+len(banner))
		binary.LittleEndian.PutUint32(image[0x202:], 0x53726448)
		binary.LittleEndian.PutUint16(image[0x20e:], 0x1000)
		copy(image[0x1200:], banner)

		path := filepath.Join(tmpDir, "vmlinuz")
		Expect(os.WriteFile(path, image, 0o600)).ToNot(HaveOccurred())

		version, err := DiscoverKernelVersion(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(version).To(Equal("6.5.0-generic"))
	})
})
