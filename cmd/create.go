package cmd

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kairos-io/go-ukigen/pkg/constants"
	"github.com/kairos-io/go-ukigen/pkg/pe"
	"github.com/kairos-io/go-ukigen/pkg/types"
	"github.com/kairos-io/go-ukigen/pkg/uki"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a uki file",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = viper.BindPFlags(cmd.Flags())

		var parsedPhases []types.PhaseInfo

		phases := viper.GetString("phases")
		// Default to the known systemd phases
		if phases == "" {
			parsedPhases = types.OrderedPhases()
		} else {
			// Parse phases from string in order
			for _, phase := range strings.Split(phases, ":") {
				parsedPhases = append(parsedPhases, types.PhaseInfo{
					Phase:              constants.Phase(phase),
					CalculateSignature: true,
				})
			}
		}

		if viper.GetBool("debug") {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}

		alignPolicy, err := pe.ParseAlignPolicy(viper.GetString("align-policy"))
		if err != nil {
			return err
		}

		builder := &uki.Builder{
			Arch:          viper.GetString("arch"),
			Version:       viper.GetString("version"),
			SdStubPath:    viper.GetString("sd-stub-path"),
			SdBootPath:    viper.GetString("sd-boot-path"),
			KernelPath:    viper.GetString("kernel"),
			InitrdPath:    viper.GetString("initrd"),
			Cmdline:       viper.GetString("cmdline"),
			OutSdBootPath: viper.GetString("output-sdboot"),
			OutUKIPath:    viper.GetString("output-uki"),
			PCRKey:        viper.GetString("pcr-key"),
			SBKey:         viper.GetString("sb-key"),
			SBCert:        viper.GetString("sb-cert"),
			Splash:        viper.GetString("splash"),
			AlignPolicy:   alignPolicy,
			Phases:        parsedPhases,
		}

		if viper.GetString("os-release") != "" {
			builder.OsRelease = viper.GetString("os-release")
		}

		return builder.Build()
	},
}

func init() {
	createCmd.Flags().StringP("arch", "a", "", "Arch of the UKI file.")
	createCmd.Flags().String("version", "", "Version.")
	createCmd.Flags().StringP("sd-stub-path", "s", "", "Path to the sd-stub.")
	createCmd.Flags().StringP("sd-boot-path", "b", "", "Path to the sd-boot.")
	createCmd.Flags().StringP("kernel", "k", "", "Path to the kernel image.")
	createCmd.Flags().StringP("initrd", "i", "", "Path to the initrd image.")
	createCmd.Flags().StringP("cmdline", "c", "", "Kernel cmdline.")
	createCmd.Flags().StringP("os-release", "o", "", "os-release file.")
	createCmd.Flags().String("sb-cert", "", "SecureBoot certificate to sign efi files with.")
	createCmd.Flags().String("sb-key", "", "SecureBoot key to sign efi files with, a PEM file or a PKCS#11 URI.")
	createCmd.Flags().StringP("pcr-key", "p", "", "PCR key.")
	createCmd.Flags().StringP("output-sdboot", "", "sdboot.signed.efi", "sdboot output.")
	createCmd.Flags().StringP("output-uki", "", "uki.signed.efi", "uki artifact output.")
	createCmd.Flags().StringP("phases", "", "enter-initrd:leave-initrd:sysinit:ready", "phases to measure for, separated by : and in order of measurement")
	createCmd.Flags().String("splash", "", "Path to the custom logo splash BMP file.")
	createCmd.Flags().String("align-policy", "round-up-or-stay", "Section alignment policy, round-up-or-stay or strict-next-boundary.")
	createCmd.Flags().Bool("debug", false, "Enable debug output")

	_ = createCmd.MarkFlagRequired("sd-stub-path")
	_ = createCmd.MarkFlagRequired("initrd")
	_ = createCmd.MarkFlagRequired("kernel")

	rootCmd.AddCommand(createCmd)
}
