package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kairos-io/go-ukigen/pkg/constants"
	"github.com/kairos-io/go-ukigen/pkg/pe"
)

// layoutCmd runs only the offset calculation and prints the plan, without
// touching the stub. Useful to diff against what objcopy would produce.
var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Compute the section layout for a UKI without assembling it",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = viper.BindPFlags(cmd.Flags())

		alignPolicy, err := pe.ParseAlignPolicy(viper.GetString("align-policy"))
		if err != nil {
			return err
		}

		stub, err := pe.FileReader{}.ReadStub(viper.GetString("sd-stub-path"))
		if err != nil {
			return err
		}

		paths := map[constants.Section]string{
			constants.OSRel:   viper.GetString("os-release"),
			constants.CMDLine: viper.GetString("cmdline-file"),
			constants.Splash:  viper.GetString("splash"),
			constants.Initrd:  viper.GetString("initrd"),
			constants.Linux:   viper.GetString("kernel"),
		}

		payloads := make([]pe.Payload, 0, len(paths))
		for _, section := range constants.AppendedSections() {
			payloads = append(payloads, pe.Payload{Name: section.String(), Path: paths[section]})
		}

		payloads, err = pe.StatPayloads(payloads)
		if err != nil {
			return err
		}

		plan, err := pe.Layout(stub, payloads, alignPolicy)
		if err != nil {
			return err
		}

		for _, section := range plan {
			fmt.Printf("%s 0x%x\n", section.Name, section.VMA)
		}

		return nil
	},
}

func init() {
	layoutCmd.Flags().StringP("sd-stub-path", "s", "", "Path to the sd-stub.")
	layoutCmd.Flags().StringP("os-release", "o", "", "os-release file.")
	layoutCmd.Flags().String("cmdline-file", "", "File holding the kernel cmdline.")
	layoutCmd.Flags().String("splash", "", "Path to the logo splash BMP file.")
	layoutCmd.Flags().StringP("initrd", "i", "", "Path to the initrd image.")
	layoutCmd.Flags().StringP("kernel", "k", "", "Path to the kernel image.")
	layoutCmd.Flags().String("align-policy", "round-up-or-stay", "Section alignment policy, round-up-or-stay or strict-next-boundary.")

	_ = layoutCmd.MarkFlagRequired("sd-stub-path")
	_ = layoutCmd.MarkFlagRequired("os-release")
	_ = layoutCmd.MarkFlagRequired("cmdline-file")
	_ = layoutCmd.MarkFlagRequired("splash")
	_ = layoutCmd.MarkFlagRequired("initrd")
	_ = layoutCmd.MarkFlagRequired("kernel")

	rootCmd.AddCommand(layoutCmd)
}
