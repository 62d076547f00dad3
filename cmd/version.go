package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kairos-io/go-ukigen/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	RunE: func(cmd *cobra.Command, args []string) error {
		long, _ := cmd.Flags().GetBool("long")
		if long {
			fmt.Println(common.Get())
		} else {
			fmt.Println(common.GetVersion())
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolP("long", "l", false, "long version format")
	rootCmd.AddCommand(versionCmd)
}
