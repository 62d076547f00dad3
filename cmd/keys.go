package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kairos-io/go-ukigen/pkg/keys"
	"github.com/kairos-io/go-ukigen/pkg/pesign"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate SecureBoot key material",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the PK/KEK/db key hierarchy",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = viper.BindPFlags(cmd.Flags())

		output := viper.GetString("output")
		org := viper.GetString("org")

		slog.Info("Generating SecureBoot key hierarchy", "output", output, "org", org)

		hierarchy, err := keys.GenerateHierarchy(org)
		if err != nil {
			return err
		}

		if err = hierarchy.Write(output); err != nil {
			return err
		}

		slog.Info("Generated SecureBoot key hierarchy", "output", output)
		return nil
	},
}

var keysDatabaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Generate the signed auto-enrollment database (PK.auth, KEK.auth, db.auth)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = viper.BindPFlags(cmd.Flags())

		output := viper.GetString("output")

		signer, err := pesign.NewSecureBootSigner(viper.GetString("signing-cert"), viper.GetString("signing-key"))
		if err != nil {
			return err
		}

		enrolled, err := os.ReadFile(viper.GetString("enrolled-cert"))
		if err != nil {
			return err
		}

		entries, err := keys.Database(enrolled, signer)
		if err != nil {
			return err
		}

		if err = os.MkdirAll(output, 0o700); err != nil {
			return err
		}

		for _, entry := range entries {
			path := filepath.Join(output, entry.Name)

			if err = os.WriteFile(path, entry.Contents, 0o600); err != nil {
				return err
			}

			slog.Info("Wrote enrollment file", "path", path)
		}

		return nil
	},
}

func init() {
	keysCmd.PersistentFlags().StringP("output", "o", "secureboot", "Output directory for the generated files.")

	keysGenerateCmd.Flags().String("org", "UKI Signing", "Organization name embedded in the certificates.")

	keysDatabaseCmd.Flags().String("enrolled-cert", "", "Certificate (DER) to enroll in the database.")
	keysDatabaseCmd.Flags().String("signing-cert", "", "Certificate used to sign the database, usually the PK.")
	keysDatabaseCmd.Flags().String("signing-key", "", "Key used to sign the database, usually the PK.")
	_ = keysDatabaseCmd.MarkFlagRequired("enrolled-cert")
	_ = keysDatabaseCmd.MarkFlagRequired("signing-cert")
	_ = keysDatabaseCmd.MarkFlagRequired("signing-key")

	keysCmd.AddCommand(keysGenerateCmd)
	keysCmd.AddCommand(keysDatabaseCmd)
	rootCmd.AddCommand(keysCmd)
}
