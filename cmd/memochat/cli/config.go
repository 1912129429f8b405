package cli

import (
	"fmt"

	"github.com/felixgeelhaar/memochat/internal/config"
	"github.com/felixgeelhaar/memochat/internal/credential"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage stored settings such as API keys",
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Keys ending in api_key are stored sealed.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		s, err := openStores(config.Default())
		if err != nil {
			return err
		}
		defer s.Close()

		vault, err := credential.NewVault()
		if err != nil {
			return err
		}
		if err := vault.Put(s.db, key, value); err != nil {
			return fmt.Errorf("failed to set config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved: %s\n", key)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		s, err := openStores(config.Default())
		if err != nil {
			return err
		}
		defer s.Close()

		vault, err := credential.NewVault()
		if err != nil {
			return err
		}
		val, err := vault.Get(s.db, key)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch {
		case val == "":
			fmt.Fprintln(out, "(not set)")
		case credential.IsSecretKey(key):
			fmt.Fprintln(out, credential.Mask(val))
		default:
			fmt.Fprintln(out, val)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}
