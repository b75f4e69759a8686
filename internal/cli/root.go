package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd returns the rakeserial command tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "rakeserial",
		Short:   "Rake serial numbers and indent splitting for loading sidings",
		Version: version,
		Long: `rakeserial mints rake serial numbers, stores loading drafts and splits
multi-indent rakes into per-indent serials.

Configuration comes from the environment, an optional .env file and the YAML
file named by RAKESERIAL_CONFIG.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(MigrateCmd())
	rootCmd.AddCommand(MintCmd())
	rootCmd.AddCommand(StatusCmd())
	rootCmd.AddCommand(RecoverCmd())
	rootCmd.AddCommand(ConfigCmd())
	rootCmd.AddCommand(TokenCmd())
	return rootCmd
}
