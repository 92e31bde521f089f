package docindexer

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finlex/docindexer/pkg/config"
)

var (
	cfgFile string
	dbPath  string
	verbose bool
	cfg     *config.Config
	version string = "dev"
)

var RootCmd = &cobra.Command{
	Use:   "docindexer",
	Short: "docindexer - expense document indexing and semantic search",
	Long: `docindexer ingests expense documents (receipts, invoices, statements,
contracts) for multiple tenants, fragments them with class-specific chunking,
and serves tenant-scoped semantic search over the indexed fragments.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if dbPath != "" {
			cfg.Store.DBPath = dbPath
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		return nil
	},
}

func Execute() error {
	return RootCmd.Execute()
}

// GetRootCmd returns the root cobra command for testing purposes.
func GetRootCmd() *cobra.Command {
	return RootCmd
}

// SetVersion sets the version for the CLI.
func SetVersion(v string) {
	version = v
	RootCmd.Version = v
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("docindexer version %s\n", version)
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path (default: ~/.docindexer/docindexer.toml or ./docindexer.toml)")
	RootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "fragment database path (default: ~/.docindexer/data/fragments.db)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging output")

	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(ingestCmd)
	RootCmd.AddCommand(searchCmd)
	RootCmd.AddCommand(statusCmd)
}
