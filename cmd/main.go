package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"soundwork/pkg/config"
)

// @title           Soundwork Marketplace API
// @version         1.0
// @description     Ledger of sound assets with fixed-price sales, auctions and operator approvals

// @BasePath  /

// @schemes   http https

var (
	cfg         *config.Config
	flagNoColor bool
)

var rootCmd = &cobra.Command{
	Use:   "soundwork",
	Short: "Sound asset marketplace ledger",
	Long: `soundwork runs the marketplace API and inspects its event journal.

Run with no subcommand to start the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagNoColor {
			color.NoColor = true
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return cfg.Validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.AddCommand(newServeCmd(), newJournalCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}
