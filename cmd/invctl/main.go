package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

type globalOptions struct {
	configPath string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "invctl",
		Short: "Sign in to the inventory service and manage the local session",
		Long: `invctl keeps an authenticated session with the inventory Auth Service.

Tokens are kept in a local SQLite file (optionally sealed) so the session
survives between runs. Configuration comes from an optional YAML file and
INVCTL_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(
		loginCmd(opts),
		registerCmd(opts),
		logoutCmd(opts),
		whoamiCmd(opts),
		refreshCmd(opts),
		verifyCmd(opts),
		profileCmd(opts),
		passwordCmd(opts),
		canCmd(opts),
		watchCmd(opts),
		versionCmd(opts),
	)
	return cmd
}
