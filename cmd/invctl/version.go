package main

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
)

const appName = "invctl"

func versionCmd(_ *globalOptions) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			if !short {
				displayAppname(cmd.OutOrStdout(), appName)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s)\n", appName, version, commit)
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "omit the banner")
	return cmd
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
