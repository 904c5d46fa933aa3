package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	primaryKey string
	logLevel   string
	template   string
	output     string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "jsondelta",
		Short:         "compute, apply and reduce deltas between json collections",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.primaryKey, "pk", "id", "primary key field of the collection")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "error", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&flags.template, "template", "t", "", "go template (with sprig functions) used to render the output")
	cmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "json", "output format when no template is given (json, yaml)")
	cmd.AddCommand(
		diffCmd(flags),
		applyCmd(flags),
		reduceCmd(flags),
		constrainCmd(flags),
		writeCmd(flags),
	)
	return cmd
}
