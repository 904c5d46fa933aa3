package main

import (
	"github.com/autom8ter/jsondelta"
	"github.com/spf13/cobra"
)

func diffCmd(flags *globalFlags) *cobra.Command {
	var (
		previous  string
		current   string
		deepEqual bool
	)
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "compute the delta between two snapshots of a collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prev, err := readDocuments(cmd, previous)
			if err != nil {
				return err
			}
			cur, err := readDocuments(cmd, current)
			if err != nil {
				return err
			}
			delta, err := jsondelta.Diff(cur, prev, jsondelta.FieldKey(flags.primaryKey), jsondelta.WithDeepEqual(deepEqual))
			if err != nil {
				return err
			}
			return render(cmd, flags, delta)
		},
	}
	cmd.Flags().StringVarP(&previous, "previous", "p", "", "previous snapshot (json or yaml array)")
	cmd.Flags().StringVarP(&current, "current", "c", "", "current snapshot (json or yaml array)")
	cmd.Flags().BoolVar(&deepEqual, "deep-equal", true, "compare items structurally instead of by reference")
	return cmd
}
