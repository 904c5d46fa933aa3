package main

import (
	"github.com/autom8ter/jsondelta"
	"github.com/spf13/cobra"
)

func reduceCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reduce [delta files...]",
		Short: "merge a sequence of deltas into a single equivalent delta",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deltas := make([]jsondelta.Delta, 0, len(args))
			for _, path := range args {
				d, err := readDelta(cmd, path)
				if err != nil {
					return err
				}
				deltas = append(deltas, d)
			}
			reduced, err := jsondelta.ReduceDeltas(deltas, jsondelta.FieldKey(flags.primaryKey))
			if err != nil {
				return err
			}
			return render(cmd, flags, reduced)
		},
	}
	return cmd
}
