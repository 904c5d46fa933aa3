package main

import (
	"encoding/json"

	"github.com/autom8ter/jsondelta"
	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/util"
	"github.com/spf13/cobra"
)

func constrainCmd(flags *globalFlags) *cobra.Command {
	var (
		filter string
		delta  string
	)
	cmd := &cobra.Command{
		Use:   "constrain",
		Short: "restrict a delta to the items matching a filter",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bits, err := readInput(cmd, filter)
			if err != nil {
				return err
			}
			if bits, err = util.YAMLToJSON(bits); err != nil {
				return errors.Wrap(err, errors.Validation, "failed to parse filter")
			}
			var value any
			if err := json.Unmarshal(bits, &value); err != nil {
				return errors.Wrap(err, errors.Validation, "failed to parse filter")
			}
			f, err := jsondelta.ParseFilter(value)
			if err != nil {
				return err
			}
			d, err := readDelta(cmd, delta)
			if err != nil {
				return err
			}
			constrained, err := jsondelta.ConstrainToFilter(f, d, jsondelta.FieldKey(flags.primaryKey))
			if err != nil {
				return err
			}
			return render(cmd, flags, constrained)
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "filter (json or yaml object)")
	cmd.Flags().StringVarP(&delta, "delta", "d", "", "delta (json or yaml object)")
	return cmd
}
