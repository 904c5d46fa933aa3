package main

import (
	"github.com/autom8ter/jsondelta"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

func applyCmd(flags *globalFlags) *cobra.Command {
	var (
		items     string
		delta     string
		whitelist []string
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "apply a delta to a collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			docs, err := readDocuments(cmd, items)
			if err != nil {
				return err
			}
			d, err := readDelta(cmd, delta)
			if err != nil {
				return err
			}
			var opts []jsondelta.ApplyOpt
			if cmd.Flags().Changed("whitelist") {
				opts = append(opts, jsondelta.WithWhitelist(parseKeys(whitelist)...))
			}
			result, err := jsondelta.ApplyDelta(docs, d, jsondelta.FieldKey(flags.primaryKey), opts...)
			if err != nil {
				return err
			}
			return render(cmd, flags, result)
		},
	}
	cmd.Flags().StringVarP(&items, "items", "i", "", "collection (json or yaml array)")
	cmd.Flags().StringVarP(&delta, "delta", "d", "", "delta (json or yaml object)")
	cmd.Flags().StringSliceVar(&whitelist, "whitelist", nil, "only apply changes to these keys")
	return cmd
}

// parseKeys reads numeric keys as numbers and everything else as strings
func parseKeys(keys []string) []jsondelta.PrimaryKeyValue {
	values := make([]jsondelta.PrimaryKeyValue, 0, len(keys))
	for _, k := range keys {
		if f, err := cast.ToFloat64E(k); err == nil {
			values = append(values, f)
			continue
		}
		values = append(values, k)
	}
	return values
}
