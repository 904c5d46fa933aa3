package main

import (
	"github.com/autom8ter/jsondelta"
	"github.com/spf13/cobra"
)

func writeCmd(flags *globalFlags) *cobra.Command {
	var (
		ddlPath      string
		schemaPath   string
		itemsPath    string
		actionsPath  string
		userID       string
		userEmail    string
		partial      bool
		recoverMode  string
		recoverLimit int
	)
	cmd := &cobra.Command{
		Use:   "write",
		Short: "apply write actions to a collection described by a ddl",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger, err := jsondelta.NewLogger(flags.logLevel, map[string]any{"cmd": "write"})
			if err != nil {
				return err
			}
			bits, err := readInput(cmd, ddlPath)
			if err != nil {
				return err
			}
			ddl, err := jsondelta.LoadDDL(bits)
			if err != nil {
				return err
			}
			var validator jsondelta.Validator
			if schemaPath != "" {
				bits, err := readInput(cmd, schemaPath)
				if err != nil {
					return err
				}
				if validator, err = jsondelta.NewJSONSchema(bits); err != nil {
					return err
				}
			}
			engine, err := jsondelta.NewWriteEngine(ddl, validator, jsondelta.WithLogger(logger))
			if err != nil {
				return err
			}
			items, err := readDocuments(cmd, itemsPath)
			if err != nil {
				return err
			}
			bits, err = readInput(cmd, actionsPath)
			if err != nil {
				return err
			}
			actions, err := jsondelta.ParseWriteActions(bits)
			if err != nil {
				return err
			}
			opts := []jsondelta.WriteOpt{
				jsondelta.WithAllowPartialSuccess(partial),
				jsondelta.WithRecoverDuplicateCreate(jsondelta.RecoverStrategy(recoverMode)),
				jsondelta.WithRecoverySimulationLimit(recoverLimit),
			}
			if userID != "" || userEmail != "" {
				opts = append(opts, jsondelta.WithUser(&jsondelta.User{ID: userID, Email: userEmail}))
			}
			result, err := engine.Apply(ctx, actions, items, opts...)
			if err != nil {
				return err
			}
			return render(cmd, flags, result)
		},
	}
	cmd.Flags().StringVar(&ddlPath, "ddl", "", "ddl describing the collection's scopes (json or yaml)")
	cmd.Flags().StringVarP(&schemaPath, "schema", "s", "", "json schema items are validated against (json or yaml)")
	cmd.Flags().StringVarP(&itemsPath, "items", "i", "", "collection (json or yaml array)")
	cmd.Flags().StringVarP(&actionsPath, "actions", "a", "", "write actions (json or yaml array)")
	cmd.Flags().StringVar(&userID, "user-id", "", "id of the user writing")
	cmd.Flags().StringVar(&userEmail, "user-email", "", "email of the user writing")
	cmd.Flags().BoolVar(&partial, "allow-partial-success", false, "keep the successful actions when others fail")
	cmd.Flags().StringVar(&recoverMode, "recover-duplicate-create", string(jsondelta.RecoverNever), "never, if-identical or always-update")
	cmd.Flags().IntVar(&recoverLimit, "recovery-simulation-limit", jsondelta.DefaultRecoverySimulationLimit, "max simulated actions per recovered create")
	return cmd
}
