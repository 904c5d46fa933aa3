package main

import (
	"encoding/json"
	"io"
	"os"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/autom8ter/jsondelta"
	"github.com/autom8ter/jsondelta/errors"
	"github.com/autom8ter/jsondelta/util"
	"github.com/spf13/cobra"
)

// readInput reads a file, or stdin if the path is "-"
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New(errors.Validation, "missing input path")
	}
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	bits, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to read %s", path)
	}
	return bits, nil
}

func readDocuments(cmd *cobra.Command, path string) (jsondelta.Documents, error) {
	bits, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	bits, err = util.YAMLToJSON(bits)
	if err != nil {
		return nil, errors.Wrap(err, errors.Validation, "failed to parse %s", path)
	}
	var docs jsondelta.Documents
	if err := json.Unmarshal(bits, &docs); err != nil {
		return nil, errors.Wrap(err, errors.Validation, "expected an array of objects in %s", path)
	}
	return docs, nil
}

func readDelta(cmd *cobra.Command, path string) (jsondelta.Delta, error) {
	bits, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	return jsondelta.ParseDelta(bits)
}

// render writes the value as indented json, or through the user's template
func render(cmd *cobra.Command, flags *globalFlags, value any) error {
	out := cmd.OutOrStdout()
	if flags.template == "" {
		switch flags.output {
		case "yaml":
			bits, err := json.Marshal(value)
			if err != nil {
				return err
			}
			if bits, err = util.JSONToYAML(bits); err != nil {
				return err
			}
			_, err = out.Write(bits)
			return err
		case "json", "":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(value)
		}
		return errors.New(errors.Validation, "unsupported output format '%s'", flags.output)
	}
	tmpl, err := template.New("output").Funcs(sprig.TxtFuncMap()).Parse(flags.template)
	if err != nil {
		return errors.Wrap(err, errors.Validation, "failed to parse template")
	}
	bits, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var data any
	if err := json.Unmarshal(bits, &data); err != nil {
		return err
	}
	return tmpl.Execute(out, data)
}
