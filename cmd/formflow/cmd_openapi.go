package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-formflow/pkg/openapi"
)

func newImportOpenAPICmd(a *app) *cobra.Command {
	var (
		operation string
		id        string
		version   string
		output    string
		list      bool
		publish   bool
	)
	cmd := &cobra.Command{
		Use:   "import-openapi <document>",
		Short: "Generate a form template from an OpenAPI request body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if list {
				ids, err := openapi.Operations(cmd.Context(), raw)
				if err != nil {
					return err
				}
				for _, op := range ids {
					fmt.Fprintln(out, op)
				}
				return nil
			}
			if operation == "" {
				return fmt.Errorf("import-openapi: --operation is required (use --list to see operations)")
			}

			tpl, err := openapi.ImportTemplate(cmd.Context(), raw, operation,
				openapi.WithTemplateID(id),
				openapi.WithVersion(version),
				openapi.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}

			if publish {
				engine, err := a.engineFor(cmd.Context())
				if err != nil {
					return err
				}
				v, err := engine.Publish(cmd.Context(), tpl, []string{"Imported from " + filepath.Base(args[0])}, "import-openapi")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "published %s@%s\n", tpl.ID, v.Version)
			}

			var encoded []byte
			switch strings.ToLower(filepath.Ext(output)) {
			case ".yaml", ".yml":
				encoded, err = yaml.Marshal(tpl)
			default:
				encoded, err = json.MarshalIndent(tpl, "", "  ")
				encoded = append(encoded, '\n')
			}
			if err != nil {
				return err
			}
			if output == "" {
				_, err = out.Write(encoded)
				return err
			}
			if err := os.WriteFile(output, encoded, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s (%d fields)\n", output, len(tpl.Fields()))
			return nil
		},
	}
	cmd.Flags().StringVar(&operation, "operation", "", "operationId (or method:path) to import")
	cmd.Flags().StringVar(&id, "id", "", "template id (defaults to the operation id)")
	cmd.Flags().StringVar(&version, "version", "", "template version (defaults to info.version)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file; .yaml/.yml selects YAML")
	cmd.Flags().BoolVar(&list, "list", false, "list importable operations and exit")
	cmd.Flags().BoolVar(&publish, "publish", false, "also publish the template as a new version")
	return cmd
}
