package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adrianmcphee/smartermodel/internal/executor"
	"github.com/adrianmcphee/smartermodel/internal/export"
	"github.com/adrianmcphee/smartermodel/memdb"
	"github.com/adrianmcphee/smartermodel/sqlgen"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	DataDir  string
	Dialect  string
	DDLOnly  bool
	DataOnly bool
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the data directory as DDL and INSERT statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.DDLOnly && opts.DataOnly {
				return fmt.Errorf("--ddl-only and --data-only are mutually exclusive")
			}
			override(cmd, "data", opts.DataDir, &opts.Config.DataDir)
			override(cmd, "dialect", opts.Dialect, &opts.Config.Dialect)
			return runExport(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data", "", "data directory (default ./data)")
	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "", "target dialect (default postgres)")
	cmd.Flags().BoolVar(&opts.DDLOnly, "ddl-only", false, "export only the schema")
	cmd.Flags().BoolVar(&opts.DataOnly, "data-only", false, "export only the data")

	return cmd
}

func runExport(cmd *cobra.Command, opts *ExportOptions) error {
	d, err := sqlgen.DialectByName(opts.Config.Dialect)
	if err != nil {
		return err
	}

	exec := executor.NewExecutor(memdb.New())
	if err := exec.Load(opts.Config.DataDir); err != nil {
		return fmt.Errorf("load %s: %w", opts.Config.DataDir, err)
	}

	x := export.New(d)
	var out string
	switch {
	case opts.DDLOnly:
		out = x.DDL(exec)
	case opts.DataOnly:
		out, err = x.Data(exec)
	default:
		out, err = x.Export(exec)
	}
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
