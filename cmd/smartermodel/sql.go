package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adrianmcphee/smartermodel/internal/executor"
	"github.com/adrianmcphee/smartermodel/sqlgen"
)

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	*RootOptions
	Dialect string
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sql <statement>",
		Short: "Translate a SELECT, UPDATE or DELETE into another dialect",
		Long: `Translate a SELECT, UPDATE or DELETE statement into the dialect a
driver would send: mysql, sqlite, postgres or cql.

  smartermodel sql --dialect cql "SELECT * FROM users WHERE age > 30 LIMIT 10"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			override(cmd, "dialect", opts.Dialect, &opts.Config.Dialect)
			out, err := translate(opts.Config.Dialect, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, "dialect", "d", "", "target dialect (default postgres)")

	return cmd
}

func translate(dialect, sql string) (string, error) {
	d, err := sqlgen.DialectByName(dialect)
	if err != nil {
		return "", err
	}
	q, err := executor.Translate(sql)
	if err != nil {
		return "", err
	}
	return sqlgen.New(d).Compile(q)
}
