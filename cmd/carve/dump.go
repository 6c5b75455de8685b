package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkarren/carve/pkg/carve"
	"github.com/mkarren/carve/pkg/carvekit"
)

var (
	dumpSchemaPath string
	dumpGaps       bool
)

var dumpCmd = &cobra.Command{
	Use:   "dump <binary>",
	Short: "Parse a binary file and print the extracted field tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringVarP(&dumpSchemaPath, "schema", "s", "", "Path to the YAML schema file (required)")
	dumpCmd.Flags().BoolVar(&dumpGaps, "gaps", false, "Materialize unspecified byte ranges as unknown fields")
	_ = dumpCmd.MarkFlagRequired("schema")
}

func runDump(cmd *cobra.Command, args []string) error {
	parser := carvekit.NewParser(
		carvekit.WithLogger(newLogger()),
		carvekit.WithGapFill(dumpGaps),
	)

	if jsonOut {
		out, err := parser.DumpJSON(args[0], dumpSchemaPath)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	fields, err := parser.ParseFile(args[0], dumpSchemaPath)
	if err != nil {
		return err
	}
	return carve.WriteTree(cmd.OutOrStdout(), fields)
}
