package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mkarren/carve/pkg/carve"
)

var infoSchemaPath string

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show a summary of a YAML schema",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringVarP(&infoSchemaPath, "schema", "s", "", "Path to the YAML schema file (required)")
	_ = infoCmd.MarkFlagRequired("schema")
}

func runInfo(cmd *cobra.Command, args []string) error {
	schema, err := carve.LoadSchema(infoSchemaPath)
	if err != nil {
		return err
	}

	// Compile to surface descriptor errors before printing anything.
	if _, err := schema.Compile(nil); err != nil {
		return fmt.Errorf("schema does not compile: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:      %s\n", schema.ID)
	fmt.Fprintf(out, "endian:  %s\n", schema.Endian)
	if schema.Doc != "" {
		fmt.Fprintf(out, "doc:     %s\n", schema.Doc)
	}
	fmt.Fprintf(out, "fields:  %d\n", countItems(schema.Fields))
	printItems(cmd, schema.Fields, 1)
	return nil
}

func countItems(items []carve.SchemaItem) int {
	n := len(items)
	for _, item := range items {
		n += countItems(item.Fields)
	}
	return n
}

func printItems(cmd *cobra.Command, items []carve.SchemaItem, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, item := range items {
		line := indent + item.Type
		if item.Name != "" {
			line += " " + item.Name
		}
		if item.At != nil {
			line += fmt.Sprintf(" @ %#x", *item.At)
		}
		if item.Size != nil {
			line += fmt.Sprintf(" size=%v", item.Size)
		}
		if item.Transform != "" {
			line += " transform=" + item.Transform
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
		printItems(cmd, item.Fields, depth+1)
	}
}
