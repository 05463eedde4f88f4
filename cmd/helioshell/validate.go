// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Helioshell Contributors

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/helioshell/helioshell/internal/manifest"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalogue.json>",
		Short: "Validate a plugin catalogue document",
		Long: `Validate a catalogue document (a JSON object keyed by plugin id)
against the descriptor schema. Every failing entry is reported; the
command exits non-zero if any entry fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			failures := manifest.ValidateCatalogue(data)
			if len(failures) == 0 {
				cmd.Printf("%s: valid\n", args[0])
				return nil
			}

			keys := make([]string, 0, len(failures))
			for key := range failures {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			for _, key := range keys {
				if key == "" {
					cmd.PrintErrf("catalogue: %s\n", manifest.FormatSchemaError(failures[key]))
					continue
				}
				cmd.PrintErrf("%s: %s\n", key, manifest.FormatSchemaError(failures[key]))
			}
			return fmt.Errorf("%d invalid catalogue entries", len(failures))
		},
	}
}
