package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/fanout/internal/config"
	"github.com/Iron-Ham/fanout/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:   "validate <manifest>",
	Short: "Validate a manifest without running it",
	Long: `Validate a manifest file and the orchestration options it would
run with, then print a summary of the declared work.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(args[0])
	if err != nil {
		return err
	}

	// The effective options must also hold once overrides are applied.
	opts := config.Get().Options()
	m.Orchestration.Apply(&opts)
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("effective orchestration options invalid: %w", err)
	}

	phases := m.Phases()
	fmt.Printf("%s: valid\n", args[0])
	if m.Name != "" {
		fmt.Printf("  name:   %s\n", m.Name)
	}
	fmt.Printf("  units:  %d across %d phase(s)\n", len(m.Units), len(phases))

	categories := make(map[string]int)
	for _, phase := range phases {
		units := m.UnitsFor(phase)
		fmt.Printf("  phase %d: %d unit(s)\n", phase, len(units))
		for _, u := range units {
			categories[u.Category]++
		}
	}

	names := make([]string, 0, len(categories))
	for cat := range categories {
		names = append(names, cat)
	}
	sort.Strings(names)
	fmt.Printf("  categories: %s\n", strings.Join(names, ", "))

	return nil
}
