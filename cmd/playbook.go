package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/unson/lpops/internal/playbook"
)

var playbookCmd = &cobra.Command{
	Use:   "playbook",
	Short: "Inspect and walk playbook catalogs",
}

var playbookValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate every catalog in the configured directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogs, err := playbook.LoadDir(cfg.Playbook.CatalogPath)
		if err != nil {
			return err
		}
		for id, c := range catalogs {
			fmt.Printf("%s: %d nodes, %d phases, ok\n", id, len(c.Nodes), c.Phases())
		}
		return nil
	},
}

var playbookShowCmd = &cobra.Command{
	Use:   "show <catalog-id>",
	Short: "Print a catalog's flow graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogs, err := playbook.LoadDir(cfg.Playbook.CatalogPath)
		if err != nil {
			return err
		}
		c, ok := catalogs[args[0]]
		if !ok {
			return eris.Errorf("catalog %q not found", args[0])
		}

		fmt.Printf("%s (%s, version %s)\n", c.Name, c.ID, c.Version)
		for _, n := range c.Nodes {
			fmt.Printf("  %s [%s] %s\n", n.ID, n.Type, n.Label)
			for _, b := range n.Branches {
				prob := ""
				if b.Probability > 0 {
					prob = fmt.Sprintf(" (p=%.2f)", b.Probability)
				}
				fmt.Printf("    %s -> %s%s\n", b.Condition, b.Target, prob)
			}
		}
		return nil
	},
}

var playbookChanges []string

var playbookNextCmd = &cobra.Command{
	Use:   "next <catalog-id> <node-id>",
	Short: "Pick the next node given metric changes",
	Long: `Maps each --change metric=pct onto the symbol scale and selects the
first matching branch from the given node.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalogs, err := playbook.LoadDir(cfg.Playbook.CatalogPath)
		if err != nil {
			return err
		}
		c, ok := catalogs[args[0]]
		if !ok {
			return eris.Errorf("catalog %q not found", args[0])
		}
		node, ok := c.Node(args[1])
		if !ok {
			return eris.Errorf("node %q not in catalog %s", args[1], c.ID)
		}

		changes := map[string]float64{}
		for _, raw := range playbookChanges {
			metric, value, found := strings.Cut(raw, "=")
			if !found {
				return eris.Errorf("bad --change %q, want metric=pct", raw)
			}
			pct, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return eris.Wrapf(err, "bad --change %q", raw)
			}
			changes[strings.ToLower(metric)] = pct
		}

		ind := playbook.IndicatorsFrom(changes)
		for metric, symbol := range ind {
			fmt.Printf("%s: %s\n", metric, symbol)
		}

		branch, ok := node.NextTarget(ind)
		if !ok {
			fmt.Println("no branch matches; session stays at", node.ID)
			return nil
		}
		fmt.Printf("next: %s (condition %q)\n", branch.Target, branch.Condition)
		return nil
	},
}

func init() {
	playbookNextCmd.Flags().StringArrayVar(&playbookChanges, "change", nil, "metric=pct change, repeatable")

	playbookCmd.AddCommand(playbookValidateCmd, playbookShowCmd, playbookNextCmd)
	rootCmd.AddCommand(playbookCmd)
}
