package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/hotswap"
	"github.com/GoCodeAlone/hotswap/config"
	"github.com/GoCodeAlone/hotswap/registry"
)

var ErrNoManifests = errors.New("at least one --manifest or --config is required")

// NewExplainCommand creates the explain command
func NewExplainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "explain DOMAIN KEY",
		Short: "Explain which candidate wins a (domain, key)",
		Long: `Register the candidates of one or more manifests and show the full
resolution order for DOMAIN/KEY, with the reason each candidate lost.

Manifests listed in --config are loaded before any --manifest flags, and
the configured provenance policy is used for inferred priorities.

Examples:
  hotswapctl explain --manifest vendor/acme/hotswap.yaml adapter cache
  hotswapctl explain --config hotswap.yaml --provider redis adapter cache`,
		Args: cobra.ExactArgs(2),
		RunE: runExplain,
	}

	cmd.Flags().StringArrayP("manifest", "m", nil, "Candidate manifest to load (repeatable)")
	cmd.Flags().StringP("config", "c", "", "Runtime configuration file")
	cmd.Flags().StringP("provider", "p", "", "Restrict selection to this provider")
	cmd.Flags().Bool("json", false, "Print the explanation as JSON")

	return cmd
}

func runExplain(cmd *cobra.Command, args []string) error {
	manifests, _ := cmd.Flags().GetStringArray("manifest")
	cfgPath, _ := cmd.Flags().GetString("config")
	provider, _ := cmd.Flags().GetString("provider")
	asJSON, _ := cmd.Flags().GetBool("json")

	if len(manifests) == 0 && cfgPath == "" {
		return ErrNoManifests
	}

	logger, err := commandLogger(cmd, "", "")
	if err != nil {
		return err
	}

	opts := []hotswap.Option{hotswap.WithLogger(logger), hotswap.WithSnapshotPath("")}
	if cfgPath != "" {
		cfg, err := config.Load(cfgPath, config.DefaultEnvPrefix)
		if err != nil {
			return err
		}
		opts = append(opts, hotswap.WithConfig(cfg))
	}
	rt, err := hotswap.New(opts...)
	if err != nil {
		return err
	}
	if err := rt.LoadManifests(); err != nil {
		return err
	}
	for _, path := range manifests {
		if _, err := rt.LoadManifest(path); err != nil {
			return fmt.Errorf("manifest %s: %w", path, err)
		}
	}

	exp := rt.Resolver().Explain(args[0], args[1], provider)
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(exp)
	}
	return writeExplanation(out, exp)
}

func writeExplanation(out io.Writer, exp registry.Explanation) error {
	target := registry.Target{Domain: exp.Domain, Key: exp.Key}
	if len(exp.Ordered) == 0 {
		fmt.Fprintf(out, "No candidates registered for %s\n", target)
		return nil
	}

	if winner, ok := exp.Selected(); ok {
		fmt.Fprintf(out, "%s resolves to %s\n\n", target, winner.Provider)
	} else {
		fmt.Fprintf(out, "%s has no candidate for provider %q\n\n", target, exp.Provider)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\tPROVIDER\tPRIORITY\tSTACK\tSEQ\tSOURCE\tFACTORY\tREASON")
	for _, entry := range exp.Ordered {
		c := entry.Candidate
		mark := ""
		if entry.Selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			mark, c.Provider, c.Priority, c.StackLevel, c.Sequence, c.Source, c.Factory.Ref(), entry.Reason)
	}
	return tw.Flush()
}
