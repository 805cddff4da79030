package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/hotswap/config"
	"github.com/GoCodeAlone/hotswap/manifest"
)

// NewValidateCommand creates the validate command
func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate CONFIG",
		Short: "Validate a runtime configuration and its manifests",
		Long: `Load a configuration file the same way serve does, including
environment overrides, then parse every manifest it lists.`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}

	cmd.Flags().String("env-prefix", config.DefaultEnvPrefix, "Prefix of environment overrides")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	envPrefix, _ := cmd.Flags().GetString("env-prefix")

	cfg, err := config.Load(args[0], envPrefix)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	total := 0
	for _, path := range cfg.Manifests {
		m, err := manifest.Load(path)
		if err != nil {
			return fmt.Errorf("manifest %s: %w", path, err)
		}
		fmt.Fprintf(out, "manifest %s: package %s, %d candidates\n", path, m.Package, len(m.Candidates))
		total += len(m.Candidates)
	}
	fmt.Fprintf(out, "%s is valid: %d manifests, %d candidates, %d activation targets\n",
		args[0], len(cfg.Manifests), total, len(cfg.Activate))
	return nil
}
