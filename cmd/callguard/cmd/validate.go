package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/callguard/config"
	"github.com/vinayprograms/callguard/guard"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a config file and list its guards",
	Long: `Load the config file, check every limit, retry policy and guard
reference, build the guards, and print a summary.

Exit status is non-zero if the config is invalid.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		return runValidate(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(out io.Writer, cfg *config.Config) error {
	if _, err := guard.NewRegistry(cfg, guard.RegistryOptions{}); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GUARD\tLIMIT\tSCOPE\tATTEMPTS\tDELAYS")
	for _, name := range cfg.GuardNames() {
		gc := cfg.Guards[name]
		limit := cfg.Limits[gc.Limit]
		policy, err := cfg.Policy(gc.Retry)
		if err != nil {
			return err
		}

		scope := "shared"
		if limit.PerKey {
			scope = "per key"
		}
		delays := ""
		for i := 0; i < policy.MaxAttempts()-1; i++ {
			if i > 0 {
				delays += ", "
			}
			delays += policy.Delay(i).String()
		}
		if delays == "" {
			delays = "-"
		}
		fmt.Fprintf(tw, "%s\t%d/%s\t%s\t%d\t%s\n",
			name, limit.MaxCalls, limit.Period, scope, policy.MaxAttempts(), delays)
	}
	return tw.Flush()
}
