package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/hotswap/config"
	"github.com/GoCodeAlone/hotswap/lifecycle"
)

// NewStatusCommand creates the status command
func NewStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the lifecycle status snapshot",
		Long: `Print every lifecycle status recorded in a snapshot file.

The snapshot is read directly from disk, so this works whether or not a
runtime is currently running.

Examples:
  hotswapctl status --snapshot /var/lib/app/hotswap-status.json
  hotswapctl status --snapshot status.json --json`,
		RunE: runStatus,
	}

	cmd.Flags().StringP("snapshot", "s", config.Default().SnapshotPath, "Path to the status snapshot")
	cmd.Flags().Bool("json", false, "Print the snapshot as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("snapshot")
	asJSON, _ := cmd.Flags().GetBool("json")

	statuses, err := lifecycle.ReadSnapshot(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}
	if len(statuses) == 0 {
		fmt.Fprintf(out, "No statuses recorded in %s\n", path)
		return nil
	}
	return writeStatusTable(out, statuses)
}

func writeStatusTable(out io.Writer, statuses []lifecycle.Status) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tSTATE\tPROVIDER\tPENDING\tOK\tFAILED\tLAST SWAP\tLAST ACTIVATED\tLAST ERROR")
	for _, st := range statuses {
		fmt.Fprintf(tw, "%s/%s\t%s\t%s\t%s\t%d\t%d\t%dms\t%s\t%s\n",
			st.Domain, st.Key, st.State,
			dash(st.CurrentProvider), dash(st.PendingProvider),
			st.SuccessfulSwaps, st.FailedSwaps, st.LastSwapDurationMS,
			formatTime(st.LastActivatedAt), dash(oneLine(st.LastError)))
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
