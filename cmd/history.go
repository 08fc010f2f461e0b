package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lotusgift/config"
	"lotusgift/pkg/journal"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List trades recorded on this machine",
	Long: `Show the local trade journal, newest first. Every trade run is recorded
with its state, transaction hash and last known status, including runs that
were aborted or interrupted.

Examples:
  lotusgift history
  lotusgift history --limit 5
  lotusgift history --json`,
	Args: cobra.NoArgs,
	Run:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	store, err := journal.Open(config.Get().JournalPath)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	attempts := store.List()
	if historyLimit > 0 && len(attempts) > historyLimit {
		attempts = attempts[:historyLimit]
	}

	if jsonOutput {
		printJSON(attempts)
		return
	}

	if len(attempts) == 0 {
		fmt.Printf("\nNo trades recorded in %s\n\n", store.Path())
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	color.Green("                                        TRADE HISTORY")
	fmt.Println(strings.Repeat("=", 100))
	fmt.Printf("\n  %-19s  %-8s  %-17s  %-12s  %-10s  %s\n", "CREATED", "MODE", "STATE", "ROUTE", "STATUS", "TRANSACTION")

	for _, a := range attempts {
		route := fmt.Sprintf("%d->%d", a.SrcChainID, a.DestChainID)
		tx := a.TxHash
		if tx == "" {
			tx = color.HiBlackString("-")
		} else {
			tx = shortHash(tx)
		}
		fmt.Printf("  %-19s  %-8s  %-17s  %-12s  %-10s  %s\n",
			a.Created.Local().Format("2006-01-02 15:04:05"),
			a.Mode,
			a.State,
			route,
			getColoredStatus(a.Status),
			tx,
		)
		if a.Error != "" {
			fmt.Printf("  %s\n", color.RedString("  %s", a.Error))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 100))
	fmt.Printf("  %d of %d trades, stored in %s\n\n", len(attempts), store.Count(), store.Path())
}

func shortHash(h string) string {
	if len(h) <= 18 {
		return h
	}
	return h[:10] + "..." + h[len(h)-6:]
}
