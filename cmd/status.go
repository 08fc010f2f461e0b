package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lotusgift/config"
	"lotusgift/pkg/journal"
	"lotusgift/pkg/types"
)

var (
	watchStatus      bool
	watchInterval    int
	watchMaxAttempts int
)

var statusCmd = &cobra.Command{
	Use:   "status <txHash>",
	Short: "Check the status of a trade",
	Long: `Check the engine's status for a submitted trade transaction.

Examples:
  lotusgift status 0x5f...c3
  lotusgift status 0x5f...c3 --watch
  lotusgift status 0x5f...c3 --watch --interval 5 --max-attempts 60`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Poll until the trade reaches a final status")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 0, "Polling interval in seconds (when watching, default from config)")
	statusCmd.Flags().IntVar(&watchMaxAttempts, "max-attempts", 0, "Maximum number of polls (when watching, default from config)")
}

func runStatus(cmd *cobra.Command, args []string) {
	txHash := strings.TrimSpace(args[0])
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a := newApp(config.Get())
	defer a.Close()

	var entry *journal.Attempt
	if store, err := a.openJournal(); err == nil {
		entry, _ = store.FindByTxHash(txHash)
	}

	if watchStatus {
		watchTradeStatus(cmd.Context(), a, txHash, entry, jsonOutput)
		return
	}
	checkTradeStatus(cmd.Context(), a, txHash, entry, jsonOutput)
}

func checkTradeStatus(ctx context.Context, a *app, txHash string, entry *journal.Attempt, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking trade status..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.EngineTimeout+5*time.Second)
	defer cancel()
	status, err := a.engine.Status(ctx, txHash)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(status)
		return
	}
	displayStatus(status.Status, txHash, entry)
}

func watchTradeStatus(ctx context.Context, a *app, txHash string, entry *journal.Attempt, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(watchInterval) * time.Second
	p := a.newPoller(interval, watchMaxAttempts, func(attempt int, status types.OrderStatus) {
		fmt.Printf("  [%s] poll %-4d %s\n", time.Now().Format("15:04:05"), attempt, getColoredStatus(string(status)))
	})

	fmt.Printf("\nWatching trade status (Transaction: %s)\n", color.CyanString(txHash))
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	final, err := p.AwaitTerminal(ctx, txHash)
	if err != nil {
		if errors.Is(err, types.ErrCancelled) {
			fmt.Println("\nStopped watching.")
			return
		}
		printError(err)
		os.Exit(1)
	}

	displayStatus(final, txHash, entry)
}

func displayStatus(status types.OrderStatus, txHash string, entry *journal.Attempt) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        TRADE STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Transaction:     %s\n", color.CyanString(txHash))
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(status)))

	if entry != nil {
		fmt.Printf("  Trade ID:        %s\n", entry.TradeID)
		fmt.Printf("  Mode:            %s\n", entry.Mode)
		fmt.Printf("  Route:           chain %d -> chain %d\n", entry.SrcChainID, entry.DestChainID)
		fmt.Printf("  Amount In:       %s (base units)\n", entry.AmountWei)
		if entry.ExpectedAmount != "" {
			fmt.Printf("  Expected Out:    %s (base units)\n", entry.ExpectedAmount)
		}
		if entry.ApprovalTxHash != "" {
			fmt.Printf("  Approval Tx:     %s\n", color.HiBlackString(entry.ApprovalTxHash))
		}
		fmt.Printf("  Submitted:       %s\n", entry.Created.Format("2006-01-02 15:04:05"))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch types.OrderStatus(status) {
	case types.StatusSuccess:
		return color.GreenString(status)
	case types.StatusPending:
		return color.YellowString(status)
	case types.StatusFailed, types.StatusRefunded:
		return color.RedString(status)
	case types.StatusUnknown:
		return color.MagentaString(status)
	default:
		if status == "" {
			return color.HiBlackString("-")
		}
		return status
	}
}
