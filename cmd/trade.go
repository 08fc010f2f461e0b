package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lotusgift/config"
	"lotusgift/pkg/chain"
	"lotusgift/pkg/orchestrator"
	"lotusgift/pkg/types"
)

var (
	tradeOpts      tradeFlags
	tradeMode      string
	fallbackDirect bool
	noConfirm      bool
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Quote, sign and submit a cross-chain trade",
	Long: `Execute a trade end to end: quote, allowance check, signature, submission
and status tracking until the engine reports a final state.

In gasless mode (default) your wallet only signs the EIP-712 trade and the
relayer account broadcasts it and pays gas. Set LOTUSGIFT_RELAYER_PRIVATE_KEY
to a funded account that differs from your wallet. In direct mode your wallet
approves the engine if needed and sends the transaction itself.

Pressing Ctrl+C after submission stops tracking only; the transaction stays
on-chain. Use 'lotusgift status <txHash>' to resume.

Examples:
  lotusgift trade --amount 1
  lotusgift trade --amount 1 --fallback-direct
  lotusgift trade --amount 25 --src-chain arbitrum --mode direct --yes`,
	Args: cobra.NoArgs,
	Run:  runTrade,
}

func init() {
	rootCmd.AddCommand(tradeCmd)

	tradeOpts.register(tradeCmd)
	tradeCmd.Flags().StringVar(&tradeMode, "mode", string(orchestrator.ModeGasless), "Execution mode: gasless or direct")
	tradeCmd.Flags().BoolVar(&fallbackDirect, "fallback-direct", false, "Use the direct path when the route has no gasless option")
	tradeCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runTrade(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	cfg := config.Get()

	mode, err := orchestrator.ParseMode(tradeMode)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	req, err := tradeOpts.request()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	user, err := cfg.UserIdentity()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	var relayer chain.Identity
	if mode == orchestrator.ModeGasless {
		relayer, err = cfg.RelayerIdentity()
		if err != nil {
			printError(err)
			os.Exit(1)
		}
	}

	a := newApp(cfg)
	defer a.Close()

	store, err := a.openJournal()
	if err != nil {
		color.Yellow("Warning: trade history disabled: %v", err)
		store = nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	interactive := !jsonOutput

	observe := func(attempt int, status types.OrderStatus) {
		if interactive {
			s.Suffix = fmt.Sprintf(" Waiting for final status (%s, poll %d)...", status, attempt)
		}
	}

	opts := orchestrator.Options{
		Mode:             mode,
		User:             user,
		Relayer:          relayer,
		FallbackToDirect: fallbackDirect,
		OnState: func(state orchestrator.State, res *orchestrator.Result) {
			if !interactive {
				return
			}
			switch state {
			case orchestrator.StateQuoting:
				s.Suffix = " Fetching quote..."
				s.Start()
			case orchestrator.StateCheckingApproval:
				s.Suffix = " Checking allowance..."
			case orchestrator.StateSigning:
				s.Suffix = " Signing trade..."
			case orchestrator.StateSubmitting:
				s.Suffix = " Submitting transaction..."
			case orchestrator.StatePolling:
				s.Suffix = " Waiting for final status..."
				s.Stop()
				fmt.Printf("\n  Transaction:       %s\n", color.CyanString(res.TxHash))
				s.Start()
			case orchestrator.StateDone, orchestrator.StateAborted:
				s.Stop()
			}
		},
		Confirm: func(est *types.TradeEstimate) bool {
			if noConfirm || jsonOutput {
				return true
			}
			s.Stop()
			displayEstimate(est, req, tradeOpts.decimals)
			ok := confirmTrade()
			if ok {
				s.Start()
			}
			return ok
		},
	}

	res, err := a.newOrchestrator(store, observe).Run(ctx, req, opts)
	s.Stop()

	if jsonOutput {
		printJSON(viewResult(res, err, req.SrcChainID))
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if err != nil {
		if res != nil && res.TxHash != "" {
			if res.MaybeBroadcast {
				color.Yellow("\nThe transaction may have been broadcast: %s", res.TxHash)
			} else {
				color.Yellow("\nThe transaction was broadcast: %s", res.TxHash)
			}
			fmt.Println("Resume tracking with:")
			color.Cyan("  lotusgift status %s --watch\n", res.TxHash)
		}
		if errors.Is(err, types.ErrCancelled) {
			fmt.Println("\nTrade tracking cancelled.")
			os.Exit(1)
		}
		printError(err)
		os.Exit(1)
	}

	displayResult(res)
}

func displayResult(res *orchestrator.Result) {
	if res.State == orchestrator.StateAborted {
		switch {
		case errors.Is(res.AbortReason, types.ErrNoGaslessRoute):
			color.Yellow("\nThis route cannot be executed gaslessly.")
			fmt.Println("Run again with --fallback-direct or --mode direct to pay gas yourself.")
		case errors.Is(res.AbortReason, types.ErrCancelled):
			fmt.Println("\nTrade cancelled.")
		default:
			fmt.Printf("\nTrade aborted: %v\n", res.AbortReason)
		}
		return
	}

	if res.NeedsApproval && res.ApprovalTxHash == "" {
		color.Yellow("\nWarning: the engine's allowance is below the trade amount.")
		fmt.Println("Approve the engine contract for the source token or the trade will revert.")
	}

	fmt.Println()
	fmt.Printf("  Mode:              %s\n", res.Mode)
	if res.ApprovalTxHash != "" {
		fmt.Printf("  Approval Tx:       %s\n", color.HiBlackString(res.ApprovalTxHash))
	}
	fmt.Printf("  Transaction:       %s\n", color.CyanString(res.TxHash))
	fmt.Printf("  Status:            %s\n", getColoredStatus(string(res.Status)))

	if res.Status == types.StatusSuccess {
		printSuccess(color.GreenString("Trade completed."))
	} else {
		printSuccess(fmt.Sprintf("Trade finished with status %s.", res.Status))
	}
}

type resultView struct {
	AttemptID      string        `json:"attemptId,omitempty"`
	Mode           string        `json:"mode,omitempty"`
	State          string        `json:"state,omitempty"`
	Estimate       *estimateView `json:"estimate,omitempty"`
	NeedsApproval  bool          `json:"needsApproval"`
	ApprovalTxHash string        `json:"approvalTxHash,omitempty"`
	TxHash         string        `json:"txHash,omitempty"`
	MaybeBroadcast bool          `json:"maybeBroadcast,omitempty"`
	Status         string        `json:"status,omitempty"`
	AbortReason    string        `json:"abortReason,omitempty"`
	Error          string        `json:"error,omitempty"`
}

func viewResult(res *orchestrator.Result, err error, srcChainID int64) resultView {
	var v resultView
	if err != nil {
		v.Error = err.Error()
	}
	if res == nil {
		return v
	}

	v.AttemptID = res.AttemptID
	v.Mode = string(res.Mode)
	v.State = string(res.State)
	v.NeedsApproval = res.NeedsApproval
	v.ApprovalTxHash = res.ApprovalTxHash
	v.TxHash = res.TxHash
	v.MaybeBroadcast = res.MaybeBroadcast
	v.Status = string(res.Status)
	if res.AbortReason != nil {
		v.AbortReason = res.AbortReason.Error()
	}
	if res.Estimate != nil {
		est := viewEstimate(res.Estimate, srcChainID)
		v.Estimate = &est
	}
	return v
}

