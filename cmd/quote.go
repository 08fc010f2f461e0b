package cmd

import (
	"bufio"
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"lotusgift/config"
	"lotusgift/pkg/parser"
	"lotusgift/pkg/types"
)

const (
	defaultSrcToken  = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" // USDC on Base
	defaultDestToken = "0x3b952c8C9C44e8Fe201e2b26F6B2200203214cfF" // USDC on Zircuit
)

// tradeFlags are shared by quote and trade.
type tradeFlags struct {
	srcChain    string
	srcToken    string
	destChain   string
	destToken   string
	amount      string
	amountWei   string
	decimals    int32
	slippageBps int
	user        string
	receiver    string
}

func (f *tradeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.srcChain, "src-chain", "base", "Source chain name or id")
	cmd.Flags().StringVar(&f.srcToken, "src-token", defaultSrcToken, "Source token address (0xEeee...EEeE for the native asset)")
	cmd.Flags().StringVar(&f.destChain, "dest-chain", "zircuit", "Destination chain name or id")
	cmd.Flags().StringVar(&f.destToken, "dest-token", defaultDestToken, "Destination token address")
	cmd.Flags().StringVar(&f.amount, "amount", "1", "Amount in token units, e.g. 1.5")
	cmd.Flags().StringVar(&f.amountWei, "amount-wei", "", "Amount in base units (overrides --amount)")
	cmd.Flags().Int32Var(&f.decimals, "decimals", 6, "Source token decimals used with --amount")
	cmd.Flags().IntVar(&f.slippageBps, "slippage-bps", 100, "Slippage tolerance in basis points")
	cmd.Flags().StringVar(&f.user, "user", "", "User account (defaults to the configured wallet)")
	cmd.Flags().StringVar(&f.receiver, "receiver", "", "Destination receiver (defaults to the user)")
}

func (f *tradeFlags) request() (types.QuoteRequest, error) {
	src, err := parser.ParseChain(f.srcChain)
	if err != nil {
		return types.QuoteRequest{}, err
	}
	dest, err := parser.ParseChain(f.destChain)
	if err != nil {
		return types.QuoteRequest{}, err
	}

	wei := f.amountWei
	if wei == "" {
		amount, err := parser.ParseAmount(f.amount, f.decimals)
		if err != nil {
			return types.QuoteRequest{}, err
		}
		wei = amount.String()
	}

	return types.QuoteRequest{
		SrcChainID:   src,
		SrcToken:     f.srcToken,
		SrcAmountWei: wei,
		DestToken:    f.destToken,
		DestChainID:  dest,
		SlippageBps:  f.slippageBps,
		UserAccount:  f.user,
		DestReceiver: f.receiver,
	}, nil
}

var quoteFlags tradeFlags

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Get a price estimate for a cross-chain trade",
	Long: `Ask the trading engine to price a trade without executing it.

Examples:
  lotusgift quote --amount 1
  lotusgift quote --amount 0.5 --src-chain arbitrum --dest-chain zircuit
  lotusgift quote --amount-wei 1000000 --json`,
	Args: cobra.NoArgs,
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
	quoteFlags.register(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	req, err := quoteFlags.request()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	a := newApp(config.Get())
	defer a.Close()

	req, err = prepareQuote(req, a.userAddress(), a.registry.Supported)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.EngineTimeout+5*time.Second)
	defer cancel()
	est, err := a.engine.Estimate(ctx, req)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(viewEstimate(est, req.SrcChainID))
		return
	}
	displayEstimate(est, req, quoteFlags.decimals)
}

// prepareQuote fills the user defaults, validates the request and returns it
// with every address checksummed, ready for the engine.
func prepareQuote(req types.QuoteRequest, user string, supported func(int64) bool) (types.QuoteRequest, error) {
	if req.UserAccount == "" {
		req.UserAccount = user
	}
	if req.DestReceiver == "" {
		req.DestReceiver = req.UserAccount
	}
	if err := req.Validate(supported); err != nil {
		return types.QuoteRequest{}, err
	}
	return req.Normalized()
}

func displayEstimate(est *types.TradeEstimate, req types.QuoteRequest, decimals int32) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     TRADE QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	amount, _ := req.Amount()
	fmt.Printf("\n  Trade ID:          %s\n", color.CyanString(est.TradeID))
	fmt.Printf("  From:              %s %s on chain %d\n", parser.FormatAmount(amount, decimals), color.YellowString(req.SrcToken), req.SrcChainID)
	fmt.Printf("  To:                ~%s (base units) %s on chain %d\n", est.ExpectedAmount, color.YellowString(req.DestToken), req.DestChainID)
	fmt.Printf("  Minimum Received:  %s (base units)\n", est.MinExpectedAmount)

	for _, fee := range est.Fees {
		bps := new(big.Int)
		if fee.Bps != nil {
			bps = (*big.Int)(fee.Bps)
		}
		fmt.Printf("  Fee:               %s bps to %s\n", bps, fee.Recipient)
	}

	if est.SupportsGasless() {
		fmt.Printf("  Gasless:           %s\n", color.GreenString("available"))
	} else {
		fmt.Printf("  Gasless:           %s\n", color.YellowString("not available (direct only)"))
	}
	fmt.Printf("  Engine Contract:   %s\n", est.Tx.To)

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirmTrade() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with trade? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
