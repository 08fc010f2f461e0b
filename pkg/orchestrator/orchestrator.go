package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lotusgift/pkg/address"
	"lotusgift/pkg/chain"
	"lotusgift/pkg/journal"
	"lotusgift/pkg/metrics"
	"lotusgift/pkg/signer"
	"lotusgift/pkg/types"
)

// Mode selects who pays gas for the trade transaction.
type Mode string

const (
	ModeGasless Mode = "gasless"
	ModeDirect  Mode = "direct"
)

// ParseMode accepts "gasless", "direct" or empty (gasless).
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeGasless:
		return ModeGasless, nil
	case ModeDirect:
		return ModeDirect, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", types.ErrInvalidRequest, s)
}

// State is a step of the trade flow.
type State string

const (
	StateQuoting          State = "QUOTING"
	StateCheckingApproval State = "CHECKING_APPROVAL"
	StateSigning          State = "SIGNING"
	StateSubmitting       State = "SUBMITTING"
	StatePolling          State = "POLLING"
	StateDone             State = "DONE"
	StateAborted          State = "ABORTED"
)

// Quoter prices a trade.
type Quoter interface {
	Estimate(ctx context.Context, req types.QuoteRequest) (*types.TradeEstimate, error)
}

// ApprovalChecker reads and raises ERC-20 allowances for the engine contract.
type ApprovalChecker interface {
	NeedsApproval(ctx context.Context, token, owner, spender common.Address, amount *big.Int, chainID int64) (bool, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int, id chain.Identity, chainID int64) (common.Hash, error)
}

// TradeSubmitter broadcasts the trade transaction on either path.
type TradeSubmitter interface {
	SubmitDirect(ctx context.Context, est *types.TradeEstimate, id chain.Identity, fallbackChainID int64) (common.Hash, error)
	SubmitGasless(ctx context.Context, est *types.TradeEstimate, signature []byte, relayer chain.Identity, fallbackChainID int64) (common.Hash, *types.Trade, error)
}

// StatusWaiter blocks until the engine reports a final status.
type StatusWaiter interface {
	AwaitTerminal(ctx context.Context, txHash string) (types.OrderStatus, error)
}

// Journal records attempts. *journal.Store satisfies it.
type Journal interface {
	Create(a *journal.Attempt) error
	Update(a *journal.Attempt) error
}

// SignFunc signs the engine's EIP-712 typed data for id.
type SignFunc func(ctx context.Context, id chain.Identity, td apitypes.TypedData) ([]byte, error)

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Quoter    Quoter
	Approvals ApprovalChecker
	Submitter TradeSubmitter
	Poller    StatusWaiter

	// Optional.
	Journal   Journal
	Sign      SignFunc
	Supported func(chainID int64) bool
	Logger    *zerolog.Logger
}

// Options are per-run choices of the caller.
type Options struct {
	Mode    Mode
	User    chain.Identity
	Relayer chain.Identity

	// FallbackToDirect continues on the direct path when the route has no
	// gasless option instead of aborting.
	FallbackToDirect bool

	OnState func(State, *Result)
	Confirm func(*types.TradeEstimate) bool
}

// Result is the outcome of one run. TxHash is set as soon as a transaction
// was broadcast, also when Run returns an error afterwards. MaybeBroadcast
// marks a TxHash whose broadcast failed without an answer from the node.
type Result struct {
	AttemptID      string
	Mode           Mode
	State          State
	Estimate       *types.TradeEstimate
	Trade          *types.Trade
	NeedsApproval  bool
	ApprovalTxHash string
	TxHash         string
	MaybeBroadcast bool
	Status         types.OrderStatus
	AbortReason    error
}

// Orchestrator drives one trade at a time through the trade flow.
type Orchestrator struct {
	deps Dependencies
	log  zerolog.Logger
}

// New creates an orchestrator. Sign defaults to signer.Sign.
func New(deps Dependencies) *Orchestrator {
	if deps.Sign == nil {
		deps.Sign = signer.Sign
	}
	l := log.With().Str("component", "orchestrator").Logger()
	if deps.Logger != nil {
		l = *deps.Logger
	}
	return &Orchestrator{deps: deps, log: l}
}

// run carries the state of a single Run call.
type run struct {
	o       *Orchestrator
	opts    Options
	result  *Result
	attempt *journal.Attempt
	log     zerolog.Logger
}

// Run executes one trade attempt: quote, approval check, optional signature,
// submission and status polling. Nothing is retried except status reads.
// Cancelling ctx after submission only stops local tracking; the broadcast
// transaction stays pending on-chain.
func (o *Orchestrator) Run(ctx context.Context, req types.QuoteRequest, opts Options) (*Result, error) {
	start := time.Now()

	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	if err := o.validate(mode, opts); err != nil {
		return nil, err
	}

	user := opts.User.Address().Hex()
	if req.UserAccount == "" {
		req.UserAccount = user
	}
	if req.DestReceiver == "" {
		req.DestReceiver = user
	}
	if err := req.Validate(o.deps.Supported); err != nil {
		return nil, err
	}
	req, err = req.Normalized()
	if err != nil {
		return nil, err
	}
	amount, err := req.Amount()
	if err != nil {
		return nil, err
	}

	r := &run{
		o:      o,
		opts:   opts,
		result: &Result{Mode: mode},
		attempt: &journal.Attempt{
			Mode:        string(mode),
			SrcChainID:  req.SrcChainID,
			SrcToken:    req.SrcToken,
			DestChainID: req.DestChainID,
			DestToken:   req.DestToken,
			AmountWei:   req.SrcAmountWei,
			User:        req.UserAccount,
		},
	}
	r.log = o.log.With().Int64("src_chain", req.SrcChainID).Int64("dest_chain", req.DestChainID).Logger()
	r.record(StateQuoting, nil)
	r.result.AttemptID = r.attempt.ID

	err = r.finish(r.execute(ctx, req, amount))

	outcome := string(r.result.State)
	if err != nil {
		outcome = "error"
	}
	metrics.Trades.WithLabelValues(string(r.result.Mode), outcome).Inc()
	metrics.TradeDuration.WithLabelValues(string(r.result.Mode)).Observe(time.Since(start).Seconds())

	return r.result, err
}

func (o *Orchestrator) validate(mode Mode, opts Options) error {
	if opts.User == nil {
		return fmt.Errorf("%w: user identity is required", types.ErrNoIdentity)
	}
	if mode == ModeGasless {
		if opts.Relayer == nil {
			return fmt.Errorf("%w: gasless mode needs a relayer identity", types.ErrNoIdentity)
		}
		if opts.Relayer.Address() == opts.User.Address() {
			return fmt.Errorf("%w: relayer must differ from the user", types.ErrInvalidRequest)
		}
	}
	return nil
}

func (r *run) execute(ctx context.Context, req types.QuoteRequest, amount *big.Int) error {
	deps := r.o.deps

	est, err := deps.Quoter.Estimate(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to get estimate: %w", err)
	}
	r.result.Estimate = est
	r.attempt.TradeID = est.TradeID
	if est.ExpectedAmount != nil {
		r.attempt.ExpectedAmount = est.ExpectedAmount.String()
	}
	if est.MinExpectedAmount != nil {
		r.attempt.MinAmount = est.MinExpectedAmount.String()
	}

	if r.result.Mode == ModeGasless && !est.SupportsGasless() {
		if !r.opts.FallbackToDirect {
			r.log.Info().Str("trade_id", est.TradeID).Msg("route has no gasless option")
			r.abort(types.ErrNoGaslessRoute)
			return nil
		}
		r.log.Info().Str("trade_id", est.TradeID).Msg("route has no gasless option, falling back to direct")
		r.result.Mode = ModeDirect
		r.attempt.Mode = string(ModeDirect)
	}

	if r.opts.Confirm != nil && !r.opts.Confirm(est) {
		r.abort(types.ErrCancelled)
		return nil
	}

	if err := r.checkApproval(ctx, req, est, amount); err != nil {
		return err
	}

	var hash common.Hash
	if r.result.Mode == ModeGasless {
		r.record(StateSigning, nil)
		sig, err := deps.Sign(ctx, r.opts.User, *est.TypedData)
		if err != nil {
			return fmt.Errorf("failed to sign trade: %w", err)
		}

		r.record(StateSubmitting, nil)
		h, trade, err := deps.Submitter.SubmitGasless(ctx, est, sig, r.opts.Relayer, req.SrcChainID)
		if err != nil {
			return r.submitFailed("failed to submit gasless trade", h, err)
		}
		hash = h
		r.result.Trade = trade
	} else {
		r.record(StateSubmitting, nil)
		h, err := deps.Submitter.SubmitDirect(ctx, est, r.opts.User, req.SrcChainID)
		if err != nil {
			return r.submitFailed("failed to submit trade", h, err)
		}
		hash = h
	}

	r.result.TxHash = hash.Hex()
	r.attempt.TxHash = r.result.TxHash
	r.log.Info().Str("tx_hash", r.result.TxHash).Str("mode", string(r.result.Mode)).Msg("trade broadcast")

	r.record(StatePolling, nil)
	status, err := deps.Poller.AwaitTerminal(ctx, r.result.TxHash)
	r.result.Status = status
	r.attempt.Status = string(status)
	if err != nil {
		return fmt.Errorf("failed to track trade %s: %w", r.result.TxHash, err)
	}

	r.record(StateDone, nil)
	return nil
}

// checkApproval compares the allowance for the engine contract with the
// amount. The gasless path only reports the shortfall; the direct path sends
// approve and waits for it.
func (r *run) checkApproval(ctx context.Context, req types.QuoteRequest, est *types.TradeEstimate, amount *big.Int) error {
	r.record(StateCheckingApproval, nil)

	token, err := address.Normalize(req.SrcToken)
	if err != nil {
		return err
	}
	spender, err := address.Normalize(est.Tx.To)
	if err != nil {
		return fmt.Errorf("%w: tx.to: %w", types.ErrMalformedResponse, err)
	}
	owner := r.opts.User.Address()

	needs, err := r.o.deps.Approvals.NeedsApproval(ctx, token, owner, spender, amount, req.SrcChainID)
	if err != nil {
		return fmt.Errorf("failed to check allowance: %w", err)
	}
	r.result.NeedsApproval = needs
	if !needs {
		return nil
	}

	if r.result.Mode == ModeGasless {
		r.log.Warn().
			Str("token", token.Hex()).
			Str("spender", spender.Hex()).
			Str("amount", amount.String()).
			Msg("allowance below trade amount; approve the engine before it executes")
		return nil
	}

	hash, err := r.o.deps.Approvals.Approve(ctx, token, spender, amount, r.opts.User, req.SrcChainID)
	if hash != (common.Hash{}) {
		r.result.ApprovalTxHash = hash.Hex()
		r.attempt.ApprovalTxHash = r.result.ApprovalTxHash
	}
	if err != nil {
		return fmt.Errorf("failed to approve %s: %w", token.Hex(), err)
	}
	return nil
}

// submitFailed keeps the hash of a transaction that may have been broadcast
// so it can still be looked up.
func (r *run) submitFailed(msg string, hash common.Hash, err error) error {
	if hash == (common.Hash{}) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	r.result.TxHash = hash.Hex()
	r.result.MaybeBroadcast = true
	r.attempt.TxHash = r.result.TxHash
	return fmt.Errorf("%s (transaction %s may have been broadcast): %w", msg, r.result.TxHash, err)
}

func (r *run) abort(reason error) {
	r.result.AbortReason = reason
	r.record(StateAborted, reason)
}

func (r *run) finish(err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, types.ErrCancelled) && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		err = fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}
	ev := r.log.Error().Err(err).Str("state", string(r.result.State))
	if r.result.TxHash != "" {
		ev = ev.Str("tx_hash", r.result.TxHash)
	}
	ev.Msg("trade attempt failed")
	r.record(r.result.State, err)
	return err
}

// record moves to state, persists the attempt and notifies the caller.
func (r *run) record(state State, cause error) {
	r.result.State = state
	r.attempt.State = string(state)
	if cause != nil {
		r.attempt.Error = cause.Error()
	}

	if j := r.o.deps.Journal; j != nil {
		var err error
		if r.attempt.ID == "" {
			err = j.Create(r.attempt)
		} else {
			err = j.Update(r.attempt)
		}
		if err != nil {
			r.log.Warn().Err(err).Msg("failed to write journal")
		}
	}

	if r.opts.OnState != nil {
		r.opts.OnState(state, r.result)
	}
}
