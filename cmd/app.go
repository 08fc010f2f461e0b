package cmd

import (
	"net/http"
	"time"

	"lotusgift/config"
	"lotusgift/pkg/allowance"
	"lotusgift/pkg/chain"
	"lotusgift/pkg/client"
	"lotusgift/pkg/journal"
	"lotusgift/pkg/orchestrator"
	"lotusgift/pkg/poller"
	"lotusgift/pkg/submit"
	"lotusgift/pkg/types"
)

// app holds the collaborators built from the configuration.
type app struct {
	cfg      *config.Config
	engine   *client.EngineClient
	registry *chain.Registry
}

func newApp(cfg *config.Config) *app {
	return &app{
		cfg:      cfg,
		engine:   client.NewEngineClient(cfg.EngineBaseURL, cfg.EngineAPIKey, client.WithHTTPClient(&http.Client{Timeout: cfg.EngineTimeout})),
		registry: chain.NewRegistry(cfg.Networks),
	}
}

func (a *app) Close() {
	a.registry.Close()
}

func (a *app) openJournal() (*journal.Store, error) {
	return journal.Open(a.cfg.JournalPath)
}

func (a *app) newPoller(interval time.Duration, maxAttempts int, observe poller.Observer) *poller.Poller {
	if interval <= 0 {
		interval = a.cfg.PollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = a.cfg.PollMaxAttempts
	}
	opts := []poller.Option{
		poller.WithInterval(interval),
		poller.WithMaxAttempts(maxAttempts),
		poller.WithRetryBudget(a.cfg.PollRetryBudget),
	}
	if observe != nil {
		opts = append(opts, poller.WithObserver(observe))
	}
	return poller.New(a.engine, opts...)
}

func (a *app) newOrchestrator(store *journal.Store, observe poller.Observer) *orchestrator.Orchestrator {
	deps := orchestrator.Dependencies{
		Quoter:    a.engine,
		Approvals: allowance.NewChecker(a.registry),
		Submitter: submit.NewSubmitter(a.registry),
		Poller:    a.newPoller(0, 0, observe),
		Supported: a.registry.Supported,
	}
	if store != nil {
		deps.Journal = store
	}
	return orchestrator.New(deps)
}

// userAddress is the configured user's address, or empty when none is set.
func (a *app) userAddress() string {
	id, err := a.cfg.UserIdentity()
	if err != nil {
		return ""
	}
	return id.Address().Hex()
}

var (
	_ orchestrator.Quoter = (*client.EngineClient)(nil)
	_ poller.StatusReader = (*client.EngineClient)(nil)
)

// estimateView is the JSON shape printed by quote and trade.
type estimateView struct {
	TradeID       string      `json:"tradeId"`
	Expected      string      `json:"expectedAmount"`
	MinExpected   string      `json:"minExpectedAmount"`
	Fees          []types.Fee `json:"fees"`
	Gasless       bool        `json:"gasless"`
	TargetChainID int64       `json:"targetChainId"`
	Contract      string      `json:"contract"`
	Value         string      `json:"value"`
}

func viewEstimate(est *types.TradeEstimate, srcChainID int64) estimateView {
	v := estimateView{
		TradeID:       est.TradeID,
		Fees:          est.Fees,
		Gasless:       est.SupportsGasless(),
		TargetChainID: est.TargetChainID(srcChainID),
		Contract:      est.Tx.To,
		Value:         est.Value().String(),
	}
	if est.ExpectedAmount != nil {
		v.Expected = est.ExpectedAmount.String()
	}
	if est.MinExpectedAmount != nil {
		v.MinExpected = est.MinExpectedAmount.String()
	}
	return v
}
