package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lotusgift/pkg/metrics"
	"lotusgift/pkg/types"
)

// Backend is the subset of an RPC client the trade flow needs.
// *ethclient.Client satisfies it.
type Backend interface {
	bind.DeployBackend
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.TransactionSender
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Network is the configuration of one supported chain.
type Network struct {
	ChainID  int64
	Name     string
	RPCURL   string
	GasPrice *int64
	GasLimit *uint64
}

// DefaultNetworks are the chains the trading engine routes between, with public RPC endpoints.
func DefaultNetworks() map[int64]Network {
	networks := []Network{
		{ChainID: 1, Name: "mainnet", RPCURL: "https://eth.merkle.io"},
		{ChainID: 10, Name: "optimism", RPCURL: "https://mainnet.optimism.io"},
		{ChainID: 8453, Name: "base", RPCURL: "https://mainnet.base.org"},
		{ChainID: 42161, Name: "arbitrum", RPCURL: "https://arb1.arbitrum.io/rpc"},
		{ChainID: 48900, Name: "zircuit", RPCURL: "https://mainnet.zircuit.com"},
		{ChainID: 11155111, Name: "sepolia", RPCURL: "https://sepolia.drpc.org"},
		{ChainID: 84532, Name: "base-sepolia", RPCURL: "https://sepolia.base.org"},
		{ChainID: 11155420, Name: "optimism-sepolia", RPCURL: "https://sepolia.optimism.io"},
		{ChainID: 421614, Name: "arbitrum-sepolia", RPCURL: "https://sepolia-rollup.arbitrum.io/rpc"},
	}

	out := make(map[int64]Network, len(networks))
	for _, n := range networks {
		out[n.ChainID] = n
	}
	return out
}

// DialFunc opens a Backend for an RPC endpoint.
type DialFunc func(ctx context.Context, rpcURL string) (Backend, error)

func dialRPC(ctx context.Context, rpcURL string) (Backend, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Registry maps chain ids to networks and hands out lazily dialed clients.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	networks map[int64]Network
	clients  map[int64]*Client
	dial     DialFunc
	log      zerolog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDialer replaces the RPC dialer, mostly for tests.
func WithDialer(dial DialFunc) RegistryOption {
	return func(r *Registry) { r.dial = dial }
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(l zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// NewRegistry creates a registry for networks keyed by chain id. Nothing is
// dialed until Client is called.
func NewRegistry(networks map[int64]Network, opts ...RegistryOption) *Registry {
	r := &Registry{
		networks: make(map[int64]Network, len(networks)),
		clients:  make(map[int64]*Client),
		dial:     dialRPC,
		log:      log.With().Str("component", "chain-registry").Logger(),
	}
	for id, n := range networks {
		n.ChainID = id
		r.networks[id] = n
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Supported reports whether chainID has a configured network.
func (r *Registry) Supported(chainID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.networks[chainID]
	return ok
}

// Networks returns the configured networks ordered by chain id.
func (r *Registry) Networks() []Network {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Network, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// Client returns the client for chainID, dialing on first use. Dials run
// outside the registry lock so a slow endpoint only delays its own chain.
func (r *Registry) Client(ctx context.Context, chainID int64) (*Client, error) {
	r.mu.Lock()
	if c, ok := r.clients[chainID]; ok {
		r.mu.Unlock()
		return c, nil
	}
	network, ok := r.networks[chainID]
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %d", types.ErrChainMismatch, chainID)
	}
	if network.RPCURL == "" {
		return nil, fmt.Errorf("%w: no RPC URL configured for chain %d", types.ErrChainMismatch, chainID)
	}

	label := strconv.FormatInt(chainID, 10)
	backend, err := r.dial(ctx, network.RPCURL)
	if err != nil {
		metrics.ChainDials.WithLabelValues(label, "error").Inc()
		return nil, fmt.Errorf("%w: failed to connect to RPC endpoint for chain %d: %w", types.ErrNetwork, chainID, err)
	}
	metrics.ChainDials.WithLabelValues(label, "ok").Inc()

	c := NewClient(network, backend, r.log.With().Int64("chain_id", chainID).Logger())

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.clients[chainID]; ok {
		// another caller won the race
		c.Close()
		return existing, nil
	}
	r.clients[chainID] = c
	r.log.Debug().Int64("chain_id", chainID).Str("network", network.Name).Msg("connected to RPC endpoint")
	return c, nil
}

// Close releases every dialed connection.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}

func (n Network) chainID() *big.Int {
	return big.NewInt(n.ChainID)
}
