package submit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lotusgift/pkg/address"
	"lotusgift/pkg/chain"
	"lotusgift/pkg/metrics"
	"lotusgift/pkg/types"
)

// ChainProvider hands out a client for a chain id.
type ChainProvider interface {
	Client(ctx context.Context, chainID int64) (*chain.Client, error)
}

// Submitter broadcasts trades. Sends are never retried.
type Submitter struct {
	chains ChainProvider
	log    zerolog.Logger
}

// NewSubmitter creates a submitter that sends through chains.
func NewSubmitter(chains ChainProvider) *Submitter {
	return &Submitter{
		chains: chains,
		log:    log.With().Str("component", "submitter").Logger(),
	}
}

// SubmitDirect sends the estimate's raw {to, data, value} from the user.
// fallbackChainID is used when the estimate does not name a chain.
func (s *Submitter) SubmitDirect(ctx context.Context, est *types.TradeEstimate, id chain.Identity, fallbackChainID int64) (common.Hash, error) {
	if id == nil {
		return common.Hash{}, types.ErrNoIdentity
	}

	to, err := address.Normalize(est.Tx.To)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: tx.to: %w", types.ErrMalformedResponse, err)
	}

	return s.send(ctx, "direct", est.TargetChainID(fallbackChainID), id, to, est, est.Tx.Data)
}

// SubmitGasless builds the Trade from the signed message, encodes execute(trade)
// and sends it from the relayer, who pays gas. The user never signs a transaction.
func (s *Submitter) SubmitGasless(ctx context.Context, est *types.TradeEstimate, signature []byte, relayer chain.Identity, fallbackChainID int64) (common.Hash, *types.Trade, error) {
	if relayer == nil {
		return common.Hash{}, nil, types.ErrNoIdentity
	}
	if !est.SupportsGasless() {
		return common.Hash{}, nil, types.ErrNoGaslessRoute
	}

	trade, err := BuildTrade(est.TypedData.Message, signature)
	if err != nil {
		return common.Hash{}, nil, err
	}

	data, err := EncodeExecute(trade)
	if err != nil {
		return common.Hash{}, nil, err
	}

	to, err := address.Normalize(est.Tx.To)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("%w: tx.to: %w", types.ErrMalformedResponse, err)
	}

	hash, err := s.send(ctx, "gasless", est.TargetChainID(fallbackChainID), relayer, to, est, data)
	if err != nil {
		return hash, nil, err
	}
	return hash, trade, nil
}

// send returns a non-zero hash with an error when the broadcast may have
// reached the network anyway.
func (s *Submitter) send(ctx context.Context, kind string, chainID int64, id chain.Identity, to common.Address, est *types.TradeEstimate, data []byte) (common.Hash, error) {
	client, err := s.chains.Client(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	label := strconv.FormatInt(chainID, 10)
	tx, err := client.Send(ctx, id, to, est.Value(), data)
	if err != nil {
		metrics.TransactionsSent.WithLabelValues(kind, label, "error").Inc()
		if tx != nil {
			return tx.Hash(), fmt.Errorf("%w: %w", types.ErrSubmissionFailed, err)
		}
		return common.Hash{}, fmt.Errorf("%w: %w", types.ErrSubmissionFailed, err)
	}
	metrics.TransactionsSent.WithLabelValues(kind, label, "ok").Inc()

	s.log.Info().
		Str("kind", kind).
		Int64("chain_id", chainID).
		Str("trade_id", est.TradeID).
		Str("tx_hash", tx.Hash().Hex()).
		Msg("trade submitted")

	return tx.Hash(), nil
}
