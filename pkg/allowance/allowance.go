package allowance

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lotusgift/pkg/address"
	"lotusgift/pkg/chain"
	"lotusgift/pkg/metrics"
	"lotusgift/pkg/types"
)

// ERC20 allowance and approve ABI
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ERC20 ABI: %v", err))
	}
	return parsed
}

// ChainProvider hands out a client for a chain id.
type ChainProvider interface {
	Client(ctx context.Context, chainID int64) (*chain.Client, error)
}

// Checker reads and sets ERC-20 allowances.
type Checker struct {
	chains ChainProvider
	log    zerolog.Logger
}

// NewChecker creates an allowance checker that reads through chains.
func NewChecker(chains ChainProvider) *Checker {
	return &Checker{
		chains: chains,
		log:    log.With().Str("component", "allowance").Logger(),
	}
}

// NeedsApproval reports whether owner's allowance for spender is below amount.
// The native asset never needs approval and triggers no chain read.
func (c *Checker) NeedsApproval(ctx context.Context, token, owner, spender common.Address, amount *big.Int, chainID int64) (bool, error) {
	if token == address.Native {
		return false, nil
	}

	current, err := c.Allowance(ctx, token, owner, spender, chainID)
	if err != nil {
		return false, err
	}

	needs := current.Cmp(amount) < 0
	c.log.Debug().
		Str("token", token.Hex()).
		Str("owner", owner.Hex()).
		Str("spender", spender.Hex()).
		Str("allowance", current.String()).
		Str("amount", amount.String()).
		Bool("needs_approval", needs).
		Msg("allowance checked")
	return needs, nil
}

// Allowance reads token.allowance(owner, spender) on chainID.
func (c *Checker) Allowance(ctx context.Context, token, owner, spender common.Address, chainID int64) (*big.Int, error) {
	client, err := c.chains.Client(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrNetwork, err)
	}

	data, err := parsedERC20.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance data: %w", err)
	}

	result, err := client.Call(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call allowance: %w", types.ErrNetwork, err)
	}

	values, err := parsedERC20.Unpack("allowance", result)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("%w: unexpected allowance result %x", types.ErrNetwork, result)
	}

	allowance, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected allowance type %T", types.ErrNetwork, values[0])
	}
	return allowance, nil
}

// Approve sends approve(spender, amount) from id and waits until it is mined.
// The hash is returned whenever the transaction was broadcast, even on failure.
func (c *Checker) Approve(ctx context.Context, token, spender common.Address, amount *big.Int, id chain.Identity, chainID int64) (common.Hash, error) {
	if id == nil {
		return common.Hash{}, types.ErrNoIdentity
	}

	client, err := c.chains.Client(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	data, err := parsedERC20.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve data: %w", err)
	}

	label := strconv.FormatInt(chainID, 10)
	tx, err := client.Send(ctx, id, token, new(big.Int), data)
	if err != nil {
		metrics.TransactionsSent.WithLabelValues("approve", label, "error").Inc()
		if tx != nil {
			return tx.Hash(), fmt.Errorf("%w: approval: %w", types.ErrSubmissionFailed, err)
		}
		return common.Hash{}, fmt.Errorf("%w: approval: %w", types.ErrSubmissionFailed, err)
	}
	metrics.TransactionsSent.WithLabelValues("approve", label, "ok").Inc()

	c.log.Info().Str("tx_hash", tx.Hash().Hex()).Str("token", token.Hex()).Msg("approval sent, waiting for receipt")

	receipt, err := client.WaitMined(ctx, tx)
	if err != nil {
		return tx.Hash(), fmt.Errorf("%w: waiting for approval %s: %w", types.ErrSubmissionFailed, tx.Hash().Hex(), err)
	}
	if receipt.Status != gethtypes.ReceiptStatusSuccessful {
		return tx.Hash(), fmt.Errorf("%w: approval %s reverted", types.ErrSubmissionFailed, tx.Hash().Hex())
	}

	return tx.Hash(), nil
}
