package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"lotusgift/pkg/types"
)

// DefaultGasLimit is used when the node cannot be reached for an estimate and
// no limit is configured. A reverting estimate is never covered by it.
const DefaultGasLimit = uint64(500000)

// Client builds, signs and sends transactions on one network.
type Client struct {
	network Network
	backend Backend
	log     zerolog.Logger
}

// NewClient wraps backend for network.
func NewClient(network Network, backend Backend, log zerolog.Logger) *Client {
	return &Client{
		network: network,
		backend: backend,
		log:     log,
	}
}

// Network returns the network configuration of the client.
func (c *Client) Network() Network {
	return c.network
}

// ChainID is the EIP-155 chain id used for signing.
func (c *Client) ChainID() *big.Int {
	return c.network.chainID()
}

// Call runs a read-only contract call against the latest block.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{
		To:   &to,
		Data: data,
	}
	return c.backend.CallContract(ctx, msg, nil)
}

// Send signs a legacy EIP-155 transaction from id and broadcasts it.
// The returned transaction is the signed one. Nothing is signed when gas
// estimation reports a revert. When the broadcast itself fails without an
// answer from the node, the signed transaction is returned with the error;
// it may still be pending.
func (c *Client) Send(ctx context.Context, id Identity, to common.Address, value *big.Int, data []byte) (*gethtypes.Transaction, error) {
	if value == nil {
		value = new(big.Int)
	}
	from := id.Address()

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit, err := c.gasLimit(ctx, from, to, value, data)
	if err != nil {
		return nil, err
	}

	tx := gethtypes.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signedTx, err := id.SignTx(tx, c.ChainID())
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signedTx); err != nil {
		if nodeRejected(err) {
			return nil, fmt.Errorf("failed to send transaction: %w", err)
		}
		c.log.Warn().Err(err).Str("tx_hash", signedTx.Hash().Hex()).Msg("broadcast outcome unknown")
		return signedTx, fmt.Errorf("failed to send transaction %s: %w", signedTx.Hash().Hex(), err)
	}

	c.log.Info().
		Str("from", from.Hex()).
		Str("to", to.Hex()).
		Str("tx_hash", signedTx.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gas_limit", gasLimit).
		Msg("transaction sent")

	return signedTx, nil
}

// WaitMined blocks until tx has a receipt or ctx is done.
func (c *Client) WaitMined(ctx context.Context, tx *gethtypes.Transaction) (*gethtypes.Receipt, error) {
	return bind.WaitMined(ctx, c.backend, tx)
}

// Close closes the underlying connection when it has one.
func (c *Client) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}

// gasPrice returns the configured gas price or the node's suggestion.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	if c.network.GasPrice != nil {
		return big.NewInt(*c.network.GasPrice), nil
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return gasPrice, nil
}

func (c *Client) gasLimit(ctx context.Context, from, to common.Address, value *big.Int, data []byte) (uint64, error) {
	if c.network.GasLimit != nil {
		return *c.network.GasLimit, nil
	}

	msg := ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	}
	estimated, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		if nodeRejected(err) {
			return 0, fmt.Errorf("%w: gas estimation failed: %w", types.ErrSubmissionFailed, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		c.log.Warn().Err(err).Uint64("gas_limit", DefaultGasLimit).Msg("gas estimation unavailable, using default limit")
		return DefaultGasLimit, nil
	}
	return estimated * 120 / 100, nil // 20% buffer
}

// nodeRejected reports whether err is an answer from the node (a JSON-RPC
// error or a revert) rather than a failure to reach it.
func nodeRejected(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return true
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"revert", "insufficient funds", "nonce too low", "gas required exceeds", "underpriced"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
