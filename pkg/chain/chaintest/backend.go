// Package chaintest provides an in-memory chain backend for tests.
package chaintest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Backend records sent transactions and answers every contract call with
// CallResult (or a 32-byte encoding of Allowance when CallResult is nil).
type Backend struct {
	mu sync.Mutex

	Allowance   *big.Int
	CallResult  []byte
	CallErr     error
	GasPrice    *big.Int
	GasEstimate uint64
	EstimateErr error
	SendErr     error
	// ReceiptStatus overrides the status of every receipt; nil means success.
	ReceiptStatus *uint64

	Calls  []ethereum.CallMsg
	Sent   []*gethtypes.Transaction
	nonces map[common.Address]uint64
}

// NewBackend returns a backend with a 1 gwei gas price and a 100000 gas estimate.
func NewBackend() *Backend {
	return &Backend{
		GasPrice:    big.NewInt(1_000_000_000),
		GasEstimate: 100000,
		nonces:      make(map[common.Address]uint64),
	}
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Calls = append(b.Calls, call)
	if b.CallErr != nil {
		return nil, b.CallErr
	}
	if b.CallResult != nil {
		return b.CallResult, nil
	}

	out := make([]byte, 32)
	if b.Allowance != nil {
		b.Allowance.FillBytes(out)
	}
	return out, nil
}

func (b *Backend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return nil, nil
}

func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return b.GasEstimate, nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

// SendTransaction accepts any transaction and bumps the sender's nonce.
func (b *Backend) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.SendErr != nil {
		return b.SendErr
	}

	from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	b.nonces[from] = tx.Nonce() + 1
	b.Sent = append(b.Sent, tx)
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, tx := range b.Sent {
		if tx.Hash() != txHash {
			continue
		}
		status := gethtypes.ReceiptStatusSuccessful
		if b.ReceiptStatus != nil {
			status = *b.ReceiptStatus
		}
		return &gethtypes.Receipt{
			Status:      status,
			TxHash:      txHash,
			BlockNumber: big.NewInt(int64(i + 1)),
			GasUsed:     tx.Gas(),
		}, nil
	}
	return nil, ethereum.NotFound
}

// SentTransactions returns a copy of everything broadcast so far.
func (b *Backend) SentTransactions() []*gethtypes.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*gethtypes.Transaction(nil), b.Sent...)
}

// Sender recovers the signer of tx.
func Sender(tx *gethtypes.Transaction) (common.Address, error) {
	if tx == nil {
		return common.Address{}, errors.New("nil transaction")
	}
	return gethtypes.Sender(gethtypes.LatestSignerForChainID(tx.ChainId()), tx)
}
