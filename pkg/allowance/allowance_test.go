package allowance

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotusgift/pkg/address"
	"lotusgift/pkg/chain"
	"lotusgift/pkg/chain/chaintest"
	"lotusgift/pkg/types"
)

var (
	usdc    = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	owner   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	spender = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func newChecker(backend *chaintest.Backend) *Checker {
	reg := chain.NewRegistry(
		map[int64]chain.Network{8453: {RPCURL: "http://base.invalid"}},
		chain.WithDialer(func(ctx context.Context, rpcURL string) (chain.Backend, error) {
			return backend, nil
		}),
	)
	return NewChecker(reg)
}

func TestNeedsApproval(t *testing.T) {
	tests := []struct {
		name      string
		allowance int64
		amount    int64
		want      bool
	}{
		{"below amount", 500, 1000000, true},
		{"above amount", 2000000, 1000000, false},
		{"exactly amount", 1000000, 1000000, false},
		{"zero", 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := chaintest.NewBackend()
			backend.Allowance = big.NewInt(tt.allowance)

			got, err := newChecker(backend).NeedsApproval(context.Background(), usdc, owner, spender, big.NewInt(tt.amount), 8453)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			require.Len(t, backend.Calls, 1)
			assert.Equal(t, usdc, *backend.Calls[0].To)
		})
	}
}

func TestNeedsApprovalNativeSkipsRead(t *testing.T) {
	backend := chaintest.NewBackend()
	checker := newChecker(backend)

	got, err := checker.NeedsApproval(context.Background(), address.Native, owner, spender, big.NewInt(1), 8453)
	require.NoError(t, err)
	assert.False(t, got)
	assert.Empty(t, backend.Calls)

	// even on a chain that is not configured
	got, err = checker.NeedsApproval(context.Background(), address.Native, owner, spender, big.NewInt(1), 999)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestNeedsApprovalErrors(t *testing.T) {
	backend := chaintest.NewBackend()
	backend.CallErr = errors.New("rpc unavailable")
	checker := newChecker(backend)

	_, err := checker.NeedsApproval(context.Background(), usdc, owner, spender, big.NewInt(1), 8453)
	assert.ErrorIs(t, err, types.ErrNetwork)

	_, err = checker.NeedsApproval(context.Background(), usdc, owner, spender, big.NewInt(1), 999)
	assert.ErrorIs(t, err, types.ErrNetwork)
	assert.ErrorIs(t, err, types.ErrChainMismatch)
}

func TestApprove(t *testing.T) {
	backend := chaintest.NewBackend()
	checker := newChecker(backend)

	id, err := chain.IdentityFromHex("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)

	hash, err := checker.Approve(context.Background(), usdc, spender, big.NewInt(1000000), id, 8453)
	require.NoError(t, err)

	sent := backend.SentTransactions()
	require.Len(t, sent, 1)
	assert.Equal(t, hash, sent[0].Hash())
	assert.Equal(t, usdc, *sent[0].To())

	method, err := parsedERC20.MethodById(sent[0].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "approve", method.Name)

	args, err := method.Inputs.Unpack(sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, spender, args[0])
	assert.Equal(t, int64(1000000), args[1].(*big.Int).Int64())
}

func TestApproveReverted(t *testing.T) {
	backend := chaintest.NewBackend()
	failed := uint64(0)
	backend.ReceiptStatus = &failed

	id, err := chain.IdentityFromHex("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)

	hash, err := newChecker(backend).Approve(context.Background(), usdc, spender, big.NewInt(1), id, 8453)
	assert.ErrorIs(t, err, types.ErrSubmissionFailed)
	assert.NotEqual(t, common.Hash{}, hash)
}

func TestApproveKeepsHashWhenBroadcastIsUncertain(t *testing.T) {
	backend := chaintest.NewBackend()
	backend.SendErr = context.DeadlineExceeded

	id, err := chain.IdentityFromHex("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)

	hash, err := newChecker(backend).Approve(context.Background(), usdc, spender, big.NewInt(1), id, 8453)
	assert.ErrorIs(t, err, types.ErrSubmissionFailed)
	assert.NotEqual(t, common.Hash{}, hash)

	backend.SendErr = errors.New("nonce too low")
	hash, err = newChecker(backend).Approve(context.Background(), usdc, spender, big.NewInt(1), id, 8453)
	assert.ErrorIs(t, err, types.ErrSubmissionFailed)
	assert.Equal(t, common.Hash{}, hash)
}
