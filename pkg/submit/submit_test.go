package submit

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotusgift/pkg/chain"
	"lotusgift/pkg/chain/chaintest"
	"lotusgift/pkg/types"
	"lotusgift/pkg/types/typestest"
)

const (
	userKey    = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	relayerKey = "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

func newSubmitter(backend *chaintest.Backend) *Submitter {
	reg := chain.NewRegistry(
		map[int64]chain.Network{
			8453:  {RPCURL: "http://base.invalid"},
			48900: {RPCURL: "http://zircuit.invalid"},
		},
		chain.WithDialer(func(ctx context.Context, rpcURL string) (chain.Backend, error) {
			return backend, nil
		}),
	)
	return NewSubmitter(reg)
}

func identities(t *testing.T) (chain.Identity, chain.Identity) {
	t.Helper()
	user, err := chain.IdentityFromHex(userKey)
	require.NoError(t, err)
	relayer, err := chain.IdentityFromHex(relayerKey)
	require.NoError(t, err)
	return user, relayer
}

func TestBuildTradeNormalizesAddresses(t *testing.T) {
	msg := map[string]interface{}(typestest.TradeMessage("0x0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"))
	msg["adapter"] = typestest.AdapterPadded
	msg["fees"] = []interface{}{
		map[string]interface{}{"bps": "25", "recipient": typestest.FeeRecipient},
	}

	trade, err := BuildTrade(msg, []byte{0xaa, 0xbb})
	require.NoError(t, err)

	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", trade.UserAccount.Hex())
	assert.Equal(t, trade.UserAccount, trade.DestReceiver)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", trade.Adapter.Hex())
	assert.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", trade.SrcToken.Hex())
	require.Len(t, trade.Fees, 1)
	assert.Equal(t, "0x3333333333333333333333333333333333333333", trade.Fees[0].Recipient.Hex())
	assert.Equal(t, int64(25), trade.Fees[0].Bps.Int64())

	assert.Equal(t, common.HexToHash(typestest.TradeID), common.Hash(trade.TradeID))
	assert.Equal(t, int64(1000000), trade.SrcTokenAmount.Int64())
	assert.Equal(t, int64(48900), trade.DestChainID.Int64())
	assert.Empty(t, trade.Data)
	assert.Equal(t, []byte{0x12, 0x34}, trade.GuardianSignature)
	assert.Equal(t, []byte{0xaa, 0xbb}, trade.Signature)
}

func TestBuildTradeRejectsBadFields(t *testing.T) {
	tests := map[string]interface{}{
		"userAccount": "0x1234",
		"tradeId":     "0x01",
		"nonce":       "-5",
		"deadline":    nil,
		"fees":        "not-a-list",
	}

	for field, value := range tests {
		t.Run(field, func(t *testing.T) {
			msg := map[string]interface{}(typestest.TradeMessage("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"))
			msg[field] = value
			_, err := BuildTrade(msg, nil)
			assert.ErrorIs(t, err, types.ErrMalformedResponse)
		})
	}
}

func TestEncodeExecuteRoundTrip(t *testing.T) {
	msg := map[string]interface{}(typestest.TradeMessage("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"))
	trade, err := BuildTrade(msg, make([]byte, 65))
	require.NoError(t, err)

	data, err := EncodeExecute(trade)
	require.NoError(t, err)

	engineABI := EngineABI()
	method, err := engineABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "execute", method.Name)

	values, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Len(t, values, 1)

	var decoded types.Trade
	require.NoError(t, method.Inputs.Copy(&decoded, values))
	assert.Equal(t, trade.UserAccount, decoded.UserAccount)
	assert.Equal(t, trade.Deadline, decoded.Deadline)
	assert.Equal(t, trade.Fees[0].Recipient, decoded.Fees[0].Recipient)
	assert.Len(t, decoded.Signature, 65)
}

func TestSubmitGasless(t *testing.T) {
	backend := chaintest.NewBackend()
	user, relayer := identities(t)

	est := typestest.GaslessEstimate(user.Address().Hex())
	est.Tx.ChainID = math.NewHexOrDecimal256(48900)
	est.Tx.Value = math.NewHexOrDecimal256(1234)
	sig := make([]byte, 65)

	hash, trade, err := newSubmitter(backend).SubmitGasless(context.Background(), est, sig, relayer, 8453)
	require.NoError(t, err)
	require.NotNil(t, trade)

	sent := backend.SentTransactions()
	require.Len(t, sent, 1)
	tx := sent[0]
	assert.Equal(t, hash, tx.Hash())

	from, err := chaintest.Sender(tx)
	require.NoError(t, err)
	assert.Equal(t, relayer.Address(), from, "the relayer pays gas")
	assert.Equal(t, int64(48900), tx.ChainId().Int64())
	assert.Equal(t, common.HexToAddress(typestest.EngineAddress), *tx.To(), "padded tx.to is normalized")
	assert.Equal(t, big.NewInt(1234), tx.Value())

	want, err := EncodeExecute(trade)
	require.NoError(t, err)
	assert.Equal(t, want, tx.Data())
}

func TestSubmitGaslessFallsBackToSourceChain(t *testing.T) {
	backend := chaintest.NewBackend()
	user, relayer := identities(t)

	est := typestest.GaslessEstimate(user.Address().Hex())
	est.Tx.ChainID = nil

	_, _, err := newSubmitter(backend).SubmitGasless(context.Background(), est, make([]byte, 65), relayer, 8453)
	require.NoError(t, err)
	assert.Equal(t, int64(8453), backend.SentTransactions()[0].ChainId().Int64())
}

func TestSubmitDirect(t *testing.T) {
	backend := chaintest.NewBackend()
	user, _ := identities(t)
	est := typestest.DirectEstimate()

	hash, err := newSubmitter(backend).SubmitDirect(context.Background(), est, user, 8453)
	require.NoError(t, err)

	sent := backend.SentTransactions()
	require.Len(t, sent, 1)
	assert.Equal(t, hash, sent[0].Hash())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, sent[0].Data())

	from, err := chaintest.Sender(sent[0])
	require.NoError(t, err)
	assert.Equal(t, user.Address(), from)
}

func TestSubmitErrors(t *testing.T) {
	user, relayer := identities(t)

	est := typestest.DirectEstimate()
	est.Tx.ChainID = math.NewHexOrDecimal256(999)
	_, err := newSubmitter(chaintest.NewBackend()).SubmitDirect(context.Background(), est, user, 8453)
	assert.ErrorIs(t, err, types.ErrChainMismatch)

	backend := chaintest.NewBackend()
	backend.SendErr = errors.New("nonce too low")
	hash, _, err := newSubmitter(backend).SubmitGasless(context.Background(), typestest.GaslessEstimate(user.Address().Hex()), make([]byte, 65), relayer, 8453)
	assert.ErrorIs(t, err, types.ErrSubmissionFailed)
	assert.Equal(t, common.Hash{}, hash)

	_, _, err = newSubmitter(chaintest.NewBackend()).SubmitGasless(context.Background(), typestest.DirectEstimate(), nil, relayer, 8453)
	assert.ErrorIs(t, err, types.ErrNoGaslessRoute)

	_, err = newSubmitter(chaintest.NewBackend()).SubmitDirect(context.Background(), typestest.DirectEstimate(), nil, 8453)
	assert.ErrorIs(t, err, types.ErrNoIdentity)
}

func TestSubmitGaslessRevertingEstimateSendsNothing(t *testing.T) {
	user, relayer := identities(t)

	backend := chaintest.NewBackend()
	backend.EstimateErr = errors.New("execution reverted")
	hash, trade, err := newSubmitter(backend).SubmitGasless(context.Background(), typestest.GaslessEstimate(user.Address().Hex()), make([]byte, 65), relayer, 8453)

	assert.ErrorIs(t, err, types.ErrSubmissionFailed)
	assert.Equal(t, common.Hash{}, hash)
	assert.Nil(t, trade)
	assert.Empty(t, backend.SentTransactions())
}

func TestSubmitKeepsHashWhenBroadcastIsUncertain(t *testing.T) {
	user, _ := identities(t)

	backend := chaintest.NewBackend()
	backend.SendErr = context.DeadlineExceeded
	hash, err := newSubmitter(backend).SubmitDirect(context.Background(), typestest.DirectEstimate(), user, 8453)

	assert.ErrorIs(t, err, types.ErrSubmissionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.Contains(t, err.Error(), hash.Hex())
}
