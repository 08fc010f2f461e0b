// Package typestest holds engine payload fixtures shared by tests.
package typestest

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"lotusgift/pkg/types"
)

const (
	EngineAddress = "0x1111111111111111111111111111111111111111"
	AdapterPadded = "0x0000000000000000000000002222222222222222222222222222222222222222"
	FeeRecipient  = "0x0x3333333333333333333333333333333333333333"
	TradeID       = "0x7a1f00000000000000000000000000000000000000000000000000000000abcd"
	USDCBase      = "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
	USDCZircuit   = "0x3b952c8c9c44e8fe201e2b26f6b2200203214cff"
)

// TradeTypes are the EIP-712 types of a gasless trade, without EIP712Domain.
func TradeTypes() apitypes.Types {
	return apitypes.Types{
		"Trade": {
			{Name: "tradeId", Type: "bytes32"},
			{Name: "nonce", Type: "uint256"},
			{Name: "userAccount", Type: "address"},
			{Name: "destReceiver", Type: "address"},
			{Name: "srcToken", Type: "address"},
			{Name: "srcTokenAmount", Type: "uint256"},
			{Name: "srcChainId", Type: "uint256"},
			{Name: "destToken", Type: "address"},
			{Name: "destTokenMinAmount", Type: "uint256"},
			{Name: "destChainId", Type: "uint256"},
			{Name: "adapter", Type: "address"},
			{Name: "protocolNativeFee", Type: "uint256"},
			{Name: "data", Type: "bytes"},
			{Name: "deadline", Type: "uint256"},
			{Name: "fees", Type: "Fee[]"},
			{Name: "guardianSignature", Type: "bytes"},
		},
		"Fee": {
			{Name: "bps", Type: "uint256"},
			{Name: "recipient", Type: "address"},
		},
	}
}

// TradeMessage is a signable trade message for user moving 1 USDC from Base to Zircuit.
func TradeMessage(user string) apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"tradeId":            TradeID,
		"nonce":              "7",
		"userAccount":        user,
		"destReceiver":       user,
		"srcToken":           USDCBase,
		"srcTokenAmount":     "1000000",
		"srcChainId":         "8453",
		"destToken":          USDCZircuit,
		"destTokenMinAmount": "988020",
		"destChainId":        "48900",
		"adapter":            "0x2222222222222222222222222222222222222222",
		"protocolNativeFee":  "0",
		"data":               "0x",
		"deadline":           "1900000000",
		"fees": []interface{}{
			map[string]interface{}{"bps": "10", "recipient": "0x3333333333333333333333333333333333333333"},
		},
		"guardianSignature": "0x1234",
	}
}

// TypedData wraps TradeMessage with the engine's domain on Base.
func TypedData(user string) *apitypes.TypedData {
	return &apitypes.TypedData{
		Types:       TradeTypes(),
		PrimaryType: "Trade",
		Domain: apitypes.TypedDataDomain{
			Name:              "GudEngine",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(8453),
			VerifyingContract: EngineAddress,
		},
		Message: TradeMessage(user),
	}
}

// GaslessEstimate is an estimate whose route supports gasless execution.
func GaslessEstimate(user string) *types.TradeEstimate {
	est := DirectEstimate()
	est.TypedData = TypedData(user)
	return est
}

// DirectEstimate is an estimate without a typed-data bundle.
func DirectEstimate() *types.TradeEstimate {
	return &types.TradeEstimate{
		TradeID:           TradeID,
		ExpectedAmount:    big.NewInt(998000),
		MinExpectedAmount: big.NewInt(988020),
		Fees: []types.Fee{
			{Bps: math.NewHexOrDecimal256(10), Recipient: FeeRecipient},
		},
		Tx: types.TxData{
			To:      "0x000000000000000000000000" + EngineAddress[2:],
			Data:    hexutil.MustDecode("0xdeadbeef"),
			Value:   math.NewHexOrDecimal256(0),
			ChainID: math.NewHexOrDecimal256(8453),
		},
	}
}
