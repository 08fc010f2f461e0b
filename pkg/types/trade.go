package types

import (
	"fmt"
	"math/big"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/holiman/uint256"

	"lotusgift/pkg/address"
)

var decimalInteger = regexp.MustCompile(`^[0-9]+$`)

// QuoteRequest describes the exchange a user wants priced.
// Field names match the engine's /order/estimate body.
type QuoteRequest struct {
	SrcChainID   int64  `json:"srcChainId"`
	SrcToken     string `json:"srcToken"`
	SrcAmountWei string `json:"srcAmountWei"`
	DestToken    string `json:"destToken"`
	DestChainID  int64  `json:"destChainId"`
	SlippageBps  int    `json:"slippageBps"`
	UserAccount  string `json:"userAccount,omitempty"`
	DestReceiver string `json:"destReceiver,omitempty"`
}

// Validate checks the request before anything touches the network.
// supported reports whether a chain id has a configured network.
func (r QuoteRequest) Validate(supported func(chainID int64) bool) error {
	if _, err := r.Amount(); err != nil {
		return err
	}
	if r.SlippageBps < 0 || r.SlippageBps > 10000 {
		return fmt.Errorf("%w: slippageBps %d out of range", ErrInvalidRequest, r.SlippageBps)
	}
	if supported != nil {
		for _, id := range []int64{r.SrcChainID, r.DestChainID} {
			if !supported(id) {
				return fmt.Errorf("%w: %d", ErrChainMismatch, id)
			}
		}
	}
	_, err := r.Normalized()
	return err
}

// Amount parses SrcAmountWei, which must be a non-negative integer fitting in 256 bits.
func (r QuoteRequest) Amount() (*big.Int, error) {
	if !decimalInteger.MatchString(r.SrcAmountWei) {
		return nil, fmt.Errorf("%w: srcAmountWei %q is not a non-negative integer", ErrInvalidRequest, r.SrcAmountWei)
	}
	v, err := uint256.FromDecimal(r.SrcAmountWei)
	if err != nil {
		return nil, fmt.Errorf("%w: srcAmountWei %q: %v", ErrInvalidRequest, r.SrcAmountWei, err)
	}
	return v.ToBig(), nil
}

// Normalized returns a copy with every address in checksum form.
func (r QuoteRequest) Normalized() (QuoteRequest, error) {
	fields := []struct {
		name     string
		value    *string
		optional bool
	}{
		{"srcToken", &r.SrcToken, false},
		{"destToken", &r.DestToken, false},
		{"userAccount", &r.UserAccount, true},
		{"destReceiver", &r.DestReceiver, true},
	}
	for _, f := range fields {
		if *f.value == "" && f.optional {
			continue
		}
		addr, err := address.Normalize(*f.value)
		if err != nil {
			return r, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = addr.Hex()
	}
	return r, nil
}

// Fee is one entry of the engine's fee breakdown.
type Fee struct {
	Bps       *math.HexOrDecimal256 `json:"bps"`
	Recipient string                `json:"recipient"`
}

// TxData is the raw call the engine wants executed for the direct path.
type TxData struct {
	To      string                `json:"to"`
	Data    hexutil.Bytes         `json:"data"`
	Value   *math.HexOrDecimal256 `json:"value,omitempty"`
	ChainID *math.HexOrDecimal256 `json:"chainId,omitempty"`
}

// TradeEstimate is a priced proposal returned by the engine.
// TypedData is only present when the route can be executed gaslessly.
type TradeEstimate struct {
	TradeID           string              `json:"tradeId"`
	ExpectedAmount    *big.Int            `json:"expectedAmount"`
	MinExpectedAmount *big.Int            `json:"minExpectedAmount"`
	Fees              []Fee               `json:"fees"`
	Tx                TxData              `json:"tx"`
	TypedData         *apitypes.TypedData `json:"eip712,omitempty"`
}

// SupportsGasless reports whether the engine returned EIP-712 typed data to sign.
func (e *TradeEstimate) SupportsGasless() bool {
	return e.TypedData != nil
}

// Value is the native amount the target call must carry.
func (e *TradeEstimate) Value() *big.Int {
	if e.Tx.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set((*big.Int)(e.Tx.Value))
}

// TargetChainID is the chain the transaction goes to, or fallback when the
// engine did not name one.
func (e *TradeEstimate) TargetChainID(fallback int64) int64 {
	if e.Tx.ChainID == nil {
		return fallback
	}
	id := (*big.Int)(e.Tx.ChainID)
	if id.Sign() == 0 || !id.IsInt64() {
		return fallback
	}
	return id.Int64()
}

// TradeFee mirrors the (bps, recipient) tuple of the execute call.
type TradeFee struct {
	Bps       *big.Int       `abi:"bps"`
	Recipient common.Address `abi:"recipient"`
}

// Trade is the argument of execute(trade). Every address is normalized.
type Trade struct {
	TradeID            [32]byte       `abi:"tradeId"`
	Nonce              *big.Int       `abi:"nonce"`
	UserAccount        common.Address `abi:"userAccount"`
	DestReceiver       common.Address `abi:"destReceiver"`
	SrcToken           common.Address `abi:"srcToken"`
	SrcTokenAmount     *big.Int       `abi:"srcTokenAmount"`
	SrcChainID         *big.Int       `abi:"srcChainId"`
	DestToken          common.Address `abi:"destToken"`
	DestTokenMinAmount *big.Int       `abi:"destTokenMinAmount"`
	DestChainID        *big.Int       `abi:"destChainId"`
	Adapter            common.Address `abi:"adapter"`
	ProtocolNativeFee  *big.Int       `abi:"protocolNativeFee"`
	Data               []byte         `abi:"data"`
	Deadline           *big.Int       `abi:"deadline"`
	Fees               []TradeFee     `abi:"fees"`
	GuardianSignature  []byte         `abi:"guardianSignature"`
	Signature          []byte         `abi:"signature"`
}

// OrderStatus is the engine's view of a submitted trade.
type OrderStatus string

const (
	StatusPending  OrderStatus = "PENDING"
	StatusSuccess  OrderStatus = "SUCCESS"
	StatusFailed   OrderStatus = "FAILED"
	StatusRefunded OrderStatus = "REFUNDED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// IsTerminal is true for the states after which the engine reports no further change.
// Anything unrecognized counts as still pending.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusRefunded, StatusUnknown:
		return true
	}
	return false
}

// StatusResponse is the decoded /order/status payload.
type StatusResponse struct {
	Status OrderStatus            `json:"status"`
	Raw    map[string]interface{} `json:"raw,omitempty"`
}
