package submit

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"lotusgift/pkg/address"
	"lotusgift/pkg/types"
)

// execute((Trade)) on the trading engine contract
const engineABI = `[{
	"type": "function",
	"name": "execute",
	"stateMutability": "payable",
	"inputs": [{
		"name": "trade",
		"type": "tuple",
		"components": [
			{"name": "tradeId", "type": "bytes32"},
			{"name": "nonce", "type": "uint256"},
			{"name": "userAccount", "type": "address"},
			{"name": "destReceiver", "type": "address"},
			{"name": "srcToken", "type": "address"},
			{"name": "srcTokenAmount", "type": "uint256"},
			{"name": "srcChainId", "type": "uint256"},
			{"name": "destToken", "type": "address"},
			{"name": "destTokenMinAmount", "type": "uint256"},
			{"name": "destChainId", "type": "uint256"},
			{"name": "adapter", "type": "address"},
			{"name": "protocolNativeFee", "type": "uint256"},
			{"name": "data", "type": "bytes"},
			{"name": "deadline", "type": "uint256"},
			{"name": "fees", "type": "tuple[]", "components": [
				{"name": "bps", "type": "uint256"},
				{"name": "recipient", "type": "address"}
			]},
			{"name": "guardianSignature", "type": "bytes"},
			{"name": "signature", "type": "bytes"}
		]
	}],
	"outputs": []
}]`

var parsedEngine = mustParseABI(engineABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("failed to parse engine ABI: %v", err))
	}
	return parsed
}

// EngineABI returns the parsed execute interface.
func EngineABI() abi.ABI {
	return parsedEngine
}

// EncodeExecute packs the calldata for execute(trade).
func EncodeExecute(trade *types.Trade) ([]byte, error) {
	data, err := parsedEngine.Pack("execute", *trade)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute data: %w", err)
	}
	return data, nil
}

// BuildTrade turns the signed EIP-712 message into the execute argument.
// Every address, fee recipients included, goes through address.Normalize.
func BuildTrade(message map[string]interface{}, signature []byte) (*types.Trade, error) {
	f := fieldReader{message: message}

	trade := &types.Trade{
		TradeID:            f.bytes32("tradeId"),
		Nonce:              f.uint("nonce", true),
		UserAccount:        f.address("userAccount"),
		DestReceiver:       f.address("destReceiver"),
		SrcToken:           f.address("srcToken"),
		SrcTokenAmount:     f.uint("srcTokenAmount", true),
		SrcChainID:         f.uint("srcChainId", true),
		DestToken:          f.address("destToken"),
		DestTokenMinAmount: f.uint("destTokenMinAmount", true),
		DestChainID:        f.uint("destChainId", true),
		Adapter:            f.address("adapter"),
		ProtocolNativeFee:  f.uint("protocolNativeFee", false),
		Data:               f.bytes("data"),
		Deadline:           f.uint("deadline", true),
		Fees:               f.fees("fees"),
		GuardianSignature:  f.bytes("guardianSignature"),
		Signature:          append([]byte(nil), signature...),
	}
	if f.err != nil {
		return nil, f.err
	}
	return trade, nil
}

// fieldReader decodes message fields and keeps the first error.
type fieldReader struct {
	message map[string]interface{}
	err     error
}

func (f *fieldReader) fail(name string, err error) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: field %s: %w", types.ErrMalformedResponse, name, err)
	}
}

func (f *fieldReader) address(name string) common.Address {
	raw, ok := f.message[name].(string)
	if !ok {
		f.fail(name, fmt.Errorf("expected an address, got %T", f.message[name]))
		return common.Address{}
	}
	addr, err := address.Normalize(raw)
	if err != nil {
		f.fail(name, err)
	}
	return addr
}

func (f *fieldReader) uint(name string, required bool) *big.Int {
	v, ok := f.message[name]
	if !ok || v == nil {
		if required {
			f.fail(name, fmt.Errorf("missing"))
		}
		return new(big.Int)
	}
	n, err := toBigInt(v)
	if err != nil {
		f.fail(name, err)
		return new(big.Int)
	}
	return n
}

func (f *fieldReader) bytes(name string) []byte {
	v, ok := f.message[name]
	if !ok || v == nil {
		return []byte{}
	}
	s, ok := v.(string)
	if !ok {
		f.fail(name, fmt.Errorf("expected hex bytes, got %T", v))
		return nil
	}
	if s == "" || s == "0x" {
		return []byte{}
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		f.fail(name, err)
	}
	return b
}

func (f *fieldReader) bytes32(name string) [32]byte {
	var out [32]byte
	b := f.bytes(name)
	if f.err == nil && len(b) != 32 {
		f.fail(name, fmt.Errorf("expected 32 bytes, got %d", len(b)))
		return out
	}
	copy(out[:], b)
	return out
}

func (f *fieldReader) fees(name string) []types.TradeFee {
	v, ok := f.message[name]
	if !ok || v == nil {
		return []types.TradeFee{}
	}
	items, ok := v.([]interface{})
	if !ok {
		f.fail(name, fmt.Errorf("expected a list, got %T", v))
		return nil
	}

	fees := make([]types.TradeFee, 0, len(items))
	for i, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			f.fail(fmt.Sprintf("%s[%d]", name, i), fmt.Errorf("expected an object, got %T", item))
			return nil
		}
		sub := fieldReader{message: entry}
		fee := types.TradeFee{
			Bps:       sub.uint("bps", true),
			Recipient: sub.address("recipient"),
		}
		if sub.err != nil {
			f.fail(fmt.Sprintf("%s[%d]", name, i), sub.err)
			return nil
		}
		fees = append(fees, fee)
	}
	return fees
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case string:
		b, ok := math.ParseBig256(n)
		if !ok || n == "" || b.Sign() < 0 {
			return nil, fmt.Errorf("invalid integer %q", n)
		}
		return b, nil
	case json.Number:
		return toBigInt(n.String())
	case float64:
		if n < 0 || n != float64(int64(n)) {
			return nil, fmt.Errorf("invalid integer %v", n)
		}
		return big.NewInt(int64(n)), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case *big.Int:
		return new(big.Int).Set(n), nil
	case *math.HexOrDecimal256:
		return new(big.Int).Set((*big.Int)(n)), nil
	default:
		return nil, fmt.Errorf("unsupported integer type %T", v)
	}
}
