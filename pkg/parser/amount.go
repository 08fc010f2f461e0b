package parser

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"lotusgift/pkg/types"
)

// ParseAmount converts a human amount such as "1.5" or "1,5" into base units
// for a token with the given decimals. Digits beyond the token precision are
// rounded.
func ParseAmount(input string, decimals int32) (*big.Int, error) {
	if decimals < 0 || decimals > 77 {
		return nil, fmt.Errorf("%w: decimals %d out of range", types.ErrInvalidRequest, decimals)
	}

	s := strings.TrimSpace(input)
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.Replace(s, ",", ".", 1)
	if s == "" {
		return nil, fmt.Errorf("%w: amount is required", types.ErrInvalidRequest)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", types.ErrInvalidRequest, input)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", types.ErrInvalidRequest)
	}

	wei := d.Shift(decimals).Round(0)
	if wei.Sign() == 0 {
		return nil, fmt.Errorf("%w: amount %s is below the token precision", types.ErrInvalidRequest, input)
	}
	return wei.BigInt(), nil
}

// FormatAmount renders base units with the token decimals, trimming
// trailing zeros.
func FormatAmount(wei *big.Int, decimals int32) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -decimals).String()
}

var chainAliases = map[string]int64{
	"ETHEREUM":         1,
	"ETH":              1,
	"MAINNET":          1,
	"OPTIMISM":         10,
	"OP":               10,
	"BASE":             8453,
	"ARBITRUM":         42161,
	"ARB":              42161,
	"ZIRCUIT":          48900,
	"SEPOLIA":          11155111,
	"BASE-SEPOLIA":     84532,
	"OP-SEPOLIA":       11155420,
	"ARBITRUM-SEPOLIA": 421614,
}

// ParseChain accepts a numeric chain id or a known network name.
func ParseChain(input string) (int64, error) {
	s := strings.TrimSpace(input)
	if id, err := strconv.ParseInt(s, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	if id, ok := chainAliases[strings.ToUpper(s)]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: unknown chain %q", types.ErrChainMismatch, input)
}
