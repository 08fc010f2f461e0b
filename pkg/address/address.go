package address

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned when a value cannot be turned into a 20-byte address.
var ErrInvalidAddress = errors.New("invalid address")

// Native is the sentinel the trading engine uses for a chain's native asset.
var Native = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// 12 zero bytes of left padding followed by a 20-byte address.
var paddedAddress = regexp.MustCompile(`^0{24}[0-9a-fA-F]{40}$`)

// Normalize repairs the address encodings the engine is known to emit
// (a doubled 0x prefix, 32-byte left padding) and returns the checksummed address.
func Normalize(raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, fmt.Errorf("%w: empty value", ErrInvalidAddress)
	}

	addr := raw
	if strings.HasPrefix(addr, "0x0x") {
		addr = "0x" + addr[4:]
	}
	if !strings.HasPrefix(addr, "0x") {
		return common.Address{}, fmt.Errorf("%w: missing 0x prefix: %q", ErrInvalidAddress, raw)
	}

	if body := addr[2:]; paddedAddress.MatchString(body) {
		addr = "0x" + body[24:]
	}

	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}

	return common.HexToAddress(addr), nil
}

// Checksum is Normalize returning the EIP-55 string form.
func Checksum(raw string) (string, error) {
	addr, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// IsNative reports whether raw denotes the native asset sentinel.
func IsNative(raw string) bool {
	addr, err := Normalize(raw)
	if err != nil {
		return false
	}
	return addr == Native
}
