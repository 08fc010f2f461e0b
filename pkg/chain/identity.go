package chain

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// DefaultDerivationPath is the first account of the standard Ethereum BIP-44 tree.
const DefaultDerivationPath = "m/44'/60'/0'/0/0"

var ErrInvalidPrivateKey = errors.New("invalid private key: expected 0x followed by 64 hex characters")

var privateKeyFormat = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Identity is an account able to authorize typed data and transactions.
type Identity interface {
	Address() common.Address
	// SignHash signs a 32-byte digest and returns [R || S || V] with V in {0, 1}.
	SignHash(hash []byte) ([]byte, error)
	SignTx(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error)
}

// KeyIdentity is an Identity backed by an in-memory secp256k1 key.
type KeyIdentity struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewKeyIdentity wraps an in-memory private key.
func NewKeyIdentity(key *ecdsa.PrivateKey) *KeyIdentity {
	return &KeyIdentity{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// IdentityFromHex parses a 0x-prefixed 32-byte hex private key.
func IdentityFromHex(hexKey string) (*KeyIdentity, error) {
	hexKey = strings.TrimSpace(hexKey)
	if !privateKeyFormat.MatchString(hexKey) {
		return nil, ErrInvalidPrivateKey
	}

	key, err := crypto.HexToECDSA(hexKey[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return NewKeyIdentity(key), nil
}

// IdentityFromMnemonic derives the account at path from a BIP-39 mnemonic.
// An empty path means DefaultDerivationPath.
func IdentityFromMnemonic(mnemonic, path string) (*KeyIdentity, error) {
	if path == "" {
		path = DefaultDerivationPath
	}

	wallet, err := hdwallet.NewFromMnemonic(strings.TrimSpace(mnemonic))
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}

	derivationPath, err := hdwallet.ParseDerivationPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation path %q: %w", path, err)
	}

	account, err := wallet.Derive(derivationPath, false)
	if err != nil {
		return nil, fmt.Errorf("failed to derive account: %w", err)
	}

	key, err := wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("failed to get private key: %w", err)
	}
	return NewKeyIdentity(key), nil
}

// Address returns the account address of the key.
func (k *KeyIdentity) Address() common.Address {
	return k.address
}

// SignHash signs a 32-byte digest, returning [R || S || V] with V in {0, 1}.
func (k *KeyIdentity) SignHash(hash []byte) ([]byte, error) {
	return crypto.Sign(hash, k.key)
}

// SignTx signs tx with the EIP-155 signer for chainID.
func (k *KeyIdentity) SignTx(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error) {
	return gethtypes.SignTx(tx, gethtypes.NewEIP155Signer(chainID), k.key)
}
