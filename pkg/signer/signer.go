package signer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"lotusgift/pkg/chain"
	"lotusgift/pkg/types"
)

const domainType = "EIP712Domain"

// Sign produces the user's EIP-712 signature over exactly the domain, types,
// primary type and message supplied. td is not modified.
// The result is 65 bytes with v in {27, 28}.
func Sign(ctx context.Context, id chain.Identity, td apitypes.TypedData) ([]byte, error) {
	if id == nil {
		return nil, types.ErrNoIdentity
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrCancelled, err)
	}

	digest, err := Digest(td)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSigningRejected, err)
	}

	sig, err := id.SignHash(digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrSigningRejected, err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("%w: signature is %d bytes", types.ErrSigningRejected, len(sig))
	}

	out := make([]byte, len(sig))
	copy(out, sig)
	if out[crypto.RecoveryIDOffset] < 27 {
		out[crypto.RecoveryIDOffset] += 27
	}
	return out, nil
}

// Digest computes keccak256(0x19 0x01 || domainSeparator || hashStruct(message)).
// When the types omit EIP712Domain it is derived from the populated domain fields.
func Digest(td apitypes.TypedData) ([]byte, error) {
	td.Types = withDomainType(td)

	domainSeparator, err := td.HashStruct(domainType, td.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	dataHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	return crypto.Keccak256(rawData), nil
}

// withDomainType returns td.Types, copied and extended when the domain type is missing.
func withDomainType(td apitypes.TypedData) apitypes.Types {
	if _, ok := td.Types[domainType]; ok {
		return td.Types
	}

	out := make(apitypes.Types, len(td.Types)+1)
	for name, fields := range td.Types {
		out[name] = fields
	}

	var fields []apitypes.Type
	if td.Domain.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if td.Domain.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if td.Domain.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if td.Domain.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if td.Domain.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	out[domainType] = fields
	return out
}
