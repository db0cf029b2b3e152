package evm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	metatx "github.com/dropforge/metatx/go"
)

// ToAPITypedData converts typed data to go-ethereum's apitypes representation,
// adding the EIP712Domain type when it is missing.
func ToAPITypedData(data metatx.TypedData) apitypes.TypedData {
	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types),
		PrimaryType: data.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              data.Domain.Name,
			Version:           data.Domain.Version,
			ChainId:           (*math.HexOrDecimal256)(data.Domain.ChainID),
			VerifyingContract: data.Domain.VerifyingContract,
		},
		Message: data.Message,
	}

	for typeName, fields := range data.Payload().Types {
		typedFields := make([]apitypes.Type, len(fields))
		for i, field := range fields {
			typedFields[i] = apitypes.Type{
				Name: field.Name,
				Type: field.Type,
			}
		}
		typedData.Types[typeName] = typedFields
	}

	return typedData
}

// HashTypedData returns the EIP-712 digest keccak256("\x19\x01" ++ domainSeparator ++ structHash).
func HashTypedData(data metatx.TypedData) ([]byte, error) {
	typedData := ToAPITypedData(data)

	dataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash struct: %w", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, dataHash...)
	return crypto.Keccak256(rawData), nil
}

// DomainSeparator hashes the EIP-712 domain, as the forwarder expects it in execute.
func DomainSeparator(domain metatx.SigningDomain) (common.Hash, error) {
	typedData := ToAPITypedData(metatx.TypedData{Domain: domain})
	separator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(separator), nil
}

// RequestTypeHash is keccak256 of the ForwardRequest type string.
func RequestTypeHash() common.Hash {
	return crypto.Keccak256Hash([]byte(ForwardRequestType))
}

// PermitTypedData builds the ERC-2612 Permit message for a token.
func PermitTypedData(tokenName string, permit metatx.PermitRequest, domain metatx.SigningDomain) metatx.TypedData {
	domain.Name = tokenName
	domain.Version = PermitDomainVersion
	domain.VerifyingContract = permit.To
	return metatx.TypedData{
		Domain:      domain,
		Types:       map[string][]metatx.TypedDataField{"Permit": metatx.PermitTypes},
		PrimaryType: "Permit",
		Message:     permit.PermitMessage(),
	}
}

// RecoverTypedDataSigner recovers the address that produced signature over data.
func RecoverTypedDataSigner(data metatx.TypedData, signature []byte) (common.Address, error) {
	if len(signature) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	hash, err := HashTypedData(data)
	if err != nil {
		return common.Address{}, err
	}

	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pubKey), nil
}

// VerifyTypedData reports whether signature over data was produced by expected.
func VerifyTypedData(data metatx.TypedData, signature []byte, expected string) (bool, error) {
	recovered, err := RecoverTypedDataSigner(data, signature)
	if err != nil {
		return false, err
	}
	return recovered == common.HexToAddress(expected), nil
}
