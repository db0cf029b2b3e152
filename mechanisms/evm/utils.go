package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NormalizeAddress validates a hex address and returns its checksummed form.
func NormalizeAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid address: %s", address)
	}
	return common.HexToAddress(address).Hex(), nil
}

// IsValidAddress checks whether s is a 20-byte hex address.
func IsValidAddress(s string) bool {
	return common.IsHexAddress(s)
}

// SplitSignature splits a 65-byte r||s||v signature, normalizing v to 27/28.
func SplitSignature(sig []byte) (v uint8, r [32]byte, s [32]byte, err error) {
	if len(sig) != 65 {
		return 0, r, s, fmt.Errorf("invalid signature length: %d", len(sig))
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v = sig[64]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}

// ParseUint256 parses a decimal or 0x-prefixed string.
func ParseUint256(s string) (*big.Int, error) {
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok || n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("invalid uint256: %q", s)
	}
	return n, nil
}

// ToBytes32 decodes a 0x-prefixed 32-byte hex string.
func ToBytes32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return out, fmt.Errorf("invalid bytes32 %q: %w", s, err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("bytes32 must be 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
