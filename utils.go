package metatx

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// BytesToHex encodes b as a 0x-prefixed hex string.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// HexToBytes decodes a hex string with or without the 0x prefix.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// PackSignature packs ERC-2612 signature parts as r ++ s ++ v, with v as a
// single trailing byte.
func PackSignature(r, s string, v uint8) (string, error) {
	rb, err := HexToBytes(r)
	if err != nil || len(rb) != 32 {
		return "", fmt.Errorf("invalid signature r: %q", r)
	}
	sb, err := HexToBytes(s)
	if err != nil || len(sb) != 32 {
		return "", fmt.Errorf("invalid signature s: %q", s)
	}
	packed := make([]byte, 0, 65)
	packed = append(packed, rb...)
	packed = append(packed, sb...)
	packed = append(packed, v)
	return BytesToHex(packed), nil
}

// FunctionName strips the argument list from a function signature.
func FunctionName(fn string) string {
	if i := strings.IndexByte(fn, '('); i >= 0 {
		return fn[:i]
	}
	return fn
}

// isApproveCall reports whether the call is an ERC-20 approve whose token also
// exposes ERC-2612 permit.
func isApproveCall(call Call) bool {
	if len(call.Args) != 2 {
		return false
	}
	if call.Function != "approve" && call.Function != ApproveSignature {
		return false
	}
	return call.Contract.HasFunction(PermitSignature)
}

// ToBigInt converts common numeric argument types to *big.Int.
func ToBigInt(v interface{}) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		if n == nil {
			return nil, fmt.Errorf("nil amount")
		}
		return new(big.Int).Set(n), nil
	case big.Int:
		return new(big.Int).Set(&n), nil
	case int:
		return big.NewInt(int64(n)), nil
	case int64:
		return big.NewInt(n), nil
	case uint64:
		return new(big.Int).SetUint64(n), nil
	case string:
		base := 10
		s := n
		if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
			base = 16
			s = s[2:]
		}
		out, ok := new(big.Int).SetString(s, base)
		if !ok {
			return nil, fmt.Errorf("invalid amount: %s", n)
		}
		return out, nil
	case fmt.Stringer:
		return ToBigInt(n.String())
	default:
		return nil, fmt.Errorf("unsupported amount type: %T", v)
	}
}

// addressString renders an address argument (string or a Stringer such as
// go-ethereum's common.Address).
func addressString(v interface{}) (string, error) {
	switch a := v.(type) {
	case string:
		return a, nil
	case fmt.Stringer:
		return a.String(), nil
	default:
		return "", fmt.Errorf("unsupported address type: %T", v)
	}
}
