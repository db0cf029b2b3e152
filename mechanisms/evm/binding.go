package evm

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	metatx "github.com/dropforge/metatx/go"
)

// ContractBackend is the read side of an Ethereum client. *ethclient.Client
// satisfies it.
type ContractBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// Contract binds an ABI to a deployed address.
type Contract struct {
	address common.Address
	abi     abi.ABI
	backend ContractBackend
}

// NewContract parses abiJSON and binds it to address.
func NewContract(address string, abiJSON []byte, backend ContractBackend) (*Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address: %s", address)
	}
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return &Contract{
		address: common.HexToAddress(address),
		abi:     parsed,
		backend: backend,
	}, nil
}

// Address returns the checksummed contract address.
func (c *Contract) Address() string {
	return c.address.Hex()
}

// ABI returns the parsed contract ABI.
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// HasFunction reports whether a method with the canonical signature exists.
func (c *Contract) HasFunction(signature string) bool {
	_, ok := c.methodBySig(signature)
	return ok
}

func (c *Contract) methodBySig(signature string) (abi.Method, bool) {
	for _, m := range c.abi.Methods {
		if m.Sig == signature {
			return m, true
		}
	}
	return abi.Method{}, false
}

// method resolves fn given as a method name or a full signature.
func (c *Contract) method(fn string) (abi.Method, error) {
	if strings.Contains(fn, "(") {
		m, ok := c.methodBySig(fn)
		if !ok {
			return abi.Method{}, fmt.Errorf("method %s not found in ABI", fn)
		}
		return m, nil
	}
	m, ok := c.abi.Methods[fn]
	if !ok {
		return abi.Method{}, fmt.Errorf("method %s not found in ABI", fn)
	}
	return m, nil
}

// EncodeFunctionData ABI-encodes a call including the 4-byte selector.
func (c *Contract) EncodeFunctionData(fn string, args ...interface{}) ([]byte, error) {
	m, err := c.method(fn)
	if err != nil {
		return nil, err
	}
	converted, err := normalizeArgs(m.Inputs, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.Sig, err)
	}
	input, err := m.Inputs.Pack(converted...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", m.Sig, err)
	}
	return append(append([]byte{}, m.ID...), input...), nil
}

// EstimateGas estimates the gas of calling fn from the given sender.
func (c *Contract) EstimateGas(ctx context.Context, from string, fn string, args ...interface{}) (uint64, error) {
	if c.backend == nil {
		return 0, fmt.Errorf("contract %s has no backend", c.Address())
	}
	data, err := c.EncodeFunctionData(fn, args...)
	if err != nil {
		return 0, err
	}
	return c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: common.HexToAddress(from),
		To:   &c.address,
		Data: data,
	})
}

// Call performs a read-only call and returns the decoded outputs.
func (c *Contract) Call(ctx context.Context, fn string, args ...interface{}) ([]interface{}, error) {
	if c.backend == nil {
		return nil, fmt.Errorf("contract %s has no backend", c.Address())
	}
	m, err := c.method(fn)
	if err != nil {
		return nil, err
	}
	data, err := c.EncodeFunctionData(fn, args...)
	if err != nil {
		return nil, err
	}

	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", m.Sig, err)
	}
	if len(result) == 0 && len(m.Outputs) > 0 {
		return nil, fmt.Errorf("empty result from %s on %s", m.Sig, c.Address())
	}

	output, err := m.Outputs.Unpack(result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", m.Sig, err)
	}
	return output, nil
}

// normalizeArgs converts loosely typed arguments (hex strings, ints) into the
// Go types go-ethereum's packer expects for each input.
func normalizeArgs(inputs abi.Arguments, args []interface{}) ([]interface{}, error) {
	if len(args) != len(inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(args))
	}
	out := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := normalizeArg(inputs[i].Type, arg)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", inputs[i].Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func normalizeArg(t abi.Type, arg interface{}) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		switch a := arg.(type) {
		case string:
			if !common.IsHexAddress(a) {
				return nil, fmt.Errorf("invalid address: %s", a)
			}
			return common.HexToAddress(a), nil
		case common.Address:
			return a, nil
		}
	case abi.UintTy, abi.IntTy:
		return normalizeInt(t, arg)
	case abi.BoolTy:
		if b, ok := arg.(string); ok {
			return strconv.ParseBool(b)
		}
	case abi.BytesTy:
		if s, ok := arg.(string); ok {
			return hexutil.Decode(s)
		}
	case abi.FixedBytesTy:
		if s, ok := arg.(string); ok && t.Size == 32 {
			return ToBytes32(s)
		}
	}
	return arg, nil
}

// normalizeInt converts arg to the exact Go type the packer expects for t:
// uint8..uint64 and int8..int64 for the native sizes, *big.Int otherwise.
func normalizeInt(t abi.Type, arg interface{}) (interface{}, error) {
	want := t.GetType()
	if want.Kind() != reflect.Ptr && reflect.TypeOf(arg) == want {
		return arg, nil
	}

	n, err := integerValue(arg)
	if err != nil {
		return nil, err
	}

	lo, hi := new(big.Int), new(big.Int).Lsh(big.NewInt(1), uint(t.Size))
	if t.T == abi.IntTy {
		hi.Rsh(hi, 1)
		lo.Neg(hi)
	}
	if n.Cmp(lo) < 0 || n.Cmp(hi) >= 0 {
		return nil, fmt.Errorf("%s out of range for %s", n, t)
	}

	if want.Kind() == reflect.Ptr {
		return n, nil
	}
	v := reflect.New(want).Elem()
	if t.T == abi.UintTy {
		v.SetUint(n.Uint64())
	} else {
		v.SetInt(n.Int64())
	}
	return v.Interface(), nil
}

func integerValue(arg interface{}) (*big.Int, error) {
	rv := reflect.ValueOf(arg)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return metatx.ToBigInt(arg)
}

var _ metatx.ContractBinding = (*Contract)(nil)
