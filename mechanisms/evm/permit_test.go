package evm

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	metatx "github.com/dropforge/metatx/go"
)

func TestPermitBuilderSignPermit(t *testing.T) {
	key, owner := mustKey(t)
	backend := newFakeBackend()
	parsed := mustABI(t, ERC20PermitABI)
	backend.respond(t, parsed.Methods[FunctionName], "USD Coin (PoS)")
	backend.respond(t, parsed.Methods[FunctionNonces], big.NewInt(3))

	builder := NewPermitBuilder(backend)
	permit, err := builder.SignPermit(context.Background(), metatx.PermitParams{
		ChainID: big.NewInt(137),
		Token:   testToken,
		Owner:   owner,
		Spender: testSpender,
		Value:   big.NewInt(1000),
	}, keySignFunc(key))
	if err != nil {
		t.Fatalf("SignPermit failed: %v", err)
	}

	if permit.Nonce != "3" || permit.Value != "1000" {
		t.Errorf("unexpected permit %+v", permit)
	}
	if permit.Deadline != MaxUint256.String() {
		t.Errorf("expected MaxUint256 deadline, got %s", permit.Deadline)
	}
	if permit.V != 27 && permit.V != 28 {
		t.Errorf("expected v in {27, 28}, got %d", permit.V)
	}
	if len(permit.R) != 66 || len(permit.S) != 66 {
		t.Errorf("expected 32-byte r and s, got %s %s", permit.R, permit.S)
	}

	packed, err := metatx.PackSignature(permit.R, permit.S, permit.V)
	if err != nil {
		t.Fatalf("PackSignature failed: %v", err)
	}
	sig, _ := metatx.HexToBytes(packed)
	ok, err := VerifyTypedData(PermitTypedDataFor("USD Coin (PoS)", big.NewInt(137), *permit), sig, owner)
	if err != nil || !ok {
		t.Fatalf("permit signature does not recover to owner, ok=%v err=%v", ok, err)
	}
}

func TestPermitBuilderCustomDeadline(t *testing.T) {
	key, owner := mustKey(t)
	backend := newFakeBackend()
	parsed := mustABI(t, ERC20PermitABI)
	backend.respond(t, parsed.Methods[FunctionName], "Token")
	backend.respond(t, parsed.Methods[FunctionNonces], big.NewInt(0))

	permit, err := NewPermitBuilder(backend, WithPermitDeadline(big.NewInt(1700000000))).SignPermit(context.Background(), metatx.PermitParams{
		ChainID: big.NewInt(80002),
		Token:   testToken,
		Owner:   owner,
		Spender: testSpender,
		Value:   big.NewInt(1),
	}, keySignFunc(key))
	if err != nil {
		t.Fatalf("SignPermit failed: %v", err)
	}
	if permit.Deadline != "1700000000" {
		t.Errorf("unexpected deadline %s", permit.Deadline)
	}
}

func TestPermitBuilderPropagatesSignError(t *testing.T) {
	backend := newFakeBackend()
	parsed := mustABI(t, ERC20PermitABI)
	backend.respond(t, parsed.Methods[FunctionName], "Token")
	backend.respond(t, parsed.Methods[FunctionNonces], big.NewInt(0))

	rejected := errors.New("user rejected")
	_, err := NewPermitBuilder(backend).SignPermit(context.Background(), metatx.PermitParams{
		ChainID: big.NewInt(137),
		Token:   testToken,
		Owner:   testForwarder,
		Spender: testSpender,
		Value:   big.NewInt(1),
	}, func(context.Context, metatx.TypedData) ([]byte, error) { return nil, rejected })
	if !errors.Is(err, rejected) {
		t.Fatalf("expected sign error, got %v", err)
	}
}

func TestPermitBuilderTokenWithoutPermit(t *testing.T) {
	_, err := NewPermitBuilder(newFakeBackend()).SignPermit(context.Background(), metatx.PermitParams{
		ChainID: big.NewInt(137),
		Token:   testToken,
		Owner:   testForwarder,
		Spender: testSpender,
		Value:   big.NewInt(1),
	}, nil)
	if err == nil {
		t.Fatalf("expected name() read to fail")
	}
}

func TestPermitData(t *testing.T) {
	permit := metatx.PermitRequest{
		To:       testToken,
		Owner:    testForwarder,
		Spender:  testSpender,
		Value:    "1000",
		Nonce:    "0",
		Deadline: MaxUint256.String(),
		V:        28,
		R:        "0x" + string(bytes.Repeat([]byte("11"), 32)),
		S:        "0x" + string(bytes.Repeat([]byte("22"), 32)),
	}

	data, err := PermitData(permit)
	if err != nil {
		t.Fatalf("PermitData failed: %v", err)
	}
	method := mustABI(t, ERC20PermitABI).Methods[FunctionPermit]
	if !bytes.Equal(data[:4], method.ID) {
		t.Fatalf("unexpected selector %x", data[:4])
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("failed to decode permit args: %v", err)
	}
	if v, ok := args[4].(uint8); !ok || v != 28 {
		t.Errorf("unexpected v %v", args[4])
	}
}
