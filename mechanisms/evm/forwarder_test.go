package evm

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	metatx "github.com/dropforge/metatx/go"
)

func TestForwarderNonceSource(t *testing.T) {
	backend := newFakeBackend()
	parsed := mustABI(t, ForwarderABI)
	backend.respond(t, parsed.Methods[FunctionGetNonce], big.NewInt(42))

	source := NewForwarderNonceSource(backend)
	nonce, err := source.GetNonce(context.Background(), testForwarder, testSpender)
	if err != nil {
		t.Fatalf("GetNonce failed: %v", err)
	}
	if nonce.Int64() != 42 {
		t.Fatalf("expected nonce 42, got %s", nonce)
	}

	if len(backend.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(backend.calls))
	}
	call := backend.calls[0]
	if *call.To != common.HexToAddress(testForwarder) {
		t.Errorf("call sent to %s", call.To.Hex())
	}
	if !bytes.Equal(call.Data[:4], parsed.Methods[FunctionGetNonce].ID) {
		t.Errorf("unexpected selector %x", call.Data[:4])
	}
}

func TestForwarderNonceSourceInvalidForwarder(t *testing.T) {
	_, err := NewForwarderNonceSource(newFakeBackend()).GetNonce(context.Background(), "forwarder", testSpender)
	if err == nil {
		t.Fatalf("expected invalid forwarder address to fail")
	}
}

func TestForwarderExecuteData(t *testing.T) {
	forwarder, err := NewForwarder(testForwarder, nil)
	if err != nil {
		t.Fatalf("NewForwarder failed: %v", err)
	}

	domain := metatx.NewForwarderDomain(big.NewInt(137), testForwarder)
	req := testForwardRequest(testSpender)
	sig := bytes.Repeat([]byte{0x01}, 65)

	data, err := forwarder.ExecuteData(req, domain, sig)
	if err != nil {
		t.Fatalf("ExecuteData failed: %v", err)
	}

	method := forwarder.Contract().ABI().Methods[FunctionExecute]
	if !bytes.Equal(data[:4], method.ID) {
		t.Fatalf("unexpected selector %x", data[:4])
	}

	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("failed to decode execute args: %v", err)
	}
	if len(args) != 5 {
		t.Fatalf("expected 5 args, got %d", len(args))
	}

	separator, _ := DomainSeparator(domain)
	if got, ok := args[1].([32]byte); !ok || common.Hash(got) != separator {
		t.Errorf("unexpected domain separator %v", args[1])
	}
	if got, ok := args[2].([32]byte); !ok || common.Hash(got) != RequestTypeHash() {
		t.Errorf("unexpected request type hash %v", args[2])
	}
	if got, ok := args[3].([]byte); !ok || len(got) != 0 {
		t.Errorf("expected empty suffix data, got %v", args[3])
	}
	if got, ok := args[4].([]byte); !ok || !bytes.Equal(got, sig) {
		t.Errorf("signature not carried through")
	}
}

func TestToForwardRequestTuple(t *testing.T) {
	tuple, err := ToForwardRequestTuple(testForwardRequest(testSpender))
	if err != nil {
		t.Fatalf("ToForwardRequestTuple failed: %v", err)
	}
	if tuple.Gas.Int64() != 500000 || tuple.Nonce.Int64() != 7 {
		t.Errorf("unexpected tuple %+v", tuple)
	}
	if !bytes.Equal(tuple.Data, []byte{0xa9, 0x05, 0x9c, 0xbb}) {
		t.Errorf("unexpected data %x", tuple.Data)
	}

	bad := testForwardRequest(testSpender)
	bad.Nonce = "-1"
	if _, err := ToForwardRequestTuple(bad); err == nil {
		t.Errorf("expected negative nonce to fail")
	}
}
