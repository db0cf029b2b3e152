package metatx

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"
)

func TestSignedRequestWireFormat(t *testing.T) {
	req := SignedRequest{
		Type: RequestTypeForward,
		Forward: &ForwardRequest{
			From:  testFrom,
			To:    testToken,
			Value: "0",
			Gas:   "500000",
			Nonce: "3",
			Data:  "0xdeadbeef",
		},
		Signature:        "0x1234",
		ForwarderAddress: testForwarder,
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var wire map[string]json.RawMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, key := range []string{"request", "signature", "forwarderAddress", "type"} {
		if _, ok := wire[key]; !ok {
			t.Errorf("wire body missing %q: %s", key, data)
		}
	}
	if len(wire) != 4 {
		t.Errorf("expected exactly 4 top-level fields, got %s", data)
	}

	var envelope ForwardRequest
	if err := json.Unmarshal(wire["request"], &envelope); err != nil {
		t.Fatalf("request is not a forward request: %v", err)
	}
	if envelope != *req.Forward {
		t.Errorf("unexpected envelope %+v", envelope)
	}
}

func TestSignedRequestDecodesByType(t *testing.T) {
	body := []byte(fmt.Sprintf(`{
		"request": {"to": %q, "owner": %q, "spender": %q, "value": "1", "nonce": "0", "deadline": "9", "v": 27, "r": "0x01", "s": "0x02"},
		"signature": "0xabcd",
		"forwarderAddress": %q,
		"type": "permit"
	}`, testToken, testFrom, testSpender, testForwarder))

	var req SignedRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if req.Permit == nil || req.Forward != nil {
		t.Fatalf("expected permit envelope, got %+v", req)
	}
	if req.Permit.V != 27 || req.Permit.Spender != testSpender {
		t.Errorf("unexpected permit %+v", req.Permit)
	}
	if req.Message() != req.Permit {
		t.Errorf("Message should return the permit envelope")
	}
}

func TestSignedRequestDefaultsToForward(t *testing.T) {
	var req SignedRequest
	if err := json.Unmarshal([]byte(`{"request": {"from": "0x1", "nonce": "2"}, "signature": "0x"}`), &req); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if req.Type != RequestTypeForward || req.Forward == nil || req.Forward.Nonce != "2" {
		t.Errorf("expected forward request, got %+v", req)
	}
}

func TestTypedDataPayloadAddsDomainType(t *testing.T) {
	data := ForwardRequest{From: testFrom}.TypedData(NewForwarderDomain(big.NewInt(80002), testForwarder))

	payload := data.Payload()
	if _, ok := payload.Types["EIP712Domain"]; !ok {
		t.Fatalf("payload missing EIP712Domain")
	}
	if _, ok := data.Types["EIP712Domain"]; ok {
		t.Errorf("Payload must not modify the original types")
	}
	if payload.Domain.ChainID.Int64() != 80002 {
		t.Errorf("unexpected chain id %v", payload.Domain.ChainID)
	}
}

func TestNewForwarderDomainCopiesChainID(t *testing.T) {
	chainID := big.NewInt(137)
	domain := NewForwarderDomain(chainID, testForwarder)
	chainID.SetInt64(1)

	if domain.ChainID.Int64() != 137 {
		t.Errorf("domain shares the caller's chain id")
	}
}

func TestRelayErrorMatching(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", NewSigningFailure("failed to sign", cause))

	if !errors.Is(err, ErrSigningFailure) {
		t.Errorf("expected signing failure to match sentinel")
	}
	if errors.Is(err, ErrInvariant) {
		t.Errorf("signing failure must not match invariant sentinel")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected the cause to be unwrapped")
	}

	var relayErr *RelayError
	if !errors.As(err, &relayErr) || relayErr.Kind != KindSigningFailure {
		t.Fatalf("expected RelayError, got %v", err)
	}
	if relayErr.Error() != "signing_failure: failed to sign: boom" {
		t.Errorf("unexpected message %q", relayErr.Error())
	}
	if NewInvariantError("missing").Error() != "invariant_error: missing" {
		t.Errorf("unexpected invariant message")
	}
}

func TestExecutionContextIsImmutable(t *testing.T) {
	signer := &mockSigner{address: testFrom}
	base := NewExecutionContext(signer, nil, WithForwarder(testForwarder))

	gasless := base.With(WithRelay(&recordingRelay{}))
	if base.Gasless() {
		t.Errorf("base context must not gain a relay")
	}
	if !gasless.Gasless() {
		t.Errorf("expected relay context to be gasless")
	}

	other := base.WithSigner(nil)
	if base.Signer() == nil || other.Signer() != nil {
		t.Errorf("WithSigner must return a modified copy")
	}

	noForwarder := NewExecutionContext(signer, nil, WithRelay(&recordingRelay{}))
	if noForwarder.Gasless() {
		t.Errorf("a relay without a forwarder is not gasless")
	}
}
