package evm

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	metatx "github.com/dropforge/metatx/go"
)

const (
	testForwarder = "0x84a0856b038eaAd1cC7E297cF34A7e72685A8693"
	testToken     = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	testSpender   = "0x1111111254EEB25477B68fb85Ed929f73A960582"
)

func testForwardRequest(from string) metatx.ForwardRequest {
	return metatx.ForwardRequest{
		From:  from,
		To:    testToken,
		Value: "0",
		Gas:   "500000",
		Nonce: "7",
		Data:  "0xa9059cbb",
	}
}

func TestHashTypedDataMatchesGoEthereum(t *testing.T) {
	data := testForwardRequest(testSpender).TypedData(metatx.NewForwarderDomain(big.NewInt(137), testForwarder))

	got, err := HashTypedData(data)
	if err != nil {
		t.Fatalf("HashTypedData failed: %v", err)
	}

	want, _, err := apitypes.TypedDataAndHash(ToAPITypedData(data))
	if err != nil {
		t.Fatalf("TypedDataAndHash failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("digest mismatch: %x != %x", got, want)
	}
	if len(got) != 32 {
		t.Fatalf("expected 32-byte digest, got %d", len(got))
	}
}

func TestHashTypedDataBindsChainAndForwarder(t *testing.T) {
	req := testForwardRequest(testSpender)

	a, _ := HashTypedData(req.TypedData(metatx.NewForwarderDomain(big.NewInt(137), testForwarder)))
	b, _ := HashTypedData(req.TypedData(metatx.NewForwarderDomain(big.NewInt(80002), testForwarder)))
	c, _ := HashTypedData(req.TypedData(metatx.NewForwarderDomain(big.NewInt(137), testToken)))

	if bytes.Equal(a, b) || bytes.Equal(a, c) {
		t.Fatalf("digest must change with chain id and verifying contract")
	}
}

func TestDomainSeparator(t *testing.T) {
	domain := metatx.NewForwarderDomain(big.NewInt(137), testForwarder)

	got, err := DomainSeparator(domain)
	if err != nil {
		t.Fatalf("DomainSeparator failed: %v", err)
	}

	typeHash := crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	encoded := append([]byte{}, typeHash...)
	encoded = append(encoded, crypto.Keccak256([]byte(metatx.ForwarderDomainName))...)
	encoded = append(encoded, crypto.Keccak256([]byte(metatx.ForwarderDomainVersion))...)
	encoded = append(encoded, math.U256Bytes(big.NewInt(137))...)
	encoded = append(encoded, common.LeftPadBytes(common.HexToAddress(testForwarder).Bytes(), 32)...)
	want := crypto.Keccak256Hash(encoded)

	if got != want {
		t.Fatalf("domain separator mismatch: %s != %s", got.Hex(), want.Hex())
	}
}

func TestRequestTypeHash(t *testing.T) {
	want := crypto.Keccak256Hash([]byte("ForwardRequest(address from,address to,uint256 value,uint256 gas,uint256 nonce,bytes data)"))
	if RequestTypeHash() != want {
		t.Fatalf("unexpected request type hash %s", RequestTypeHash().Hex())
	}
}

func TestRecoverTypedDataSigner(t *testing.T) {
	key, address := mustKey(t)
	data := testForwardRequest(address).TypedData(metatx.NewForwarderDomain(big.NewInt(137), testForwarder))

	sig, err := keySignFunc(key)(context.Background(), data)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	t.Run("recovers the signer", func(t *testing.T) {
		ok, err := VerifyTypedData(data, sig, address)
		if err != nil || !ok {
			t.Fatalf("expected signature to verify, ok=%v err=%v", ok, err)
		}
	})

	t.Run("accepts v in {0,1}", func(t *testing.T) {
		raw := append([]byte{}, sig...)
		raw[64] -= 27
		ok, err := VerifyTypedData(data, raw, address)
		if err != nil || !ok {
			t.Fatalf("expected raw v to verify, ok=%v err=%v", ok, err)
		}
	})

	t.Run("rejects a tampered message", func(t *testing.T) {
		tampered := testForwardRequest(address)
		tampered.Nonce = "8"
		ok, err := VerifyTypedData(tampered.TypedData(data.Domain), sig, address)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Fatalf("tampered message must not verify")
		}
	})

	t.Run("rejects a short signature", func(t *testing.T) {
		if _, err := RecoverTypedDataSigner(data, sig[:64]); err == nil {
			t.Fatalf("expected error for 64-byte signature")
		}
	})
}

func TestPermitTypedData(t *testing.T) {
	permit := metatx.PermitRequest{
		To:       testToken,
		Owner:    testForwarder,
		Spender:  testSpender,
		Value:    "1000",
		Nonce:    "0",
		Deadline: MaxUint256.String(),
	}

	data := PermitTypedDataFor("USD Coin (PoS)", big.NewInt(137), permit)
	if data.Domain.Name != "USD Coin (PoS)" || data.Domain.Version != "1" {
		t.Errorf("unexpected domain %+v", data.Domain)
	}
	if data.Domain.VerifyingContract != testToken || data.Domain.ChainID.Int64() != 137 {
		t.Errorf("domain not bound to token and chain: %+v", data.Domain)
	}
	if data.PrimaryType != "Permit" {
		t.Errorf("unexpected primary type %s", data.PrimaryType)
	}
	if _, err := HashTypedData(data); err != nil {
		t.Fatalf("permit typed data does not hash: %v", err)
	}
}
