package metatx

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

const (
	testForwarder = "0x84a0856b038eaAd1cC7E297cF34A7e72685A8693"
	testFrom      = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	testToken     = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
	testSpender   = "0x1111111254EEB25477B68fb85Ed929f73A960582"
)

type mockContract struct {
	address   string
	estimate  uint64
	estErr    error
	functions map[string]bool
	encoded   []string
	estimated int
}

func newMockContract(address string, estimate uint64, functions ...string) *mockContract {
	c := &mockContract{address: address, estimate: estimate, functions: make(map[string]bool)}
	for _, fn := range functions {
		c.functions[fn] = true
	}
	return c
}

func (c *mockContract) Address() string { return c.address }

func (c *mockContract) EncodeFunctionData(fn string, args ...interface{}) ([]byte, error) {
	c.encoded = append(c.encoded, fn)
	return []byte{0xde, 0xad, 0xbe, 0xef}, nil
}

func (c *mockContract) EstimateGas(ctx context.Context, from string, fn string, args ...interface{}) (uint64, error) {
	c.estimated++
	if c.estErr != nil {
		return 0, c.estErr
	}
	return c.estimate, nil
}

func (c *mockContract) HasFunction(signature string) bool {
	return c.functions[signature]
}

type mockProvider struct {
	mu       sync.Mutex
	chainID  *big.Int
	receipts map[string]*TransactionReceipt
	waited   []string
	calls    int
}

func newMockProvider(chainID int64) *mockProvider {
	return &mockProvider{
		chainID:  big.NewInt(chainID),
		receipts: make(map[string]*TransactionReceipt),
	}
}

func (p *mockProvider) ChainID(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return new(big.Int).Set(p.chainID), nil
}

func (p *mockProvider) WaitForTransaction(ctx context.Context, txHash string) (*TransactionReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.waited = append(p.waited, txHash)
	if r, ok := p.receipts[txHash]; ok {
		return r, nil
	}
	return &TransactionReceipt{Status: TxStatusSuccess, BlockNumber: 1, TxHash: txHash}, nil
}

func (p *mockProvider) Send(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return nil, errors.New("not supported")
}

type mockSigner struct {
	address string
	signed  []TypedData
	err     error
	txs     []TransactionRequest
}

func (s *mockSigner) Address(ctx context.Context) (string, error) { return s.address, nil }

func (s *mockSigner) Kind() SignerKind { return StandardSigner }

func (s *mockSigner) SignTypedData(ctx context.Context, data TypedData) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.signed = append(s.signed, data)
	sig := make([]byte, 65)
	for i := 0; i < 32; i++ {
		sig[i] = 0x11
		sig[32+i] = 0x22
	}
	sig[64] = 28
	return sig, nil
}

func (s *mockSigner) SendTransaction(ctx context.Context, tx TransactionRequest) (string, error) {
	s.txs = append(s.txs, tx)
	return "0xdirect", nil
}

type rpcCall struct {
	method string
	params []interface{}
}

type mockWalletSigner struct {
	address string
	calls   []rpcCall
}

func (s *mockWalletSigner) Address(ctx context.Context) (string, error) { return s.address, nil }

func (s *mockWalletSigner) Kind() SignerKind { return WalletConnectSigner }

func (s *mockWalletSigner) SignTypedData(ctx context.Context, data TypedData) ([]byte, error) {
	return nil, errors.New("native typed data signing is not available")
}

func (s *mockWalletSigner) SendRPC(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	s.calls = append(s.calls, rpcCall{method: method, params: params})
	return json.RawMessage(`"0x` + strings.Repeat("ab", 65) + `"`), nil
}

type mockNonceSource struct {
	mu    sync.Mutex
	nonce *big.Int
	reads int
	err   error
}

func (s *mockNonceSource) GetNonce(ctx context.Context, forwarder, from string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	return new(big.Int).Set(s.nonce), nil
}

type mockPermitSigner struct {
	params []PermitParams
	err    error
}

func (p *mockPermitSigner) SignPermit(ctx context.Context, params PermitParams, sign TypedDataSignFunc) (*PermitRequest, error) {
	p.params = append(p.params, params)
	if p.err != nil {
		return nil, p.err
	}
	data := TypedData{
		Domain: SigningDomain{
			Name:              "USD Coin",
			Version:           "1",
			ChainID:           params.ChainID,
			VerifyingContract: params.Token,
		},
		Types:       map[string][]TypedDataField{"Permit": PermitTypes},
		PrimaryType: "Permit",
		Message: map[string]interface{}{
			"owner":    params.Owner,
			"spender":  params.Spender,
			"value":    params.Value.String(),
			"nonce":    "3",
			"deadline": "100",
		},
	}
	sig, err := sign(ctx, data)
	if err != nil {
		return nil, err
	}
	return &PermitRequest{
		To:       params.Token,
		Owner:    params.Owner,
		Spender:  params.Spender,
		Value:    params.Value.String(),
		Nonce:    "3",
		Deadline: "100",
		V:        sig[64],
		R:        BytesToHex(sig[:32]),
		S:        BytesToHex(sig[32:64]),
	}, nil
}

type recordingRelay struct {
	mu       sync.Mutex
	requests []SignedRequest
	txHash   string
	err      error
}

func (r *recordingRelay) Relay(ctx context.Context, req SignedRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.err != nil {
		return "", r.err
	}
	return r.txHash, nil
}
