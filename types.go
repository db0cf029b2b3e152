package metatx

import (
	"encoding/json"
	"math/big"
)

const (
	// ForwarderDomainName is the EIP-712 domain name of the GSNv2 trusted forwarder.
	ForwarderDomainName = "GSNv2 Forwarder"
	// ForwarderDomainVersion is the EIP-712 domain version of the GSNv2 trusted forwarder.
	ForwarderDomainVersion = "0.0.1"

	// RequestTypeForward marks a generic forwarder meta-transaction.
	RequestTypeForward = "forward"
	// RequestTypePermit marks an ERC-2612 permit that replaces an approve call.
	RequestTypePermit = "permit"

	// ApproveSignature is the canonical ERC-20 approve function signature.
	ApproveSignature = "approve(address,uint256)"
	// PermitSignature is the canonical ERC-2612 permit function signature.
	PermitSignature = "permit(address,address,uint256,uint256,uint8,bytes32,bytes32)"

	// TxStatusSuccess and TxStatusFailed mirror the receipt status field.
	TxStatusSuccess = 1
	TxStatusFailed  = 0
)

// ForwardRequest is the meta-transaction envelope verified by the forwarder.
// Numeric fields are decimal strings, Data is 0x-prefixed hex.
type ForwardRequest struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value string `json:"value"`
	Gas   string `json:"gas"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// PermitRequest replaces a ForwardRequest when the relayed call is an ERC-20
// approve on a token that supports ERC-2612.
type PermitRequest struct {
	To       string `json:"to"` // token contract
	Owner    string `json:"owner"`
	Spender  string `json:"spender"`
	Value    string `json:"value"`
	Nonce    string `json:"nonce"`
	Deadline string `json:"deadline"`
	V        uint8  `json:"v"`
	R        string `json:"r"`
	S        string `json:"s"`
}

// SigningDomain is the EIP-712 domain separator input.
type SigningDomain struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	ChainID           *big.Int `json:"chainId"`
	VerifyingContract string   `json:"verifyingContract"`
}

// NewForwarderDomain returns the fixed GSNv2 forwarder domain bound to chainID
// and the forwarder deployment.
func NewForwarderDomain(chainID *big.Int, forwarder string) SigningDomain {
	return SigningDomain{
		Name:              ForwarderDomainName,
		Version:           ForwarderDomainVersion,
		ChainID:           new(big.Int).Set(chainID),
		VerifyingContract: forwarder,
	}
}

// TypedDataField is a single member of an EIP-712 struct type.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TypedData is a complete EIP-712 signing request.
type TypedData struct {
	Domain      SigningDomain               `json:"domain"`
	Types       map[string][]TypedDataField `json:"types"`
	PrimaryType string                      `json:"primaryType"`
	Message     map[string]interface{}      `json:"message"`
}

var (
	// DomainTypes is the EIP712Domain type used by both the forwarder and ERC-2612 tokens.
	DomainTypes = []TypedDataField{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	}

	// ForwardRequestTypes must match the struct hashed by the on-chain forwarder.
	ForwardRequestTypes = []TypedDataField{
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "gas", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "data", Type: "bytes"},
	}

	// PermitTypes is the ERC-2612 Permit struct.
	PermitTypes = []TypedDataField{
		{Name: "owner", Type: "address"},
		{Name: "spender", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	}
)

// Payload returns the typed data with the EIP712Domain type filled in, which is
// the shape wallets expect for eth_signTypedData.
func (t TypedData) Payload() TypedData {
	types := make(map[string][]TypedDataField, len(t.Types)+1)
	for name, fields := range t.Types {
		types[name] = fields
	}
	if _, ok := types["EIP712Domain"]; !ok {
		types["EIP712Domain"] = DomainTypes
	}
	t.Types = types
	return t
}

// TypedData builds the EIP-712 message for the forward request.
func (r ForwardRequest) TypedData(domain SigningDomain) TypedData {
	return TypedData{
		Domain:      domain,
		Types:       map[string][]TypedDataField{"ForwardRequest": ForwardRequestTypes},
		PrimaryType: "ForwardRequest",
		Message: map[string]interface{}{
			"from":  r.From,
			"to":    r.To,
			"value": r.Value,
			"gas":   r.Gas,
			"nonce": r.Nonce,
			"data":  r.Data,
		},
	}
}

// PermitMessage returns the ERC-2612 Permit message without the signature parts.
func (p PermitRequest) PermitMessage() map[string]interface{} {
	return map[string]interface{}{
		"owner":    p.Owner,
		"spender":  p.Spender,
		"value":    p.Value,
		"nonce":    p.Nonce,
		"deadline": p.Deadline,
	}
}

// SignedRequest is what the relay transport receives: exactly one of Forward or
// Permit is set, matching Type.
type SignedRequest struct {
	Type             string          `json:"type"`
	Forward          *ForwardRequest `json:"-"`
	Permit           *PermitRequest  `json:"-"`
	Signature        string          `json:"signature"`
	ForwarderAddress string          `json:"forwarderAddress"`
}

// Message returns the envelope carried by the request.
func (s SignedRequest) Message() interface{} {
	if s.Type == RequestTypePermit && s.Permit != nil {
		return s.Permit
	}
	return s.Forward
}

// MarshalJSON encodes the relayer wire body: {request, signature, forwarderAddress, type}.
func (s SignedRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Request          interface{} `json:"request"`
		Signature        string      `json:"signature"`
		ForwarderAddress string      `json:"forwarderAddress"`
		Type             string      `json:"type"`
	}{
		Request:          s.Message(),
		Signature:        s.Signature,
		ForwarderAddress: s.ForwarderAddress,
		Type:             s.Type,
	})
}

// UnmarshalJSON decodes the relayer wire body, selecting the envelope by type.
func (s *SignedRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Request          json.RawMessage `json:"request"`
		Signature        string          `json:"signature"`
		ForwarderAddress string          `json:"forwarderAddress"`
		Type             string          `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Signature = raw.Signature
	s.ForwarderAddress = raw.ForwarderAddress
	s.Type = raw.Type
	s.Forward, s.Permit = nil, nil

	switch raw.Type {
	case RequestTypePermit:
		var p PermitRequest
		if err := json.Unmarshal(raw.Request, &p); err != nil {
			return err
		}
		s.Permit = &p
	default:
		var f ForwardRequest
		if err := json.Unmarshal(raw.Request, &f); err != nil {
			return err
		}
		s.Forward = &f
		if s.Type == "" {
			s.Type = RequestTypeForward
		}
	}
	return nil
}

// TransactionReceipt is the subset of a mined receipt the relay path reports.
type TransactionReceipt struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"transactionHash"`
	GasUsed     uint64 `json:"gasUsed"`
}

// CallOverrides are optional per-call fee and value overrides.
type CallOverrides struct {
	Value    *big.Int
	GasPrice *big.Int
	GasLimit uint64
}

// TransactionRequest is a direct (non-relayed) contract call.
type TransactionRequest struct {
	To       string
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
}

// Call identifies a contract function invocation.
type Call struct {
	Contract  ContractBinding
	Function  string
	Args      []interface{}
	Overrides *CallOverrides
}
