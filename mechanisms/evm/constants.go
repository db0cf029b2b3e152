package evm

import (
	"math/big"
)

const (
	// Forwarder function names
	FunctionGetNonce = "getNonce"
	FunctionVerify   = "verify"
	FunctionExecute  = "execute"

	// ERC-20 / ERC-2612 function names
	FunctionName    = "name"
	FunctionNonces  = "nonces"
	FunctionPermit  = "permit"
	FunctionApprove = "approve"

	// PermitDomainVersion is the EIP-712 version used by ERC-2612 tokens.
	PermitDomainVersion = "1"

	// ForwardRequestType is the encoded ForwardRequest type hashed by the forwarder.
	ForwardRequestType = "ForwardRequest(address from,address to,uint256 value,uint256 gas,uint256 nonce,bytes data)"

	// Transaction status
	TxStatusSuccess = 1
	TxStatusFailed  = 0
)

var (
	// MaxUint256 is the default permit deadline.
	MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	// Well-known chains
	ChainIDPolygon     = big.NewInt(137)
	ChainIDPolygonAmoy = big.NewInt(80002)
	ChainIDMumbai      = big.NewInt(80001)

	// ForwarderABI covers the GSNv2 trusted forwarder entry points
	ForwarderABI = []byte(`[
		{
			"inputs": [{"name": "from", "type": "address"}],
			"name": "getNonce",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{
					"components": [
						{"name": "from", "type": "address"},
						{"name": "to", "type": "address"},
						{"name": "value", "type": "uint256"},
						{"name": "gas", "type": "uint256"},
						{"name": "nonce", "type": "uint256"},
						{"name": "data", "type": "bytes"}
					],
					"name": "req",
					"type": "tuple"
				},
				{"name": "domainSeparator", "type": "bytes32"},
				{"name": "requestTypeHash", "type": "bytes32"},
				{"name": "suffixData", "type": "bytes"},
				{"name": "sig", "type": "bytes"}
			],
			"name": "verify",
			"outputs": [],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{
					"components": [
						{"name": "from", "type": "address"},
						{"name": "to", "type": "address"},
						{"name": "value", "type": "uint256"},
						{"name": "gas", "type": "uint256"},
						{"name": "nonce", "type": "uint256"},
						{"name": "data", "type": "bytes"}
					],
					"name": "req",
					"type": "tuple"
				},
				{"name": "domainSeparator", "type": "bytes32"},
				{"name": "requestTypeHash", "type": "bytes32"},
				{"name": "suffixData", "type": "bytes"},
				{"name": "sig", "type": "bytes"}
			],
			"name": "execute",
			"outputs": [
				{"name": "success", "type": "bool"},
				{"name": "ret", "type": "bytes"}
			],
			"stateMutability": "payable",
			"type": "function"
		}
	]`)

	// ERC20PermitABI covers the ERC-20 and ERC-2612 functions used on the relay path
	ERC20PermitABI = []byte(`[
		{
			"inputs": [],
			"name": "name",
			"outputs": [{"name": "", "type": "string"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [{"name": "owner", "type": "address"}],
			"name": "nonces",
			"outputs": [{"name": "", "type": "uint256"}],
			"stateMutability": "view",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "approve",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "owner", "type": "address"},
				{"name": "spender", "type": "address"},
				{"name": "value", "type": "uint256"},
				{"name": "deadline", "type": "uint256"},
				{"name": "v", "type": "uint8"},
				{"name": "r", "type": "bytes32"},
				{"name": "s", "type": "bytes32"}
			],
			"name": "permit",
			"outputs": [],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)

	// ERC20ABI is a plain ERC-20 without permit support
	ERC20ABI = []byte(`[
		{
			"inputs": [
				{"name": "spender", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "approve",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"inputs": [
				{"name": "to", "type": "address"},
				{"name": "amount", "type": "uint256"}
			],
			"name": "transfer",
			"outputs": [{"name": "", "type": "bool"}],
			"stateMutability": "nonpayable",
			"type": "function"
		}
	]`)
)
