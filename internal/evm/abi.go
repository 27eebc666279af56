package evm

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Permit2Address is the canonical Uniswap Permit2 deployment, identical on every
// EVM chain through CREATE2.
const Permit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

// ERC20ABI covers the read methods used to inspect a funding wallet.
var ERC20ABI = []byte(`[
	{
		"inputs": [{"name": "account", "type": "address"}],
		"name": "balanceOf",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"name": "allowance",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "symbol",
		"outputs": [{"name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	}
]`)

// Permit2ABI covers the SignatureTransfer methods used for claims and invalidation.
var Permit2ABI = []byte(`[
	{
		"inputs": [
			{"name": "", "type": "address"},
			{"name": "", "type": "uint256"}
		],
		"name": "nonceBitmap",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{
				"name": "permit",
				"type": "tuple",
				"components": [
					{
						"name": "permitted",
						"type": "tuple",
						"components": [
							{"name": "token", "type": "address"},
							{"name": "amount", "type": "uint256"}
						]
					},
					{"name": "nonce", "type": "uint256"},
					{"name": "deadline", "type": "uint256"}
				]
			},
			{
				"name": "transferDetails",
				"type": "tuple",
				"components": [
					{"name": "to", "type": "address"},
					{"name": "requestedAmount", "type": "uint256"}
				]
			},
			{"name": "owner", "type": "address"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "permitTransferFrom",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "wordPos", "type": "uint256"},
			{"name": "mask", "type": "uint256"}
		],
		"name": "invalidateUnorderedNonces",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`)

// TokenPermissions mirrors ISignatureTransfer.TokenPermissions.
type TokenPermissions struct {
	Token  common.Address
	Amount *big.Int
}

// PermitTransferFrom mirrors ISignatureTransfer.PermitTransferFrom.
type PermitTransferFrom struct {
	Permitted TokenPermissions
	Nonce     *big.Int
	Deadline  *big.Int
}

// SignatureTransferDetails mirrors ISignatureTransfer.SignatureTransferDetails.
type SignatureTransferDetails struct {
	To              common.Address
	RequestedAmount *big.Int
}

func mustParseABI(raw []byte) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		panic("evm: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

var (
	erc20ABI   = mustParseABI(ERC20ABI)
	permit2ABI = mustParseABI(Permit2ABI)
)
