package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token reads ERC-20 state. A single Token serves any token address.
type Token struct {
	client *Client
}

// NewToken creates an ERC-20 reader.
func NewToken(client *Client) *Token {
	return &Token{client: client}
}

// BalanceOf returns the token balance of owner.
func (t *Token) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	out, err := t.client.Call(ctx, erc20ABI, token, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return bigResult(out, "balanceOf")
}

// Allowance returns how much spender may pull from owner.
func (t *Token) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := t.client.Call(ctx, erc20ABI, token, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return bigResult(out, "allowance")
}

// Decimals returns the token's decimals.
func (t *Token) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := t.client.Call(ctx, erc20ABI, token, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected result type %T", out[0])
	}
	return d, nil
}

// Symbol returns the token's symbol.
func (t *Token) Symbol(ctx context.Context, token common.Address) (string, error) {
	out, err := t.client.Call(ctx, erc20ABI, token, "symbol")
	if err != nil {
		return "", err
	}
	s, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("symbol: unexpected result type %T", out[0])
	}
	return s, nil
}
