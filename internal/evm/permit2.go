package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Permit2 reads the nonce bitmap of the Permit2 contract.
type Permit2 struct {
	client  *Client
	address common.Address
}

// NewPermit2 binds the reader to a Permit2 deployment.
func NewPermit2(client *Client, address common.Address) *Permit2 {
	return &Permit2{client: client, address: address}
}

// Address returns the bound Permit2 address.
func (p *Permit2) Address() common.Address {
	return p.address
}

// NonceBitmap returns the 256-bit word of owner's unordered nonces at position word.
func (p *Permit2) NonceBitmap(ctx context.Context, owner common.Address, word *big.Int) (*big.Int, error) {
	out, err := p.client.Call(ctx, permit2ABI, p.address, "nonceBitmap", owner, word)
	if err != nil {
		return nil, err
	}
	return bigResult(out, "nonceBitmap")
}

// Transactor submits Permit2 writes through a Wallet.
type Transactor struct {
	permit2 *Permit2
	wallet  *Wallet
}

// NewTransactor pairs a Permit2 binding with the wallet that signs its writes.
func NewTransactor(p *Permit2, wallet *Wallet) *Transactor {
	return &Transactor{permit2: p, wallet: wallet}
}

// Address returns the signer's account, not the contract address.
func (t *Transactor) Address(ctx context.Context) (common.Address, error) {
	return t.wallet.Address(ctx)
}

// NonceBitmap reads a bitmap word from the bound Permit2 contract.
func (t *Transactor) NonceBitmap(ctx context.Context, owner common.Address, word *big.Int) (*big.Int, error) {
	return t.permit2.NonceBitmap(ctx, owner, word)
}

// PermitTransferFrom submits a signature transfer.
func (t *Transactor) PermitTransferFrom(
	ctx context.Context,
	permit PermitTransferFrom,
	details SignatureTransferDetails,
	owner common.Address,
	signature []byte,
) (*types.Transaction, error) {
	data, err := permit2ABI.Pack("permitTransferFrom", permit, details, owner, signature)
	if err != nil {
		return nil, fmt.Errorf("pack permitTransferFrom: %w", err)
	}
	return t.wallet.Transact(ctx, t.permit2.address, data)
}

// InvalidateUnorderedNonces flips the bits in mask for the signer's bitmap word.
func (t *Transactor) InvalidateUnorderedNonces(ctx context.Context, word, mask *big.Int) (*types.Transaction, error) {
	data, err := permit2ABI.Pack("invalidateUnorderedNonces", word, mask)
	if err != nil {
		return nil, fmt.Errorf("pack invalidateUnorderedNonces: %w", err)
	}
	return t.wallet.Transact(ctx, t.permit2.address, data)
}

// WaitMined blocks until tx has a receipt.
func (t *Transactor) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return t.wallet.WaitMined(ctx, tx)
}
