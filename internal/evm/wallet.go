package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer authorizes transactions on behalf of one account.
type Signer interface {
	Address(ctx context.Context) (common.Address, error)
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Wallet builds, signs and submits transactions for a single signer.
type Wallet struct {
	backend Backend
	signer  Signer
	chainID *big.Int
	logger  *slog.Logger

	receiptTimeout time.Duration
}

// NewWallet creates a wallet on the given chain.
func NewWallet(backend Backend, signer Signer, chainID *big.Int, logger *slog.Logger) *Wallet {
	return &Wallet{
		backend: backend,
		signer:  signer,
		chainID: chainID,
		logger:  logger,
	}
}

// SetReceiptTimeout bounds WaitMined. Zero waits until the context ends.
func (w *Wallet) SetReceiptTimeout(d time.Duration) {
	w.receiptTimeout = d
}

// Address resolves the signer's account.
func (w *Wallet) Address(ctx context.Context) (common.Address, error) {
	addr, err := w.signer.Address(ctx)
	if err != nil {
		return common.Address{}, Classify(fmt.Errorf("resolve signer address: %w", err))
	}
	return addr, nil
}

// Transact sends data to the contract at to. Gas estimation runs before the
// signer is asked, so calls that would revert fail without a signing prompt.
func (w *Wallet) Transact(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	from, err := w.Address(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := w.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, Classify(fmt.Errorf("pending nonce: %w", err))
	}

	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, Classify(fmt.Errorf("suggest gas price: %w", err))
	}

	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, Classify(err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    new(big.Int),
		Data:     data,
	})

	signed, err := w.signer.SignTx(ctx, tx, w.chainID)
	if err != nil {
		return nil, Classify(err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return nil, Classify(err)
	}

	w.logger.Info("transaction sent",
		"hash", signed.Hash().Hex(),
		"from", from.Hex(),
		"to", to.Hex(),
		"nonce", nonce,
		"gas", gas,
	)
	return signed, nil
}

// WaitMined blocks until tx is included. A reverted receipt is an execution error.
func (w *Wallet) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if w.receiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.receiptTimeout)
		defer cancel()
	}
	receipt, err := bind.WaitMined(ctx, w.backend, tx)
	if err != nil {
		return nil, Classify(fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err))
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, &Error{Kind: KindExecution, Reason: fmt.Sprintf("transaction %s reverted", tx.Hash().Hex())}
	}
	return receipt, nil
}
