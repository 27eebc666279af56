package domain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/permitclaim/internal/evm"
	"github.com/pendergraft/permitclaim/internal/nonce"
	"github.com/pendergraft/permitclaim/internal/observability/metrics"
)

// Messages shown to the user by the invalidation flow.
const (
	MsgAlreadyInvalidated = "This reward has already been claimed or invalidated."
	MsgInvalidationSent   = "Nonce invalidation transaction sent"
	MsgNotOwner           = "Only the funding wallet that signed this reward can invalidate it."
)

// Invalidator lets a permit owner burn an unclaimed nonce.
type Invalidator struct {
	checker *Checker
	bitmaps BitmapReader
	wallet  Wallet
	logger  *slog.Logger
}

// NewInvalidator creates the invalidation flow.
func NewInvalidator(checker *Checker, bitmaps BitmapReader, wallet Wallet, logger *slog.Logger) *Invalidator {
	return &Invalidator{
		checker: checker,
		bitmaps: bitmaps,
		wallet:  wallet,
		logger:  logger,
	}
}

// Invalidate refuses wallets other than the permit owner, re-checks the
// claimed status, then sets the nonce bit in the owner's bitmap word through
// invalidateUnorderedNonces. The read and the write are not atomic; Permit2
// tolerates redundant invalidations.
func (i *Invalidator) Invalidate(ctx context.Context, s *Session) *InvalidateResult {
	p := s.Permit

	signer, err := i.wallet.Address(ctx)
	if err != nil {
		return i.fail(s, err)
	}
	if !sameAddress(signer, p.Owner) {
		s.Notify(ToastWarning, MsgNotOwner)
		s.Controls().HideInvalidator()
		metrics.Invalidation("not_owner")
		return &InvalidateResult{Reason: MsgNotOwner}
	}

	claimed, err := i.checker.IsClaimed(ctx, p)
	if err != nil {
		return i.fail(s, err)
	}
	if claimed {
		s.Notify(ToastError, MsgAlreadyInvalidated)
		s.Controls().HideInvalidator()
		metrics.Invalidation("already_claimed")
		return &InvalidateResult{Reason: MsgAlreadyInvalidated}
	}

	hash, err := i.send(ctx, p, signer)
	if err != nil {
		return i.fail(s, err)
	}

	s.Notify(ToastInfo, MsgInvalidationSent)
	s.Controls().HideInvalidator()
	metrics.Invalidation("sent")
	return &InvalidateResult{Sent: true, TxHash: hash}
}

func (i *Invalidator) send(ctx context.Context, p Permit, signer common.Address) (string, error) {
	word, bit := nonce.Position(p.Nonce)
	bitmap, err := i.bitmaps.NonceBitmap(ctx, signer, word)
	if err != nil {
		return "", fmt.Errorf("reading signer bitmap: %w", err)
	}
	tx, err := i.wallet.InvalidateUnorderedNonces(ctx, word, nonce.Mask(bitmap, bit))
	if err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

func (i *Invalidator) fail(s *Session, err error) *InvalidateResult {
	if evm.IsUserRejected(err) {
		s.Notify(ToastInfo, MsgRejected)
		metrics.Invalidation("rejected")
		return &InvalidateResult{Reason: MsgRejected}
	}
	i.logger.Error("invalidating nonce", "nonce", s.Permit.NonceKey(), "error", err)
	s.Notify(ToastError, evm.Reason(err))
	metrics.Invalidation("error")
	return &InvalidateResult{Reason: evm.Reason(err)}
}
