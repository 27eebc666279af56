package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/permitclaim/internal/evm"
	"github.com/pendergraft/permitclaim/internal/observability/metrics"
	"github.com/pendergraft/permitclaim/internal/storage"
)

// Messages shown to the user by the claim flow.
const (
	MsgRejected      = "Transaction was not sent because it was rejected by the user."
	MsgTxSent        = "Transaction sent"
	MsgClaimComplete = "Claim Complete."
)

// Wallet signs and submits Permit2 transactions for the connected account.
type Wallet interface {
	AddressResolver
	PermitTransferFrom(ctx context.Context, permit evm.PermitTransferFrom, details evm.SignatureTransferDetails, owner common.Address, signature []byte) (*types.Transaction, error)
	InvalidateUnorderedNonces(ctx context.Context, word, mask *big.Int) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// RecordStore updates the off-chain permit record.
type RecordStore interface {
	UpdatePermitTxHash(ctx context.Context, nonce, txHash string) error
}

// ErrorReporter forwards unrecoverable failures to an error tracker.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, error, map[string]string) {}

// Orchestrator runs the claim transaction flow for one session.
type Orchestrator struct {
	checker  *Checker
	wallet   Wallet
	records  RecordStore
	reporter ErrorReporter
	logger   *slog.Logger
}

// NewOrchestrator creates the claim flow. reporter may be nil.
func NewOrchestrator(checker *Checker, wallet Wallet, records RecordStore, reporter ErrorReporter, logger *slog.Logger) *Orchestrator {
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Orchestrator{
		checker:  checker,
		wallet:   wallet,
		records:  records,
		reporter: reporter,
		logger:   logger,
	}
}

// Claim checks eligibility, sends the transfer, waits for the receipt and
// records the transaction hash. Outcomes the user can act on are reported
// through the session and the returned result. Only a failure to record the
// hash of a mined transaction is returned as an error.
func (o *Orchestrator) Claim(ctx context.Context, s *Session) (*ClaimResult, error) {
	if s.Detached() {
		return &ClaimResult{State: s.State(), Eligibility: Eligible, TxHash: s.TxHash()}, nil
	}
	if s.Permit.Kind != KindERC20 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, s.Permit.Kind)
	}

	controls := s.Controls()
	p := s.Permit

	s.transition(StateChecking)
	controls.HideMakeClaim()
	controls.ShowLoader()

	eligibility := o.checker.Check(ctx, s)
	if !eligibility.OK() {
		controls.HideLoader()
		s.transition(StateIneligible)
		metrics.ClaimAttempt(string(StateIneligible))
		return &ClaimResult{State: StateIneligible, Eligibility: eligibility}, nil
	}

	s.transition(StateSending)
	permit, details := p.TransferArgs()
	tx, err := o.wallet.PermitTransferFrom(ctx, permit, details, p.Owner, p.Signature)
	if err != nil {
		if evm.IsUserRejected(err) {
			s.Notify(ToastInfo, MsgRejected)
			controls.HideLoader()
			controls.ShowMakeClaim()
			return o.fail(s, StateRejected, eligibility, "", err), nil
		}
		o.logger.Error("sending permit transfer", "nonce", p.NonceKey(), "error", err)
		s.Notify(ToastError, evm.Reason(err))
		return o.fail(s, StateSendError, eligibility, "", err), nil
	}

	s.Notify(ToastInfo, MsgTxSent)
	controls.ShowLoader()
	controls.HideMakeClaim()
	s.transition(StateAwaitingReceipt)

	receipt, err := o.wallet.WaitMined(ctx, tx)
	if err != nil {
		o.logger.Error("waiting for claim receipt", "nonce", p.NonceKey(), "tx", tx.Hash().Hex(), "error", err)
		s.Notify(ToastError, evm.Reason(err))
		return o.fail(s, StateReceiptError, eligibility, tx.Hash().Hex(), err), nil
	}

	hash := receipt.TxHash.Hex()
	s.setTxHash(hash)
	s.Notify(ToastSuccess, MsgClaimComplete)
	controls.ShowViewClaim()
	controls.HideLoader()
	controls.HideMakeClaim()
	s.transition(StatePersistingHash)

	if err := o.records.UpdatePermitTxHash(ctx, p.NonceKey(), hash); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Error("persisting claim transaction hash",
				"nonce", p.NonceKey(),
				"tx", hash,
				"error", err,
			)
			err = fmt.Errorf("%w: nonce %s: %v", ErrPersistTxHash, p.NonceKey(), err)
			o.reporter.Report(ctx, err, map[string]string{
				"nonce": p.NonceKey(),
				"tx":    hash,
			})
			return o.fail(s, StatePersistError, eligibility, hash, err), err
		}
		o.logger.Warn("no permit record to update", "nonce", p.NonceKey(), "tx", hash)
	}

	s.transition(StateDone)
	s.detach()
	metrics.ClaimAttempt(string(StateDone))
	return &ClaimResult{State: StateDone, Eligibility: eligibility, TxHash: hash}, nil
}

func (o *Orchestrator) fail(s *Session, state ClaimState, eligibility Eligibility, hash string, err error) *ClaimResult {
	s.transition(state)
	metrics.ClaimAttempt(string(state))
	return &ClaimResult{State: state, Eligibility: eligibility, TxHash: hash, Reason: evm.Reason(err)}
}
