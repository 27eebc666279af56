package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jonboulle/clockwork"

	"github.com/pendergraft/permitclaim/internal/evm"
	"github.com/pendergraft/permitclaim/internal/observability/metrics"
	"github.com/pendergraft/permitclaim/internal/storage"
)

// Common errors returned by the permit service.
var (
	ErrNotFound          = errors.New("permit not found")
	ErrInvalidClaimData  = errors.New("invalid claim data")
	ErrUnsupportedKind   = errors.New("unsupported permit kind for claiming")
	ErrWalletUnavailable = errors.New("no wallet configured")
	ErrPersistTxHash     = errors.New("failed to record claim transaction")
)

// PermitStore defines the storage operations needed by the permits domain.
type PermitStore interface {
	CreatePermit(ctx context.Context, p *storage.Permit) error
	GetPermit(ctx context.Context, nonce string) (*storage.Permit, error)
	ListPermits(ctx context.Context, filter storage.PermitFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Permit], error)
	UpdatePermitTxHash(ctx context.Context, nonce, txHash string) error
}

// Dependencies are the collaborators of the permit service.
type Dependencies struct {
	Permits  PermitStore
	Tokens   TokenReader
	Bitmaps  BitmapReader
	Wallet   Wallet // nil for a read-only service
	Cache    *MetadataCache
	Spender  common.Address
	Reporter ErrorReporter
	Clock    clockwork.Clock
	Logger   *slog.Logger
}

type service struct {
	permits      PermitStore
	treasury     *TreasuryFetcher
	checker      *Checker
	visibility   *Visibility
	orchestrator *Orchestrator
	invalidator  *Invalidator
	hasWallet    bool
}

// NewService wires the claim flow components.
func NewService(deps Dependencies) *service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wallet := deps.Wallet
	if wallet == nil {
		wallet = noWallet{}
	}

	treasury := NewTreasuryFetcher(deps.Tokens, deps.Cache, deps.Spender, logger)
	checker := NewChecker(deps.Bitmaps, treasury, wallet, deps.Clock, logger)

	return &service{
		permits:      deps.Permits,
		treasury:     treasury,
		checker:      checker,
		visibility:   NewVisibility(wallet, logger),
		orchestrator: NewOrchestrator(checker, wallet, deps.Permits, deps.Reporter, logger),
		invalidator:  NewInvalidator(checker, deps.Bitmaps, wallet, logger),
		hasWallet:    deps.Wallet != nil,
	}
}

// Import decodes claim URL data and stores every reward not stored yet.
func (s *service) Import(ctx context.Context, claimData string) (*ImportResult, error) {
	permits, err := DecodeClaimData(claimData)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Permits: permits}
	for _, p := range permits {
		rec, err := toRecord(p)
		if err != nil {
			return nil, err
		}
		if err := s.permits.CreatePermit(ctx, rec); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				result.Skipped++
				continue
			}
			return nil, fmt.Errorf("storing permit %s: %w", p.NonceKey(), err)
		}
		result.Imported++
	}
	metrics.PermitImport("imported", result.Imported)
	metrics.PermitImport("skipped", result.Skipped)
	return result, nil
}

// Get returns a stored permit by nonce.
func (s *service) Get(ctx context.Context, nonceKey string) (*Permit, error) {
	rec, err := s.permits.GetPermit(ctx, nonceKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting permit: %w", err)
	}
	p, err := fromRecord(rec)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns stored permits.
func (s *service) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	res, err := s.permits.ListPermits(ctx, storage.PermitFilter{
		Owner:       filter.Owner,
		Beneficiary: filter.Beneficiary,
		NetworkID:   filter.NetworkID,
		Claimed:     filter.Claimed,
	}, storage.PaginationParams{
		Limit:  pagination.Limit,
		Cursor: pagination.Cursor,
	})
	if err != nil {
		return nil, fmt.Errorf("listing permits: %w", err)
	}

	out := &ListResult{HasMore: res.HasMore, NextCursor: res.NextCursor}
	for i := range res.Data {
		p, err := fromRecord(&res.Data[i])
		if err != nil {
			return nil, err
		}
		out.Permits = append(out.Permits, p)
	}
	return out, nil
}

// Treasury returns the funding wallet's position for the permit's token.
func (s *service) Treasury(ctx context.Context, p Permit) Treasury {
	return s.treasury.FetchTreasury(ctx, p)
}

// Open creates a session for p and applies the control visibility checks.
func (s *service) Open(ctx context.Context, p Permit, opts ...SessionOption) *Session {
	sess := NewSession(p, opts...)
	if p.Kind == KindERC20 {
		s.visibility.CheckMakeClaimControl(ctx, sess)
	}
	s.visibility.CheckInvalidatorControl(ctx, sess)
	if p.TxHash != "" {
		sess.Controls().ShowViewClaim()
	}
	return sess
}

// Check runs the eligibility check on the session.
func (s *service) Check(ctx context.Context, sess *Session) Eligibility {
	return s.checker.Check(ctx, sess)
}

// Claim runs the claim flow with the configured wallet.
func (s *service) Claim(ctx context.Context, sess *Session) (*ClaimResult, error) {
	if !s.hasWallet {
		return nil, ErrWalletUnavailable
	}
	return s.orchestrator.Claim(ctx, sess)
}

// Invalidate burns the permit's nonce with the configured wallet.
func (s *service) Invalidate(ctx context.Context, sess *Session) (*InvalidateResult, error) {
	if !s.hasWallet {
		return nil, ErrWalletUnavailable
	}
	return s.invalidator.Invalidate(ctx, sess), nil
}

// noWallet stands in when the service runs without a signer.
type noWallet struct{}

func (noWallet) Address(context.Context) (common.Address, error) {
	return common.Address{}, ErrWalletUnavailable
}

func (noWallet) PermitTransferFrom(context.Context, evm.PermitTransferFrom, evm.SignatureTransferDetails, common.Address, []byte) (*types.Transaction, error) {
	return nil, ErrWalletUnavailable
}

func (noWallet) InvalidateUnorderedNonces(context.Context, *big.Int, *big.Int) (*types.Transaction, error) {
	return nil, ErrWalletUnavailable
}

func (noWallet) WaitMined(context.Context, *types.Transaction) (*types.Receipt, error) {
	return nil, ErrWalletUnavailable
}

func toRecord(p Permit) (*storage.Permit, error) {
	var metadata map[string]string
	if p.NFTMetadata != nil {
		b, err := json.Marshal(p.NFTMetadata)
		if err != nil {
			return nil, fmt.Errorf("encoding nft metadata: %w", err)
		}
		if err := json.Unmarshal(b, &metadata); err != nil {
			return nil, fmt.Errorf("encoding nft metadata: %w", err)
		}
	}
	requested := p.RequestedAmount
	if requested == nil {
		requested = p.Amount
	}
	return &storage.Permit{
		Nonce:           p.NonceKey(),
		Kind:            string(p.Kind),
		NetworkID:       p.NetworkID,
		Owner:           p.Owner.Hex(),
		Token:           p.Token.Hex(),
		Amount:          p.Amount.String(),
		Deadline:        p.Deadline.String(),
		Beneficiary:     p.Beneficiary.Hex(),
		RequestedAmount: requested.String(),
		Signature:       hexutil.Encode(p.Signature),
		NFTMetadata:     metadata,
	}, nil
}

func fromRecord(rec *storage.Permit) (Permit, error) {
	bad := func(field string, err error) (Permit, error) {
		return Permit{}, fmt.Errorf("stored permit %s has invalid %s: %v", rec.Nonce, field, err)
	}

	nonceValue, err := parseUint256(rec.Nonce)
	if err != nil {
		return bad("nonce", err)
	}
	amount, err := parseUint256(rec.Amount)
	if err != nil {
		return bad("amount", err)
	}
	deadline, err := parseUint256(rec.Deadline)
	if err != nil {
		return bad("deadline", err)
	}
	requested, err := parseUint256(rec.RequestedAmount)
	if err != nil {
		return bad("requested amount", err)
	}
	sig, err := hexutil.Decode(rec.Signature)
	if err != nil {
		return bad("signature", err)
	}

	p := Permit{
		Kind:            PermitKind(rec.Kind),
		NetworkID:       rec.NetworkID,
		Owner:           common.HexToAddress(rec.Owner),
		Token:           common.HexToAddress(rec.Token),
		Amount:          amount,
		Nonce:           nonceValue,
		Deadline:        deadline,
		Beneficiary:     common.HexToAddress(rec.Beneficiary),
		RequestedAmount: requested,
		Signature:       sig,
		TxHash:          rec.TxHash,
	}
	if len(rec.NFTMetadata) > 0 {
		b, err := json.Marshal(rec.NFTMetadata)
		if err != nil {
			return bad("nft metadata", err)
		}
		var md NFTMetadata
		if err := json.Unmarshal(b, &md); err != nil {
			return bad("nft metadata", err)
		}
		p.NFTMetadata = &md
	}
	p.CreatedAt = parseTimestamp(rec.CreatedAt)
	return p, nil
}

// parseTimestamp accepts RFC 3339 (Postgres) and SQLite datetime() output.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
