package domain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jonboulle/clockwork"

	"github.com/pendergraft/permitclaim/internal/nonce"
)

// Messages shown to the user by the eligibility check.
const (
	MsgAlreadyClaimed = "Your reward for this task has already been claimed."
	MsgExpired        = "This reward has expired."
	MsgInsolvent      = "Not enough funds on funding wallet to collect this reward. Please let the financier know."
	MsgNotAllowed     = "Not enough allowance on the funding wallet to collect this reward. Please let the financier know."
	MsgNotRecipient   = "This reward is not for you."
)

// BitmapReader reads Permit2 nonce bitmap words.
type BitmapReader interface {
	NonceBitmap(ctx context.Context, owner common.Address, word *big.Int) (*big.Int, error)
}

// AddressResolver resolves the connected wallet's account.
type AddressResolver interface {
	Address(ctx context.Context) (common.Address, error)
}

// Checker decides whether a permit can be claimed by the connected wallet.
type Checker struct {
	bitmaps  BitmapReader
	treasury *TreasuryFetcher
	wallet   AddressResolver
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewChecker creates an eligibility checker.
func NewChecker(bitmaps BitmapReader, treasury *TreasuryFetcher, wallet AddressResolver, clock clockwork.Clock, logger *slog.Logger) *Checker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Checker{
		bitmaps:  bitmaps,
		treasury: treasury,
		wallet:   wallet,
		clock:    clock,
		logger:   logger,
	}
}

// IsClaimed reports whether the permit's nonce bit is set in the owner's bitmap.
func (c *Checker) IsClaimed(ctx context.Context, p Permit) (bool, error) {
	word, bit := nonce.Position(p.Nonce)
	bitmap, err := c.bitmaps.NonceBitmap(ctx, p.Owner, word)
	if err != nil {
		return false, fmt.Errorf("reading nonce bitmap: %w", err)
	}
	return nonce.IsClaimed(bitmap, bit), nil
}

// Check runs the eligibility steps in order and stops at the first failure,
// raising its toast and applying its control changes on the session.
// Every failure leaves make-claim hidden. Failures to read the claimed
// status or resolve the wallet address are logged and treated as ineligible.
func (c *Checker) Check(ctx context.Context, s *Session) Eligibility {
	p := s.Permit
	controls := s.Controls()

	claimed, err := c.IsClaimed(ctx, p)
	if err != nil {
		c.logger.Error("checking nonce claimed", "nonce", p.NonceKey(), "error", err)
		controls.HideMakeClaim()
		return Undetermined
	}
	if claimed {
		s.Notify(ToastError, MsgAlreadyClaimed)
		controls.HideMakeClaim()
		controls.ShowViewClaim()
		return AlreadyClaimed
	}

	if p.Deadline.Cmp(big.NewInt(c.clock.Now().Unix())) < 0 {
		s.Notify(ToastError, MsgExpired)
		controls.HideMakeClaim()
		return Expired
	}

	t := c.treasury.FetchTreasury(ctx, p)
	if t.Balance.Cmp(p.Amount) < 0 {
		s.Notify(ToastError, MsgInsolvent)
		controls.HideMakeClaim()
		return Insolvent
	}
	if t.Allowance.Cmp(p.Amount) < 0 {
		s.Notify(ToastError, MsgNotAllowed)
		controls.HideMakeClaim()
		return NotAllowed
	}

	user, err := c.wallet.Address(ctx)
	if err != nil {
		c.logger.Error("resolving wallet address", "error", err)
		controls.HideMakeClaim()
		return Undetermined
	}
	if !sameAddress(user, p.Beneficiary) {
		s.Notify(ToastWarning, MsgNotRecipient)
		controls.HideMakeClaim()
		return NotRecipient
	}

	return Eligible
}

func sameAddress(a, b common.Address) bool {
	return strings.EqualFold(a.Hex(), b.Hex())
}
