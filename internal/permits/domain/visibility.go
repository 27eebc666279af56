package domain

import (
	"context"
	"log/slog"
)

// Visibility decides which per-reward controls the connected wallet sees.
type Visibility struct {
	wallet AddressResolver
	logger *slog.Logger
}

// NewVisibility creates the control visibility checks.
func NewVisibility(wallet AddressResolver, logger *slog.Logger) *Visibility {
	return &Visibility{wallet: wallet, logger: logger}
}

// CheckMakeClaimControl hides the claim button unless the wallet is the
// permit's recipient. If the address cannot be resolved the button is shown.
func (v *Visibility) CheckMakeClaimControl(ctx context.Context, s *Session) {
	user, err := v.wallet.Address(ctx)
	if err != nil {
		v.logger.Warn("resolving wallet address for claim control", "error", err)
	} else if !sameAddress(user, s.Permit.Beneficiary) {
		s.Controls().HideMakeClaim()
		return
	}
	s.Controls().ShowMakeClaim()
}

// CheckInvalidatorControl hides the invalidate button unless the wallet is
// the permit's owner. If the address cannot be resolved the button is shown.
func (v *Visibility) CheckInvalidatorControl(ctx context.Context, s *Session) {
	user, err := v.wallet.Address(ctx)
	if err != nil {
		v.logger.Warn("resolving wallet address for invalidator control", "error", err)
	} else if !sameAddress(user, s.Permit.Owner) {
		s.Controls().HideInvalidator()
		return
	}
	s.Controls().ShowInvalidator()
}
