package domain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_Check(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(f *fixture, p *Permit)
		want      Eligibility
		toast     *Toast
		makeClaim bool
		viewClaim bool
	}{
		{
			name:      "eligible",
			setup:     func(*fixture, *Permit) {},
			want:      Eligible,
			makeClaim: true,
		},
		{
			name: "already claimed",
			setup: func(f *fixture, p *Permit) {
				f.bitmaps.markClaimed(p.Owner, p.Nonce)
			},
			want:      AlreadyClaimed,
			toast:     &Toast{Level: ToastError, Message: MsgAlreadyClaimed},
			viewClaim: true,
		},
		{
			name: "expired",
			setup: func(f *fixture, p *Permit) {
				f.clock.Advance(2 * time.Hour)
			},
			want:  Expired,
			toast: &Toast{Level: ToastError, Message: MsgExpired},
		},
		{
			name: "deadline one second past in unix seconds",
			setup: func(f *fixture, p *Permit) {
				p.Deadline = big.NewInt(f.clock.Now().Unix() - 1)
			},
			want:  Expired,
			toast: &Toast{Level: ToastError, Message: MsgExpired},
		},
		{
			name: "deadline one minute ahead in unix seconds",
			setup: func(f *fixture, p *Permit) {
				p.Deadline = big.NewInt(f.clock.Now().Unix() + 60)
			},
			want:      Eligible,
			makeClaim: true,
		},
		{
			name: "insolvent",
			setup: func(f *fixture, p *Permit) {
				f.tokens.balance = big.NewInt(999_999)
			},
			want:  Insolvent,
			toast: &Toast{Level: ToastError, Message: MsgInsolvent},
		},
		{
			name: "not allowed",
			setup: func(f *fixture, p *Permit) {
				f.tokens.allowance = big.NewInt(10)
			},
			want:  NotAllowed,
			toast: &Toast{Level: ToastError, Message: MsgNotAllowed},
		},
		{
			name: "treasury unknown counts as insolvent",
			setup: func(f *fixture, p *Permit) {
				f.tokens.err = errors.New("rpc down")
			},
			want:  Insolvent,
			toast: &Toast{Level: ToastError, Message: MsgInsolvent},
		},
		{
			name: "not the recipient",
			setup: func(f *fixture, p *Permit) {
				f.wallet.address = common.HexToAddress("0x1111111111111111111111111111111111111111")
			},
			want:  NotRecipient,
			toast: &Toast{Level: ToastWarning, Message: MsgNotRecipient},
		},
		{
			name: "claimed lookup fails closed",
			setup: func(f *fixture, p *Permit) {
				f.bitmaps.err = errors.New("connection refused")
			},
			want: Undetermined,
		},
		{
			name: "address resolution fails closed",
			setup: func(f *fixture, p *Permit) {
				f.wallet.addrErr = errors.New("wallet locked")
			},
			want: Undetermined,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := testERC20Permit()
			tt.setup(f, &p)
			s := NewSession(p, WithControls(UIState{MakeClaim: true}))

			got := f.checker.Check(context.Background(), s)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.OK(), got == Eligible)
			if tt.toast != nil {
				assert.Equal(t, []Toast{*tt.toast}, s.Toasts())
			} else {
				assert.Empty(t, s.Toasts())
			}
			state := s.Controls().State()
			assert.Equal(t, tt.makeClaim, state.MakeClaim)
			assert.Equal(t, tt.viewClaim, state.ViewClaim)
		})
	}
}

func TestChecker_RecipientMatchIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	p := testERC20Permit()
	p.Beneficiary = common.HexToAddress(strings.ToLower(testBeneficiary.Hex()))

	got := f.checker.Check(context.Background(), NewSession(p))
	assert.Equal(t, Eligible, got)
}

func TestChecker_DeadlineEqualToNowIsNotExpired(t *testing.T) {
	f := newFixture(t)
	p := testERC20Permit()
	p.Deadline = big.NewInt(testNow.Unix())

	got := f.checker.Check(context.Background(), NewSession(p))
	assert.Equal(t, Eligible, got)
}

func TestChecker_IsClaimed(t *testing.T) {
	f := newFixture(t)
	p := testERC20Permit()

	claimed, err := f.checker.IsClaimed(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, claimed)

	// A neighbouring bit in the same word does not count.
	word := new(big.Int).Rsh(p.Nonce, 8)
	f.bitmaps.set(p.Owner, word, big.NewInt(1<<3))
	claimed, err = f.checker.IsClaimed(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, claimed)

	f.bitmaps.markClaimed(p.Owner, p.Nonce)
	claimed, err = f.checker.IsClaimed(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, claimed)
}
