// Package domain contains the claim flow for Permit2 signature-transfer rewards.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/permitclaim/internal/evm"
)

// PermitKind distinguishes fungible from non-fungible rewards.
type PermitKind string

const (
	KindERC20  PermitKind = "erc20-permit"
	KindERC721 PermitKind = "erc721-permit"
)

// Permit is a signed Permit2 transfer authorization. It is read-only once decoded.
type Permit struct {
	Kind            PermitKind
	NetworkID       int64
	Owner           common.Address
	Token           common.Address
	Amount          *big.Int
	Nonce           *big.Int
	Deadline        *big.Int
	Beneficiary     common.Address
	RequestedAmount *big.Int
	Signature       []byte
	NFTMetadata     *NFTMetadata

	// Set for permits loaded from the record store.
	TxHash    string
	CreatedAt time.Time
}

// NonceKey is the record-store key of the permit.
func (p Permit) NonceKey() string {
	if p.Nonce == nil {
		return ""
	}
	return p.Nonce.String()
}

// TransferArgs returns the Permit2 call arguments for the permit.
func (p Permit) TransferArgs() (evm.PermitTransferFrom, evm.SignatureTransferDetails) {
	requested := p.RequestedAmount
	if requested == nil {
		requested = p.Amount
	}
	permit := evm.PermitTransferFrom{
		Permitted: evm.TokenPermissions{Token: p.Token, Amount: p.Amount},
		Nonce:     p.Nonce,
		Deadline:  p.Deadline,
	}
	details := evm.SignatureTransferDetails{
		To:              p.Beneficiary,
		RequestedAmount: requested,
	}
	return permit, details
}

// NFTMetadata is the GitHub contribution attached to an ERC-721 reward.
type NFTMetadata struct {
	Organization     string `json:"GITHUB_ORGANIZATION_NAME"`
	Repository       string `json:"GITHUB_REPOSITORY_NAME"`
	IssueID          string `json:"GITHUB_ISSUE_ID"`
	Username         string `json:"GITHUB_USERNAME"`
	ContributionType string `json:"GITHUB_CONTRIBUTION_TYPE"`
}

// Treasury is the funding wallet's position for one token. Negative balance
// or allowance means unknown, not zero.
type Treasury struct {
	Balance   *big.Int
	Allowance *big.Int
	Decimals  int
	Symbol    string
}

// UnknownTreasury is returned when any treasury read fails.
func UnknownTreasury() Treasury {
	return Treasury{
		Balance:   big.NewInt(-1),
		Allowance: big.NewInt(-1),
		Decimals:  -1,
		Symbol:    "",
	}
}

// Known reports whether the treasury was read successfully.
func (t Treasury) Known() bool {
	return t.Decimals >= 0
}

// TokenMetadata is the immutable part of a token's treasury info.
type TokenMetadata struct {
	Decimals uint8
	Symbol   string
}

// ToastLevel is the category of a user-facing notification.
type ToastLevel string

const (
	ToastInfo    ToastLevel = "info"
	ToastSuccess ToastLevel = "success"
	ToastWarning ToastLevel = "warning"
	ToastError   ToastLevel = "error"
)

// Toast is one user-facing notification.
type Toast struct {
	Level   ToastLevel `json:"level"`
	Message string     `json:"message"`
}

// UIState holds the per-reward button visibility flags.
type UIState struct {
	MakeClaim   bool `json:"makeClaim"`
	Loader      bool `json:"loader"`
	ViewClaim   bool `json:"viewClaim"`
	Invalidator bool `json:"invalidator"`
}

// Eligibility is the outcome of the claim eligibility check.
type Eligibility string

const (
	Eligible       Eligibility = "eligible"
	Undetermined   Eligibility = "unknown"
	AlreadyClaimed Eligibility = "claimed"
	Expired        Eligibility = "expired"
	Insolvent      Eligibility = "insolvent"
	NotAllowed     Eligibility = "not_allowed"
	NotRecipient   Eligibility = "not_recipient"
)

// OK reports whether the permit may be claimed.
func (e Eligibility) OK() bool {
	return e == Eligible
}

// ClaimState is a state of the claim transaction flow.
type ClaimState string

const (
	StateIdle            ClaimState = "idle"
	StateChecking        ClaimState = "checking"
	StateIneligible      ClaimState = "ineligible"
	StateSending         ClaimState = "sending"
	StateRejected        ClaimState = "rejected"
	StateSendError       ClaimState = "send_error"
	StateAwaitingReceipt ClaimState = "awaiting_receipt"
	StateReceiptError    ClaimState = "receipt_error"
	StatePersistingHash  ClaimState = "persisting_hash"
	StatePersistError    ClaimState = "persist_error"
	StateDone            ClaimState = "done"
)

// ClaimResult summarizes one claim attempt.
type ClaimResult struct {
	State       ClaimState
	Eligibility Eligibility
	TxHash      string
	Reason      string
}

// InvalidateResult summarizes one invalidation attempt.
type InvalidateResult struct {
	Sent   bool
	TxHash string
	Reason string
}

// ListFilter contains filter options for listing permits.
type ListFilter struct {
	Owner       string
	Beneficiary string
	NetworkID   int64
	Claimed     *bool
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Permits    []Permit
	HasMore    bool
	NextCursor string
}

// ImportResult reports how many permits of a claim URL were stored.
type ImportResult struct {
	Permits  []Permit
	Imported int
	Skipped  int
}
