// Package transport provides HTTP request/response types for the permits domain.
package transport

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pendergraft/permitclaim/internal/permits/domain"
)

// ImportRequest is the HTTP request body for importing claim data.
type ImportRequest struct {
	Claim string `json:"claim"`
}

// ImportResponse reports the outcome of an import.
type ImportResponse struct {
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Permits  []PermitResponse `json:"permits"`
}

// PermitResponse is the JSON form of a permit.
type PermitResponse struct {
	Kind            string              `json:"kind"`
	NetworkID       int64               `json:"networkId"`
	Nonce           string              `json:"nonce"`
	Owner           string              `json:"owner"`
	Token           string              `json:"token"`
	Amount          string              `json:"amount"`
	Deadline        string              `json:"deadline"`
	Beneficiary     string              `json:"beneficiary"`
	RequestedAmount string              `json:"requestedAmount"`
	Signature       string              `json:"signature"`
	NFTMetadata     *domain.NFTMetadata `json:"nftMetadata,omitempty"`
	TxHash          string              `json:"txHash,omitempty"`
	CreatedAt       *time.Time          `json:"createdAt,omitempty"`
	ClaimURL        string              `json:"claimUrl,omitempty"`
}

// TreasuryResponse is the funding wallet's position. Negative values mean unknown.
type TreasuryResponse struct {
	Balance   string `json:"balance"`
	Allowance string `json:"allowance"`
	Decimals  int    `json:"decimals"`
	Symbol    string `json:"symbol"`
	Known     bool   `json:"known"`
}

// SessionResponse reports the outcome of a check, claim or invalidation.
type SessionResponse struct {
	Nonce       string         `json:"nonce"`
	Eligibility string         `json:"eligibility,omitempty"`
	State       string         `json:"state"`
	TxHash      string         `json:"txHash,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Toasts      []domain.Toast `json:"toasts"`
	UI          domain.UIState `json:"ui"`
}

// ToPermitResponse converts a domain permit.
func ToPermitResponse(p domain.Permit) PermitResponse {
	resp := PermitResponse{
		Kind:        string(p.Kind),
		NetworkID:   p.NetworkID,
		Nonce:       p.NonceKey(),
		Owner:       p.Owner.Hex(),
		Token:       p.Token.Hex(),
		Amount:      bigString(p.Amount),
		Deadline:    bigString(p.Deadline),
		Beneficiary: p.Beneficiary.Hex(),
		Signature:   hexutil.Encode(p.Signature),
		NFTMetadata: p.NFTMetadata,
		TxHash:      p.TxHash,
	}
	resp.RequestedAmount = bigString(p.RequestedAmount)
	if resp.RequestedAmount == "" {
		resp.RequestedAmount = resp.Amount
	}
	if !p.CreatedAt.IsZero() {
		created := p.CreatedAt
		resp.CreatedAt = &created
	}
	return resp
}

// ToTreasuryResponse converts a treasury reading.
func ToTreasuryResponse(t domain.Treasury) TreasuryResponse {
	return TreasuryResponse{
		Balance:   bigString(t.Balance),
		Allowance: bigString(t.Allowance),
		Decimals:  t.Decimals,
		Symbol:    t.Symbol,
		Known:     t.Known(),
	}
}

func toSessionResponse(sess *domain.Session) SessionResponse {
	toasts := sess.Toasts()
	if toasts == nil {
		toasts = []domain.Toast{}
	}
	return SessionResponse{
		Nonce:  sess.Permit.NonceKey(),
		State:  string(sess.State()),
		TxHash: sess.TxHash(),
		Toasts: toasts,
		UI:     sess.Controls().State(),
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
