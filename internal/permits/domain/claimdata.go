package domain

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// maxUint256 is 2^256-1.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// claimJSON is the wire form of one reward inside the claim URL parameter.
type claimJSON struct {
	Type            PermitKind   `json:"type"`
	Permit          permitJSON   `json:"permit"`
	TransferDetails transferJSON `json:"transferDetails"`
	Owner           string       `json:"owner"`
	Signature       string       `json:"signature"`
	NetworkID       uint256JSON  `json:"networkId"`
	NFTMetadata     *NFTMetadata `json:"nftMetadata,omitempty"`
}

type permitJSON struct {
	Permitted struct {
		Token  string      `json:"token"`
		Amount uint256JSON `json:"amount"`
	} `json:"permitted"`
	Nonce    uint256JSON `json:"nonce"`
	Deadline uint256JSON `json:"deadline"`
}

type transferJSON struct {
	To              string      `json:"to"`
	RequestedAmount uint256JSON `json:"requestedAmount"`
}

// uint256JSON accepts decimal or 0x-hex strings, JSON numbers and serialized
// ethers BigNumber objects. It always marshals to a decimal string.
type uint256JSON struct {
	v *big.Int
}

type bigNumberJSON struct {
	Type string `json:"type"`
	Hex  string `json:"hex"`
	Hex2 string `json:"_hex"`
}

func (u *uint256JSON) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	var text string
	switch b[0] {
	case '"':
		if err := json.Unmarshal(b, &text); err != nil {
			return err
		}
	case '{':
		var bn bigNumberJSON
		if err := json.Unmarshal(b, &bn); err != nil {
			return err
		}
		text = bn.Hex
		if text == "" {
			text = bn.Hex2
		}
	default:
		text = string(b)
	}

	v, err := parseUint256(text)
	if err != nil {
		return err
	}
	u.v = v
	return nil
}

func (u uint256JSON) MarshalJSON() ([]byte, error) {
	if u.v == nil {
		return []byte(`"0"`), nil
	}
	return json.Marshal(u.v.String())
}

func parseUint256(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty integer")
	}
	digits, base := s, 10
	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		digits, base = rest, 16
	} else if rest, ok := strings.CutPrefix(s, "0X"); ok {
		digits, base = rest, 16
	}
	if !validDigits(digits, base) {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if v.Sign() < 0 || v.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("integer %q out of uint256 range", s)
	}
	return v, nil
}

// validDigits accepts plain decimal or hex digits only, so Go literal forms
// such as 1_000, 0b101 or 0o17 are rejected.
func validDigits(s string, base int) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case base == 16 && (c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'):
		default:
			return false
		}
	}
	return true
}

// DecodeClaimData decodes the claim URL parameter: base64 of a JSON array of
// rewards (a single object is accepted too).
func DecodeClaimData(raw string) ([]Permit, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty claim data", ErrInvalidClaimData)
	}

	decoded, err := decodeBase64(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaimData, err)
	}

	var claims []claimJSON
	decoded = bytes.TrimSpace(decoded)
	if len(decoded) > 0 && decoded[0] == '{' {
		var single claimJSON
		if err := json.Unmarshal(decoded, &single); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidClaimData, err)
		}
		claims = []claimJSON{single}
	} else if err := json.Unmarshal(decoded, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClaimData, err)
	}

	if len(claims) == 0 {
		return nil, fmt.Errorf("%w: no rewards", ErrInvalidClaimData)
	}

	permits := make([]Permit, 0, len(claims))
	for i, c := range claims {
		p, err := c.toPermit()
		if err != nil {
			return nil, fmt.Errorf("%w: reward %d: %v", ErrInvalidClaimData, i, err)
		}
		permits = append(permits, p)
	}
	return permits, nil
}

// EncodeClaimData is the inverse of DecodeClaimData.
func EncodeClaimData(permits []Permit) (string, error) {
	claims := make([]claimJSON, 0, len(permits))
	for _, p := range permits {
		claims = append(claims, fromPermit(p))
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("encoding claim data: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decodeBase64(s string) ([]byte, error) {
	// Query parsing turns '+' into ' '.
	s = strings.ReplaceAll(s, " ", "+")
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("claim data is not base64")
}

func (c claimJSON) toPermit() (Permit, error) {
	kind := c.Type
	if kind == "" {
		kind = KindERC20
	}
	if kind != KindERC20 && kind != KindERC721 {
		return Permit{}, fmt.Errorf("unknown permit type %q", c.Type)
	}

	owner, err := parseAddress("owner", c.Owner)
	if err != nil {
		return Permit{}, err
	}
	token, err := parseAddress("token", c.Permit.Permitted.Token)
	if err != nil {
		return Permit{}, err
	}
	to, err := parseAddress("transferDetails.to", c.TransferDetails.To)
	if err != nil {
		return Permit{}, err
	}

	if c.Permit.Nonce.v == nil {
		return Permit{}, fmt.Errorf("missing nonce")
	}
	if c.Permit.Permitted.Amount.v == nil {
		return Permit{}, fmt.Errorf("missing amount")
	}
	if c.Permit.Deadline.v == nil {
		return Permit{}, fmt.Errorf("missing deadline")
	}

	sig, err := hexutil.Decode(c.Signature)
	if err != nil {
		return Permit{}, fmt.Errorf("invalid signature: %v", err)
	}

	if kind == KindERC721 && c.NFTMetadata == nil {
		return Permit{}, fmt.Errorf("missing nftMetadata for %s", kind)
	}

	var networkID int64
	if c.NetworkID.v != nil {
		if !c.NetworkID.v.IsInt64() {
			return Permit{}, fmt.Errorf("networkId out of range")
		}
		networkID = c.NetworkID.v.Int64()
	}

	requested := c.TransferDetails.RequestedAmount.v
	if requested == nil {
		requested = new(big.Int).Set(c.Permit.Permitted.Amount.v)
	}

	return Permit{
		Kind:            kind,
		NetworkID:       networkID,
		Owner:           owner,
		Token:           token,
		Amount:          c.Permit.Permitted.Amount.v,
		Nonce:           c.Permit.Nonce.v,
		Deadline:        c.Permit.Deadline.v,
		Beneficiary:     to,
		RequestedAmount: requested,
		Signature:       sig,
		NFTMetadata:     c.NFTMetadata,
	}, nil
}

func fromPermit(p Permit) claimJSON {
	var c claimJSON
	c.Type = p.Kind
	c.Permit.Permitted.Token = p.Token.Hex()
	c.Permit.Permitted.Amount = uint256JSON{p.Amount}
	c.Permit.Nonce = uint256JSON{p.Nonce}
	c.Permit.Deadline = uint256JSON{p.Deadline}
	c.TransferDetails.To = p.Beneficiary.Hex()
	c.TransferDetails.RequestedAmount = uint256JSON{p.RequestedAmount}
	c.Owner = p.Owner.Hex()
	c.Signature = hexutil.Encode(p.Signature)
	c.NetworkID = uint256JSON{big.NewInt(p.NetworkID)}
	c.NFTMetadata = p.NFTMetadata
	return c
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, s)
	}
	return common.HexToAddress(s), nil
}
