package domain

import (
	"encoding/base64"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleClaimJSON = `[{
	"type": "erc20-permit",
	"permit": {
		"permitted": {"token": "0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d", "amount": "25000000000000000000"},
		"nonce": "904625697166532776746648320380374280103671755200316906558262375061821325312",
		"deadline": "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	},
	"transferDetails": {"to": "0x4007CE2083c7F3E18097aeB3A39bb8eC149a341d", "requestedAmount": "25000000000000000000"},
	"owner": "0x44Ca15Db101fD1c194467Db6AF0c67C6BbF4AB51",
	"signature": "0x1b2c3d",
	"networkId": 100
}, {
	"type": "erc721-permit",
	"permit": {
		"permitted": {"token": "0x6a87f05a74AB2EC25D1Eea0a3Cd24C3A2eCfF3E0", "amount": {"type": "BigNumber", "hex": "0x01"}},
		"nonce": {"type": "BigNumber", "hex": "0x2a"},
		"deadline": 1700000000
	},
	"transferDetails": {"to": "0x4007CE2083c7F3E18097aeB3A39bb8eC149a341d", "requestedAmount": "0x1"},
	"owner": "0x44Ca15Db101fD1c194467Db6AF0c67C6BbF4AB51",
	"signature": "0xabcd",
	"networkId": "100",
	"nftMetadata": {
		"GITHUB_ORGANIZATION_NAME": "ubiquity",
		"GITHUB_REPOSITORY_NAME": "pay.ubq.fi",
		"GITHUB_ISSUE_ID": "42",
		"GITHUB_USERNAME": "octocat",
		"GITHUB_CONTRIBUTION_TYPE": "issue_specification,issue_comment"
	}
}]`

func TestDecodeClaimData(t *testing.T) {
	permits, err := DecodeClaimData(base64.StdEncoding.EncodeToString([]byte(sampleClaimJSON)))
	require.NoError(t, err)
	require.Len(t, permits, 2)

	erc20 := permits[0]
	assert.Equal(t, KindERC20, erc20.Kind)
	assert.Equal(t, int64(100), erc20.NetworkID)
	assert.Equal(t, testOwner, erc20.Owner)
	assert.Equal(t, testToken, erc20.Token)
	assert.Equal(t, testBeneficiary, erc20.Beneficiary)
	assert.Equal(t, "25000000000000000000", erc20.Amount.String())
	assert.Equal(t, "904625697166532776746648320380374280103671755200316906558262375061821325312", erc20.NonceKey())
	assert.Equal(t, 0, erc20.Deadline.Cmp(maxUint256))
	assert.Equal(t, []byte{0x1b, 0x2c, 0x3d}, erc20.Signature)
	assert.Nil(t, erc20.NFTMetadata)

	nft := permits[1]
	assert.Equal(t, KindERC721, nft.Kind)
	assert.Equal(t, int64(1), nft.Amount.Int64())
	assert.Equal(t, int64(42), nft.Nonce.Int64())
	assert.Equal(t, int64(1700000000), nft.Deadline.Int64())
	require.NotNil(t, nft.NFTMetadata)
	assert.Equal(t, "ubiquity", nft.NFTMetadata.Organization)
	assert.Equal(t, "issue_specification,issue_comment", nft.NFTMetadata.ContributionType)
}

func TestDecodeClaimData_Encodings(t *testing.T) {
	single := `{"permit":{"permitted":{"token":"0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d","amount":"1"},"nonce":"1","deadline":"1"},` +
		`"transferDetails":{"to":"0x4007CE2083c7F3E18097aeB3A39bb8eC149a341d","requestedAmount":"1"},` +
		`"owner":"0x44Ca15Db101fD1c194467Db6AF0c67C6BbF4AB51","signature":"0x00","networkId":1}`

	for name, encoded := range map[string]string{
		"std":     base64.StdEncoding.EncodeToString([]byte(single)),
		"raw url": base64.RawURLEncoding.EncodeToString([]byte(single)),
	} {
		t.Run(name, func(t *testing.T) {
			permits, err := DecodeClaimData(encoded)
			require.NoError(t, err)
			require.Len(t, permits, 1)
			assert.Equal(t, KindERC20, permits[0].Kind)
		})
	}
}

func TestDecodeClaimData_Invalid(t *testing.T) {
	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	tests := map[string]string{
		"empty":           "",
		"not base64":      "%%%",
		"not json":        enc("hello"),
		"empty list":      enc("[]"),
		"unknown type":    enc(`[{"type":"erc1155-permit"}]`),
		"bad owner":       enc(`[{"owner":"0x12","permit":{"permitted":{"token":"0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d","amount":"1"},"nonce":"1","deadline":"1"},"transferDetails":{"to":"0x4007CE2083c7F3E18097aeB3A39bb8eC149a341d"},"signature":"0x00"}]`),
		"negative":        enc(`[{"owner":"0x44Ca15Db101fD1c194467Db6AF0c67C6BbF4AB51","permit":{"permitted":{"token":"0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d","amount":"-1"},"nonce":"1","deadline":"1"},"transferDetails":{"to":"0x4007CE2083c7F3E18097aeB3A39bb8eC149a341d"},"signature":"0x00"}]`),
		"missing nonce":   enc(`[{"owner":"0x44Ca15Db101fD1c194467Db6AF0c67C6BbF4AB51","permit":{"permitted":{"token":"0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d","amount":"1"},"deadline":"1"},"transferDetails":{"to":"0x4007CE2083c7F3E18097aeB3A39bb8eC149a341d"},"signature":"0x00"}]`),
		"nft no metadata": enc(`[{"type":"erc721-permit","owner":"0x44Ca15Db101fD1c194467Db6AF0c67C6BbF4AB51","permit":{"permitted":{"token":"0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d","amount":"1"},"nonce":"1","deadline":"1"},"transferDetails":{"to":"0x4007CE2083c7F3E18097aeB3A39bb8eC149a341d"},"signature":"0x00"}]`),
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClaimData(raw)
			assert.ErrorIs(t, err, ErrInvalidClaimData)
		})
	}
}

func TestEncodeClaimData_RoundTrip(t *testing.T) {
	p := testERC20Permit()
	p.Nonce = new(big.Int).Lsh(big.NewInt(1), 200)

	encoded, err := EncodeClaimData([]Permit{p})
	require.NoError(t, err)

	decoded, err := DecodeClaimData(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, p.NonceKey(), decoded[0].NonceKey())
	assert.Equal(t, p.Owner, decoded[0].Owner)
	assert.Equal(t, p.Signature, decoded[0].Signature)
	assert.Equal(t, p.NetworkID, decoded[0].NetworkID)
}

func TestParseUint256(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1000", want: "1000"},
		{in: " 42 ", want: "42"},
		{in: "0x2a", want: "42"},
		{in: "0X2A", want: "42"},
		{in: "0x01", want: "1"},
		{in: "007", want: "7"},
		{in: "115792089237316195423570985008687907853269984665640564039457584007913129639935", want: "115792089237316195423570985008687907853269984665640564039457584007913129639935"},
		{in: "115792089237316195423570985008687907853269984665640564039457584007913129639936", wantErr: true},
		{in: "1_000", wantErr: true},
		{in: "0b101", wantErr: true},
		{in: "0o17", wantErr: true},
		{in: "0x", wantErr: true},
		{in: "0x_ff", wantErr: true},
		{in: "+1", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "1e18", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseUint256(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}
