package evm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcDataErr struct {
	code int
	msg  string
	data any
}

func (e rpcDataErr) Error() string  { return e.msg }
func (e rpcDataErr) ErrorCode() int { return e.code }
func (e rpcDataErr) ErrorData() any { return e.data }

func revertData(t *testing.T, reason string) string {
	t.Helper()
	stringTy, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringTy}}.Pack(reason)
	require.NoError(t, err)
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"eip1193 code", rpcDataErr{code: 4001, msg: "User rejected the request."}, KindUserRejected},
		{"action rejected", errors.New("user rejected transaction (action=\"sendTransaction\", code=ACTION_REJECTED)"), KindUserRejected},
		{"clef denial", errors.New("Request denied"), KindUserRejected},
		{"execution reverted", errors.New("execution reverted: TRANSFER_FROM_FAILED"), KindExecution},
		{"connection refused", fmt.Errorf("post: %w", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}), KindNetwork},
		{"eof", fmt.Errorf("read: %w", io.EOF), KindNetwork},
		{"deadline", context.DeadlineExceeded, KindNetwork},
		{"unknown", errors.New("something odd"), KindExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.err)
			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.kind, e.Kind)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_Nil(t *testing.T) {
	assert.NoError(t, Classify(nil))
}

func TestClassify_AlreadyClassified(t *testing.T) {
	orig := &Error{Kind: KindNetwork, Reason: "down"}
	assert.Same(t, orig, Classify(orig))
}

func TestClassify_DecodesRevertData(t *testing.T) {
	err := Classify(rpcDataErr{code: 3, msg: "execution reverted", data: revertData(t, "TRANSFER_FROM_FAILED")})

	assert.ErrorIs(t, err, ErrExecution)
	assert.Equal(t, "execution reverted: TRANSFER_FROM_FAILED", Reason(err))
}

func TestClassify_DecodesPermit2CustomError(t *testing.T) {
	selector := hexutil.Encode(crypto.Keccak256([]byte("InvalidNonce()"))[:4])
	err := Classify(rpcDataErr{code: 3, msg: "execution reverted", data: selector})

	assert.ErrorIs(t, err, ErrExecution)
	assert.Equal(t, "execution reverted: InvalidNonce", Reason(err))
}

func TestError_Sentinels(t *testing.T) {
	rejected := &Error{Kind: KindUserRejected}
	assert.True(t, IsUserRejected(rejected))
	assert.ErrorIs(t, rejected, ErrUserRejected)
	assert.NotErrorIs(t, rejected, ErrExecution)

	wrapped := fmt.Errorf("claim: %w", rejected)
	assert.True(t, IsUserRejected(wrapped))
	assert.Equal(t, ErrUserRejected.Error(), Reason(wrapped))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "user_rejected", KindUserRejected.String())
	assert.Equal(t, "network", KindNetwork.String())
	assert.Equal(t, "execution", KindExecution.String())
}

func TestExplorerURL(t *testing.T) {
	assert.Equal(t, "https://etherscan.io", ExplorerURL(1, nil))
	assert.Equal(t, "https://gnosisscan.io", ExplorerURL(100, nil))
	assert.Equal(t, "http://localhost:4000", ExplorerURL(31337, nil))
	assert.Equal(t, "https://etherscan.io", ExplorerURL(12345, nil))
	assert.Equal(t, "https://blockscout.example", ExplorerURL(100, map[int64]string{100: "https://blockscout.example/"}))
}
