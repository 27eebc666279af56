package evm

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// Kind classifies a wallet or provider failure.
type Kind int

const (
	KindExecution Kind = iota
	KindNetwork
	KindUserRejected
)

func (k Kind) String() string {
	switch k {
	case KindUserRejected:
		return "user_rejected"
	case KindNetwork:
		return "network"
	default:
		return "execution"
	}
}

var (
	ErrUserRejected = errors.New("user rejected the request")
	ErrExecution    = errors.New("execution failed")
	ErrNetwork      = errors.New("network error")
)

// Error is a classified wallet or provider failure. errors.Is matches it
// against the sentinel of its Kind as well as the wrapped cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.sentinel().Error()
}

func (e *Error) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindUserRejected:
		return ErrUserRejected
	case KindNetwork:
		return ErrNetwork
	default:
		return ErrExecution
	}
}

// eip1193UserRejected is the provider error code for a request the user declined.
const eip1193UserRejected = 4001

var rejectionMarkers = []string{
	"action_rejected",
	"user rejected",
	"user denied",
	"rejected by the user",
	"request denied",
}

var networkMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"network is unreachable",
	"unexpected eof",
}

// Classify maps a provider, signer or transport error onto an *Error. Errors
// that are already classified are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindNetwork, Err: err}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == eip1193UserRejected {
		return &Error{Kind: KindUserRejected, Reason: rpcErr.Error(), Err: err}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range rejectionMarkers {
		if strings.Contains(msg, m) {
			return &Error{Kind: KindUserRejected, Err: err}
		}
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := revertReason(dataErr.ErrorData()); ok {
			return &Error{Kind: KindExecution, Reason: reason, Err: err}
		}
	}
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		return &Error{Kind: KindExecution, Reason: err.Error()[i:], Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Kind: KindNetwork, Err: err}
	}
	for _, m := range networkMarkers {
		if strings.Contains(msg, m) {
			return &Error{Kind: KindNetwork, Err: err}
		}
	}

	return &Error{Kind: KindExecution, Err: err}
}

// Reason returns the human readable reason of err, preferring a decoded revert
// reason over the raw provider message.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

// IsUserRejected reports whether err is a user rejection.
func IsUserRejected(err error) bool {
	return errors.Is(err, ErrUserRejected)
}

// permit2Errors are the custom errors of SignatureTransfer and its libraries.
var permit2Errors = map[string]string{}

func init() {
	for _, sig := range []string{
		"InvalidNonce()",
		"InvalidSignature()",
		"InvalidSigner()",
		"InvalidSignatureLength()",
		"InvalidContractSignature()",
		"LengthMismatch()",
		"SignatureExpired(uint256)",
		"InvalidAmount(uint256)",
	} {
		selector := hexutil.Encode(crypto.Keccak256([]byte(sig))[:4])
		permit2Errors[selector] = sig[:strings.IndexByte(sig, '(')]
	}
}

func revertReason(data any) (string, bool) {
	s, ok := data.(string)
	if !ok {
		return "", false
	}
	raw, err := hexutil.Decode(s)
	if err != nil || len(raw) < 4 {
		return "", false
	}
	if reason, err := abi.UnpackRevert(raw); err == nil {
		return "execution reverted: " + reason, true
	}
	if name, ok := permit2Errors[hexutil.Encode(raw[:4])]; ok {
		return "execution reverted: " + name, true
	}
	return "", false
}
