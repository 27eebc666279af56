package evm

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// mockBackend implements Backend for testing.
type mockBackend struct {
	mu sync.Mutex

	callFn     func(msg ethereum.CallMsg) ([]byte, error)
	estimateFn func(msg ethereum.CallMsg) (uint64, error)
	sendFn     func(tx *types.Transaction) error
	receiptFn  func(hash common.Hash) (*types.Receipt, error)

	calls []ethereum.CallMsg
	sent  []*types.Transaction
}

func (m *mockBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}

func (m *mockBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, msg)
	m.mu.Unlock()
	if m.callFn != nil {
		return m.callFn(msg)
	}
	return nil, nil
}

func (m *mockBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x60}, nil
}

func (m *mockBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (m *mockBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (m *mockBackend) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	if m.estimateFn != nil {
		return m.estimateFn(msg)
	}
	return 90_000, nil
}

func (m *mockBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	m.sent = append(m.sent, tx)
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(tx)
	}
	return nil
}

func (m *mockBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if m.receiptFn != nil {
		return m.receiptFn(hash)
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}, nil
}
