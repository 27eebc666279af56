package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/permitclaim/internal/evm"
	"github.com/pendergraft/permitclaim/internal/nonce"
	"github.com/pendergraft/permitclaim/internal/storage"
)

var (
	testOwner       = common.HexToAddress("0x44Ca15Db101fD1c194467Db6AF0c67C6BbF4AB51")
	testBeneficiary = common.HexToAddress("0x4007CE2083c7F3E18097aeB3A39bb8eC149a341d")
	testToken       = common.HexToAddress("0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d")
	testPermit2     = common.HexToAddress(evm.Permit2Address)
	testNow         = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testERC20Permit() Permit {
	return Permit{
		Kind:            KindERC20,
		NetworkID:       100,
		Owner:           testOwner,
		Token:           testToken,
		Amount:          big.NewInt(1_000_000),
		Nonce:           big.NewInt(300),
		Deadline:        big.NewInt(testNow.Add(time.Hour).Unix()),
		Beneficiary:     testBeneficiary,
		RequestedAmount: big.NewInt(1_000_000),
		Signature:       []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

// mockTokens implements TokenReader with call counters.
type mockTokens struct {
	balance   *big.Int
	allowance *big.Int
	decimals  uint8
	symbol    string
	err       error

	balanceCalls   atomic.Int32
	allowanceCalls atomic.Int32
	decimalsCalls  atomic.Int32
	symbolCalls    atomic.Int32
}

func newMockTokens() *mockTokens {
	return &mockTokens{
		balance:   big.NewInt(5_000_000),
		allowance: big.NewInt(5_000_000),
		decimals:  6,
		symbol:    "WXDAI",
	}
}

func (m *mockTokens) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	m.balanceCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.balance, nil
}

func (m *mockTokens) Allowance(_ context.Context, _, _, spender common.Address) (*big.Int, error) {
	m.allowanceCalls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	if spender != testPermit2 {
		return nil, errors.New("unexpected spender")
	}
	return m.allowance, nil
}

func (m *mockTokens) Decimals(context.Context, common.Address) (uint8, error) {
	m.decimalsCalls.Add(1)
	if m.err != nil {
		return 0, m.err
	}
	return m.decimals, nil
}

func (m *mockTokens) Symbol(context.Context, common.Address) (string, error) {
	m.symbolCalls.Add(1)
	if m.err != nil {
		return "", m.err
	}
	return m.symbol, nil
}

// mockBitmaps implements BitmapReader backed by a map of words per owner.
type mockBitmaps struct {
	mu    sync.Mutex
	words map[common.Address]map[string]*big.Int
	err   error
}

func newMockBitmaps() *mockBitmaps {
	return &mockBitmaps{words: make(map[common.Address]map[string]*big.Int)}
}

func (m *mockBitmaps) NonceBitmap(_ context.Context, owner common.Address, word *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.words[owner][word.String()]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (m *mockBitmaps) set(owner common.Address, word, bitmap *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.words[owner] == nil {
		m.words[owner] = make(map[string]*big.Int)
	}
	m.words[owner][word.String()] = bitmap
}

// markClaimed sets the nonce bit of n for owner.
func (m *mockBitmaps) markClaimed(owner common.Address, n *big.Int) {
	word, bit := nonce.Position(n)
	m.set(owner, word, nonce.Bit(bit))
}

// mockWallet implements Wallet.
type mockWallet struct {
	address common.Address
	addrErr error
	sendErr error
	waitErr error
	invErr  error

	transfers     int
	invalidations []invalidation
}

type invalidation struct {
	word, mask *big.Int
}

func (m *mockWallet) Address(context.Context) (common.Address, error) {
	if m.addrErr != nil {
		return common.Address{}, m.addrErr
	}
	return m.address, nil
}

func (m *mockWallet) PermitTransferFrom(_ context.Context, permit evm.PermitTransferFrom, details evm.SignatureTransferDetails, _ common.Address, _ []byte) (*types.Transaction, error) {
	m.transfers++
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return types.NewTx(&types.LegacyTx{Nonce: permit.Nonce.Uint64(), To: &details.To, Gas: 21000, GasPrice: big.NewInt(1)}), nil
}

func (m *mockWallet) InvalidateUnorderedNonces(_ context.Context, word, mask *big.Int) (*types.Transaction, error) {
	if m.invErr != nil {
		return nil, m.invErr
	}
	m.invalidations = append(m.invalidations, invalidation{word: word, mask: mask})
	return types.NewTx(&types.LegacyTx{Nonce: 1, Gas: 21000, GasPrice: big.NewInt(1)}), nil
}

func (m *mockWallet) WaitMined(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash()}, nil
}

// mockStore implements PermitStore in memory.
type mockStore struct {
	mu        sync.Mutex
	permits   map[string]*storage.Permit
	updateErr error
	updates   map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{
		permits: make(map[string]*storage.Permit),
		updates: make(map[string]string),
	}
}

func (m *mockStore) CreatePermit(_ context.Context, p *storage.Permit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.permits[p.Nonce]; ok {
		return storage.ErrAlreadyExists
	}
	cp := *p
	m.permits[p.Nonce] = &cp
	return nil
}

func (m *mockStore) GetPermit(_ context.Context, nonceKey string) (*storage.Permit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.permits[nonceKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) ListPermits(_ context.Context, _ storage.PermitFilter, _ storage.PaginationParams) (*storage.PaginatedResult[storage.Permit], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := &storage.PaginatedResult[storage.Permit]{}
	for _, p := range m.permits {
		res.Data = append(res.Data, *p)
	}
	return res, nil
}

func (m *mockStore) UpdatePermitTxHash(_ context.Context, nonceKey, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	p, ok := m.permits[nonceKey]
	if !ok {
		return storage.ErrNotFound
	}
	p.TxHash = txHash
	m.updates[nonceKey] = txHash
	return nil
}

// mockReporter implements ErrorReporter.
type mockReporter struct {
	errs []error
}

func (m *mockReporter) Report(_ context.Context, err error, _ map[string]string) {
	m.errs = append(m.errs, err)
}

// fixture bundles a fully mocked claim flow.
type fixture struct {
	tokens   *mockTokens
	bitmaps  *mockBitmaps
	wallet   *mockWallet
	store    *mockStore
	reporter *mockReporter
	clock    *clockwork.FakeClock
	checker  *Checker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tokens:   newMockTokens(),
		bitmaps:  newMockBitmaps(),
		wallet:   &mockWallet{address: testBeneficiary},
		store:    newMockStore(),
		reporter: &mockReporter{},
		clock:    clockwork.NewFakeClockAt(testNow),
	}
	treasury := NewTreasuryFetcher(f.tokens, NewMetadataCache(), testPermit2, testLogger())
	f.checker = NewChecker(f.bitmaps, treasury, f.wallet, f.clock, testLogger())
	return f
}

func (f *fixture) orchestrator() *Orchestrator {
	return NewOrchestrator(f.checker, f.wallet, f.store, f.reporter, testLogger())
}

func (f *fixture) invalidator() *Invalidator {
	return NewInvalidator(f.checker, f.bitmaps, f.wallet, testLogger())
}

func (f *fixture) storePermit(t *testing.T, p Permit) {
	t.Helper()
	rec, err := toRecord(p)
	require.NoError(t, err)
	require.NoError(t, f.store.CreatePermit(context.Background(), rec))
}
