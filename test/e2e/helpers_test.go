//go:build e2e

package e2e

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/permitclaim/internal/config"
	"github.com/pendergraft/permitclaim/internal/evm"
	"github.com/pendergraft/permitclaim/internal/nonce"
	"github.com/pendergraft/permitclaim/internal/permits/domain"
	"github.com/pendergraft/permitclaim/internal/server"
	"github.com/pendergraft/permitclaim/internal/storage"
	"github.com/pendergraft/permitclaim/pkg/client"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	funder   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	operator = common.HexToAddress("0x2222222222222222222222222222222222222222")
	stranger = common.HexToAddress("0x3333333333333333333333333333333333333333")
	token    = common.HexToAddress("0xe91D153E0b41518A2Ce8Dd3D7944Fa863463a97d")
	permit2  = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
)

// nextNonce hands out nonces so tests sharing the database never collide.
var nextNonce atomic.Int64

func init() {
	nextNonce.Store(time.Now().UnixNano() % 1_000_000_000)
}

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	TestServer        *httptest.Server
	Store             storage.Store
	Chain             *fakeChain
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("permitclaim"),
		postgres.WithUsername("permitclaim"),
		postgres.WithPassword("permitclaim"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// startServerE starts the API against Postgres with the fake chain as
// token reader, bitmap reader and wallet.
func startServerE(connString string, chain *fakeChain) (*httptest.Server, storage.Store, error) {
	cfg := &config.Config{
		Server: config.ServerConfig{PublicURL: "https://pay.example.org"},
		Storage: config.StorageConfig{
			Type:     "postgres",
			Postgres: config.PostgresConfig{URL: connString},
		},
		Auth:     config.AuthConfig{Type: "api-key"},
		Security: config.SecurityConfig{FilterEnabled: true, MaxBodySizeMB: 1, MaxQueryKB: 64},
		Chain: config.ChainConfig{
			Explorers: map[string]string{"100": "https://gnosisscan.io"},
		},
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create store: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	svc := domain.LoggingMiddleware(logger)(domain.NewService(domain.Dependencies{
		Permits: store,
		Tokens:  chain,
		Bitmaps: chain,
		Wallet:  chain,
		Cache:   domain.NewMetadataCache(),
		Spender: permit2,
		Logger:  logger,
	}))

	srv := server.New(cfg, store, svc, logger)
	return httptest.NewServer(srv.Handler()), store, nil
}

// newClient creates a new API client for the test server
func newClient(testServer *httptest.Server, apiKey string) *client.Client {
	return client.New(testServer.URL, apiKey)
}

// createTestAPIKey creates a test API key using the store directly
func createTestAPIKey(t *testing.T, store storage.Store, name string) string {
	key, err := store.CreateAPIKey(context.Background(), name)
	require.NoError(t, err, "Failed to create API key")
	return key
}

// assertHTTPError asserts that err is an API error with the given code
func assertHTTPError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr), "expected *client.APIError, got %T: %v", err, err)
	require.Equal(t, code, apiErr.Code, apiErr.Message)
}

// newERC20Permit returns a fresh reward for the server wallet.
func newERC20Permit() domain.Permit {
	return domain.Permit{
		Kind:            domain.KindERC20,
		NetworkID:       100,
		Owner:           funder,
		Token:           token,
		Amount:          big.NewInt(2_500_000),
		Nonce:           big.NewInt(nextNonce.Add(1)),
		Deadline:        big.NewInt(time.Now().Add(24 * time.Hour).Unix()),
		Beneficiary:     operator,
		RequestedAmount: big.NewInt(2_500_000),
		Signature:       common.FromHex("0x" + fmt.Sprintf("%0130x", 1)),
	}
}

// claimData encodes permits the way claim links carry them.
func claimData(t *testing.T, permits ...domain.Permit) string {
	t.Helper()
	data, err := domain.EncodeClaimData(permits)
	require.NoError(t, err)
	return data
}

// importPermits stores permits through the API and returns their nonces.
func importPermits(t *testing.T, c *client.Client, permits ...domain.Permit) []string {
	t.Helper()
	result, err := c.Import(context.Background(), claimData(t, permits...))
	require.NoError(t, err)
	require.Equal(t, len(permits), result.Imported)

	nonces := make([]string, len(permits))
	for i, p := range permits {
		nonces[i] = p.NonceKey()
	}
	return nonces
}

// fakeChain stands in for the token contract, Permit2 and the server wallet.
// Claims and invalidations flip nonce bits like Permit2 does.
type fakeChain struct {
	mu        sync.Mutex
	balance   *big.Int
	allowance *big.Int
	bitmaps   map[string]*big.Int
	account   common.Address
	txCount   uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		balance:   big.NewInt(1_000_000_000),
		allowance: big.NewInt(1_000_000_000),
		bitmaps:   make(map[string]*big.Int),
		account:   operator,
	}
}

// setAccount switches the wallet account and returns a restore func.
func (c *fakeChain) setAccount(a common.Address) func() {
	c.mu.Lock()
	prev := c.account
	c.account = a
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.account = prev
		c.mu.Unlock()
	}
}

func (c *fakeChain) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balance), nil
}

func (c *fakeChain) Allowance(_ context.Context, _, _, spender common.Address) (*big.Int, error) {
	if spender != permit2 {
		return nil, fmt.Errorf("unexpected spender %s", spender)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.allowance), nil
}

func (c *fakeChain) Decimals(context.Context, common.Address) (uint8, error) {
	return 6, nil
}

func (c *fakeChain) Symbol(context.Context, common.Address) (string, error) {
	return "USDC", nil
}

func (c *fakeChain) NonceBitmap(_ context.Context, owner common.Address, word *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.bitmaps[bitmapKey(owner, word)]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (c *fakeChain) Address(context.Context) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account, nil
}

func (c *fakeChain) PermitTransferFrom(_ context.Context, permit evm.PermitTransferFrom, details evm.SignatureTransferDetails, owner common.Address, _ []byte) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	word, bit := nonce.Position(permit.Nonce)
	key := bitmapKey(owner, word)
	current, ok := c.bitmaps[key]
	if !ok {
		current = new(big.Int)
	}
	if nonce.IsClaimed(current, bit) {
		return nil, &evm.Error{Kind: evm.KindExecution, Reason: "InvalidNonce()"}
	}
	c.bitmaps[key] = nonce.Mask(current, bit)
	c.balance = new(big.Int).Sub(c.balance, details.RequestedAmount)
	return c.newTx(&details.To), nil
}

func (c *fakeChain) InvalidateUnorderedNonces(_ context.Context, word, mask *big.Int) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := bitmapKey(c.account, word)
	current, ok := c.bitmaps[key]
	if !ok {
		current = new(big.Int)
	}
	c.bitmaps[key] = new(big.Int).Or(current, mask)
	return c.newTx(&permit2), nil
}

func (c *fakeChain) WaitMined(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash()}, nil
}

func (c *fakeChain) newTx(to *common.Address) *types.Transaction {
	c.txCount++
	return types.NewTx(&types.LegacyTx{Nonce: c.txCount, To: to, Gas: 100_000, GasPrice: big.NewInt(1)})
}

func bitmapKey(owner common.Address, word *big.Int) string {
	return owner.Hex() + ":" + word.String()
}
