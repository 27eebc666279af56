package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jonboulle/clockwork"
	"golang.org/x/term"

	"github.com/pendergraft/permitclaim/internal/config"
	"github.com/pendergraft/permitclaim/internal/evm"
	"github.com/pendergraft/permitclaim/internal/observability/errtrack"
	"github.com/pendergraft/permitclaim/internal/permits/domain"
	permitsTransport "github.com/pendergraft/permitclaim/internal/permits/transport"
	"github.com/pendergraft/permitclaim/internal/storage"
)

const flushTimeout = 2 * time.Second

// runtime holds the collaborators shared by the server and operator commands.
type runtime struct {
	store     storage.Store
	permits   permitsTransport.Service
	reporter  *errtrack.Reporter
	eth       *ethclient.Client
	hasWallet bool
}

// newRuntime opens the store, connects to the chain and wires the permits
// service. confirm is asked before every local-key signature; nil signs
// without asking.
func newRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, confirm evm.ConfirmFunc) (*runtime, error) {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	rt, err := wireRuntime(ctx, cfg, store, logger, confirm)
	if err != nil {
		store.Close()
		return nil, err
	}
	return rt, nil
}

func wireRuntime(ctx context.Context, cfg *config.Config, store storage.Store, logger *slog.Logger, confirm evm.ConfirmFunc) (*runtime, error) {
	client, ec, err := evm.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to chain: %w", err)
	}

	chainID := big.NewInt(cfg.Chain.ChainID)
	if cfg.Chain.ChainID == 0 {
		if chainID, err = ec.ChainID(ctx); err != nil {
			ec.Close()
			return nil, fmt.Errorf("reading chain id: %w", evm.Classify(err))
		}
	}

	reporter, err := errtrack.New(cfg.Sentry, version, logger)
	if err != nil {
		ec.Close()
		return nil, err
	}

	permit2 := evm.NewPermit2(client, common.HexToAddress(cfg.Chain.Permit2Address))
	deps := domain.Dependencies{
		Permits:  store,
		Tokens:   evm.NewToken(client),
		Bitmaps:  permit2,
		Cache:    domain.NewMetadataCache(),
		Spender:  permit2.Address(),
		Reporter: reporter,
		Clock:    clockwork.NewRealClock(),
		Logger:   logger,
	}

	if cfg.HasWallet() {
		signer, err := newSigner(cfg.Wallet, confirm)
		if err != nil {
			ec.Close()
			return nil, err
		}
		wallet := evm.NewWallet(ec, signer, chainID, logger)
		wallet.SetReceiptTimeout(time.Duration(cfg.Chain.ReceiptTimeout) * time.Second)
		deps.Wallet = evm.NewTransactor(permit2, wallet)
	}

	logger.Debug("runtime ready", "chain_id", chainID, "permit2", permit2.Address().Hex(), "wallet", cfg.HasWallet())

	return &runtime{
		store:     store,
		permits:   domain.LoggingMiddleware(logger)(domain.NewService(deps)),
		reporter:  reporter,
		eth:       ec,
		hasWallet: cfg.HasWallet(),
	}, nil
}

// Close flushes pending error reports and releases connections.
func (r *runtime) Close() {
	r.reporter.Flush(flushTimeout)
	r.eth.Close()
	r.store.Close()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func newSigner(cfg config.WalletConfig, confirm evm.ConfirmFunc) (evm.Signer, error) {
	if cfg.ClefURL != "" {
		signer, err := evm.NewClefSigner(cfg.ClefURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to clef: %w", err)
		}
		return signer, nil
	}
	signer, err := evm.NewKeySigner(cfg.PrivateKey, confirm)
	if err != nil {
		return nil, err
	}
	return signer, nil
}

// promptPrivateKey reads the wallet key from the terminal without echo.
func promptPrivateKey() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("--ask-key requires a terminal")
	}
	fmt.Fprint(os.Stderr, "Wallet private key: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading private key: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// terminalConfirm asks on the terminal before a transaction is signed.
// Declining surfaces as a user rejection in the claim flow.
func terminalConfirm(_ context.Context, tx *types.Transaction) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New("confirmation requires a terminal, pass --yes to sign without asking")
	}
	return confirmTx(os.Stdin, os.Stderr, tx)
}

// confirmTx prompts on w and reads a yes/no answer from r. A closed or
// failing input is an error, not a refusal.
func confirmTx(r io.Reader, w io.Writer, tx *types.Transaction) (bool, error) {
	to := "contract creation"
	if tx.To() != nil {
		to = tx.To().Hex()
	}
	fmt.Fprintf(w, "Sign transaction to %s (nonce %d, gas %d)? [y/N] ", to, tx.Nonce(), tx.Gas())

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
