package domain

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/permitclaim/internal/observability/metrics"
)

// TokenReader reads ERC-20 state.
type TokenReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	Symbol(ctx context.Context, token common.Address) (string, error)
}

// TreasuryFetcher reads the funding wallet's balance and Permit2 allowance.
type TreasuryFetcher struct {
	tokens  TokenReader
	cache   *MetadataCache
	spender common.Address
	logger  *slog.Logger
}

// NewTreasuryFetcher creates a fetcher. spender is the Permit2 address the
// allowance is read against.
func NewTreasuryFetcher(tokens TokenReader, cache *MetadataCache, spender common.Address, logger *slog.Logger) *TreasuryFetcher {
	if cache == nil {
		cache = NewMetadataCache()
	}
	return &TreasuryFetcher{
		tokens:  tokens,
		cache:   cache,
		spender: spender,
		logger:  logger,
	}
}

// Cache returns the metadata cache owned by the fetcher.
func (f *TreasuryFetcher) Cache() *MetadataCache {
	return f.cache
}

// FetchTreasury never fails: any read error yields UnknownTreasury.
func (f *TreasuryFetcher) FetchTreasury(ctx context.Context, p Permit) Treasury {
	t, err := f.fetch(ctx, p)
	if err != nil {
		f.logger.Warn("treasury fetch failed",
			"token", p.Token.Hex(),
			"owner", p.Owner.Hex(),
			"error", err,
		)
		metrics.TreasuryFetch("error")
		return UnknownTreasury()
	}
	return t
}

func (f *TreasuryFetcher) fetch(ctx context.Context, p Permit) (Treasury, error) {
	var (
		balance, allowance *big.Int
		md                 TokenMetadata
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = f.tokens.BalanceOf(gctx, p.Token, p.Owner)
		return err
	})
	g.Go(func() error {
		var err error
		allowance, err = f.tokens.Allowance(gctx, p.Token, p.Owner, f.spender)
		return err
	})

	cached, hit := f.cache.Get(p.Token)
	if hit {
		md = cached
	} else {
		g.Go(func() error {
			var err error
			md.Decimals, err = f.tokens.Decimals(gctx, p.Token)
			return err
		})
		g.Go(func() error {
			var err error
			md.Symbol, err = f.tokens.Symbol(gctx, p.Token)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return Treasury{}, err
	}

	if hit {
		metrics.TreasuryFetch("hit")
	} else {
		f.cache.Put(p.Token, md)
		metrics.TreasuryFetch("miss")
	}

	return Treasury{
		Balance:   balance,
		Allowance: allowance,
		Decimals:  int(md.Decimals),
		Symbol:    md.Symbol,
	}, nil
}
