package domain

import (
	"context"
	"log/slog"
	"time"
)

// loggingService is the interface required for logging middleware.
type loggingService interface {
	Import(ctx context.Context, claimData string) (*ImportResult, error)
	Get(ctx context.Context, nonceKey string) (*Permit, error)
	List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error)
	Treasury(ctx context.Context, p Permit) Treasury
	Open(ctx context.Context, p Permit, opts ...SessionOption) *Session
	Check(ctx context.Context, sess *Session) Eligibility
	Claim(ctx context.Context, sess *Session) (*ClaimResult, error)
	Invalidate(ctx context.Context, sess *Session) (*InvalidateResult, error)
}

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(loggingService) *loggingMiddleware {
	return func(next loggingService) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   loggingService
	logger *slog.Logger
}

func (m *loggingMiddleware) Import(ctx context.Context, claimData string) (*ImportResult, error) {
	start := time.Now()
	result, err := m.next.Import(ctx, claimData)
	attrs := []any{"duration", time.Since(start), "error", err}
	if result != nil {
		attrs = append(attrs, "imported", result.Imported, "skipped", result.Skipped)
	}
	m.logger.Info("Import", attrs...)
	return result, err
}

func (m *loggingMiddleware) Get(ctx context.Context, nonceKey string) (*Permit, error) {
	start := time.Now()
	p, err := m.next.Get(ctx, nonceKey)
	m.logger.Debug("Get",
		"nonce", nonceKey,
		"duration", time.Since(start),
		"error", err,
	)
	return p, err
}

func (m *loggingMiddleware) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	start := time.Now()
	result, err := m.next.List(ctx, filter, pagination)
	m.logger.Debug("List",
		"filter", filter,
		"limit", pagination.Limit,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) Treasury(ctx context.Context, p Permit) Treasury {
	start := time.Now()
	t := m.next.Treasury(ctx, p)
	m.logger.Debug("Treasury",
		"token", p.Token.Hex(),
		"owner", p.Owner.Hex(),
		"known", t.Known(),
		"duration", time.Since(start),
	)
	return t
}

func (m *loggingMiddleware) Open(ctx context.Context, p Permit, opts ...SessionOption) *Session {
	start := time.Now()
	sess := m.next.Open(ctx, p, opts...)
	m.logger.Debug("Open",
		"nonce", p.NonceKey(),
		"controls", sess.Controls().State(),
		"duration", time.Since(start),
	)
	return sess
}

func (m *loggingMiddleware) Check(ctx context.Context, sess *Session) Eligibility {
	start := time.Now()
	e := m.next.Check(ctx, sess)
	m.logger.Info("Check",
		"nonce", sess.Permit.NonceKey(),
		"eligibility", e,
		"duration", time.Since(start),
	)
	return e
}

func (m *loggingMiddleware) Claim(ctx context.Context, sess *Session) (*ClaimResult, error) {
	start := time.Now()
	result, err := m.next.Claim(ctx, sess)
	attrs := []any{"nonce", sess.Permit.NonceKey(), "duration", time.Since(start), "error", err}
	if result != nil {
		attrs = append(attrs, "state", result.State, "tx", result.TxHash)
	}
	m.logger.Info("Claim", attrs...)
	return result, err
}

func (m *loggingMiddleware) Invalidate(ctx context.Context, sess *Session) (*InvalidateResult, error) {
	start := time.Now()
	result, err := m.next.Invalidate(ctx, sess)
	attrs := []any{"nonce", sess.Permit.NonceKey(), "duration", time.Since(start), "error", err}
	if result != nil {
		attrs = append(attrs, "sent", result.Sent, "tx", result.TxHash)
	}
	m.logger.Info("Invalidate", attrs...)
	return result, err
}
