// Package transport provides HTTP handlers for the permits domain.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/permitclaim/internal/auth"
	"github.com/pendergraft/permitclaim/internal/evm"
	"github.com/pendergraft/permitclaim/internal/permits/domain"
	"github.com/pendergraft/permitclaim/internal/render"
	"github.com/pendergraft/permitclaim/internal/validation"
)

// Service is the permits domain as seen by the HTTP layer.
type Service interface {
	Import(ctx context.Context, claimData string) (*domain.ImportResult, error)
	Get(ctx context.Context, nonceKey string) (*domain.Permit, error)
	List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error)
	Treasury(ctx context.Context, p domain.Permit) domain.Treasury
	Open(ctx context.Context, p domain.Permit, opts ...domain.SessionOption) *domain.Session
	Check(ctx context.Context, sess *domain.Session) domain.Eligibility
	Claim(ctx context.Context, sess *domain.Session) (*domain.ClaimResult, error)
	Invalidate(ctx context.Context, sess *domain.Session) (*domain.InvalidateResult, error)
}

// Config holds the presentation settings of the handler.
type Config struct {
	Explorers map[int64]string // explorer URL overrides by network id
	PublicURL string           // base of claim links in API responses
}

// Handler handles HTTP requests for permits.
type Handler struct {
	svc      Service
	renderer *render.Renderer
	cfg      Config
	logger   *slog.Logger
}

// NewHandler creates a new permits HTTP handler.
func NewHandler(svc Service, renderer *render.Renderer, cfg Config, logger *slog.Logger) *Handler {
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Handler{svc: svc, renderer: renderer, cfg: cfg, logger: logger}
}

// RegisterPageRoutes registers the HTML claim pages.
func (h *Handler) RegisterPageRoutes(r chi.Router) {
	r.Get("/", h.handleClaimPage)
	r.Get("/claim", h.handleClaimPage)
	r.Get("/permits/{nonce}", h.handleStoredPage)
}

// RegisterReadRoutes registers read-only API routes (no auth required).
func (h *Handler) RegisterReadRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{nonce}", h.handleGet)
	r.Get("/{nonce}/treasury", h.handleTreasury)
	r.Post("/{nonce}/check", h.handleCheck)
}

// RegisterWriteRoutes registers routes that store permits or send transactions (auth required).
func (h *Handler) RegisterWriteRoutes(r chi.Router) {
	r.Post("/", h.handleImport)
	r.Post("/{nonce}/claim", h.handleClaim)
	r.Post("/{nonce}/invalidate", h.handleInvalidate)
}

// Pages

func (h *Handler) handleClaimPage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("claim")
	if raw == "" {
		doc, err := render.Page()
		if err != nil {
			http.Error(w, "Failed to render page", http.StatusInternalServerError)
			return
		}
		writeHTML(w, http.StatusOK, doc)
		return
	}

	permits, err := domain.DecodeClaimData(raw)
	if err != nil {
		http.Error(w, "Invalid claim data", http.StatusBadRequest)
		return
	}

	index := 0
	if v := r.URL.Query().Get("reward"); v != "" {
		index, err = strconv.Atoi(v)
		if err != nil {
			http.Error(w, "Invalid reward index", http.StatusBadRequest)
			return
		}
	}
	if index < 0 || index >= len(permits) {
		http.Error(w, "Reward not found", http.StatusNotFound)
		return
	}

	h.renderPermit(w, r, permits[index])
}

func (h *Handler) handleStoredPage(w http.ResponseWriter, r *http.Request) {
	nonce, ok := nonceParam(r)
	if !ok {
		http.Error(w, "Invalid nonce", http.StatusBadRequest)
		return
	}
	p, err := h.svc.Get(r.Context(), nonce)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Reward not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load reward", http.StatusInternalServerError)
		return
	}
	h.renderPermit(w, r, *p)
}

func (h *Handler) renderPermit(w http.ResponseWriter, r *http.Request, p domain.Permit) {
	doc, err := render.Page()
	if err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	sess := h.svc.Open(ctx, p)
	explorer := evm.ExplorerURL(p.NetworkID, h.cfg.Explorers)
	switch p.Kind {
	case domain.KindERC721:
		h.renderer.RenderERC721(doc, p, explorer)
	default:
		h.renderer.RenderERC20(doc, p, h.svc.Treasury(ctx, p), explorer)
	}
	h.renderer.ApplyControls(doc, sess.Controls().State())

	writeHTML(w, http.StatusOK, doc)
}

// API

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	cursor := q.Get("cursor")
	if cursor != "" {
		if _, err := strconv.ParseUint(cursor, 10, 63); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid cursor")
			return
		}
	}

	filter := domain.ListFilter{
		Owner:       q.Get("owner"),
		Beneficiary: q.Get("beneficiary"),
	}
	for name, addr := range map[string]string{"owner": filter.Owner, "beneficiary": filter.Beneficiary} {
		if addr == "" {
			continue
		}
		if err := validation.ValidateAddress(addr); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_FILTER", name+": "+err.Error())
			return
		}
	}
	if n := q.Get("networkId"); n != "" {
		id, err := strconv.ParseInt(n, 10, 64)
		if err == nil {
			err = validation.ValidateNetworkID(id)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_NETWORK", "Invalid networkId")
			return
		}
		filter.NetworkID = id
	}
	if c := q.Get("claimed"); c != "" {
		claimed, err := strconv.ParseBool(c)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_FILTER", "claimed must be true or false")
			return
		}
		filter.Claimed = &claimed
	}

	result, err := h.svc.List(r.Context(), filter, domain.PaginationParams{Limit: limit, Cursor: cursor})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list permits")
		return
	}

	data := make([]PermitResponse, len(result.Permits))
	for i, p := range result.Permits {
		data[i] = h.permitResponse(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"pagination": map[string]any{
			"limit":      limit,
			"hasMore":    result.HasMore,
			"nextCursor": result.NextCursor,
		},
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPermit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.permitResponse(*p))
}

func (h *Handler) handleTreasury(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPermit(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ToTreasuryResponse(h.svc.Treasury(r.Context(), *p)))
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPermit(w, r)
	if !ok {
		return
	}
	sess := h.svc.Open(r.Context(), *p)
	eligibility := h.svc.Check(r.Context(), sess)

	resp := toSessionResponse(sess)
	resp.Eligibility = string(eligibility)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}
	req.Claim = strings.TrimSpace(req.Claim)
	if req.Claim == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "claim is required")
		return
	}

	result, err := h.svc.Import(r.Context(), req.Claim)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidClaimData) {
			writeError(w, http.StatusBadRequest, "INVALID_CLAIM_DATA", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to import permits")
		return
	}

	resp := ImportResponse{Imported: result.Imported, Skipped: result.Skipped, Permits: make([]PermitResponse, len(result.Permits))}
	for i, p := range result.Permits {
		resp.Permits[i] = h.permitResponse(p)
	}
	status := http.StatusOK
	if result.Imported > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPermit(w, r)
	if !ok {
		return
	}
	h.logger.Info("claim requested", "nonce", p.NonceKey(), "operator", auth.Operator(r.Context()))

	sess := h.svc.Open(r.Context(), *p)
	result, err := h.svc.Claim(r.Context(), sess)
	switch {
	case errors.Is(err, domain.ErrWalletUnavailable):
		writeError(w, http.StatusServiceUnavailable, "WALLET_UNAVAILABLE", "No wallet configured")
		return
	case errors.Is(err, domain.ErrUnsupportedKind):
		writeError(w, http.StatusUnprocessableEntity, "UNSUPPORTED_KIND", "Only ERC-20 rewards can be claimed")
		return
	case errors.Is(err, domain.ErrPersistTxHash):
		writeError(w, http.StatusInternalServerError, "PERSIST_FAILED",
			fmt.Sprintf("Claim confirmed in transaction %s but could not be recorded", result.TxHash))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to claim reward")
		return
	}

	resp := toSessionResponse(sess)
	resp.Eligibility = string(result.Eligibility)
	resp.State = string(result.State)
	resp.TxHash = result.TxHash
	resp.Reason = result.Reason
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.loadPermit(w, r)
	if !ok {
		return
	}
	h.logger.Info("invalidation requested", "nonce", p.NonceKey(), "operator", auth.Operator(r.Context()))

	sess := h.svc.Open(r.Context(), *p)
	result, err := h.svc.Invalidate(r.Context(), sess)
	if err != nil {
		if errors.Is(err, domain.ErrWalletUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "WALLET_UNAVAILABLE", "No wallet configured")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to invalidate nonce")
		return
	}

	resp := toSessionResponse(sess)
	resp.TxHash = result.TxHash
	resp.Reason = result.Reason
	if result.Sent {
		resp.State = "invalidated"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Helpers

func (h *Handler) loadPermit(w http.ResponseWriter, r *http.Request) (*domain.Permit, bool) {
	nonce, ok := nonceParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_NONCE", "Nonce must be a non-negative integer")
		return nil, false
	}
	p, err := h.svc.Get(r.Context(), nonce)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Permit not found")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get permit")
		return nil, false
	}
	return p, true
}

func (h *Handler) permitResponse(p domain.Permit) PermitResponse {
	resp := ToPermitResponse(p)
	if h.cfg.PublicURL != "" && resp.Nonce != "" {
		resp.ClaimURL = h.cfg.PublicURL + "/permits/" + resp.Nonce
	}
	return resp
}

// nonceParam returns the canonical decimal form of the {nonce} route parameter.
func nonceParam(r *http.Request) (string, bool) {
	n, err := validation.ParseNonce(chi.URLParam(r, "nonce"))
	return n, err == nil
}

func writeHTML(w http.ResponseWriter, status int, doc *render.Document) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	doc.Render(w)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
